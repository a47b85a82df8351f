// Package core defines the interfaces and types a contract needs to talk to
// the simulator. Contract authors only need this package to write a contract.
package core

// Context is the syscall surface a contract sees during one entry point
// execution.
type Context interface {
	// Chain information
	BlockNumber() uint64   // number of the block being built
	BlockTimestamp() int64 // timestamp of the block being built
	ContractAddress() Felt // address of the executing contract
	CallerAddress() Felt   // account or contract that called this entry point

	// Storage
	StorageRead(address Felt) (Felt, error)
	StorageWrite(address Felt, value Felt) error

	// Events
	EmitEvent(name string, data ...Felt) error

	// Cross-contract calls
	CallContract(contract Felt, entryPoint string, calldata []Felt) ([]Felt, error)
}

// StorageVar is a named storage variable, optionally keyed like a mapping.
type StorageVar struct {
	name string
	base Felt
}

// NewStorageVar returns the storage variable called name. Its base address
// is sn_keccak(name).
func NewStorageVar(name string) StorageVar {
	return StorageVar{name: name, base: Keccak250([]byte(name))}
}

// Name returns the variable name.
func (v StorageVar) Name() string {
	return v.name
}

// Address returns the storage address of the entry selected by keys.
func (v StorageVar) Address(keys ...Felt) Felt {
	if len(keys) == 0 {
		return v.base
	}
	return HashFelts(append([]Felt{v.base}, keys...)...)
}

// Read loads the entry selected by keys. Unset entries read as zero.
func (v StorageVar) Read(ctx Context, keys ...Felt) (Felt, error) {
	return ctx.StorageRead(v.Address(keys...))
}

// Write stores value in the entry selected by keys.
func (v StorageVar) Write(ctx Context, value Felt, keys ...Felt) error {
	return ctx.StorageWrite(v.Address(keys...), value)
}
