// Package types contains shared type definitions used by the simulator,
// its state backends and its outer surfaces.
package types

import (
	"github.com/govm-net/starksim/core"
)

// TxType identifies what an accepted transaction did.
type TxType string

const (
	TxDeploy TxType = "deploy" // deployment of a contract instance
	TxInvoke TxType = "invoke" // state-changing entry point call
)

// Event is emitted by a contract during execution. Keys holds the selector
// of the event name.
type Event struct {
	From core.Felt   `json:"from_address"`
	Name string      `json:"name"`
	Keys []core.Felt `json:"keys"`
	Data []core.Felt `json:"data"`
}

// ExecutionResources counts what a call consumed.
type ExecutionResources struct {
	GasUsed       uint64 `json:"gas_used"`
	StorageReads  uint64 `json:"storage_reads"`
	StorageWrites uint64 `json:"storage_writes"`
	Events        uint64 `json:"events"`
	Calls         uint64 `json:"calls"`
}

// Add accumulates other into r.
func (r *ExecutionResources) Add(other ExecutionResources) {
	r.GasUsed += other.GasUsed
	r.StorageReads += other.StorageReads
	r.StorageWrites += other.StorageWrites
	r.Events += other.Events
	r.Calls += other.Calls
}

// Receipt is persisted for every accepted transaction.
type Receipt struct {
	TxHash      core.Felt          `json:"transaction_hash"`
	BlockNumber uint64             `json:"block_number"`
	Type        TxType             `json:"type"`
	Contract    core.Felt          `json:"contract_address"`
	EntryPoint  string             `json:"entry_point,omitempty"`
	Calldata    []core.Felt        `json:"calldata"`
	Result      []core.Felt        `json:"result"`
	Events      []Event            `json:"events"`
	Resources   ExecutionResources `json:"execution_resources"`
}
