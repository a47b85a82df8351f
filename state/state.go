// Package state defines how the simulator persists chain state: a Backend
// stores committed blocks, and an Overlay buffers one transaction's writes
// on top of it.
package state

import (
	"errors"
	"fmt"

	"github.com/govm-net/starksim/core"
	"github.com/govm-net/starksim/types"
)

var (
	ErrClassNotFound    = errors.New("class not found")
	ErrContractNotFound = errors.New("contract not found")
	ErrReceiptNotFound  = errors.New("receipt not found")
	ErrBlockOutOfOrder  = errors.New("block out of order")
	ErrContractExists   = errors.New("contract already deployed")
	ErrClosed           = errors.New("backend closed")
)

// ClassKind is the artifact format of a declared class.
type ClassKind string

const (
	ClassGo   ClassKind = "go"   // Go source run by the interpreter
	ClassWasm ClassKind = "wasm" // WebAssembly module run by wazero
)

// Class is a declared contract artifact.
type Class struct {
	Hash core.Felt
	Kind ClassKind
	Path string
	Code []byte
	ABI  []byte // JSON encoded abi.ABI
}

// Contract is a deployed instance of a class.
type Contract struct {
	Address    core.Felt
	ClassHash  core.Felt
	DeployedAt uint64
}

// StorageEntry is one storage slot of one contract.
type StorageEntry struct {
	Contract core.Felt
	Key      core.Felt
	Value    core.Felt
}

// BlockHeader identifies a committed block.
type BlockHeader struct {
	Number    uint64 `json:"number"`
	Timestamp int64  `json:"timestamp"`
}

// Block is the unit of commit. Every accepted transaction produces one.
type Block struct {
	BlockHeader
	Classes   []Class
	Contracts []Contract
	Storage   []StorageEntry
	Receipts  []types.Receipt
}

// Reader is the read side shared by backends and overlays.
type Reader interface {
	// Storage returns the value of a slot. Unset slots read as zero.
	Storage(contract, key core.Felt) (core.Felt, error)
	Class(hash core.Felt) (*Class, error)
	Contract(address core.Felt) (*Contract, error)
}

// Backend persists committed blocks.
type Backend interface {
	Reader

	// LatestBlock returns the header of the last committed block, or the
	// zero header for an empty chain.
	LatestBlock() (BlockHeader, error)
	Receipt(txHash core.Felt) (*types.Receipt, error)

	// Commit applies block atomically. block.Number must be LatestBlock+1.
	// Classes already known are skipped; deploying to a used address fails
	// with ErrContractExists and nothing is applied.
	Commit(block *Block) error
	Close() error
}

// CheckOrder validates the number of a block about to be committed.
func CheckOrder(latest BlockHeader, block *Block) error {
	if block.Number != latest.Number+1 {
		return fmt.Errorf("%w: latest %d, got %d", ErrBlockOutOfOrder, latest.Number, block.Number)
	}
	return nil
}
