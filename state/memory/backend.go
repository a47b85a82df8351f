// Package memory provides an in-memory state backend. It is the default
// backend of a simulation.
package memory

import (
	"fmt"
	"sync"

	"github.com/govm-net/starksim/core"
	"github.com/govm-net/starksim/state"
	"github.com/govm-net/starksim/types"
)

type slot struct {
	contract core.Felt
	key      core.Felt
}

// Backend keeps committed state in maps guarded by a mutex.
type Backend struct {
	mu        sync.RWMutex
	latest    state.BlockHeader
	classes   map[core.Felt]state.Class
	contracts map[core.Felt]state.Contract
	storage   map[slot]core.Felt
	receipts  map[core.Felt]types.Receipt
	closed    bool
}

func init() {
	if err := state.Register(state.MemoryBackend, func(map[string]any) (state.Backend, error) {
		return New(), nil
	}); err != nil {
		panic(err)
	}
}

// New returns an empty in-memory backend.
func New() *Backend {
	return &Backend{
		classes:   make(map[core.Felt]state.Class),
		contracts: make(map[core.Felt]state.Contract),
		storage:   make(map[slot]core.Felt),
		receipts:  make(map[core.Felt]types.Receipt),
	}
}

func (b *Backend) LatestBlock() (state.BlockHeader, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return state.BlockHeader{}, state.ErrClosed
	}
	return b.latest, nil
}

func (b *Backend) Storage(contract, key core.Felt) (core.Felt, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return core.Zero, state.ErrClosed
	}
	return b.storage[slot{contract, key}], nil
}

func (b *Backend) Class(hash core.Felt) (*state.Class, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, state.ErrClosed
	}
	c, ok := b.classes[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", state.ErrClassNotFound, hash.Hex())
	}
	return &c, nil
}

func (b *Backend) Contract(address core.Felt) (*state.Contract, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, state.ErrClosed
	}
	c, ok := b.contracts[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", state.ErrContractNotFound, address.Hex())
	}
	return &c, nil
}

func (b *Backend) Receipt(txHash core.Felt) (*types.Receipt, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, state.ErrClosed
	}
	r, ok := b.receipts[txHash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", state.ErrReceiptNotFound, txHash.Hex())
	}
	return &r, nil
}

func (b *Backend) Commit(block *state.Block) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return state.ErrClosed
	}
	if err := state.CheckOrder(b.latest, block); err != nil {
		return err
	}
	// validate before touching anything
	for _, c := range block.Contracts {
		if _, ok := b.contracts[c.Address]; ok {
			return fmt.Errorf("%w: %s", state.ErrContractExists, c.Address.Hex())
		}
	}

	for _, c := range block.Classes {
		if _, ok := b.classes[c.Hash]; !ok {
			b.classes[c.Hash] = c
		}
	}
	for _, c := range block.Contracts {
		b.contracts[c.Address] = c
	}
	for _, e := range block.Storage {
		b.storage[slot{e.Contract, e.Key}] = e.Value
	}
	for _, r := range block.Receipts {
		b.receipts[r.TxHash] = r
	}
	b.latest = block.BlockHeader
	return nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
