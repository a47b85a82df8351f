// Package badger provides a state backend on a badger key/value store.
// Without a path the store lives in memory.
package badger

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/govm-net/starksim/core"
	"github.com/govm-net/starksim/state"
	"github.com/govm-net/starksim/types"
)

// Backend implements state.Backend on badger
type Backend struct {
	db     *badger.DB
	mu     sync.Mutex
	closed bool
}

func init() {
	if err := state.Register(state.BadgerBackend, func(params map[string]any) (state.Backend, error) {
		return New(state.PathParam(params))
	}); err != nil {
		panic(err)
	}
}

// New opens the store in directory dir. An empty dir opens an in-memory
// store.
func New(dir string) (*Backend, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &Backend{db: db}, nil
}

func (b *Backend) view(fn func(txn *badger.Txn) error) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return state.ErrClosed
	}
	return b.db.View(fn)
}

// get returns the value at key, or nil when it does not exist.
func get(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

func getJSON(txn *badger.Txn, key []byte, v any) (bool, error) {
	data, err := get(txn, key)
	if err != nil || data == nil {
		return false, err
	}
	return true, json.Unmarshal(data, v)
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func (b *Backend) LatestBlock() (state.BlockHeader, error) {
	var head state.BlockHeader
	err := b.view(func(txn *badger.Txn) error {
		_, err := getJSON(txn, headKey(), &head)
		return err
	})
	return head, err
}

func (b *Backend) Storage(contract, key core.Felt) (core.Felt, error) {
	var value core.Felt
	err := b.view(func(txn *badger.Txn) error {
		data, err := get(txn, storageKey(contract, key))
		if err != nil {
			return err
		}
		value = core.FeltFromBytes(data)
		return nil
	})
	return value, err
}

func (b *Backend) Class(hash core.Felt) (*state.Class, error) {
	var class state.Class
	err := b.view(func(txn *badger.Txn) error {
		found, err := getJSON(txn, classKey(hash), &class)
		if err == nil && !found {
			err = fmt.Errorf("%w: %s", state.ErrClassNotFound, hash.Hex())
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &class, nil
}

func (b *Backend) Contract(address core.Felt) (*state.Contract, error) {
	var contract state.Contract
	err := b.view(func(txn *badger.Txn) error {
		found, err := getJSON(txn, contractKey(address), &contract)
		if err == nil && !found {
			err = fmt.Errorf("%w: %s", state.ErrContractNotFound, address.Hex())
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &contract, nil
}

func (b *Backend) Receipt(txHash core.Felt) (*types.Receipt, error) {
	var receipt types.Receipt
	err := b.view(func(txn *badger.Txn) error {
		found, err := getJSON(txn, receiptKey(txHash), &receipt)
		if err == nil && !found {
			err = fmt.Errorf("%w: %s", state.ErrReceiptNotFound, txHash.Hex())
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (b *Backend) Commit(block *state.Block) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return state.ErrClosed
	}
	return b.db.Update(func(txn *badger.Txn) error {
		var head state.BlockHeader
		if _, err := getJSON(txn, headKey(), &head); err != nil {
			return err
		}
		if err := state.CheckOrder(head, block); err != nil {
			return err
		}

		for _, c := range block.Classes {
			data, err := get(txn, classKey(c.Hash))
			if err != nil {
				return err
			}
			if data != nil {
				continue
			}
			if err := setJSON(txn, classKey(c.Hash), c); err != nil {
				return err
			}
		}
		for _, c := range block.Contracts {
			data, err := get(txn, contractKey(c.Address))
			if err != nil {
				return err
			}
			if data != nil {
				return fmt.Errorf("%w: %s", state.ErrContractExists, c.Address.Hex())
			}
			if err := setJSON(txn, contractKey(c.Address), c); err != nil {
				return err
			}
		}
		for _, e := range block.Storage {
			value := e.Value.Bytes32()
			if err := txn.Set(storageKey(e.Contract, e.Key), value[:]); err != nil {
				return err
			}
		}
		for _, r := range block.Receipts {
			if err := setJSON(txn, receiptKey(r.TxHash), r); err != nil {
				return err
			}
		}
		return setJSON(txn, headKey(), block.BlockHeader)
	})
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}
