package state

import (
	"errors"
	"fmt"
	"sort"

	"github.com/govm-net/starksim/core"
	"github.com/govm-net/starksim/types"
)

type slot struct {
	contract core.Felt
	key      core.Felt
}

type journalEntry struct {
	slot    slot
	prev    core.Felt
	existed bool
}

// Overlay buffers the effects of one transaction on top of a Reader.
// Nothing reaches the underlying state until the overlay is turned into a
// Block and committed. An Overlay is not safe for concurrent use.
type Overlay struct {
	base      Reader
	writes    map[slot]core.Felt
	journal   []journalEntry
	classes   []Class
	contracts []Contract
}

// NewOverlay returns an empty overlay over base.
func NewOverlay(base Reader) *Overlay {
	return &Overlay{
		base:   base,
		writes: make(map[slot]core.Felt),
	}
}

// Storage returns the buffered value of a slot, falling back to base.
func (o *Overlay) Storage(contract, key core.Felt) (core.Felt, error) {
	if v, ok := o.writes[slot{contract, key}]; ok {
		return v, nil
	}
	return o.base.Storage(contract, key)
}

// SetStorage buffers a write.
func (o *Overlay) SetStorage(contract, key, value core.Felt) {
	s := slot{contract, key}
	prev, existed := o.writes[s]
	o.journal = append(o.journal, journalEntry{slot: s, prev: prev, existed: existed})
	o.writes[s] = value
}

// Snapshot returns an identifier for the current write set.
func (o *Overlay) Snapshot() int {
	return len(o.journal)
}

// RevertTo undoes every write made after the snapshot was taken.
func (o *Overlay) RevertTo(snapshot int) {
	for i := len(o.journal) - 1; i >= snapshot; i-- {
		e := o.journal[i]
		if e.existed {
			o.writes[e.slot] = e.prev
		} else {
			delete(o.writes, e.slot)
		}
	}
	o.journal = o.journal[:snapshot]
}

// DeclareClass buffers a class declaration.
func (o *Overlay) DeclareClass(c Class) {
	for _, existing := range o.classes {
		if existing.Hash == c.Hash {
			return
		}
	}
	o.classes = append(o.classes, c)
}

// DeployContract buffers a deployment.
func (o *Overlay) DeployContract(c Contract) error {
	_, err := o.Contract(c.Address)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrContractExists, c.Address.Hex())
	case !errors.Is(err, ErrContractNotFound):
		return err
	}
	if _, err := o.Class(c.ClassHash); err != nil {
		return err
	}
	o.contracts = append(o.contracts, c)
	return nil
}

// Class looks up buffered classes first, then base.
func (o *Overlay) Class(hash core.Felt) (*Class, error) {
	for i := range o.classes {
		if o.classes[i].Hash == hash {
			c := o.classes[i]
			return &c, nil
		}
	}
	return o.base.Class(hash)
}

// Contract looks up buffered deployments first, then base.
func (o *Overlay) Contract(address core.Felt) (*Contract, error) {
	for i := range o.contracts {
		if o.contracts[i].Address == address {
			c := o.contracts[i]
			return &c, nil
		}
	}
	return o.base.Contract(address)
}

// Diff returns the buffered storage writes ordered by contract and key.
func (o *Overlay) Diff() []StorageEntry {
	diff := make([]StorageEntry, 0, len(o.writes))
	for s, v := range o.writes {
		diff = append(diff, StorageEntry{Contract: s.contract, Key: s.key, Value: v})
	}
	sort.Slice(diff, func(i, j int) bool {
		if c := diff[i].Contract.Cmp(diff[j].Contract); c != 0 {
			return c < 0
		}
		return diff[i].Key.Lt(diff[j].Key)
	})
	return diff
}

// Block packages the overlay into the next block.
func (o *Overlay) Block(header BlockHeader, receipts ...types.Receipt) *Block {
	return &Block{
		BlockHeader: header,
		Classes:     append([]Class(nil), o.classes...),
		Contracts:   append([]Contract(nil), o.contracts...),
		Storage:     o.Diff(),
		Receipts:    receipts,
	}
}
