package counter

import (
	"errors"

	"github.com/govm-net/starksim/core"
)

var count = core.NewStorageVar("count")

// Increment adds by to the counter.
func Increment(ctx core.Context, by core.Felt) error {
	current, err := count.Read(ctx)
	if err != nil {
		return err
	}
	return count.Write(ctx, current.Add(by))
}

// Get returns the counter.
//
//contract:view
func Get(ctx core.Context) (core.Felt, error) {
	return count.Read(ctx)
}

// Check exercises u64 and bool arguments.
//
//contract:view
func Check(limit uint64, strict bool) (bool, error) {
	if strict && limit == 0 {
		return false, errors.New("limit required")
	}
	if limit > 100 {
		return false, core.Revertf("limit %d too large", limit)
	}
	return limit > 10, nil
}

// Boom always panics.
func Boom() {
	panic("boom")
}
