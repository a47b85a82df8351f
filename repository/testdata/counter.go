package counter

import "github.com/govm-net/starksim/core"

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
