package counter

import "github.com/govm-net/starksim/core"

var (
	count = core.NewStorageVar("count")
	owner = core.NewStorageVar("owner")
)

func Constructor(ctx core.Context, initial core.Felt) error {
	if err := owner.Write(ctx, ctx.CallerAddress()); err != nil {
		return err
	}
	return count.Write(ctx, initial)
}

func Increment(ctx core.Context, by uint64) error {
	if err := core.Require(by > 0, "increment must be positive"); err != nil {
		return err
	}
	current, err := count.Read(ctx)
	if err != nil {
		return err
	}
	next := current.Add(core.FeltFromUint64(by))
	if err := count.Write(ctx, next); err != nil {
		return err
	}
	return ctx.EmitEvent("count_changed", next)
}

//contract:view
func Get(ctx core.Context) (core.Felt, error) {
	return count.Read(ctx)
}

//contract:view
func Now(ctx core.Context) (uint64, uint64) {
	return ctx.BlockNumber(), uint64(ctx.BlockTimestamp())
}
