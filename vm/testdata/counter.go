package counter

import "github.com/govm-net/starksim/core"

var count = core.NewStorageVar("count")

func Constructor(ctx core.Context, initial core.Felt) error {
	return count.Write(ctx, initial)
}

func Increment(ctx core.Context, by core.Felt) error {
	current, err := count.Read(ctx)
	if err != nil {
		return err
	}
	if err := count.Write(ctx, current.Add(by)); err != nil {
		return err
	}
	return ctx.EmitEvent("incremented", by)
}

func IncrementThenFail(ctx core.Context, by core.Felt) error {
	if err := Increment(ctx, by); err != nil {
		return err
	}
	return core.Revert("failed after write")
}

//contract:view
func Get(ctx core.Context) (core.Felt, error) {
	return count.Read(ctx)
}

//contract:view
func Poke(ctx core.Context) error {
	return count.Write(ctx, core.One)
}

//contract:view
func Caller(ctx core.Context) (core.Felt, error) {
	return ctx.CallerAddress(), nil
}
