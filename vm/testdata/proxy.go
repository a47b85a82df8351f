package proxy

import (
	"errors"

	"github.com/govm-net/starksim/core"
)

func Forward(ctx core.Context, target core.Felt, by core.Felt) error {
	_, err := ctx.CallContract(target, "increment", []core.Felt{by})
	return err
}

func TryIncrement(ctx core.Context, target core.Felt, by core.Felt) (bool, error) {
	_, err := ctx.CallContract(target, "increment_then_fail", []core.Felt{by})
	if errors.Is(err, core.ErrReverted) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func Recurse(ctx core.Context) error {
	_, err := ctx.CallContract(ctx.ContractAddress(), "recurse", nil)
	return err
}

//contract:view
func ReadCount(ctx core.Context, target core.Felt) (core.Felt, error) {
	out, err := ctx.CallContract(target, "get", nil)
	if err != nil {
		return core.Zero, err
	}
	return out[0], nil
}

//contract:view
func ForwardInView(ctx core.Context, target core.Felt) error {
	_, err := ctx.CallContract(target, "increment", []core.Felt{core.One})
	return err
}

//contract:view
func WhoCalls(ctx core.Context, target core.Felt) (core.Felt, error) {
	out, err := ctx.CallContract(target, "caller", nil)
	if err != nil {
		return core.Zero, err
	}
	return out[0], nil
}
