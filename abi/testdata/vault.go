package vault

import "github.com/govm-net/starksim/core"

var balance = core.NewStorageVar("balance")

// Constructor credits the deployer with the initial balance.
func Constructor(ctx core.Context, initial core.Felt) error {
	return balance.Write(ctx, initial, ctx.CallerAddress())
}

// Deposit adds amount to the caller's balance.
func Deposit(ctx core.Context, amount core.Felt) error {
	who := ctx.CallerAddress()
	current, err := balance.Read(ctx, who)
	if err != nil {
		return err
	}
	if err := balance.Write(ctx, current.Add(amount), who); err != nil {
		return err
	}
	return ctx.EmitEvent("deposited", who, amount)
}

// BalanceOf returns the balance held by who.
//
//contract:view
func BalanceOf(ctx core.Context, who core.Felt) (core.Felt, error) {
	return balance.Read(ctx, who)
}

//contract:view
func IsEnabled(flag bool, limit uint64) bool {
	return flag && limit > 0
}

func helper() {}
