// Package amm is an automated market maker pool holding two tokens. Only
// pool initialisation and balance reads are provided.
package amm

import "github.com/govm-net/starksim/core"

// Token types identifying the two sides of the pool.
const (
	TokenTypeA uint64 = 1
	TokenTypeB uint64 = 2
)

// PoolUpperBound bounds every pool balance.
const PoolUpperBound uint64 = 1 << 30

// poolBalance maps a token type to the pool's balance of it.
var poolBalance = core.NewStorageVar("pool_balance")

func checkTokenType(tokenType core.Felt) error {
	if tokenType != core.FeltFromUint64(TokenTypeA) && tokenType != core.FeltFromUint64(TokenTypeB) {
		return core.Revertf("unknown token type %s", tokenType.String())
	}
	return nil
}

func checkAmount(amount core.Felt) error {
	return core.Require(amount.Lt(core.FeltFromUint64(PoolUpperBound)), "amount exceeds pool upper bound")
}

// InitPool sets the pool balances of both tokens, replacing any previous
// balances.
func InitPool(ctx core.Context, tokenA, tokenB core.Felt) error {
	if err := checkAmount(tokenA); err != nil {
		return err
	}
	if err := checkAmount(tokenB); err != nil {
		return err
	}
	if err := poolBalance.Write(ctx, tokenA, core.FeltFromUint64(TokenTypeA)); err != nil {
		return err
	}
	if err := poolBalance.Write(ctx, tokenB, core.FeltFromUint64(TokenTypeB)); err != nil {
		return err
	}
	return ctx.EmitEvent("pool_initialized", tokenA, tokenB)
}

// GetPoolTokenBalance returns the pool balance of tokenType.
//
//contract:view
func GetPoolTokenBalance(ctx core.Context, tokenType core.Felt) (core.Felt, error) {
	if err := checkTokenType(tokenType); err != nil {
		return core.Zero, err
	}
	return poolBalance.Read(ctx, tokenType)
}
