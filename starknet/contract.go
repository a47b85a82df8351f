package starknet

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/govm-net/starksim/abi"
	"github.com/govm-net/starksim/core"
	"github.com/govm-net/starksim/state"
	"github.com/govm-net/starksim/types"
	"github.com/govm-net/starksim/vm"
)

// Contract is a handle to a deployed contract. It is only valid while its
// simulation is open.
type Contract struct {
	sim *Starknet

	Address   core.Felt
	ClassHash core.Felt
	ABI       *abi.ABI
	// DeployReceipt is set on handles returned by Deploy.
	DeployReceipt types.Receipt
}

// ExecutionInfo is the outcome of Invoke or Call.
type ExecutionInfo struct {
	Result    []core.Felt              `json:"result"`
	Events    []types.Event            `json:"events"`
	Resources types.ExecutionResources `json:"execution_resources"`
	// TxHash and BlockNumber are set for invokes only.
	TxHash      core.Felt `json:"transaction_hash"`
	BlockNumber uint64    `json:"block_number"`
}

func (c *Contract) encode(entryPoint string, args abi.Args) (*abi.Function, []core.Felt, error) {
	fn, ok := c.ABI.Lookup(entryPoint)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", vm.ErrEntryPointNotFound, entryPoint)
	}
	calldata, err := fn.EncodeArgs(args)
	if err != nil {
		return nil, nil, err
	}
	return fn, calldata, nil
}

// Invoke runs a state-changing entry point with named arguments. On
// success its writes and a receipt are committed as a new block; on
// rejection nothing changes.
func (c *Contract) Invoke(ctx context.Context, entryPoint string, args abi.Args) (*ExecutionInfo, error) {
	fn, calldata, err := c.encode(entryPoint, args)
	if err != nil {
		return nil, err
	}
	return c.InvokeRaw(ctx, fn.Name, calldata)
}

// InvokeRaw is Invoke with encoded calldata.
func (c *Contract) InvokeRaw(ctx context.Context, entryPoint string, calldata []core.Felt) (*ExecutionInfo, error) {
	s := c.sim
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	header, err := s.next()
	if err != nil {
		return nil, err
	}
	overlay := state.NewOverlay(s.backend)
	tx := vm.Tx{Type: types.TxInvoke, Caller: s.caller, Block: header}
	res, err := s.engine.Execute(ctx, tx, overlay, c.Address, entryPoint, calldata)
	if err != nil {
		s.logger.Info("transaction rejected",
			zap.String("contract", c.Address.Hex()),
			zap.String("entry_point", entryPoint),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %s: %w", ErrTransactionRejected, entryPoint, err)
	}

	name, selector := entryPoint, core.Selector(entryPoint)
	if fn, ok := c.ABI.Lookup(entryPoint); ok {
		name, selector = fn.Name, fn.Selector()
	}
	receipt := types.Receipt{
		TxHash:      txHash(types.TxInvoke, c.Address, selector, header.Number, calldata),
		BlockNumber: header.Number,
		Type:        types.TxInvoke,
		Contract:    c.Address,
		EntryPoint:  name,
		Calldata:    calldata,
		Result:      res.Result,
		Events:      res.Events,
		Resources:   res.Resources,
	}
	if err := s.backend.Commit(overlay.Block(header, receipt)); err != nil {
		return nil, err
	}
	s.logger.Debug("transaction accepted",
		zap.String("tx_hash", receipt.TxHash.Hex()),
		zap.String("entry_point", entryPoint),
		zap.Uint64("block", header.Number),
		zap.Uint64("gas_used", res.Resources.GasUsed),
	)
	return &ExecutionInfo{
		Result:      res.Result,
		Events:      res.Events,
		Resources:   res.Resources,
		TxHash:      receipt.TxHash,
		BlockNumber: header.Number,
	}, nil
}

// Call runs an entry point against the latest state and discards its
// effects.
func (c *Contract) Call(ctx context.Context, entryPoint string, args abi.Args) (*ExecutionInfo, error) {
	fn, calldata, err := c.encode(entryPoint, args)
	if err != nil {
		return nil, err
	}
	return c.CallRaw(ctx, fn.Name, calldata)
}

// CallRaw is Call with encoded calldata.
func (c *Contract) CallRaw(ctx context.Context, entryPoint string, calldata []core.Felt) (*ExecutionInfo, error) {
	s := c.sim
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	latest, err := s.backend.LatestBlock()
	if err != nil {
		return nil, err
	}
	tx := vm.Tx{Caller: s.caller, Block: s.header(latest.Number)}
	res, err := s.engine.Execute(ctx, tx, state.NewOverlay(s.backend), c.Address, entryPoint, calldata)
	if err != nil {
		return nil, err
	}
	return &ExecutionInfo{
		Result:      res.Result,
		Events:      res.Events,
		Resources:   res.Resources,
		BlockNumber: latest.Number,
	}, nil
}
