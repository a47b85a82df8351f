package vm

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/govm-net/starksim/core"
	"github.com/govm-net/starksim/types"
)

var ErrWriteInView = errors.New("storage write in view entry point")

// execution is the state shared by every frame of one transaction.
type execution struct {
	ctx       context.Context
	engine    *Engine
	tx        Tx
	overlay   Overlay
	gas       *GasMeter
	stack     *CallStack
	events    []types.Event
	resources types.ExecutionResources
}

// charge checks for cancellation and consumes gas before a syscall.
func (x *execution) charge(amount uint64) error {
	if err := x.ctx.Err(); err != nil {
		return &core.SyscallError{Err: err}
	}
	if err := x.gas.Consume(amount); err != nil {
		return &core.SyscallError{Err: err}
	}
	return nil
}

// hostContext implements core.Context for one frame.
type hostContext struct {
	exec  *execution
	frame CallFrame
}

var _ core.Context = (*hostContext)(nil)

func (h *hostContext) BlockNumber() uint64        { return h.exec.tx.Block.Number }
func (h *hostContext) BlockTimestamp() int64      { return h.exec.tx.Block.Timestamp }
func (h *hostContext) ContractAddress() core.Felt { return h.frame.Contract }
func (h *hostContext) CallerAddress() core.Felt   { return h.frame.Caller }

func (h *hostContext) StorageRead(address core.Felt) (core.Felt, error) {
	if err := h.exec.charge(GasStorageRead); err != nil {
		return core.Zero, err
	}
	v, err := h.exec.overlay.Storage(h.frame.Contract, address)
	if err != nil {
		return core.Zero, &core.SyscallError{Err: err}
	}
	h.exec.resources.StorageReads++
	return v, nil
}

func (h *hostContext) StorageWrite(address, value core.Felt) error {
	if h.frame.View {
		return &core.SyscallError{Err: ErrWriteInView}
	}
	if err := h.exec.charge(GasStorageWrite); err != nil {
		return err
	}
	h.exec.overlay.SetStorage(h.frame.Contract, address, value)
	h.exec.resources.StorageWrites++
	return nil
}

func (h *hostContext) EmitEvent(name string, data ...core.Felt) error {
	if err := h.exec.charge(GasEvent); err != nil {
		return err
	}
	event := types.Event{
		From: h.frame.Contract,
		Name: name,
		Keys: []core.Felt{core.Selector(name)},
		Data: append([]core.Felt{}, data...),
	}
	h.exec.events = append(h.exec.events, event)
	h.exec.resources.Events++
	h.exec.engine.logger.Debug("contract event",
		zap.String("contract", h.frame.Contract.Hex()),
		zap.String("event", name),
		zap.Strings("data", core.FeltsToStrings(data)),
	)
	return nil
}

// CallContract runs a nested call. A failed callee leaves no writes or
// events behind; its error is handed to the calling contract.
func (h *hostContext) CallContract(contract core.Felt, entryPoint string, calldata []core.Felt) ([]core.Felt, error) {
	if err := h.exec.charge(GasCall); err != nil {
		return nil, err
	}
	snapshot := h.exec.overlay.Snapshot()
	events := len(h.exec.events)

	result, err := h.exec.call(contract, entryPoint, calldata, h.frame.Contract, h.frame.View)
	if err != nil {
		h.exec.overlay.RevertTo(snapshot)
		h.exec.events = h.exec.events[:events]
		var se *core.SyscallError
		if errors.Is(err, core.ErrReverted) || errors.As(err, &se) {
			return nil, err
		}
		return nil, &core.SyscallError{Err: err}
	}
	return result, nil
}
