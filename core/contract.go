package core

import (
	"errors"
	"fmt"
)

// Common errors that can be returned by contracts and the simulator.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrUnauthorized       = errors.New("unauthorized operation")
	ErrContractNotFound   = errors.New("contract not found")
	ErrFunctionNotFound   = errors.New("function not found")
	ErrReverted           = errors.New("execution reverted")
	ErrValueOutOfRange    = errors.New("value out of range")
	ErrUnsupportedSyscall = errors.New("unsupported syscall")
)

// RevertError is returned when a contract rejects a call.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	return "execution reverted: " + e.Reason
}

// Is makes errors.Is(err, ErrReverted) true for every RevertError.
func (e *RevertError) Is(target error) bool {
	return target == ErrReverted
}

// Revert returns a RevertError carrying reason.
func Revert(reason string) error {
	return &RevertError{Reason: reason}
}

// Revertf formats a revert reason.
func Revertf(format string, args ...any) error {
	return &RevertError{Reason: fmt.Sprintf(format, args...)}
}

// Require returns a revert with reason when cond is false.
func Require(cond bool, reason string) error {
	if cond {
		return nil
	}
	return Revert(reason)
}

// SyscallError is returned by Context methods when the simulator fails a
// syscall (gas exhausted, write in a view, cancelled execution). Contracts
// should return it unchanged.
type SyscallError struct {
	Err error
}

func (e *SyscallError) Error() string {
	return e.Err.Error()
}

func (e *SyscallError) Unwrap() error {
	return e.Err
}
