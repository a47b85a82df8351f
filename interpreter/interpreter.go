// Package interpreter runs Go-source contract classes with the yaegi
// interpreter. Each class gets its own interpreter, so package-level
// variables are never shared between classes.
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"github.com/govm-net/starksim/abi"
	"github.com/govm-net/starksim/core"
)

var (
	feltType = reflect.TypeOf(core.Felt{})
)

// Interpreter loads Go contract sources
type Interpreter struct {
	allowed map[string]bool
	logger  *zap.Logger
}

// New returns an interpreter that exposes the standard library packages
// listed in allowedImports, plus core.
func New(allowedImports []string, logger *zap.Logger) *Interpreter {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]bool, len(allowedImports))
	for _, imp := range allowedImports {
		allowed[imp] = true
	}
	return &Interpreter{allowed: allowed, logger: logger}
}

// stdlibSymbols filters yaegi's stdlib table down to the allowed packages.
func (in *Interpreter) stdlibSymbols() interp.Exports {
	out := make(interp.Exports)
	for key, symbols := range stdlib.Symbols {
		idx := strings.LastIndex(key, "/")
		if idx < 0 {
			continue
		}
		if in.allowed[key[:idx]] {
			out[key] = symbols
		}
	}
	return out
}

// Program is an evaluated contract package. Execute may be re-entered on
// the same goroutine by nested contract calls; it must not be called from
// several goroutines at once.
type Program struct {
	interp *interp.Interpreter
	pkg    string
	funcs  map[string]reflect.Value
	logger *zap.Logger
}

// Load evaluates code and resolves every entry point listed in contractABI.
func (in *Interpreter) Load(ctx context.Context, code []byte, contractABI *abi.ABI) (*Program, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(in.stdlibSymbols()); err != nil {
		return nil, fmt.Errorf("failed to load stdlib: %w", err)
	}
	if err := i.Use(Symbols); err != nil {
		return nil, fmt.Errorf("failed to load core symbols: %w", err)
	}

	if _, err := i.EvalWithContext(ctx, string(code)); err != nil {
		return nil, fmt.Errorf("code evaluation failed: %w", err)
	}

	p := &Program{
		interp: i,
		pkg:    contractABI.PackageName,
		funcs:  make(map[string]reflect.Value, len(contractABI.Functions)),
		logger: in.logger,
	}
	for _, fn := range contractABI.Functions {
		v, err := i.Eval(p.pkg + "." + fn.GoName)
		if err != nil {
			return nil, fmt.Errorf("entry point %s not found: %w", fn.GoName, err)
		}
		if v.Kind() != reflect.Func {
			return nil, fmt.Errorf("entry point %s is not a function", fn.GoName)
		}
		p.funcs[fn.Name] = v
	}
	return p, nil
}

// Execute calls fn with calldata. A returned error or a panic becomes a
// revert; errors produced by host syscalls keep their identity.
func (p *Program) Execute(ctx context.Context, host core.Context, fn *abi.Function, calldata []core.Felt) (result []core.Felt, err error) {
	f, ok := p.funcs[fn.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrFunctionNotFound, fn.Name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	args, err := buildArgs(f.Type(), host, fn, calldata)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Debug("contract panic", zap.String("entry_point", fn.Name), zap.Any("panic", r))
			if e, ok := r.(error); ok {
				err = asRevert(e)
				return
			}
			err = core.Revertf("panic: %v", r)
		}
	}()

	out := f.Call(args)
	return collectResults(fn, out)
}

func buildArgs(t reflect.Type, host core.Context, fn *abi.Function, calldata []core.Felt) ([]reflect.Value, error) {
	args := make([]reflect.Value, 0, t.NumIn())
	offset := 0
	if fn.HasContext {
		if t.NumIn() == 0 || t.In(0).Kind() != reflect.Interface || !reflect.TypeOf(host).Implements(t.In(0)) {
			return nil, fmt.Errorf("%s: first parameter is not core.Context", fn.Name)
		}
		args = append(args, reflect.ValueOf(host).Convert(t.In(0)))
		offset = 1
	}
	if t.NumIn()-offset != len(calldata) {
		return nil, fmt.Errorf("%s: want %d arguments, got %d", fn.Name, t.NumIn()-offset, len(calldata))
	}
	for i, v := range calldata {
		pt := t.In(i + offset)
		switch pt.Kind() {
		case reflect.Uint64:
			args = append(args, reflect.ValueOf(v.Uint64()).Convert(pt))
		case reflect.Bool:
			args = append(args, reflect.ValueOf(!v.IsZero()).Convert(pt))
		default:
			if pt != feltType {
				return nil, fmt.Errorf("%s: unsupported parameter type %s", fn.Name, pt)
			}
			args = append(args, reflect.ValueOf(v))
		}
	}
	return args, nil
}

func collectResults(fn *abi.Function, out []reflect.Value) ([]core.Felt, error) {
	if fn.ReturnsError && len(out) > 0 {
		last := out[len(out)-1]
		out = out[:len(out)-1]
		if !last.IsNil() {
			err, _ := last.Interface().(error)
			return nil, asRevert(err)
		}
	}
	result := make([]core.Felt, 0, len(out))
	for _, v := range out {
		switch v.Kind() {
		case reflect.Uint64:
			result = append(result, core.FeltFromUint64(v.Uint()))
		case reflect.Bool:
			if v.Bool() {
				result = append(result, core.One)
			} else {
				result = append(result, core.Zero)
			}
		default:
			f, ok := v.Interface().(core.Felt)
			if !ok {
				return nil, fmt.Errorf("%s: unsupported result type %s", fn.Name, v.Type())
			}
			result = append(result, f)
		}
	}
	return result, nil
}

// asRevert wraps plain contract errors as reverts. Reverts and syscall
// failures keep their identity.
func asRevert(err error) error {
	if err == nil {
		return core.Revert("unknown error")
	}
	var se *core.SyscallError
	if errors.Is(err, core.ErrReverted) || errors.As(err, &se) {
		return err
	}
	return core.Revert(err.Error())
}

// Close releases nothing; interpreters are garbage collected.
func (p *Program) Close(context.Context) error {
	return nil
}
