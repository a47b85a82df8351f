package interpreter

import (
	"reflect"

	"github.com/traefik/yaegi/interp"

	"github.com/govm-net/starksim/core"
)

// corePath is the key yaegi resolves `import "github.com/govm-net/starksim/core"` to.
const corePath = "github.com/govm-net/starksim/core/core"

// Symbols exports the core package to interpreted contracts.
var Symbols = interp.Exports{
	corePath: {
		// types
		"Context":     reflect.ValueOf((*core.Context)(nil)),
		"Felt":        reflect.ValueOf((*core.Felt)(nil)),
		"StorageVar":  reflect.ValueOf((*core.StorageVar)(nil)),
		"RevertError": reflect.ValueOf((*core.RevertError)(nil)),

		// values
		"Zero":  reflect.ValueOf(&core.Zero).Elem(),
		"One":   reflect.ValueOf(&core.One).Elem(),
		"Prime": reflect.ValueOf(&core.Prime).Elem(),

		"ErrInvalidArgument":    reflect.ValueOf(&core.ErrInvalidArgument).Elem(),
		"ErrUnauthorized":       reflect.ValueOf(&core.ErrUnauthorized).Elem(),
		"ErrContractNotFound":   reflect.ValueOf(&core.ErrContractNotFound).Elem(),
		"ErrFunctionNotFound":   reflect.ValueOf(&core.ErrFunctionNotFound).Elem(),
		"ErrReverted":           reflect.ValueOf(&core.ErrReverted).Elem(),
		"ErrValueOutOfRange":    reflect.ValueOf(&core.ErrValueOutOfRange).Elem(),
		"ErrUnsupportedSyscall": reflect.ValueOf(&core.ErrUnsupportedSyscall).Elem(),

		// functions
		"FeltFromUint64": reflect.ValueOf(core.FeltFromUint64),
		"FeltFromInt64":  reflect.ValueOf(core.FeltFromInt64),
		"FeltFromBytes":  reflect.ValueOf(core.FeltFromBytes),
		"ParseFelt":      reflect.ValueOf(core.ParseFelt),
		"MustParseFelt":  reflect.ValueOf(core.MustParseFelt),
		"Keccak250":      reflect.ValueOf(core.Keccak250),
		"HashFelts":      reflect.ValueOf(core.HashFelts),
		"Selector":       reflect.ValueOf(core.Selector),
		"NewStorageVar":  reflect.ValueOf(core.NewStorageVar),
		"Revert":         reflect.ValueOf(core.Revert),
		"Revertf":        reflect.ValueOf(core.Revertf),
		"Require":        reflect.ValueOf(core.Require),
	},
}
