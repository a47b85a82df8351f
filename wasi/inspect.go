package wasi

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// FunctionInfo describes one imported or exported function.
type FunctionInfo struct {
	Module  string   `json:"module,omitempty"`
	Name    string   `json:"name"`
	Params  []string `json:"params"`
	Results []string `json:"results"`
}

func (f FunctionInfo) String() string {
	name := f.Name
	if f.Module != "" {
		name = f.Module + "." + f.Name
	}
	return fmt.Sprintf("%s(%s) -> (%s)", name, strings.Join(f.Params, ", "), strings.Join(f.Results, ", "))
}

// ModuleInfo lists the functions a module imports and exports.
type ModuleInfo struct {
	Imports []FunctionInfo `json:"imports"`
	Exports []FunctionInfo `json:"exports"`
}

// Inspect compiles code without instantiating it and reports its
// function imports and exports.
func Inspect(ctx context.Context, code []byte) (*ModuleInfo, error) {
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to compile WebAssembly module: %w", err)
	}

	info := &ModuleInfo{}
	for _, def := range compiled.ImportedFunctions() {
		module, name, _ := def.Import()
		info.Imports = append(info.Imports, describe(module, name, def))
	}
	for name, def := range compiled.ExportedFunctions() {
		info.Exports = append(info.Exports, describe("", name, def))
	}
	sort.Slice(info.Exports, func(i, j int) bool { return info.Exports[i].Name < info.Exports[j].Name })
	return info, nil
}

func describe(module, name string, def api.FunctionDefinition) FunctionInfo {
	info := FunctionInfo{Module: module, Name: name, Params: []string{}, Results: []string{}}
	for _, t := range def.ParamTypes() {
		info.Params = append(info.Params, api.ValueTypeName(t))
	}
	for _, t := range def.ResultTypes() {
		info.Results = append(info.Results, api.ValueTypeName(t))
	}
	return info
}
