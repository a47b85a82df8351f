// Package abi describes the entry points of a contract class: it extracts
// them from Go contract source, reads the JSON sidecar shipped with wasm
// contracts, and encodes named arguments into calldata.
package abi

import (
	"encoding/json"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"strings"

	"github.com/govm-net/starksim/core"
)

// Kind classifies an entry point.
type Kind string

const (
	KindExternal    Kind = "external"
	KindView        Kind = "view"
	KindConstructor Kind = "constructor"
)

// Parameter types understood by the simulator.
const (
	TypeFelt = "felt"
	TypeU64  = "u64"
	TypeBool = "bool"
)

// ViewDirective marks an exported function as a read-only entry point.
const ViewDirective = "//contract:view"

// ConstructorName is the Go name of the optional constructor.
const ConstructorName = "Constructor"

var (
	ErrInvalidABI      = errors.New("invalid abi")
	ErrUnsupportedType = errors.New("unsupported type")
)

// ABI represents the Application Binary Interface of a contract
type ABI struct {
	PackageName string     `json:"package_name,omitempty"`
	Functions   []Function `json:"functions"`
	Events      []Event    `json:"events,omitempty"`
}

// Function represents an entry point of the contract
type Function struct {
	Name         string      `json:"name"`
	GoName       string      `json:"go_name,omitempty"`
	Kind         Kind        `json:"kind"`
	Inputs       []Parameter `json:"inputs,omitempty"`
	Outputs      []Parameter `json:"outputs,omitempty"`
	HasContext   bool        `json:"has_context,omitempty"`
	ReturnsError bool        `json:"returns_error,omitempty"`
}

// Event represents a contract event (from core.Context.EmitEvent calls)
type Event struct {
	Name       string      `json:"name"`
	Parameters []Parameter `json:"parameters,omitempty"`
}

// Parameter represents a function parameter or event field
type Parameter struct {
	Name string `json:"name,omitempty"`
	Type string `json:"type"`
}

// Selector returns the entry point selector.
func (f *Function) Selector() core.Felt {
	return core.Selector(f.Name)
}

// ExtractABI extracts the ABI information from contract code
func ExtractABI(code []byte) (*ABI, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "", code, parser.AllErrors|parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract: %w", err)
	}

	abi := &ABI{
		PackageName: file.Name.Name,
		Functions:   make([]Function, 0),
		Events:      make([]Event, 0),
	}
	coreName := coreImportName(file)
	seenEvents := make(map[string]bool)

	for _, decl := range file.Decls {
		funcDecl, ok := decl.(*ast.FuncDecl)
		if !ok || funcDecl.Recv != nil || !funcDecl.Name.IsExported() {
			continue
		}

		function, err := extractFunction(funcDecl, coreName)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fset.Position(funcDecl.Pos()), err)
		}
		abi.Functions = append(abi.Functions, function)

		for _, event := range extractEventsFromFunction(funcDecl) {
			if seenEvents[event.Name] {
				continue
			}
			seenEvents[event.Name] = true
			abi.Events = append(abi.Events, event)
		}
	}

	if err := abi.Validate(); err != nil {
		return nil, err
	}
	return abi, nil
}

// coreImportName returns the local name the file uses for the core package.
func coreImportName(file *ast.File) string {
	for _, imp := range file.Imports {
		path, _ := strconv.Unquote(imp.Path.Value)
		if path != "github.com/govm-net/starksim/core" {
			continue
		}
		if imp.Name != nil {
			return imp.Name.Name
		}
		return "core"
	}
	return "core"
}

func extractFunction(funcDecl *ast.FuncDecl, coreName string) (Function, error) {
	function := Function{
		Name:   SnakeCase(funcDecl.Name.Name),
		GoName: funcDecl.Name.Name,
		Kind:   KindExternal,
	}
	switch {
	case funcDecl.Name.Name == ConstructorName:
		function.Kind = KindConstructor
		function.Name = string(KindConstructor)
	case hasDirective(funcDecl.Doc, ViewDirective):
		function.Kind = KindView
	}

	if funcDecl.Type.Params != nil {
		fields := funcDecl.Type.Params.List
		if len(fields) > 0 && getTypeString(fields[0].Type) == coreName+".Context" {
			if len(fields[0].Names) > 1 {
				return function, fmt.Errorf("%w: %s takes more than one context", ErrInvalidABI, function.GoName)
			}
			function.HasContext = true
			fields = fields[1:]
		}
		inputs, err := extractParameters(fields, coreName)
		if err != nil {
			return function, fmt.Errorf("%s: %w", function.GoName, err)
		}
		function.Inputs = inputs
	}

	if funcDecl.Type.Results != nil {
		fields := funcDecl.Type.Results.List
		if n := len(fields); n > 0 && getTypeString(fields[n-1].Type) == "error" && len(fields[n-1].Names) <= 1 {
			function.ReturnsError = true
			fields = fields[:n-1]
		}
		outputs, err := extractParameters(fields, coreName)
		if err != nil {
			return function, fmt.Errorf("%s: %w", function.GoName, err)
		}
		function.Outputs = outputs
	}

	return function, nil
}

func hasDirective(doc *ast.CommentGroup, directive string) bool {
	if doc == nil {
		return false
	}
	for _, c := range doc.List {
		if strings.TrimSpace(c.Text) == directive {
			return true
		}
	}
	return false
}

// extractEventsFromFunction extracts events from a function's body
func extractEventsFromFunction(funcDecl *ast.FuncDecl) []Event {
	events := make([]Event, 0)
	if funcDecl.Body == nil {
		return events
	}

	ast.Inspect(funcDecl.Body, func(node ast.Node) bool {
		callExpr, ok := node.(*ast.CallExpr)
		if !ok {
			return true
		}

		selExpr, ok := callExpr.Fun.(*ast.SelectorExpr)
		if !ok || selExpr.Sel.Name != "EmitEvent" || len(callExpr.Args) < 1 {
			return true
		}

		// First argument should be the event name
		eventName, ok := callExpr.Args[0].(*ast.BasicLit)
		if !ok || eventName.Kind != token.STRING {
			return true
		}
		name, err := strconv.Unquote(eventName.Value)
		if err != nil {
			return true
		}

		event := Event{Name: name, Parameters: make([]Parameter, 0)}
		for i, arg := range callExpr.Args[1:] {
			paramName := fmt.Sprintf("data%d", i)
			if ident, ok := arg.(*ast.Ident); ok {
				paramName = SnakeCase(ident.Name)
			}
			event.Parameters = append(event.Parameters, Parameter{Name: paramName, Type: TypeFelt})
		}
		events = append(events, event)
		return true
	})

	return events
}

// extractParameters extracts parameter information from a field list
func extractParameters(fields []*ast.Field, coreName string) ([]Parameter, error) {
	params := make([]Parameter, 0)
	for _, field := range fields {
		goType := getTypeString(field.Type)
		typ, err := abiType(goType, coreName)
		if err != nil {
			return nil, err
		}

		if len(field.Names) == 0 {
			params = append(params, Parameter{Type: typ})
			continue
		}
		for _, name := range field.Names {
			params = append(params, Parameter{Name: SnakeCase(name.Name), Type: typ})
		}
	}
	return params, nil
}

func abiType(goType, coreName string) (string, error) {
	switch goType {
	case coreName + ".Felt":
		return TypeFelt, nil
	case "uint64":
		return TypeU64, nil
	case "bool":
		return TypeBool, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnsupportedType, goType)
	}
}

// getTypeString converts an ast.Expr to its string representation
func getTypeString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + getTypeString(t.X)
	case *ast.ArrayType:
		if t.Len == nil {
			return "[]" + getTypeString(t.Elt)
		}
		return fmt.Sprintf("[%s]%s", getTypeString(t.Len), getTypeString(t.Elt))
	case *ast.BasicLit:
		return t.Value
	case *ast.SelectorExpr:
		return fmt.Sprintf("%s.%s", getTypeString(t.X), t.Sel.Name)
	case *ast.MapType:
		return fmt.Sprintf("map[%s]%s", getTypeString(t.Key), getTypeString(t.Value))
	case *ast.InterfaceType:
		return "interface{}"
	case *ast.StructType:
		return "struct{}"
	default:
		return fmt.Sprintf("%T", t)
	}
}

// Validate checks entry point names, kinds and parameter types.
func (abi *ABI) Validate() error {
	seen := make(map[string]bool, len(abi.Functions))
	constructors := 0
	for _, fn := range abi.Functions {
		if fn.Name == "" {
			return fmt.Errorf("%w: function without a name", ErrInvalidABI)
		}
		if seen[fn.Name] {
			return fmt.Errorf("%w: duplicate entry point %q", ErrInvalidABI, fn.Name)
		}
		seen[fn.Name] = true

		switch fn.Kind {
		case KindExternal, KindView:
		case KindConstructor:
			constructors++
		default:
			return fmt.Errorf("%w: entry point %q has unknown kind %q", ErrInvalidABI, fn.Name, fn.Kind)
		}

		for _, p := range append(append([]Parameter{}, fn.Inputs...), fn.Outputs...) {
			switch p.Type {
			case TypeFelt, TypeU64, TypeBool:
			default:
				return fmt.Errorf("%w: entry point %q: %w %q", ErrInvalidABI, fn.Name, ErrUnsupportedType, p.Type)
			}
		}
	}
	if constructors > 1 {
		return fmt.Errorf("%w: more than one constructor", ErrInvalidABI)
	}
	return nil
}

// ParseJSON decodes and validates a JSON ABI. Functions without a Go name
// get one derived from the entry point name.
func ParseJSON(data []byte) (*ABI, error) {
	var abi ABI
	if err := json.Unmarshal(data, &abi); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidABI, err)
	}
	for i := range abi.Functions {
		fn := &abi.Functions[i]
		if fn.Kind == "" {
			fn.Kind = KindExternal
		}
		if fn.GoName == "" {
			fn.GoName = CamelCase(fn.Name)
		}
	}
	if err := abi.Validate(); err != nil {
		return nil, err
	}
	return &abi, nil
}

// JSON encodes the ABI.
func (abi *ABI) JSON() ([]byte, error) {
	return json.MarshalIndent(abi, "", "  ")
}

// Lookup finds an entry point by its name or its Go name.
func (abi *ABI) Lookup(name string) (*Function, bool) {
	for i := range abi.Functions {
		fn := &abi.Functions[i]
		if fn.Name == name || fn.GoName == name {
			return fn, true
		}
	}
	return nil, false
}

// Constructor returns the constructor, if the class has one.
func (abi *ABI) Constructor() (*Function, bool) {
	for i := range abi.Functions {
		if abi.Functions[i].Kind == KindConstructor {
			return &abi.Functions[i], true
		}
	}
	return nil, false
}

// String returns a string representation of the ABI
func (abi *ABI) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Package: %s\n", abi.PackageName))

	sb.WriteString("\nFunctions:\n")
	for _, fn := range abi.Functions {
		sb.WriteString(fmt.Sprintf("  [%s] %s(", fn.Kind, fn.Name))
		writeParams(&sb, fn.Inputs)
		sb.WriteString(")")

		if len(fn.Outputs) > 0 {
			sb.WriteString(" -> (")
			writeParams(&sb, fn.Outputs)
			sb.WriteString(")")
		}
		sb.WriteString("\n")
	}

	if len(abi.Events) > 0 {
		sb.WriteString("\nEvents:\n")
		for _, event := range abi.Events {
			sb.WriteString(fmt.Sprintf("  %s(", event.Name))
			writeParams(&sb, event.Parameters)
			sb.WriteString(")\n")
		}
	}

	return sb.String()
}

func writeParams(sb *strings.Builder, params []Parameter) {
	for i, p := range params {
		if i > 0 {
			sb.WriteString(", ")
		}
		if p.Name != "" {
			sb.WriteString(fmt.Sprintf("%s: %s", p.Name, p.Type))
		} else {
			sb.WriteString(p.Type)
		}
	}
}
