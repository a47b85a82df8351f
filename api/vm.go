// Package api provides the rules the simulator applies to contract code
// before it is declared. It is not used by contracts directly.
package api

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
)

// Restricted keywords that are not allowed in smart contracts
var RestrictedKeywords = []string{
	"go",      // Prevents concurrent execution
	"select",  // Eliminates channel selection
	"chan",    // No channels between executions
	"recover", // Disallows panic recovery
}

// ContractConfig defines configuration for contract validation and execution
type ContractConfig struct {
	// MaxGas is the maximum amount of gas a single transaction may use
	MaxGas uint64 `yaml:"max_gas"`

	// MaxCallDepth is the maximum depth of contract calls
	MaxCallDepth uint8 `yaml:"max_call_depth"`

	// MaxCodeSize is the maximum size of contract code in bytes
	MaxCodeSize uint64 `yaml:"max_code_size"`

	// AllowedImports contains the packages that can be imported by contracts
	AllowedImports []string `yaml:"allowed_imports"`
}

// CorePackage is the import path of the contract-facing API.
const CorePackage = "github.com/govm-net/starksim/core"

// DefaultContractConfig returns a default configuration for contracts
func DefaultContractConfig() ContractConfig {
	return ContractConfig{
		MaxGas:       1000000,
		MaxCallDepth: 8,
		MaxCodeSize:  1024 * 1024, // 1MB
		AllowedImports: []string{
			CorePackage,
			"errors",
			"fmt",
			"math",
			"strings",
		},
	}
}

// IKeywordValidator inspects one AST node and rejects restricted constructs.
type IKeywordValidator func(node ast.Node) error

var DefaultKeywordValidator IKeywordValidator = func(node ast.Node) error {
	if node == nil {
		return nil
	}
	switch n := node.(type) {
	case *ast.GoStmt:
		return fmt.Errorf("restricted keyword 'go' is not allowed")
	case *ast.SelectStmt:
		return fmt.Errorf("restricted keyword 'select' is not allowed")
	case *ast.ChanType:
		return fmt.Errorf("restricted keyword 'chan' is not allowed")
	case *ast.CallExpr:
		if ident, ok := n.Fun.(*ast.Ident); ok && ident.Name == "recover" {
			return fmt.Errorf("restricted keyword 'recover' is not allowed")
		}
	}
	return nil
}

// ValidateSource parses Go contract source and checks it against the
// import allow-list and the keyword validator.
func (c ContractConfig) ValidateSource(code []byte, validate IKeywordValidator) error {
	if c.MaxCodeSize > 0 && uint64(len(code)) > c.MaxCodeSize {
		return fmt.Errorf("contract code size %d exceeds limit %d", len(code), c.MaxCodeSize)
	}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "contract.go", code, parser.ParseComments)
	if err != nil {
		return fmt.Errorf("failed to parse contract: %w", err)
	}

	allowed := make(map[string]bool, len(c.AllowedImports))
	for _, imp := range c.AllowedImports {
		allowed[imp] = true
	}
	for _, imp := range file.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			return fmt.Errorf("invalid import %s: %w", imp.Path.Value, err)
		}
		if !allowed[path] {
			return fmt.Errorf("import %q is not allowed", path)
		}
	}

	if validate == nil {
		validate = DefaultKeywordValidator
	}
	var verr error
	ast.Inspect(file, func(n ast.Node) bool {
		if verr != nil {
			return false
		}
		if err := validate(n); err != nil {
			verr = fmt.Errorf("%s: %w", fset.Position(n.Pos()), err)
			return false
		}
		return true
	})
	return verr
}
