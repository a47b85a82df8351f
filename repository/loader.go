// Package repository loads contract artifacts from disk and turns them into
// declarable classes.
package repository

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/govm-net/starksim/abi"
	"github.com/govm-net/starksim/api"
	"github.com/govm-net/starksim/core"
	"github.com/govm-net/starksim/state"
)

var (
	ErrUnsupportedArtifact = errors.New("unsupported artifact")
	ErrInvalidArtifact     = errors.New("invalid artifact")
)

// wasmMagic is the module preamble: "\0asm" followed by version 1.
var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// Artifact is a loaded, validated contract class.
type Artifact struct {
	Class state.Class
	ABI   *abi.ABI
}

// Loader reads contract artifacts relative to a base directory.
type Loader struct {
	baseDir   string
	config    api.ContractConfig
	validator api.IKeywordValidator
	logger    *zap.Logger
}

// NewLoader returns a loader rooted at baseDir. An empty baseDir means the
// working directory.
func NewLoader(baseDir string, config api.ContractConfig, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		baseDir:   baseDir,
		config:    config,
		validator: api.DefaultKeywordValidator,
		logger:    logger,
	}
}

// Resolve returns path joined with the base directory unless it is absolute.
func (l *Loader) Resolve(path string) string {
	if filepath.IsAbs(path) || l.baseDir == "" {
		return path
	}
	return filepath.Join(l.baseDir, path)
}

// Load reads and validates the artifact at path. Go source is validated
// and its ABI extracted; wasm modules need a sidecar "<name>.abi.json".
func (l *Loader) Load(path string) (*Artifact, error) {
	full := l.Resolve(path)
	code, err := readLimited(full, l.config.MaxCodeSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read contract: %w", err)
	}

	var sidecar []byte
	if kindOf(full) == state.ClassWasm {
		sidecar, err = os.ReadFile(SidecarPath(full))
		if err != nil {
			return nil, fmt.Errorf("%w: missing abi for %s: %w", ErrInvalidArtifact, path, err)
		}
	}
	return l.build(path, code, sidecar)
}

// readLimited reads at most limit+1 bytes of the file at path, enough for
// build to tell an oversized file apart. A zero limit reads everything.
func readLimited(path string, limit uint64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, int64(limit)+1)
	}
	return io.ReadAll(r)
}

// LoadSource builds an artifact from in-memory Go source.
func (l *Loader) LoadSource(name string, code []byte) (*Artifact, error) {
	if kindOf(name) != state.ClassGo {
		return nil, fmt.Errorf("%w: %s is not Go source", ErrUnsupportedArtifact, name)
	}
	return l.build(name, code, nil)
}

// SidecarPath returns the ABI file that accompanies a wasm module.
func SidecarPath(wasmPath string) string {
	return strings.TrimSuffix(wasmPath, filepath.Ext(wasmPath)) + ".abi.json"
}

func kindOf(path string) state.ClassKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return state.ClassGo
	case ".wasm":
		return state.ClassWasm
	default:
		return ""
	}
}

func (l *Loader) build(path string, code, sidecar []byte) (*Artifact, error) {
	if l.config.MaxCodeSize > 0 && uint64(len(code)) > l.config.MaxCodeSize {
		return nil, fmt.Errorf("%w: code exceeds size limit %d", ErrInvalidArtifact, l.config.MaxCodeSize)
	}

	kind := kindOf(path)
	var (
		contractABI *abi.ABI
		err         error
	)
	switch kind {
	case state.ClassGo:
		if err := l.config.ValidateSource(code, l.validator); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
		}
		contractABI, err = abi.ExtractABI(code)
	case state.ClassWasm:
		if !bytes.HasPrefix(code, wasmMagic) {
			return nil, fmt.Errorf("%w: %s is not a wasm module", ErrInvalidArtifact, path)
		}
		contractABI, err = abi.ParseJSON(sidecar)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedArtifact, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}

	abiJSON, err := contractABI.JSON()
	if err != nil {
		return nil, err
	}
	// keep the decoded form of what gets stored
	if contractABI, err = abi.ParseJSON(abiJSON); err != nil {
		return nil, err
	}
	class := state.Class{
		Hash: ClassHash(kind, code, abiJSON),
		Kind: kind,
		Path: path,
		Code: code,
		ABI:  abiJSON,
	}
	l.logger.Debug("contract loaded",
		zap.String("path", path),
		zap.String("kind", string(kind)),
		zap.String("class_hash", class.Hash.Hex()),
		zap.Int("entry_points", len(contractABI.Functions)),
	)
	return &Artifact{Class: class, ABI: contractABI}, nil
}

// ClassHash identifies a class by its kind, code and ABI. Each part is
// digested on its own so bytes cannot move across part boundaries.
func ClassHash(kind state.ClassKind, code, abiJSON []byte) core.Felt {
	return core.HashFelts(core.Keccak250([]byte(kind)), core.Keccak250(code), core.Keccak250(abiJSON))
}

// DecodeABI parses the ABI stored with a declared class.
func DecodeABI(class *state.Class) (*abi.ABI, error) {
	contractABI, err := abi.ParseJSON(class.ABI)
	if err != nil {
		return nil, fmt.Errorf("class %s: %w", class.Hash.Hex(), err)
	}
	return contractABI, nil
}
