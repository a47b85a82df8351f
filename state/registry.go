package state

import (
	"fmt"
	"sort"
	"sync"
)

// BackendType names a Backend implementation
type BackendType string

const (
	// MemoryBackend keeps state in maps
	MemoryBackend BackendType = "memory"
	// SQLiteBackend stores state with gorm on SQLite
	SQLiteBackend BackendType = "sqlite"
	// BadgerBackend stores state in a badger key/value store
	BadgerBackend BackendType = "badger"
)

// ParamPath is the constructor parameter holding a file or directory path.
// Backends fall back to in-memory storage when it is empty.
const ParamPath = "db_path"

// Constructor creates a new Backend instance
type Constructor func(params map[string]any) (Backend, error)

// Registry defines the interface for managing Backend implementations
type Registry interface {
	// Register adds a new Backend implementation to the registry
	Register(bt BackendType, constructor Constructor) error
	// SetDefault sets the default backend type
	SetDefault(bt BackendType) error
	// Open returns a new instance of the specified backend type
	Open(bt BackendType, params map[string]any) (Backend, error)
	// DefaultBackendType returns the current default backend type
	DefaultBackendType() BackendType
	// ListRegistered returns the registered backend types in sorted order
	ListRegistered() []BackendType
}

// registry implements the Registry interface
type registry struct {
	mu        sync.RWMutex
	backends  map[BackendType]Constructor
	defaultBt BackendType
}

// defaultRegistry is the global singleton registry instance
var defaultRegistry Registry = NewRegistry()

// NewRegistry returns an empty registry.
func NewRegistry() Registry {
	return &registry{backends: make(map[BackendType]Constructor)}
}

// GetRegistry returns the global Registry instance
func GetRegistry() Registry {
	return defaultRegistry
}

func (r *registry) Register(bt BackendType, constructor Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[bt]; exists {
		return fmt.Errorf("backend type %s already registered", bt)
	}
	r.backends[bt] = constructor
	return nil
}

func (r *registry) SetDefault(bt BackendType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[bt]; !exists {
		return fmt.Errorf("backend type %s not registered", bt)
	}
	r.defaultBt = bt
	return nil
}

func (r *registry) Open(bt BackendType, params map[string]any) (Backend, error) {
	if bt == "" {
		bt = r.DefaultBackendType()
	}
	r.mu.RLock()
	constructor, exists := r.backends[bt]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("backend type %s not found", bt)
	}
	if params == nil {
		params = make(map[string]any)
	}
	backend, err := constructor(params)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", bt, err)
	}
	return backend, nil
}

func (r *registry) DefaultBackendType() BackendType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defaultBt == "" {
		return MemoryBackend
	}
	return r.defaultBt
}

func (r *registry) ListRegistered() []BackendType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]BackendType, 0, len(r.backends))
	for bt := range r.backends {
		types = append(types, bt)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Package level functions that delegate to defaultRegistry

// Register adds a new Backend implementation to the global registry
func Register(bt BackendType, constructor Constructor) error {
	return GetRegistry().Register(bt, constructor)
}

// SetDefault sets the default backend type
func SetDefault(bt BackendType) error {
	return GetRegistry().SetDefault(bt)
}

// Open returns a new instance of the specified backend type. An empty type
// selects the default.
func Open(bt BackendType, params map[string]any) (Backend, error) {
	return GetRegistry().Open(bt, params)
}

// ListRegistered returns a list of all registered backend types
func ListRegistered() []BackendType {
	return GetRegistry().ListRegistered()
}

// PathParam extracts ParamPath from constructor params.
func PathParam(params map[string]any) string {
	if path, ok := params[ParamPath].(string); ok {
		return path
	}
	return ""
}
