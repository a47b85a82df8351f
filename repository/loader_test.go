package repository

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govm-net/starksim/abi"
	"github.com/govm-net/starksim/api"
	"github.com/govm-net/starksim/state"
)

func newTestLoader() *Loader {
	return NewLoader("testdata", api.DefaultContractConfig(), nil)
}

func TestLoadGoSource(t *testing.T) {
	art, err := newTestLoader().Load("counter.go")
	require.NoError(t, err)

	assert.Equal(t, state.ClassGo, art.Class.Kind)
	assert.Equal(t, "counter.go", art.Class.Path)
	assert.Equal(t, "counter", art.ABI.PackageName)

	fn, ok := art.ABI.Lookup("get")
	require.True(t, ok)
	assert.Equal(t, abi.KindView, fn.Kind)

	code, err := os.ReadFile(filepath.Join("testdata", "counter.go"))
	require.NoError(t, err)
	assert.Equal(t, ClassHash(state.ClassGo, code, art.Class.ABI), art.Class.Hash)

	decoded, err := DecodeABI(&art.Class)
	require.NoError(t, err)
	assert.Equal(t, art.ABI, decoded)

	// loading twice yields the same class
	again, err := newTestLoader().Load("counter.go")
	require.NoError(t, err)
	assert.Equal(t, art.Class.Hash, again.Class.Hash)
}

func TestLoadWasm(t *testing.T) {
	art, err := newTestLoader().Load("store.wasm")
	require.NoError(t, err)

	assert.Equal(t, state.ClassWasm, art.Class.Kind)
	require.Len(t, art.ABI.Functions, 2)
	fn, ok := art.ABI.Lookup("get")
	require.True(t, ok)
	assert.Equal(t, abi.KindView, fn.Kind)
	assert.Equal(t, "Get", fn.GoName)
}

func TestLoadErrors(t *testing.T) {
	l := newTestLoader()

	_, err := l.Load("missing.go")
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = l.Load("notes.txt")
	assert.ErrorIs(t, err, ErrUnsupportedArtifact)

	_, err = l.Load("forbidden.go")
	assert.ErrorIs(t, err, ErrInvalidArtifact)
	assert.Contains(t, err.Error(), `import "os" is not allowed`)

	_, err = l.Load("nosidecar.wasm")
	assert.ErrorIs(t, err, ErrInvalidArtifact)

	_, err = l.Load("garbage.wasm")
	assert.ErrorIs(t, err, ErrInvalidArtifact)

	cfg := api.DefaultContractConfig()
	cfg.MaxCodeSize = 16
	_, err = NewLoader("testdata", cfg, nil).Load("counter.go")
	assert.ErrorIs(t, err, ErrInvalidArtifact)
}

func TestReadLimited(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.go")
	require.NoError(t, os.WriteFile(path, make([]byte, 4096), 0o600))

	code, err := readLimited(path, 16)
	require.NoError(t, err)
	assert.Len(t, code, 17)

	code, err = readLimited(path, 0)
	require.NoError(t, err)
	assert.Len(t, code, 4096)

	cfg := api.DefaultContractConfig()
	cfg.MaxCodeSize = 4095
	_, err = NewLoader("", cfg, nil).Load(path)
	assert.ErrorIs(t, err, ErrInvalidArtifact)
	assert.Contains(t, err.Error(), "code exceeds size limit 4095")
}

func TestClassHashSeparatesParts(t *testing.T) {
	a := ClassHash(state.ClassGo, []byte("ab"), []byte("c"))
	b := ClassHash(state.ClassGo, []byte("a"), []byte("bc"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, ClassHash(state.ClassGo, []byte("ab"), []byte("c")))
	assert.NotEqual(t, a, ClassHash(state.ClassWasm, []byte("ab"), []byte("c")))
}

func TestLoadSource(t *testing.T) {
	l := NewLoader("", api.DefaultContractConfig(), nil)

	art, err := l.LoadSource("inline.go", []byte("package inline\n\nfunc Ping() bool { return true }\n"))
	require.NoError(t, err)
	assert.Equal(t, "inline", art.ABI.PackageName)

	_, err = l.LoadSource("inline.wasm", []byte{0})
	assert.ErrorIs(t, err, ErrUnsupportedArtifact)
}

func TestResolve(t *testing.T) {
	l := NewLoader("base", api.DefaultContractConfig(), nil)
	assert.Equal(t, filepath.Join("base", "amm.go"), l.Resolve("amm.go"))
	abs, err := filepath.Abs("amm.go")
	require.NoError(t, err)
	assert.Equal(t, abs, l.Resolve(abs))
	assert.Equal(t, filepath.Join("x", "store.abi.json"), SidecarPath(filepath.Join("x", "store.wasm")))
}
