package core

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

// Prime is the order of the STARK field: 2^251 + 17*2^192 + 1.
var Prime = uint256.MustFromHex("0x800000000000011000000000000000000000000000000000000000000000001")

// Felt is an element of the STARK prime field. The zero value is 0.
//
// Felt is a comparable value type, so it can be used as a map key and
// compared with ==.
type Felt struct {
	n uint256.Int
}

// Zero is the additive identity.
var Zero = Felt{}

// One is the multiplicative identity.
var One = FeltFromUint64(1)

// FeltFromUint64 returns v as a field element.
func FeltFromUint64(v uint64) Felt {
	var f Felt
	f.n.SetUint64(v)
	return f
}

// FeltFromInt64 returns v as a field element. Negative values map to P-|v|.
func FeltFromInt64(v int64) Felt {
	if v >= 0 {
		return FeltFromUint64(uint64(v))
	}
	// -MinInt64 overflows int64, so negate in uint64 space
	return Zero.Sub(FeltFromUint64(uint64(-(v + 1)) + 1))
}

// FeltFromBytes interprets b as a big-endian integer reduced modulo P.
// Inputs longer than 32 bytes keep only the trailing 32 bytes.
func FeltFromBytes(b []byte) Felt {
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	var f Felt
	f.n.SetBytes(b)
	f.n.Mod(&f.n, Prime)
	return f
}

// FeltFromBig reduces b modulo P. Negative values map to P-|b mod P|.
func FeltFromBig(b *big.Int) Felt {
	p := Prime.ToBig()
	r := new(big.Int).Mod(b, p)
	n, _ := uint256.FromBig(r)
	return Felt{n: *n}
}

// ParseFelt parses a decimal or 0x-prefixed hexadecimal string. A leading
// minus sign is allowed for decimal input.
func ParseFelt(s string) (Felt, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, fmt.Errorf("%w: empty felt", ErrInvalidArgument)
	}
	b := new(big.Int)
	var ok bool
	switch {
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		_, ok = b.SetString(s[2:], 16)
	default:
		_, ok = b.SetString(s, 10)
	}
	if !ok {
		return Zero, fmt.Errorf("%w: invalid felt %q", ErrInvalidArgument, s)
	}
	if b.Sign() >= 0 && b.Cmp(Prime.ToBig()) >= 0 {
		return Zero, fmt.Errorf("%w: felt %q out of range", ErrInvalidArgument, s)
	}
	return FeltFromBig(b), nil
}

// MustParseFelt is like ParseFelt but panics on error.
func MustParseFelt(s string) Felt {
	f, err := ParseFelt(s)
	if err != nil {
		panic(err)
	}
	return f
}

// ToFelt converts a Go value into a field element. It accepts Felt, the
// integer kinds, bool, strings (decimal or hex), json.Number and integral
// float64 values as produced by JSON and YAML decoders.
func ToFelt(v any) (Felt, error) {
	switch x := v.(type) {
	case Felt:
		return x, nil
	case *Felt:
		if x == nil {
			return Zero, fmt.Errorf("%w: nil felt", ErrInvalidArgument)
		}
		return *x, nil
	case int:
		return FeltFromInt64(int64(x)), nil
	case int8:
		return FeltFromInt64(int64(x)), nil
	case int16:
		return FeltFromInt64(int64(x)), nil
	case int32:
		return FeltFromInt64(int64(x)), nil
	case int64:
		return FeltFromInt64(x), nil
	case uint:
		return FeltFromUint64(uint64(x)), nil
	case uint8:
		return FeltFromUint64(uint64(x)), nil
	case uint16:
		return FeltFromUint64(uint64(x)), nil
	case uint32:
		return FeltFromUint64(uint64(x)), nil
	case uint64:
		return FeltFromUint64(x), nil
	case bool:
		if x {
			return One, nil
		}
		return Zero, nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return Zero, fmt.Errorf("%w: non-integral value %v", ErrInvalidArgument, x)
		}
		b, _ := big.NewFloat(x).Int(nil)
		return FeltFromBig(b), nil
	case json.Number:
		return ParseFelt(x.String())
	case string:
		return ParseFelt(x)
	case *big.Int:
		return FeltFromBig(x), nil
	default:
		return Zero, fmt.Errorf("%w: cannot convert %T to felt", ErrInvalidArgument, v)
	}
}

// Add returns f+g mod P.
func (f Felt) Add(g Felt) Felt {
	var r Felt
	r.n.AddMod(&f.n, &g.n, Prime)
	return r
}

// Sub returns f-g mod P.
func (f Felt) Sub(g Felt) Felt {
	var r Felt
	if f.n.Cmp(&g.n) >= 0 {
		r.n.Sub(&f.n, &g.n)
		return r
	}
	var d uint256.Int
	d.Sub(&g.n, &f.n)
	r.n.Sub(Prime, &d)
	return r
}

// Mul returns f*g mod P.
func (f Felt) Mul(g Felt) Felt {
	var r Felt
	r.n.MulMod(&f.n, &g.n, Prime)
	return r
}

// Cmp compares the canonical integer representatives of f and g.
func (f Felt) Cmp(g Felt) int {
	return f.n.Cmp(&g.n)
}

// Equal reports whether f and g are the same element.
func (f Felt) Equal(g Felt) bool {
	return f == g
}

// Lt reports whether f < g as integers in [0, P).
func (f Felt) Lt(g Felt) bool {
	return f.n.Lt(&g.n)
}

// IsZero reports whether f is zero.
func (f Felt) IsZero() bool {
	return f.n.IsZero()
}

// IsUint64 reports whether f fits in a uint64.
func (f Felt) IsUint64() bool {
	return f.n.IsUint64()
}

// Uint64 returns the low 64 bits of f.
func (f Felt) Uint64() uint64 {
	return f.n.Uint64()
}

// Big returns f as a new big.Int.
func (f Felt) Big() *big.Int {
	return f.n.ToBig()
}

// Bytes32 returns the big-endian encoding of f.
func (f Felt) Bytes32() [32]byte {
	return f.n.Bytes32()
}

// String returns the decimal representation of f.
func (f Felt) String() string {
	return f.n.Dec()
}

// Hex returns the 0x-prefixed hexadecimal representation of f.
func (f Felt) Hex() string {
	return f.n.Hex()
}

// MarshalText encodes f as a hex string.
func (f Felt) MarshalText() ([]byte, error) {
	return []byte(f.Hex()), nil
}

// UnmarshalText accepts decimal or 0x-prefixed hex.
func (f *Felt) UnmarshalText(text []byte) error {
	v, err := ParseFelt(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Keccak250 returns keccak256 over the concatenation of data, truncated to
// its low 250 bits (StarkNet's sn_keccak).
func Keccak250(data ...[]byte) Felt {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	sum := h.Sum(nil)
	sum[0] &= 0x03
	return FeltFromBytes(sum)
}

// HashFelts is Keccak250 over the 32-byte encodings of fs.
func HashFelts(fs ...Felt) Felt {
	parts := make([][]byte, len(fs))
	for i, f := range fs {
		b := f.Bytes32()
		parts[i] = b[:]
	}
	return Keccak250(parts...)
}

// Selector returns the entry point selector for name.
func Selector(name string) Felt {
	return Keccak250([]byte(name))
}

// FeltsToStrings renders fs in decimal.
func FeltsToStrings(fs []Felt) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.String()
	}
	return out
}
