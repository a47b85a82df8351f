package vm

import (
	"errors"
	"fmt"
)

// Gas charged per operation.
const (
	GasEntryPoint   uint64 = 10
	GasStorageRead  uint64 = 10
	GasStorageWrite uint64 = 50
	GasEvent        uint64 = 20
	GasCall         uint64 = 30
)

var ErrOutOfGas = errors.New("out of gas")

// GasMeter tracks the gas of one transaction. The zero limit means
// unlimited.
type GasMeter struct {
	limit uint64
	used  uint64
}

// NewGasMeter returns a meter allowing limit units.
func NewGasMeter(limit uint64) *GasMeter {
	return &GasMeter{limit: limit}
}

// Consume charges amount. Nothing is charged when the limit would be
// exceeded.
func (g *GasMeter) Consume(amount uint64) error {
	if g.limit > 0 && g.used+amount > g.limit {
		return fmt.Errorf("%w: limit=%d, used=%d, need=%d", ErrOutOfGas, g.limit, g.used, amount)
	}
	g.used += amount
	return nil
}

// Used returns the gas consumed so far.
func (g *GasMeter) Used() uint64 {
	return g.used
}

// Remaining returns the gas left, or 0 for an unlimited meter.
func (g *GasMeter) Remaining() uint64 {
	if g.limit == 0 {
		return 0
	}
	return g.limit - g.used
}
