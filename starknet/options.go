package starknet

import (
	"time"

	"go.uber.org/zap"

	"github.com/govm-net/starksim/api"
	"github.com/govm-net/starksim/core"
	"github.com/govm-net/starksim/state"
)

// DefaultGenesisTime is the timestamp of block 0 unless overridden.
var DefaultGenesisTime = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// DefaultCaller is the account that sends transactions unless overridden.
var DefaultCaller = core.One

type options struct {
	backendType   state.BackendType
	backendParams map[string]any
	logger        *zap.Logger
	contract      api.ContractConfig
	baseDir       string
	genesis       time.Time
	blockTime     time.Duration
	caller        core.Felt
}

func defaultOptions() options {
	return options{
		backendType: state.MemoryBackend,
		logger:      zap.NewNop(),
		contract:    api.DefaultContractConfig(),
		genesis:     DefaultGenesisTime,
		blockTime:   time.Second,
		caller:      DefaultCaller,
	}
}

// Option configures a simulation.
type Option func(*options)

// WithBackend selects the state backend and its parameters.
func WithBackend(bt state.BackendType, params map[string]any) Option {
	return func(o *options) {
		o.backendType = bt
		o.backendParams = params
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithContractConfig sets the limits applied to declared classes and
// executions.
func WithContractConfig(config api.ContractConfig) Option {
	return func(o *options) {
		o.contract = config
	}
}

// WithBaseDir sets the directory contract paths are resolved against.
func WithBaseDir(dir string) Option {
	return func(o *options) {
		o.baseDir = dir
	}
}

// WithGenesisTime sets the timestamp of block 0.
func WithGenesisTime(t time.Time) Option {
	return func(o *options) {
		o.genesis = t
	}
}

// WithBlockTime sets the time between consecutive blocks.
func WithBlockTime(d time.Duration) Option {
	return func(o *options) {
		o.blockTime = d
	}
}

// WithCaller sets the account that sends transactions.
func WithCaller(caller core.Felt) Option {
	return func(o *options) {
		o.caller = caller
	}
}
