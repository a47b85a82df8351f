// Package starknet is an in-process contract simulation. A Starknet value
// owns one chain: declared classes, deployed contracts, storage and
// receipts. Transactions are applied one at a time, each as its own block.
package starknet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/govm-net/starksim/abi"
	"github.com/govm-net/starksim/config"
	"github.com/govm-net/starksim/core"
	"github.com/govm-net/starksim/repository"
	"github.com/govm-net/starksim/state"
	"github.com/govm-net/starksim/types"
	"github.com/govm-net/starksim/vm"

	_ "github.com/govm-net/starksim/state/badger"
	_ "github.com/govm-net/starksim/state/memory"
	_ "github.com/govm-net/starksim/state/sqlite"
)

var (
	ErrDeploy              = errors.New("deploy failed")
	ErrTransactionRejected = errors.New("transaction rejected")
	ErrClosed              = errors.New("simulation closed")
)

// contractAddressPrefix domain-separates contract addresses.
var contractAddressPrefix = core.Keccak250([]byte("STARKSIM_CONTRACT_ADDRESS"))

// Starknet is one simulated chain
type Starknet struct {
	id        string
	backend   state.Backend
	engine    *vm.Engine
	loader    *repository.Loader
	logger    *zap.Logger
	caller    core.Felt
	genesis   time.Time
	blockTime time.Duration

	mu     sync.Mutex
	closed bool
}

// Empty creates a simulation with no classes and no contracts, at block 0
// unless the backend already holds state.
func Empty(ctx context.Context, opts ...Option) (*Starknet, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	backend, err := state.Open(o.backendType, o.backendParams)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", o.backendType, err)
	}
	id := uuid.NewString()
	logger := o.logger.With(zap.String("simulation", id))

	engine, err := vm.NewEngine(ctx, o.contract, logger)
	if err != nil {
		return nil, multierr.Append(err, backend.Close())
	}

	logger.Debug("simulation created", zap.String("backend", string(o.backendType)))
	return &Starknet{
		id:        id,
		backend:   backend,
		engine:    engine,
		loader:    repository.NewLoader(o.baseDir, o.contract, logger),
		logger:    logger,
		caller:    o.caller,
		genesis:   o.genesis,
		blockTime: o.blockTime,
	}, nil
}

// Open creates a simulation from a configuration file. opts are applied
// after the configuration.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Starknet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	caller, err := cfg.CallerFelt()
	if err != nil {
		return nil, err
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	base := []Option{
		WithBackend(state.BackendType(cfg.Backend.Type), cfg.BackendParams()),
		WithContractConfig(cfg.Contract),
		WithBaseDir(cfg.BaseDir),
		WithCaller(caller),
		WithLogger(logger),
	}
	if cfg.GenesisTime != 0 {
		base = append(base, WithGenesisTime(time.Unix(cfg.GenesisTime, 0).UTC()))
	}
	return Empty(ctx, append(base, opts...)...)
}

// ID identifies the simulation in logs.
func (s *Starknet) ID() string {
	return s.id
}

// Caller returns the account that sends transactions.
func (s *Starknet) Caller() core.Felt {
	return s.caller
}

// header returns the header of block number.
func (s *Starknet) header(number uint64) state.BlockHeader {
	ts := s.genesis.Add(time.Duration(number) * s.blockTime)
	return state.BlockHeader{Number: number, Timestamp: ts.Unix()}
}

// next returns the header of the block the next transaction lands in.
func (s *Starknet) next() (state.BlockHeader, error) {
	latest, err := s.backend.LatestBlock()
	if err != nil {
		return state.BlockHeader{}, err
	}
	return s.header(latest.Number + 1), nil
}

// Declare loads the artifact at path and declares its class. Declaring a
// known class is a no-op.
func (s *Starknet) Declare(ctx context.Context, path string) (core.Felt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.Zero, ErrClosed
	}

	art, err := s.loader.Load(path)
	if err != nil {
		return core.Zero, err
	}
	if _, err := s.backend.Class(art.Class.Hash); err == nil {
		return art.Class.Hash, nil
	} else if !errors.Is(err, state.ErrClassNotFound) {
		return core.Zero, err
	}

	header, err := s.next()
	if err != nil {
		return core.Zero, err
	}
	overlay := state.NewOverlay(s.backend)
	overlay.DeclareClass(art.Class)
	if err := s.backend.Commit(overlay.Block(header)); err != nil {
		return core.Zero, err
	}
	s.logger.Info("class declared",
		zap.String("path", path),
		zap.String("class_hash", art.Class.Hash.Hex()),
		zap.Uint64("block", header.Number),
	)
	return art.Class.Hash, nil
}

// Deploy declares the artifact at path if needed, deploys an instance and
// runs its constructor with calldata.
func (s *Starknet) Deploy(ctx context.Context, path string, calldata []core.Felt) (*Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	art, err := s.loader.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDeploy, path, err)
	}
	c, err := s.deploy(ctx, art, calldata)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDeploy, path, err)
	}
	return c, nil
}

func (s *Starknet) deploy(ctx context.Context, art *repository.Artifact, calldata []core.Felt) (*Contract, error) {
	header, err := s.next()
	if err != nil {
		return nil, err
	}
	salt := core.FeltFromUint64(header.Number)
	address := ContractAddress(art.Class.Hash, s.caller, salt, calldata)

	overlay := state.NewOverlay(s.backend)
	overlay.DeclareClass(art.Class)
	if err := overlay.DeployContract(state.Contract{
		Address:    address,
		ClassHash:  art.Class.Hash,
		DeployedAt: header.Number,
	}); err != nil {
		return nil, err
	}

	receipt := types.Receipt{
		BlockNumber: header.Number,
		Type:        types.TxDeploy,
		Contract:    address,
		Calldata:    calldata,
	}
	selector := core.Selector(string(abi.KindConstructor))
	if ctor, ok := art.ABI.Constructor(); ok {
		selector = ctor.Selector()
		tx := vm.Tx{Type: types.TxDeploy, Caller: s.caller, Block: header}
		res, err := s.engine.Execute(ctx, tx, overlay, address, ctor.Name, calldata)
		if err != nil {
			return nil, fmt.Errorf("constructor: %w", err)
		}
		receipt.EntryPoint = ctor.Name
		receipt.Result = res.Result
		receipt.Events = res.Events
		receipt.Resources = res.Resources
	} else if len(calldata) > 0 {
		return nil, fmt.Errorf("%w: class has no constructor but got %d calldata elements", abi.ErrCalldataLength, len(calldata))
	}

	receipt.TxHash = txHash(types.TxDeploy, address, selector, header.Number, calldata)
	if err := s.backend.Commit(overlay.Block(header, receipt)); err != nil {
		return nil, err
	}
	s.logger.Info("contract deployed",
		zap.String("address", address.Hex()),
		zap.String("class_hash", art.Class.Hash.Hex()),
		zap.Uint64("block", header.Number),
	)
	return &Contract{sim: s, Address: address, ClassHash: art.Class.Hash, ABI: art.ABI, DeployReceipt: receipt}, nil
}

// ContractAt returns a handle to a deployed contract.
func (s *Starknet) ContractAt(ctx context.Context, address core.Felt) (*Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	c, err := s.backend.Contract(address)
	if err != nil {
		return nil, err
	}
	contractABI, err := s.engine.Resolve(ctx, s.backend, address)
	if err != nil {
		return nil, err
	}
	return &Contract{sim: s, Address: address, ClassHash: c.ClassHash, ABI: contractABI}, nil
}

// Receipt returns the receipt of an accepted transaction.
func (s *Starknet) Receipt(txHash core.Felt) (*types.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.backend.Receipt(txHash)
}

// BlockNumber returns the number of the latest block.
func (s *Starknet) BlockNumber() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	latest, err := s.backend.LatestBlock()
	return latest.Number, err
}

// LatestBlock returns the header of the latest block.
func (s *Starknet) LatestBlock() (state.BlockHeader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return state.BlockHeader{}, ErrClosed
	}
	return s.backend.LatestBlock()
}

// Storage returns a raw storage slot.
func (s *Starknet) Storage(contract, key core.Felt) (core.Felt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.Zero, ErrClosed
	}
	return s.backend.Storage(contract, key)
}

// Close releases the engine and the backend. Contract handles become
// unusable.
func (s *Starknet) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := multierr.Combine(
		s.engine.Close(context.Background()),
		s.backend.Close(),
	)
	s.logger.Debug("simulation closed")
	return err
}

// ContractAddress derives the address of a deployment.
func ContractAddress(classHash, deployer, salt core.Felt, calldata []core.Felt) core.Felt {
	fs := append([]core.Felt{contractAddressPrefix, classHash, deployer, salt}, calldata...)
	return core.HashFelts(fs...)
}

func txHash(txType types.TxType, contract, selector core.Felt, block uint64, calldata []core.Felt) core.Felt {
	fs := []core.Felt{core.Keccak250([]byte(txType)), contract, selector, core.FeltFromUint64(block)}
	return core.HashFelts(append(fs, calldata...)...)
}
