// Package sqlite provides a state backend on SQLite through gorm. Without
// a path it opens a private in-memory database.
package sqlite

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/govm-net/starksim/core"
	"github.com/govm-net/starksim/state"
	"github.com/govm-net/starksim/types"
)

// DBBlock is a committed block header
type DBBlock struct {
	Number    uint64 `gorm:"column:number;primaryKey;autoIncrement:false"`
	Timestamp int64  `gorm:"column:block_time;not null"`
}

func (DBBlock) TableName() string {
	return "blocks"
}

// DBClass is a declared class
type DBClass struct {
	Hash string `gorm:"column:class_hash;primaryKey;size:66"`
	Kind string `gorm:"column:kind;not null;size:8"`
	Path string `gorm:"column:path;not null"`
	Code []byte `gorm:"column:code;type:blob;not null"`
	ABI  []byte `gorm:"column:abi;type:blob;not null"`
}

func (DBClass) TableName() string {
	return "classes"
}

// DBContract is a deployed contract
type DBContract struct {
	Address    string `gorm:"column:contract_address;primaryKey;size:66"`
	ClassHash  string `gorm:"column:class_hash;not null;index;size:66"`
	DeployedAt uint64 `gorm:"column:deployed_at;not null"`
}

func (DBContract) TableName() string {
	return "contracts"
}

// DBStorage is one storage slot
type DBStorage struct {
	Contract string `gorm:"column:contract_address;primaryKey;size:66"`
	Key      string `gorm:"column:storage_key;primaryKey;size:66"`
	Value    string `gorm:"column:storage_value;not null;size:66"`
}

func (DBStorage) TableName() string {
	return "storage"
}

// DBReceipt is a transaction receipt, stored as JSON
type DBReceipt struct {
	TxHash      string `gorm:"column:tx_hash;primaryKey;size:66"`
	BlockNumber uint64 `gorm:"column:block_number;not null;index"`
	Data        []byte `gorm:"column:receipt;type:blob;not null"`
}

func (DBReceipt) TableName() string {
	return "receipts"
}

// Backend implements state.Backend with gorm
type Backend struct {
	db     *gorm.DB
	mu     sync.Mutex
	closed bool
}

func init() {
	if err := state.Register(state.SQLiteBackend, func(params map[string]any) (state.Backend, error) {
		return New(state.PathParam(params))
	}); err != nil {
		panic(err)
	}
}

// New opens the database at path, creating it if needed. An empty path
// opens a fresh in-memory database.
func New(path string) (*Backend, error) {
	dsn := path
	if path == "" {
		dsn = fmt.Sprintf("file:starksim-%s?mode=memory&cache=shared", uuid.NewString())
	} else if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// a single connection keeps the in-memory database alive and serialises writers
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&DBBlock{},
		&DBClass{},
		&DBContract{},
		&DBStorage{},
		&DBReceipt{},
	); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Backend{db: db}, nil
}

func (b *Backend) conn() (*gorm.DB, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, state.ErrClosed
	}
	return b.db, nil
}

func latest(db *gorm.DB) (state.BlockHeader, error) {
	var blocks []DBBlock
	if err := db.Order("number desc").Limit(1).Find(&blocks).Error; err != nil {
		return state.BlockHeader{}, err
	}
	if len(blocks) == 0 {
		return state.BlockHeader{}, nil
	}
	return state.BlockHeader{Number: blocks[0].Number, Timestamp: blocks[0].Timestamp}, nil
}

func (b *Backend) LatestBlock() (state.BlockHeader, error) {
	db, err := b.conn()
	if err != nil {
		return state.BlockHeader{}, err
	}
	return latest(db)
}

func (b *Backend) Storage(contract, key core.Felt) (core.Felt, error) {
	db, err := b.conn()
	if err != nil {
		return core.Zero, err
	}
	var rows []DBStorage
	err = db.Where("contract_address = ? AND storage_key = ?", contract.Hex(), key.Hex()).Limit(1).Find(&rows).Error
	if err != nil {
		return core.Zero, err
	}
	if len(rows) == 0 {
		return core.Zero, nil
	}
	return core.ParseFelt(rows[0].Value)
}

func (b *Backend) Class(hash core.Felt) (*state.Class, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}
	var row DBClass
	if err := db.Where("class_hash = ?", hash.Hex()).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", state.ErrClassNotFound, hash.Hex())
		}
		return nil, err
	}
	return &state.Class{
		Hash: hash,
		Kind: state.ClassKind(row.Kind),
		Path: row.Path,
		Code: row.Code,
		ABI:  row.ABI,
	}, nil
}

func (b *Backend) Contract(address core.Felt) (*state.Contract, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}
	var row DBContract
	if err := db.Where("contract_address = ?", address.Hex()).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", state.ErrContractNotFound, address.Hex())
		}
		return nil, err
	}
	classHash, err := core.ParseFelt(row.ClassHash)
	if err != nil {
		return nil, err
	}
	return &state.Contract{Address: address, ClassHash: classHash, DeployedAt: row.DeployedAt}, nil
}

func (b *Backend) Receipt(txHash core.Felt) (*types.Receipt, error) {
	db, err := b.conn()
	if err != nil {
		return nil, err
	}
	var row DBReceipt
	if err := db.Where("tx_hash = ?", txHash.Hex()).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", state.ErrReceiptNotFound, txHash.Hex())
		}
		return nil, err
	}
	var receipt types.Receipt
	if err := json.Unmarshal(row.Data, &receipt); err != nil {
		return nil, fmt.Errorf("failed to decode receipt: %w", err)
	}
	return &receipt, nil
}

func (b *Backend) Commit(block *state.Block) error {
	db, err := b.conn()
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		head, err := latest(tx)
		if err != nil {
			return err
		}
		if err := state.CheckOrder(head, block); err != nil {
			return err
		}
		if err := tx.Create(&DBBlock{Number: block.Number, Timestamp: block.Timestamp}).Error; err != nil {
			return err
		}

		for _, c := range block.Classes {
			row := DBClass{Hash: c.Hash.Hex(), Kind: string(c.Kind), Path: c.Path, Code: c.Code, ABI: c.ABI}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
				return err
			}
		}

		for _, c := range block.Contracts {
			var n int64
			if err := tx.Model(&DBContract{}).Where("contract_address = ?", c.Address.Hex()).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("%w: %s", state.ErrContractExists, c.Address.Hex())
			}
			row := DBContract{Address: c.Address.Hex(), ClassHash: c.ClassHash.Hex(), DeployedAt: c.DeployedAt}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}

		if len(block.Storage) > 0 {
			rows := make([]DBStorage, len(block.Storage))
			for i, e := range block.Storage {
				rows[i] = DBStorage{Contract: e.Contract.Hex(), Key: e.Key.Hex(), Value: e.Value.Hex()}
			}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error; err != nil {
				return err
			}
		}

		for _, r := range block.Receipts {
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("failed to encode receipt: %w", err)
			}
			if err := tx.Create(&DBReceipt{TxHash: r.TxHash.Hex(), BlockNumber: r.BlockNumber, Data: data}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
