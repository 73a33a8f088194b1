package ledger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/ledger-sense/internal/commit"
)

const (
	transactionsBucket = "transactions"
	inventoryBucket    = "inventories"
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db  *bbolt.DB
	now func() time.Time
}

// NewBoltStore opens (or creates) the database at path
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{transactionsBucket, inventoryBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// StoreTransactions saves all rows in a single update
func (b *BoltStore) StoreTransactions(ctx context.Context, rows []commit.SalesRow) ([]Transaction, error) {
	if len(rows) == 0 {
		return nil, ErrNoRows
	}

	stored := make([]Transaction, 0, len(rows))
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(transactionsBucket))
		now := b.now().UTC()
		for _, row := range rows {
			id, err := bucket.NextSequence()
			if err != nil {
				return fmt.Errorf("allocating id: %w", err)
			}
			t := Transaction{ID: id, SalesRow: row, CreatedAt: now}
			data, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("marshaling transaction: %w", err)
			}
			if err := bucket.Put(itob(id), data); err != nil {
				return err
			}
			stored = append(stored, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// StoreInventory saves all rows in a single update
func (b *BoltStore) StoreInventory(ctx context.Context, rows []commit.InventoryRow) ([]InventoryItem, error) {
	if len(rows) == 0 {
		return nil, ErrNoRows
	}

	stored := make([]InventoryItem, 0, len(rows))
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(inventoryBucket))
		now := b.now().UTC()
		for _, row := range rows {
			id, err := bucket.NextSequence()
			if err != nil {
				return fmt.Errorf("allocating id: %w", err)
			}
			item := InventoryItem{ID: id, InventoryRow: row, CreatedAt: now}
			data, err := json.Marshal(item)
			if err != nil {
				return fmt.Errorf("marshaling inventory item: %w", err)
			}
			if err := bucket.Put(itob(id), data); err != nil {
				return err
			}
			stored = append(stored, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// ListTransactions returns userID's transactions
func (b *BoltStore) ListTransactions(ctx context.Context, userID string) ([]Transaction, error) {
	transactions := make([]Transaction, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(transactionsBucket))
		return bucket.ForEach(func(k, v []byte) error {
			var t Transaction
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("unmarshaling transaction: %w", err)
			}
			if string(t.UserID) == userID {
				transactions = append(transactions, t)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

// ListInventory returns userID's inventory lines
func (b *BoltStore) ListInventory(ctx context.Context, userID string) ([]InventoryItem, error) {
	items := make([]InventoryItem, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(inventoryBucket))
		return bucket.ForEach(func(k, v []byte) error {
			var item InventoryItem
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("unmarshaling inventory item: %w", err)
			}
			if string(item.UserID) == userID {
				items = append(items, item)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Close closes the database
func (b *BoltStore) Close() error {
	return b.db.Close()
}
