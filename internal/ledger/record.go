// Package ledger is the storage API ledger-sense commits to. It stores
// sales transactions and inventory lines per shop owner.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/zombor/ledger-sense/internal/commit"
)

// ErrNoRows is returned when a batch is empty
var ErrNoRows = errors.New("no rows provided")

// Transaction is a stored sales row
type Transaction struct {
	ID uint64 `json:"id"`
	commit.SalesRow
	CreatedAt time.Time `json:"createdAt"`
}

// InventoryItem is a stored inventory line
type InventoryItem struct {
	ID uint64 `json:"id"`
	commit.InventoryRow
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists committed rows. Each Store* call is all-or-nothing.
type Store interface {
	// StoreTransactions inserts every row in one transaction
	StoreTransactions(ctx context.Context, rows []commit.SalesRow) ([]Transaction, error)

	// StoreInventory inserts every row in one transaction
	StoreInventory(ctx context.Context, rows []commit.InventoryRow) ([]InventoryItem, error)

	// ListTransactions returns a user's transactions in insertion order
	ListTransactions(ctx context.Context, userID string) ([]Transaction, error)

	// ListInventory returns a user's inventory lines in insertion order
	ListInventory(ctx context.Context, userID string) ([]InventoryItem, error)

	// Close releases the underlying database
	Close() error
}
