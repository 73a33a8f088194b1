package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/zombor/ledger-sense/internal/commit"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS transactions (
    id BIGSERIAL PRIMARY KEY,
    "UserId" TEXT NOT NULL,
    date TEXT NOT NULL,
    "orderID" TEXT NOT NULL,
    item TEXT NOT NULL,
    quantity TEXT NOT NULL,
    "sellingPrice" TEXT NOT NULL,
    "createdAt" TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS inventories (
    id BIGSERIAL PRIMARY KEY,
    "UserId" TEXT NOT NULL,
    "productName" TEXT NOT NULL,
    "unitPrice" NUMERIC(12,2) NOT NULL,
    quantity NUMERIC(12,3) NOT NULL,
    date TEXT NOT NULL,
    "createdAt" TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_transactions_user_id ON transactions("UserId");
CREATE INDEX IF NOT EXISTS idx_inventories_user_id ON inventories("UserId");
`

// PostgresStore implements Store on a pgx connection pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and creates the tables if needed
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	cfg.ConnConfig.RuntimeParams["application_name"] = "ledger-store"

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	slog.Info("Connected to database")
	return &PostgresStore{pool: pool}, nil
}

// StoreTransactions inserts all rows in one database transaction
func (p *PostgresStore) StoreTransactions(ctx context.Context, rows []commit.SalesRow) ([]Transaction, error) {
	if len(rows) == 0 {
		return nil, ErrNoRows
	}

	stored := make([]Transaction, 0, len(rows))
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		for _, row := range rows {
			t := Transaction{SalesRow: row}
			err := tx.QueryRow(ctx,
				`INSERT INTO transactions ("UserId", date, "orderID", item, quantity, "sellingPrice")
				 VALUES ($1, $2, $3, $4, $5, $6)
				 RETURNING id, "createdAt"`,
				string(row.UserID), row.Date, row.OrderID, row.Item, row.Quantity, row.SellingPrice,
			).Scan(&t.ID, &t.CreatedAt)
			if err != nil {
				return fmt.Errorf("inserting transaction: %w", err)
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

// StoreInventory inserts all rows in one database transaction
func (p *PostgresStore) StoreInventory(ctx context.Context, rows []commit.InventoryRow) ([]InventoryItem, error) {
	if len(rows) == 0 {
		return nil, ErrNoRows
	}

	stored := make([]InventoryItem, 0, len(rows))
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		for _, row := range rows {
			item := InventoryItem{InventoryRow: row}
			err := tx.QueryRow(ctx,
				`INSERT INTO inventories ("UserId", "productName", "unitPrice", quantity, date)
				 VALUES ($1, $2, $3::numeric, $4::numeric, $5)
				 RETURNING id, "createdAt"`,
				string(row.UserID), row.ProductName, row.UnitPrice.String(), row.Quantity.String(), row.Date,
			).Scan(&item.ID, &item.CreatedAt)
			if err != nil {
				return fmt.Errorf("inserting inventory item: %w", err)
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
func (p *PostgresStore) ListTransactions(ctx context.Context, userID string) ([]Transaction, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, "UserId", date, "orderID", item, quantity, "sellingPrice", "createdAt"
		 FROM transactions WHERE "UserId" = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]Transaction, 0)
	for rows.Next() {
		var (
			t   Transaction
			uid string
		)
		if err := rows.Scan(&t.ID, &uid, &t.Date, &t.OrderID, &t.Item, &t.Quantity, &t.SellingPrice, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		t.UserID = commit.UserID(uid)
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

// ListInventory returns userID's inventory lines
func (p *PostgresStore) ListInventory(ctx context.Context, userID string) ([]InventoryItem, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, "UserId", "productName", "unitPrice"::text, quantity::text, date, "createdAt"
		 FROM inventories WHERE "UserId" = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying inventory: %w", err)
	}
	defer rows.Close()

	items := make([]InventoryItem, 0)
	for rows.Next() {
		var (
			item         InventoryItem
			uid          string
			price, count string
		)
		if err := rows.Scan(&item.ID, &uid, &item.ProductName, &price, &count, &item.Date, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning inventory item: %w", err)
		}
		item.UserID = commit.UserID(uid)
		if item.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parsing unit price: %w", err)
		}
		if item.Quantity, err = decimal.NewFromString(count); err != nil {
			return nil, fmt.Errorf("parsing quantity: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Close closes the pool
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
