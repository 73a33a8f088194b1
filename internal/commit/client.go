package commit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/zombor/ledger-sense/internal/auth"
	"github.com/zombor/ledger-sense/internal/reconcile"
)

// ErrCommitFailed is the generic failure for network or server rejections;
// the storage API does not promise field-level detail.
var ErrCommitFailed = errors.New("Failed to commit rows. Please try again.")

// Endpoint paths on the storage API
const (
	SalesPath     = "/api/transactions/store"
	InventoryPath = "/api/inventory/store"
)

// Result reports a successful bulk insert
type Result struct {
	Inserted int    `json:"inserted"`
	Message  string `json:"message"`
}

// Client validates rows and submits them to the storage API in one request
type Client struct {
	baseURL   string
	client    *http.Client
	validator *Validator
}

// NewClient creates a Client for the storage API at baseURL
func NewClient(baseURL string, mapping Mapping) *Client {
	return &Client{
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 30 * time.Second},
		validator: NewValidator(mapping),
	}
}

// Commit validates rows for mode and, only if every row passes, posts them
// as one batch with cred attached. Validation failures return a
// *ValidationError and issue no request.
func (c *Client) Commit(ctx context.Context, rows []reconcile.Row, mode Mode, cc Target, cred auth.Credential) (*Result, error) {
	payload, err := c.validator.Build(rows, mode, cc)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]any{"rows": payload})
	if err != nil {
		return nil, fmt.Errorf("marshaling rows: %w", err)
	}

	path := SalesPath
	if mode == ModeInventory {
		path = InventoryPath
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ErrCommitFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	cred.Apply(req)

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Error("Commit request failed", "mode", mode, "rows", len(payload), "error", err)
		return nil, fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Error("Error reading storage response", "mode", mode, "status", resp.StatusCode, "error", err)
		return nil, fmt.Errorf("%w: reading response: %v", ErrCommitFailed, err)
	}

	var parsed struct {
		Message string            `json:"message"`
		Error   string            `json:"error"`
		Data    []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		slog.Debug("Storage response is not JSON", "mode", mode, "status", resp.StatusCode, "error", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Error("Storage API rejected commit",
			"mode", mode,
			"status", resp.StatusCode,
			"error", parsed.Error,
			"message", parsed.Message,
		)
		return nil, fmt.Errorf("%w: status %d", ErrCommitFailed, resp.StatusCode)
	}

	inserted := len(parsed.Data)
	if inserted == 0 {
		inserted = len(payload)
	}
	slog.Info("Rows committed", "mode", mode, "rows", inserted)
	return &Result{Inserted: inserted, Message: parsed.Message}, nil
}
