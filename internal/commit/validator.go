package commit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/ledger-sense/internal/auth"
	"github.com/zombor/ledger-sense/internal/reconcile"
)

// DateLayout is the expected format of the commit date
const DateLayout = "2006-01-02"

var (
	ErrNoDate        = errors.New("Please select a date before committing.")
	ErrInvalidDate   = errors.New("Date must be in YYYY-MM-DD format.")
	ErrNoUser        = errors.New("You must be logged in to commit rows.")
	ErrNoRows        = errors.New("There are no rows to commit.")
	ErrMissingField  = errors.New("missing")
	ErrInvalidNumber = errors.New("not a number")
)

// Target carries what a commit needs besides the rows
type Target struct {
	Date string
	User *auth.User
}

// ValidationError is a local, pre-network rejection. Row and Field are set
// when a specific row failed; Row is zero-based.
type ValidationError struct {
	Row   int
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	if errors.Is(e.Err, ErrInvalidNumber) {
		return fmt.Sprintf("Row %d: %s must be a number.", e.Row+1, e.Field)
	}
	return fmt.Sprintf("Row %d is missing %s.", e.Row+1, e.Field)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validator checks rows against the destination schema
type Validator struct {
	mapping Mapping
}

// NewValidator creates a Validator using mapping to find fields
func NewValidator(mapping Mapping) *Validator {
	return &Validator{mapping: mapping}
}

// Build validates every row and converts them to the wire rows for mode.
// The first incomplete row aborts the whole batch.
func (v *Validator) Build(rows []reconcile.Row, mode Mode, cc Target) ([]any, error) {
	if err := checkPreconditions(rows, cc); err != nil {
		return nil, err
	}

	out := make([]any, 0, len(rows))
	for i, row := range rows {
		var (
			built any
			err   error
		)
		switch mode {
		case ModeInventory:
			built, err = v.inventoryRow(i, row, cc)
		default:
			built, err = v.salesRow(i, row, cc)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, built)
	}
	return out, nil
}

func checkPreconditions(rows []reconcile.Row, cc Target) error {
	date := strings.TrimSpace(cc.Date)
	if date == "" {
		return &ValidationError{Row: -1, Err: ErrNoDate}
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return &ValidationError{Row: -1, Err: ErrInvalidDate}
	}
	if cc.User == nil || cc.User.ID == "" {
		return &ValidationError{Row: -1, Err: ErrNoUser}
	}
	if len(rows) == 0 {
		return &ValidationError{Row: -1, Err: ErrNoRows}
	}
	return nil
}

func (v *Validator) salesRow(i int, row reconcile.Row, cc Target) (*SalesRow, error) {
	r := &SalesRow{
		UserID:       UserID(cc.User.ID),
		Date:         strings.TrimSpace(cc.Date),
		OrderID:      v.mapping.lookup(row, ModeSales, FieldOrderID),
		Item:         v.mapping.lookup(row, ModeSales, FieldItem),
		Quantity:     v.mapping.lookup(row, ModeSales, FieldQuantity),
		SellingPrice: v.mapping.lookup(row, ModeSales, FieldSellingPrice),
	}

	fields := []struct{ name, value string }{
		{FieldOrderID, r.OrderID},
		{FieldItem, r.Item},
		{FieldQuantity, r.Quantity},
		{FieldSellingPrice, r.SellingPrice},
	}
	for _, f := range fields {
		if f.value == "" {
			return nil, &ValidationError{Row: i, Field: f.name, Err: ErrMissingField}
		}
	}
	return r, nil
}

func (v *Validator) inventoryRow(i int, row reconcile.Row, cc Target) (*InventoryRow, error) {
	name := v.mapping.lookup(row, ModeInventory, FieldProductName)
	if name == "" {
		return nil, &ValidationError{Row: i, Field: FieldProductName, Err: ErrMissingField}
	}

	price, err := number(i, FieldUnitPrice, v.mapping.lookup(row, ModeInventory, FieldUnitPrice))
	if err != nil {
		return nil, err
	}
	qty, err := number(i, FieldQuantity, v.mapping.lookup(row, ModeInventory, FieldQuantity))
	if err != nil {
		return nil, err
	}

	return &InventoryRow{
		UserID:      UserID(cc.User.ID),
		ProductName: name,
		UnitPrice:   price,
		Quantity:    qty,
		Date:        strings.TrimSpace(cc.Date),
	}, nil
}

func number(i int, field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, &ValidationError{Row: i, Field: field, Err: ErrMissingField}
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return decimal.Decimal{}, &ValidationError{Row: i, Field: field, Err: ErrInvalidNumber}
	}
	return d, nil
}
