package commit

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Mode selects the destination schema for a commit
type Mode string

const (
	ModeSales     Mode = "sales"
	ModeInventory Mode = "inventory"
)

// ParseMode parses a mode name; empty means sales
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeSales:
		return ModeSales, nil
	case ModeInventory:
		return ModeInventory, nil
	}
	return "", fmt.Errorf("unknown commit mode %q", s)
}

// UserID is the owner id. Canonical integer ids go on the wire as JSON
// numbers, anything else ("007", "+5") as a string.
type UserID string

func (u UserID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(u), 10, 64); err == nil {
		if s := strconv.FormatInt(n, 10); s == string(u) {
			return []byte(s), nil
		}
	}
	return json.Marshal(string(u))
}

func (u *UserID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*u = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decoding user id: %w", err)
	}
	*u = UserID(n.String())
	return nil
}

// SalesRow is one sales transaction. Every field is mandatory.
type SalesRow struct {
	UserID       UserID `json:"UserId"`
	Date         string `json:"date"`
	OrderID      string `json:"orderID"`
	Item         string `json:"item"`
	Quantity     string `json:"quantity"`
	SellingPrice string `json:"sellingPrice"`
}

// InventoryRow is one stock line
type InventoryRow struct {
	UserID      UserID          `json:"UserId"`
	ProductName string          `json:"productName"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    decimal.Decimal `json:"quantity"`
	Date        string          `json:"date"`
}

// Field names as they appear in validation messages and alias files
const (
	FieldUserID       = "userId"
	FieldDate         = "date"
	FieldOrderID      = "orderId"
	FieldItem         = "item"
	FieldQuantity     = "quantity"
	FieldSellingPrice = "sellingPrice"
	FieldProductName  = "productName"
	FieldUnitPrice    = "unitPrice"
)
