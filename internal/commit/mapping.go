package commit

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/zombor/ledger-sense/internal/reconcile"
)

// Mapping lists, per mode and field, the OCR column headers that feed the
// field. Headers are compared case-insensitively ignoring spaces and
// punctuation, so "Selling Price", "selling_price" and "SELLINGPRICE" match.
type Mapping struct {
	Sales     map[string][]string `yaml:"sales"`
	Inventory map[string][]string `yaml:"inventory"`
}

// DefaultMapping returns the aliases for the ledger layouts the OCR service
// is trained on.
func DefaultMapping() Mapping {
	return Mapping{
		Sales: map[string][]string{
			FieldOrderID:      {"OrderID", "Order", "Order No", "Order Number"},
			FieldItem:         {"Item", "Item Name", "Product", "Product Name", "Particulars"},
			FieldQuantity:     {"Quantity", "Qty"},
			FieldSellingPrice: {"Selling Price", "Price", "Amount", "Rate"},
		},
		Inventory: map[string][]string{
			FieldProductName: {"Product Name", "Product", "Item", "Item Name"},
			FieldUnitPrice:   {"Unit Price", "Price", "Rate"},
			FieldQuantity:    {"Quantity", "Qty", "Holding Quantity", "Stock"},
		},
	}
}

// LoadMapping reads extra aliases from a YAML file and appends them to the
// defaults. An empty path returns the defaults.
func LoadMapping(path string) (Mapping, error) {
	m := DefaultMapping()
	if path == "" {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Mapping{}, fmt.Errorf("reading mapping file: %w", err)
	}

	var extra Mapping
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return Mapping{}, fmt.Errorf("parsing mapping file: %w", err)
	}

	if err := merge(m.Sales, extra.Sales, salesFields); err != nil {
		return Mapping{}, fmt.Errorf("sales mapping: %w", err)
	}
	if err := merge(m.Inventory, extra.Inventory, inventoryFields); err != nil {
		return Mapping{}, fmt.Errorf("inventory mapping: %w", err)
	}
	return m, nil
}

var (
	salesFields     = []string{FieldOrderID, FieldItem, FieldQuantity, FieldSellingPrice}
	inventoryFields = []string{FieldProductName, FieldUnitPrice, FieldQuantity}
)

func merge(dst, src map[string][]string, known []string) error {
	for field, aliases := range src {
		if !contains(known, field) {
			return fmt.Errorf("unknown field %q", field)
		}
		dst[field] = append(dst[field], aliases...)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (m Mapping) aliases(mode Mode) map[string][]string {
	if mode == ModeInventory {
		return m.Inventory
	}
	return m.Sales
}

// lookup returns the cell feeding field, trying aliases in order
func (m Mapping) lookup(row reconcile.Row, mode Mode, field string) string {
	index := headerIndex(row)
	for _, alias := range m.aliases(mode)[field] {
		if col, ok := index[normalizeHeader(alias)]; ok {
			return strings.TrimSpace(row[col])
		}
	}
	return ""
}

// headerIndex maps normalized header to column; on collisions the
// lexically smallest column wins.
func headerIndex(row reconcile.Row) map[string]string {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	index := make(map[string]string, len(cols))
	for _, col := range cols {
		key := normalizeHeader(col)
		if _, ok := index[key]; !ok {
			index[key] = col
		}
	}
	return index
}

func normalizeHeader(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
