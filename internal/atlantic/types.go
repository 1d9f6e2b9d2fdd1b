package atlantic

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Deposit is a provider-side payment collection for one order.
type Deposit struct {
	ID      string
	ReffID  string
	Status  string
	Details map[string]any
}

// Transaction is a provider-side fulfilment of a purchased product.
type Transaction struct {
	ID      string
	ReffID  string
	Status  string
	Details map[string]any
}

// DepositRequest opens a deposit for the given nominal.
type DepositRequest struct {
	ReffID  string
	Nominal decimal.Decimal
	Type    string
	Method  string
}

// TransactionRequest fulfils a product to a target.
type TransactionRequest struct {
	ProductCode string
	ReffID      string
	Target      string
}

// PriceItem is one prepaid product from the provider price list.
type PriceItem struct {
	Code     string
	Name     string
	Category string
	Provider string
	Type     string
	Status   string
	ImageURL string
	Price    decimal.Decimal
}

// DepositMethod is one payment channel accepted for deposits.
type DepositMethod struct {
	Code       string
	Name       string
	Type       string
	Status     string
	ImageURL   string
	Min        decimal.Decimal
	Max        decimal.Decimal
	Fee        decimal.Decimal
	FeePercent decimal.Decimal
}

type envelope struct {
	Status  json.RawMessage `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// ok accepts both boolean and quoted-boolean status fields.
func (e *envelope) ok() bool {
	raw := strings.Trim(strings.TrimSpace(string(e.Status)), `"`)
	v, err := strconv.ParseBool(raw)
	return err == nil && v
}

func (e *envelope) record() (map[string]any, error) {
	out := map[string]any{}
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return out, nil
	}
	if err := decodeNumbers(e.Data, &out); err != nil {
		return nil, fmt.Errorf("decode data object: %w", err)
	}
	return out, nil
}

func (e *envelope) records() ([]map[string]any, error) {
	var out []map[string]any
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return out, nil
	}
	if err := decodeNumbers(e.Data, &out); err != nil {
		return nil, fmt.Errorf("decode data list: %w", err)
	}
	return out, nil
}

func field(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func decimalField(m map[string]any, key string) decimal.Decimal {
	raw := field(m, key)
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func toDeposit(m map[string]any) Deposit {
	return Deposit{ID: field(m, "id"), ReffID: field(m, "reff_id"), Status: field(m, "status"), Details: m}
}

func toTransaction(m map[string]any) Transaction {
	return Transaction{ID: field(m, "id"), ReffID: field(m, "reff_id"), Status: field(m, "status"), Details: m}
}

func toPriceItem(m map[string]any) PriceItem {
	return PriceItem{
		Code:     field(m, "code"),
		Name:     field(m, "name"),
		Category: field(m, "category"),
		Provider: field(m, "provider"),
		Type:     field(m, "type"),
		Status:   field(m, "status"),
		ImageURL: field(m, "img_url"),
		Price:    decimalField(m, "price"),
	}
}

func toDepositMethod(m map[string]any) DepositMethod {
	return DepositMethod{
		Code:       field(m, "metode"),
		Name:       field(m, "name"),
		Type:       field(m, "type"),
		Status:     field(m, "status"),
		ImageURL:   field(m, "img_url"),
		Min:        decimalField(m, "min"),
		Max:        decimalField(m, "max"),
		Fee:        decimalField(m, "fee"),
		FeePercent: decimalField(m, "fee_persen"),
	}
}
