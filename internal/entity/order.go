package entity

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// ErrProviderIDReassigned is returned when a provider id would be overwritten.
var ErrProviderIDReassigned = errors.New("provider id already assigned")

// Order represents a top-up purchase stored in the relational database.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID                  string `bun:"id,pk"`
	DepositReffID       string `bun:"deposit_reff_id,notnull"`
	TransactionReffID   string `bun:"transaction_reff_id,nullzero"`
	TransactionAttempts int    `bun:"transaction_attempts,notnull"`
	// TransactionReffSent is set once a create request with TransactionReffID
	// may have reached the provider. The reference is never replaced after that.
	TransactionReffSent bool `bun:"transaction_reff_sent,notnull"`

	ProductCode     string          `bun:"product_code,notnull"`
	ProductName     string          `bun:"product_name"`
	ProductPrice    decimal.Decimal `bun:"product_price,type:numeric(20,4),notnull"`
	ProviderName    string          `bun:"provider_name"`
	ProductCategory string          `bun:"product_category"`
	ImageURL        string          `bun:"image_url"`

	PaymentMethodCode string `bun:"payment_method_code,notnull"`
	PaymentMethodName string `bun:"payment_method_name"`
	PaymentMethodType string `bun:"payment_method_type"`
	Target            string `bun:"target,notnull"`

	PaymentMethodFee decimal.Decimal `bun:"payment_method_fee,type:numeric(20,4),notnull"`
	GlobalAdminFee   decimal.Decimal `bun:"global_admin_fee,type:numeric(20,4),notnull"`
	TotalAdminFee    decimal.Decimal `bun:"total_admin_fee,type:numeric(20,4),notnull"`
	TotalAmountDue   decimal.Decimal `bun:"total_amount_due,type:numeric(20,4),notnull"`

	Status                string         `bun:"status,notnull"`
	AtlanticDepositID     string         `bun:"atlantic_deposit_id,nullzero"`
	AtlanticTransactionID string         `bun:"atlantic_transaction_id,nullzero"`
	DepositDetails        map[string]any `bun:"deposit_details,type:jsonb"`
	TransactionDetails    map[string]any `bun:"transaction_details,type:jsonb"`

	Version   int64     `bun:"version,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `bun:"updated_at,nullzero"`
}

// SetTransactionID records the provider transaction id. Setting the same id again is allowed.
func (o *Order) SetTransactionID(id string) error {
	if o.AtlanticTransactionID != "" && o.AtlanticTransactionID != id {
		return ErrProviderIDReassigned
	}
	o.AtlanticTransactionID = id
	return nil
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.DepositDetails = cloneDetails(o.DepositDetails)
	c.TransactionDetails = cloneDetails(o.TransactionDetails)
	return &c
}

func cloneDetails(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
