package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Additional-Code/topup/internal/catalog"
	"github.com/Additional-Code/topup/internal/entity"
)

// CreateOrderRequest is the purchase payload accepted over HTTP.
type CreateOrderRequest struct {
	ProductCode   string `json:"product_code"`
	Target        string `json:"target"`
	PaymentMethod string `json:"payment_method"`
	Provider      string `json:"provider"`
}

// OrderResponse represents an order as exposed via transport layers.
type OrderResponse struct {
	ID                    string          `json:"id"`
	Status                string          `json:"status"`
	DepositReffID         string          `json:"deposit_reff_id"`
	TransactionReffID     string          `json:"transaction_reff_id,omitempty"`
	ProductCode           string          `json:"product_code"`
	ProductName           string          `json:"product_name"`
	ProductPrice          decimal.Decimal `json:"product_price"`
	ProviderName          string          `json:"provider_name"`
	ProductCategory       string          `json:"product_category,omitempty"`
	ImageURL              string          `json:"image_url,omitempty"`
	PaymentMethodCode     string          `json:"payment_method_code"`
	PaymentMethodName     string          `json:"payment_method_name"`
	Target                string          `json:"target"`
	PaymentMethodFee      decimal.Decimal `json:"payment_method_fee"`
	GlobalAdminFee        decimal.Decimal `json:"global_admin_fee"`
	TotalAdminFee         decimal.Decimal `json:"total_admin_fee"`
	TotalAmountDue        decimal.Decimal `json:"total_amount_due"`
	AtlanticDepositID     string          `json:"atlantic_deposit_id,omitempty"`
	AtlanticTransactionID string          `json:"atlantic_transaction_id,omitempty"`
	DepositDetails        map[string]any  `json:"deposit_details,omitempty"`
	TransactionDetails    map[string]any  `json:"transaction_details,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// NewOrderResponse maps a stored order onto its wire form.
func NewOrderResponse(o *entity.Order) OrderResponse {
	return OrderResponse{
		ID:                    o.ID,
		Status:                o.Status,
		DepositReffID:         o.DepositReffID,
		TransactionReffID:     o.TransactionReffID,
		ProductCode:           o.ProductCode,
		ProductName:           o.ProductName,
		ProductPrice:          o.ProductPrice,
		ProviderName:          o.ProviderName,
		ProductCategory:       o.ProductCategory,
		ImageURL:              o.ImageURL,
		PaymentMethodCode:     o.PaymentMethodCode,
		PaymentMethodName:     o.PaymentMethodName,
		Target:                o.Target,
		PaymentMethodFee:      o.PaymentMethodFee,
		GlobalAdminFee:        o.GlobalAdminFee,
		TotalAdminFee:         o.TotalAdminFee,
		TotalAmountDue:        o.TotalAmountDue,
		AtlanticDepositID:     o.AtlanticDepositID,
		AtlanticTransactionID: o.AtlanticTransactionID,
		DepositDetails:        o.DepositDetails,
		TransactionDetails:    o.TransactionDetails,
		CreatedAt:             o.CreatedAt,
		UpdatedAt:             o.UpdatedAt,
	}
}

// OrderListResponse is one page of orders.
type OrderListResponse struct {
	Orders   []OrderResponse `json:"orders"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// CatalogResponse lists catalog entries with the time they were loaded.
type CatalogResponse[T catalog.Product | catalog.PaymentMethod] struct {
	Items    []T       `json:"items"`
	Count    int       `json:"count"`
	LoadedAt time.Time `json:"loaded_at"`
}

// CatalogReloadResponse summarises a catalog reload.
type CatalogReloadResponse struct {
	Products       int       `json:"products"`
	PaymentMethods int       `json:"payment_methods"`
	LoadedAt       time.Time `json:"loaded_at"`
}
