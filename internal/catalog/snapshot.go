package catalog

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product is a prepaid product offered for sale.
type Product struct {
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Provider  string          `json:"provider"`
	Type      string          `json:"type"`
	Price     decimal.Decimal `json:"price"`
	Available bool            `json:"available"`
	ImageURL  string          `json:"img_url,omitempty"`
}

// PaymentMethod is a payment channel with its fee terms.
type PaymentMethod struct {
	Code       string          `json:"code"`
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	Min        decimal.Decimal `json:"min"`
	Max        decimal.Decimal `json:"max"`
	FlatFee    decimal.Decimal `json:"fee"`
	FeePercent decimal.Decimal `json:"fee_percent"`
	Available  bool            `json:"available"`
	ImageURL   string          `json:"img_url,omitempty"`
}

// Snapshot is an immutable point-in-time view of the catalog. Readers must not
// modify the slices it returns.
type Snapshot struct {
	products []Product
	methods  []PaymentMethod
	byCode   map[string][]int
	loadedAt time.Time
}

// document is the serialised form mirrored to the cache store.
type document struct {
	Products       []Product       `json:"products"`
	PaymentMethods []PaymentMethod `json:"payment_methods"`
	LoadedAt       time.Time       `json:"loaded_at"`
}

// NewSnapshot indexes products and payment methods into a Snapshot.
func NewSnapshot(products []Product, methods []PaymentMethod, loadedAt time.Time) *Snapshot {
	s := &Snapshot{
		products: append([]Product(nil), products...),
		methods:  append([]PaymentMethod(nil), methods...),
		byCode:   make(map[string][]int, len(products)),
		loadedAt: loadedAt,
	}
	for i, p := range s.products {
		key := strings.ToUpper(p.Code)
		s.byCode[key] = append(s.byCode[key], i)
	}
	return s
}

func emptySnapshot() *Snapshot {
	return NewSnapshot(nil, nil, time.Time{})
}

// Products returns all products in the snapshot.
func (s *Snapshot) Products() []Product { return s.products }

// PaymentMethods returns all payment methods in the snapshot.
func (s *Snapshot) PaymentMethods() []PaymentMethod { return s.methods }

// LoadedAt reports when the snapshot was fetched from the provider.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Empty reports whether the snapshot holds no products.
func (s *Snapshot) Empty() bool { return len(s.products) == 0 }

// FindProduct returns the available product with the given code whose provider
// or category matches providerOrCategory, case-insensitively.
func (s *Snapshot) FindProduct(code, providerOrCategory string) (Product, bool) {
	for _, idx := range s.byCode[strings.ToUpper(strings.TrimSpace(code))] {
		p := s.products[idx]
		if !p.Available {
			continue
		}
		if strings.EqualFold(p.Provider, providerOrCategory) || strings.EqualFold(p.Category, providerOrCategory) {
			return p, true
		}
	}
	return Product{}, false
}

// FindPaymentMethod returns the available payment method with the given code.
func (s *Snapshot) FindPaymentMethod(code string) (PaymentMethod, bool) {
	code = strings.TrimSpace(code)
	for _, m := range s.methods {
		if m.Available && strings.EqualFold(m.Code, code) {
			return m, true
		}
	}
	return PaymentMethod{}, false
}

// ProductsBy filters products by provider and category; blank filters match all.
func (s *Snapshot) ProductsBy(provider, category string) []Product {
	if provider == "" && category == "" {
		return s.products
	}
	out := make([]Product, 0)
	for _, p := range s.products {
		if provider != "" && !strings.EqualFold(p.Provider, provider) {
			continue
		}
		if category != "" && !strings.EqualFold(p.Category, category) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (s *Snapshot) document() document {
	return document{Products: s.products, PaymentMethods: s.methods, LoadedAt: s.loadedAt}
}
