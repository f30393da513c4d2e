package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	IsActive  bool            `json:"isActive"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type Shipping struct {
	Address    string `json:"shippingAddress,omitempty"`
	City       string `json:"shippingCity,omitempty"`
	PostalCode string `json:"shippingPostalCode,omitempty"`
	Country    string `json:"shippingCountry,omitempty"`
}

type Order struct {
	ID            string          `json:"id"`
	OrderNumber   string          `json:"orderNumber"`
	UserID        string          `json:"userId"`
	Status        Status          `json:"status"` // lihat status.go
	Total         decimal.Decimal `json:"total"`
	IsPaid        bool            `json:"isPaid"`
	PaymentID     *string         `json:"paymentId,omitempty"`
	PaymentMethod string          `json:"paymentMethod,omitempty"`
	PaidAt        *time.Time      `json:"paidAt,omitempty"`
	DeliveredAt   *time.Time      `json:"deliveredAt,omitempty"`
	Shipping
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
	Lines     []OrderLine `json:"orderItems"`
}

// OrderLine is immutable once the order is committed. UnitPrice and
// ProductName are snapshots taken at checkout.
type OrderLine struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"orderId"`
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"price"`
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// LineInput is one requested line of a CreateOrder call.
type LineInput struct {
	ProductID   string
	Quantity    int
	UnitPrice   decimal.NullDecimal
	ProductName string
}

type CreateOrderInput struct {
	UserID        string
	Lines         []LineInput
	Shipping      Shipping
	PaymentMethod string
}

// StatusFields is the set of mutable order columns written by a transition.
// Nil pointers leave the column untouched.
type StatusFields struct {
	Status      *Status
	IsPaid      *bool
	PaymentID   *string
	PaidAt      *time.Time
	DeliveredAt *time.Time
	UpdatedAt   time.Time
}

type ListFilter struct {
	UserID string
	Limit  uint64
	Offset uint64
}
