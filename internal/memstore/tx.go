package memstore

import (
	"context"
	"fmt"

	"github.com/ariefcatur/campus-shop/internal/orders"
)

// tx runs with Store.mu already held by InTx.
type tx struct{ s *Store }

func (t *tx) GetProduct(_ context.Context, id string) (orders.Product, error) {
	return t.s.getProduct(id)
}

func (t *tx) DecrementStock(_ context.Context, id string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("product %s: decrement by %d", id, qty)
	}
	p, err := t.s.getProduct(id)
	if err != nil {
		return err
	}
	if !p.IsActive || p.Stock < qty {
		return fmt.Errorf("product %s: %w", id, orders.ErrInsufficientStock)
	}
	p.Stock -= qty
	t.s.products[id] = p
	return nil
}

func (t *tx) IncrementStock(_ context.Context, id string, qty int) error {
	p, err := t.s.getProduct(id)
	if err != nil {
		return err
	}
	p.Stock += qty
	t.s.products[id] = p
	return nil
}

func (t *tx) Save(_ context.Context, o *orders.Order) error {
	if _, taken := t.s.byNumber[o.OrderNumber]; taken {
		return fmt.Errorf("order number %s: %w", o.OrderNumber, orders.ErrDuplicateOrderNumber)
	}
	t.s.orders[o.ID] = cloneOrder(*o)
	t.s.byNumber[o.OrderNumber] = o.ID
	return nil
}

func (t *tx) FindByID(_ context.Context, id string) (orders.Order, error) {
	return t.s.findByID(id)
}

func (t *tx) LockOrder(_ context.Context, id string) (orders.Order, error) {
	return t.s.findByID(id)
}

func (t *tx) FindByOrderNumber(_ context.Context, number string) (orders.Order, error) {
	return t.s.findByNumber(number)
}

func (t *tx) FindByUser(_ context.Context, userID string) ([]orders.Order, error) {
	return t.s.list(orders.ListFilter{UserID: userID}), nil
}

func (t *tx) UpdateStatusFields(_ context.Context, id string, f orders.StatusFields) error {
	o, ok := t.s.orders[id]
	if !ok {
		return fmt.Errorf("order %s: %w", id, orders.ErrNotFound)
	}
	if f.Status != nil {
		o.Status = *f.Status
	}
	if f.IsPaid != nil {
		o.IsPaid = *f.IsPaid
	}
	if f.PaymentID != nil {
		pid := *f.PaymentID
		o.PaymentID = &pid
	}
	if f.PaidAt != nil {
		at := *f.PaidAt
		o.PaidAt = &at
	}
	if f.DeliveredAt != nil {
		at := *f.DeliveredAt
		o.DeliveredAt = &at
	}
	o.UpdatedAt = f.UpdatedAt
	t.s.orders[id] = o
	return nil
}
