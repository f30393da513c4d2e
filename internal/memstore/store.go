// Package memstore is a process-local orders.Store. Transactions are
// serialized by a single mutex and rolled back by restoring a snapshot.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ariefcatur/campus-shop/internal/orders"
)

var _ orders.Store = (*Store)(nil)

type Store struct {
	mu       sync.Mutex
	products map[string]orders.Product
	orders   map[string]orders.Order
	byNumber map[string]string
}

func New() *Store {
	return &Store{
		products: make(map[string]orders.Product),
		orders:   make(map[string]orders.Order),
		byNumber: make(map[string]string),
	}
}

// PutProduct inserts or replaces a product. It stands in for the external
// product-management collaborator.
func (s *Store) PutProduct(p orders.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *Store) GetProduct(_ context.Context, id string) (orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getProduct(id)
}

func (s *Store) ListProducts(context.Context) ([]orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]orders.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) FindByID(_ context.Context, id string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findByID(id)
}

func (s *Store) FindByOrderNumber(_ context.Context, number string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findByNumber(number)
}

func (s *Store) FindByUser(_ context.Context, userID string) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(orders.ListFilter{UserID: userID}), nil
}

func (s *Store) ListOrders(_ context.Context, f orders.ListFilter) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(f), nil
}

func (s *Store) DeleteOrder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("order %s: %w", id, orders.ErrNotFound)
	}
	delete(s.orders, id)
	delete(s.byNumber, o.OrderNumber)
	return nil
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx, &tx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	if err := ctx.Err(); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	products map[string]orders.Product
	orders   map[string]orders.Order
	byNumber map[string]string
}

func (s *Store) snapshot() snapshot {
	sn := snapshot{
		products: make(map[string]orders.Product, len(s.products)),
		orders:   make(map[string]orders.Order, len(s.orders)),
		byNumber: make(map[string]string, len(s.byNumber)),
	}
	for k, v := range s.products {
		sn.products[k] = v
	}
	for k, v := range s.orders {
		sn.orders[k] = v
	}
	for k, v := range s.byNumber {
		sn.byNumber[k] = v
	}
	return sn
}

func (s *Store) restore(sn snapshot) {
	s.products, s.orders, s.byNumber = sn.products, sn.orders, sn.byNumber
}

func (s *Store) getProduct(id string) (orders.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return orders.Product{}, fmt.Errorf("product %s: %w", id, orders.ErrNotFound)
	}
	return p, nil
}

func (s *Store) findByID(id string) (orders.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return orders.Order{}, fmt.Errorf("order %s: %w", id, orders.ErrNotFound)
	}
	return cloneOrder(o), nil
}

func (s *Store) findByNumber(number string) (orders.Order, error) {
	id, ok := s.byNumber[number]
	if !ok {
		return orders.Order{}, fmt.Errorf("order %s: %w", number, orders.ErrNotFound)
	}
	return s.findByID(id)
}

func (s *Store) list(f orders.ListFilter) []orders.Order {
	out := make([]orders.Order, 0)
	for _, o := range s.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].OrderNumber > out[j].OrderNumber
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Offset > 0 {
		if f.Offset >= uint64(len(out)) {
			return []orders.Order{}
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < uint64(len(out)) {
		out = out[:f.Limit]
	}
	return out
}

func cloneOrder(o orders.Order) orders.Order {
	o.Lines = append([]orders.OrderLine(nil), o.Lines...)
	return o
}
