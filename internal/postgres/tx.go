package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/ariefcatur/campus-shop/internal/orders"
)

type pgTx struct{ q querier }

func (t *pgTx) GetProduct(ctx context.Context, id string) (orders.Product, error) {
	return getProduct(ctx, t.q, id)
}

// DecrementStock is a conditional update: the row is only touched when it
// still holds qty units, so concurrent orders can never drive stock below 0.
func (t *pgTx) DecrementStock(ctx context.Context, id string, qty int) error {
	sql, args, err := psql.Update("products").
		Set("stock", sq.Expr("stock - ?", qty)).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": id, "is_active": true}).
		Where(sq.GtOrEq{"stock": qty}).
		ToSql()
	if err != nil {
		return err
	}
	ct, err := t.q.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("product %s: %w", id, orders.ErrInsufficientStock)
	}
	return nil
}

func (t *pgTx) IncrementStock(ctx context.Context, id string, qty int) error {
	sql, args, err := psql.Update("products").
		Set("stock", sq.Expr("stock + ?", qty)).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	ct, err := t.q.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("product %s: %w", id, orders.ErrNotFound)
	}
	return nil
}

func (t *pgTx) Save(ctx context.Context, o *orders.Order) error {
	sql, args, err := psql.Insert("orders").
		Columns(orderColumns...).
		Values(
			o.ID, o.OrderNumber, o.UserID, string(o.Status), o.Total, o.IsPaid, o.PaymentID, o.PaymentMethod,
			o.PaidAt, o.DeliveredAt, o.Address, o.City, o.PostalCode, o.Country,
			o.CreatedAt, o.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := t.q.Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err, orderNumberConstraint) {
			return fmt.Errorf("order number %s: %w", o.OrderNumber, orders.ErrDuplicateOrderNumber)
		}
		return err
	}

	ins := psql.Insert("order_items").
		Columns("id", "order_id", "line_no", "product_id", "product_name", "quantity", "unit_price")
	for i, l := range o.Lines {
		ins = ins.Values(l.ID, o.ID, i+1, l.ProductID, l.ProductName, l.Quantity, l.UnitPrice)
	}
	sql, args, err = ins.ToSql()
	if err != nil {
		return err
	}
	_, err = t.q.Exec(ctx, sql, args...)
	return err
}

func (t *pgTx) FindByID(ctx context.Context, id string) (orders.Order, error) {
	return findOne(ctx, t.q, sq.Eq{"id": id}, false)
}

func (t *pgTx) LockOrder(ctx context.Context, id string) (orders.Order, error) {
	return findOne(ctx, t.q, sq.Eq{"id": id}, true)
}

func (t *pgTx) FindByOrderNumber(ctx context.Context, number string) (orders.Order, error) {
	return findOne(ctx, t.q, sq.Eq{"order_number": number}, false)
}

func (t *pgTx) FindByUser(ctx context.Context, userID string) ([]orders.Order, error) {
	return listOrders(ctx, t.q, orders.ListFilter{UserID: userID})
}

func (t *pgTx) UpdateStatusFields(ctx context.Context, id string, f orders.StatusFields) error {
	set := map[string]any{"updated_at": f.UpdatedAt}
	if f.Status != nil {
		set["status"] = string(*f.Status)
	}
	if f.IsPaid != nil {
		set["is_paid"] = *f.IsPaid
	}
	if f.PaymentID != nil {
		set["payment_id"] = *f.PaymentID
	}
	if f.PaidAt != nil {
		set["paid_at"] = *f.PaidAt
	}
	if f.DeliveredAt != nil {
		set["delivered_at"] = *f.DeliveredAt
	}
	sql, args, err := psql.Update("orders").SetMap(set).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	ct, err := t.q.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", id, orders.ErrNotFound)
	}
	return nil
}
