package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/campus-shop/internal/orders"
)

const (
	codeUniqueViolation   = "23505"
	orderNumberConstraint = "orders_order_number_key"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var orderColumns = []string{
	"id", "order_number", "user_id", "status", "total", "is_paid", "payment_id", "payment_method",
	"paid_at", "delivered_at", "shipping_address", "shipping_city", "shipping_postal_code", "shipping_country",
	"created_at", "updated_at",
}

var productColumns = []string{"id", "name", "price", "stock", "is_active", "created_at", "updated_at"}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ orders.Store = (*Store)(nil)

type Store struct{ DB *pgxpool.Pool }

func NewStore(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetProduct(ctx context.Context, id string) (orders.Product, error) {
	return getProduct(ctx, s.DB, id)
}

func (s *Store) ListProducts(ctx context.Context) ([]orders.Product, error) {
	sql, args, err := psql.Select(productColumns...).From("products").OrderBy("name", "id").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]orders.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) FindByID(ctx context.Context, id string) (orders.Order, error) {
	return findOne(ctx, s.DB, sq.Eq{"id": id}, false)
}

func (s *Store) FindByOrderNumber(ctx context.Context, number string) (orders.Order, error) {
	return findOne(ctx, s.DB, sq.Eq{"order_number": number}, false)
}

func (s *Store) FindByUser(ctx context.Context, userID string) ([]orders.Order, error) {
	return listOrders(ctx, s.DB, orders.ListFilter{UserID: userID})
}

func (s *Store) ListOrders(ctx context.Context, f orders.ListFilter) ([]orders.Order, error) {
	return listOrders(ctx, s.DB, f)
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	sql, args, err := psql.Delete("orders").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	ct, err := s.DB.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", id, orders.ErrNotFound)
	}
	return nil
}

// putProduct upserts a product row. Product management lives outside this
// service; this is used to arrange fixtures.
func (s *Store) putProduct(ctx context.Context, p orders.Product) error {
	sql, args, err := psql.Insert("products").
		Columns("id", "name", "price", "stock", "is_active").
		Values(p.ID, p.Name, p.Price, p.Stock, p.IsActive).
		Suffix("ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, stock = EXCLUDED.stock, is_active = EXCLUDED.is_active, updated_at = now()").
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, sql, args...)
	return err
}

func getProduct(ctx context.Context, q querier, id string) (orders.Product, error) {
	sql, args, err := psql.Select(productColumns...).From("products").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return orders.Product{}, err
	}
	p, err := scanProduct(q.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Product{}, fmt.Errorf("product %s: %w", id, orders.ErrNotFound)
	}
	return p, err
}

func scanProduct(row pgx.Row) (orders.Product, error) {
	var p orders.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func findOne(ctx context.Context, q querier, where sq.Sqlizer, lock bool) (orders.Order, error) {
	b := psql.Select(orderColumns...).From("orders").Where(where)
	if lock {
		b = b.Suffix("FOR UPDATE")
	}
	sql, args, err := b.ToSql()
	if err != nil {
		return orders.Order{}, err
	}
	o, err := scanOrder(q.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, fmt.Errorf("order: %w", orders.ErrNotFound)
	}
	if err != nil {
		return orders.Order{}, err
	}
	byOrder, err := loadLines(ctx, q, o.ID)
	if err != nil {
		return orders.Order{}, err
	}
	o.Lines = byOrder[o.ID]
	return o, nil
}

func listOrders(ctx context.Context, q querier, f orders.ListFilter) ([]orders.Order, error) {
	b := psql.Select(orderColumns...).From("orders").OrderBy("created_at DESC", "order_number DESC")
	if f.UserID != "" {
		b = b.Where(sq.Eq{"user_id": f.UserID})
	}
	if f.Limit > 0 {
		b = b.Limit(f.Limit)
	}
	if f.Offset > 0 {
		b = b.Offset(f.Offset)
	}
	sql, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	out := make([]orders.Order, 0)
	ids := make([]string, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	byOrder, err := loadLines(ctx, q, ids...)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Lines = byOrder[out[i].ID]
	}
	return out, nil
}

func scanOrder(row pgx.Row) (orders.Order, error) {
	var (
		o      orders.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &status, &o.Total, &o.IsPaid, &o.PaymentID, &o.PaymentMethod,
		&o.PaidAt, &o.DeliveredAt, &o.Address, &o.City, &o.PostalCode, &o.Country,
		&o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = orders.Status(status)
	return o, err
}

func loadLines(ctx context.Context, q querier, orderIDs ...string) (map[string][]orders.OrderLine, error) {
	sql, args, err := psql.
		Select("id", "order_id", "product_id", "product_name", "quantity", "unit_price").
		From("order_items").
		Where(sq.Eq{"order_id": orderIDs}).
		OrderBy("order_id", "line_no").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]orders.OrderLine, len(orderIDs))
	for rows.Next() {
		var l orders.OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, err
		}
		out[l.OrderID] = append(out[l.OrderID], l)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeUniqueViolation && pgErr.ConstraintName == constraint
	}
	return false
}
