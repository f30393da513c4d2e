package orders

import "context"

// Inventory is the product stock surface used by the workflow. Stock is only
// ever changed through DecrementStock and IncrementStock.
type Inventory interface {
	GetProduct(ctx context.Context, id string) (Product, error)
	// DecrementStock must be atomic: it either removes qty units or fails
	// with ErrInsufficientStock and leaves stock untouched.
	DecrementStock(ctx context.Context, id string, qty int) error
	IncrementStock(ctx context.Context, id string, qty int) error
}

type Repository interface {
	// Save inserts the order and all of its lines. A clash on OrderNumber is
	// reported as ErrDuplicateOrderNumber.
	Save(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id string) (Order, error)
	FindByOrderNumber(ctx context.Context, number string) (Order, error)
	FindByUser(ctx context.Context, userID string) ([]Order, error)
	UpdateStatusFields(ctx context.Context, id string, f StatusFields) error
}

// Tx is the unit of work handed to InTx callbacks.
type Tx interface {
	Inventory
	Repository
	// LockOrder loads the order and holds it until the transaction ends.
	LockOrder(ctx context.Context, id string) (Order, error)
}

// Store is implemented by postgres.Store and memstore.Store.
type Store interface {
	FindByID(ctx context.Context, id string) (Order, error)
	FindByOrderNumber(ctx context.Context, number string) (Order, error)
	FindByUser(ctx context.Context, userID string) ([]Order, error)
	ListOrders(ctx context.Context, f ListFilter) ([]Order, error)
	DeleteOrder(ctx context.Context, id string) error
	GetProduct(ctx context.Context, id string) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)

	// InTx runs fn in a single transaction. A non-nil error from fn rolls
	// everything back and is returned unchanged.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
