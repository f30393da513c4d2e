package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxNumberAttempts = 5

	DefaultListLimit = 50
	MaxListLimit     = 200

	// MaxQuantity bounds a line quantity and the per-product sum of an order.
	MaxQuantity = math.MaxInt32
)

// maxAmount is the exclusive upper bound of a NUMERIC(12,2) column.
var maxAmount = decimal.New(1, 10)

// Service is the order workflow engine.
type Service struct {
	store       Store
	pub         Publisher
	now         func() time.Time
	newNumber   func(time.Time) string
	tracer      trace.Tracer
	log         *slog.Logger
	serviceName string
}

type Option func(*Service)

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.pub = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithOrderNumbers replaces NewOrderNumber.
func WithOrderNumbers(gen func(time.Time) string) Option {
	return func(s *Service) { s.newNumber = gen }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithServiceName sets the producer name stamped on published envelopes.
func WithServiceName(name string) Option {
	return func(s *Service) { s.serviceName = name }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		pub:         nopPublisher{},
		now:         func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		newNumber:   NewOrderNumber,
		tracer:      otel.Tracer("github.com/ariefcatur/campus-shop/internal/orders"),
		log:         slog.Default(),
		serviceName: "order-api",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder validates the request, decrements stock for every line and
// persists the order in one transaction. Prices come from the caller
// (checkout snapshot); stock is checked against the live product rows.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.CreateOrder",
		trace.WithAttributes(attribute.String("user.id", in.UserID), attribute.Int("order.lines", len(in.Lines))))
	defer span.End()

	if err := validateCreate(in); err != nil {
		return Order{}, s.fail(span, "create order", err)
	}

	var (
		o   Order
		err error
	)
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		o, err = s.createOnce(ctx, in)
		if !errors.Is(err, ErrDuplicateOrderNumber) {
			break
		}
		s.log.WarnContext(ctx, "order number collision, retrying", "attempt", attempt)
	}
	if errors.Is(err, ErrDuplicateOrderNumber) {
		err = &StorageError{Op: "create order", Err: errOrderNumberExhausted}
	}
	if err != nil {
		return Order{}, s.fail(span, "create order", err)
	}

	span.SetAttributes(attribute.String("order.id", o.ID), attribute.String("order.number", o.OrderNumber))
	s.log.InfoContext(ctx, "order created",
		"order_id", o.ID, "order_number", o.OrderNumber, "user_id", o.UserID, "total", o.Total.StringFixed(2))
	s.publish(ctx, EventOrderCreated, o.ID, createdPayload(o))
	return o, nil
}

func (s *Service) createOnce(ctx context.Context, in CreateOrderInput) (Order, error) {
	now := s.now()
	o := Order{
		ID:            uuid.NewString(),
		OrderNumber:   s.newNumber(now),
		UserID:        in.UserID,
		Status:        StatusPending,
		Total:         decimal.Zero,
		PaymentMethod: in.PaymentMethod,
		Shipping:      in.Shipping,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		products := make(map[string]Product, len(in.Lines))
		need := make(map[string]int, len(in.Lines))

		for _, ln := range in.Lines {
			need[ln.ProductID] += ln.Quantity
			if _, seen := products[ln.ProductID]; seen {
				continue
			}
			p, err := tx.GetProduct(ctx, ln.ProductID)
			if errors.Is(err, ErrNotFound) {
				return &NotFoundError{Entity: "product", ID: ln.ProductID}
			}
			if err != nil {
				return err
			}
			if !p.IsActive {
				return &NotFoundError{Entity: "product", ID: ln.ProductID}
			}
			products[ln.ProductID] = p
		}

		for _, ln := range in.Lines {
			if p := products[ln.ProductID]; p.Stock < need[ln.ProductID] {
				return &InsufficientStockError{
					ProductID: ln.ProductID, ProductName: p.Name,
					Requested: need[ln.ProductID], Available: p.Stock,
				}
			}
		}

		o.Lines = make([]OrderLine, 0, len(in.Lines))
		for _, ln := range in.Lines {
			name := products[ln.ProductID].Name
			if name == "" {
				name = ln.ProductName
			}
			line := OrderLine{
				ID:          uuid.NewString(),
				OrderID:     o.ID,
				ProductID:   ln.ProductID,
				ProductName: name,
				Quantity:    ln.Quantity,
				UnitPrice:   ln.UnitPrice.Decimal,
			}
			o.Lines = append(o.Lines, line)
			o.Total = o.Total.Add(line.Subtotal())
		}

		// urutan id konsisten supaya lock baris tidak saling tunggu
		ids := make([]string, 0, len(need))
		for id := range need {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			err := tx.DecrementStock(ctx, id, need[id])
			if errors.Is(err, ErrInsufficientStock) {
				p := products[id]
				if live, gerr := tx.GetProduct(ctx, id); gerr == nil {
					p = live
				}
				return &InsufficientStockError{ProductID: id, ProductName: p.Name, Requested: need[id], Available: p.Stock}
			}
			if err != nil {
				return err
			}
		}

		return tx.Save(ctx, &o)
	})
	return o, err
}

func validateCreate(in CreateOrderInput) error {
	if in.UserID == "" {
		return &ValidationError{Field: "userId", Reason: "is required"}
	}
	if len(in.Lines) == 0 {
		return &ValidationError{Field: "orderItems", Reason: "must not be empty"}
	}
	perProduct := make(map[string]int, len(in.Lines))
	total := decimal.Zero
	for _, ln := range in.Lines {
		switch {
		case ln.ProductID == "":
			return &ValidationError{Field: "orderItems.productId", Reason: "is required"}
		case ln.Quantity <= 0:
			return &ValidationError{Field: "orderItems.quantity", Reason: "must be a positive integer"}
		case ln.Quantity > MaxQuantity:
			return &ValidationError{Field: "orderItems.quantity", Reason: "is too large"}
		case !ln.UnitPrice.Valid:
			return &ValidationError{Field: "orderItems.price", Reason: "is required"}
		case ln.UnitPrice.Decimal.IsNegative():
			return &ValidationError{Field: "orderItems.price", Reason: "must not be negative"}
		case !ln.UnitPrice.Decimal.Equal(ln.UnitPrice.Decimal.Round(2)):
			return &ValidationError{Field: "orderItems.price", Reason: "must have at most 2 decimal places"}
		case ln.UnitPrice.Decimal.GreaterThanOrEqual(maxAmount):
			return &ValidationError{Field: "orderItems.price", Reason: "is too large"}
		}
		// both operands are at most MaxQuantity, so the sum cannot wrap
		perProduct[ln.ProductID] += ln.Quantity
		if perProduct[ln.ProductID] > MaxQuantity {
			return &ValidationError{Field: "orderItems.quantity", Reason: "total for product " + ln.ProductID + " is too large"}
		}
		total = total.Add(ln.UnitPrice.Decimal.Mul(decimal.NewFromInt(int64(ln.Quantity))))
	}
	if total.GreaterThanOrEqual(maxAmount) {
		return &ValidationError{Field: "orderItems", Reason: "order total is too large"}
	}
	return nil
}

// UpdateStatus moves the order along the lifecycle. Cancelling returns every
// line's quantity to stock in the same transaction.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status) (Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.UpdateStatus",
		trace.WithAttributes(attribute.String("order.id", id), attribute.String("order.status.to", string(to))))
	defer span.End()

	if _, ok := validNext[to]; !ok {
		return Order{}, s.fail(span, "update status", &ValidationError{Field: "status", Reason: "is not a known status"})
	}

	var (
		out  Order
		from Status
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return &NotFoundError{Entity: "order", ID: id}
		}
		if err != nil {
			return err
		}
		from = o.Status
		if !CanTransition(o.Status, to) {
			return &InvalidTransitionError{From: o.Status, To: to}
		}

		now := s.now()
		f := StatusFields{Status: &to, UpdatedAt: now}
		o.Status, o.UpdatedAt = to, now
		switch to {
		case StatusDelivered:
			f.DeliveredAt = &now
			o.DeliveredAt = &now
		case StatusCancelled:
			for _, l := range o.Lines {
				if err := tx.IncrementStock(ctx, l.ProductID, l.Quantity); err != nil {
					return err
				}
			}
		}
		if err := tx.UpdateStatusFields(ctx, id, f); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return Order{}, s.fail(span, "update status", err)
	}

	s.log.InfoContext(ctx, "order status changed", "order_id", id, "from", from, "to", to)
	s.publish(ctx, EventOrderStatusChanged, id, OrderStatusChangedPayload{
		OrderID: id, OrderNumber: out.OrderNumber, From: from, To: to,
	})
	return out, nil
}

// MarkAsPaid records a payment. Repeating the call with the same paymentID
// returns the stored order unchanged.
func (s *Service) MarkAsPaid(ctx context.Context, id, paymentID string) (Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.MarkAsPaid", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	if paymentID == "" {
		return Order{}, s.fail(span, "mark as paid", &ValidationError{Field: "paymentId", Reason: "is required"})
	}

	var (
		out    Order
		replay bool
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return &NotFoundError{Entity: "order", ID: id}
		}
		if err != nil {
			return err
		}
		if o.IsPaid {
			if o.PaymentID != nil && *o.PaymentID == paymentID {
				out, replay = o, true
				return nil
			}
			current := ""
			if o.PaymentID != nil {
				current = *o.PaymentID
			}
			return &AlreadyPaidError{OrderID: id, PaymentID: current}
		}
		if o.Status == StatusCancelled {
			return &InvalidTransitionError{From: o.Status, To: "paid"}
		}

		now := s.now()
		paid := true
		pid := paymentID
		if err := tx.UpdateStatusFields(ctx, id, StatusFields{IsPaid: &paid, PaymentID: &pid, PaidAt: &now, UpdatedAt: now}); err != nil {
			return err
		}
		o.IsPaid, o.PaymentID, o.PaidAt, o.UpdatedAt = true, &pid, &now, now
		out = o
		return nil
	})
	if err != nil {
		return Order{}, s.fail(span, "mark as paid", err)
	}
	if replay {
		return out, nil
	}

	s.log.InfoContext(ctx, "order paid", "order_id", id, "payment_id", paymentID)
	s.publish(ctx, EventOrderPaid, id, OrderPaidPayload{OrderID: id, PaymentID: paymentID, Amount: out.Total.StringFixed(2)})
	return out, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (Order, error) {
	o, err := s.store.FindByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Order{}, &NotFoundError{Entity: "order", ID: id}
	}
	if err != nil {
		return Order{}, &StorageError{Op: "get order", Err: err}
	}
	return o, nil
}

func (s *Service) GetOrderByNumber(ctx context.Context, number string) (Order, error) {
	o, err := s.store.FindByOrderNumber(ctx, number)
	if errors.Is(err, ErrNotFound) {
		return Order{}, &NotFoundError{Entity: "order", ID: number}
	}
	if err != nil {
		return Order{}, &StorageError{Op: "get order by number", Err: err}
	}
	return o, nil
}

// ListUserOrders returns the user's orders, newest first.
func (s *Service) ListUserOrders(ctx context.Context, userID string) ([]Order, error) {
	if userID == "" {
		return nil, &ValidationError{Field: "userId", Reason: "is required"}
	}
	out, err := s.store.FindByUser(ctx, userID)
	if err != nil {
		return nil, &StorageError{Op: "list user orders", Err: err}
	}
	return out, nil
}

func (s *Service) ListOrders(ctx context.Context, f ListFilter) ([]Order, error) {
	if f.Limit == 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	out, err := s.store.ListOrders(ctx, f)
	if err != nil {
		return nil, &StorageError{Op: "list orders", Err: err}
	}
	return out, nil
}

// DeleteOrder is the administrative removal path. Stock is not returned.
func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	err := s.store.DeleteOrder(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return &NotFoundError{Entity: "order", ID: id}
	}
	if err != nil {
		return &StorageError{Op: "delete order", Err: err}
	}
	s.log.Info("order deleted", "order_id", id)
	return nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Product{}, &NotFoundError{Entity: "product", ID: id}
	}
	if err != nil {
		return Product{}, &StorageError{Op: "get product", Err: err}
	}
	return p, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	ps, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, &StorageError{Op: "list products", Err: err}
	}
	return ps, nil
}

// fail records err on the span and wraps errors outside the taxonomy in a
// StorageError.
func (s *Service) fail(span trace.Span, op string, err error) error {
	if KindOf(err) == KindStorage {
		var se *StorageError
		if !errors.As(err, &se) {
			err = &StorageError{Op: op, Err: err}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(attribute.String("error.kind", string(KindOf(err))))
	return err
}

func (s *Service) publish(ctx context.Context, eventType, orderID string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.log.ErrorContext(ctx, "encode event payload", "event_type", eventType, "error", err)
		return
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.serviceName,
		CorrelationID: orderID,
		Payload:       body,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	if err := s.pub.Publish(ctx, env); err != nil {
		s.log.WarnContext(ctx, "publish event", "event_type", eventType, "order_id", orderID, "error", err)
	}
}
