package httpx

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/campus-shop/internal/metrics"
	"github.com/ariefcatur/campus-shop/internal/orders"
)

const (
	HeaderIdempotencyKey   = "Idempotency-Key"
	HeaderIdempotentReplay = "Idempotent-Replay"
)

type orderService interface {
	CreateOrder(ctx context.Context, in orders.CreateOrderInput) (orders.Order, error)
	UpdateStatus(ctx context.Context, id string, to orders.Status) (orders.Order, error)
	MarkAsPaid(ctx context.Context, id, paymentID string) (orders.Order, error)
	GetOrder(ctx context.Context, id string) (orders.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (orders.Order, error)
	ListUserOrders(ctx context.Context, userID string) ([]orders.Order, error)
	ListOrders(ctx context.Context, f orders.ListFilter) ([]orders.Order, error)
	DeleteOrder(ctx context.Context, id string) error
}

// OrderCache is a read-through cache for GET /orders/{id}. Set must keep the
// copy with the newest UpdatedAt, and Invalidate must keep a removed order
// from being cached again, so a slow read never overwrites a later write.
type OrderCache interface {
	Get(ctx context.Context, id string) (orders.Order, bool, error)
	Set(ctx context.Context, o orders.Order) error
	Invalidate(ctx context.Context, id string) error
}

type IdempotencyStore interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	Remember(ctx context.Context, key, orderID string) error
}

type OrdersHandler struct {
	Service orderService
	Cache   OrderCache       // optional
	Idem    IdempotencyStore // optional
	Metrics *metrics.ServerMetrics
	Timeout time.Duration
}

type orderItemReq struct {
	ProductID   string              `json:"productId"`
	Quantity    int                 `json:"quantity"`
	Price       decimal.NullDecimal `json:"price"`
	ProductName string              `json:"productName,omitempty"`
}

type createOrderReq struct {
	UserID             string         `json:"userId"`
	OrderItems         []orderItemReq `json:"orderItems"`
	ShippingAddress    string         `json:"shippingAddress"`
	ShippingCity       string         `json:"shippingCity"`
	ShippingPostalCode string         `json:"shippingPostalCode"`
	ShippingCountry    string         `json:"shippingCountry"`
	PaymentMethod      string         `json:"paymentMethod"`
	Status             string         `json:"status"`
}

type updateStatusReq struct {
	Status string `json:"status"`
}

type markPaidReq struct {
	PaymentID string `json:"paymentId"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	if h.Cache == nil {
		h.Cache = nopCache{}
	}
	if h.Idem == nil {
		h.Idem = nopIdempotency{}
	}
	if h.Timeout <= 0 {
		h.Timeout = 5 * time.Second
	}
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/", h.listOrders)
		r.Get("/my-orders", h.myOrders)
		r.Get("/number/{orderNumber}", h.getOrderByNumber)
		r.Get("/{id}", h.getOrder)
		r.Patch("/{id}/status", h.updateStatus)
		r.Patch("/{id}/pay", h.markAsPaid)
		r.Delete("/{id}", h.deleteOrder)
	})
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "invalid json")
		return
	}
	if req.UserID == "" {
		if s, ok := SessionFrom(r.Context()); ok {
			req.UserID = s.UserID
		}
	}
	if req.Status != "" {
		if st, ok := orders.ParseStatus(req.Status); !ok || st != orders.StatusPending {
			writeError(w, r, &orders.ValidationError{Field: "status", Reason: "new orders must be pending"})
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	// Fast-path idempotency via Redis, DB tetap jadi kebenaran.
	idemKey := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if idemKey != "" {
		idemKey = req.UserID + ":" + idemKey
		if id, ok, err := h.Idem.Lookup(ctx, idemKey); err != nil {
			slog.WarnContext(ctx, "idempotency lookup", "error", err)
		} else if ok {
			if o, err := h.Service.GetOrder(ctx, id); err == nil {
				w.Header().Set(HeaderIdempotentReplay, "true")
				writeJSON(w, http.StatusOK, o)
				return
			}
		}
	}

	in := orders.CreateOrderInput{
		UserID:        req.UserID,
		Lines:         make([]orders.LineInput, 0, len(req.OrderItems)),
		PaymentMethod: req.PaymentMethod,
		Shipping: orders.Shipping{
			Address:    req.ShippingAddress,
			City:       req.ShippingCity,
			PostalCode: req.ShippingPostalCode,
			Country:    req.ShippingCountry,
		},
	}
	for _, it := range req.OrderItems {
		in.Lines = append(in.Lines, orders.LineInput{
			ProductID:   it.ProductID,
			Quantity:    it.Quantity,
			UnitPrice:   it.Price,
			ProductName: it.ProductName,
		})
	}

	o, err := h.Service.CreateOrder(ctx, in)
	h.observe("create", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if idemKey != "" {
		if err := h.Idem.Remember(ctx, idemKey, o.ID); err != nil {
			slog.WarnContext(ctx, "idempotency remember", "order_id", o.ID, "error", err)
		}
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "invalid json")
		return
	}
	to, ok := orders.ParseStatus(req.Status)
	if !ok {
		writeError(w, r, &orders.ValidationError{Field: "status", Reason: "is not a known status"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	o, err := h.Service.UpdateStatus(ctx, id, to)
	h.observe("update_status", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.refresh(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) markAsPaid(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req markPaidReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	o, err := h.Service.MarkAsPaid(ctx, id, strings.TrimSpace(req.PaymentID))
	h.observe("mark_paid", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.refresh(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	// 1) coba cache
	if o, ok, err := h.Cache.Get(ctx, id); err == nil && ok {
		writeJSON(w, http.StatusOK, o)
		return
	} else if err != nil {
		slog.WarnContext(ctx, "order cache get", "order_id", id, "error", err)
	}

	// 2) fallback DB
	o, err := h.Service.GetOrder(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Cache.Set(ctx, o); err != nil {
		slog.WarnContext(ctx, "order cache set", "order_id", id, "error", err)
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	o, err := h.Service.GetOrderByNumber(ctx, chi.URLParam(r, "orderNumber"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) myOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if s, ok := SessionFrom(r.Context()); ok {
		userID = s.UserID
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	out, err := h.Service.ListUserOrders(ctx, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	var f orders.ListFilter
	q := r.URL.Query()
	for name, dst := range map[string]*uint64{"limit": &f.Limit, "offset": &f.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			writeError(w, r, &orders.ValidationError{Field: name, Reason: "must be a non-negative integer"})
			return
		}
		*dst = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	out, err := h.Service.ListOrders(ctx, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	err := h.Service.DeleteOrder(ctx, id)
	h.observe("delete", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.invalidate(ctx, id)
	w.WriteHeader(http.StatusNoContent)
}

// refresh writes the order produced by a write path through to the cache.
func (h *OrdersHandler) refresh(ctx context.Context, o orders.Order) {
	if err := h.Cache.Set(ctx, o); err != nil {
		slog.WarnContext(ctx, "order cache refresh", "order_id", o.ID, "error", err)
		h.invalidate(ctx, o.ID)
	}
}

func (h *OrdersHandler) invalidate(ctx context.Context, id string) {
	if err := h.Cache.Invalidate(ctx, id); err != nil {
		slog.WarnContext(ctx, "order cache invalidate", "order_id", id, "error", err)
	}
}

func (h *OrdersHandler) observe(op string, err error) {
	if h.Metrics != nil {
		h.Metrics.ObserveOrderOp(op, err)
	}
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) (orders.Order, bool, error) { return orders.Order{}, false, nil }
func (nopCache) Set(context.Context, orders.Order) error                 { return nil }
func (nopCache) Invalidate(context.Context, string) error                { return nil }

type nopIdempotency struct{}

func (nopIdempotency) Lookup(context.Context, string) (string, bool, error) { return "", false, nil }
func (nopIdempotency) Remember(context.Context, string, string) error       { return nil }
