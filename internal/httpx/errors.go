package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ariefcatur/campus-shop/internal/orders"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind        orders.Kind   `json:"kind"`
	Message     string        `json:"message"`
	Field       string        `json:"field,omitempty"`
	ProductID   string        `json:"productId,omitempty"`
	ProductName string        `json:"productName,omitempty"`
	Requested   int           `json:"requested,omitempty"`
	Available   *int          `json:"available,omitempty"`
	From        orders.Status `json:"from,omitempty"`
	To          orders.Status `json:"to,omitempty"`
}

var statusByKind = map[orders.Kind]int{
	orders.KindValidation:        http.StatusBadRequest,
	orders.KindNotFound:          http.StatusNotFound,
	orders.KindInsufficientStock: http.StatusConflict,
	orders.KindInvalidTransition: http.StatusConflict,
	orders.KindAlreadyPaid:       http.StatusConflict,
	orders.KindStorage:           http.StatusInternalServerError,
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := orders.KindOf(err)
	d := errorDetail{Kind: kind, Message: err.Error()}

	var (
		ve  *orders.ValidationError
		ise *orders.InsufficientStockError
		ite *orders.InvalidTransitionError
	)
	switch {
	case errors.As(err, &ve):
		d.Field = ve.Field
	case errors.As(err, &ise):
		avail := ise.Available
		d.ProductID, d.ProductName, d.Requested, d.Available = ise.ProductID, ise.ProductName, ise.Requested, &avail
	case errors.As(err, &ite):
		d.From, d.To = ite.From, ite.To
	}
	if kind == orders.KindStorage {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		d.Message = "internal storage error"
	}
	writeJSON(w, statusByKind[kind], errorBody{Error: d})
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeError(w, r, &orders.ValidationError{Reason: msg})
}
