package orders

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

const orderNumberLayout = "20060102150405"

// NewOrderNumber returns ORD-<utc timestamp>-<6 random hex chars>.
func NewOrderNumber(t time.Time) string {
	id := uuid.New()
	return "ORD-" + t.UTC().Format(orderNumberLayout) + "-" + strings.ToUpper(hex.EncodeToString(id[:3]))
}
