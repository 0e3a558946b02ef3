package bookings

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	StatusDelivered = "delivered"

	PaymentStatusPending = "Pending"
	PaymentStatusPaid    = "Paid"

	CashStatusReceived = "Received"

	DefaultCustomerName = "Customer"
)

// GatewayLink is the payment link linkage stored under the booking's razorpay map.
type GatewayLink struct {
	LinkID         string  `json:"linkId"`
	LinkURL        string  `json:"linkURL"`
	RecordedAmount float64 `json:"recordedAmount"`
}

// Booking is the projection of a pickup booking document this service reads.
// Amount fields keep their raw stored value; nil means the field is absent.
type Booking struct {
	DocID             string
	Status            string
	PickupTotalAmount any
	TotalAmount       any
	CustomerName      string
	CustomerMobile    string
	PaymentStatus     string
	CashStatus        string
	Gateway           *GatewayLink
	PaidAt            *time.Time
}

// IsChargeable reports whether the booking has been delivered.
func (b *Booking) IsChargeable() bool {
	return strings.EqualFold(strings.TrimSpace(b.Status), StatusDelivered)
}

// IsPaid reports whether reconciliation already marked the booking paid.
func (b *Booking) IsPaid() bool {
	return b.PaymentStatus == PaymentStatusPaid
}

// ResolveAmount prefers pickupDetails.totalAmount and falls back to totalAmount
// only when the former is absent. The result must be finite and positive.
func (b *Booking) ResolveAmount() (float64, bool) {
	raw := b.PickupTotalAmount
	if raw == nil {
		raw = b.TotalAmount
	}
	return parseAmount(raw)
}

// DisplayName returns the trimmed customer name or the default.
func (b *Booking) DisplayName() string {
	if name := strings.TrimSpace(b.CustomerName); name != "" {
		return name
	}
	return DefaultCustomerName
}

// ContactDigits returns the customer mobile with everything but digits removed.
func (b *Booking) ContactDigits() string {
	return DigitsOnly(b.CustomerMobile)
}

// DigitsOnly strips every non-digit rune.
func DigitsOnly(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r < unicode.MaxASCII && unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func parseAmount(raw any) (float64, bool) {
	var v float64
	switch n := raw.(type) {
	case nil:
		return 0, false
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	case int32:
		v = float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		v = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		v = f
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return v, true
}

// ValidDocID reports whether id can address a single document in the collection.
func ValidDocID(id string) bool {
	if id == "" || id == "." || id == ".." || len(id) > 1500 {
		return false
	}
	if strings.Contains(id, "/") {
		return false
	}
	if strings.HasPrefix(id, "__") && strings.HasSuffix(id, "__") {
		return false
	}
	return true
}
