package razorpaywebhook

import (
	"bytes"
	"encoding/json"
	"strings"
)

const (
	EventPaymentLinkPaid = "payment_link.paid"
	EventPaymentPaid     = "payment.paid"
)

// Event is the subset of a Razorpay webhook this service reads.
type Event struct {
	Event   string  `json:"event"`
	Payload Payload `json:"payload"`
}

type Payload struct {
	PaymentLink *EntityEnvelope `json:"payment_link"`
	Payment     *EntityEnvelope `json:"payment"`
}

type EntityEnvelope struct {
	Entity Entity `json:"entity"`
}

type Entity struct {
	ID          string `json:"id"`
	ReferenceID string `json:"reference_id"`
	Description string `json:"description"`
	Notes       Notes  `json:"notes"`
}

// Notes is Razorpay's free-form notes object. Empty notes arrive as [] and
// values are not always strings.
type Notes map[string]string

func (n *Notes) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		*n = Notes{}
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return err
	}
	out := make(Notes, len(raw))
	for k, v := range raw {
		if s, ok := noteString(v); ok {
			out[k] = s
		}
	}
	*n = out
	return nil
}

func noteString(v json.RawMessage) (string, bool) {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return "", false
	}
	if v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", false
		}
		return s, true
	}
	if v[0] == '{' || v[0] == '[' {
		return "", false
	}
	return string(v), true
}

// ParseEvent decodes a verified webhook body.
func ParseEvent(raw []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// IsPaid reports whether the event type settles a booking.
func (e *Event) IsPaid() bool {
	return e.Event == EventPaymentLinkPaid || e.Event == EventPaymentPaid
}

func (e *Event) paymentLink() Entity {
	if e.Payload.PaymentLink == nil {
		return Entity{}
	}
	return e.Payload.PaymentLink.Entity
}

func (e *Event) payment() Entity {
	if e.Payload.Payment == nil {
		return Entity{}
	}
	return e.Payload.Payment.Entity
}

type referenceStrategy func(*Event) string

// Tried in order; the first non-empty value wins.
var referenceStrategies = []referenceStrategy{
	func(e *Event) string { return e.paymentLink().ReferenceID },
	func(e *Event) string { return e.payment().Notes["reference_id"] },
	func(e *Event) string { return e.payment().Description },
}

// Reference returns the booking reference carried by the event, or "".
func (e *Event) Reference() string {
	for _, strategy := range referenceStrategies {
		if ref := strings.TrimSpace(strategy(e)); ref != "" {
			return ref
		}
	}
	return ""
}

// DocID recovers the booking id: the text after the first colon of the
// reference, else the payment link's notes.docId.
func (e *Event) DocID() string {
	ref := e.Reference()
	if _, after, found := strings.Cut(ref, ":"); found {
		return strings.TrimSpace(after)
	}
	return strings.TrimSpace(e.paymentLink().Notes["docId"])
}

// LinkID returns the payment link id when the event carries one.
func (e *Event) LinkID() string {
	return e.paymentLink().ID
}
