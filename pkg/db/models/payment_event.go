package models

import (
	"time"

	"github.com/google/uuid"
)

type PaymentEventKind string

const (
	PaymentEventLinkIssued        PaymentEventKind = "link_issued"
	PaymentEventWebhookReconciled PaymentEventKind = "webhook_reconciled"
	PaymentEventWebhookIgnored    PaymentEventKind = "webhook_ignored"
	PaymentEventWebhookUnresolved PaymentEventKind = "webhook_unresolved"
	PaymentEventWebhookDuplicate  PaymentEventKind = "webhook_duplicate"
)

// PaymentEvent is an append-only audit row for issuance and reconciliation.
type PaymentEvent struct {
	ID             uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	DocID          string           `gorm:"column:doc_id;index"`
	Kind           PaymentEventKind `gorm:"column:kind;not null"`
	GatewayEventID string           `gorm:"column:gateway_event_id"`
	EventType      string           `gorm:"column:event_type"`
	LinkID         string           `gorm:"column:link_id"`
	AmountMinor    int64            `gorm:"column:amount_minor"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
}

func (PaymentEvent) TableName() string {
	return "payment_events"
}

// IsValid reports whether k is one of the known event kinds.
func (k PaymentEventKind) IsValid() bool {
	switch k {
	case PaymentEventLinkIssued, PaymentEventWebhookReconciled, PaymentEventWebhookIgnored,
		PaymentEventWebhookUnresolved, PaymentEventWebhookDuplicate:
		return true
	default:
		return false
	}
}
