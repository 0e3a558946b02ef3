package ledger

import (
	"context"

	"gorm.io/gorm"

	"github.com/fabrevive/pickup-payments/pkg/db/models"
)

// Repository manages persistence for payment events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, event *models.PaymentEvent) error
	ListByDocID(ctx context.Context, docID string) ([]models.PaymentEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment event repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, event *models.PaymentEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListByDocID(ctx context.Context, docID string) ([]models.PaymentEvent, error) {
	var events []models.PaymentEvent
	if err := r.db.WithContext(ctx).
		Where("doc_id = ?", docID).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
