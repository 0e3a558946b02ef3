package bookings

import (
	"context"
	"errors"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pkgerrors "github.com/fabrevive/pickup-payments/pkg/errors"
	"github.com/fabrevive/pickup-payments/pkg/resilience"
)

// Stored field names on a booking document.
const (
	fieldStatus        = "status"
	fieldPickupDetails = "pickupDetails"
	fieldTotalAmount   = "totalAmount"
	fieldName          = "Name"
	fieldMobile        = "Mobile"
	fieldPaymentStatus = "paymentStatus"
	fieldCashStatus    = "cashStatus"
	fieldPaidAt        = "paidAt"
	fieldGateway       = "razorpay"
	fieldLinkID        = "paymentLinkId"
	fieldLinkURL       = "paymentLinkURL"
	fieldAmount        = "amount"
)

type firestoreRepository struct {
	client     *firestore.Client
	collection string
	policy     resilience.Policy
}

// NewFirestoreRepository returns a Repository over the named collection.
func NewFirestoreRepository(client *firestore.Client, collection string, policy resilience.Policy) Repository {
	return &firestoreRepository{client: client, collection: collection, policy: policy}
}

func (r *firestoreRepository) doc(docID string) *firestore.DocumentRef {
	return r.client.Collection(r.collection).Doc(docID)
}

func (r *firestoreRepository) Get(ctx context.Context, docID string) (*Booking, error) {
	if !ValidDocID(docID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
	}

	var snap *firestore.DocumentSnapshot
	err := resilience.Do(ctx, r.policy, IsTransient, func(ctx context.Context) error {
		var getErr error
		snap, getErr = r.doc(docID).Get(ctx)
		return getErr
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load booking")
	}
	if snap == nil || !snap.Exists() {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
	}
	return bookingFromData(docID, snap.Data()), nil
}

// MergeUpdate reads the stored document and writes the patch in one
// transaction, so a Paid booking is never moved back by a late patch.
func (r *firestoreRepository) MergeUpdate(ctx context.Context, docID string, patch Patch) error {
	if !ValidDocID(docID) {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid booking id")
	}
	if patch.IsEmpty() {
		return nil
	}
	ref := r.doc(docID)

	err := resilience.Do(ctx, r.policy, IsTransient, func(ctx context.Context) error {
		return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			snap, getErr := tx.Get(ref)
			if getErr != nil && status.Code(getErr) != codes.NotFound {
				return getErr
			}
			var stored map[string]interface{}
			if getErr == nil && snap != nil && snap.Exists() {
				stored = snap.Data()
			}
			effective := patch.Against(stringify(stored[fieldPaymentStatus]), stored[fieldPaidAt] != nil)
			if effective.IsEmpty() {
				return nil
			}
			return tx.Set(ref, patchData(effective), firestore.MergeAll)
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "merge booking")
	}
	return nil
}

// IsTransient classifies store errors worth retrying.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted, codes.Internal:
		return true
	default:
		return false
	}
}

func patchData(p Patch) map[string]interface{} {
	data := map[string]interface{}{}
	if p.PaymentStatus != "" {
		data[fieldPaymentStatus] = p.PaymentStatus
	}
	if p.CashStatus != "" {
		data[fieldCashStatus] = p.CashStatus
	}
	if p.Gateway != nil {
		data[fieldGateway] = map[string]interface{}{
			fieldLinkID:  p.Gateway.LinkID,
			fieldLinkURL: p.Gateway.LinkURL,
			fieldAmount:  p.Gateway.RecordedAmount,
		}
	}
	if p.PaidAt != PaidAtUnchanged {
		data[fieldPaidAt] = firestore.ServerTimestamp
	}
	return data
}

func bookingFromData(docID string, data map[string]interface{}) *Booking {
	b := &Booking{
		DocID:          docID,
		Status:         stringify(data[fieldStatus]),
		TotalAmount:    data[fieldTotalAmount],
		CustomerName:   stringify(data[fieldName]),
		CustomerMobile: stringify(data[fieldMobile]),
		PaymentStatus:  stringify(data[fieldPaymentStatus]),
		CashStatus:     stringify(data[fieldCashStatus]),
	}
	if details, ok := data[fieldPickupDetails].(map[string]interface{}); ok {
		b.PickupTotalAmount = details[fieldTotalAmount]
	}
	if gw, ok := data[fieldGateway].(map[string]interface{}); ok {
		link := &GatewayLink{
			LinkID:  stringify(gw[fieldLinkID]),
			LinkURL: stringify(gw[fieldLinkURL]),
		}
		if amount, ok := parseAmount(gw[fieldAmount]); ok {
			link.RecordedAmount = amount
		}
		b.Gateway = link
	}
	if ts, ok := data[fieldPaidAt].(time.Time); ok {
		b.PaidAt = &ts
	}
	return b
}

// stringify renders scalar document values; mobile numbers are sometimes stored as numbers.
func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
