package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/fabrevive/pickup-payments/api/responses"
	"github.com/fabrevive/pickup-payments/api/validators"
	"github.com/fabrevive/pickup-payments/internal/ledger"
	razorpaywebhook "github.com/fabrevive/pickup-payments/internal/webhooks/razorpay"
	"github.com/fabrevive/pickup-payments/pkg/db/models"
	"github.com/fabrevive/pickup-payments/pkg/logger"
	"github.com/fabrevive/pickup-payments/pkg/metrics"
)

const (
	maxWebhookBodyBytes = 1 << 20
	maxEventIDLen       = 128
)

type secretSource interface {
	WebhookSecret() (string, error)
}

type eventReconciler interface {
	Reconcile(ctx context.Context, event *razorpaywebhook.Event, deliveryID string) (razorpaywebhook.Result, error)
}

type deliveryGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Complete(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

type RazorpayParams struct {
	Secrets    secretSource
	Reconciler eventReconciler
	Guard      deliveryGuard
	Ledger     razorpaywebhook.EventRecorder
	Metrics    *metrics.PaymentMetrics
	Logger     *logger.Logger
}

// RazorpayWebhook verifies and reconciles gateway callbacks. Responses carry
// no body: 200 when handled or deliberately ignored, 400 for a bad signature,
// 500 when the gateway should retry.
func RazorpayWebhook(p RazorpayParams) http.HandlerFunc {
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	guard := p.Guard

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if p.Secrets == nil || p.Reconciler == nil {
			logg.Error(ctx, "webhook.not_configured", errors.New("webhook dependencies missing"))
			responses.WriteStatus(w, http.StatusInternalServerError)
			return
		}

		secret, err := p.Secrets.WebhookSecret()
		if err != nil {
			logg.Error(ctx, "webhook.secret_missing", err)
			p.Metrics.IncWebhook(metrics.OutcomeFailed)
			responses.WriteStatus(w, http.StatusInternalServerError)
			return
		}

		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
		if err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "webhook.read_failed")
			p.Metrics.IncWebhook(metrics.OutcomeMalformed)
			responses.WriteStatus(w, http.StatusBadRequest)
			return
		}

		signature := r.Header.Get(razorpaywebhook.SignatureHeader)
		if signature == "" {
			signature = r.Header.Get(razorpaywebhook.FallbackSignatureHeader)
		}
		ok, err := razorpaywebhook.Verify(raw, signature, secret)
		if err != nil {
			logg.Error(ctx, "webhook.verify_failed", err)
			p.Metrics.IncWebhook(metrics.OutcomeFailed)
			responses.WriteStatus(w, http.StatusInternalServerError)
			return
		}
		if !ok {
			logg.Warn(ctx, "webhook.invalid_signature")
			p.Metrics.IncWebhook(metrics.OutcomeBadSignature)
			responses.WriteStatus(w, http.StatusBadRequest)
			return
		}

		event, err := razorpaywebhook.ParseEvent(raw)
		if err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "webhook.malformed_payload")
			p.Metrics.IncWebhook(metrics.OutcomeMalformed)
			responses.WriteStatus(w, http.StatusOK)
			return
		}

		eventID := validators.SanitizeString(r.Header.Get(razorpaywebhook.EventIDHeader), maxEventIDLen)
		if eventID != "" {
			ctx = logg.WithEventID(ctx, eventID)
		}

		claimed := false
		if guard != nil && eventID != "" {
			duplicate, err := guard.Claim(ctx, eventID)
			switch {
			case err != nil:
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "webhook.guard_unavailable")
			case duplicate:
				logg.Info(ctx, "webhook.duplicate")
				p.Metrics.IncWebhook(metrics.OutcomeDuplicate)
				if p.Ledger != nil {
					p.Ledger.Record(ctx, ledger.RecordEventInput{
						Kind:           models.PaymentEventWebhookDuplicate,
						GatewayEventID: eventID,
						EventType:      event.Event,
						LinkID:         event.LinkID(),
					})
				}
				responses.WriteStatus(w, http.StatusOK)
				return
			default:
				claimed = true
			}
		}

		result, err := p.Reconciler.Reconcile(ctx, event, eventID)
		if err != nil {
			logg.Error(ctx, "webhook.reconcile_failed", err)
			if claimed {
				if releaseErr := guard.Release(ctx, eventID); releaseErr != nil {
					logg.Warn(logg.WithField(ctx, "error", releaseErr.Error()), "webhook.guard_release_failed")
				}
			}
			p.Metrics.IncWebhook(metrics.OutcomeFailed)
			responses.WriteStatus(w, http.StatusInternalServerError)
			return
		}

		if claimed {
			if completeErr := guard.Complete(ctx, eventID); completeErr != nil {
				logg.Warn(logg.WithField(ctx, "error", completeErr.Error()), "webhook.guard_complete_failed")
			}
		}
		p.Metrics.IncWebhook(string(result.Outcome))
		responses.WriteStatus(w, http.StatusOK)
	}
}
