package controllers

import (
	"context"
	"net/http"

	"github.com/fabrevive/pickup-payments/api/responses"
	"github.com/fabrevive/pickup-payments/api/validators"
	"github.com/fabrevive/pickup-payments/internal/paymentlinks"
	pkgerrors "github.com/fabrevive/pickup-payments/pkg/errors"
	"github.com/fabrevive/pickup-payments/pkg/logger"
	"github.com/fabrevive/pickup-payments/pkg/types"
)

const maxDocIDLen = 1500

// LinkIssuer issues a payment link for one booking.
type LinkIssuer interface {
	Issue(ctx context.Context, docID string) (*paymentlinks.IssueResult, error)
}

type createPaymentLinkRequest struct {
	DocID string `json:"docId" validate:"max=1500,excludes=/"`
}

// CreatePaymentLink handles POST /payment-links.
func CreatePaymentLink(svc LinkIssuer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment link service unavailable"))
			return
		}

		var req createPaymentLinkRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Issue(r.Context(), validators.SanitizeString(req.DocID, maxDocIDLen))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteJSON(w, http.StatusOK, types.PaymentLinkResponse{
			LinkURL:        result.LinkURL,
			CustomerName:   result.CustomerName,
			CustomerMobile: result.CustomerMobile,
			Amount:         result.Amount,
		})
	}
}
