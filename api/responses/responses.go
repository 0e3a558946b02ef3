package responses

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	pkgerrors "github.com/fabrevive/pickup-payments/pkg/errors"
	"github.com/fabrevive/pickup-payments/pkg/logger"
	"github.com/fabrevive/pickup-payments/pkg/types"
)

func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode response","err":"%v"}`, err)
	}
}

// WriteError renders err as {error, code}. Only codes that expose their
// message surface it; everything else gets the code's public message.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}

	meta := pkgerrors.MetadataFor(typed.Code())
	body := types.ErrorBody{
		Error: meta.PublicMessage,
		Code:  string(typed.Code()),
	}
	if meta.ExposeMessage && typed.Message() != "" {
		body.Error = typed.Message()
	}
	if meta.DetailsAllowed {
		body.Details = typed.Details()
	}

	if logg != nil {
		ctx = logg.WithFields(ctx, pkgerrors.Dump(err).Fields())
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(ctx, "request.error", err)
		} else {
			logg.Warn(ctx, "request.rejected")
		}
	}

	WriteJSON(w, meta.HTTPStatus, body)
}

// WriteStatus writes a bare status with an empty body. Webhook responses use
// it so nothing about internal state reaches the gateway.
func WriteStatus(w http.ResponseWriter, status int) {
	w.WriteHeader(status)
}

// StatusFor maps err to the status the webhook path should answer with.
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return pkgerrors.MetadataFor(pkgerrors.CodeOf(err)).HTTPStatus
}
