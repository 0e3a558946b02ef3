package middleware

import (
	"net/http"

	"github.com/fabrevive/pickup-payments/api/responses"
	"github.com/fabrevive/pickup-payments/internal/origin"
	pkgerrors "github.com/fabrevive/pickup-payments/pkg/errors"
	"github.com/fabrevive/pickup-payments/pkg/logger"
)

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization, Accept, Idempotency-Key, X-Request-Id"
	corsMaxAge       = "86400"
)

// OriginGate applies the gate's decision: access-control headers on every
// response, 204 for preflight, 403 for browser origins off the allowlist.
func OriginGate(gate *origin.Gate, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestOrigin := r.Header.Get("Origin")
			decision := gate.Decide(requestOrigin, r.Method)

			h := w.Header()
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Max-Age", corsMaxAge)
			if decision.AllowOrigin != "" {
				h.Set("Access-Control-Allow-Origin", decision.AllowOrigin)
			}
			if decision.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			switch decision.Outcome {
			case origin.Preflight:
				w.WriteHeader(http.StatusNoContent)
				return
			case origin.Denied:
				ctx := r.Context()
				if logg != nil {
					ctx = logg.WithOrigin(ctx, requestOrigin)
				}
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "origin not allowed"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
