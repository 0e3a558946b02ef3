package controllers

import (
	"context"
	"net/http"

	"github.com/fabrevive/pickup-payments/api/responses"
	"github.com/fabrevive/pickup-payments/internal/diagnostics"
	"github.com/fabrevive/pickup-payments/pkg/types"
)

// Health answers connectivity checks and echoes the caller's origin.
func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := types.HealthResponse{OK: true}
		if origin := r.Header.Get("Origin"); origin != "" {
			resp.Origin = &origin
		}
		responses.WriteJSON(w, http.StatusOK, resp)
	}
}

// DiagnosticsRunner produces a diagnostics report.
type DiagnosticsRunner interface {
	Run(ctx context.Context) diagnostics.Report
}

// Diagnostics reports configuration presence and dependency reachability.
func Diagnostics(checker DiagnosticsRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			responses.WriteJSON(w, http.StatusOK, diagnostics.Report{OK: true})
			return
		}
		responses.WriteJSON(w, http.StatusOK, checker.Run(r.Context()))
	}
}
