package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fabrevive/pickup-payments/api/controllers"
	webhookcontrollers "github.com/fabrevive/pickup-payments/api/controllers/webhooks"
	"github.com/fabrevive/pickup-payments/api/middleware"
	"github.com/fabrevive/pickup-payments/internal/diagnostics"
	"github.com/fabrevive/pickup-payments/internal/origin"
	"github.com/fabrevive/pickup-payments/internal/paymentlinks"
	"github.com/fabrevive/pickup-payments/pkg/logger"
)

// Deps carries everything the router mounts. Nil fields degrade to handlers
// that answer 500 rather than panicking.
type Deps struct {
	Logger      *logger.Logger
	Gate        *origin.Gate
	PaymentLink *paymentlinks.Service
	Diagnostics *diagnostics.Checker
	Webhook     webhookcontrollers.RazorpayParams
	Gatherer    prometheus.Gatherer
}

func NewRouter(deps Deps) http.Handler {
	logg := deps.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Group(func(r chi.Router) {
		r.Use(middleware.OriginGate(deps.Gate, logg))

		var issuer controllers.LinkIssuer
		if deps.PaymentLink != nil {
			issuer = deps.PaymentLink
		}
		r.Post("/payment-links", controllers.CreatePaymentLink(issuer, logg))
		r.Get("/health", controllers.Health())

		var checker controllers.DiagnosticsRunner
		if deps.Diagnostics != nil {
			checker = deps.Diagnostics
		}
		r.Get("/diagnostics", controllers.Diagnostics(checker))

		for _, path := range []string{"/payment-links", "/health", "/diagnostics"} {
			r.Options(path, noContent)
		}
	})

	webhook := webhookcontrollers.RazorpayWebhook(deps.Webhook)
	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/payment", webhook)
		r.Post("/razorpay", webhook)
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}

// The origin gate answers preflight before this runs.
func noContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
