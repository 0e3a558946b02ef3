package diagnostics

import (
	"context"
	"strings"
	"time"

	"github.com/fabrevive/pickup-payments/pkg/config"
	"github.com/fabrevive/pickup-payments/pkg/logger"
)

const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"

	defaultProbeTimeout = 3 * time.Second
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// StorePinger pings the booking store, building it on first use.
type StorePinger interface {
	PingStore(ctx context.Context) error
}

// Report is the diagnostics body. It never carries secret values or raw error text.
type Report struct {
	OK     bool   `json:"ok"`
	Checks Checks `json:"checks"`
}

type Checks struct {
	Env                   EnvChecks `json:"env"`
	StoreCredentialsParse string    `json:"storeCredentialsParse"`
	Store                 string    `json:"store"`
	Redis                 string    `json:"redis"`
	Ledger                string    `json:"ledger"`
}

type EnvChecks struct {
	HasStoreCredentials bool `json:"hasStoreCredentials"`
	HasGatewayKeyID     bool `json:"hasGatewayKeyId"`
	HasGatewayKeySecret bool `json:"hasGatewayKeySecret"`
	HasWebhookSecret    bool `json:"hasWebhookSecret"`
}

type Params struct {
	GCP      config.GCPConfig
	Razorpay config.RazorpayConfig
	Store    StorePinger
	Redis    Pinger
	Ledger   Pinger
	Timeout  time.Duration
	Logger   *logger.Logger
}

// Checker probes configuration and connectivity.
type Checker struct {
	gcp      config.GCPConfig
	razorpay config.RazorpayConfig
	store    StorePinger
	redis    Pinger
	ledger   Pinger
	timeout  time.Duration
	logg     *logger.Logger
}

func NewChecker(params Params) *Checker {
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &Checker{
		gcp:      params.GCP,
		razorpay: params.Razorpay,
		store:    params.Store,
		redis:    params.Redis,
		ledger:   params.Ledger,
		timeout:  timeout,
		logg:     params.Logger,
	}
}

// Run collects every check. Failures are reported per check; Run itself does not fail.
func (c *Checker) Run(ctx context.Context) Report {
	parse := c.gcp.CredentialsParse()
	report := Report{
		OK: true,
		Checks: Checks{
			Env: EnvChecks{
				HasStoreCredentials: present(c.gcp.CredentialsJSON),
				HasGatewayKeyID:     present(c.razorpay.KeyID),
				HasGatewayKeySecret: present(c.razorpay.KeySecret),
				HasWebhookSecret:    present(c.razorpay.WebhookSecret),
			},
			StoreCredentialsParse: parse,
			Store:                 StatusSkipped,
			Redis:                 StatusSkipped,
			Ledger:                StatusSkipped,
		},
	}

	if parse == config.CredentialsOK && c.store != nil {
		report.Checks.Store = c.probe(ctx, "store", c.store.PingStore)
	}
	if c.redis != nil {
		report.Checks.Redis = c.probe(ctx, "redis", c.redis.Ping)
	}
	if c.ledger != nil {
		report.Checks.Ledger = c.probe(ctx, "ledger", c.ledger.Ping)
	}
	return report
}

func (c *Checker) probe(ctx context.Context, name string, ping func(context.Context) error) string {
	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := ping(probeCtx); err != nil {
		if c.logg != nil {
			c.logg.Warn(c.logg.WithFields(ctx, map[string]any{"check": name, "error": err.Error()}), "diagnostics.check_failed")
		}
		return StatusError
	}
	return StatusOK
}

func present(v string) bool {
	return strings.TrimSpace(v) != ""
}
