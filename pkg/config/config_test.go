package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.App.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.App.Port)
	}
	if cfg.GCP.FirestoreCollection != "pickup_bookings" {
		t.Fatalf("unexpected collection %q", cfg.GCP.FirestoreCollection)
	}
	if cfg.Payment.Currency != "INR" {
		t.Fatalf("expected INR currency, got %q", cfg.Payment.Currency)
	}
	if cfg.Webhook.PaidAtPolicy != PaidAtFirstWrite {
		t.Fatalf("expected first_write policy, got %q", cfg.Webhook.PaidAtPolicy)
	}
	if got := cfg.Webhook.IdempotencyTTL; got != 72*time.Hour {
		t.Fatalf("expected webhook ttl 72h, got %v", got)
	}
	if got := cfg.Webhook.ClaimTTL; got != 2*time.Minute {
		t.Fatalf("expected webhook claim ttl 2m, got %v", got)
	}
	if got := cfg.Resilience.StoreTimeout; got != 5*time.Second {
		t.Fatalf("expected store timeout 5s, got %v", got)
	}
	if cfg.Redis.Enabled() || cfg.DB.Enabled() || cfg.PubSub.PublisherEnabled() {
		t.Fatal("expected optional backends to be disabled")
	}
}

func TestLoad_Overrides(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvCORSAllowedOrigins, "https://a.example, https://b.example,")
	t.Setenv(EnvPaidAtPolicy, PaidAtAlwaysLatest)
	t.Setenv(EnvStoreTimeout, "2s")
	t.Setenv(EnvRedisURL, "redis://localhost:6379/0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	origins := cfg.CORS.Origins()
	if len(origins) != 2 || origins[0] != "https://a.example" || origins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", origins)
	}
	if cfg.Webhook.PaidAtPolicy != PaidAtAlwaysLatest {
		t.Fatalf("expected always_latest, got %q", cfg.Webhook.PaidAtPolicy)
	}
	if cfg.Resilience.StoreTimeout != 2*time.Second {
		t.Fatalf("expected 2s store timeout, got %v", cfg.Resilience.StoreTimeout)
	}
	if !cfg.Redis.Enabled() {
		t.Fatal("expected redis enabled")
	}
}

func TestLoad_InvalidPaidAtPolicy(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvPaidAtPolicy, "sometimes")

	if _, err := Load(); err == nil {
		t.Fatal("expected invalid paid-at policy to return an error")
	}
}

func TestGCPConfig_CredentialsParse(t *testing.T) {
	cases := map[string]struct {
		raw  string
		want string
	}{
		"missing": {raw: "  ", want: CredentialsMissing},
		"invalid": {raw: "{not json", want: CredentialsParseError},
		"ok":      {raw: `{"project_id":"proj-1"}`, want: CredentialsOK},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got := GCPConfig{CredentialsJSON: tc.raw}.CredentialsParse()
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestGCPConfig_ResolvedProjectID(t *testing.T) {
	explicit := GCPConfig{ProjectID: "explicit", CredentialsJSON: `{"project_id":"from-json"}`}
	if got := explicit.ResolvedProjectID(); got != "explicit" {
		t.Fatalf("expected explicit project, got %q", got)
	}

	fallback := GCPConfig{CredentialsJSON: `{"project_id":"from-json"}`}
	if got := fallback.ResolvedProjectID(); got != "from-json" {
		t.Fatalf("expected project from credentials, got %q", got)
	}
}

func setMinimalEnv(t *testing.T) {
	t.Helper()

	t.Setenv(EnvAppEnv, "dev")
	t.Setenv(EnvRazorpayKeyID, "rzp_test_key")
	t.Setenv(EnvRazorpayKeySecret, "rzp_test_secret")
	t.Setenv(EnvRazorpayWebhookSecret, "whsec")
	t.Setenv(EnvGCPCredentialsJSON, `{"project_id":"proj-1"}`)
	t.Setenv(EnvRedisURL, "")
	t.Setenv(EnvDBDSN, "")
	t.Setenv(EnvPubSubCompensationTopic, "")
}
