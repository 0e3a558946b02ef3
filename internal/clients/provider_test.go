package clients

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/fabrevive/pickup-payments/internal/bookings/bookingstest"
	"github.com/fabrevive/pickup-payments/internal/paymentlinks"
	"github.com/fabrevive/pickup-payments/pkg/config"
	pkgerrors "github.com/fabrevive/pickup-payments/pkg/errors"
	"github.com/fabrevive/pickup-payments/pkg/razorpay"
)

type stubGateway struct{}

func (stubGateway) CreatePaymentLink(context.Context, razorpay.PaymentLinkRequest) (*razorpay.PaymentLink, error) {
	return &razorpay.PaymentLink{ID: "plink_1", ShortURL: "https://rzp.io/i/x"}, nil
}

var (
	validGCP = config.GCPConfig{CredentialsJSON: `{"project_id":"proj-1"}`}
	validRzp = config.RazorpayConfig{KeyID: "rzp_test", KeySecret: "secret", WebhookSecret: "whsec"}
)

func countingStoreFactory(calls *int, mu *sync.Mutex, failFirst bool) StoreFactory {
	return func(context.Context, config.GCPConfig) (*Store, error) {
		mu.Lock()
		defer mu.Unlock()
		*calls++
		if failFirst && *calls == 1 {
			return nil, errors.New("dial firestore: connection refused")
		}
		return &Store{Repo: bookingstest.New(nil), Close: func() error { return nil }}, nil
	}
}

func TestStoreBuiltOnceUnderConcurrency(t *testing.T) {
	var (
		calls int
		mu    sync.Mutex
	)
	p := NewProvider(validGCP, validRzp, countingStoreFactory(&calls, &mu, false), nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Store(context.Background()); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Fatalf("expected a single store build, got %d", calls)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestStoreFailureIsNotCached(t *testing.T) {
	var (
		calls int
		mu    sync.Mutex
	)
	p := NewProvider(validGCP, validRzp, countingStoreFactory(&calls, &mu, true), nil)

	if _, err := p.Store(context.Background()); pkgerrors.CodeOf(err) != pkgerrors.CodeInternal {
		t.Fatalf("expected internal error on first build, got %v", err)
	}
	if _, err := p.Store(context.Background()); err != nil {
		t.Fatalf("expected second build to succeed, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected two build attempts, got %d", calls)
	}
}

func TestMissingCredentialsAreDistinct(t *testing.T) {
	ctx := context.Background()
	buildCalled := false
	factory := func(context.Context, config.GCPConfig) (*Store, error) {
		buildCalled = true
		return nil, nil
	}

	cases := []struct {
		name string
		gcp  config.GCPConfig
		rzp  config.RazorpayConfig
		call func(*Provider) error
		want string
	}{
		{
			name: "store missing",
			rzp:  validRzp,
			call: func(p *Provider) error { _, err := p.Store(ctx); return err },
			want: "SERVER_MISCONFIG: missing store credentials (" + config.EnvGCPCredentialsJSON + ")",
		},
		{
			name: "store unparsable",
			gcp:  config.GCPConfig{CredentialsJSON: "{"},
			rzp:  validRzp,
			call: func(p *Provider) error { _, err := p.Store(ctx); return err },
			want: "SERVER_MISCONFIG: invalid store credentials JSON (" + config.EnvGCPCredentialsJSON + ")",
		},
		{
			name: "gateway key id missing",
			gcp:  validGCP,
			rzp:  config.RazorpayConfig{KeySecret: "s"},
			call: func(p *Provider) error { _, err := p.Gateway(ctx); return err },
			want: "SERVER_MISCONFIG: missing " + config.EnvRazorpayKeyID,
		},
		{
			name: "gateway key secret missing",
			gcp:  validGCP,
			rzp:  config.RazorpayConfig{KeyID: "k"},
			call: func(p *Provider) error { _, err := p.Gateway(ctx); return err },
			want: "SERVER_MISCONFIG: missing " + config.EnvRazorpayKeySecret,
		},
		{
			name: "webhook secret missing",
			gcp:  validGCP,
			rzp:  config.RazorpayConfig{KeyID: "k", KeySecret: "s", WebhookSecret: "  "},
			call: func(p *Provider) error { _, err := p.WebhookSecret(); return err },
			want: "SERVER_MISCONFIG: missing " + config.EnvRazorpayWebhookSecret,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewProvider(tc.gcp, tc.rzp, factory, func(config.RazorpayConfig) (paymentlinks.Gateway, error) { return stubGateway{}, nil })
			err := tc.call(p)
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != pkgerrors.CodeMisconfigured {
				t.Fatalf("expected misconfiguration, got %v", err)
			}
			if typed.Message() != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, typed.Message())
			}
		})
	}
	if buildCalled {
		t.Fatalf("factories must not run when credentials are missing")
	}
}

func TestGatewayAndSecret(t *testing.T) {
	builds := 0
	p := NewProvider(validGCP, validRzp, nil, func(cfg config.RazorpayConfig) (paymentlinks.Gateway, error) {
		builds++
		if cfg.KeyID != "rzp_test" {
			t.Fatalf("unexpected config passed to factory: %+v", cfg)
		}
		return stubGateway{}, nil
	})

	for i := 0; i < 3; i++ {
		if _, err := p.Gateway(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if builds != 1 {
		t.Fatalf("expected one gateway build, got %d", builds)
	}

	secret, err := p.WebhookSecret()
	if err != nil || secret != "whsec" {
		t.Fatalf("unexpected secret %q err=%v", secret, err)
	}
}

func TestPingStoreWithoutCredentials(t *testing.T) {
	p := NewProvider(config.GCPConfig{}, validRzp, nil, nil)
	err := p.PingStore(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing store credentials") {
		t.Fatalf("expected missing credentials, got %v", err)
	}
}
