package clients

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/multierr"

	"github.com/fabrevive/pickup-payments/internal/bookings"
	"github.com/fabrevive/pickup-payments/internal/paymentlinks"
	"github.com/fabrevive/pickup-payments/pkg/config"
	pkgerrors "github.com/fabrevive/pickup-payments/pkg/errors"
	"github.com/fabrevive/pickup-payments/pkg/firestore"
	"github.com/fabrevive/pickup-payments/pkg/logger"
	"github.com/fabrevive/pickup-payments/pkg/razorpay"
	"github.com/fabrevive/pickup-payments/pkg/resilience"
)

const misconfigPrefix = "SERVER_MISCONFIG: "

// Store is a built booking store plus its lifecycle hooks.
type Store struct {
	Repo  bookings.Repository
	Ping  func(context.Context) error
	Close func() error
}

type StoreFactory func(ctx context.Context, gcp config.GCPConfig) (*Store, error)

type GatewayFactory func(cfg config.RazorpayConfig) (paymentlinks.Gateway, error)

// Provider builds the store and gateway clients on first use and reuses them.
// Credentials are checked on every call so a misconfiguration surfaces as a
// specific error before any external call is attempted.
type Provider struct {
	gcp      config.GCPConfig
	razorpay config.RazorpayConfig

	newStore   StoreFactory
	newGateway GatewayFactory

	mu      sync.Mutex
	store   *Store
	gateway paymentlinks.Gateway
}

func NewProvider(gcp config.GCPConfig, rzp config.RazorpayConfig, newStore StoreFactory, newGateway GatewayFactory) *Provider {
	return &Provider{
		gcp:        gcp,
		razorpay:   rzp,
		newStore:   newStore,
		newGateway: newGateway,
	}
}

// Store returns the booking repository.
func (p *Provider) Store(ctx context.Context) (bookings.Repository, error) {
	s, err := p.storeHandle(ctx)
	if err != nil {
		return nil, err
	}
	return s.Repo, nil
}

// PingStore checks store connectivity. Missing credentials are reported as misconfiguration.
func (p *Provider) PingStore(ctx context.Context) error {
	s, err := p.storeHandle(ctx)
	if err != nil {
		return err
	}
	if s.Ping == nil {
		return nil
	}
	return s.Ping(ctx)
}

func (p *Provider) storeHandle(ctx context.Context) (*Store, error) {
	if err := p.checkStoreCredentials(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.store != nil {
		return p.store, nil
	}
	if p.newStore == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "store factory not configured")
	}
	s, err := p.newStore(ctx, p.gcp)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "initialize booking store")
	}
	p.store = s
	return s, nil
}

// Gateway returns the payment gateway client.
func (p *Provider) Gateway(ctx context.Context) (paymentlinks.Gateway, error) {
	if err := p.checkGatewayCredentials(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gateway != nil {
		return p.gateway, nil
	}
	if p.newGateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gateway factory not configured")
	}
	gw, err := p.newGateway(p.razorpay)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "initialize payment gateway")
	}
	p.gateway = gw
	return gw, nil
}

// WebhookSecret returns the shared webhook secret.
func (p *Provider) WebhookSecret() (string, error) {
	secret := strings.TrimSpace(p.razorpay.WebhookSecret)
	if secret == "" {
		return "", misconfigured("missing %s", config.EnvRazorpayWebhookSecret)
	}
	return secret, nil
}

// Close releases whatever was built.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.store != nil && p.store.Close != nil {
		err = multierr.Append(err, p.store.Close())
	}
	p.store = nil
	p.gateway = nil
	return err
}

func (p *Provider) checkStoreCredentials() error {
	switch p.gcp.CredentialsParse() {
	case config.CredentialsMissing:
		return misconfigured("missing store credentials (%s)", config.EnvGCPCredentialsJSON)
	case config.CredentialsParseError:
		return misconfigured("invalid store credentials JSON (%s)", config.EnvGCPCredentialsJSON)
	}
	return nil
}

func (p *Provider) checkGatewayCredentials() error {
	if strings.TrimSpace(p.razorpay.KeyID) == "" {
		return misconfigured("missing %s", config.EnvRazorpayKeyID)
	}
	if strings.TrimSpace(p.razorpay.KeySecret) == "" {
		return misconfigured("missing %s", config.EnvRazorpayKeySecret)
	}
	return nil
}

func misconfigured(format string, args ...any) error {
	return pkgerrors.New(pkgerrors.CodeMisconfigured, misconfigPrefix+fmt.Sprintf(format, args...))
}

// FirestoreStoreFactory opens Firestore and wraps the bookings collection.
func FirestoreStoreFactory(policy resilience.Policy, logg *logger.Logger) StoreFactory {
	return func(ctx context.Context, gcp config.GCPConfig) (*Store, error) {
		client, err := firestore.NewClient(ctx, gcp, logg)
		if err != nil {
			return nil, err
		}
		return &Store{
			Repo:  bookings.NewFirestoreRepository(client.Firestore(), client.Collection(), policy),
			Ping:  client.Ping,
			Close: client.Close,
		}, nil
	}
}

// RazorpayGatewayFactory builds the SDK-backed gateway.
func RazorpayGatewayFactory(logg *logger.Logger) GatewayFactory {
	return func(cfg config.RazorpayConfig) (paymentlinks.Gateway, error) {
		client, err := razorpay.NewClient(cfg, logg)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}
