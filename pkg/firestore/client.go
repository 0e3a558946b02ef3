package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcfirestore "cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/fabrevive/pickup-payments/pkg/config"
	"github.com/fabrevive/pickup-payments/pkg/logger"
)

var (
	ErrCredentialsMissing = errors.New("missing store credentials (" + config.EnvGCPCredentialsJSON + ")")
	ErrCredentialsInvalid = errors.New("store credentials are not valid JSON (" + config.EnvGCPCredentialsJSON + ")")
	ErrProjectIDMissing   = errors.New("gcp project id is required")
)

// Client owns the Firestore connection and the bookings collection name.
type Client struct {
	fs         *gcfirestore.Client
	collection string
}

// NewClient initializes a Firebase app from the service account JSON and opens Firestore.
func NewClient(ctx context.Context, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	switch gcp.CredentialsParse() {
	case config.CredentialsMissing:
		return nil, ErrCredentialsMissing
	case config.CredentialsParseError:
		return nil, ErrCredentialsInvalid
	}
	projectID := gcp.ResolvedProjectID()
	if projectID == "" {
		return nil, ErrProjectIDMissing
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	fs, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("open firestore: %w", err)
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "project_id", projectID), "firestore client initialized")
	}

	collection := strings.TrimSpace(gcp.FirestoreCollection)
	if collection == "" {
		collection = "pickup_bookings"
	}
	return &Client{fs: fs, collection: collection}, nil
}

// Firestore returns the raw client.
func (c *Client) Firestore() *gcfirestore.Client {
	return c.fs
}

// Collection returns the bookings collection name.
func (c *Client) Collection() string {
	return c.collection
}

// Ping lists at most one top-level collection to prove credentials and connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.fs == nil {
		return errors.New("firestore client not initialized")
	}
	_, err := c.fs.Collections(ctx).Next()
	if err != nil && !errors.Is(err, iterator.Done) {
		return err
	}
	return nil
}

// Close releases the Firestore connection.
func (c *Client) Close() error {
	if c == nil || c.fs == nil {
		return nil
	}
	return c.fs.Close()
}
