package razorpay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	rzp "github.com/razorpay/razorpay-go"
	rzperrors "github.com/razorpay/razorpay-go/errors"

	"github.com/fabrevive/pickup-payments/pkg/config"
	pkgerrors "github.com/fabrevive/pickup-payments/pkg/errors"
	"github.com/fabrevive/pickup-payments/pkg/logger"
)

var (
	ErrKeyIDRequired     = errors.New("razorpay key id is required")
	ErrKeySecretRequired = errors.New("razorpay key secret is required")
)

// linkCreator is the slice of the SDK's PaymentLink resource this package uses.
type linkCreator interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// Client wraps the Razorpay SDK with context handling, logging, and error mapping.
type Client struct {
	links  linkCreator
	logger *logger.Logger
}

// NewClient validates the key pair and builds the SDK client.
func NewClient(cfg config.RazorpayConfig, logg *logger.Logger) (*Client, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		return nil, ErrKeyIDRequired
	}
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keySecret == "" {
		return nil, ErrKeySecretRequired
	}
	sdk := rzp.NewClient(keyID, keySecret)
	return &Client{links: sdk.PaymentLink, logger: logg}, nil
}

// Customer is the payer block attached to a link.
type Customer struct {
	Name    string
	Contact string
}

// PaymentLinkRequest describes one payment link.
type PaymentLinkRequest struct {
	AmountMinor    int64
	Currency       string
	ReferenceID    string
	Description    string
	Notes          map[string]string
	Customer       Customer
	CallbackURL    string
	CallbackMethod string
}

// PaymentLink is the subset of the gateway response the service keeps.
type PaymentLink struct {
	ID       string `json:"id"`
	ShortURL string `json:"shortURL"`
	URL      string `json:"url"`
	Status   string `json:"status"`
}

// PreferredURL returns the short URL when present, else the long one.
func (l PaymentLink) PreferredURL() string {
	if l.ShortURL != "" {
		return l.ShortURL
	}
	return l.URL
}

func (r PaymentLinkRequest) toSDK() map[string]interface{} {
	customer := map[string]interface{}{"name": r.Customer.Name}
	if r.Customer.Contact != "" {
		customer["contact"] = r.Customer.Contact
	}
	notes := make(map[string]interface{}, len(r.Notes))
	for k, v := range r.Notes {
		notes[k] = v
	}
	data := map[string]interface{}{
		"amount":          r.AmountMinor,
		"currency":        r.Currency,
		"reference_id":    r.ReferenceID,
		"description":     r.Description,
		"notes":           notes,
		"customer":        customer,
		"notify":          map[string]interface{}{"sms": false, "email": false},
		"reminder_enable": true,
	}
	if r.CallbackURL != "" {
		data["callback_url"] = r.CallbackURL
		method := r.CallbackMethod
		if method == "" {
			method = "get"
		}
		data["callback_method"] = method
	}
	return data
}

type createResult struct {
	body map[string]interface{}
	err  error
}

// CreatePaymentLink creates a link. The SDK has no context support, so the
// call runs in a goroutine and is abandoned when ctx ends.
func (c *Client) CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (*PaymentLink, error) {
	c.log(ctx, "request", "create_payment_link", map[string]any{
		"reference_id": req.ReferenceID,
		"amount":       req.AmountMinor,
		"currency":     req.Currency,
		"phone":        req.Customer.Contact,
	})

	done := make(chan createResult, 1)
	go func() {
		body, err := c.links.Create(req.toSDK(), nil)
		done <- createResult{body: body, err: err}
	}()

	var res createResult
	select {
	case <-ctx.Done():
		c.log(ctx, "error", "create_payment_link", map[string]any{"error": ctx.Err().Error()})
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, ctx.Err(), "RAZORPAY: request timed out")
	case res = <-done:
	}

	if res.err != nil {
		c.log(ctx, "error", "create_payment_link", map[string]any{"error": res.err.Error()})
		return nil, mapError(res.err)
	}

	link := PaymentLink{
		ID:       stringField(res.body, "id"),
		ShortURL: stringField(res.body, "short_url"),
		URL:      stringField(res.body, "url"),
		Status:   stringField(res.body, "status"),
	}
	if link.ID == "" || link.PreferredURL() == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "RAZORPAY: response missing link id or url")
	}

	c.log(ctx, "response", "create_payment_link", map[string]any{
		"link_id": link.ID,
		"status":  link.Status,
	})
	return &link, nil
}

// IsTransient reports whether a failed create may be retried: upstream 5xx or
// a network failure that never reached the gateway. Timeouts are excluded
// because the abandoned request can still create the link.
func IsTransient(err error) bool {
	if err == nil || IsTimeout(err) {
		return false
	}
	var serverErr *rzperrors.ServerError
	if errors.As(err, &serverErr) {
		return true
	}
	var gatewayErr *rzperrors.GatewayError
	if errors.As(err, &gatewayErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsTimeout reports whether err is a deadline or a network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func mapError(err error) error {
	description := strings.TrimSpace(err.Error())
	if description == "" {
		description = "payment link creation failed"
	}
	return pkgerrors.Wrap(pkgerrors.CodeGateway, err, fmt.Sprintf("RAZORPAY: %s", description))
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("razorpay %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("razorpay %s", phase))
	}
}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"secret", "token", "email", "phone", "contact"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func stringField(body map[string]interface{}, key string) string {
	if body == nil {
		return ""
	}
	if s, ok := body[key].(string); ok {
		return s
	}
	return ""
}
