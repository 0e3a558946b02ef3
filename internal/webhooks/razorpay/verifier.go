package razorpaywebhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	pkgerrors "github.com/fabrevive/pickup-payments/pkg/errors"
)

const (
	SignatureHeader         = "X-Razorpay-Signature"
	FallbackSignatureHeader = "X-Signature"
	EventIDHeader           = "X-Razorpay-Event-Id"
)

// Verify checks a lowercase hex HMAC-SHA256 signature over the exact request
// bytes. The header value is compared as sent. An empty secret is a
// misconfiguration, not a bad signature.
func Verify(raw []byte, signature, secret string) (bool, error) {
	if secret == "" {
		return false, pkgerrors.New(pkgerrors.CodeMisconfigured, "SERVER_MISCONFIG: webhook secret is not configured")
	}
	return hmac.Equal([]byte(signature), []byte(Sign(raw, secret))), nil
}

// Sign returns the hex signature Verify expects.
func Sign(raw []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(raw)
	return hex.EncodeToString(mac.Sum(nil))
}
