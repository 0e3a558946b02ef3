package types

// ErrorBody is the flat error shape returned to browser callers.
type ErrorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// PaymentLinkResponse is the success body of POST /payment-links.
type PaymentLinkResponse struct {
	LinkURL        string  `json:"linkURL"`
	CustomerName   string  `json:"customerName"`
	CustomerMobile string  `json:"customerMobile"`
	Amount         float64 `json:"amount"`
}

type HealthResponse struct {
	OK     bool    `json:"ok"`
	Origin *string `json:"origin"`
}
