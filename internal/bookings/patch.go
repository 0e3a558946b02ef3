package bookings

// PaidAtMode controls how a merge treats the paidAt timestamp.
type PaidAtMode int

const (
	// PaidAtUnchanged leaves paidAt alone.
	PaidAtUnchanged PaidAtMode = iota
	// PaidAtServerNow always writes the store's server time.
	PaidAtServerNow
	// PaidAtServerNowIfUnset writes server time only when paidAt is absent.
	PaidAtServerNowIfUnset
)

// Patch is a partial update. Empty fields are left untouched by the merge.
type Patch struct {
	PaymentStatus string       `json:"paymentStatus,omitempty"`
	CashStatus    string       `json:"cashStatus,omitempty"`
	Gateway       *GatewayLink `json:"gateway,omitempty"`
	PaidAt        PaidAtMode   `json:"paidAt,omitempty"`
}

// IsEmpty reports whether applying the patch would change nothing.
func (p Patch) IsEmpty() bool {
	return p.PaymentStatus == "" && p.CashStatus == "" && p.Gateway == nil && p.PaidAt == PaidAtUnchanged
}

// Against narrows the patch to what may be written over a document whose
// current payment status is storedStatus. A Paid booking only accepts another
// Paid patch, and an existing paidAt wins over PaidAtServerNowIfUnset.
func (p Patch) Against(storedStatus string, paidAtSet bool) Patch {
	if storedStatus == PaymentStatusPaid && p.PaymentStatus != PaymentStatusPaid {
		return Patch{}
	}
	if p.PaidAt == PaidAtServerNowIfUnset && paidAtSet {
		p.PaidAt = PaidAtUnchanged
	}
	return p
}

// PendingLinkPatch records a freshly issued link.
func PendingLinkPatch(link GatewayLink) Patch {
	return Patch{PaymentStatus: PaymentStatusPending, Gateway: &link}
}

// PaidPatch marks a booking paid and cash received.
func PaidPatch(mode PaidAtMode) Patch {
	return Patch{PaymentStatus: PaymentStatusPaid, CashStatus: CashStatusReceived, PaidAt: mode}
}
