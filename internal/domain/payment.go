package domain

import "time"

// Payment types accepted at init
const (
	PaymentTypeCC      = "cc"
	PaymentTypeChecks  = "checks"
	PaymentTypeCrypto  = "cryptocurrency"
	PaymentTypeEWallet = "ewallet"
)

// PaymentInfoKind identifies which payment descriptor variant is in use
type PaymentInfoKind string

const (
	PaymentKindCard     PaymentInfoKind = "card"
	PaymentKindTemplate PaymentInfoKind = "template"
	PaymentKindCheque   PaymentInfoKind = "cheque"
	PaymentKindCrypto   PaymentInfoKind = "crypto"
	PaymentKindHybrid   PaymentInfoKind = "hybrid_user"
)

// ValidPaymentType reports whether t is a supported payment type
func ValidPaymentType(t string) bool {
	switch t {
	case PaymentTypeCC, PaymentTypeChecks, PaymentTypeCrypto, PaymentTypeEWallet:
		return true
	}
	return false
}

// PaymentInfo describes how the payer pays. Card numbers never reach the
// session: only the hash and display digits are kept.
type PaymentInfo struct {
	Kind          PaymentInfoKind `json:"kind"`
	Type          string          `json:"type"`
	Method        string          `json:"method,omitempty"`
	CardHash      string          `json:"card_hash,omitempty"`
	FirstSix      string          `json:"first_six,omitempty"`
	LastFour      string          `json:"last_four,omitempty"`
	ExpMonth      int             `json:"exp_month,omitempty"`
	ExpYear       int             `json:"exp_year,omitempty"`
	TemplateID    string          `json:"template_id,omitempty"`
	RoutingNumber string          `json:"routing_number,omitempty"`
	AccountLast4  string          `json:"account_last4,omitempty"`
}

// PaymentTemplate is a stored payment method of an existing member
type PaymentTemplate struct {
	TemplateID           string            `json:"template_id"`
	FirstSix             string            `json:"first_six"`
	LastFour             string            `json:"last_four"`
	ExpirationYear       int               `json:"expiration_year"`
	ExpirationMonth      int               `json:"expiration_month"`
	LastUsedAt           time.Time         `json:"last_used_at"`
	BillerName           string            `json:"biller_name"`
	IsSafe               bool              `json:"is_safe"`
	ValidationParameters map[string]string `json:"validation_parameters,omitempty"`
}

// IsBlank reports whether the template carries no validation parameters
func (t PaymentTemplate) IsBlank() bool {
	return len(t.ValidationParameters) == 0
}

// MarkAllSafe flags every template as safe
func MarkAllSafe(templates []PaymentTemplate) []PaymentTemplate {
	out := make([]PaymentTemplate, len(templates))
	for i, t := range templates {
		t.IsSafe = true
		out[i] = t
	}
	return out
}
