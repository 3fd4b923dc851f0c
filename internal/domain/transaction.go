package domain

import (
	"encoding/json"
	"time"
)

// TransactionStatus represents the outcome of a charge attempt
type TransactionStatus string

const (
	TransactionStatusApproved TransactionStatus = "approved"
	TransactionStatusDeclined TransactionStatus = "declined"
	TransactionStatusPending  TransactionStatus = "pending"
	TransactionStatusAborted  TransactionStatus = "aborted"
	// Unknown marks an attempt whose outcome was lost to a timeout. It must be
	// reconciled, never retried.
	TransactionStatusUnknown TransactionStatus = "unknown"
)

// IsTerminal reports whether the status can no longer change
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusApproved || s == TransactionStatusDeclined || s == TransactionStatusAborted
}

// ErrorClass classifies a non-approved biller outcome
type ErrorClass string

const (
	ErrorClassNone         ErrorClass = ""
	ErrorClassDecline      ErrorClass = "decline"
	ErrorClassNSF          ErrorClass = "nsf"
	ErrorClassMalformed    ErrorClass = "malformed_request"
	ErrorClassBillerSystem ErrorClass = "biller_system"
)

// Retryable reports whether the cascade may move on to the next biller
func (c ErrorClass) Retryable() bool {
	return c != ErrorClassMalformed
}

// DeclineInfo classifies a decline for analytics and retry decisions
type DeclineInfo struct {
	Code              string     `json:"code,omitempty"`
	Message           string     `json:"message,omitempty"`
	GroupDecline      string     `json:"group_decline,omitempty"`
	Class             ErrorClass `json:"error_class,omitempty"`
	RecommendedAction string     `json:"recommended_action,omitempty"`
}

// ThreeDSInfo carries 3-D Secure metadata of an attempt
type ThreeDSInfo struct {
	Secured      bool   `json:"secured_with_3ds"`
	Version      int    `json:"version,omitempty"`
	Frictionless bool   `json:"frictionless,omitempty"`
	AuthURL      string `json:"auth_url,omitempty"`
}

// Transaction is one charge attempt against a biller
type Transaction struct {
	TransactionID string            `json:"transaction_id"`
	BillerName    string            `json:"biller_name"`
	PaymentType   string            `json:"payment_type"`
	Status        TransactionStatus `json:"status"`
	Decline       *DeclineInfo      `json:"decline,omitempty"`
	ThreeDS       ThreeDSInfo       `json:"three_ds"`
	RedirectURL   string            `json:"redirect_url,omitempty"`
	RawFields     map[string]string `json:"raw_fields,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// IsApproved returns true if the biller approved the attempt
func (t Transaction) IsApproved() bool {
	return t.Status == TransactionStatusApproved
}

// TransactionCollection is an append-only, ordered record of attempts. The
// current attempt is always the last one.
type TransactionCollection struct {
	items []Transaction
}

// NewTransactionCollection restores a collection from persisted attempts
func NewTransactionCollection(items []Transaction) TransactionCollection {
	return TransactionCollection{items: append([]Transaction(nil), items...)}
}

// Add appends an attempt
func (c *TransactionCollection) Add(t Transaction) {
	c.items = append(c.items, t)
}

// Last returns the current attempt
func (c TransactionCollection) Last() (Transaction, bool) {
	if len(c.items) == 0 {
		return Transaction{}, false
	}
	return c.items[len(c.items)-1], true
}

// Len returns the number of recorded attempts
func (c TransactionCollection) Len() int {
	return len(c.items)
}

// All returns a copy of the attempts in order
func (c TransactionCollection) All() []Transaction {
	return append([]Transaction(nil), c.items...)
}

// Find returns the latest record of the given transaction id
func (c TransactionCollection) Find(transactionID string) (Transaction, bool) {
	for i := len(c.items) - 1; i >= 0; i-- {
		if c.items[i].TransactionID == transactionID {
			return c.items[i], true
		}
	}
	return Transaction{}, false
}

// HasApproved reports whether any attempt was approved
func (c TransactionCollection) HasApproved() bool {
	for _, t := range c.items {
		if t.IsApproved() {
			return true
		}
	}
	return false
}

// MarshalJSON encodes the attempts as a plain ordered array
func (c TransactionCollection) MarshalJSON() ([]byte, error) {
	if c.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.items)
}

// UnmarshalJSON restores the attempts from an ordered array
func (c *TransactionCollection) UnmarshalJSON(data []byte) error {
	var items []Transaction
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	c.items = items
	return nil
}
