package domain

import "strconv"

// TransactionInfo is the biller-specific view of a transaction. The concrete
// variant depends on the biller and payment type.
type TransactionInfo interface {
	Kind() string
	BillerName() string
	Summary() map[string]string
}

// CardTransactionInfo carries card processing details
type CardTransactionInfo struct {
	Biller         string
	FirstSix       string
	LastFour       string
	CardExpiration string
	MerchantID     string
	Secured3DS     bool
	ThreeDSVersion int
}

func (c CardTransactionInfo) Kind() string       { return "card" }
func (c CardTransactionInfo) BillerName() string { return c.Biller }

func (c CardTransactionInfo) Summary() map[string]string {
	return map[string]string{
		"first_six":        c.FirstSix,
		"last_four":        c.LastFour,
		"card_expiration":  c.CardExpiration,
		"merchant_id":      c.MerchantID,
		"secured_with_3ds": strconv.FormatBool(c.Secured3DS),
		"three_ds_version": strconv.Itoa(c.ThreeDSVersion),
	}
}

// ChequeTransactionInfo carries ACH/cheque details
type ChequeTransactionInfo struct {
	Biller        string
	RoutingNumber string
	AccountLast4  string
	SSNLast4      string
}

func (c ChequeTransactionInfo) Kind() string       { return "cheque" }
func (c ChequeTransactionInfo) BillerName() string { return c.Biller }

func (c ChequeTransactionInfo) Summary() map[string]string {
	return map[string]string{
		"routing_number": c.RoutingNumber,
		"account_last4":  c.AccountLast4,
		"ssn_last4":      c.SSNLast4,
	}
}

// ThirdPartyTransactionInfo carries what a redirect-based biller reports back
type ThirdPartyTransactionInfo struct {
	Biller        string
	PaymentType   string
	PaymentMethod string
	ExternalID    string
}

func (t ThirdPartyTransactionInfo) Kind() string       { return "third_party" }
func (t ThirdPartyTransactionInfo) BillerName() string { return t.Biller }

func (t ThirdPartyTransactionInfo) Summary() map[string]string {
	return map[string]string{
		"payment_type":   t.PaymentType,
		"payment_method": t.PaymentMethod,
		"external_id":    t.ExternalID,
	}
}

// NewTransactionInfo resolves (biller, payment type) to the matching variant
// and fills it from the biller's raw fields.
func NewTransactionInfo(biller Biller, paymentType string, raw map[string]string) TransactionInfo {
	if biller.ThirdParty {
		return ThirdPartyTransactionInfo{
			Biller:        biller.Name,
			PaymentType:   paymentType,
			PaymentMethod: raw["payment_method"],
			ExternalID:    raw["external_id"],
		}
	}
	if paymentType == PaymentTypeChecks {
		return ChequeTransactionInfo{
			Biller:        biller.Name,
			RoutingNumber: raw["routing_number"],
			AccountLast4:  raw["account_last4"],
			SSNLast4:      raw["ssn_last4"],
		}
	}
	version, _ := strconv.Atoi(raw["three_ds_version"])
	secured, _ := strconv.ParseBool(raw["secured_with_3ds"])
	return CardTransactionInfo{
		Biller:         biller.Name,
		FirstSix:       raw["first_six"],
		LastFour:       raw["last_four"],
		CardExpiration: raw["card_expiration"],
		MerchantID:     raw["merchant_id"],
		Secured3DS:     secured,
		ThreeDSVersion: version,
	}
}
