package domain

import (
	"github.com/shopspring/decimal"
)

// Day range accepted for initial and rebill periods
const (
	MinChargeDays = 0
	MaxChargeDays = 10000
)

// ChargeInformation describes what an item costs and how it rebills
type ChargeInformation struct {
	Amount       decimal.Decimal `json:"amount"`
	InitialDays  int             `json:"initial_days"`
	RebillAmount decimal.Decimal `json:"rebill_amount"`
	RebillDays   int             `json:"rebill_days"`
	IsTrial      bool            `json:"is_trial"`
}

// HasRebill reports whether the item renews
func (c ChargeInformation) HasRebill() bool {
	return c.RebillDays > 0
}

// Validate checks amounts and day ranges
func (c ChargeInformation) Validate() error {
	if c.Amount.IsNegative() {
		return NewDomainError(ErrorCodeValidationAmountInvalid, "amount must not be negative").
			WithDetail("amount", c.Amount.String())
	}
	if c.RebillAmount.IsNegative() {
		return NewDomainError(ErrorCodeValidationAmountInvalid, "rebill amount must not be negative").
			WithDetail("rebill_amount", c.RebillAmount.String())
	}
	if c.InitialDays < MinChargeDays || c.InitialDays > MaxChargeDays {
		return NewDomainError(ErrorCodeValidationDaysInvalid, "initial days out of range").
			WithDetail("initial_days", c.InitialDays)
	}
	if c.RebillDays < MinChargeDays || c.RebillDays > MaxChargeDays {
		return NewDomainError(ErrorCodeValidationDaysInvalid, "rebill days out of range").
			WithDetail("rebill_days", c.RebillDays)
	}
	if c.HasRebill() && c.RebillAmount.IsZero() {
		return NewDomainError(ErrorCodeValidationAmountInvalid, "rebill amount required when rebill days are set")
	}
	return nil
}

// TaxBreakdown is the tax applied to an item
type TaxBreakdown struct {
	TaxName          string          `json:"tax_name,omitempty"`
	TaxRate          decimal.Decimal `json:"tax_rate"`
	TaxType          string          `json:"tax_type,omitempty"`
	InitialAmount    decimal.Decimal `json:"initial_amount"`
	InitialTax       decimal.Decimal `json:"initial_tax"`
	RebillAmount     decimal.Decimal `json:"rebill_amount"`
	RebillTax        decimal.Decimal `json:"rebill_tax"`
	TaxApplicationID string          `json:"tax_application_id,omitempty"`
}

// ItemKey identifies an item by what is being sold
type ItemKey struct {
	SiteID   string `json:"site_id"`
	BundleID string `json:"bundle_id"`
	AddonID  string `json:"addon_id"`
}

// String renders the composite key used by the charge identity map
func (k ItemKey) String() string {
	return k.SiteID + "|" + k.BundleID + "|" + k.AddonID
}

// InitializedItem is one purchasable line of a session
type InitializedItem struct {
	ItemID         string                `json:"item_id"`
	Key            ItemKey               `json:"key"`
	Charge         ChargeInformation     `json:"charge"`
	Tax            *TaxBreakdown         `json:"tax,omitempty"`
	IsCrossSale    bool                  `json:"is_cross_sale"`
	Selected       bool                  `json:"selected"`
	SubscriptionID string                `json:"subscription_id,omitempty"`
	EntitlementID  string                `json:"entitlement_id,omitempty"`
	Transactions   TransactionCollection `json:"transactions"`
}

// NewInitializedItem validates the charge information and builds an item
func NewInitializedItem(itemID string, key ItemKey, charge ChargeInformation, crossSale bool) (*InitializedItem, error) {
	if key.SiteID == "" {
		return nil, NewDomainError(ErrorCodeValidationMissingField, "site id is required").
			WithDetail("item_id", itemID)
	}
	if err := charge.Validate(); err != nil {
		return nil, err
	}
	return &InitializedItem{
		ItemID:      itemID,
		Key:         key,
		Charge:      charge,
		IsCrossSale: crossSale,
		Selected:    !crossSale,
	}, nil
}

// LastTransaction returns the current attempt of the item
func (i *InitializedItem) LastTransaction() (Transaction, bool) {
	return i.Transactions.Last()
}

// IsProcessed reports whether the item reached a terminal transaction
func (i *InitializedItem) IsProcessed() bool {
	t, ok := i.Transactions.Last()
	return ok && t.Status.IsTerminal()
}
