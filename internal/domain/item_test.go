package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChargeInformation_Validate(t *testing.T) {
	tests := []struct {
		name         string
		charge       ChargeInformation
		expectedCode ErrorCode
	}{
		{
			name:   "one_time_charge",
			charge: ChargeInformation{Amount: decimal.RequireFromString("9.99"), InitialDays: 30},
		},
		{
			name: "rebilling_charge",
			charge: ChargeInformation{
				Amount:       decimal.RequireFromString("1.00"),
				InitialDays:  3,
				RebillAmount: decimal.RequireFromString("29.99"),
				RebillDays:   30,
				IsTrial:      true,
			},
		},
		{
			name:         "negative_amount",
			charge:       ChargeInformation{Amount: decimal.RequireFromString("-1")},
			expectedCode: ErrorCodeValidationAmountInvalid,
		},
		{
			name:         "negative_rebill_amount",
			charge:       ChargeInformation{Amount: decimal.Zero, RebillAmount: decimal.RequireFromString("-0.01")},
			expectedCode: ErrorCodeValidationAmountInvalid,
		},
		{
			name:         "initial_days_too_large",
			charge:       ChargeInformation{Amount: decimal.Zero, InitialDays: MaxChargeDays + 1},
			expectedCode: ErrorCodeValidationDaysInvalid,
		},
		{
			name:         "negative_rebill_days",
			charge:       ChargeInformation{Amount: decimal.Zero, RebillDays: -1},
			expectedCode: ErrorCodeValidationDaysInvalid,
		},
		{
			name:         "rebill_days_without_amount",
			charge:       ChargeInformation{Amount: decimal.Zero, RebillDays: 30},
			expectedCode: ErrorCodeValidationAmountInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.charge.Validate()
			if tt.expectedCode == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.expectedCode, GetErrorCode(err))
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestNewInitializedItem(t *testing.T) {
	key := ItemKey{SiteID: "site-1", BundleID: "b", AddonID: "a"}
	charge := ChargeInformation{Amount: decimal.RequireFromString("5")}

	main, err := NewInitializedItem("item-1", key, charge, false)
	require.NoError(t, err)
	assert.True(t, main.Selected)
	assert.Equal(t, "site-1|b|a", main.Key.String())

	cross, err := NewInitializedItem("item-2", key, charge, true)
	require.NoError(t, err)
	assert.False(t, cross.Selected, "cross-sales are opt-in")

	_, err = NewInitializedItem("item-3", ItemKey{}, charge, false)
	assert.True(t, IsDomainError(err, ErrorCodeValidationMissingField))
}

func TestTransactionCollection(t *testing.T) {
	var c TransactionCollection
	_, ok := c.Last()
	assert.False(t, ok)

	c.Add(Transaction{TransactionID: "t1", Status: TransactionStatusPending})
	c.Add(Transaction{TransactionID: "t2", Status: TransactionStatusDeclined})
	c.Add(Transaction{TransactionID: "t1", Status: TransactionStatusApproved})

	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, "t1", last.TransactionID)
	assert.Equal(t, 3, c.Len())

	found, ok := c.Find("t1")
	require.True(t, ok)
	assert.Equal(t, TransactionStatusApproved, found.Status, "latest record wins")
	assert.True(t, c.HasApproved())

	all := c.All()
	all[0].TransactionID = "mutated"
	first := c.All()[0]
	assert.Equal(t, "t1", first.TransactionID)
}

func TestErrorClass_Retryable(t *testing.T) {
	assert.True(t, ErrorClassDecline.Retryable())
	assert.True(t, ErrorClassNSF.Retryable())
	assert.True(t, ErrorClassBillerSystem.Retryable())
	assert.False(t, ErrorClassMalformed.Retryable())
}

func TestNewTransactionInfo(t *testing.T) {
	dir := DefaultBillerDirectory()
	rg, _ := dir.Lookup(BillerRocketgate)
	epoch, _ := dir.Lookup(BillerEpoch)
	cb, _ := dir.Lookup(BillerCentrobill)

	tests := []struct {
		name         string
		biller       Biller
		paymentType  string
		raw          map[string]string
		expectedKind string
	}{
		{"card", rg, PaymentTypeCC, map[string]string{"first_six": "411111", "secured_with_3ds": "true", "three_ds_version": "2"}, "card"},
		{"cheque", cb, PaymentTypeChecks, map[string]string{"routing_number": "999999999"}, "cheque"},
		{"third_party_wins_over_type", epoch, PaymentTypeCC, map[string]string{"external_id": "ext-1"}, "third_party"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := NewTransactionInfo(tt.biller, tt.paymentType, tt.raw)

			assert.Equal(t, tt.expectedKind, info.Kind())
			assert.Equal(t, tt.biller.Name, info.BillerName())
			assert.NotEmpty(t, info.Summary())
		})
	}

	card, ok := NewTransactionInfo(rg, PaymentTypeCC, map[string]string{"secured_with_3ds": "true", "three_ds_version": "2"}).(CardTransactionInfo)
	require.True(t, ok)
	assert.True(t, card.Secured3DS)
	assert.Equal(t, 2, card.ThreeDSVersion)
}
