package domain

import (
	"time"

	"github.com/kevin07696/purchase-gateway/pkg/timeutil"
)

// BI event names
const (
	EventPurchaseInitialized = "purchase.initialized"
	EventPurchaseProcessed   = "purchase.processed"
	EventPostbackApplied     = "purchase.postback_applied"
)

// ItemSnapshot is the flattened view of one item for analytics
type ItemSnapshot struct {
	ItemID        string `json:"item_id"`
	SiteID        string `json:"site_id"`
	BundleID      string `json:"bundle_id"`
	AddonID       string `json:"addon_id"`
	Amount        string `json:"amount"`
	RebillAmount  string `json:"rebill_amount"`
	RebillDays    int    `json:"rebill_days"`
	IsCrossSale   bool   `json:"is_cross_sale"`
	Selected      bool   `json:"selected"`
	Attempts      int    `json:"attempts"`
	LastStatus    string `json:"last_status,omitempty"`
	LastBiller    string `json:"last_biller,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Secured3DS    bool   `json:"secured_with_3ds"`
}

// PurchaseSnapshot is the flattened session state fed to BI consumers
type PurchaseSnapshot struct {
	Event                string              `json:"event"`
	SessionID            string              `json:"session_id"`
	State                string              `json:"state"`
	SiteID               string              `json:"site_id"`
	BusinessGroupID      string              `json:"business_group_id"`
	MemberID             string              `json:"member_id,omitempty"`
	Currency             string              `json:"currency"`
	PaymentType          string              `json:"payment_type"`
	PaymentMethod        string              `json:"payment_method,omitempty"`
	Country              string              `json:"country"`
	IP                   string              `json:"ip"`
	EntrySiteID          string              `json:"entry_site_id,omitempty"`
	TrafficSource        string              `json:"traffic_source,omitempty"`
	Cascade              []string            `json:"cascade"`
	RemovedBillers       []RemovedBiller     `json:"removed_billers,omitempty"`
	Netbilling3DSRemoved bool                `json:"netbilling_removed_for_3ds"`
	FraudStatus          string              `json:"fraud_status"`
	FraudAdvice          FraudAdvice         `json:"fraud_advice"`
	FraudRecommendation  FraudRecommendation `json:"fraud_recommendation"`
	Items                []ItemSnapshot      `json:"items"`
	AbortReason          string              `json:"abort_reason,omitempty"`
	OccurredAt           time.Time           `json:"occurred_at"`
}

// Snapshot flattens the session for the given BI event
func (s *PurchaseSession) Snapshot(event string) PurchaseSnapshot {
	c := s.Cascade()
	fraud := s.Fraud()
	snap := PurchaseSnapshot{
		Event:                event,
		SessionID:            s.id,
		State:                string(s.state),
		SiteID:               s.siteID,
		BusinessGroupID:      s.businessGroupID,
		MemberID:             s.memberID,
		Currency:             s.currency,
		PaymentType:          s.payment.Type,
		PaymentMethod:        s.payment.Method,
		Country:              s.user.Country,
		IP:                   s.user.IP,
		EntrySiteID:          s.entrySiteID,
		TrafficSource:        s.trafficSource,
		Cascade:              c.BillerNames(),
		RemovedBillers:       c.Removed(),
		Netbilling3DSRemoved: c.WasRemoved(BillerNetbilling, RemovalReason3DSIneligible),
		FraudStatus:          string(fraud.Status),
		FraudAdvice:          fraud.Advice,
		FraudRecommendation:  fraud.Recommendations.Primary(),
		AbortReason:          s.abortReason,
		OccurredAt:           timeutil.Now(),
	}
	for _, it := range s.Items() {
		is := ItemSnapshot{
			ItemID:       it.ItemID,
			SiteID:       it.Key.SiteID,
			BundleID:     it.Key.BundleID,
			AddonID:      it.Key.AddonID,
			Amount:       it.Charge.Amount.StringFixed(2),
			RebillAmount: it.Charge.RebillAmount.StringFixed(2),
			RebillDays:   it.Charge.RebillDays,
			IsCrossSale:  it.IsCrossSale,
			Selected:     it.Selected,
			Attempts:     it.Transactions.Len(),
		}
		if tx, ok := it.Transactions.Last(); ok {
			is.LastStatus = string(tx.Status)
			is.LastBiller = tx.BillerName
			is.TransactionID = tx.TransactionID
			is.Secured3DS = tx.ThreeDS.Secured
		}
		snap.Items = append(snap.Items, is)
	}
	return snap
}
