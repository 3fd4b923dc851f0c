package domain

import "time"

// SessionRecord is the persisted form of a PurchaseSession
type SessionRecord struct {
	ID                     string             `json:"id"`
	State                  SessionState       `json:"state"`
	Version                int                `json:"version"`
	MainItem               *InitializedItem   `json:"main_item"`
	CrossSales             []*InitializedItem `json:"cross_sales"`
	Payment                PaymentInfo        `json:"payment"`
	User                   UserInfo           `json:"user"`
	Currency               string             `json:"currency"`
	SiteID                 string             `json:"site_id"`
	BusinessGroupID        string             `json:"business_group_id"`
	MemberID               string             `json:"member_id,omitempty"`
	PublicKeyID            string             `json:"public_key_id,omitempty"`
	CascadeEntries         []CascadeEntry     `json:"cascade_entries,omitempty"`
	CascadeRemoved         []RemovedBiller    `json:"cascade_removed,omitempty"`
	HasCascade             bool               `json:"has_cascade"`
	Fraud                  *FraudRecord       `json:"fraud,omitempty"`
	RedirectURL            string             `json:"redirect_url,omitempty"`
	PostbackURL            string             `json:"postback_url,omitempty"`
	SkipVoid               bool               `json:"skip_void"`
	EntrySiteID            string             `json:"entry_site_id,omitempty"`
	TrafficSource          string             `json:"traffic_source,omitempty"`
	ForceCascade           string             `json:"force_cascade,omitempty"`
	AbortReason            string             `json:"abort_reason,omitempty"`
	CrossSaleSitesVerified bool               `json:"cross_sale_sites_verified"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
	ExpiresAt              time.Time          `json:"expires_at"`
}

// FraudRecord is the persisted form of a FraudResult. The provider error is
// kept as text only.
type FraudRecord struct {
	Status          FraudResultStatus    `json:"status"`
	Advice          FraudAdvice          `json:"advice"`
	Recommendations FraudRecommendations `json:"recommendations"`
	Error           string               `json:"error,omitempty"`
}

// Record captures the session for persistence
func (s *PurchaseSession) Record() SessionRecord {
	rec := SessionRecord{
		ID:                     s.id,
		State:                  s.state,
		Version:                s.version,
		MainItem:               s.mainItem,
		CrossSales:             s.crossSales,
		Payment:                s.payment,
		User:                   s.user,
		Currency:               s.currency,
		SiteID:                 s.siteID,
		BusinessGroupID:        s.businessGroupID,
		MemberID:               s.memberID,
		PublicKeyID:            s.publicKeyID,
		RedirectURL:            s.redirectURL,
		PostbackURL:            s.postbackURL,
		SkipVoid:               s.skipVoid,
		EntrySiteID:            s.entrySiteID,
		TrafficSource:          s.trafficSource,
		ForceCascade:           s.forceCascade,
		AbortReason:            s.abortReason,
		CrossSaleSitesVerified: s.crossSaleSitesVerified,
		CreatedAt:              s.createdAt,
		UpdatedAt:              s.updatedAt,
		ExpiresAt:              s.expiresAt,
	}
	if s.cascade != nil {
		rec.HasCascade = true
		rec.CascadeEntries = s.cascade.Entries()
		rec.CascadeRemoved = s.cascade.Removed()
	}
	if s.fraud != nil {
		fr := &FraudRecord{
			Status:          s.fraud.Status,
			Advice:          s.fraud.Advice,
			Recommendations: s.fraud.Recommendations,
		}
		if s.fraud.Err != nil {
			fr.Error = s.fraud.Err.Error()
		}
		rec.Fraud = fr
	}
	return rec
}

// RestoreSession rebuilds a session from its persisted form
func RestoreSession(rec SessionRecord) (*PurchaseSession, error) {
	if rec.MainItem == nil {
		return nil, NewDomainError(ErrorCodeInternalError, "persisted session has no main item").
			WithDetail("session_id", rec.ID)
	}
	s := &PurchaseSession{
		id:                     rec.ID,
		state:                  rec.State,
		version:                rec.Version,
		mainItem:               rec.MainItem,
		crossSales:             rec.CrossSales,
		payment:                rec.Payment,
		user:                   rec.User,
		currency:               rec.Currency,
		siteID:                 rec.SiteID,
		businessGroupID:        rec.BusinessGroupID,
		memberID:               rec.MemberID,
		publicKeyID:            rec.PublicKeyID,
		redirectURL:            rec.RedirectURL,
		postbackURL:            rec.PostbackURL,
		skipVoid:               rec.SkipVoid,
		entrySiteID:            rec.EntrySiteID,
		trafficSource:          rec.TrafficSource,
		forceCascade:           rec.ForceCascade,
		abortReason:            rec.AbortReason,
		crossSaleSitesVerified: rec.CrossSaleSitesVerified,
		createdAt:              rec.CreatedAt,
		updatedAt:              rec.UpdatedAt,
		expiresAt:              rec.ExpiresAt,
	}
	if rec.HasCascade {
		c := RestoreCascade(rec.CascadeEntries, rec.CascadeRemoved)
		s.cascade = &c
	}
	if rec.Fraud != nil {
		fr := FraudResult{
			Status:          rec.Fraud.Status,
			Advice:          rec.Fraud.Advice,
			Recommendations: rec.Fraud.Recommendations,
		}
		if rec.Fraud.Error != "" {
			fr.Err = NewDomainError(ErrorCodeUpstreamUnavailable, rec.Fraud.Error)
		}
		s.fraud = &fr
	}
	return s, nil
}
