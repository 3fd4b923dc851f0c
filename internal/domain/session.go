package domain

import (
	"time"

	"github.com/kevin07696/purchase-gateway/pkg/timeutil"
)

// SessionState is the lifecycle state of a purchase session
type SessionState string

const (
	StateInitializing      SessionState = "initializing"
	StateValidated         SessionState = "validated"
	StateThirdPartyPending SessionState = "third_party_pending"
	StateCaptchaPending    SessionState = "captcha_pending"
	StateProcessing        SessionState = "processing"
	StatePending           SessionState = "pending"
	StateProcessed         SessionState = "processed"
	StateAborted           SessionState = "aborted"
)

// IsTerminal reports whether no further transition is possible
func (s SessionState) IsTerminal() bool {
	return s == StateProcessed || s == StateAborted
}

// Abort reasons
const (
	AbortReasonCascadeExhausted = "cascade exhausted"
	AbortReasonBlockedByFraud   = "blocked_by_fraud"
	AbortReasonNonRetryable     = "non_retryable_error"
	AbortReasonDeclined         = "declined"
)

// DefaultSessionTTL bounds how long a session can be acted on
const DefaultSessionTTL = 30 * time.Minute

// NewSessionParams carries everything known at init
type NewSessionParams struct {
	SessionID     string
	MainItem      *InitializedItem
	CrossSales    []*InitializedItem
	Payment       PaymentInfo
	User          UserInfo
	Currency      string
	Site          Site
	MemberID      string
	PublicKeyID   string
	RedirectURL   string
	PostbackURL   string
	SkipVoid      bool
	EntrySiteID   string
	TrafficSource string
	ForceCascade  string
	TTL           time.Duration
}

// PurchaseSession is the aggregate root of a purchase. All state changes go
// through its transition methods.
type PurchaseSession struct {
	id                     string
	state                  SessionState
	version                int
	mainItem               *InitializedItem
	crossSales             []*InitializedItem
	payment                PaymentInfo
	user                   UserInfo
	currency               string
	siteID                 string
	businessGroupID        string
	memberID               string
	publicKeyID            string
	cascade                *Cascade
	fraud                  *FraudResult
	redirectURL            string
	postbackURL            string
	skipVoid               bool
	entrySiteID            string
	trafficSource          string
	forceCascade           string
	abortReason            string
	crossSaleSitesVerified bool
	createdAt              time.Time
	updatedAt              time.Time
	expiresAt              time.Time
}

// NewPurchaseSession creates a session in the Initializing state
func NewPurchaseSession(p NewSessionParams) (*PurchaseSession, error) {
	if p.SessionID == "" {
		return nil, NewDomainError(ErrorCodeValidationMissingField, "session id is required")
	}
	if p.MainItem == nil {
		return nil, NewDomainError(ErrorCodeValidationMissingField, "main item is required")
	}
	if p.MainItem.IsCrossSale {
		return nil, NewDomainError(ErrorCodeValidationFailed, "main item cannot be a cross-sale")
	}
	if !ValidPaymentType(p.Payment.Type) {
		return nil, NewDomainError(ErrorCodeInvalidPaymentType, "unsupported payment type").
			WithDetail("payment_type", p.Payment.Type)
	}
	if p.Currency == "" {
		return nil, NewDomainError(ErrorCodeValidationMissingField, "currency is required")
	}
	for _, cs := range p.CrossSales {
		if cs == nil || !cs.IsCrossSale {
			return nil, NewDomainError(ErrorCodeValidationFailed, "cross-sale items must be flagged as cross-sales")
		}
	}
	ttl := p.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	now := timeutil.Now()
	return &PurchaseSession{
		id:              p.SessionID,
		state:           StateInitializing,
		mainItem:        p.MainItem,
		crossSales:      append([]*InitializedItem(nil), p.CrossSales...),
		payment:         p.Payment,
		user:            p.User,
		currency:        p.Currency,
		siteID:          p.Site.ID,
		businessGroupID: p.Site.BusinessGroupID,
		memberID:        p.MemberID,
		publicKeyID:     p.PublicKeyID,
		redirectURL:     p.RedirectURL,
		postbackURL:     p.PostbackURL,
		skipVoid:        p.SkipVoid,
		entrySiteID:     p.EntrySiteID,
		trafficSource:   p.TrafficSource,
		forceCascade:    p.ForceCascade,
		createdAt:       now,
		updatedAt:       now,
		expiresAt:       now.Add(ttl),
	}, nil
}

func (s *PurchaseSession) ID() string { return s.id }
func (s *PurchaseSession) State() SessionState { return s.state }
func (s *PurchaseSession) Version() int { return s.version }
func (s *PurchaseSession) MainItem() *InitializedItem { return s.mainItem }
func (s *PurchaseSession) Payment() PaymentInfo { return s.payment }
func (s *PurchaseSession) User() UserInfo { return s.user }
func (s *PurchaseSession) Currency() string { return s.currency }
func (s *PurchaseSession) SiteID() string { return s.siteID }
func (s *PurchaseSession) BusinessGroupID() string { return s.businessGroupID }
func (s *PurchaseSession) MemberID() string { return s.memberID }
func (s *PurchaseSession) PublicKeyID() string { return s.publicKeyID }
func (s *PurchaseSession) RedirectURL() string { return s.redirectURL }
func (s *PurchaseSession) PostbackURL() string { return s.postbackURL }
func (s *PurchaseSession) SkipVoid() bool { return s.skipVoid }
func (s *PurchaseSession) EntrySiteID() string { return s.entrySiteID }
func (s *PurchaseSession) TrafficSource() string { return s.trafficSource }
func (s *PurchaseSession) ForceCascade() string { return s.forceCascade }
func (s *PurchaseSession) AbortReason() string { return s.abortReason }
func (s *PurchaseSession) CreatedAt() time.Time { return s.createdAt }
func (s *PurchaseSession) UpdatedAt() time.Time { return s.updatedAt }
func (s *PurchaseSession) ExpiresAt() time.Time { return s.expiresAt }
func (s *PurchaseSession) IsTerminal() bool { return s.state.IsTerminal() }
func (s *PurchaseSession) SetVersion(v int) { s.version = v }
func (s *PurchaseSession) CrossSales() []*InitializedItem { return s.crossSales }

// IsExpired reports whether the session can no longer be acted on at now
func (s *PurchaseSession) IsExpired(now time.Time) bool {
	return !s.expiresAt.IsZero() && now.After(s.expiresAt)
}

// Cascade returns the assigned cascade, zero value before assignment
func (s *PurchaseSession) Cascade() Cascade {
	if s.cascade == nil {
		return Cascade{}
	}
	return *s.cascade
}

// HasCascade reports whether a cascade has been assigned
func (s *PurchaseSession) HasCascade() bool {
	return s.cascade != nil
}

// Fraud returns the fraud decision, the disabled default before assignment
func (s *PurchaseSession) Fraud() FraudResult {
	if s.fraud == nil {
		return FraudDisabled()
	}
	return *s.fraud
}

// FraudAdvice is shorthand for Fraud().Advice
func (s *PurchaseSession) FraudAdvice() FraudAdvice {
	return s.Fraud().Advice
}

// Items returns the main item followed by the cross-sales
func (s *PurchaseSession) Items() []*InitializedItem {
	return append([]*InitializedItem{s.mainItem}, s.crossSales...)
}

// Item finds an item by id
func (s *PurchaseSession) Item(itemID string) (*InitializedItem, bool) {
	for _, it := range s.Items() {
		if it.ItemID == itemID {
			return it, true
		}
	}
	return nil, false
}

// ItemByTransaction finds the item that owns transactionID
func (s *PurchaseSession) ItemByTransaction(transactionID string) (*InitializedItem, bool) {
	for _, it := range s.Items() {
		if _, ok := it.Transactions.Find(transactionID); ok {
			return it, true
		}
	}
	return nil, false
}

// SelectedCrossSales returns the cross-sales the payer opted into
func (s *PurchaseSession) SelectedCrossSales() []*InitializedItem {
	var out []*InitializedItem
	for _, cs := range s.crossSales {
		if cs.Selected {
			out = append(out, cs)
		}
	}
	return out
}

// CrossSaleSiteIDs lists the distinct sites referenced by cross-sales
func (s *PurchaseSession) CrossSaleSiteIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, cs := range s.crossSales {
		if !seen[cs.Key.SiteID] {
			seen[cs.Key.SiteID] = true
			ids = append(ids, cs.Key.SiteID)
		}
	}
	return ids
}

// VerifyCrossSaleSites checks that every cross-sale site was resolved.
// Any unresolved site fails the whole initialization.
func (s *PurchaseSession) VerifyCrossSaleSites(resolved map[string]Site) error {
	if s.state != StateInitializing {
		return s.illegal("verify cross-sale sites")
	}
	for _, cs := range s.crossSales {
		if _, ok := resolved[cs.Key.SiteID]; !ok {
			return NewDomainError(ErrorCodeCrossSaleSiteNotFound, "cross-sale site not found").
				WithDetail("site_id", cs.Key.SiteID).
				WithDetail("item_id", cs.ItemID)
		}
	}
	s.crossSaleSitesVerified = true
	s.touch()
	return nil
}

// AssignCascade sets the cascade during initialization
func (s *PurchaseSession) AssignCascade(c Cascade) error {
	if s.state != StateInitializing {
		return s.illegal("assign cascade")
	}
	if c.IsEmpty() {
		return NewDomainError(ErrorCodeNoBillersAvailable, "cascade has no billers").
			WithDetail("site_id", s.siteID)
	}
	s.cascade = &c
	s.touch()
	return nil
}

// AssignFraud sets the fraud decision during initialization
func (s *PurchaseSession) AssignFraud(r FraudResult) error {
	if s.state != StateInitializing {
		return s.illegal("assign fraud")
	}
	s.fraud = &r
	s.touch()
	return nil
}

// Validate closes initialization once cross-sale sites, cascade and fraud
// advice are all in place.
func (s *PurchaseSession) Validate() error {
	if s.state != StateInitializing {
		return s.illegal("validate")
	}
	if !s.crossSaleSitesVerified {
		return NewDomainError(ErrorCodeValidationFailed, "cross-sale sites have not been verified")
	}
	if s.cascade == nil {
		return NewDomainError(ErrorCodeNoBillersAvailable, "cascade has not been assigned")
	}
	if s.fraud == nil {
		return NewDomainError(ErrorCodeValidationFailed, "fraud advice has not been assigned")
	}
	s.state = StateValidated
	s.touch()
	return nil
}

// PlannedRoute reports where a validated session would go next without
// moving it. Precedence: a third-party first biller, then captcha, then
// direct processing. A third-party first biller requires a redirect URL.
func (s *PurchaseSession) PlannedRoute() (SessionState, error) {
	if s.cascade == nil {
		return s.state, NewDomainError(ErrorCodeNoBillersAvailable, "cascade has not been assigned")
	}
	first := s.cascade.FirstBiller()
	switch {
	case first.ThirdParty:
		if s.redirectURL == "" {
			return s.state, NewDomainError(ErrorCodeMissingRedirectURL, "redirect url is required for third-party billers").
				WithDetail("biller", first.Name)
		}
		return StateThirdPartyPending, nil
	case s.FraudAdvice().CaptchaRequired:
		return StateCaptchaPending, nil
	default:
		return StateProcessing, nil
	}
}

// Route moves a validated session to the state chosen by PlannedRoute
func (s *PurchaseSession) Route() (SessionState, error) {
	if s.state != StateValidated {
		return s.state, s.illegal("route")
	}
	next, err := s.PlannedRoute()
	if err != nil {
		return s.state, err
	}
	s.state = next
	s.touch()
	return s.state, nil
}

// NeedsFraudReevaluation reports whether the process step pays differently
// than announced at init.
func (s *PurchaseSession) NeedsFraudReevaluation(paymentType string) bool {
	return paymentType != "" && paymentType != s.payment.Type
}

// ChangePayment swaps the payment method before any attempt was made. The
// fraud decision and cascade are replaced and the session is routed again.
func (s *PurchaseSession) ChangePayment(payment PaymentInfo, fraud FraudResult, c Cascade) (SessionState, error) {
	switch s.state {
	case StateValidated, StateCaptchaPending, StateProcessing:
	default:
		return s.state, s.illegal("change payment")
	}
	if s.mainItem.Transactions.Len() > 0 {
		return s.state, s.illegal("change payment after an attempt")
	}
	if !ValidPaymentType(payment.Type) {
		return s.state, NewDomainError(ErrorCodeInvalidPaymentType, "unsupported payment type").
			WithDetail("payment_type", payment.Type)
	}
	if c.IsEmpty() {
		return s.state, NewDomainError(ErrorCodeNoBillersAvailable, "cascade has no billers")
	}
	s.payment = payment
	s.fraud = &fraud
	s.cascade = &c
	s.state = StateValidated
	return s.Route()
}

// UpdatePayment records details learned at process time for the same
// payment type.
func (s *PurchaseSession) UpdatePayment(payment PaymentInfo) {
	if payment.Type == "" {
		payment.Type = s.payment.Type
	}
	s.payment = payment
	s.touch()
}

// UpdateUser merges user details learned after init
func (s *PurchaseSession) UpdateUser(u UserInfo) {
	s.user = s.user.Merge(u)
	s.touch()
}

// SelectCrossSales marks the cross-sales identified by keys as selected
// and every other cross-sale as not selected.
func (s *PurchaseSession) SelectCrossSales(keys []ItemKey) error {
	want := make(map[ItemKey]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	matched := 0
	for _, cs := range s.crossSales {
		cs.Selected = want[cs.Key]
		if cs.Selected {
			matched++
		}
	}
	if matched != len(want) {
		return NewDomainError(ErrorCodeValidationFailed, "selected cross-sale is not part of the session")
	}
	s.touch()
	return nil
}

// ValidateCaptcha releases a captcha-gated session for processing
func (s *PurchaseSession) ValidateCaptcha() error {
	if s.state != StateCaptchaPending {
		return s.illegal("validate captcha")
	}
	s.state = StateProcessing
	s.touch()
	return nil
}

// NextBiller returns the cascade entry to submit to next
func (s *PurchaseSession) NextBiller() (CascadeEntry, bool) {
	if s.cascade == nil {
		return CascadeEntry{}, false
	}
	return s.cascade.Next()
}

// RemoveBiller drops a biller that cannot be attempted from the rest of a
// running cascade. The removal shows up in FailedBillers.
func (s *PurchaseSession) RemoveBiller(billerName string, reason RemovalReason) error {
	if s.state != StateProcessing {
		return s.illegal("remove biller")
	}
	next := s.cascade.Without(reason, func(b Biller) bool { return b.Name != billerName })
	s.cascade = &next
	s.touch()
	return nil
}

// RecordAttempt appends a main-item attempt and counts it against the
// biller's submit budget.
func (s *PurchaseSession) RecordAttempt(tx Transaction) error {
	if s.state != StateProcessing && s.state != StateThirdPartyPending {
		return s.illegal("record attempt")
	}
	next, err := s.cascade.RecordSubmit(tx.BillerName)
	if err != nil {
		return err
	}
	s.cascade = &next
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = timeutil.Now()
	}
	s.mainItem.Transactions.Add(tx)
	s.touch()
	return nil
}

// RecordCrossSaleAttempt appends an attempt to a cross-sale item
func (s *PurchaseSession) RecordCrossSaleAttempt(itemID string, tx Transaction) error {
	if s.state != StateProcessing && s.state != StatePending {
		return s.illegal("record cross-sale attempt")
	}
	item, ok := s.Item(itemID)
	if !ok || !item.IsCrossSale {
		return NewDomainError(ErrorCodeTransactionNotFound, "cross-sale item not found").
			WithDetail("item_id", itemID)
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = timeutil.Now()
	}
	item.Transactions.Add(tx)
	s.touch()
	return nil
}

// MarkPending parks the session until an asynchronous result arrives
func (s *PurchaseSession) MarkPending() error {
	if s.state != StateProcessing && s.state != StateThirdPartyPending {
		return s.illegal("mark pending")
	}
	s.state = StatePending
	s.touch()
	return nil
}

// Complete moves the session to Processed
func (s *PurchaseSession) Complete() error {
	if s.state != StateProcessing && s.state != StatePending {
		return s.illegal("complete")
	}
	s.state = StateProcessed
	s.touch()
	return nil
}

// Abort ends the session without a successful charge
func (s *PurchaseSession) Abort(reason string) error {
	if s.state.IsTerminal() || s.state == StateInitializing {
		return s.illegal("abort")
	}
	s.state = StateAborted
	s.abortReason = reason
	s.touch()
	return nil
}

// ApplyAsyncResult applies a postback or return outcome to item. Only a
// Pending session accepts one; terminal sessions report already processed.
func (s *PurchaseSession) ApplyAsyncResult(item *InitializedItem, tx Transaction) error {
	if s.state.IsTerminal() {
		return NewDomainError(ErrorCodeSessionAlreadyProcessed, "purchase session already processed").
			WithDetail("session_id", s.id).
			WithDetail("state", string(s.state))
	}
	if s.state != StatePending {
		return s.illegal("apply asynchronous result")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = timeutil.Now()
	}
	item.Transactions.Add(tx)
	s.touch()
	if item.IsCrossSale {
		return nil
	}
	switch tx.Status {
	case TransactionStatusApproved:
		return s.Complete()
	case TransactionStatusDeclined, TransactionStatusAborted:
		return s.Abort(AbortReasonDeclined)
	}
	return nil
}

// FailedBiller is a biller whose attempt did not succeed
type FailedBiller struct {
	BillerName    string        `json:"biller_name"`
	TransactionID string        `json:"transaction_id,omitempty"`
	Status        string        `json:"status"`
	RemovedFor    RemovalReason `json:"removed_for,omitempty"`
}

// FailedBillers lists declined or aborted attempts in order followed by the
// billers removed from the cascade.
func (s *PurchaseSession) FailedBillers() []FailedBiller {
	var out []FailedBiller
	for _, tx := range s.mainItem.Transactions.All() {
		if tx.Status == TransactionStatusDeclined || tx.Status == TransactionStatusAborted {
			out = append(out, FailedBiller{BillerName: tx.BillerName, TransactionID: tx.TransactionID, Status: string(tx.Status)})
		}
	}
	for _, r := range s.Cascade().Removed() {
		out = append(out, FailedBiller{BillerName: r.Biller.Name, Status: "removed", RemovedFor: r.Reason})
	}
	return out
}

func (s *PurchaseSession) illegal(action string) error {
	return NewDomainError(ErrorCodeIllegalStateTransition, "illegal state transition").
		WithDetail("action", action).
		WithDetail("state", string(s.state)).
		WithDetail("session_id", s.id)
}

func (s *PurchaseSession) touch() {
	s.updatedAt = timeutil.Now()
}
