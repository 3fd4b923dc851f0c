// Package fixtures provides test data builders and helpers.
package fixtures

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kevin07696/purchase-gateway/internal/domain"
)

// SiteBuilder provides fluent API for building test sites.
type SiteBuilder struct {
	site domain.Site
}

// NewSite creates a new site builder with sensible defaults.
func NewSite(id string) *SiteBuilder {
	return &SiteBuilder{
		site: domain.Site{
			ID:              id,
			BusinessGroupID: "bg-" + id,
			Name:            "Test Site " + id,
			URL:             "https://" + id + ".example.com",
			FraudEnabled:    true,
			PublicKeys:      []string{"pk-" + id},
			Descriptor:      "TESTSITE",
		},
	}
}

func (b *SiteBuilder) WithFraudDisabled() *SiteBuilder {
	b.site.FraudEnabled = false
	return b
}

func (b *SiteBuilder) WithBusinessGroup(id string) *SiteBuilder {
	b.site.BusinessGroupID = id
	return b
}

func (b *SiteBuilder) Build() *domain.Site {
	s := b.site
	return &s
}

// ItemBuilder provides fluent API for building test items.
type ItemBuilder struct {
	itemID    string
	key       domain.ItemKey
	charge    domain.ChargeInformation
	crossSale bool
}

// NewItem creates a main item builder: 29.99 for 30 days rebilling at 29.99.
func NewItem(siteID string) *ItemBuilder {
	return &ItemBuilder{
		itemID: uuid.NewString(),
		key:    domain.ItemKey{SiteID: siteID, BundleID: "bundle-1", AddonID: "addon-1"},
		charge: domain.ChargeInformation{
			Amount:       decimal.RequireFromString("29.99"),
			InitialDays:  30,
			RebillAmount: decimal.RequireFromString("29.99"),
			RebillDays:   30,
		},
	}
}

func (b *ItemBuilder) WithID(id string) *ItemBuilder {
	b.itemID = id
	return b
}

func (b *ItemBuilder) WithBundle(bundleID, addonID string) *ItemBuilder {
	b.key.BundleID = bundleID
	b.key.AddonID = addonID
	return b
}

func (b *ItemBuilder) WithAmount(amount string) *ItemBuilder {
	b.charge.Amount = decimal.RequireFromString(amount)
	return b
}

func (b *ItemBuilder) AsCrossSale() *ItemBuilder {
	b.crossSale = true
	return b
}

func (b *ItemBuilder) Build() *domain.InitializedItem {
	item, err := domain.NewInitializedItem(b.itemID, b.key, b.charge, b.crossSale)
	if err != nil {
		panic(err)
	}
	return item
}

// Biller returns a biller from the default directory
func Biller(name string) domain.Biller {
	b, ok := domain.DefaultBillerDirectory().Lookup(name)
	if !ok {
		panic("unknown biller " + name)
	}
	return b
}

// CascadeOf builds a cascade from default-directory billers
func CascadeOf(names ...string) domain.Cascade {
	entries := make([]domain.CascadeEntry, len(names))
	for i, n := range names {
		b := Biller(n)
		entries[i] = domain.CascadeEntry{Biller: b, MaxSubmits: b.DefaultMaxSubmits}
	}
	return domain.NewCascade(entries)
}

// Transaction builds a biller result
func Transaction(biller string, status domain.TransactionStatus) *domain.Transaction {
	tx := &domain.Transaction{
		TransactionID: uuid.NewString(),
		BillerName:    biller,
		PaymentType:   domain.PaymentTypeCC,
		Status:        status,
	}
	if status == domain.TransactionStatusDeclined {
		tx.Decline = &domain.DeclineInfo{Code: "105", Message: "Card declined", Class: domain.ErrorClassDecline}
	}
	return tx
}

// SessionBuilder builds a session and walks it to a requested state.
type SessionBuilder struct {
	params     domain.NewSessionParams
	cascade    domain.Cascade
	fraud      domain.FraudResult
	sites      map[string]domain.Site
	crossSales []*domain.InitializedItem
}

// NewSession creates a card session on site-1 routed to rocketgate then netbilling.
func NewSession() *SessionBuilder {
	site := NewSite("site-1").Build()
	return &SessionBuilder{
		params: domain.NewSessionParams{
			SessionID:   uuid.NewString(),
			MainItem:    NewItem(site.ID).Build(),
			Payment:     domain.PaymentInfo{Kind: domain.PaymentKindCard, Type: domain.PaymentTypeCC, FirstSix: "411111", LastFour: "1111"},
			User:        domain.UserInfo{IP: "10.0.0.1", Country: "US", Email: "payer@example.com"},
			Currency:    "USD",
			Site:        *site,
			PublicKeyID: "pk-site-1",
			RedirectURL: "https://client.example.com/return",
			PostbackURL: "https://client.example.com/postback",
		},
		cascade: CascadeOf(domain.BillerRocketgate, domain.BillerNetbilling),
		fraud:   domain.FraudOK(domain.DefaultFraudAdvice(), nil),
		sites:   map[string]domain.Site{site.ID: *site},
	}
}

func (b *SessionBuilder) WithID(id string) *SessionBuilder {
	b.params.SessionID = id
	return b
}

func (b *SessionBuilder) WithCascade(c domain.Cascade) *SessionBuilder {
	b.cascade = c
	return b
}

func (b *SessionBuilder) WithAdvice(a domain.FraudAdvice) *SessionBuilder {
	b.fraud = domain.FraudOK(a, nil)
	return b
}

func (b *SessionBuilder) WithRedirectURL(url string) *SessionBuilder {
	b.params.RedirectURL = url
	return b
}

func (b *SessionBuilder) WithCrossSale(item *domain.InitializedItem) *SessionBuilder {
	b.crossSales = append(b.crossSales, item)
	b.sites[item.Key.SiteID] = *NewSite(item.Key.SiteID).Build()
	return b
}

// Initializing returns the freshly constructed session
func (b *SessionBuilder) Initializing() *domain.PurchaseSession {
	p := b.params
	p.CrossSales = b.crossSales
	s, err := domain.NewPurchaseSession(p)
	if err != nil {
		panic(err)
	}
	return s
}

// Validated returns a session with cascade and fraud assigned
func (b *SessionBuilder) Validated() *domain.PurchaseSession {
	s := b.Initializing()
	must(s.VerifyCrossSaleSites(b.sites))
	must(s.AssignCascade(b.cascade))
	must(s.AssignFraud(b.fraud))
	must(s.Validate())
	return s
}

// Routed returns a validated session after the routing decision
func (b *SessionBuilder) Routed() *domain.PurchaseSession {
	s := b.Validated()
	if _, err := s.Route(); err != nil {
		panic(err)
	}
	return s
}

// Pending returns a session parked after a pending attempt on the first biller
func (b *SessionBuilder) Pending() *domain.PurchaseSession {
	s := b.Routed()
	tx := Transaction(s.Cascade().FirstBiller().Name, domain.TransactionStatusPending)
	must(s.RecordAttempt(*tx))
	must(s.MarkPending())
	return s
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
