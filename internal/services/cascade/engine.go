// Package cascade builds the ordered biller list a purchase is attempted against.
package cascade

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/kevin07696/purchase-gateway/internal/domain"
)

// Wildcard matches any site, country or payment type in a rule
const Wildcard = "*"

// Rule routes a (site, country, payment type) tuple to an ordered biller list
type Rule struct {
	SiteID      string   `yaml:"site_id"`
	Country     string   `yaml:"country"`
	PaymentType string   `yaml:"payment_type"`
	Billers     []string `yaml:"billers"`
}

func (r Rule) matches(siteID, country, paymentType string) bool {
	return matchField(r.SiteID, siteID) && matchField(r.Country, country) && matchField(r.PaymentType, paymentType)
}

func (r Rule) specificity() int {
	n := 0
	for _, f := range []string{r.SiteID, r.Country, r.PaymentType} {
		if f != "" && f != Wildcard {
			n++
		}
	}
	return n
}

func matchField(pattern, value string) bool {
	return pattern == "" || pattern == Wildcard || strings.EqualFold(pattern, value)
}

// Config is the routing configuration injected at construction
type Config struct {
	Rules []Rule `yaml:"rules"`
	// MaxSubmits overrides the directory's default budget per biller
	MaxSubmits map[string]int `yaml:"max_submits"`
	// ForceTokens maps recognized override tokens to a single biller
	ForceTokens map[string]string `yaml:"force_tokens"`
}

// DefaultConfig routes every purchase to rocketgate then netbilling and
// recognizes one test token per built-in biller.
func DefaultConfig() Config {
	return Config{
		Rules: []Rule{
			{SiteID: Wildcard, Country: Wildcard, PaymentType: domain.PaymentTypeCC, Billers: []string{domain.BillerRocketgate, domain.BillerNetbilling}},
			{SiteID: Wildcard, Country: Wildcard, PaymentType: domain.PaymentTypeChecks, Billers: []string{domain.BillerCentrobill}},
			{SiteID: Wildcard, Country: Wildcard, PaymentType: domain.PaymentTypeEWallet, Billers: []string{domain.BillerEpoch}},
			{SiteID: Wildcard, Country: Wildcard, PaymentType: domain.PaymentTypeCrypto, Billers: []string{domain.BillerQysso}},
		},
		ForceTokens: map[string]string{
			"test-rocketgate": domain.BillerRocketgate,
			"test-netbilling": domain.BillerNetbilling,
			"test-epoch":      domain.BillerEpoch,
			"test-qysso":      domain.BillerQysso,
			"test-centrobill": domain.BillerCentrobill,
		},
	}
}

// Request is the routing context of one purchase
type Request struct {
	SessionID         string
	SiteID            string
	BusinessGroupID   string
	Country           string
	PaymentType       string
	PaymentMethod     string
	TrafficSource     string
	ForceCascade      string
	InitialJoinBiller string
}

// Engine builds cascades. It is a pure function of (request, config).
type Engine struct {
	cfg       Config
	directory *domain.BillerDirectory
	logger    *zap.Logger
}

// NewEngine creates a cascade engine
func NewEngine(cfg Config, directory *domain.BillerDirectory, logger *zap.Logger) *Engine {
	return &Engine{cfg: cfg, directory: directory, logger: logger}
}

// Build resolves the cascade for req
func (e *Engine) Build(ctx context.Context, req Request) (domain.Cascade, error) {
	if req.ForceCascade != "" {
		return e.forced(req)
	}

	rule, ok := e.resolveRule(req.SiteID, req.Country, req.PaymentType)
	if !ok {
		return domain.Cascade{}, domain.NewDomainError(domain.ErrorCodeNoBillersAvailable, "no routing rule for purchase").
			WithDetail("site_id", req.SiteID).
			WithDetail("country", req.Country).
			WithDetail("payment_type", req.PaymentType)
	}

	names := preferFirst(rule.Billers, req.InitialJoinBiller)
	entries := make([]domain.CascadeEntry, 0, len(names))
	for _, name := range names {
		biller, ok := e.directory.Lookup(name)
		if !ok {
			e.logger.Warn("Routing rule references unknown biller",
				zap.String("session_id", req.SessionID),
				zap.String("biller", name),
			)
			continue
		}
		entries = append(entries, e.entry(biller))
	}
	if len(entries) == 0 {
		return domain.Cascade{}, domain.NewDomainError(domain.ErrorCodeNoBillersAvailable, "routing rule has no known billers").
			WithDetail("site_id", req.SiteID)
	}

	c := domain.NewCascade(entries)
	if req.PaymentMethod != "" {
		c = c.WithPaymentMethod(req.PaymentMethod)
	}

	e.logger.Debug("Cascade built",
		zap.String("session_id", req.SessionID),
		zap.String("site_id", req.SiteID),
		zap.Strings("billers", c.BillerNames()),
	)
	return c, nil
}

// Apply3DS drops billers without 3DS support when the fraud advice forces
// 3DS. If no biller would remain the cascade is returned unchanged.
func (e *Engine) Apply3DS(c domain.Cascade, advice domain.FraudAdvice) domain.Cascade {
	if !advice.Force3DS {
		return c
	}
	filtered := c.Without(domain.RemovalReason3DSIneligible, func(b domain.Biller) bool {
		return b.Supports3DS
	})
	if filtered.IsEmpty() {
		e.logger.Warn("No 3DS capable biller in cascade, keeping original order",
			zap.Strings("billers", c.BillerNames()),
		)
		return c
	}
	return filtered
}

func (e *Engine) forced(req Request) (domain.Cascade, error) {
	name, ok := e.cfg.ForceTokens[strings.ToLower(req.ForceCascade)]
	if !ok {
		return domain.Cascade{}, domain.NewDomainError(domain.ErrorCodeInvalidForceCascade, "unrecognized force-cascade token").
			WithDetail("force_cascade", req.ForceCascade)
	}
	biller, ok := e.directory.Lookup(name)
	if !ok {
		return domain.Cascade{}, domain.NewDomainError(domain.ErrorCodeInvalidForceCascade, "force-cascade token maps to unknown biller").
			WithDetail("force_cascade", req.ForceCascade).
			WithDetail("biller", name)
	}

	e.logger.Info("Force cascade applied",
		zap.String("session_id", req.SessionID),
		zap.String("biller", biller.Name),
	)
	c := domain.NewCascade([]domain.CascadeEntry{e.entry(biller)})
	if req.PaymentMethod != "" {
		c = c.WithPaymentMethod(req.PaymentMethod)
	}
	return c, nil
}

func (e *Engine) entry(b domain.Biller) domain.CascadeEntry {
	budget := b.DefaultMaxSubmits
	if v, ok := e.cfg.MaxSubmits[b.Name]; ok && v > 0 {
		budget = v
	}
	return domain.CascadeEntry{Biller: b, MaxSubmits: budget}
}

// resolveRule picks the most specific matching rule; ties go to the first
func (e *Engine) resolveRule(siteID, country, paymentType string) (Rule, bool) {
	best := -1
	var found Rule
	for _, r := range e.cfg.Rules {
		if !r.matches(siteID, country, paymentType) {
			continue
		}
		if s := r.specificity(); s > best {
			best = s
			found = r
		}
	}
	return found, best >= 0
}

func preferFirst(names []string, preferred string) []string {
	out := make([]string, 0, len(names))
	if preferred != "" {
		for _, n := range names {
			if strings.EqualFold(n, preferred) {
				out = append(out, n)
				break
			}
		}
	}
	for _, n := range names {
		if len(out) > 0 && strings.EqualFold(n, out[0]) {
			continue
		}
		out = append(out, n)
	}
	return out
}
