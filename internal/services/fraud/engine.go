// Package fraud merges fraud provider signals into a single advice and
// recommendation set. Provider failures never block a purchase.
package fraud

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kevin07696/purchase-gateway/internal/domain"
	"github.com/kevin07696/purchase-gateway/internal/domain/ports"
	"github.com/kevin07696/purchase-gateway/pkg/observability"
)

// Fallback paths, used as log fields and metric labels
const (
	PathNewMember      = "new_member"
	PathExistingMember = "existing_member"
	PathLegacy         = "legacy"
	PathMemberEmail    = "member_email"
)

// Config is injected at construction
type Config struct {
	// UseCommonFraudService routes to the cross-service recommendation
	// provider; otherwise the legacy advice provider is asked.
	UseCommonFraudService bool
}

// Input carries the signals of one evaluation
type Input struct {
	SessionID   string
	Site        domain.Site
	MemberID    string
	PublicKeyID string
	IP          string
	Country     string
	Email       string
	Amount      string
	PaymentType string
	FirstSix    string
	LastFour    string
	Headers     map[string]string
}

// Engine evaluates fraud for new and existing members
type Engine struct {
	cfg       Config
	common    ports.FraudRecommendationProvider
	legacy    ports.FraudAdviceProvider
	members   ports.MemberProfileService
	templates ports.PaymentTemplateService
	logger    *zap.Logger
}

// NewEngine creates a fraud engine
func NewEngine(
	cfg Config,
	common ports.FraudRecommendationProvider,
	legacy ports.FraudAdviceProvider,
	members ports.MemberProfileService,
	templates ports.PaymentTemplateService,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		cfg:       cfg,
		common:    common,
		legacy:    legacy,
		members:   members,
		templates: templates,
		logger:    logger,
	}
}

// EvaluateNewMember screens a purchase by a payer without stored templates
func (e *Engine) EvaluateNewMember(ctx context.Context, in Input) domain.FraudResult {
	if !in.Site.FraudEnabled {
		return domain.FraudDisabled()
	}
	return e.evaluate(ctx, in, PathNewMember)
}

// EvaluateExistingMember screens a purchase by a returning member. The
// member's email lookup plus fraud call run next to the template lookup.
func (e *Engine) EvaluateExistingMember(ctx context.Context, in Input) (domain.FraudResult, []domain.PaymentTemplate) {
	result := domain.FraudDisabled()
	var templates []domain.PaymentTemplate

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if !in.Site.FraudEnabled {
			return nil
		}
		in.Email = e.memberEmail(gctx, in)
		result = e.evaluate(gctx, in, PathExistingMember)
		return nil
	})

	g.Go(func() error {
		list, err := e.templates.ListTemplates(gctx, in.MemberID, in.SessionID)
		if err != nil {
			e.logger.Warn("Payment template lookup failed, continuing without templates",
				zap.String("session_id", in.SessionID),
				zap.String("member_id", in.MemberID),
				zap.Error(err),
			)
			return nil
		}
		templates = list
		return nil
	})

	// Both branches swallow their errors
	_ = g.Wait()

	if result.Recommendations.Has(domain.FraudCodeBypassValidation) {
		templates = domain.MarkAllSafe(templates)
	}
	return result, templates
}

// DetectThreeDS marks 3DS detection when the first biller supports 3DS and
// the advice does not already force it.
func DetectThreeDS(advice domain.FraudAdvice, first domain.Biller) domain.FraudAdvice {
	if first.Supports3DS && !advice.Force3DS {
		advice.Detect3DSUsage = true
	}
	return advice
}

func (e *Engine) evaluate(ctx context.Context, in Input, path string) domain.FraudResult {
	req := ports.FraudRequest{
		Identifier:      in.MemberID,
		SessionID:       in.SessionID,
		BusinessGroupID: in.Site.BusinessGroupID,
		SiteID:          in.Site.ID,
		IP:              in.IP,
		Country:         in.Country,
		Amount:          in.Amount,
		Email:           in.Email,
		PaymentType:     in.PaymentType,
		FirstSix:        in.FirstSix,
		LastFour:        in.LastFour,
		Headers:         in.Headers,
		MemberID:        in.MemberID,
	}
	if req.Identifier == "" {
		req.Identifier = in.SessionID
	}

	if !e.cfg.UseCommonFraudService {
		advice, err := e.legacy.Advice(ctx, req)
		if err != nil {
			return e.fallback(in, PathLegacy, err)
		}
		return domain.FraudOK(advice, recommendationsFromAdvice(advice))
	}

	recs, err := e.common.Recommendations(ctx, req)
	if err != nil {
		return e.fallback(in, path, err)
	}
	applicable := recs.ForPaymentType(in.PaymentType)
	advice := domain.AdviceFromRecommendations(applicable)

	e.logger.Debug("Fraud recommendations resolved",
		zap.String("session_id", in.SessionID),
		zap.String("path", path),
		zap.Int("received", len(recs)),
		zap.Int("applicable", len(applicable)),
	)
	return domain.FraudOK(advice, applicable)
}

func (e *Engine) fallback(in Input, path string, err error) domain.FraudResult {
	e.logger.Error("Fraud provider failed, applying default advice",
		zap.String("session_id", in.SessionID),
		zap.String("site_id", in.Site.ID),
		zap.String("path", path),
		zap.Error(err),
	)
	observability.RecordFraudFallback(path)
	return domain.FraudUnavailable(err)
}

// memberEmail resolves the member's email; failures yield an empty email
func (e *Engine) memberEmail(ctx context.Context, in Input) string {
	member, err := e.members.GetMember(ctx, in.MemberID, in.Site.ID, in.PublicKeyID)
	if err != nil {
		e.logger.Error("Member profile lookup failed, continuing without email",
			zap.String("session_id", in.SessionID),
			zap.String("member_id", in.MemberID),
			zap.String("path", PathMemberEmail),
			zap.Error(err),
		)
		observability.RecordFraudFallback(PathMemberEmail)
		return ""
	}
	if member == nil {
		return ""
	}
	return member.Email
}

// recommendationsFromAdvice expresses legacy advice in recommendation form
// so downstream consumers see one shape.
func recommendationsFromAdvice(a domain.FraudAdvice) domain.FraudRecommendations {
	var recs domain.FraudRecommendations
	if a.Blacklisted {
		recs = append(recs, domain.FraudRecommendation{Code: domain.FraudCodeBlacklist, Severity: domain.FraudSeverityBlock, Message: "Block_Transaction"})
	}
	if a.CaptchaRequired {
		recs = append(recs, domain.FraudRecommendation{Code: domain.FraudCodeCaptcha, Severity: domain.FraudSeverityAllow, Message: "Show_Captcha"})
	}
	if a.Force3DS {
		recs = append(recs, domain.FraudRecommendation{Code: domain.FraudCodeForce3DS, Severity: domain.FraudSeverityAllow, Message: "Force_Three_D"})
	}
	if a.BypassTemplates {
		recs = append(recs, domain.FraudRecommendation{Code: domain.FraudCodeBypassValidation, Severity: domain.FraudSeverityAllow, Message: "Bypass_Payment_Template_Validation"})
	}
	return recs
}
