// Package purchase orchestrates the purchase lifecycle: init, process,
// captcha validation, 3DS completion and the failed-billers lookup.
package purchase

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kevin07696/purchase-gateway/internal/domain"
	"github.com/kevin07696/purchase-gateway/internal/domain/ports"
	"github.com/kevin07696/purchase-gateway/internal/ng"
	"github.com/kevin07696/purchase-gateway/internal/services/cascade"
	"github.com/kevin07696/purchase-gateway/internal/services/events"
	"github.com/kevin07696/purchase-gateway/internal/services/fraud"
	"github.com/kevin07696/purchase-gateway/internal/services/postback"
	"github.com/kevin07696/purchase-gateway/pkg/observability"
	"github.com/kevin07696/purchase-gateway/pkg/resilience"
	"github.com/kevin07696/purchase-gateway/pkg/timeutil"
)

// Callback paths billers and payers come back to
const (
	ReturnPath   = "/api/v1/purchase/return/"
	PostbackPath = "/api/v1/purchase/postback/"
	ThreeDSPath  = "/api/v1/purchase/threed/complete/"
)

// Operation names, used as log fields and metric labels
const (
	OpInit            = "init"
	OpProcess         = "process"
	OpCaptcha         = "captcha"
	OpCompleteThreeDS = "complete_3ds"
)

// Config is injected at construction
type Config struct {
	SessionTTL      time.Duration
	Timeouts        *resilience.TimeoutConfig
	CallbackBaseURL string
}

// Service drives purchase sessions through their lifecycle
type Service struct {
	cfg          Config
	sites        ports.SiteRepository
	fraud        *fraud.Engine
	cascades     *cascade.Engine
	transactions ports.TransactionService
	repo         ports.SessionRepository
	locker       ports.SessionLocker
	reconciler   *postback.Reconciler
	emitter      *events.Emitter
	logger       *zap.Logger
}

// NewService creates a purchase service
func NewService(
	cfg Config,
	sites ports.SiteRepository,
	fraudEngine *fraud.Engine,
	cascades *cascade.Engine,
	transactions ports.TransactionService,
	repo ports.SessionRepository,
	locker ports.SessionLocker,
	reconciler *postback.Reconciler,
	emitter *events.Emitter,
	logger *zap.Logger,
) *Service {
	if cfg.Timeouts == nil {
		cfg.Timeouts = resilience.DefaultTimeoutConfig()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = domain.DefaultSessionTTL
	}
	s := &Service{
		cfg:          cfg,
		sites:        sites,
		fraud:        fraudEngine,
		cascades:     cascades,
		transactions: transactions,
		repo:         repo,
		locker:       locker,
		reconciler:   reconciler,
		emitter:      emitter,
		logger:       logger,
	}
	// Asynchronous approvals charge the selected cross-sales like Process does
	reconciler.OnMainApproval(s.chargeOnApproval)
	return s
}

// Init opens a purchase session. Nothing is persisted unless the session
// validates and can be routed.
func (s *Service) Init(ctx context.Context, req ng.InitRequest) (*ng.InitResponse, error) {
	start := time.Now()
	ctx, cancel := s.cfg.Timeouts.OperationContext(ctx)
	defer cancel()

	session, templates, err := s.initialize(ctx, req)
	if err != nil {
		s.logger.Warn("Purchase init failed",
			zap.String("site_id", req.SiteID),
			zap.String("session_id", req.SessionID),
			zap.String("code", string(domain.GetErrorCode(err))),
			zap.Error(err),
		)
		observability.RecordPurchaseOperation(OpInit, "failed", time.Since(start).Seconds())
		return nil, err
	}

	s.emitter.Emit(ctx, session, domain.EventPurchaseInitialized)
	observability.RecordPurchaseOperation(OpInit, string(session.State()), time.Since(start).Seconds())

	s.logger.Info("Purchase initialized",
		zap.String("session_id", session.ID()),
		zap.String("site_id", session.SiteID()),
		zap.Strings("cascade", session.Cascade().BillerNames()),
		zap.String("fraud_status", string(session.Fraud().Status)),
	)
	return toInitResponse(session, templates), nil
}

func (s *Service) initialize(ctx context.Context, req ng.InitRequest) (*domain.PurchaseSession, []domain.PaymentTemplate, error) {
	sessionID, err := resolveSessionID(req.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if req.SiteID == "" {
		return nil, nil, domain.NewDomainError(domain.ErrorCodeValidationMissingField, "site id is required")
	}

	sites, err := s.resolveSites(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	site := sites[req.SiteID]
	if !site.HasPublicKey(req.PublicKeyID) {
		return nil, nil, domain.NewDomainError(domain.ErrorCodeValidationFailed, "public key does not belong to site").
			WithDetail("site_id", site.ID).
			WithDetail("public_key_id", req.PublicKeyID)
	}

	mainItem, crossSales, err := buildItems(req)
	if err != nil {
		return nil, nil, err
	}

	session, err := domain.NewPurchaseSession(domain.NewSessionParams{
		SessionID:     sessionID,
		MainItem:      mainItem,
		CrossSales:    crossSales,
		Payment:       ng.PaymentInput{Type: req.PaymentType, Method: req.PaymentMethod}.ToDomain(),
		User:          domain.UserInfo{IP: req.ClientIP, Country: req.ClientCountry, Email: req.Email},
		Currency:      req.Currency,
		Site:          site,
		MemberID:      req.MemberID,
		PublicKeyID:   req.PublicKeyID,
		RedirectURL:   req.RedirectURL,
		PostbackURL:   req.PostbackURL,
		SkipVoid:      req.SkipVoid,
		EntrySiteID:   req.EntrySiteID,
		TrafficSource: req.TrafficSource,
		ForceCascade:  req.ForceCascade,
		TTL:           s.cfg.SessionTTL,
	})
	if err != nil {
		return nil, nil, err
	}

	// Fails closed before any charge can exist
	if err := session.VerifyCrossSaleSites(sites); err != nil {
		return nil, nil, err
	}

	in := fraud.Input{
		SessionID:   sessionID,
		Site:        site,
		MemberID:    req.MemberID,
		PublicKeyID: req.PublicKeyID,
		IP:          req.ClientIP,
		Country:     req.ClientCountry,
		Email:       req.Email,
		Amount:      mainItem.Charge.Amount.String(),
		PaymentType: req.PaymentType,
		Headers:     req.FraudHeaders,
	}
	var (
		result    domain.FraudResult
		templates []domain.PaymentTemplate
	)
	if req.MemberID != "" {
		result, templates = s.fraud.EvaluateExistingMember(ctx, in)
	} else {
		result = s.fraud.EvaluateNewMember(ctx, in)
	}

	c, err := s.cascades.Build(ctx, cascade.Request{
		SessionID:         sessionID,
		SiteID:            site.ID,
		BusinessGroupID:   site.BusinessGroupID,
		Country:           req.ClientCountry,
		PaymentType:       req.PaymentType,
		PaymentMethod:     req.PaymentMethod,
		TrafficSource:     req.TrafficSource,
		ForceCascade:      req.ForceCascade,
		InitialJoinBiller: req.InitialJoinBiller,
	})
	if err != nil {
		return nil, nil, err
	}
	c = s.cascades.Apply3DS(c, result.Advice)
	result.Advice = fraud.DetectThreeDS(result.Advice, c.FirstBiller())

	if err := session.AssignCascade(c); err != nil {
		return nil, nil, err
	}
	if err := session.AssignFraud(result); err != nil {
		return nil, nil, err
	}
	if err := session.Validate(); err != nil {
		return nil, nil, err
	}
	// The redirect requirement is checked against the filtered cascade
	if _, err := session.PlannedRoute(); err != nil {
		return nil, nil, err
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, nil, err
	}
	return session, templates, nil
}

// resolveSites looks up the main site and every cross-sale site
// concurrently. A cross-sale site that does not exist is left out of the
// result so session verification can reject it.
func (s *Service) resolveSites(ctx context.Context, req ng.InitRequest) (map[string]domain.Site, error) {
	ids := []string{req.SiteID}
	seen := map[string]bool{req.SiteID: true}
	for _, cs := range req.CrossSales {
		if !seen[cs.SiteID] {
			seen[cs.SiteID] = true
			ids = append(ids, cs.SiteID)
		}
	}

	var mu sync.Mutex
	sites := make(map[string]domain.Site, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			lctx, cancel := s.cfg.Timeouts.UpstreamContext(gctx)
			defer cancel()

			site, err := s.sites.GetSite(lctx, id)
			if err != nil {
				if id != req.SiteID && domain.IsDomainError(err, domain.ErrorCodeSiteNotFound) {
					return nil
				}
				return err
			}
			mu.Lock()
			sites[id] = *site
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sites, nil
}

func buildItems(req ng.InitRequest) (*domain.InitializedItem, []*domain.InitializedItem, error) {
	mainItem, err := domain.NewInitializedItem(uuid.NewString(), req.ItemKey(), req.Charge.ToDomain(), false)
	if err != nil {
		return nil, nil, err
	}
	mainItem.Tax = req.TaxToDomain()
	mainItem.SubscriptionID = req.SubscriptionID
	mainItem.EntitlementID = req.EntitlementID

	crossSales := make([]*domain.InitializedItem, 0, len(req.CrossSales))
	for _, cs := range req.CrossSales {
		item, err := domain.NewInitializedItem(uuid.NewString(), cs.Key(), cs.Charge.ToDomain(), true)
		if err != nil {
			return nil, nil, err
		}
		item.Tax = cs.TaxToDomain()
		crossSales = append(crossSales, item)
	}
	return mainItem, crossSales, nil
}

func resolveSessionID(requested string) (string, error) {
	if requested == "" {
		return uuid.NewString(), nil
	}
	if _, err := uuid.Parse(requested); err != nil {
		return "", domain.WrapError(domain.ErrorCodeValidationFailed, "session id must be a UUID", err).
			WithDetail("session_id", requested)
	}
	return requested, nil
}

// FailedBillers lists the billers that did not approve the purchase
func (s *Service) FailedBillers(ctx context.Context, sessionID string) (*ng.FailedBillersResponse, error) {
	session, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	resp := &ng.FailedBillersResponse{SessionID: session.ID(), FailedBillers: []ng.FailedBiller{}}
	for _, fb := range session.FailedBillers() {
		resp.FailedBillers = append(resp.FailedBillers, ng.FailedBiller{
			BillerName:    fb.BillerName,
			TransactionID: fb.TransactionID,
			Status:        fb.Status,
			RemovedFor:    string(fb.RemovedFor),
		})
	}
	return resp, nil
}

// load fetches a session that may still be acted on
func (s *Service) load(ctx context.Context, sessionID string, checkExpiry bool) (*domain.PurchaseSession, error) {
	if sessionID == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationMissingField, "session id is required")
	}
	session, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsTerminal() {
		return nil, domain.NewDomainError(domain.ErrorCodeSessionAlreadyProcessed, "purchase session already processed").
			WithDetail("session_id", sessionID).
			WithDetail("state", string(session.State()))
	}
	if checkExpiry && session.IsExpired(timeutil.Now()) {
		return nil, domain.NewDomainError(domain.ErrorCodeSessionExpired, "purchase session expired").
			WithDetail("session_id", sessionID).
			WithDetail("expired_at", session.ExpiresAt())
	}
	return session, nil
}

// save persists the session on a context that outlives an expired
// operation budget, so attempts already made are never lost.
func (s *Service) save(ctx context.Context, session *domain.PurchaseSession) error {
	sctx, cancel := s.cfg.Timeouts.UpstreamContext(context.WithoutCancel(ctx))
	defer cancel()

	if err := s.repo.Update(sctx, session); err != nil {
		s.logger.Error("Failed to save purchase session",
			zap.String("session_id", session.ID()),
			zap.String("state", string(session.State())),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// callbackURL builds the gateway URL a biller or payer returns to
func (s *Service) callbackURL(path, sessionID string) string {
	return fmt.Sprintf("%s%s%s", s.cfg.CallbackBaseURL, path, url.PathEscape(sessionID))
}
