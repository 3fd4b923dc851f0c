// Package bridge runs NG purchases through the MGPG payment-processing
// service. MGPG calls the gateway back on URLs that carry a signed resume
// token, so no session is stored for the callbacks.
package bridge

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kevin07696/purchase-gateway/internal/adapters/mgpg"
	"github.com/kevin07696/purchase-gateway/internal/auth"
	"github.com/kevin07696/purchase-gateway/internal/domain"
	"github.com/kevin07696/purchase-gateway/internal/domain/ports"
	"github.com/kevin07696/purchase-gateway/internal/ng"
	"github.com/kevin07696/purchase-gateway/pkg/observability"
	"github.com/kevin07696/purchase-gateway/pkg/resilience"
)

// Callback paths MGPG comes back to; the resume token is the last segment
const (
	ReturnPath   = "/api/v1/mgpg/return/"
	PostbackPath = "/api/v1/mgpg/postback/"
)

// Operation names, used as metric labels
const (
	OpInit    = "mgpg_init"
	OpProcess = "mgpg_process"
)

// MGPGClient is the MGPG service
type MGPGClient interface {
	Init(ctx context.Context, req mgpg.InitRequest) (*mgpg.InitResponse, error)
	Process(ctx context.Context, sessionID string, req mgpg.ProcessRequest) (*mgpg.ProcessResponse, error)
}

// TokenService issues and verifies resume tokens
type TokenService interface {
	Issue(ctx context.Context, claims auth.ResumeClaims) (string, error)
	Parse(ctx context.Context, token string) (*auth.ResumeClaims, error)
}

// Relay delivers postbacks to clients
type Relay interface {
	Deliver(ctx context.Context, target string, pb ng.Postback) error
}

// Config is injected at construction
type Config struct {
	CallbackBaseURL string
	IdentityTTL     time.Duration
	Timeouts        *resilience.TimeoutConfig
}

// Service is the NG facade over MGPG
type Service struct {
	cfg        Config
	sites      ports.SiteRepository
	client     MGPGClient
	translator *mgpg.Translator
	tokens     TokenService
	identities ports.ChargeIdentityStore
	relay      Relay
	logger     *zap.Logger
}

// NewService creates a bridge service
func NewService(
	cfg Config,
	sites ports.SiteRepository,
	client MGPGClient,
	translator *mgpg.Translator,
	tokens TokenService,
	identities ports.ChargeIdentityStore,
	relay Relay,
	logger *zap.Logger,
) *Service {
	if cfg.Timeouts == nil {
		cfg.Timeouts = resilience.DefaultTimeoutConfig()
	}
	if cfg.IdentityTTL <= 0 {
		cfg.IdentityTTL = auth.DefaultResumeTokenTTL
	}
	return &Service{
		cfg:        cfg,
		sites:      sites,
		client:     client,
		translator: translator,
		tokens:     tokens,
		identities: identities,
		relay:      relay,
		logger:     logger,
	}
}

// Init opens the purchase on MGPG. The returned session id is the gateway's
// own; the MGPG session id is kept with the charge identities.
func (s *Service) Init(ctx context.Context, req ng.InitRequest) (*ng.InitResponse, error) {
	start := time.Now()
	ctx, cancel := s.cfg.Timeouts.OperationContext(ctx)
	defer cancel()

	out, err := s.init(ctx, req)
	if err != nil {
		s.logger.Warn("MGPG init failed",
			zap.String("site_id", req.SiteID),
			zap.String("code", string(domain.GetErrorCode(err))),
			zap.Error(err),
		)
		observability.RecordPurchaseOperation(OpInit, "failed", time.Since(start).Seconds())
		return nil, err
	}

	observability.RecordPurchaseOperation(OpInit, out.State, time.Since(start).Seconds())
	s.logger.Info("MGPG purchase initialized",
		zap.String("session_id", out.SessionID),
		zap.String("site_id", req.SiteID),
		zap.String("next_action", out.NextAction.Type),
	)
	return out, nil
}

// verifySites looks up the main site and every cross-sale site concurrently
func (s *Service) verifySites(ctx context.Context, req ng.InitRequest) error {
	ids := []string{req.SiteID}
	seen := map[string]bool{req.SiteID: true}
	for _, cs := range req.CrossSales {
		if !seen[cs.SiteID] {
			seen[cs.SiteID] = true
			ids = append(ids, cs.SiteID)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			lctx, cancel := s.cfg.Timeouts.UpstreamContext(gctx)
			defer cancel()

			_, err := s.sites.GetSite(lctx, id)
			if err != nil && id != req.SiteID && domain.IsDomainError(err, domain.ErrorCodeSiteNotFound) {
				return domain.NewDomainError(domain.ErrorCodeCrossSaleSiteNotFound, "cross-sale site not found").
					WithDetail("site_id", id)
			}
			return err
		})
	}
	return g.Wait()
}

func (s *Service) init(ctx context.Context, req ng.InitRequest) (*ng.InitResponse, error) {
	if req.SiteID == "" || req.PublicKeyID == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationMissingField, "site id and public key id are required")
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	} else if _, err := uuid.Parse(sessionID); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeValidationFailed, "session id must be a UUID", err).
			WithDetail("session_id", sessionID)
	}

	// Fails closed before MGPG can charge anything
	if err := s.verifySites(ctx, req); err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(ctx, auth.ResumeClaims{
		SessionID:   sessionID,
		PublicKeyID: req.PublicKeyID,
		SiteID:      req.SiteID,
		ReturnURL:   req.RedirectURL,
		PostbackURL: req.PostbackURL,
	})
	if err != nil {
		return nil, err
	}

	mreq, ids := s.translator.ToInitRequest(req, mgpg.Callbacks{
		ReturnURL:   s.callbackURL(ReturnPath, token),
		PostbackURL: s.callbackURL(PostbackPath, token),
	})
	resp, err := s.client.Init(ctx, mreq)
	if err != nil {
		return nil, err
	}

	ids.SetSessionID(resp.SessionID)
	if err := s.identities.Save(ctx, sessionID, ids, s.cfg.IdentityTTL); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeInternalError, "failed to store charge identities", err).
			WithDetail("session_id", sessionID)
	}

	out := s.translator.FromInitResponse(*resp)
	out.SessionID = sessionID
	return out, nil
}

// Process pays for a purchase opened by Init
func (s *Service) Process(ctx context.Context, req ng.ProcessRequest) (*ng.ProcessResponse, error) {
	start := time.Now()
	ctx, cancel := s.cfg.Timeouts.OperationContext(ctx)
	defer cancel()

	raw, err := s.identities.Load(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	ids := mgpg.ChargeIdentity(raw)

	mreq, err := s.translator.ToProcessRequest(req, ids)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Process(ctx, ids.SessionID(), mreq)
	if err != nil {
		s.logger.Warn("MGPG process failed",
			zap.String("session_id", req.SessionID),
			zap.String("mgpg_session_id", ids.SessionID()),
			zap.Error(err),
		)
		observability.RecordPurchaseOperation(OpProcess, "failed", time.Since(start).Seconds())
		return nil, err
	}

	out := s.translator.FromProcessResponse(*resp, ids)
	out.SessionID = req.SessionID
	observability.RecordPurchaseOperation(OpProcess, out.State, time.Since(start).Seconds())
	s.logger.Info("MGPG purchase processed",
		zap.String("session_id", req.SessionID),
		zap.String("state", out.State),
		zap.Bool("success", out.Success),
	)
	return out, nil
}

// Return resolves the payer's original return URL from token
func (s *Service) Return(ctx context.Context, token string) (string, error) {
	claims, err := s.tokens.Parse(ctx, token)
	if err != nil {
		return "", err
	}
	if claims.ReturnURL == "" {
		return "", domain.NewDomainError(domain.ErrorCodeMissingRedirectURL, "purchase has no return url").
			WithDetail("session_id", claims.SessionID)
	}

	target, err := url.Parse(claims.ReturnURL)
	if err != nil {
		return "", domain.WrapError(domain.ErrorCodeMissingRedirectURL, "invalid return url", err)
	}
	q := target.Query()
	q.Set("sessionId", claims.SessionID)
	target.RawQuery = q.Encode()
	return target.String(), nil
}

// Postback translates an MGPG postback and relays it to the client's
// original postback URL. A purchase without one is acknowledged and dropped.
func (s *Service) Postback(ctx context.Context, token string, pb mgpg.Postback) error {
	claims, err := s.tokens.Parse(ctx, token)
	if err != nil {
		observability.RecordPostback("rejected")
		return err
	}

	out := s.translator.FromPostback(pb, claims.SessionID)
	if out.SiteID == "" {
		out.SiteID = claims.SiteID
	}
	if claims.PostbackURL == "" {
		s.logger.Info("No postback url for purchase, postback dropped",
			zap.String("session_id", claims.SessionID),
			zap.String("type", out.Type),
		)
		observability.RecordPostback("dropped")
		return nil
	}

	if err := s.relay.Deliver(ctx, claims.PostbackURL, out); err != nil {
		s.logger.Error("Failed to relay postback",
			zap.String("session_id", claims.SessionID),
			zap.String("postback_url", claims.PostbackURL),
			zap.Error(err),
		)
		observability.RecordPostback("relay_failed")
		return domain.WrapError(domain.ErrorCodeGatewayError, "postback relay failed", err).
			WithDetail("session_id", claims.SessionID)
	}
	observability.RecordPostback("relayed")
	return nil
}

func (s *Service) callbackURL(path, token string) string {
	return fmt.Sprintf("%s%s%s", s.cfg.CallbackBaseURL, path, url.PathEscape(token))
}
