package bridge

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/purchase-gateway/internal/ng"
	"github.com/kevin07696/purchase-gateway/pkg/resilience"
)

// Postback relay headers
const (
	HeaderSignature = "X-Postback-Signature"
	HeaderType      = "X-Postback-Type"
	HeaderTimestamp = "X-Postback-Timestamp"
)

const defaultRelayAttempts = 4

// PostbackRelay delivers translated postbacks to client postback URLs
type PostbackRelay struct {
	httpClient  *http.Client
	secret      string
	backoff     resilience.BackoffStrategy
	maxAttempts int
	now         func() time.Time
	logger      *zap.Logger
}

// NewPostbackRelay creates a relay. Payloads are signed with HMAC-SHA256 when
// secret is set.
func NewPostbackRelay(httpClient *http.Client, secret string, backoff resilience.BackoffStrategy, maxAttempts int, logger *zap.Logger) *PostbackRelay {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 10 * time.Second,
		}
	}
	if backoff == nil {
		backoff = resilience.PostbackRelayBackoff()
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultRelayAttempts
	}
	return &PostbackRelay{
		httpClient:  httpClient,
		secret:      secret,
		backoff:     backoff,
		maxAttempts: maxAttempts,
		now:         time.Now,
		logger:      logger,
	}
}

// Deliver posts pb to target, retrying failed deliveries with backoff
func (r *PostbackRelay) Deliver(ctx context.Context, target string, pb ng.Postback) error {
	payload, err := json.Marshal(pb)
	if err != nil {
		return fmt.Errorf("marshal postback payload: %w", err)
	}

	attempt := 0
	err = resilience.Retry(ctx, r.backoff, r.maxAttempts, func(ctx context.Context) error {
		attempt++
		err := r.send(ctx, target, pb.Type, payload)
		if err != nil {
			r.logger.Warn("Postback relay attempt failed",
				zap.String("session_id", pb.SessionID),
				zap.String("postback_url", target),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		return err
	})
	if err != nil {
		return err
	}

	r.logger.Info("Postback relayed",
		zap.String("session_id", pb.SessionID),
		zap.String("type", pb.Type),
		zap.Int("attempts", attempt),
	)
	return nil
}

func (r *PostbackRelay) send(ctx context.Context, target, kind string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderType, kind)
	req.Header.Set(HeaderTimestamp, r.now().UTC().Format(time.RFC3339))
	if r.secret != "" {
		req.Header.Set(HeaderSignature, Sign(payload, r.secret))
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
}

// Sign returns the hex HMAC-SHA256 of payload
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
