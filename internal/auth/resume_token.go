package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kevin07696/purchase-gateway/internal/domain"
)

// DefaultResumeTokenTTL covers a slow 3DS challenge or third-party checkout
const DefaultResumeTokenTTL = 2 * time.Hour

// ResumeClaims is everything a stateless callback needs to continue a purchase
type ResumeClaims struct {
	jwt.RegisteredClaims
	SessionID   string `json:"sid"`
	PublicKeyID string `json:"pkid"`
	SiteID      string `json:"site_id,omitempty"`
	ReturnURL   string `json:"return_url"`
	PostbackURL string `json:"postback_url,omitempty"`
}

// ResumeTokens issues and verifies HS256 resume tokens. The signing key id
// travels in the kid header so tokens survive key rotation.
type ResumeTokens struct {
	keys   *Keyring
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewResumeTokens creates a token component
func NewResumeTokens(keys *Keyring, issuer string, ttl time.Duration) *ResumeTokens {
	if ttl <= 0 {
		ttl = DefaultResumeTokenTTL
	}
	return &ResumeTokens{keys: keys, issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue signs claims with the current key
func (rt *ResumeTokens) Issue(ctx context.Context, claims ResumeClaims) (string, error) {
	if claims.SessionID == "" || claims.PublicKeyID == "" {
		return "", domain.NewDomainError(domain.ErrorCodeValidationMissingField, "resume token requires session id and public key id")
	}

	kid, key, err := rt.keys.Current(ctx)
	if err != nil {
		return "", domain.WrapError(domain.ErrorCodeInternalError, "resume token key unavailable", err)
	}

	now := rt.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    rt.issuer,
		Subject:   claims.SessionID,
		ExpiresAt: jwt.NewNumericDate(now.Add(rt.ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ID:        uuid.New().String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = kid
	return token.SignedString(key)
}

// Parse verifies a token and returns its claims. Forged tokens fail with
// TOKEN_INVALID and stale ones with TOKEN_EXPIRED.
func (rt *ResumeTokens) Parse(ctx context.Context, tokenString string) (*ResumeClaims, error) {
	if tokenString == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeTokenInvalid, "resume token missing")
	}

	token, err := jwt.ParseWithClaims(tokenString, &ResumeClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		return rt.keys.Key(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(rt.issuer),
		jwt.WithTimeFunc(rt.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.WrapError(domain.ErrorCodeTokenExpired, "resume token expired", err)
		}
		return nil, domain.WrapError(domain.ErrorCodeTokenInvalid, "resume token rejected", err)
	}

	claims, ok := token.Claims.(*ResumeClaims)
	if !ok || !token.Valid {
		return nil, domain.NewDomainError(domain.ErrorCodeTokenInvalid, "resume token rejected")
	}
	if claims.SessionID == "" || claims.Subject != claims.SessionID {
		return nil, domain.NewDomainError(domain.ErrorCodeTokenInvalid, "resume token subject mismatch")
	}
	return claims, nil
}
