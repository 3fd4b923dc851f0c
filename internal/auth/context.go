package auth

import (
	"context"
)

type contextKey string

const (
	resumeClaimsKey contextKey = "resume_claims"
	RequestIDKey    contextKey = "request_id"
	ClientIPKey     contextKey = "client_ip"
)

// WithResumeClaims stores verified resume claims for downstream handlers
func WithResumeClaims(ctx context.Context, claims *ResumeClaims) context.Context {
	return context.WithValue(ctx, resumeClaimsKey, claims)
}

// ResumeClaimsFromContext returns the claims a callback was verified with
func ResumeClaimsFromContext(ctx context.Context) (*ResumeClaims, bool) {
	claims, ok := ctx.Value(resumeClaimsKey).(*ResumeClaims)
	return claims, ok && claims != nil
}

// WithRequestID attaches a request id
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// WithClientIP attaches the caller's address
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ClientIPKey, ip)
}

// GetClientIP retrieves the client IP from context
func GetClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(ClientIPKey).(string)
	return ip
}
