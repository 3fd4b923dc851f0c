package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// HeaderCallbackSignature carries the hex HMAC-SHA256 of a biller callback body
const HeaderCallbackSignature = "X-Callback-Signature"

const maxCallbackBody = 1 << 20

// CallbackSignature only lets through requests whose body is signed with
// secret. An empty secret rejects every request.
func CallbackSignature(secret string, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			signature := r.Header.Get(HeaderCallbackSignature)
			if secret == "" || signature == "" {
				logger.Warn("Callback rejected, missing signature",
					zap.String("path", r.URL.Path),
					zap.Bool("secret_configured", secret != ""),
				)
				rejectCallback(w, http.StatusUnauthorized, "missing callback signature")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody+1))
			if err != nil || len(body) > maxCallbackBody {
				rejectCallback(w, http.StatusBadRequest, "unreadable callback body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if !hmac.Equal([]byte(signature), []byte(SignCallback(body, secret))) {
				logger.Warn("Callback signature verification failed",
					zap.String("path", r.URL.Path),
					zap.String("client_ip", ClientIP(r, false)),
				)
				rejectCallback(w, http.StatusUnauthorized, "invalid callback signature")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SignCallback returns the hex HMAC-SHA256 of body under secret
func SignCallback(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func rejectCallback(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    "UNAUTHORIZED_CALLBACK",
		"message": message,
	})
}
