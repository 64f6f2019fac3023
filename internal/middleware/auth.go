package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"ollama-openai-gateway/internal/apierror"
	"ollama-openai-gateway/pkg/logging/logging"
)

const bearerPrefix = "Bearer "

// BearerAuth rejects requests whose Authorization header is not exactly
// "Bearer <key>". Rejected requests never reach next.
func BearerAuth(key string) func(http.Handler) http.Handler {
	want := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, bearerPrefix) {
				reject(w, r, "missing_bearer")
				return
			}
			got := []byte(strings.TrimPrefix(header, bearerPrefix))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				reject(w, r, "key_mismatch")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, reason string) {
	logging.L(r.Context()).Warn("unauthorized request", zap.String("reason", reason))
	apierror.Unauthorized().Write(w)
}
