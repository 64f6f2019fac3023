package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"ollama-openai-gateway/internal/apierror"
	"ollama-openai-gateway/pkg/logging/logging"
)

// Recoverer turns a handler panic into a logged 500 with an OpenAI error body.
// http.ErrAbortHandler is re-raised so net/http can drop the connection.
func Recoverer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logging.L(r.Context()).Error("panic recovered",
					zap.Any("error", rec),
					zap.ByteString("stack", debug.Stack()),
				)

				apierror.Internal().Write(w)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
