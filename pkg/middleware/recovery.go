package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/OscarCaraballo97/inferno-payment/pkg/httputil"
	"github.com/OscarCaraballo97/inferno-payment/pkg/logger"
)

// Recovery recovers from panics and answers with the payment API's error
// envelope instead of crashing. The saga trace id is carried into the body
// when the request context holds one, so a failed status poll can still be
// correlated with its saga.
func Recovery(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					l.ErrorContext(r.Context(), "panic recovered",
						slog.Any("panic", rec),
						slog.String("stack", string(debug.Stack())),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
					)

					httputil.WriteJSON(w, http.StatusInternalServerError, httputil.Response{
						Error: &httputil.ErrorResponse{
							Code:    "INTERNAL_ERROR",
							Message: "an internal error occurred",
							TraceID: logger.TraceIDFromContext(r.Context()),
						},
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
