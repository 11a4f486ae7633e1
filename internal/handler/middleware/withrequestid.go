package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/koyif/cashdesk/pkg/logger"
)

// WithRequestID tags every request with an id and logs it, so a gateway error
// surfaced to an admin can be matched against the server log.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", requestID)
		logger.Log.Info("request",
			logger.String("request_id", requestID),
			logger.String("method", r.Method),
			logger.String("url", r.RequestURI),
		)

		next.ServeHTTP(w, r)
	})
}
