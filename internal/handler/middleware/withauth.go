package middleware

import (
	"net/http"
	"strings"

	"github.com/dgrijalva/jwt-go"
	"github.com/koyif/cashdesk/internal/config"
	"github.com/koyif/cashdesk/internal/service"
	"github.com/koyif/cashdesk/pkg/logger"
)

func WithAuth(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, ignore := range cfg.AuthDisabledURLs {
				if strings.HasSuffix(r.RequestURI, ignore) {
					next.ServeHTTP(w, r)
					return
				}
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				logger.Log.Warn("unauthorized request", logger.String("url", r.RequestURI))
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			var claims service.AuthClaims
			_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
				return []byte(cfg.PrivateKey), nil
			})
			if err != nil {
				logger.Log.Warn("unauthorized request", logger.String("url", r.RequestURI), logger.Error(err))
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			r.Header.Set("User-ID", claims.Subject)
			if claims.Admin {
				r.Header.Set("User-Admin", "true")
			} else {
				r.Header.Del("User-Admin")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WithAdmin guards the operator endpoints. It must run after WithAuth.
func WithAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Admin") != "true" {
			logger.Log.Warn("non-admin request to admin endpoint", logger.String("url", r.RequestURI))
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
