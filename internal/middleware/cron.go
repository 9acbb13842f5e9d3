package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/nikhil/doussel/internal/logger"
)

// CronAuth protects job triggers with "Authorization: Bearer <secret>".
// When devBypass is set and no secret is configured, requests pass.
func CronAuth(secret string, devBypass bool, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				if devBypass {
					next.ServeHTTP(w, r)
					return
				}
				log.Error("CRON_SECRET is not configured")
				writeError(w, http.StatusInternalServerError, "Cron secret not configured")
				return
			}
			got := bearerToken(r)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				log.WithContext(r.Context()).Warn("Unauthorized cron call", "path", r.URL.Path, "ip", ClientIP(r))
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
