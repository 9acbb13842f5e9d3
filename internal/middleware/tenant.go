package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/nikhil/doussel/internal/models"
)

const (
	TenantCookieName = "tenant_session"
	TenantSessionTTL = 24 * time.Hour
	tenantContextKey = ContextKey("tenantSession")
)

// TenantValidator resolves the raw magic-link token stored in the cookie.
type TenantValidator func(ctx context.Context, rawToken string) (*models.TenantSession, error)

// SetTenantCookie stores the session cookie after identity verification.
func SetTenantCookie(w http.ResponseWriter, rawToken string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     TenantCookieName,
		Value:    rawToken,
		Path:     "/",
		MaxAge:   int(TenantSessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearTenantCookie expires the session cookie.
func ClearTenantCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: TenantCookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
}

// TenantSession requires a valid, identity-verified magic-link session.
func TenantSession(validate TenantValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(TenantCookieName)
			if err != nil || cookie.Value == "" {
				writeError(w, http.StatusUnauthorized, "Tenant session required")
				return
			}
			session, err := validate(r.Context(), cookie.Value)
			if err != nil || session == nil {
				ClearTenantCookie(w)
				writeError(w, http.StatusUnauthorized, "Tenant session expired")
				return
			}
			if !session.Verified {
				writeError(w, http.StatusForbidden, "Identity verification required")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), session)))
		})
	}
}

func WithTenant(ctx context.Context, session *models.TenantSession) context.Context {
	return context.WithValue(ctx, tenantContextKey, session)
}

// TenantFromContext returns the session stored by TenantSession.
func TenantFromContext(ctx context.Context) (*models.TenantSession, bool) {
	s, ok := ctx.Value(tenantContextKey).(*models.TenantSession)
	return s, ok && s != nil
}
