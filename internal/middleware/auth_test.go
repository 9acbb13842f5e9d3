package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhil/doussel/internal/logger"
	"github.com/nikhil/doussel/internal/models"
)

func okHandler(t *testing.T, check func(r *http.Request)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	tok, err := tm.GenerateJWT("u-1", "a@b.sn", []string{"admin"})
	require.NoError(t, err)

	claims, err := tm.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.True(t, claims.HasRole("moderateur", "admin"))

	_, err = NewTokenManager("other", time.Hour).Parse(tok)
	assert.Error(t, err)
}

func TestTokenExpiry(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	tm.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, err := tm.GenerateJWT("u-1", "a@b.sn", nil)
	require.NoError(t, err)

	_, err = NewTokenManager("secret", time.Hour).Parse(tok)
	assert.Error(t, err)
}

func TestAuthMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	tok, _ := tm.GenerateJWT("u-1", "a@b.sn", nil)

	var seen string
	h := tm.AuthMiddleware(okHandler(t, func(r *http.Request) {
		claims, ok := UserFromContext(r.Context())
		require.True(t, ok)
		seen = claims.UserID
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-1", seen)
}

func TestOptionalAuth(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	called := false
	h := tm.OptionalAuth(okHandler(t, func(r *http.Request) {
		_, ok := UserFromContext(r.Context())
		assert.False(t, ok)
		called = true
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebSocketAuthQueryToken(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	tok, _ := tm.GenerateJWT("u-9", "a@b.sn", nil)

	h := tm.WebSocketAuthMiddleware(okHandler(t, func(r *http.Request) {
		claims, ok := UserFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "u-9", claims.UserID)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token="+tok, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token=bad", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(models.RoleAdmin, models.RoleModerateur)(okHandler(t, nil))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(req.Context(), &Claims{UserID: "u", Roles: []string{"agent"}}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(req.Context(), &Claims{UserID: "u", Roles: []string{"moderateur"}}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCronAuth(t *testing.T) {
	log := logger.NewNop()
	h := CronAuth("s3", false, log)(okHandler(t, nil))

	req := httptest.NewRequest(http.MethodGet, "/cron/reminders", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req.Header.Set("Authorization", "Bearer s3")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	dev := CronAuth("", true, log)(okHandler(t, nil))
	rec = httptest.NewRecorder()
	dev.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cron/reminders", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	prod := CronAuth("", false, log)(okHandler(t, nil))
	rec = httptest.NewRecorder()
	prod.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cron/reminders", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTenantSession(t *testing.T) {
	validate := func(_ context.Context, raw string) (*models.TenantSession, error) {
		switch raw {
		case "verified":
			return &models.TenantSession{LeaseID: "l-1", Verified: true}, nil
		case "unverified":
			return &models.TenantSession{LeaseID: "l-1"}, nil
		}
		return nil, errors.New("Token not found")
	}
	h := TenantSession(validate)(okHandler(t, func(r *http.Request) {
		s, ok := TenantFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "l-1", s.LeaseID)
	}))

	cases := map[string]int{"": http.StatusUnauthorized, "bogus": http.StatusUnauthorized, "unverified": http.StatusForbidden, "verified": http.StatusOK}
	for cookie, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/tenant/lease", nil)
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: TenantCookieName, Value: cookie})
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, cookie)
	}
}

func TestSetTenantCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	SetTenantCookie(rec, "tok", true)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, TenantCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, 86400, cookies[0].MaxAge)
}
