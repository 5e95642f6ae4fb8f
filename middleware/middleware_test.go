package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"timekeeping/ctxutil"
	"timekeeping/models"
	"timekeeping/rbac"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	SetJWTSecret("test-secret")
}

func sampleIdentity(role models.Role) Identity {
	return Identity{UserID: uuid.New(), OrgID: uuid.New(), Role: role}
}

func TestAuthMiddleware(t *testing.T) {
	want := sampleIdentity(models.RoleSupervisor)
	valid, err := GenerateToken(want, time.Hour)
	require.NoError(t, err)
	expired, err := GenerateToken(want, -time.Minute)
	require.NoError(t, err)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{UserID: want.UserID.String(), OrgID: want.OrgID.String(), Role: want.Role})
	forged, err := foreign.SignedString([]byte("other-secret"))
	require.NoError(t, err)

	noOrg := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{UserID: want.UserID.String(), Role: want.Role})
	missingOrg, err := noOrg.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+valid) }, http.StatusOK},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "token", Value: valid}) }, http.StatusOK},
		{"missing", func(r *http.Request) {}, http.StatusUnauthorized},
		{"expired", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+expired) }, http.StatusUnauthorized},
		{"wrong secret", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+forged) }, http.StatusUnauthorized},
		{"missing org", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+missingOrg) }, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Identity
			h := AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = IdentityFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, want, got)
			} else {
				assert.Contains(t, rec.Body.String(), `"code":"UNAUTHORIZED"`)
			}
		})
	}
}

func TestRequirePermission(t *testing.T) {
	authz, err := rbac.NewEnforcer()
	require.NoError(t, err)
	h := RequirePermission(authz, rbac.ObjCorrection, rbac.ActList)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(id *Identity) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if id != nil {
			req = req.WithContext(WithIdentity(req.Context(), *id))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	hr := sampleIdentity(models.RoleHR)
	emp := sampleIdentity(models.RoleEmployee)
	unknown := sampleIdentity(models.Role("CONTRACTOR"))
	assert.Equal(t, http.StatusNoContent, serve(&hr))
	assert.Equal(t, http.StatusForbidden, serve(&emp))
	assert.Equal(t, http.StatusForbidden, serve(&unknown))
	assert.Equal(t, http.StatusUnauthorized, serve(nil))

	denyAll := RequirePermission(nil, rbac.ObjAttendance, rbac.ActCapture)(http.NotFoundHandler())
	rec := httptest.NewRecorder()
	denyAll.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(WithIdentity(context.Background(), hr)))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequestID(t *testing.T) {
	var rid string
	var hasLogger bool
	h := RequestID(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid = ctxutil.RequestID(r.Context())
		hasLogger = ctxutil.Logger(r.Context(), nil) != nil
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(rid)
	assert.NoError(t, err)
	assert.True(t, hasLogger)
	assert.Equal(t, rid, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rid)
}

func TestRateLimitByUser(t *testing.T) {
	h := RateLimitByUser(0, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	a := sampleIdentity(models.RoleEmployee)
	b := sampleIdentity(models.RoleEmployee)
	serve := func(id Identity) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req = req.WithContext(WithIdentity(req.Context(), id))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, serve(a))
	assert.Equal(t, http.StatusOK, serve(a))
	assert.Equal(t, http.StatusTooManyRequests, serve(a))
	assert.Equal(t, http.StatusOK, serve(b), "limits are per user")
}

func TestKeyedRateLimiter_EvictsIdleKeys(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	k := NewKeyedRateLimiter(0, 1)
	k.now = func() time.Time { return now }
	k.lastSweep = now

	busy := k.GetLimiter("user:busy")
	require.True(t, busy.Allow())
	k.GetLimiter("user:idle")
	assert.Equal(t, 2, k.Len())

	now = now.Add(DefaultLimiterIdle / 2)
	assert.Same(t, busy, k.GetLimiter("user:busy"))

	now = now.Add(DefaultLimiterIdle / 2)
	assert.Same(t, busy, k.GetLimiter("user:busy"), "recently used keys survive the sweep")
	assert.Equal(t, 1, k.Len())
	assert.False(t, busy.Allow(), "surviving limiter keeps its state")

	now = now.Add(DefaultLimiterIdle)
	fresh := k.GetLimiter("user:other")
	assert.Equal(t, 1, k.Len())
	assert.NotSame(t, busy, fresh)
}
