package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUser = "6f1c2d3e-0000-4000-8000-000000000001"

func TestIdentity(t *testing.T) {
	var seen bool
	h := Identity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFrom(r.Context())
		require.True(t, ok)
		assert.Equal(t, testUser, actor.UserID.String())
		assert.Equal(t, "admin", actor.Role)
		assert.Equal(t, 3, actor.OrganizationID)
		seen = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/campaigns", nil)
	req.Header.Set(HeaderUserID, testUser)
	req.Header.Set(HeaderUserRole, "admin")
	req.Header.Set(HeaderOrganizationID, "3")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, seen)
}

func TestIdentity_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		orgID  string
	}{
		{"missing user", "", "1"},
		{"bad user", "not-a-uuid", "1"},
		{"missing org", testUser, ""},
		{"zero org", testUser, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Identity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler must not run")
			}))
			req := httptest.NewRequest(http.MethodGet, "/campaigns", nil)
			req.Header.Set(HeaderUserID, tt.userID)
			req.Header.Set(HeaderOrganizationID, tt.orgID)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Contains(t, rr.Body.String(), "UNAUTHORIZED")
		})
	}
}

func TestRateLimiter_PerUser(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	h := Identity(rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	call := func(user string) int {
		req := httptest.NewRequest(http.MethodGet, "/campaigns", nil)
		req.Header.Set(HeaderUserID, user)
		req.Header.Set(HeaderOrganizationID, "1")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusNoContent, call(testUser))
	assert.Equal(t, http.StatusNoContent, call(testUser))
	assert.Equal(t, http.StatusTooManyRequests, call(testUser))
	assert.Equal(t, http.StatusNoContent, call("6f1c2d3e-0000-4000-8000-000000000002"), "limits are per user")
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":{"code":"INTERNAL_ERROR","message":"Internal server error"}}`, rr.Body.String())
}

func TestWebhookSecret(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		configured string
		given      string
		want       int
	}{
		{"matching", "s3cret", "s3cret", http.StatusNoContent},
		{"missing header", "s3cret", "", http.StatusUnauthorized},
		{"wrong secret", "s3cret", "guess", http.StatusUnauthorized},
		{"not configured", "", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhooks/sms/inbound", nil)
			if tt.given != "" {
				req.Header.Set(HeaderWebhookSecret, tt.given)
			}
			rr := httptest.NewRecorder()
			WebhookSecret(tt.configured)(ok).ServeHTTP(rr, req)

			assert.Equal(t, tt.want, rr.Code)
		})
	}
}
