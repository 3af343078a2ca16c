package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citizenvoice/citizenvoice-api/api"
	"github.com/citizenvoice/citizenvoice-api/api/testhelpers"
	"github.com/citizenvoice/citizenvoice-api/config"
	"github.com/citizenvoice/citizenvoice-api/models"
	"github.com/citizenvoice/citizenvoice-api/services"
)

func newAuth(t *testing.T) (*api.Authenticator, *services.AuthService) {
	t.Helper()
	svc := services.NewAuthService(testhelpers.NewStore().Users(), config.AuthConfig{
		JWTSecret:   "middleware-secret",
		TokenTTL:    time.Hour,
		AdminEmails: []string{"chief@city.gov"},
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return api.NewAuthenticator(ctx, svc), svc
}

func whoAmI(w http.ResponseWriter, r *http.Request) {
	p, ok := api.PrincipalFrom(r.Context())
	if !ok {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	json.NewEncoder(w).Encode(p)
}

func TestMiddlewareAuthenticatesBearerTokens(t *testing.T) {
	a, svc := newAuth(t)
	user, err := svc.CreateUser(context.Background(), "Chief", "chief@city.gov", "long password", models.UserOfficial, "", "Roads")
	require.NoError(t, err)
	tok, err := svc.IssueToken(user)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	rr := httptest.NewRecorder()
	a.Middleware(http.HandlerFunc(whoAmI)).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var p models.Principal
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	assert.Equal(t, user.ID, p.UserID)
	assert.Equal(t, models.UserOfficial, p.Role)
	assert.True(t, p.IsAdmin)
}

func TestMiddlewareRejectsMissingOrBadTokens(t *testing.T) {
	a, _ := newAuth(t)
	tests := map[string]string{
		"no header": "",
		"garbage":   "Bearer not-a-jwt",
		"basic":     "Basic Y2hpZWY6cGFzcw==",
	}
	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/issues", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rr := httptest.NewRecorder()
			a.Middleware(http.HandlerFunc(whoAmI)).ServeHTTP(rr, req)

			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.JSONEq(t, `{"error": "unauthorized"}`, rr.Body.String())
		})
	}
}

func TestLoginWithBasicAuth(t *testing.T) {
	a, svc := newAuth(t)
	user, err := svc.CreateUser(context.Background(), "Ravi", "ravi@example.com", "long password", models.UserCitizen, "", "")
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/v1/auth/token", nil)
	req.SetBasicAuth("ravi@example.com", "long password")
	p, err := a.Login(req)
	require.NoError(t, err)
	assert.Equal(t, user.ID, p.UserID)
	assert.Equal(t, models.UserCitizen, p.Role)
	assert.False(t, p.IsAdmin)

	req = httptest.NewRequest("POST", "/api/v1/auth/token", nil)
	req.SetBasicAuth("ravi@example.com", "wrong password")
	_, err = a.Login(req)
	assert.Error(t, err)
}

func TestRoleGuards(t *testing.T) {
	official := models.Principal{Role: models.UserOfficial}
	admin := models.Principal{Role: models.UserOfficial, IsAdmin: true}
	citizen := models.Principal{Role: models.UserCitizen, IsAdmin: true}

	tests := []struct {
		name  string
		guard func(http.Handler) http.Handler
		who   *models.Principal
		want  int
	}{
		{"official passes official guard", api.RequireOfficial, &official, http.StatusOK},
		{"citizen blocked by official guard", api.RequireOfficial, &citizen, http.StatusForbidden},
		{"anonymous blocked", api.RequireOfficial, nil, http.StatusForbidden},
		{"admin passes admin guard", api.RequireAdmin, &admin, http.StatusOK},
		{"plain official blocked by admin guard", api.RequireAdmin, &official, http.StatusForbidden},
		{"admin flag alone is not enough", api.RequireAdmin, &citizen, http.StatusForbidden},
		{"citizen passes resident guard", api.RequireResident, &citizen, http.StatusOK},
		{"official blocked by resident guard", api.RequireResident, &official, http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tc.who != nil {
				req = req.WithContext(api.WithPrincipal(req.Context(), *tc.who))
			}
			rr := httptest.NewRecorder()
			tc.guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rr, req)
			assert.Equal(t, tc.want, rr.Code)
		})
	}
}

type memCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (c *memCounter) Hit(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, 0, c.err
	}
	if c.counts == nil {
		c.counts = map[string]int64{}
	}
	c.counts[key]++
	return c.counts[key], window - 1500*time.Millisecond, nil
}

func TestRateLimit(t *testing.T) {
	counter := &memCounter{}
	limited := api.RateLimit(counter, "issues", 2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	as := func(p models.Principal) *http.Request {
		req := httptest.NewRequest("POST", "/api/v1/issues", nil)
		return req.WithContext(api.WithPrincipal(req.Context(), p))
	}
	asha := models.Principal{UserID: [12]byte{1}, Role: models.UserCitizen}
	ravi := models.Principal{UserID: [12]byte{2}, Role: models.UserCitizen}

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		limited.ServeHTTP(rr, as(asha))
		assert.Equal(t, http.StatusCreated, rr.Code)
	}

	rr := httptest.NewRecorder()
	limited.ServeHTTP(rr, as(asha))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "59", rr.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded","retryAfter":59}`, rr.Body.String())

	rr = httptest.NewRecorder()
	limited.ServeHTTP(rr, as(ravi))
	assert.Equal(t, http.StatusCreated, rr.Code, "limits are per user")

	counter.err = errors.New("redis down")
	rr = httptest.NewRecorder()
	limited.ServeHTTP(rr, as(asha))
	assert.Equal(t, http.StatusCreated, rr.Code, "an unavailable counter lets requests through")
}

func TestRateLimitDisabled(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := api.RateLimit(nil, "issues", 2, time.Minute)(next)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("POST", "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestTimeoutMiddleware(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	api.TimeoutMiddleware(20*time.Millisecond)(slow).ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusRequestTimeout, rr.Code)
	assert.Contains(t, rr.Body.String(), "Request timeout")

	fast := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusAccepted) })
	rr = httptest.NewRecorder()
	api.TimeoutMiddleware(time.Second)(fast).ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusAccepted, rr.Code)
}

func TestWithQueryTimeout(t *testing.T) {
	ctx, cancel := api.WithQueryTimeout(context.Background())
	defer cancel()
	dl, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(api.QueryTimeout), dl, time.Second)

	parent, cancelParent := context.WithTimeout(context.Background(), time.Second)
	defer cancelParent()
	ctx, cancel = api.WithQueryTimeout(parent)
	defer cancel()
	got, _ := ctx.Deadline()
	want, _ := parent.Deadline()
	assert.Equal(t, want, got)
}

func TestRequestLogger(t *testing.T) {
	var seen string
	h := api.RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = api.RequestIDFrom(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
	assert.Equal(t, seen, rr.Header().Get(api.RequestIDHeader))

	incoming := uuid.New().String()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(api.RequestIDHeader, incoming)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, incoming, seen)

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set(api.RequestIDHeader, "<script>")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.NotEqual(t, "<script>", seen)
}
