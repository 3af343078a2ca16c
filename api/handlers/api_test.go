package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citizenvoice/citizenvoice-api/api"
	"github.com/citizenvoice/citizenvoice-api/api/testhelpers"
	"github.com/citizenvoice/citizenvoice-api/clients"
	"github.com/citizenvoice/citizenvoice-api/config"
	"github.com/citizenvoice/citizenvoice-api/models"
	"github.com/citizenvoice/citizenvoice-api/services"
)

const adminEmail = "chief@city.gov"

type stubGeocoder struct{}

func (stubGeocoder) Reverse(context.Context, float64, float64) (*clients.Place, error) {
	return &clients.Place{Address: "MG Road, Pune", State: "Maharashtra", District: "Pune"}, nil
}

type stubPredictor struct {
	byFile map[string]*clients.MLPrediction
}

func (p stubPredictor) Predict(_ context.Context, filename string, _ []byte) (*clients.MLPrediction, error) {
	if pred, ok := p.byFile[filename]; ok {
		return pred, nil
	}
	return nil, errors.New("connection refused")
}

type stubTextGen struct{}

func (stubTextGen) Generate(context.Context, clients.IssuePrompt) (*clients.GeneratedText, error) {
	return nil, errors.New("no api key")
}

type sentMail struct {
	to, subject string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *fakeMailer) Send(_ context.Context, _, toEmail, subject, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{toEmail, subject})
	return nil
}

// memCounter is an in-process api.Counter
type memCounter struct {
	mu   sync.Mutex
	hits map[string]int64
}

func (c *memCounter) Hit(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hits == nil {
		c.hits = map[string]int64{}
	}
	c.hits[key]++
	return c.hits[key], window, nil
}

type testApp struct {
	*App
	store   *testhelpers.Store
	auth    *services.AuthService
	mailer  *fakeMailer
	metrics *api.MetricsCollector
}

func newTestApp(t *testing.T, opts ...func(*App)) *testApp {
	t.Helper()
	store := testhelpers.NewStore()
	mc := api.NewMetricsCollector(100, time.Hour)
	t.Cleanup(mc.Stop)
	mailer := &fakeMailer{}

	a := &App{
		Config: config.Config{
			RequestTimeout: 5 * time.Second,
			Auth: config.AuthConfig{
				JWTSecret:   "test-secret",
				TokenTTL:    time.Hour,
				AdminEmails: []string{adminEmail},
			},
			Redis: config.RedisConfig{IssueLimit: 2, IssueWindow: time.Hour},
			Cloudinary: config.CloudinaryConfig{
				CloudName:    "citizenvoice",
				APIKey:       "key",
				APISecret:    "secret",
				UploadFolder: "citizenvoice",
			},
			SendGrid: config.SendGridConfig{ClientURL: "http://localhost:3000"},
		},
		Stores:    store.Stores(),
		Metrics:   func() *api.MetricsCollector { return mc },
		Predictor: stubPredictor{},
		TextGen:   stubTextGen{},
		Geocoder:  stubGeocoder{},
		Mailer:    mailer,
	}
	for _, o := range opts {
		o(a)
	}
	a.Router = a.New()

	return &testApp{
		App:     a,
		store:   store,
		auth:    services.NewAuthService(store.Users(), a.Config.Auth),
		mailer:  mailer,
		metrics: mc,
	}
}

// signIn creates a user and returns it with a bearer token
func (ta *testApp) signIn(t *testing.T, name, email string, role models.UserRole) (*models.User, string) {
	t.Helper()
	user, err := ta.auth.CreateUser(context.Background(), name, email, "password123", role, "", "")
	require.NoError(t, err)
	token, err := ta.auth.IssueToken(user)
	require.NoError(t, err)
	return user, token.AccessToken
}

func (ta *testApp) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return executeRequest(ta.App, newJSONRequest(t, method, path, token, body))
}

func newJSONRequest(t *testing.T, method, path, token string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func executeRequest(a *App, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	a.Router.ServeHTTP(rr, req)
	return rr
}

func checkResponseCode(t *testing.T, expected int, rr *httptest.ResponseRecorder) {
	t.Helper()
	if expected != rr.Code {
		t.Fatalf("Expected response code %d. Got %d: %s", expected, rr.Code, rr.Body.String())
	}
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func errorBody(t *testing.T, rr *httptest.ResponseRecorder) models.MessageError {
	t.Helper()
	var body models.ErrorMessageResponse
	decodeBody(t, rr, &body)
	return body.Response
}

func TestUnknownRoute(t *testing.T) {
	ta := newTestApp(t)
	rr := ta.do(t, "GET", "/asdf", "", nil)
	checkResponseCode(t, http.StatusNotFound, rr)
}

func TestHealthCheckRoute(t *testing.T) {
	ta := newTestApp(t)
	rr := ta.do(t, "GET", "/health", "", nil)
	checkResponseCode(t, http.StatusOK, rr)
	assert.JSONEq(t, `{"alive": true}`, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get(api.RequestIDHeader))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ta := newTestApp(t)
	for _, path := range []string{"/api/v1/users/me", "/api/v1/issues", "/api/v1/notifications", "/api/v1/gamification/profile"} {
		rr := ta.do(t, "GET", path, "", nil)
		checkResponseCode(t, http.StatusUnauthorized, rr)

		rr = ta.do(t, "GET", path, "not-a-token", nil)
		checkResponseCode(t, http.StatusUnauthorized, rr)
	}
}

func TestRegisterAndToken(t *testing.T) {
	ta := newTestApp(t)

	rr := ta.do(t, "POST", "/api/v1/auth/register", "", map[string]string{
		"name": "Meera", "email": "Meera@Example.com", "password": "password123",
	})
	checkResponseCode(t, http.StatusCreated, rr)
	var registered services.Token
	decodeBody(t, rr, &registered)
	assert.Equal(t, "Bearer", registered.TokenType)
	assert.Equal(t, models.UserCitizen, registered.Principal.Role)

	rr = ta.do(t, "GET", "/api/v1/users/me", registered.AccessToken, nil)
	checkResponseCode(t, http.StatusOK, rr)
	var me models.User
	decodeBody(t, rr, &me)
	assert.Equal(t, "meera@example.com", me.Email)
	assert.NotContains(t, rr.Body.String(), "password")

	rr = ta.do(t, "POST", "/api/v1/auth/register", "", map[string]string{
		"name": "Meera", "email": "meera@example.com", "password": "password123",
	})
	checkResponseCode(t, http.StatusConflict, rr)

	req := httptest.NewRequest("POST", "/api/v1/auth/token", nil)
	req.SetBasicAuth("meera@example.com", "password123")
	rr = executeRequest(ta.App, req)
	checkResponseCode(t, http.StatusOK, rr)
	var token services.Token
	decodeBody(t, rr, &token)
	assert.NotEmpty(t, token.AccessToken)

	req = httptest.NewRequest("POST", "/api/v1/auth/token", nil)
	req.SetBasicAuth("meera@example.com", "wrong-password")
	rr = executeRequest(ta.App, req)
	checkResponseCode(t, http.StatusUnauthorized, rr)
}

func TestRegisterValidation(t *testing.T) {
	ta := newTestApp(t)

	rr := ta.do(t, "POST", "/api/v1/auth/register", "", map[string]string{"email": "bad"})
	checkResponseCode(t, http.StatusBadRequest, rr)
	assert.NotEmpty(t, errorBody(t, rr).Fields)

	rr = ta.do(t, "POST", "/api/v1/auth/register", "", map[string]string{
		"name": "Sneaky", "email": "lead@example.com", "password": "password123",
		"role": "official", "designation": "team-lead",
	})
	checkResponseCode(t, http.StatusBadRequest, rr)

	req := httptest.NewRequest("POST", "/api/v1/auth/register", bytes.NewBufferString("{not json"))
	rr = executeRequest(ta.App, req)
	checkResponseCode(t, http.StatusBadRequest, rr)
}

func TestAdminMetricsDashboard(t *testing.T) {
	ta := newTestApp(t)
	_, citizen := ta.signIn(t, "Meera", "meera@example.com", models.UserCitizen)
	_, admin := ta.signIn(t, "Chief", adminEmail, models.UserOfficial)

	checkResponseCode(t, http.StatusOK, ta.do(t, "GET", "/api/v1/issues", citizen, nil))
	require.Eventually(t, func() bool { return ta.metrics.GetSummary().TotalRequests >= 1 }, time.Second, 5*time.Millisecond)

	rr := ta.do(t, "GET", "/api/v1/admin/metrics", citizen, nil)
	checkResponseCode(t, http.StatusForbidden, rr)

	rr = ta.do(t, "GET", "/api/v1/admin/metrics?limit=5&since=10m", admin, nil)
	checkResponseCode(t, http.StatusOK, rr)
	var body struct {
		Summary    api.Summary `json:"summary"`
		Pagination struct {
			Limit int `json:"limit"`
		} `json:"pagination"`
		Routes struct {
			MostFrequent []map[string]interface{} `json:"mostFrequent"`
		} `json:"routes"`
	}
	decodeBody(t, rr, &body)
	assert.GreaterOrEqual(t, body.Summary.TotalRequests, int64(1))
	assert.Equal(t, 5, body.Pagination.Limit)
	require.NotEmpty(t, body.Routes.MostFrequent)
	assert.Equal(t, "/api/v1/issues", body.Routes.MostFrequent[0]["path"])

	rr = ta.do(t, "GET", "/api/v1/admin/metrics?since=yesterday", admin, nil)
	checkResponseCode(t, http.StatusBadRequest, rr)
}
