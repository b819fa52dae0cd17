package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/accounthub/internal/accounts"
	"github.com/geocoder89/accounthub/internal/auth"
	"github.com/geocoder89/accounthub/internal/cache"
	"github.com/geocoder89/accounthub/internal/domain/user"
	apphttp "github.com/geocoder89/accounthub/internal/http"
	"github.com/geocoder89/accounthub/internal/http/handlers"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/geocoder89/accounthub/internal/repo/memory"
	"github.com/geocoder89/accounthub/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "integration-test-secret-0123456789abcdef"

// stepClock only moves when a test advances it.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type app struct {
	clock    *stepClock
	router   *gin.Engine
	accounts *accounts.Service
	tokens   *auth.Manager
	health   *handlers.HealthHandler
	store    accounts.Store
}

type pingCounter interface {
	accounts.Store
	Ping(ctx context.Context) error
}

func newApp(t *testing.T, store pingCounter) *app {
	t.Helper()
	gin.SetMode(gin.TestMode)
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	clock := &stepClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	svc := accounts.NewService(store, security.NewHasher(bcrypt.MinCost), cache.NewMemoryUsers(time.Minute),
		accounts.WithClock(clock.Now))
	tokens := auth.NewManager(testSecret, time.Hour)

	health := handlers.NewHealthHandler(handlers.HealthOptions{
		Env:        "test",
		Version:    "test",
		Store:      "memory",
		StorePing:  store.Ping,
		CountUsers: svc.Count,
	})

	reg := prometheus.NewRegistry()
	router := apphttp.NewRouter(apphttp.RouterDeps{
		Env:          "test",
		ServiceName:  "accounthub-test",
		Version:      "test",
		MaxBodyBytes: 1 << 20,
		Accounts:     svc,
		Tokens:       tokens,
		Health:       health,
		Prom:         observability.NewProm(reg),
		Gatherer:     reg,
	})

	return &app{clock: clock, router: router, accounts: svc, tokens: tokens, health: health, store: store}
}

func newMemoryApp(t *testing.T) *app {
	return newApp(t, memory.NewUsersRepo())
}

type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  json.RawMessage `json:"errors"`
}

type authData struct {
	User  user.User `json:"user"`
	Token string    `json:"token"`
}

func (a *app) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") != "" && w.Body.Len() > 0 && bytes.HasPrefix(bytes.TrimSpace(w.Body.Bytes()), []byte("{")) {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func (a *app) register(t *testing.T, name, email, password string) authData {
	t.Helper()

	w, env := a.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": name, "email": email, "password": password,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var d authData
	require.NoError(t, json.Unmarshal(env.Data, &d))
	return d
}

// registerAdmin creates an admin through the service and logs in over HTTP.
func (a *app) registerAdmin(t *testing.T, email string) authData {
	t.Helper()

	_, err := a.accounts.CreateAdmin(context.Background(), "Root Admin", email, "Admin12345")
	require.NoError(t, err)

	w, env := a.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": "Admin12345",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var d authData
	require.NoError(t, json.Unmarshal(env.Data, &d))
	return d
}
