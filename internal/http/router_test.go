package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"turbotalk/internal/repository"
	"turbotalk/internal/service"
)

const testCookieName = "tt_client"

type testServer struct {
	router *gin.Engine
	chat   *service.ChatService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithDelay(t, 5*time.Millisecond)
}

func newTestServerWithDelay(t *testing.T, delay time.Duration) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	provider := service.NewAccountProvider(logger, repository.NewMemoryUserRepository(), repository.NewMemoryProfileRepository())
	if err := service.SeedDemoAccounts(context.Background(), logger, provider); err != nil {
		t.Fatalf("seed: %v", err)
	}
	reg := prometheus.NewRegistry()
	metrics := service.NewMetrics(reg)
	tokens := service.NewTokenService("secret", time.Hour)
	registry := service.NewSessionRegistry(logger, provider, tokens, service.NewMemoryStateStorage(), service.NewAttemptLimiter(time.Minute, 3), metrics)

	scheduler := service.NewResponseScheduler(delay, logger, metrics)
	chat := service.NewChatService(logger, scheduler, service.DefaultPersonas(nil))
	t.Cleanup(chat.Shutdown)

	r := NewRouter(logger, ClientSessionMiddleware(registry, testCookieName), Handlers{
		Auth:         NewAuthHandler(logger, service.DefaultRouteTable()),
		Dashboard:    NewDashboardHandler(DemoChatPath),
		CustomerChat: NewChatHandler(logger, chat, service.PersonaCustomer),
		DemoChat:     NewChatHandler(logger, chat, service.PersonaDemo),
	}, reg)
	return &testServer{router: r, chat: chat}
}

// performRequest ejecuta la request como el navegador identificado por clientID.
func performRequest(r http.Handler, method, path string, body any, clientID string) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if clientID != "" {
		req.AddCookie(&http.Cookie{Name: testCookieName, Value: clientID})
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func signIn(t *testing.T, r http.Handler, clientID, email, password string) {
	t.Helper()
	rec := performRequest(r, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, clientID)
	if rec.Code != http.StatusOK {
		t.Fatalf("sign in %s: expected 200, got %d (%s)", email, rec.Code, rec.Body.String())
	}
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	rec := performRequest(srv.router, http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	signIn(t, srv.router, uuid.NewString(), "owner@example.com", "ownerpass")
	rec = performRequest(srv.router, http.MethodGet, "/metrics", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "turbotalk_auth_attempts_total") {
		t.Fatalf("expected auth metrics exposed, got %s", rec.Body.String())
	}
}

func TestClientSessionMiddleware_AssignsClientID(t *testing.T) {
	srv := newTestServer(t)

	rec := performRequest(srv.router, http.MethodGet, "/auth/session", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	clientID := rec.Header().Get(clientIDHeader)
	if !isClientID(clientID) {
		t.Fatalf("expected generated client id, got %q", clientID)
	}
	if !strings.Contains(rec.Header().Get("Set-Cookie"), testCookieName+"="+clientID) {
		t.Fatalf("expected cookie with client id, got %q", rec.Header().Get("Set-Cookie"))
	}

	existing := uuid.NewString()
	rec = performRequest(srv.router, http.MethodGet, "/auth/session", nil, existing)
	if rec.Header().Get(clientIDHeader) != existing {
		t.Fatalf("expected existing client id kept")
	}
	if rec.Header().Get("Set-Cookie") != "" {
		t.Fatalf("expected no new cookie for known client")
	}
}

func TestClientSessionMiddleware_HeaderFallback(t *testing.T) {
	srv := newTestServer(t)
	clientID := uuid.NewString()

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"customer@example.com","password":"custpass"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(clientIDHeader, clientID)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/dashboard/customer", nil)
	req.Header.Set(clientIDHeader, clientID)
	rec = httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected header-identified client to reach dashboard, got %d", rec.Code)
	}
}
