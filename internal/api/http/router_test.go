package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/testutil"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type testServer struct {
	app     *fiber.App
	authSvc *service.AuthService
}

func newTestServer(t *testing.T, deps map[string]handlers.Pinger) *testServer {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	users := testutil.NewUserStore()
	credentials := service.NewCredentialStore(users, 4)
	authSvc := service.NewAuthService(config.AuthConfig{JWTSecret: "test-secret"}, credentials)
	ticketSvc := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  testutil.NewTicketStore(),
		UserRepo:    users,
		CounterRepo: testutil.NewCounterStore(),
		Dispatcher:  events.NewInMemoryDispatcher(logger),
		Logger:      logger,
	})

	app := NewApp("helpdesk-test", logger)
	RegisterMiddlewares(app, logger, metrics, MiddlewareConfig{Timeout: 5 * time.Second, CORSAllowOrigins: "*"})
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("helpdesk-test", "test", deps, metrics),
		Users:          handlers.NewUsersHandler(authSvc),
		Tickets:        handlers.NewTicketsHandler(ticketSvc),
		AuthMiddleware: auth.NewAuthMiddleware(authSvc.TokenManager(), credentials),
		Policy:         auth.DefaultPolicy(),
	})
	return &testServer{app: app, authSvc: authSvc}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	} else {
		out["text"] = string(raw)
	}
	return resp.StatusCode, out
}

func (s *testServer) register(t *testing.T, name, email string, role domain.Role) (string, string) {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"name": name, "email": email, "password": "s3cret", "role": role,
	})
	require.Equal(t, http.StatusCreated, status, body)
	data := body["data"].(map[string]any)
	user := data["user"].(map[string]any)
	authData := data["auth"].(map[string]any)
	return user["id"].(string), authData["token"].(string)
}

func errorCode(body map[string]any) string {
	errBody, ok := body["error"].(map[string]any)
	if !ok {
		return ""
	}
	code, _ := errBody["code"].(string)
	return code
}

func errorMessage(body map[string]any) string {
	errBody, ok := body["error"].(map[string]any)
	if !ok {
		return ""
	}
	msg, _ := errBody["message"].(string)
	return msg
}

func TestAPIRoot(t *testing.T) {
	s := newTestServer(t, nil)
	status, body := s.do(t, http.MethodGet, "/api", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, handlers.APIRunningMessage, body["text"])
}

func TestAuthEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	userID, token := s.register(t, "Ana", "Ana@Example.com", domain.RoleOperator)

	status, body := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"name": "Other", "email": "ana@example.COM", "password": "x",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "DUPLICATE_EMAIL", errorCode(body))

	status, body = s.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{"email": "x@example.com"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"name": "Long", "email": "long@example.com", "password": strings.Repeat("p", 80),
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"email": "ANA@example.com", "password": "s3cret"})
	require.Equal(t, http.StatusOK, status)
	user := body["data"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, userID, user["id"])
	assert.Equal(t, "ana@example.com", user["email"])
	assert.NotContains(t, user, "passwordHash")

	status, body = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"email": "ana@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid credentials", errorMessage(body))

	status, body = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"email": "ana@example.com"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodGet, "/api/auth/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = s.do(t, http.MethodGet, "/api/auth/profile", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Ana", body["data"].(map[string]any)["name"])
}

func TestTicketLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	operatorID, operatorToken := s.register(t, "Ana", "ana@example.com", domain.RoleOperator)
	managerID, managerToken := s.register(t, "Bia", "bia@example.com", domain.RoleManager)

	status, _ := s.do(t, http.MethodGet, "/api/tickets", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := s.do(t, http.MethodPost, "/api/tickets", operatorToken, map[string]any{
		"priority": "High", "module": "System", "description": "printer down",
	})
	require.Equal(t, http.StatusCreated, status, body)
	ticket := body["data"].(map[string]any)
	ticketID := ticket["id"].(string)
	assert.EqualValues(t, 1, ticket["sequentialId"])
	assert.Equal(t, operatorID, ticket["requesterId"])
	assert.Equal(t, "To Start", ticket["status"])
	assert.Equal(t, true, ticket["activeSystem"])
	assert.Nil(t, ticket["assigneeId"])
	assert.Len(t, ticket["history"], 1)

	status, body = s.do(t, http.MethodPost, "/api/tickets", operatorToken, map[string]any{
		"requesterId": "00000000-0000-0000-0000-000000000000", "module": "System", "description": "x",
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, body = s.do(t, http.MethodPost, "/api/tickets", operatorToken, map[string]any{"module": "Hardware", "description": "x"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do(t, http.MethodPut, "/api/tickets/"+ticketID, managerToken, map[string]any{
		"assigneeId": managerID, "priority": "Low", "justification": "triage",
	})
	require.Equal(t, http.StatusOK, status, body)
	ticket = body["data"].(map[string]any)
	assert.Equal(t, managerID, ticket["assigneeId"])
	assignee := ticket["assignee"].(map[string]any)
	assert.Equal(t, "Manager", assignee["role"])
	history := ticket["history"].([]any)
	require.Len(t, history, 2)
	last := history[1].(map[string]any)
	assert.Equal(t, "Ticket updated. Assignee changed. Priority changed.", last["action"])
	assert.Equal(t, "triage", last["justification"])
	assert.Equal(t, "Bia", last["user"].(map[string]any)["name"])

	status, body = s.do(t, http.MethodPut, "/api/tickets/1", managerToken, map[string]any{"assigneeId": nil})
	require.Equal(t, http.StatusOK, status, body)
	assert.Nil(t, body["data"].(map[string]any)["assigneeId"])

	status, body = s.do(t, http.MethodPut, "/api/tickets/"+ticketID, managerToken, map[string]any{"status": "Closed"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = s.do(t, http.MethodPost, "/api/tickets/"+ticketID+"/comment", operatorToken, map[string]any{"comment": "", "public": true})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do(t, http.MethodPost, "/api/tickets/"+ticketID+"/comment", operatorToken, map[string]any{"comment": "thanks", "public": true})
	require.Equal(t, http.StatusOK, status, body)
	history = body["data"].(map[string]any)["history"].([]any)
	assert.Equal(t, "Public comment added", history[len(history)-1].(map[string]any)["action"])

	status, body = s.do(t, http.MethodGet, "/api/tickets/1", operatorToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, ticketID, body["data"].(map[string]any)["id"])

	status, body = s.do(t, http.MethodGet, "/api/tickets/99", operatorToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, body = s.do(t, http.MethodDelete, "/api/tickets/"+ticketID, operatorToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "user with role 'Operator' is not allowed to access this resource; allowed roles: Administrator, Manager", errorMessage(body))

	status, body = s.do(t, http.MethodDelete, "/api/tickets/"+ticketID, managerToken, map[string]any{"justification": "duplicate"})
	require.Equal(t, http.StatusOK, status, body)
	data := body["data"].(map[string]any)
	assert.Equal(t, "Ticket marked as Abandoned", data["message"])
	assert.Equal(t, true, data["changed"])

	status, body = s.do(t, http.MethodDelete, "/api/tickets/"+ticketID, managerToken, nil)
	require.Equal(t, http.StatusOK, status)
	data = body["data"].(map[string]any)
	assert.Equal(t, "Ticket is already Abandoned", data["message"])
	assert.Equal(t, false, data["changed"])

	status, body = s.do(t, http.MethodGet, "/api/tickets", operatorToken, nil)
	require.Equal(t, http.StatusOK, status)
	list := body["data"].([]any)
	require.Len(t, list, 1)
	listed := list[0].(map[string]any)
	assert.Equal(t, "Abandoned", listed["status"])
	assert.NotContains(t, listed["requester"].(map[string]any), "role")
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, map[string]handlers.Pinger{
		"postgres": pingFunc(func(context.Context) error { return nil }),
	})
	status, body := s.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	down := newTestServer(t, map[string]handlers.Pinger{
		"postgres": pingFunc(func(context.Context) error { return nil }),
		"redis":    pingFunc(func(context.Context) error { return errors.New("connection refused") }),
	})
	status, body = down.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "DEPENDENCY_UNAVAILABLE", errorCode(body))

	status, _ = s.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = s.do(t, http.MethodGet, "/health/metrics", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "data")
}

func TestUnknownRouteUsesErrorEnvelope(t *testing.T) {
	s := newTestServer(t, nil)
	status, body := s.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestInternalErrorsUseEnvelope(t *testing.T) {
	logger := zap.NewNop()
	app := NewApp("helpdesk-test", logger)
	RegisterMiddlewares(app, logger, observability.NewMetrics(), MiddlewareConfig{CORSAllowOrigins: "*"})
	app.Get("/boom", func(*fiber.Ctx) error {
		panic("nil map write")
	})
	app.Get("/broken", func(*fiber.Ctx) error {
		return errors.New("connection reset by peer")
	})
	s := &testServer{app: app}

	tests := []struct {
		name   string
		path   string
		detail string
	}{
		{"recovered panic", "/boom", ""},
		{"plain error", "/broken", "connection reset by peer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := s.do(t, http.MethodGet, tt.path, "", nil)
			assert.Equal(t, http.StatusInternalServerError, status)
			assert.Equal(t, "INTERNAL_ERROR", errorCode(body))
			assert.Equal(t, "internal server error", errorMessage(body))

			errBody := body["error"].(map[string]any)
			if tt.detail == "" {
				assert.NotContains(t, errBody, "detail")
			} else {
				assert.Equal(t, tt.detail, errBody["detail"])
			}

			raw, err := json.Marshal(body)
			require.NoError(t, err)
			assert.NotContains(t, string(raw), "goroutine")
			assert.NotContains(t, string(raw), "nil map write")
			assert.NotContains(t, string(raw), ".go:")
		})
	}
}
