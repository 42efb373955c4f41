package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

type finderFunc func(ctx context.Context, id string) (*domain.User, error)

func (f finderFunc) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return f(ctx, id)
}

func staticUsers(users ...*domain.User) UserFinder {
	return finderFunc(func(_ context.Context, id string) (*domain.User, error) {
		for _, u := range users {
			if u.ID == id {
				return u, nil
			}
		}
		return nil, nil
	})
}

func newTestApp(mw *AuthMiddleware, gates ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Message)
		},
	})
	handlers := append([]fiber.Handler{mw.Handle}, gates...)
	handlers = append(handlers, func(c *fiber.Ctx) error {
		principal, _ := PrincipalFromContext(c)
		return c.SendString(principal.User.ID)
	})
	app.Get("/protected", handlers...)
	return app
}

func doRequest(t *testing.T, app *fiber.App, header string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 0)

	token, expiresAt, err := tm.GenerateToken("user-1", domain.RoleManager)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), expiresAt, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, domain.RoleManager, claims.Role)
}

func TestTokenManager_RejectsInvalidTokens(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	other := NewTokenManager("other-secret", time.Hour)

	foreign, _, err := other.GenerateToken("user-1", domain.RoleOperator)
	require.NoError(t, err)

	expired, err := tm.sign(&Claims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-31 * 24 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-24 * time.Hour)),
		},
	})
	require.NoError(t, err)

	noExpiry, err := tm.sign(&Claims{UserID: "user-1"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"wrong signature", foreign},
		{"expired", expired},
		{"missing expiry", noExpiry},
		{"malformed", "not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tm.ParseToken(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestAuthMiddleware_Handle(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	user := &domain.User{ID: "user-1", Name: "Ana", Email: "ana@example.com", Role: domain.RoleOperator}
	app := newTestApp(NewAuthMiddleware(tm, staticUsers(user)))

	valid, _, err := tm.GenerateToken(user.ID, user.Role)
	require.NoError(t, err)
	orphan, _, err := tm.GenerateToken("deleted-user", domain.RoleOperator)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized},
		{"missing token", "Bearer", http.StatusUnauthorized},
		{"garbage token", "Bearer abc", http.StatusUnauthorized},
		{"user no longer exists", "Bearer " + orphan, http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doRequest(t, app, tt.header)
			assert.Equal(t, tt.status, status)
			if tt.status == http.StatusOK {
				assert.Equal(t, user.ID, body)
			}
		})
	}
}

func TestPolicy_RequireArchive(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	operator := &domain.User{ID: "op", Role: domain.RoleOperator}
	manager := &domain.User{ID: "mgr", Role: domain.RoleManager}
	admin := &domain.User{ID: "adm", Role: domain.RoleAdministrator}

	policy := DefaultPolicy()
	app := newTestApp(NewAuthMiddleware(tm, staticUsers(operator, manager, admin)), policy.Require(CapTicketArchive))

	for _, tc := range []struct {
		user   *domain.User
		status int
	}{
		{operator, http.StatusForbidden},
		{manager, http.StatusOK},
		{admin, http.StatusOK},
	} {
		token, _, err := tm.GenerateToken(tc.user.ID, tc.user.Role)
		require.NoError(t, err)
		status, body := doRequest(t, app, "Bearer "+token)
		assert.Equal(t, tc.status, status, "role %s", tc.user.Role)
		if status == http.StatusForbidden {
			assert.Contains(t, body, "'Operator'")
			assert.Contains(t, body, "Administrator, Manager")
		}
	}
}

func TestPolicy_Allows(t *testing.T) {
	policy := DefaultPolicy()
	for _, role := range domain.Roles {
		assert.True(t, policy.Allows(CapTicketCreate, role))
		assert.True(t, policy.Allows(CapTicketComment, role))
	}
	assert.False(t, policy.Allows(CapTicketArchive, domain.RoleOperator))
	assert.False(t, policy.Allows(Capability("ticket:purge"), domain.RoleAdministrator))
}

func TestPassword_HashAndCompare(t *testing.T) {
	hash, err := HashPassword("s3cret", 4)
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	assert.NoError(t, ComparePassword(hash, "s3cret"))
	err = ComparePassword(hash, "wrong")
	assert.True(t, IsMismatch(err))
}
