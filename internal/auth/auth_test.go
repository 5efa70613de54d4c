package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/sla-engine/internal/domain"
	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", time.Minute)

	token, expiresAt, err := tm.GenerateToken("ops-1", domain.RoleAgent)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops-1", claims.Subject)
	assert.Equal(t, domain.RoleAgent, claims.Role)
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	token, _, err := NewTokenManager("other", time.Minute).GenerateToken("ops-1", domain.RoleAdmin)
	require.NoError(t, err)

	_, err = NewTokenManager("secret", time.Minute).ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsUnknownRole(t *testing.T) {
	claims := &Claims{Role: "root", RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "ops-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewTokenManager("secret", time.Minute).ParseToken(token)
	assert.Error(t, err)

	_, _, err = NewTokenManager("secret", time.Minute).GenerateToken("ops-1", "root")
	assert.Error(t, err)
}

func TestIngestKeyVerifier(t *testing.T) {
	hash, err := HashIngestKey("s3cret", bcrypt.MinCost)
	require.NoError(t, err)
	v := NewIngestKeyVerifier(hash)

	assert.True(t, v.Enabled())
	assert.True(t, v.Verify("s3cret"))
	assert.False(t, v.Verify("wrong"))
	assert.False(t, v.Verify(""))
	assert.False(t, NewIngestKeyVerifier("").Verify("s3cret"))
}

func newGuardedApp(t *testing.T, roles ...domain.Role) (*fiber.App, *TokenManager, string) {
	t.Helper()
	tm := NewTokenManager("secret", time.Minute)
	hash, err := HashIngestKey("s3cret", bcrypt.MinCost)
	require.NoError(t, err)
	mw := NewAuthMiddleware(tm, NewIngestKeyVerifier(hash))

	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
	}})
	app.Get("/guarded", mw.Handle, RequireRole(roles...), func(c *fiber.Ctx) error {
		principal, _ := PrincipalFromContext(c)
		return c.SendString(principal.Subject)
	})
	app.Post("/ingest", mw.HandleIngest, RequireRole(domain.RoleIngest), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})
	return app, tm, "s3cret"
}

func bearer(t *testing.T, tm *TokenManager, role domain.Role) string {
	t.Helper()
	token, _, err := tm.GenerateToken("ops-1", role)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestRequireRole(t *testing.T) {
	app, tm, _ := newGuardedApp(t, domain.RoleAgent)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", fiber.StatusUnauthorized},
		{"malformed header", "Token abc", fiber.StatusUnauthorized},
		{"garbage token", "Bearer abc", fiber.StatusUnauthorized},
		{"agent allowed", bearer(t, tm, domain.RoleAgent), fiber.StatusOK},
		{"admin always allowed", bearer(t, tm, domain.RoleAdmin), fiber.StatusOK},
		{"ingest forbidden", bearer(t, tm, domain.RoleIngest), fiber.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/guarded", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestHandleIngest(t *testing.T) {
	app, tm, key := newGuardedApp(t)

	req := httptest.NewRequest("POST", "/ingest", nil)
	req.Header.Set("X-Ingest-Key", key)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	req = httptest.NewRequest("POST", "/ingest", nil)
	req.Header.Set("X-Ingest-Key", "nope")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("POST", "/ingest", nil)
	req.Header.Set("Authorization", bearer(t, tm, domain.RoleAdmin))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
}
