package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/domain"
	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

const (
	principalKey    = "auth_principal"
	ingestKeyHeader = "X-Ingest-Key"
)

// Principal represents the authenticated caller.
type Principal struct {
	Subject string
	Role    domain.Role
}

// AuthMiddleware validates bearer tokens and ingest keys.
type AuthMiddleware struct {
	tokens    *TokenManager
	ingestKey *IngestKeyVerifier
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, ingestKey *IngestKeyVerifier) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, ingestKey: ingestKey}
}

// Handle enforces bearer authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	principal, err := m.bearer(c)
	if err != nil {
		return err
	}
	c.Locals(principalKey, principal)
	return c.Next()
}

// HandleIngest accepts either the ingest key header or a bearer token.
func (m *AuthMiddleware) HandleIngest(c *fiber.Ctx) error {
	if key := c.Get(ingestKeyHeader); key != "" {
		if !m.ingestKey.Verify(key) {
			return apperrors.NewUnauthorized("invalid ingest key")
		}
		c.Locals(principalKey, &Principal{Subject: "ticket-store", Role: domain.RoleIngest})
		return c.Next()
	}
	return m.Handle(c)
}

func (m *AuthMiddleware) bearer(c *fiber.Ctx) (*Principal, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return nil, apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return nil, apperrors.NewUnauthorized("invalid token")
	}
	return &Principal{Subject: claims.Subject, Role: claims.Role}, nil
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
