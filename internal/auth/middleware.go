package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/ticket-relay/pkg/util/errorutil"
)

// PrincipalKey is the locals key holding the verified *Principal.
const PrincipalKey = "auth_principal"

// Principal represents the verified web user.
type Principal struct {
	UserID string
}

// HandshakeMiddleware verifies that the connecting web user holds a token
// issued for the userId it presents. The token is read from the token query
// parameter, since browsers cannot set headers on a socket upgrade, or from a
// bearer Authorization header.
type HandshakeMiddleware struct {
	tokens *TokenManager
}

// NewHandshakeMiddleware constructs middleware. A nil manager lets every
// handshake through with the presented userId.
func NewHandshakeMiddleware(tokens *TokenManager) *HandshakeMiddleware {
	return &HandshakeMiddleware{tokens: tokens}
}

// Handle enforces the handshake token.
func (m *HandshakeMiddleware) Handle(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Query("userId"))
	if userID == "" {
		return apperrors.NewValidationError("userId required", nil)
	}
	if m.tokens == nil {
		c.Locals(PrincipalKey, &Principal{UserID: userID})
		return c.Next()
	}

	token := c.Query("token")
	if token == "" {
		authHeader := c.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			token = parts[1]
		}
	}
	if token == "" {
		return apperrors.NewUnauthorized("missing token")
	}

	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	if claims.Subject != userID {
		return apperrors.NewUnauthorized("token does not match userId")
	}

	c.Locals(PrincipalKey, &Principal{UserID: userID})
	return c.Next()
}

// PrincipalFromContext retrieves the verified user.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	principal, ok := c.Locals(PrincipalKey).(*Principal)
	return principal, ok
}
