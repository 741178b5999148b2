package middlewares

import (
	"context"

	"group_chat_service/pkg/logger"
	t_token "group_chat_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	//QueryToken token in query name
	QueryToken = "auth"

	//CookieToken token in cookie name
	CookieToken = "auth_token"

	//TokenUserID user id form token, set c.locals name
	TokenUserID = "UserID"
	//TokenRole get role form token, set c.locals name
	TokenRole = "role"
	//TokenRaw raw credential, set c.locals name
	TokenRaw = "token"
	//TokenClaims parsed claims, set c.locals name
	TokenClaims = "claims"
)

// RevokedChecker 黑名單查詢 (logout 後的 token)
type RevokedChecker interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// JWTMiddleware validates JWT from Authorization header, query or cookie
func JWTMiddleware(revoked RevokedChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := t_token.FromBearer(c.Get(fiber.HeaderAuthorization))
		if tokenStr == "" {
			tokenStr = c.Query(QueryToken)
		}
		if tokenStr == "" {
			tokenStr = c.Cookies(CookieToken)
		}

		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "No token provided",
			})
		}

		claims, err := t_token.ParseJWTWrapper(tokenStr)
		if err != nil {
			logger.Log.Debug("reject token", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		if revoked != nil {
			isRevoked, err := revoked.IsRevoked(c.UserContext(), tokenStr)
			if err != nil {
				logger.Log.Error("revoked token lookup", zap.Error(err))
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Failed to verify token",
				})
			}
			if isRevoked {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Token revoked. Please login again.",
				})
			}
		}

		c.Locals(TokenUserID, claims.UserID)
		c.Locals(TokenRole, claims.Role)
		c.Locals(TokenRaw, tokenStr)
		c.Locals(TokenClaims, claims)
		return c.Next()
	}
}

// RequireRole 需在 JWTMiddleware 之後, role 不符回 403
func RequireRole(role t_token.RoleType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if got, _ := c.Locals(TokenRole).(string); got != string(role) {
			logger.Log.Warn("reject role", zap.String("path", c.Path()), zap.String("role", got))
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Permission denied",
			})
		}
		return c.Next()
	}
}

// UserID read the authenticated user id from fiber locals
func UserID(c *fiber.Ctx) (int64, bool) {
	id, ok := c.Locals(TokenUserID).(int64)
	return id, ok && id != 0
}
