package middlewares

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"group_chat_service/pkg/logger"
	t_token "group_chat_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRevoked struct {
	tokens map[string]bool
	err    error
}

func (f fakeRevoked) IsRevoked(_ context.Context, tok string) (bool, error) {
	return f.tokens[tok], f.err
}

func newTestApp(revoked RevokedChecker) *fiber.App {
	app := fiber.New()
	app.Use(JWTMiddleware(revoked))
	app.Get("/me", func(c *fiber.Ctx) error {
		id, ok := UserID(c)
		if !ok {
			return c.SendStatus(fiber.StatusTeapot)
		}
		return c.JSON(fiber.Map{"id": id})
	})
	return app
}

func TestJWTMiddleware_Sources(t *testing.T) {
	logger.SetNewNop()
	tok, err := t_token.GenerateJWTWrapper(5, "user")
	require.NoError(t, err)
	app := newTestApp(nil)

	tests := []struct {
		name  string
		build func() *httptestRequest
	}{
		{"bearer header", func() *httptestRequest {
			return newReq("/me").header(fiber.HeaderAuthorization, "Bearer "+tok)
		}},
		{"query", func() *httptestRequest { return newReq("/me?auth=" + tok) }},
		{"cookie", func() *httptestRequest { return newReq("/me").header("Cookie", CookieToken+"="+tok) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(tt.build().req)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		})
	}
}

func TestJWTMiddleware_Rejects(t *testing.T) {
	logger.SetNewNop()
	app := newTestApp(nil)

	resp, err := app.Test(newReq("/me").req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(newReq("/me").header(fiber.HeaderAuthorization, "Bearer garbage").req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestJWTMiddleware_Revoked(t *testing.T) {
	logger.SetNewNop()
	tok, err := t_token.GenerateJWTWrapper(9, "user")
	require.NoError(t, err)

	app := newTestApp(fakeRevoked{tokens: map[string]bool{tok: true}})
	resp, err := app.Test(newReq("/me").header(fiber.HeaderAuthorization, "Bearer "+tok).req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	app = newTestApp(fakeRevoked{err: errors.New("redis down")})
	resp, err = app.Test(newReq("/me").header(fiber.HeaderAuthorization, "Bearer "+tok).req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

type httptestRequest struct {
	req *http.Request
}

func newReq(target string) *httptestRequest {
	return &httptestRequest{req: httptest.NewRequest(fiber.MethodGet, target, nil)}
}

func (r *httptestRequest) header(k, v string) *httptestRequest {
	r.req.Header.Set(k, v)
	return r
}

func TestRequireRole(t *testing.T) {
	logger.SetNewNop()
	app := fiber.New()
	app.Use(JWTMiddleware(nil))
	app.Get("/admin", RequireRole(t_token.RoleAdmin), func(c *fiber.Ctx) error {
		claims, ok := c.Locals(TokenClaims).(*t_token.Claims)
		if !ok {
			return c.SendStatus(fiber.StatusTeapot)
		}
		return c.JSON(fiber.Map{"id": claims.UserID})
	})

	admin, err := t_token.GenerateJWTWrapper(1, string(t_token.RoleAdmin))
	require.NoError(t, err)
	user, err := t_token.GenerateJWTWrapper(2, string(t_token.RoleUser))
	require.NoError(t, err)

	resp, err := app.Test(newReq("/admin").header(fiber.HeaderAuthorization, "Bearer "+admin).req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(newReq("/admin").header(fiber.HeaderAuthorization, "Bearer "+user).req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}
