package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"task-api.com/task-api/internal/auth"
	"task-api.com/task-api/internal/exceptions"
	"task-api.com/task-api/internal/http/problem"
)

const identityKey = "auth.identity"

// TokenVerifier is satisfied by *auth.Verifier.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// RequireAuth rejects requests without a valid bearer token before the
// wrapped handler runs. Rejections are written here and never reach the
// global error handler.
func RequireAuth(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return unauthorized(c, "missing or malformed authorization header")
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				return unauthorized(c, err.Error())
			}

			c.Set(identityKey, identity)
			return next(c)
		}
	}
}

// IdentityFrom returns the caller stored by RequireAuth.
func IdentityFrom(c echo.Context) (auth.Identity, bool) {
	identity, ok := c.Get(identityKey).(auth.Identity)
	return identity, ok
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(c echo.Context, reason string) error {
	slog.Debug("request rejected by auth",
		"reason", reason,
		"method", c.Request().Method,
		"path", c.Request().URL.Path,
		"request_id", c.Response().Header().Get(echo.HeaderXRequestID))

	c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
	return problem.Write(c, problem.New(http.StatusUnauthorized, exceptions.ErrUnauthorized.Message))
}
