package middleware

import (
	"net/http"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/parley/internal/domain"
)

// UserContextKey is where Auth stores the resolved *domain.User on the
// echo context for downstream handlers.
const UserContextKey = "user"

// SessionName is the cookie session holding the authenticated identity.
const SessionName = "parley-session"

// sessionUsernameKey is the session value carrying the username.
const sessionUsernameKey = "username"

// Auth protects routes that require an authenticated user. It resolves the
// username from the cookie session, loads the user record, and stores it on
// the context. Requests without a valid identity get 401.
func Auth(store domain.ChatGateway) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess, err := session.Get(SessionName, c)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid session")
			}

			username, ok := sess.Values[sessionUsernameKey].(string)
			if !ok || username == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "not logged in")
			}

			user, err := store.FindUser(c.Request().Context(), username)
			if err != nil {
				FromContext(c.Request().Context()).Warn("Session references unknown user", "username", username, "error", err)
				// Clear the stale identity so the client re-authenticates.
				sess.Options.MaxAge = -1
				_ = sess.Save(c.Request(), c.Response())
				return echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
			}

			c.Set(UserContextKey, user)
			return next(c)
		}
	}
}

// SetIdentity binds username to the request's cookie session.
func SetIdentity(c echo.Context, username string) error {
	sess, err := session.Get(SessionName, c)
	if err != nil {
		return err
	}
	sess.Values[sessionUsernameKey] = username
	return sess.Save(c.Request(), c.Response())
}

// ClearIdentity drops the session identity, logging the user out.
func ClearIdentity(c echo.Context) error {
	sess, err := session.Get(SessionName, c)
	if err != nil {
		return err
	}
	delete(sess.Values, sessionUsernameKey)
	sess.Options.MaxAge = -1
	return sess.Save(c.Request(), c.Response())
}
