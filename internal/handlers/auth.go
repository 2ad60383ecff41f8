package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/parley/internal/domain"
	"github.com/nfrund/parley/internal/middleware"
)

// AuthHandler handles login and logout. Identity is a bare username: the
// first login creates the user record, later logins reuse it.
type AuthHandler struct {
	store    domain.ChatGateway
	validate *validator.Validate
}

func NewAuthHandler(store domain.ChatGateway) *AuthHandler {
	return &AuthHandler{
		store:    store,
		validate: validator.New(),
	}
}

type loginRequest struct {
	Username string `json:"username" form:"username" validate:"required,min=1,max=64"`
}

// LoginPost handles POST /auth/login. It creates the user if needed and
// binds the username to the cookie session.
func (h *AuthHandler) LoginPost(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.StructCtx(c.Request().Context(), &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "username is required")
	}

	user, err := h.store.GetOrCreateUser(c.Request().Context(), req.Username)
	if err != nil {
		middleware.FromContext(c.Request().Context()).Error("Failed to create user on login", "username", req.Username, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "could not log in")
	}

	if err := middleware.SetIdentity(c, user.Username); err != nil {
		middleware.FromContext(c.Request().Context()).Error("Failed to save session", "username", user.Username, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "could not log in")
	}

	return c.JSON(http.StatusOK, map[string]string{"username": user.Username})
}

// Logout handles POST /auth/logout by dropping the session identity.
func (h *AuthHandler) Logout(c echo.Context) error {
	if err := middleware.ClearIdentity(c); err != nil {
		middleware.FromContext(c.Request().Context()).Error("Failed to clear session", "error", err)
	}
	return c.NoContent(http.StatusNoContent)
}
