package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/quantflow/backend/internal/identity"
	"github.com/quantflow/backend/internal/logging"
	"github.com/quantflow/backend/internal/middleware"
	"github.com/quantflow/backend/internal/service"
	"github.com/quantflow/backend/internal/store"
)

type AuthHTTP struct {
	Svc            *service.AuthService
	AccessLifetime string
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Register(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			return fail(c, http.StatusBadRequest, "All fields are required and password must be at least 6 characters")
		case errors.Is(err, store.ErrDuplicateEmail):
			return fail(c, http.StatusConflict, "User with this email already exists")
		default:
			l.Error("register_failed", "error", err)
			return fail(c, http.StatusInternalServerError, "Error creating user")
		}
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"message": "User registered successfully",
		"data":    h.authPayload(res),
	})
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			return fail(c, http.StatusBadRequest, "Email and password are required")
		case errors.Is(err, service.ErrInvalidCredentials):
			return fail(c, http.StatusUnauthorized, "Invalid email or password")
		case errors.Is(err, identity.ErrAccountDeactivated):
			return fail(c, http.StatusUnauthorized, "Account is deactivated")
		default:
			l.Error("login_failed", "error", err)
			return fail(c, http.StatusInternalServerError, "Error logging in")
		}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Login successful",
		"data":    h.authPayload(res),
	})
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()

	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return fail(c, http.StatusBadRequest, "Refresh token is required")
	}

	res, err := h.Svc.Refresh(ctx, req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRefresh):
			return fail(c, http.StatusUnauthorized, "Invalid or expired refresh token")
		case errors.Is(err, identity.ErrAccountDeactivated):
			return fail(c, http.StatusUnauthorized, "Account is deactivated")
		default:
			logging.FromContext(ctx).Error("refresh_failed", "error", err)
			return fail(c, http.StatusInternalServerError, "Error refreshing token")
		}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"tokens": h.tokensPayload(res),
		},
	})
}

func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	p := middleware.PrincipalFrom(c)

	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = c.Bind(&req)

	if err := h.Svc.Logout(ctx, p, req.RefreshToken); err != nil {
		return fail(c, http.StatusInternalServerError, "Error logging out")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Logged out successfully",
	})
}

func (h *AuthHTTP) Me(c echo.Context) error {
	p := middleware.PrincipalFrom(c)
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    echo.Map{"user": p.FullProfile()},
	})
}

func (h *AuthHTTP) authPayload(res *service.AuthResult) echo.Map {
	return echo.Map{
		"user":   res.User.FullProfile(),
		"tokens": h.tokensPayload(res),
	}
}

func (h *AuthHTTP) tokensPayload(res *service.AuthResult) echo.Map {
	return echo.Map{
		"accessToken":  res.Pair.AccessToken,
		"refreshToken": res.Pair.RefreshToken,
		"expiresIn":    h.AccessLifetime,
	}
}

func fail(c echo.Context, code int, msg string) error {
	return c.JSON(code, echo.Map{
		"success": false,
		"message": msg,
	})
}
