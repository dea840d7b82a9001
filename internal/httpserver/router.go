package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/quantflow/backend/internal/middleware"
	"github.com/quantflow/backend/internal/models"
)

type Deps struct {
	Auth    *AuthHTTP
	Users   *UsersHTTP
	Trading *TradingHTTP
	Session *middleware.SessionAuth
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	authGroup := e.Group("/api/auth")
	authGroup.POST("/register", d.Auth.Register)
	authGroup.POST("/login", d.Auth.Login)
	authGroup.POST("/refresh", d.Auth.Refresh)
	authGroup.POST("/logout", d.Auth.Logout, d.Session.Authenticate)
	authGroup.GET("/me", d.Auth.Me, d.Session.Authenticate)

	users := e.Group("/api/users", d.Session.Authenticate)
	users.GET("/profile", d.Users.GetProfile)
	users.PUT("/profile", d.Users.UpdateProfile)
	users.PUT("/preferences", d.Users.UpdatePreferences)
	users.PUT("/subscription", d.Users.UpdateSubscription)
	users.GET("/trading-stats", d.Users.GetTradingStats)
	users.DELETE("/account", d.Users.DeactivateAccount)

	trading := e.Group("/api/trading")
	trading.GET("/strategies", d.Trading.ListStrategies, d.Session.Authenticate)
	trading.POST("/strategies", d.Trading.CreateStrategy, d.Session.Authenticate, middleware.RequireTier(models.TierPro))
	trading.POST("/generate", d.Trading.Generate, d.Session.AuthenticateOptional)
}
