package httpserver

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/quantflow/backend/internal/middleware"
)

// TradingHTTP holds the mock business endpoints. They exist to consume
// the session middleware in its three modes; the payloads are canned.
type TradingHTTP struct{}

func (h *TradingHTTP) ListStrategies(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    echo.Map{"strategies": []any{}},
	})
}

func (h *TradingHTTP) CreateStrategy(c echo.Context) error {
	p := middleware.PrincipalFrom(c)

	var req map[string]any
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"data": echo.Map{
			"strategy": echo.Map{
				"id":        uuid.NewString(),
				"owner":     p.ID(),
				"config":    req,
				"createdAt": time.Now(),
			},
		},
	})
}

// Generate serves anonymous and authenticated callers differently,
// which is the one legitimate home of optional authentication.
func (h *TradingHTTP) Generate(c echo.Context) error {
	resp := echo.Map{
		"success": true,
		"data":    echo.Map{"strategy": echo.Map{"id": uuid.NewString()}},
	}

	if p := middleware.PrincipalFrom(c); p != nil {
		resp["data"].(echo.Map)["tier"] = p.Tier()
	} else {
		resp["data"].(echo.Map)["tier"] = nil
		resp["message"] = "Sign in to save generated strategies"
	}

	return c.JSON(http.StatusOK, resp)
}
