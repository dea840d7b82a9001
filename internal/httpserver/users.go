package httpserver

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/quantflow/backend/internal/logging"
	"github.com/quantflow/backend/internal/middleware"
	"github.com/quantflow/backend/internal/models"
	"github.com/quantflow/backend/internal/service"
)

// UsersHTTP serves the profile endpoints. They are thin on purpose:
// their job is to exercise the principal contract, whichever backend
// produced it.
type UsersHTTP struct {
	Svc *service.AuthService
}

func (h *UsersHTTP) GetProfile(c echo.Context) error {
	p := middleware.PrincipalFrom(c)
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    echo.Map{"user": p.FullProfile()},
	})
}

func (h *UsersHTTP) UpdateProfile(c echo.Context) error {
	ctx := c.Request().Context()
	p := middleware.PrincipalFrom(c)

	var req struct {
		Name    string         `json:"name"`
		Profile map[string]any `json:"profile"`
	}
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		if len(name) < 2 || len(name) > 50 {
			return fail(c, http.StatusBadRequest, "Validation failed")
		}
		p.SetDisplayName(name)
	}
	if req.Profile != nil {
		merged := p.ProfileData()
		if merged == nil {
			merged = map[string]any{}
		}
		for k, v := range req.Profile {
			merged[k] = v
		}
		p.SetProfileData(merged)
	}

	if err := p.Save(ctx); err != nil {
		logging.FromContext(ctx).Error("profile_update_failed", "user_id", p.ID(), "error", err)
		return fail(c, http.StatusInternalServerError, "Error updating profile")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Profile updated successfully",
		"data":    echo.Map{"user": p.FullProfile()},
	})
}

func (h *UsersHTTP) UpdatePreferences(c echo.Context) error {
	ctx := c.Request().Context()
	p := middleware.PrincipalFrom(c)

	var req map[string]any
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}

	data := p.ProfileData()
	if data == nil {
		data = map[string]any{}
	}
	prefs, _ := data["preferences"].(map[string]any)
	if prefs == nil {
		prefs = map[string]any{}
	}
	for k, v := range req {
		prefs[k] = v
	}
	data["preferences"] = prefs
	p.SetProfileData(data)

	if err := p.Save(ctx); err != nil {
		logging.FromContext(ctx).Error("preferences_update_failed", "user_id", p.ID(), "error", err)
		return fail(c, http.StatusInternalServerError, "Error updating preferences")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Preferences updated successfully",
		"data":    echo.Map{"preferences": prefs},
	})
}

func (h *UsersHTTP) UpdateSubscription(c echo.Context) error {
	ctx := c.Request().Context()
	p := middleware.PrincipalFrom(c)

	var req struct {
		Subscription string `json:"subscription"`
	}
	if err := c.Bind(&req); err != nil || !models.ValidTier(req.Subscription) {
		return fail(c, http.StatusBadRequest, "Validation failed")
	}

	// Real payment processing lives elsewhere; this endpoint only flips
	// the stored tier.
	p.SetTier(models.Tier(req.Subscription))
	if err := p.Save(ctx); err != nil {
		logging.FromContext(ctx).Error("subscription_update_failed", "user_id", p.ID(), "error", err)
		return fail(c, http.StatusInternalServerError, "Error updating subscription")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Subscription updated successfully",
		"data":    echo.Map{"subscription": p.Tier()},
	})
}

func (h *UsersHTTP) GetTradingStats(c echo.Context) error {
	p := middleware.PrincipalFrom(c)

	data := p.ProfileData()
	stats, _ := data["tradingStats"].(map[string]any)
	if stats == nil {
		stats = map[string]any{
			"totalStrategies": 0,
			"totalBacktests":  0,
			"winRate":         0,
			"totalPnL":        0,
		}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    echo.Map{"stats": stats},
	})
}

func (h *UsersHTTP) DeactivateAccount(c echo.Context) error {
	ctx := c.Request().Context()
	p := middleware.PrincipalFrom(c)

	if err := h.Svc.Deactivate(ctx, p); err != nil {
		logging.FromContext(ctx).Error("deactivate_failed", "user_id", p.ID(), "error", err)
		return fail(c, http.StatusInternalServerError, "Error deactivating account")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Account deactivated successfully",
	})
}
