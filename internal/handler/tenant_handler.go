package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"inventory-service/internal/model"
	mid "inventory-service/internal/middleware"
	"inventory-service/pkg/database"
	"inventory-service/pkg/jwtutil"
	"inventory-service/pkg/logger"
	"inventory-service/prometheus"
)

// ThresholdRequest defines the structure for tenant threshold updates
type ThresholdRequest struct {
	CriticalThreshold  int `json:"critical_threshold"`
	AttentionThreshold int `json:"attention_threshold"`
}

// UpdateTenantThresholds changes the tenant's default alert thresholds and
// cascades a recompute to every product currently using defaults. Admin-only.
func UpdateTenantThresholds(c echo.Context) error {
	log := logger.FromContext(c)
	tenantID, _ := mid.GetTenantIDFromContext(c)

	role, _ := c.Get("user_role").(string)
	if !jwtutil.CanManageTenant(role) {
		log.Warn("Threshold update denied", zap.String("role", role))
		return c.JSON(http.StatusForbidden, echo.Map{"code": "FORBIDDEN", "message": "only tenant admins may change thresholds"})
	}

	var req ThresholdRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}

	if req.CriticalThreshold <= 0 || req.AttentionThreshold <= 0 || req.CriticalThreshold >= req.AttentionThreshold {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "thresholds must be positive integers with critical < attention",
		})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	var recomputed int
	err := database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Tenant{}).Where("id = ?", tenantID).
			Updates(map[string]interface{}{
				"default_critical_threshold":  req.CriticalThreshold,
				"default_attention_threshold": req.AttentionThreshold,
			}).Error; err != nil {
			return err
		}

		var err error
		recomputed, err = alertLifecycle.RecomputeForTenantDefaults(tx, tenantID)
		return err
	})
	if err != nil {
		log.Error("Failed to update tenant thresholds", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to update thresholds"})
	}

	log.Info("Tenant thresholds updated",
		zap.Uint("tenant_id", tenantID),
		zap.Int("critical", req.CriticalThreshold),
		zap.Int("attention", req.AttentionThreshold),
		zap.Int("products_recomputed", recomputed))
	return c.JSON(http.StatusOK, echo.Map{
		"critical_threshold":  req.CriticalThreshold,
		"attention_threshold": req.AttentionThreshold,
		"products_recomputed": recomputed,
	})
}
