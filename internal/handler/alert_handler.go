package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"inventory-service/internal/alerting"
	mid "inventory-service/internal/middleware"
	"inventory-service/pkg/database"
	"inventory-service/pkg/logger"
	"inventory-service/prometheus"
)

// ListAlerts returns the tenant's active alerts. Snoozed alerts are hidden
// until their snooze expires unless include_snoozed=true is passed.
func ListAlerts(c echo.Context) error {
	log := logger.FromContext(c)
	tenantID, _ := mid.GetTenantIDFromContext(c)
	includeSnoozed := c.QueryParam("include_snoozed") == "true"

	defer prometheus.TrackDBOperation("query")(time.Now())

	alerts, err := alertLifecycle.VisibleAlerts(database.GetDB(), tenantID, includeSnoozed)
	if err != nil {
		log.Error("Failed to list alerts", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to retrieve alerts"})
	}

	return c.JSON(http.StatusOK, alerts)
}

// SnoozeAlert suppresses an active alert for eight hours
func SnoozeAlert(c echo.Context) error {
	log := logger.FromContext(c)
	tenantID, _ := mid.GetTenantIDFromContext(c)
	alertID := c.Param("id")

	alert, err := alertLifecycle.Snooze(database.GetDB(), tenantID, alertID, alerting.SnoozeDuration)
	if err != nil {
		if errors.Is(err, alerting.ErrAlertNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Alert not found"})
		}
		if errors.Is(err, alerting.ErrAlertNotActive) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Alert is not active"})
		}
		log.Error("Failed to snooze alert", zap.String("alert_id", alertID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to snooze alert"})
	}

	prometheus.RecordAlertTransition("snoozed")
	log.Info("Alert snoozed",
		zap.String("alert_id", alertID),
		zap.Timep("snoozed_until", alert.SnoozedUntil))
	return c.JSON(http.StatusOK, alert)
}

// MarkAlertHandled closes an active alert as a manual acknowledgment
func MarkAlertHandled(c echo.Context) error {
	log := logger.FromContext(c)
	tenantID, _ := mid.GetTenantIDFromContext(c)
	alertID := c.Param("id")

	alert, err := alertLifecycle.MarkHandled(database.GetDB(), tenantID, alertID)
	if err != nil {
		if errors.Is(err, alerting.ErrAlertNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Alert not found"})
		}
		if errors.Is(err, alerting.ErrAlertNotActive) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Alert is not active"})
		}
		log.Error("Failed to mark alert handled", zap.String("alert_id", alertID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to mark alert handled"})
	}

	prometheus.RecordAlertTransition("handled")
	log.Info("Alert marked handled", zap.String("alert_id", alertID))
	return c.JSON(http.StatusOK, alert)
}

// InventoryHealth returns the tenant's aggregate health score
func InventoryHealth(c echo.Context) error {
	log := logger.FromContext(c)
	tenantID, _ := mid.GetTenantIDFromContext(c)

	defer prometheus.TrackDBOperation("query")(time.Now())

	score, err := alerting.HealthScore(database.GetDB(), tenantID)
	if err != nil {
		log.Error("Failed to compute health score", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to compute health score"})
	}

	return c.JSON(http.StatusOK, echo.Map{"score": score})
}
