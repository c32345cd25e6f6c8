package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	mid "inventory-service/internal/middleware"
	"inventory-service/internal/syncer"
	"inventory-service/pkg/logger"
	"inventory-service/prometheus"
)

// ProcessSync handles a batched sync request from an offline client. Batch
// level protocol violations reject the whole request with an error envelope;
// per-operation outcomes are reported in the results array.
func ProcessSync(c echo.Context) error {
	log := logger.FromContext(c)

	tenantID, ok := mid.GetTenantIDFromContext(c)
	if !ok {
		log.Error("Missing tenant context on sync request")
		return c.JSON(http.StatusUnauthorized, echo.Map{"code": syncer.CodeUnauthorized, "message": "authentication required"})
	}
	userID, _ := mid.GetUserIDFromContext(c)

	var req syncer.Request
	if err := c.Bind(&req); err != nil {
		log.Warn("Malformed sync request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"code": syncer.CodeValidationError, "message": "malformed request body"})
	}

	headerIdemKey := c.Request().Header.Get("Idempotency-Key")

	resp, err := syncEngine.Process(tenantID, userID, headerIdemKey, &req)
	if err != nil {
		var batchErr *syncer.BatchError
		if errors.As(err, &batchErr) {
			log.Warn("Sync batch rejected",
				zap.String("code", batchErr.Code),
				zap.String("message", batchErr.Message))
			prometheus.RecordSyncRejection(batchErr.Code)

			status := http.StatusBadRequest
			if batchErr.Code == syncer.CodeTenantMismatch {
				status = http.StatusForbidden
			}
			return c.JSON(status, batchErr)
		}
		log.Error("Sync batch failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": syncer.CodeInternalError, "message": "failed to process sync batch"})
	}

	prometheus.SyncBatchesCounter.Inc()
	for _, result := range resp.Results {
		prometheus.RecordSyncOperation(result.Status)
	}

	log.Info("Sync batch processed",
		zap.Uint("tenant_id", tenantID),
		zap.Int("operations", len(req.Operations)))
	return c.JSON(http.StatusOK, resp)
}
