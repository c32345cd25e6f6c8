package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"inventory-service/internal/inventory"
	mid "inventory-service/internal/middleware"
	"inventory-service/pkg/logger"
	"inventory-service/prometheus"
)

// MovementRequest defines the structure for stock movement requests
type MovementRequest struct {
	Type           string `json:"type"`
	Quantity       int    `json:"quantity"`
	IdempotencyKey string `json:"idempotency_key"`
}

// CreateMovement records an entry/exit movement for a product and returns the
// stored movement. Replays with a known idempotency key return the original
// movement with HTTP 200 instead of 201.
func CreateMovement(c echo.Context) error {
	log := logger.FromContext(c)
	tenantID, _ := mid.GetTenantIDFromContext(c)
	userID, _ := mid.GetUserIDFromContext(c)
	productID := c.Param("id")

	var req MovementRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	movement, duplicate, err := movementService.CreateMovement(inventory.CreateMovementInput{
		TenantID:       tenantID,
		UserID:         userID,
		ProductID:      productID,
		Type:           req.Type,
		Quantity:       req.Quantity,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		if errors.Is(err, inventory.ErrProductNotFound) {
			log.Warn("Product not found for movement", zap.String("product_id", productID))
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Product not found"})
		}
		if errors.Is(err, inventory.ErrInvalidMovement) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		log.Error("Failed to record movement",
			zap.String("product_id", productID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to record movement"})
	}

	prometheus.RecordMovement(movement.Type)

	if duplicate {
		return c.JSON(http.StatusOK, movement)
	}
	return c.JSON(http.StatusCreated, movement)
}

// ListMovements returns one page of a product's movement ledger, newest
// first. The cursor query parameter continues a previous page.
func ListMovements(c echo.Context) error {
	log := logger.FromContext(c)
	tenantID, _ := mid.GetTenantIDFromContext(c)
	productID := c.Param("id")

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	movements, next, err := movementService.MovementsByProduct(tenantID, productID, limit, c.QueryParam("cursor"))
	if err != nil {
		if errors.Is(err, inventory.ErrInvalidCursor) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid cursor"})
		}
		log.Error("Failed to list movements",
			zap.String("product_id", productID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to retrieve movements"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"movements":   movements,
		"next_cursor": next,
	})
}
