package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"inventory-service/internal/model"
	mid "inventory-service/internal/middleware"
	"inventory-service/pkg/database"
	"inventory-service/pkg/logger"
	"inventory-service/prometheus"
)

// ProductRequest defines the structure for product creation/update requests.
// Pointer fields distinguish "absent" from zero values so updates only touch
// the fields the client sent. Quantity is deliberately absent: stock changes
// flow through movements only.
type ProductRequest struct {
	ID                       string   `json:"id"`
	Name                     *string  `json:"name"`
	Description              *string  `json:"description"`
	SKU                      *string  `json:"sku"`
	Price                    *float64 `json:"price"`
	CustomCriticalThreshold  *int     `json:"custom_critical_threshold"`
	CustomAttentionThreshold *int     `json:"custom_attention_threshold"`
}

// applyProductRequest copies the provided fields onto the product, leaving
// absent ones untouched. Quantity is never part of a request.
func applyProductRequest(product *model.Product, req *ProductRequest) {
	if req.Name != nil && *req.Name != "" {
		product.Name = *req.Name
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.SKU != nil {
		product.SKU = *req.SKU
	}
	if req.Price != nil {
		product.Price = *req.Price
	}
	if req.CustomCriticalThreshold != nil {
		product.CustomCriticalThreshold = req.CustomCriticalThreshold
	}
	if req.CustomAttentionThreshold != nil {
		product.CustomAttentionThreshold = req.CustomAttentionThreshold
	}
}

// ListProducts handles retrieving the tenant's products
func ListProducts(c echo.Context) error {
	log := logger.FromContext(c)
	tenantID, _ := mid.GetTenantIDFromContext(c)

	defer prometheus.TrackDBOperation("query")(time.Now())

	var products []model.Product
	result := database.GetDB().Where("tenant_id = ?", tenantID).Find(&products)
	if result.Error != nil {
		log.Error("Failed to list products", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to retrieve products"})
	}

	log.Info("Products retrieved successfully", zap.Int("count", len(products)))
	return c.JSON(http.StatusOK, products)
}

// GetProduct handles retrieving a single product by ID
func GetProduct(c echo.Context) error {
	log := logger.FromContext(c)
	tenantID, _ := mid.GetTenantIDFromContext(c)
	id := c.Param("id")

	var product model.Product
	result := database.GetDB().Where("tenant_id = ?", tenantID).First(&product, "id = ?", id)
	if result.Error != nil {
		log.Warn("Product not found", zap.String("product_id", id), zap.Error(result.Error))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Product not found"})
	}

	return c.JSON(http.StatusOK, product)
}

// CreateProduct handles creating a new product
func CreateProduct(c echo.Context) error {
	log := logger.FromContext(c)
	tenantID, _ := mid.GetTenantIDFromContext(c)

	var req ProductRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}

	if req.Name == nil || *req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	product := model.Product{
		ID:       req.ID,
		TenantID: tenantID,
	}
	applyProductRequest(&product, &req)

	err := database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&product).Error; err != nil {
			return err
		}
		// A new product enters the alert state machine with its initial
		// (zero) stock.
		return alertLifecycle.Apply(tx, tenantID, product.ID, product.Quantity)
	})
	if err != nil {
		log.Error("Failed to create product",
			zap.String("name", product.Name),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to create product"})
	}

	log.Info("Product created successfully",
		zap.String("product_id", product.ID),
		zap.String("name", product.Name))
	return c.JSON(http.StatusCreated, product)
}

// UpdateProduct handles updating an existing product. Quantity cannot be set
// here; it is derived from the movement ledger.
func UpdateProduct(c echo.Context) error {
	log := logger.FromContext(c)
	tenantID, _ := mid.GetTenantIDFromContext(c)
	id := c.Param("id")

	var req ProductRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.String("product_id", id), zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	var product model.Product
	err := database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ?", tenantID).First(&product, "id = ?", id).Error; err != nil {
			return err
		}

		applyProductRequest(&product, &req)

		// Quantity is excluded from the write: a movement committing between
		// the read above and this update must not be overwritten.
		if err := tx.Model(&model.Product{}).
			Where("id = ? AND tenant_id = ?", id, tenantID).
			Updates(map[string]interface{}{
				"name":                       product.Name,
				"description":                product.Description,
				"sku":                        product.SKU,
				"price":                      product.Price,
				"custom_critical_threshold":  product.CustomCriticalThreshold,
				"custom_attention_threshold": product.CustomAttentionThreshold,
				"updated_at":                 time.Now(),
			}).Error; err != nil {
			return err
		}

		var quantity int
		if err := tx.Model(&model.Product{}).
			Where("id = ? AND tenant_id = ?", id, tenantID).
			Select("quantity").Scan(&quantity).Error; err != nil {
			return err
		}
		product.Quantity = quantity

		// Threshold changes can move the product across alert bands.
		return alertLifecycle.Apply(tx, tenantID, product.ID, quantity)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("Product not found for update", zap.String("product_id", id))
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Product not found"})
		}
		log.Error("Failed to update product", zap.String("product_id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to update product"})
	}

	log.Info("Product updated successfully",
		zap.String("product_id", id),
		zap.String("name", product.Name))
	return c.JSON(http.StatusOK, product)
}

// DeleteProduct handles deleting a product (soft delete)
func DeleteProduct(c echo.Context) error {
	log := logger.FromContext(c)
	tenantID, _ := mid.GetTenantIDFromContext(c)
	id := c.Param("id")

	defer prometheus.TrackDBOperation("delete")(time.Now())

	err := database.GetDB().Transaction(func(tx *gorm.DB) error {
		result := tx.Where("tenant_id = ?", tenantID).Delete(&model.Product{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		// Close any active alert for the deleted product
		now := time.Now()
		return tx.Model(&model.Alert{}).
			Where("tenant_id = ? AND product_id = ? AND status = ?", tenantID, id, model.AlertStatusActive).
			Updates(map[string]interface{}{
				"status":     model.AlertStatusClosed,
				"closed_at":  now,
				"updated_at": now,
			}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("Product not found for deletion", zap.String("product_id", id))
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Product not found"})
		}
		log.Error("Failed to delete product", zap.String("product_id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to delete product"})
	}

	log.Info("Product deleted successfully", zap.String("product_id", id))
	return c.JSON(http.StatusOK, echo.Map{"message": "Product deleted successfully"})
}
