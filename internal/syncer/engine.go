package syncer

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"inventory-service/internal/alerting"
	"inventory-service/internal/inventory"
	"inventory-service/internal/model"
)

// Engine reconciles batches of client-queued operations against the server
// state. Batch-level protocol violations reject the whole request before any
// persistence; per-operation business failures are isolated so one stale
// operation cannot block unrelated queued work.
type Engine struct {
	db        *gorm.DB
	movements *inventory.Service
	lifecycle *alerting.Lifecycle
	maxBatch  int
	log       *zap.Logger
}

// NewEngine creates a sync engine. maxBatch bounds operations per request
// (the protocol cap is 100).
func NewEngine(db *gorm.DB, movements *inventory.Service, lifecycle *alerting.Lifecycle, maxBatch int, log *zap.Logger) *Engine {
	if maxBatch <= 0 || maxBatch > 100 {
		maxBatch = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{db: db, movements: movements, lifecycle: lifecycle, maxBatch: maxBatch, log: log}
}

// Process validates and replays a sync batch for the authenticated tenant.
// headerIdemKey is the optional request-level Idempotency-Key header; when a
// single-operation batch carries one, it must match that operation's id.
func (e *Engine) Process(tenantID, userID uint, headerIdemKey string, req *Request) (*Response, error) {
	if err := e.validateBatch(tenantID, headerIdemKey, req); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(req.Operations))
	for i := range req.Operations {
		results = append(results, e.dispatch(tenantID, userID, &req.Operations[i]))
	}

	e.log.Info("sync batch processed",
		zap.Uint("tenant_id", tenantID),
		zap.Uint("user_id", userID),
		zap.Int("operations", len(req.Operations)))

	return &Response{
		Checkpoint: NewCheckpoint(),
		Results:    results,
	}, nil
}

// validateBatch enforces the protocol invariants that abort the entire
// request: batch size bounds, operationId == idempotencyKey on every
// operation, tenant ownership, and header key consistency.
func (e *Engine) validateBatch(tenantID uint, headerIdemKey string, req *Request) error {
	if len(req.Operations) == 0 {
		return &BatchError{Code: CodeValidationError, Message: "operations must contain at least one entry"}
	}
	if len(req.Operations) > e.maxBatch {
		return &BatchError{Code: CodeValidationError, Message: fmt.Sprintf("operations exceed the maximum batch size of %d", e.maxBatch)}
	}

	for i := range req.Operations {
		op := &req.Operations[i]
		if op.OperationID == "" {
			return &BatchError{Code: CodeValidationError, Message: fmt.Sprintf("operation %d: operationId is required", i)}
		}
		if op.IdempotencyKey != op.OperationID {
			return &BatchError{Code: CodeValidationError, Message: fmt.Sprintf("operation %s: idempotencyKey must equal operationId", op.OperationID)}
		}
		if op.TenantID != 0 && op.TenantID != tenantID {
			return &BatchError{Code: CodeTenantMismatch, Message: fmt.Sprintf("operation %s: tenant does not match the authenticated tenant", op.OperationID)}
		}
	}

	if headerIdemKey != "" && len(req.Operations) == 1 && headerIdemKey != req.Operations[0].OperationID {
		return &BatchError{Code: CodeValidationError, Message: "Idempotency-Key header does not match the operation id"}
	}

	return nil
}

func (e *Engine) dispatch(tenantID, userID uint, op *Operation) Result {
	res := Result{OperationID: op.OperationID}

	switch op.EntityType {
	case EntityStockMovement:
		e.applyMovement(tenantID, userID, op, &res)
	case EntityProduct:
		e.applyProduct(tenantID, op, &res)
	default:
		res.Status = StatusValidationError
		res.Message = fmt.Sprintf("unknown entity type %q", op.EntityType)
	}

	if res.Status != StatusSuccess && res.Status != StatusDuplicate {
		e.log.Warn("sync operation failed",
			zap.Uint("tenant_id", tenantID),
			zap.String("operation_id", op.OperationID),
			zap.String("status", res.Status),
			zap.String("message", res.Message))
	}
	return res
}

func (e *Engine) applyMovement(tenantID, userID uint, op *Operation, res *Result) {
	if op.OperationType != OpCreate {
		res.Status = StatusValidationError
		res.Message = "stock movements are append-only; only create is supported"
		return
	}

	var payload MovementPayload
	if err := json.Unmarshal(op.Payload, &payload); err != nil {
		res.Status = StatusValidationError
		res.Message = "malformed movement payload"
		return
	}

	movement, duplicate, err := e.movements.CreateMovement(inventory.CreateMovementInput{
		TenantID:       tenantID,
		UserID:         userID,
		ProductID:      payload.ProductID,
		Type:           payload.Type,
		Quantity:       payload.Quantity,
		IdempotencyKey: op.OperationID,
	})
	switch {
	case errors.Is(err, inventory.ErrProductNotFound):
		res.Status = StatusNotFound
		res.Message = "Product not found"
	case errors.Is(err, inventory.ErrInvalidMovement):
		res.Status = StatusValidationError
		res.Message = err.Error()
	case err != nil:
		res.Status = StatusValidationError
		res.Code = CodeInternalError
		res.Message = "failed to apply movement"
	default:
		if duplicate {
			res.Status = StatusDuplicate
		} else {
			res.Status = StatusSuccess
		}
		res.ServerState = e.productSnapshot(tenantID, movement.ProductID)
	}
}

func (e *Engine) applyProduct(tenantID uint, op *Operation, res *Result) {
	if op.EntityID == "" {
		res.Status = StatusValidationError
		res.Message = "entityId is required for product operations"
		return
	}

	var payload ProductPayload
	if len(op.Payload) > 0 {
		if err := json.Unmarshal(op.Payload, &payload); err != nil {
			res.Status = StatusValidationError
			res.Message = "malformed product payload"
			return
		}
	}

	var opErr error
	switch op.OperationType {
	case OpCreate:
		opErr = e.createProduct(tenantID, op.EntityID, &payload, res)
	case OpUpdate:
		opErr = e.updateProduct(tenantID, op.EntityID, &payload, res)
	case OpDelete:
		opErr = e.deleteProduct(tenantID, op.EntityID, res)
	default:
		res.Status = StatusValidationError
		res.Message = fmt.Sprintf("unknown operation type %q", op.OperationType)
		return
	}

	if opErr != nil {
		res.Status = StatusValidationError
		res.Code = CodeInternalError
		res.Message = "failed to apply product operation"
	}
}

func (e *Engine) createProduct(tenantID uint, entityID string, payload *ProductPayload, res *Result) error {
	return e.db.Transaction(func(tx *gorm.DB) error {
		var existing model.Product
		err := tx.Where("tenant_id = ?", tenantID).First(&existing, "id = ?", entityID).Error
		if err == nil {
			// Replay of a completed create: idempotent success.
			res.Status = StatusDuplicate
			res.ServerState = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		// The same id under another tenant is a cross-tenant reference, not
		// a creatable row.
		var foreign int64
		if err := tx.Unscoped().Model(&model.Product{}).Where("id = ?", entityID).Count(&foreign).Error; err != nil {
			return err
		}
		if foreign > 0 {
			res.Status = StatusTenantMismatch
			res.Message = "entity belongs to another tenant"
			return nil
		}

		if payload.Name == nil || *payload.Name == "" {
			res.Status = StatusValidationError
			res.Message = "name is required"
			return nil
		}

		product := model.Product{
			ID:       entityID,
			TenantID: tenantID,
			Name:     *payload.Name,
		}
		applyProductPayload(&product, payload)
		if err := tx.Create(&product).Error; err != nil {
			return err
		}

		// A brand-new product enters the alert state machine immediately: a
		// zero-stock product is red by classification.
		if err := e.lifecycle.Apply(tx, tenantID, product.ID, product.Quantity); err != nil {
			return err
		}

		res.Status = StatusSuccess
		res.ServerState = product
		return nil
	})
}

func (e *Engine) updateProduct(tenantID uint, entityID string, payload *ProductPayload, res *Result) error {
	return e.db.Transaction(func(tx *gorm.DB) error {
		var product model.Product
		if err := tx.Where("tenant_id = ?", tenantID).First(&product, "id = ?", entityID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				res.Status = StatusNotFound
				res.Message = "Product not found"
				return nil
			}
			return err
		}

		// Last-write-wins on the provided fields. Quantity is never written
		// here; stock flows exclusively through movements, and a movement
		// committing between the read above and this write must survive it.
		applyProductPayload(&product, payload)
		if err := tx.Model(&model.Product{}).
			Where("id = ? AND tenant_id = ?", entityID, tenantID).
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
			Where("id = ? AND tenant_id = ?", entityID, tenantID).
			Select("quantity").Scan(&quantity).Error; err != nil {
			return err
		}
		product.Quantity = quantity

		// Threshold changes can move the product across alert bands.
		if err := e.lifecycle.Apply(tx, tenantID, product.ID, quantity); err != nil {
			return err
		}

		res.Status = StatusSuccess
		res.ServerState = product
		return nil
	})
}

func (e *Engine) deleteProduct(tenantID uint, entityID string, res *Result) error {
	return e.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("tenant_id = ?", tenantID).Delete(&model.Product{}, "id = ?", entityID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			res.Status = StatusNotFound
			res.Message = "Product not found"
			return nil
		}

		// A deleted product cannot stay on the alert board.
		now := time.Now()
		if err := tx.Model(&model.Alert{}).
			Where("tenant_id = ? AND product_id = ? AND status = ?", tenantID, entityID, model.AlertStatusActive).
			Updates(map[string]interface{}{
				"status":     model.AlertStatusClosed,
				"closed_at":  now,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}

		res.Status = StatusSuccess
		return nil
	})
}

func applyProductPayload(product *model.Product, payload *ProductPayload) {
	if payload.Name != nil {
		product.Name = *payload.Name
	}
	if payload.Description != nil {
		product.Description = *payload.Description
	}
	if payload.SKU != nil {
		product.SKU = *payload.SKU
	}
	if payload.Price != nil {
		product.Price = *payload.Price
	}
	if payload.CustomCriticalThreshold != nil {
		product.CustomCriticalThreshold = payload.CustomCriticalThreshold
	}
	if payload.CustomAttentionThreshold != nil {
		product.CustomAttentionThreshold = payload.CustomAttentionThreshold
	}
}

func (e *Engine) productSnapshot(tenantID uint, productID string) interface{} {
	var product model.Product
	if err := e.db.Where("tenant_id = ?", tenantID).First(&product, "id = ?", productID).Error; err != nil {
		return nil
	}
	return product
}
