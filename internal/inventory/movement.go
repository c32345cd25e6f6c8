package inventory

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"inventory-service/internal/alerting"
	"inventory-service/internal/model"
)

// Errors returned by the movement service
var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidMovement = errors.New("invalid movement")
	ErrInvalidCursor   = errors.New("invalid cursor")
)

// Service records stock movements and keeps product quantity and alert state
// consistent with the ledger, all inside one transaction per movement.
type Service struct {
	db        *gorm.DB
	lifecycle *alerting.Lifecycle
	log       *zap.Logger
}

// NewService creates a movement service bound to a database handle and an
// alert lifecycle manager.
func NewService(db *gorm.DB, lifecycle *alerting.Lifecycle, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, lifecycle: lifecycle, log: log}
}

// CreateMovementInput carries one movement to record.
type CreateMovementInput struct {
	TenantID       uint
	UserID         uint
	ProductID      string
	Type           string
	Quantity       int
	IdempotencyKey string
}

func (in *CreateMovementInput) validate() error {
	if in.Type != model.MovementEntry && in.Type != model.MovementExit {
		return fmt.Errorf("%w: type must be entry or exit", ErrInvalidMovement)
	}
	if in.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be a positive integer", ErrInvalidMovement)
	}
	if in.ProductID == "" {
		return fmt.Errorf("%w: product id is required", ErrInvalidMovement)
	}
	return nil
}

// CreateMovement records a movement, applies its delta to the product
// quantity with a database-level increment and recomputes the product's alert
// state. When the idempotency key was seen before for this tenant, the stored
// movement is returned unchanged with duplicate=true and nothing is written.
// Stock is allowed to go negative; oversell surfaces as a red alert rather
// than a rejected movement.
func (s *Service) CreateMovement(in CreateMovementInput) (*model.StockMovement, bool, error) {
	if err := in.validate(); err != nil {
		return nil, false, err
	}

	var movement *model.StockMovement
	duplicate := false

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if in.IdempotencyKey != "" {
			var existing model.StockMovement
			err := tx.Where("tenant_id = ? AND idempotency_key = ?", in.TenantID, in.IdempotencyKey).
				First(&existing).Error
			if err == nil {
				movement = &existing
				duplicate = true
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		var product model.Product
		if err := tx.Where("tenant_id = ?", in.TenantID).First(&product, "id = ?", in.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProductNotFound
			}
			return err
		}

		m := model.StockMovement{
			ID:             uuid.New().String(),
			TenantID:       in.TenantID,
			ProductID:      in.ProductID,
			UserID:         in.UserID,
			Type:           in.Type,
			Quantity:       in.Quantity,
			IdempotencyKey: in.IdempotencyKey,
			CreatedAt:      time.Now(),
		}
		if m.IdempotencyKey == "" {
			// Server-originated movements still get a key so the ledger's
			// uniqueness constraint holds.
			m.IdempotencyKey = m.ID
		}
		if err := tx.Create(&m).Error; err != nil {
			// A racing transaction with the same key may have committed
			// between the dedup read and this insert.
			var existing model.StockMovement
			if rerr := tx.Where("tenant_id = ? AND idempotency_key = ?", in.TenantID, m.IdempotencyKey).
				First(&existing).Error; rerr == nil {
				movement = &existing
				duplicate = true
				return nil
			}
			return err
		}

		// Atomic increment: commutes under concurrent application from
		// multiple devices, unlike read-modify-write.
		if err := tx.Model(&model.Product{}).
			Where("id = ? AND tenant_id = ?", in.ProductID, in.TenantID).
			UpdateColumn("quantity", gorm.Expr("quantity + ?", m.Delta())).Error; err != nil {
			return err
		}

		var newQuantity int
		if err := tx.Model(&model.Product{}).
			Where("id = ? AND tenant_id = ?", in.ProductID, in.TenantID).
			Select("quantity").Scan(&newQuantity).Error; err != nil {
			return err
		}

		if err := s.lifecycle.Apply(tx, in.TenantID, in.ProductID, newQuantity); err != nil {
			return err
		}

		movement = &m
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if duplicate {
		s.log.Debug("movement replay deduplicated",
			zap.Uint("tenant_id", in.TenantID),
			zap.String("idempotency_key", in.IdempotencyKey))
	} else {
		s.log.Info("movement recorded",
			zap.Uint("tenant_id", in.TenantID),
			zap.String("product_id", in.ProductID),
			zap.String("type", in.Type),
			zap.Int("quantity", in.Quantity))
	}
	return movement, duplicate, nil
}

// LedgerSum returns the signed sum of all movements for a product. It must
// equal the product's stored quantity at all times.
func (s *Service) LedgerSum(tenantID uint, productID string) (int, error) {
	var movements []model.StockMovement
	if err := s.db.Where("tenant_id = ? AND product_id = ?", tenantID, productID).Find(&movements).Error; err != nil {
		return 0, err
	}
	sum := 0
	for i := range movements {
		sum += movements[i].Delta()
	}
	return sum, nil
}

// MovementsByProduct returns one page of a product's ledger, newest first,
// ordered by (created_at, id) so rows with colliding timestamps still
// paginate stably. The returned cursor is empty on the last page.
func (s *Service) MovementsByProduct(tenantID uint, productID string, limit int, cursor string) ([]model.StockMovement, string, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := s.db.Where("tenant_id = ? AND product_id = ?", tenantID, productID)
	if cursor != "" {
		ts, id, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		query = query.Where("created_at < ? OR (created_at = ? AND id < ?)", ts, ts, id)
	}

	var movements []model.StockMovement
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit + 1).Find(&movements).Error; err != nil {
		return nil, "", err
	}

	next := ""
	if len(movements) > limit {
		movements = movements[:limit]
		last := movements[len(movements)-1]
		next = encodeCursor(last.CreatedAt, last.ID)
	}
	return movements, next, nil
}

func encodeCursor(ts time.Time, id string) string {
	raw := fmt.Sprintf("%s|%s", ts.UTC().Format(time.RFC3339Nano), id)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", ErrInvalidCursor
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", ErrInvalidCursor
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", ErrInvalidCursor
	}
	return ts, parts[1], nil
}
