package alerting

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"inventory-service/internal/model"
)

// SnoozeDuration is how long an operator-initiated snooze suppresses an alert.
const SnoozeDuration = 8 * time.Hour

// Errors returned by alert mutations
var (
	ErrAlertNotFound  = errors.New("alert not found")
	ErrAlertNotActive = errors.New("alert is not active")
)

// CriticalNotification describes a product that just crossed into red.
type CriticalNotification struct {
	TenantID    uint      `json:"tenant_id"`
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	Stock       int       `json:"stock"`
	Threshold   int       `json:"threshold"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Notifier delivers critical notifications outside the business transaction.
// Implementations must not block the caller.
type Notifier interface {
	NotifyCritical(n CriticalNotification)
}

// Lifecycle transitions a product's alert record in response to stock
// changes, maintaining the single-active-alert-per-product invariant.
type Lifecycle struct {
	notifier Notifier
	log      *zap.Logger
}

// NewLifecycle creates a lifecycle manager with the given notifier. A nil
// notifier disables critical notifications.
func NewLifecycle(notifier Notifier, log *zap.Logger) *Lifecycle {
	if log == nil {
		log = zap.NewNop()
	}
	return &Lifecycle{notifier: notifier, log: log}
}

// Apply recomputes the alert state for one product after a stock change. It
// must run inside the caller's transaction so the alert transition commits or
// rolls back together with the movement that caused it.
func (l *Lifecycle) Apply(tx *gorm.DB, tenantID uint, productID string, currentStock int) error {
	var tenant model.Tenant
	if err := tx.First(&tenant, tenantID).Error; err != nil {
		return err
	}

	var product model.Product
	if err := tx.Where("tenant_id = ?", tenantID).First(&product, "id = ?", productID).Error; err != nil {
		return err
	}

	return l.applySnapshot(tx, &tenant, &product, currentStock)
}

// RecomputeForProducts re-evaluates alert state for the named products using
// a single tenant snapshot. Used after a tenant threshold change so the
// cascade does not re-read the tenant per product.
func (l *Lifecycle) RecomputeForProducts(tx *gorm.DB, tenantID uint, productIDs []string) error {
	if len(productIDs) == 0 {
		return nil
	}

	var tenant model.Tenant
	if err := tx.First(&tenant, tenantID).Error; err != nil {
		return err
	}

	var products []model.Product
	if err := tx.Where("tenant_id = ? AND id IN ?", tenantID, productIDs).Find(&products).Error; err != nil {
		return err
	}

	for i := range products {
		if err := l.applySnapshot(tx, &tenant, &products[i], products[i].Quantity); err != nil {
			return err
		}
	}
	return nil
}

// RecomputeForTenantDefaults re-evaluates every product that resolves to the
// tenant's default thresholds. Products with a valid custom pair are left
// untouched.
func (l *Lifecycle) RecomputeForTenantDefaults(tx *gorm.DB, tenantID uint) (int, error) {
	var tenant model.Tenant
	if err := tx.First(&tenant, tenantID).Error; err != nil {
		return 0, err
	}

	var products []model.Product
	if err := tx.Where("tenant_id = ?", tenantID).Find(&products).Error; err != nil {
		return 0, err
	}

	recomputed := 0
	for i := range products {
		eff := ResolveEffectiveThresholds(&products[i], &tenant)
		if eff.Mode != ModeDefaults {
			continue
		}
		if err := l.applySnapshot(tx, &tenant, &products[i], products[i].Quantity); err != nil {
			return recomputed, err
		}
		recomputed++
	}
	return recomputed, nil
}

func (l *Lifecycle) applySnapshot(tx *gorm.DB, tenant *model.Tenant, product *model.Product, currentStock int) error {
	eff := ResolveEffectiveThresholds(product, tenant)
	newLevel := ClassifyLevel(currentStock, eff.Critical, eff.Attention)
	now := time.Now()

	var existing model.Alert
	err := tx.Where("tenant_id = ? AND product_id = ? AND status = ?",
		tenant.ID, product.ID, model.AlertStatusActive).First(&existing).Error
	hasActive := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if newLevel == model.AlertLevelGreen {
		// Healthy products carry no alert row. Close the active one if any.
		if !hasActive {
			return nil
		}
		updates := map[string]interface{}{
			"status":        model.AlertStatusClosed,
			"current_stock": currentStock,
			"closed_at":     now,
			"updated_at":    now,
		}
		if err := tx.Model(&model.Alert{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
			return err
		}
		l.log.Info("alert closed",
			zap.Uint("tenant_id", tenant.ID),
			zap.String("product_id", product.ID),
			zap.Int("stock", currentStock))
		return nil
	}

	if hasActive {
		updates := map[string]interface{}{
			"level":         newLevel,
			"current_stock": currentStock,
			"updated_at":    now,
		}
		// Worsening into red must surface a snoozed alert again. Same-level
		// updates and red->orange improvements preserve the operator's
		// snooze.
		worsenedIntoRed := existing.Level != model.AlertLevelRed && newLevel == model.AlertLevelRed
		if worsenedIntoRed {
			updates["snoozed_until"] = nil
		}
		if err := tx.Model(&model.Alert{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
			return err
		}
		if worsenedIntoRed {
			l.notifyCritical(tenant, product, currentStock, eff.Critical, now)
		}
		return nil
	}

	// No active alert: create one. A concurrent transaction may win the race
	// on the partial unique index, in which case we fall back to updating the
	// row it inserted. The insert runs in a nested transaction (a savepoint
	// when the caller is already transactional) so the unique violation does
	// not abort the enclosing transaction on Postgres.
	alert := model.Alert{
		ID:              uuid.New().String(),
		TenantID:        tenant.ID,
		ProductID:       product.ID,
		Level:           newLevel,
		Status:          model.AlertStatusActive,
		StockAtCreation: currentStock,
		CurrentStock:    currentStock,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	createErr := tx.Transaction(func(inner *gorm.DB) error {
		return inner.Create(&alert).Error
	})
	if createErr != nil {
		var winner model.Alert
		if rerr := tx.Where("tenant_id = ? AND product_id = ? AND status = ?",
			tenant.ID, product.ID, model.AlertStatusActive).First(&winner).Error; rerr != nil {
			return createErr
		}
		updates := map[string]interface{}{
			"level":         newLevel,
			"current_stock": currentStock,
			"updated_at":    now,
		}
		if winner.Level != model.AlertLevelRed && newLevel == model.AlertLevelRed {
			updates["snoozed_until"] = nil
		}
		if uerr := tx.Model(&model.Alert{}).Where("id = ?", winner.ID).Updates(updates).Error; uerr != nil {
			return uerr
		}
		if winner.Level != model.AlertLevelRed && newLevel == model.AlertLevelRed {
			l.notifyCritical(tenant, product, currentStock, eff.Critical, now)
		}
		return nil
	}

	l.log.Info("alert opened",
		zap.Uint("tenant_id", tenant.ID),
		zap.String("product_id", product.ID),
		zap.String("level", newLevel),
		zap.Int("stock", currentStock))

	if newLevel == model.AlertLevelRed {
		// Fresh transition into red: no prior alert existed.
		l.notifyCritical(tenant, product, currentStock, eff.Critical, now)
	}
	return nil
}

func (l *Lifecycle) notifyCritical(tenant *model.Tenant, product *model.Product, stock, threshold int, at time.Time) {
	if l.notifier == nil {
		return
	}
	l.notifier.NotifyCritical(CriticalNotification{
		TenantID:    tenant.ID,
		ProductID:   product.ID,
		ProductName: product.Name,
		Stock:       stock,
		Threshold:   threshold,
		OccurredAt:  at,
	})
}

// Snooze suppresses an active alert for the given duration. Fails with
// ErrAlertNotFound when the id does not resolve within the tenant and with
// ErrAlertNotActive when the alert is already closed.
func (l *Lifecycle) Snooze(db *gorm.DB, tenantID uint, alertID string, d time.Duration) (*model.Alert, error) {
	var alert model.Alert
	if err := db.Where("tenant_id = ?", tenantID).First(&alert, "id = ?", alertID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	if alert.Status != model.AlertStatusActive {
		return nil, ErrAlertNotActive
	}

	until := time.Now().Add(d)
	if err := db.Model(&model.Alert{}).Where("id = ?", alert.ID).
		Updates(map[string]interface{}{"snoozed_until": until, "updated_at": time.Now()}).Error; err != nil {
		return nil, err
	}
	alert.SnoozedUntil = &until
	return &alert, nil
}

// MarkHandled closes an active alert as a manual acknowledgment. Same
// preconditions as Snooze.
func (l *Lifecycle) MarkHandled(db *gorm.DB, tenantID uint, alertID string) (*model.Alert, error) {
	var alert model.Alert
	if err := db.Where("tenant_id = ?", tenantID).First(&alert, "id = ?", alertID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	if alert.Status != model.AlertStatusActive {
		return nil, ErrAlertNotActive
	}

	now := time.Now()
	if err := db.Model(&model.Alert{}).Where("id = ?", alert.ID).
		Updates(map[string]interface{}{
			"status":     model.AlertStatusClosed,
			"closed_at":  now,
			"updated_at": now,
		}).Error; err != nil {
		return nil, err
	}
	alert.Status = model.AlertStatusClosed
	alert.ClosedAt = &now
	return &alert, nil
}

// VisibleAlerts lists the tenant's active alerts, excluding snoozed ones
// unless includeSnoozed is set. Snooze expiry requires no state change; the
// predicate is evaluated against the current time.
func (l *Lifecycle) VisibleAlerts(db *gorm.DB, tenantID uint, includeSnoozed bool) ([]model.Alert, error) {
	query := db.Where("tenant_id = ? AND status = ?", tenantID, model.AlertStatusActive)
	if !includeSnoozed {
		query = query.Where("snoozed_until IS NULL OR snoozed_until <= ?", time.Now())
	}

	var alerts []model.Alert
	if err := query.Order("created_at DESC").Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}
