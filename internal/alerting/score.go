package alerting

import (
	"math"

	"gorm.io/gorm"

	"inventory-service/internal/model"
)

// Weights applied to the share of products in each unhealthy band when
// computing the tenant health score.
const (
	redWeight    = 40.0
	orangeWeight = 15.0
)

// HealthScore computes a 0-100 inventory health aggregate for a tenant:
// 100 minus the weighted shares of red and orange products, rounded to the
// nearest integer. A tenant with no products scores 100.
func HealthScore(db *gorm.DB, tenantID uint) (int, error) {
	var total int64
	if err := db.Model(&model.Product{}).Where("tenant_id = ?", tenantID).Count(&total).Error; err != nil {
		return 0, err
	}
	if total == 0 {
		return 100, nil
	}

	var red, orange int64
	if err := db.Model(&model.Alert{}).
		Where("tenant_id = ? AND status = ? AND level = ?", tenantID, model.AlertStatusActive, model.AlertLevelRed).
		Count(&red).Error; err != nil {
		return 0, err
	}
	if err := db.Model(&model.Alert{}).
		Where("tenant_id = ? AND status = ? AND level = ?", tenantID, model.AlertStatusActive, model.AlertLevelOrange).
		Count(&orange).Error; err != nil {
		return 0, err
	}

	penalty := float64(red)/float64(total)*redWeight + float64(orange)/float64(total)*orangeWeight
	return int(math.Round(100 - penalty)), nil
}
