package model

import "time"

// Alert levels. Green is never persisted: a green classification closes the
// active alert instead of creating a row.
const (
	AlertLevelRed    = "red"
	AlertLevelOrange = "orange"
	AlertLevelGreen  = "green"
)

// Alert statuses
const (
	AlertStatusActive = "active"
	AlertStatusClosed = "closed"
)

// Alert tracks an unhealthy (red/orange) product. The partial unique index
// guarantees at most one active alert per (tenant, product) even under
// concurrent upserts; application code retries on the constraint violation.
type Alert struct {
	ID        string `json:"id" gorm:"type:varchar(36);primaryKey"`
	TenantID  uint   `json:"tenant_id" gorm:"not null;uniqueIndex:ux_alerts_active,priority:1,where:status = 'active'"`
	ProductID string `json:"product_id" gorm:"type:varchar(36);not null;uniqueIndex:ux_alerts_active,priority:2,where:status = 'active'"`
	Level     string `json:"level" gorm:"type:varchar(10);not null"`
	Status    string `json:"status" gorm:"type:varchar(10);not null;index"`

	StockAtCreation int `json:"stock_at_creation" gorm:"not null"`
	CurrentStock    int `json:"current_stock" gorm:"not null"`

	// SnoozedUntil suppresses the alert from visible listings until the
	// timestamp passes. Expiry needs no state change; visibility is computed.
	SnoozedUntil *time.Time `json:"snoozed_until"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at"`
}

// Visible reports whether the alert should appear in active listings at the
// given instant.
func (a *Alert) Visible(now time.Time) bool {
	if a.Status != AlertStatusActive {
		return false
	}
	return a.SnoozedUntil == nil || !a.SnoozedUntil.After(now)
}
