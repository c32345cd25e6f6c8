package model

import (
	"time"

	"gorm.io/gorm"
)

// Product represents the product master data. IDs are client-generated UUIDs
// so offline devices can create products before they ever reach the server.
type Product struct {
	ID          string  `json:"id" gorm:"type:varchar(36);primaryKey"`
	TenantID    uint    `json:"tenant_id" gorm:"index;not null"`
	Name        string  `json:"name" gorm:"type:varchar(255);not null"`
	Description string  `json:"description" gorm:"type:text"`
	SKU         string  `json:"sku" gorm:"type:varchar(100)"`
	Price       float64 `json:"price"`

	// Quantity is the authoritative current stock. It is mutated exclusively
	// through stock movements (atomic SQL increments), never written directly
	// by product updates.
	Quantity int `json:"quantity" gorm:"not null;default:0"`

	// Custom alert thresholds. The pair is effective only when both values
	// are present, positive and critical < attention; otherwise the tenant
	// defaults apply.
	CustomCriticalThreshold  *int `json:"custom_critical_threshold"`
	CustomAttentionThreshold *int `json:"custom_attention_threshold"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
