package model

import (
	"time"

	"gorm.io/gorm"
)

// Tenant represents an isolated customer scope. Every product, movement and
// alert row belongs to exactly one tenant.
type Tenant struct {
	ID      uint   `json:"id" gorm:"primaryKey"`
	Name    string `json:"name" gorm:"type:varchar(100);uniqueIndex"`
	OwnerID uint   `json:"owner_id" gorm:"index;not null"`
	Active  bool   `json:"active" gorm:"default:true"`

	// Default alert thresholds applied to products without a valid custom
	// pair. Invariant: 0 < critical < attention, enforced at the update
	// boundary.
	DefaultCriticalThreshold  int `json:"default_critical_threshold" gorm:"not null;default:5"`
	DefaultAttentionThreshold int `json:"default_attention_threshold" gorm:"not null;default:20"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
