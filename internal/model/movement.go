package model

import "time"

// Movement types
const (
	MovementEntry = "entry"
	MovementExit  = "exit"
)

// StockMovement is one row of the append-only stock ledger. A product's
// quantity equals the signed sum of its movements (entry: +, exit: -).
// Rows are immutable once created.
type StockMovement struct {
	ID        string `json:"id" gorm:"type:varchar(36);primaryKey"`
	TenantID  uint   `json:"tenant_id" gorm:"not null;uniqueIndex:ux_movements_tenant_idem,priority:1;index:idx_movements_product,priority:1"`
	ProductID string `json:"product_id" gorm:"type:varchar(36);not null;index:idx_movements_product,priority:2"`
	UserID    uint   `json:"user_id" gorm:"not null"`
	Type      string `json:"type" gorm:"type:varchar(10);not null"`
	Quantity  int    `json:"quantity" gorm:"not null"`

	// IdempotencyKey dedups replayed operations, unique per tenant.
	IdempotencyKey string `json:"idempotency_key" gorm:"type:varchar(64);not null;uniqueIndex:ux_movements_tenant_idem,priority:2"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// Delta returns the signed quantity this movement applies to the product.
func (m *StockMovement) Delta() int {
	if m.Type == MovementExit {
		return -m.Quantity
	}
	return m.Quantity
}
