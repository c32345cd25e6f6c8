package syncer

import "encoding/json"

// Entity types accepted by the sync protocol
const (
	EntityProduct       = "product"
	EntityStockMovement = "stockMovement"
)

// Operation types
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Per-operation result statuses
const (
	StatusSuccess         = "success"
	StatusDuplicate       = "duplicate"
	StatusValidationError = "validation_error"
	StatusTenantMismatch  = "tenant_mismatch"
	StatusNotFound        = "not_found"
)

// Batch-level error codes
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeTenantMismatch  = "TENANT_MISMATCH"
	CodeRateLimited     = "RATE_LIMITED"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeInternalError   = "INTERNAL_ERROR"
)

// Operation is one client-queued mutation. The idempotency key must equal the
// operation id; the equality is a protocol invariant, validated before any
// persistence.
type Operation struct {
	OperationID    string          `json:"operationId"`
	IdempotencyKey string          `json:"idempotencyKey"`
	EntityID       string          `json:"entityId"`
	EntityType     string          `json:"entityType"`
	OperationType  string          `json:"operationType"`
	TenantID       uint            `json:"tenantId,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// Request is a batch of operations plus the client's last checkpoint.
type Request struct {
	Checkpoint string      `json:"checkpoint,omitempty"`
	Operations []Operation `json:"operations"`
}

// Result reports the outcome of a single operation. Results preserve the
// input order of the batch.
type Result struct {
	OperationID string      `json:"operationId"`
	Status      string      `json:"status"`
	Code        string      `json:"code,omitempty"`
	Message     string      `json:"message,omitempty"`
	ServerState interface{} `json:"serverState,omitempty"`
}

// Response carries the per-operation results and a fresh checkpoint token.
type Response struct {
	Checkpoint string   `json:"checkpoint"`
	Results    []Result `json:"results"`
}

// BatchError rejects an entire sync request before any persistence.
type BatchError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *BatchError) Error() string {
	return e.Code + ": " + e.Message
}

// MovementPayload is the payload of a stockMovement operation.
type MovementPayload struct {
	ProductID string `json:"productId"`
	Type      string `json:"type"`
	Quantity  int    `json:"quantity"`
}

// ProductPayload is the payload of a product operation. Pointer fields
// distinguish "absent" from zero values so updates are last-write-wins per
// provided field. Quantity is deliberately absent: stock changes only flow
// through movements.
type ProductPayload struct {
	Name                     *string  `json:"name,omitempty"`
	Description              *string  `json:"description,omitempty"`
	SKU                      *string  `json:"sku,omitempty"`
	Price                    *float64 `json:"price,omitempty"`
	CustomCriticalThreshold  *int     `json:"customCriticalThreshold,omitempty"`
	CustomAttentionThreshold *int     `json:"customAttentionThreshold,omitempty"`
}
