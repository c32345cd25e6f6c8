package outbox

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Outbox entry statuses
const (
	EntryPending    = "pending"
	EntryProcessing = "processing"
	EntryCompleted  = "completed"
	EntryFailed     = "failed"
)

// Local entity sync states. Transitions are driven by outbox completion and
// failure signals from the sync response, not ad hoc flags.
const (
	StateClean         = "clean"
	StatePendingCreate = "pendingCreate"
	StatePendingUpdate = "pendingUpdate"
	StatePendingDelete = "pendingDelete"
	StateConflict      = "conflict"
)

// Entry is one queued local mutation. The operation id is a fresh UUID that
// doubles as the idempotency key for the whole life of the entry; transport
// retries reuse it so the server can dedup.
type Entry struct {
	OperationID   string `gorm:"type:varchar(36);primaryKey"`
	EntityType    string `gorm:"type:varchar(20);not null"`
	EntityID      string `gorm:"type:varchar(36);not null;index"`
	OperationType string `gorm:"type:varchar(10);not null"`
	Payload       string `gorm:"type:text"`
	Status        string `gorm:"type:varchar(12);not null;index"`
	RetryCount    int    `gorm:"not null;default:0"`
	LastError     string `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EntityState is the optimistic local cache row for one entity.
type EntityState struct {
	EntityType string `gorm:"type:varchar(20);primaryKey"`
	EntityID   string `gorm:"type:varchar(36);primaryKey"`
	SyncState  string `gorm:"type:varchar(16);not null"`
	Data       string `gorm:"type:text"`
	UpdatedAt  time.Time
}

// Cursor persists the last checkpoint returned by the server.
type Cursor struct {
	ID         uint `gorm:"primaryKey"`
	Checkpoint string
	UpdatedAt  time.Time
}

// Store is the device-local SQLite store holding the optimistic entity cache
// and the outbox queue.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open opens (or creates) the local store at path. Use ":memory:" for an
// ephemeral store in tests.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// Single connection: SQLite is single-writer, and pooled connections to a
	// ":memory:" path would each see a different database.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Entry{}, &EntityState{}, &Cursor{}); err != nil {
		return nil, err
	}
	return &Store{db: db, log: log}, nil
}

// Enqueue applies a mutation optimistically to the local cache and queues it
// for sync in the same local transaction. The returned entry carries the
// freshly assigned operation id.
func (s *Store) Enqueue(entityType, entityID, operationType string, payload interface{}) (*Entry, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}

	entry := Entry{
		OperationID:   uuid.New().String(),
		EntityType:    entityType,
		EntityID:      entityID,
		OperationType: operationType,
		Payload:       string(body),
		Status:        EntryPending,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		state := EntityState{
			EntityType: entityType,
			EntityID:   entityID,
			SyncState:  stateForOperation(operationType),
			Data:       string(body),
			UpdatedAt:  time.Now(),
		}
		if err := tx.Save(&state).Error; err != nil {
			return err
		}
		return tx.Create(&entry).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug("outbox entry enqueued",
		zap.String("operation_id", entry.OperationID),
		zap.String("entity_type", entityType),
		zap.String("operation_type", operationType))
	return &entry, nil
}

func stateForOperation(operationType string) string {
	switch operationType {
	case "create":
		return StatePendingCreate
	case "update":
		return StatePendingUpdate
	case "delete":
		return StatePendingDelete
	default:
		return StatePendingUpdate
	}
}

// ClaimPending marks up to limit pending entries as processing and returns
// them in enqueue order.
func (s *Store) ClaimPending(limit int) ([]Entry, error) {
	var entries []Entry
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("status = ?", EntryPending).
			Order("created_at ASC").Limit(limit).Find(&entries).Error; err != nil {
			return err
		}
		for i := range entries {
			if err := tx.Model(&Entry{}).Where("operation_id = ?", entries[i].OperationID).
				Update("status", EntryProcessing).Error; err != nil {
				return err
			}
			entries[i].Status = EntryProcessing
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Complete removes a delivered entry and marks the entity clean, storing the
// server's state snapshot when one was returned. "success" and "duplicate"
// both land here; they are equivalent terminal-success outcomes.
func (s *Store) Complete(operationID string, serverState interface{}) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var entry Entry
		if err := tx.First(&entry, "operation_id = ?", operationID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&Entry{}, "operation_id = ?", operationID).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"sync_state": StateClean,
			"updated_at": time.Now(),
		}
		if serverState != nil {
			if data, err := json.Marshal(serverState); err == nil {
				updates["data"] = string(data)
			}
		}
		return tx.Model(&EntityState{}).
			Where("entity_type = ? AND entity_id = ?", entry.EntityType, entry.EntityID).
			Updates(updates).Error
	})
}

// Fail marks an entry as terminally failed and the entity as conflicted. The
// local data change is kept so the user can resolve it; there is no
// automatic retry out of this state.
func (s *Store) Fail(operationID, reason string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var entry Entry
		if err := tx.First(&entry, "operation_id = ?", operationID).Error; err != nil {
			return err
		}
		if err := tx.Model(&Entry{}).Where("operation_id = ?", operationID).
			Updates(map[string]interface{}{
				"status":     EntryFailed,
				"last_error": reason,
				"updated_at": time.Now(),
			}).Error; err != nil {
			return err
		}
		return tx.Model(&EntityState{}).
			Where("entity_type = ? AND entity_id = ?", entry.EntityType, entry.EntityID).
			Updates(map[string]interface{}{
				"sync_state": StateConflict,
				"updated_at": time.Now(),
			}).Error
	})
}

// Requeue returns claimed entries to pending after a transport failure,
// bumping their retry counts. The operation ids are untouched; idempotent
// replay depends on resending the same ids.
func (s *Store) Requeue(operationIDs []string) error {
	if len(operationIDs) == 0 {
		return nil
	}
	return s.db.Model(&Entry{}).Where("operation_id IN ?", operationIDs).
		Updates(map[string]interface{}{
			"status":      EntryPending,
			"retry_count": gorm.Expr("retry_count + 1"),
			"updated_at":  time.Now(),
		}).Error
}

// Checkpoint returns the last checkpoint received from the server, empty
// when the device has never synced.
func (s *Store) Checkpoint() (string, error) {
	var cursor Cursor
	err := s.db.First(&cursor, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return cursor.Checkpoint, nil
}

// SetCheckpoint stores the checkpoint from the latest sync response.
func (s *Store) SetCheckpoint(checkpoint string) error {
	return s.db.Save(&Cursor{ID: 1, Checkpoint: checkpoint, UpdatedAt: time.Now()}).Error
}

// Entry returns a single outbox entry by operation id.
func (s *Store) Entry(operationID string) (*Entry, error) {
	var entry Entry
	if err := s.db.First(&entry, "operation_id = ?", operationID).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// State returns the local sync state row for an entity.
func (s *Store) State(entityType, entityID string) (*EntityState, error) {
	var state EntityState
	if err := s.db.First(&state, "entity_type = ? AND entity_id = ?", entityType, entityID).Error; err != nil {
		return nil, err
	}
	return &state, nil
}
