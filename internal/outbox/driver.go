package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"inventory-service/internal/syncer"
)

// maxBatchSize is the protocol cap on operations per sync request.
const maxBatchSize = 100

// Driver drains the outbox against the server's sync endpoint. It batches
// pending entries, posts them, and applies the per-operation results:
// success/duplicate complete the entry, terminal failures mark it failed and
// flag the entity as conflicted, and transport failures requeue the whole
// batch for a later flush with the same operation ids.
type Driver struct {
	store     *Store
	endpoint  string
	authToken string
	batchSize int
	client    *http.Client
	log       *zap.Logger
}

// NewDriver creates a sync driver for a device-local store.
func NewDriver(store *Store, endpoint, authToken string, batchSize int, log *zap.Logger) *Driver {
	if batchSize <= 0 || batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{
		store:     store,
		endpoint:  endpoint,
		authToken: authToken,
		batchSize: batchSize,
		client:    &http.Client{Timeout: 30 * time.Second},
		log:       log,
	}
}

// Flush sends one batch of pending entries and reconciles the results.
// It returns the number of entries that reached a terminal outcome.
func (d *Driver) Flush(ctx context.Context) (int, error) {
	entries, err := d.store.ClaimPending(d.batchSize)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	checkpoint, err := d.store.Checkpoint()
	if err != nil {
		return 0, err
	}

	req := syncer.Request{Checkpoint: checkpoint}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.OperationID)
		req.Operations = append(req.Operations, syncer.Operation{
			OperationID:    entry.OperationID,
			IdempotencyKey: entry.OperationID,
			EntityID:       entry.EntityID,
			EntityType:     entry.EntityType,
			OperationType:  entry.OperationType,
			Payload:        json.RawMessage(entry.Payload),
		})
	}

	resp, batchErr, err := d.post(ctx, &req)
	if err != nil {
		// Transport failure: the batch goes back to pending and is retried
		// later with the same operation ids.
		if rerr := d.store.Requeue(ids); rerr != nil {
			d.log.Error("failed to requeue after transport failure", zap.Error(rerr))
		}
		return 0, err
	}
	if batchErr != nil {
		if batchErr.Code == syncer.CodeRateLimited || batchErr.Code == syncer.CodeInternalError {
			// Transient: back off and retry the same batch.
			if rerr := d.store.Requeue(ids); rerr != nil {
				d.log.Error("failed to requeue after transient rejection", zap.Error(rerr))
			}
			return 0, fmt.Errorf("sync rejected transiently: %s", batchErr.Code)
		}
		// Batch-level rejection had zero server-side effects; the whole
		// batch is terminally failed and surfaced to the user.
		for _, id := range ids {
			if ferr := d.store.Fail(id, batchErr.Code+": "+batchErr.Message); ferr != nil {
				d.log.Error("failed to mark entry failed", zap.String("operation_id", id), zap.Error(ferr))
			}
		}
		return len(ids), fmt.Errorf("sync batch rejected: %s", batchErr.Code)
	}

	terminal := 0
	reported := make(map[string]bool, len(resp.Results))
	for _, result := range resp.Results {
		reported[result.OperationID] = true
		switch result.Status {
		case syncer.StatusSuccess, syncer.StatusDuplicate:
			if err := d.store.Complete(result.OperationID, result.ServerState); err != nil {
				d.log.Error("failed to complete entry", zap.String("operation_id", result.OperationID), zap.Error(err))
				continue
			}
			terminal++
		case syncer.StatusValidationError, syncer.StatusTenantMismatch, syncer.StatusNotFound:
			if err := d.store.Fail(result.OperationID, result.Status+": "+result.Message); err != nil {
				d.log.Error("failed to mark entry failed", zap.String("operation_id", result.OperationID), zap.Error(err))
				continue
			}
			terminal++
		default:
			// Unknown status: leave the entry for a later flush.
			if err := d.store.Requeue([]string{result.OperationID}); err != nil {
				d.log.Error("failed to requeue entry", zap.String("operation_id", result.OperationID), zap.Error(err))
			}
		}
	}

	// Entries the server never reported on would otherwise stay claimed as
	// processing forever; send them around again.
	var unreported []string
	for _, id := range ids {
		if !reported[id] {
			unreported = append(unreported, id)
		}
	}
	if len(unreported) > 0 {
		d.log.Warn("sync response missing results for claimed entries",
			zap.Int("count", len(unreported)))
		if err := d.store.Requeue(unreported); err != nil {
			d.log.Error("failed to requeue unreported entries", zap.Error(err))
		}
	}

	if err := d.store.SetCheckpoint(resp.Checkpoint); err != nil {
		d.log.Error("failed to persist checkpoint", zap.Error(err))
	}

	d.log.Info("outbox flushed",
		zap.Int("sent", len(entries)),
		zap.Int("terminal", terminal))
	return terminal, nil
}

// Run flushes the outbox on the given interval until the context is
// cancelled. Transport errors are logged and retried on the next tick.
func (d *Driver) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.Flush(ctx); err != nil {
				d.log.Warn("outbox flush failed", zap.Error(err))
			}
		}
	}
}

func (d *Driver) post(ctx context.Context, req *syncer.Request) (*syncer.Response, *syncer.BatchError, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if d.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+d.authToken)
	}
	if len(req.Operations) == 1 {
		httpReq.Header.Set("Idempotency-Key", req.Operations[0].OperationID)
	}

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusOK {
		var resp syncer.Response
		if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
			return nil, nil, err
		}
		return &resp, nil, nil
	}

	var batchErr syncer.BatchError
	if err := json.NewDecoder(httpResp.Body).Decode(&batchErr); err != nil || batchErr.Code == "" {
		return nil, nil, fmt.Errorf("sync endpoint returned status %d", httpResp.StatusCode)
	}
	return nil, &batchErr, nil
}
