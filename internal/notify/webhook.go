package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"inventory-service/internal/alerting"
	"inventory-service/prometheus"
)

// Delivery outcomes as interpreted from the webhook response.
const (
	outcomeOK        = "ok"
	outcomeRetryable = "retryable"
	outcomeFatal     = "fatal"
)

// maxAttempts bounds delivery to the first try plus one retry. Notification
// delivery is best-effort; exhausting retries logs and drops.
const maxAttempts = 2

// Dispatcher delivers critical-alert webhooks outside the business
// transaction. Enqueueing never blocks: the owning transaction enqueues a
// task and returns, and a worker goroutine drains the queue.
type Dispatcher struct {
	url     string
	client  *http.Client
	tasks   chan alerting.CriticalNotification
	done    chan struct{}
	started atomic.Bool
	once    sync.Once
	log     *zap.Logger
}

// NewDispatcher creates a webhook dispatcher. An empty url disables delivery;
// notifications are then dropped silently, which keeps the core independent
// of transport configuration.
func NewDispatcher(url string, timeout time.Duration, queueSize int, log *zap.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		url:    url,
		client: &http.Client{Timeout: timeout},
		tasks:  make(chan alerting.CriticalNotification, queueSize),
		done:   make(chan struct{}),
		log:    log,
	}
}

// Start launches the delivery worker. Repeated calls are no-ops.
func (d *Dispatcher) Start() {
	if d.started.CompareAndSwap(false, true) {
		go d.worker()
	}
}

// Stop closes the queue and waits for the worker to drain it. Returns
// immediately when the worker was never started.
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		close(d.tasks)
	})
	if !d.started.Load() {
		return
	}
	<-d.done
}

// NotifyCritical enqueues a notification without blocking. When the queue is
// full the notification is dropped with a warning; delivery is best-effort
// and must never hold up the transaction that produced it.
func (d *Dispatcher) NotifyCritical(n alerting.CriticalNotification) {
	if d.url == "" {
		return
	}
	select {
	case d.tasks <- n:
	default:
		d.log.Warn("notification queue full, dropping critical alert",
			zap.Uint("tenant_id", n.TenantID),
			zap.String("product_id", n.ProductID))
	}
}

func (d *Dispatcher) worker() {
	defer close(d.done)
	for n := range d.tasks {
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n alerting.CriticalNotification) {
	body, err := json.Marshal(n)
	if err != nil {
		d.log.Error("failed to encode notification", zap.Error(err))
		return
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		outcome, status := d.post(body)
		prometheus.RecordWebhookDelivery(outcome)
		switch outcome {
		case outcomeOK:
			d.log.Info("critical notification delivered",
				zap.Uint("tenant_id", n.TenantID),
				zap.String("product_id", n.ProductID),
				zap.Int("attempt", attempt))
			return
		case outcomeFatal:
			d.log.Error("critical notification rejected",
				zap.Uint("tenant_id", n.TenantID),
				zap.String("product_id", n.ProductID),
				zap.Int("status", status))
			return
		case outcomeRetryable:
			if attempt < maxAttempts {
				continue
			}
			d.log.Error("critical notification dropped after retries",
				zap.Uint("tenant_id", n.TenantID),
				zap.String("product_id", n.ProductID),
				zap.Int("status", status))
		}
	}
}

// post sends the payload once and classifies the result. Timeouts and
// transport errors count as retryable alongside 429 and 5xx.
func (d *Dispatcher) post(body []byte) (string, int) {
	resp, err := d.client.Post(d.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return outcomeRetryable, 0
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return outcomeOK, resp.StatusCode
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return outcomeRetryable, resp.StatusCode
	default:
		return outcomeFatal, resp.StatusCode
	}
}
