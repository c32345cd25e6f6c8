package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory-service/internal/alerting"
)

func testNotification() alerting.CriticalNotification {
	return alerting.CriticalNotification{
		TenantID:    1,
		ProductID:   "prod-1",
		ProductName: "Widget",
		Stock:       2,
		Threshold:   5,
	}
}

func TestDispatcherDeliversPayload(t *testing.T) {
	received := make(chan alerting.CriticalNotification, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n alerting.CriticalNotification
		require.NoError(t, json.NewDecoder(r.Body).Decode(&n))
		received <- n
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewDispatcher(server.URL, time.Second, 8, nil)
	d.Start()
	d.NotifyCritical(testNotification())
	d.Stop()

	select {
	case n := <-received:
		assert.Equal(t, "prod-1", n.ProductID)
		assert.Equal(t, 2, n.Stock)
	default:
		t.Fatal("notification was not delivered")
	}
}

func TestDispatcherRetriesOnceOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewDispatcher(server.URL, time.Second, 8, nil)
	d.Start()
	d.NotifyCritical(testNotification())
	d.Stop()

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDispatcherGivesUpAfterRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	d := NewDispatcher(server.URL, time.Second, 8, nil)
	d.Start()
	d.NotifyCritical(testNotification())
	d.Stop()

	// First try plus exactly one retry, then the notification is dropped.
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDispatcherDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	d := NewDispatcher(server.URL, time.Second, 8, nil)
	d.Start()
	d.NotifyCritical(testNotification())
	d.Stop()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDispatcherDisabledWithoutURL(t *testing.T) {
	d := NewDispatcher("", time.Second, 8, nil)
	d.Start()
	// Must not block or panic with no configured endpoint.
	d.NotifyCritical(testNotification())
	d.Stop()
}

func TestStopWithoutStartDoesNotBlock(t *testing.T) {
	d := NewDispatcher("http://127.0.0.1:0", time.Second, 1, nil)

	done := make(chan struct{})
	go func() {
		d.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without a running worker")
	}
}

func TestNotifyCriticalNeverBlocksWhenQueueFull(t *testing.T) {
	// No worker running, queue of one: the second enqueue must drop, not block.
	d := NewDispatcher("http://127.0.0.1:0", time.Second, 1, nil)

	done := make(chan struct{})
	go func() {
		d.NotifyCritical(testNotification())
		d.NotifyCritical(testNotification())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("NotifyCritical blocked on a full queue")
	}
}
