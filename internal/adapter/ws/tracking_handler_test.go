package ws

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoply/tracking/internal/adapter/logger"
	"github.com/shoply/tracking/internal/domain"
	"github.com/shoply/tracking/internal/interfaces"
)

type fakeTracker struct {
	mu            sync.Mutex
	seeded        map[string]domain.OrderStatus
	observers     map[string]map[string]interfaces.ObserverFunc
	unsubscribed  []string
	subscribeCall int
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		seeded:    make(map[string]domain.OrderStatus),
		observers: make(map[string]map[string]interfaces.ObserverFunc),
	}
}

func (f *fakeTracker) Subscribe(_ context.Context, orderID, observerID string, fn interfaces.ObserverFunc) {
	f.mu.Lock()
	f.subscribeCall++
	set, ok := f.observers[orderID]
	if !ok {
		set = make(map[string]interfaces.ObserverFunc)
		f.observers[orderID] = set
	}
	set[observerID] = fn
	seeded, hasSeed := f.seeded[orderID]
	f.mu.Unlock()

	if hasSeed {
		fn(seeded)
	}
}

func (f *fakeTracker) Unsubscribe(orderID, observerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.observers[orderID], observerID)
	f.unsubscribed = append(f.unsubscribed, observerID)
}

func (f *fakeTracker) UpdateOrderStatus(_ context.Context, status domain.OrderStatus, _ string) error {
	f.mu.Lock()
	fns := make([]interfaces.ObserverFunc, 0)
	for _, fn := range f.observers[status.OrderID] {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(status)
	}
	return nil
}

func (f *fakeTracker) GetOrderStatus(orderID string) (domain.OrderStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.seeded[orderID]
	return st, ok
}

func (f *fakeTracker) unsubscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.unsubscribed)
}

func (f *fakeTracker) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribeCall
}

func startTrackingEndpoint(t *testing.T, tracker interfaces.OrderTracker) (*httptest.Server, string) {
	t.Helper()
	handler := NewTrackingHandler(tracker, logger.NewWithWriter("ws-test", io.Discard))
	srv := httptest.NewServer(http.HandlerFunc(handler.HandleTracking))
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readStatus(t *testing.T, conn *websocket.Conn) domain.OrderStatus {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var status domain.OrderStatus
	require.NoError(t, json.Unmarshal(data, &status))
	return status
}

func TestHandleTrackingSeedsNewConnection(t *testing.T) {
	tracker := newFakeTracker()
	eta := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	tracker.seeded["ORD-1"] = domain.OrderStatus{
		OrderID:           "ORD-1",
		Status:            domain.StatusShipped,
		LastUpdated:       time.Now().UTC().Truncate(time.Second),
		EstimatedDelivery: &eta,
	}

	srv, base := startTrackingEndpoint(t, tracker)
	defer srv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(base+"/ws/orders/ORD-1", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	status := readStatus(t, conn)
	assert.Equal(t, "ORD-1", status.OrderID)
	assert.Equal(t, domain.StatusShipped, status.Status)
	require.NotNil(t, status.EstimatedDelivery)
	assert.Equal(t, eta, status.EstimatedDelivery.UTC())
}

func TestHandleTrackingPushesUpdates(t *testing.T) {
	tracker := newFakeTracker()
	srv, base := startTrackingEndpoint(t, tracker)
	defer srv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(base+"/ws/orders/ORD-1", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	// wait for the observer registration before fanning out
	require.Eventually(t, func() bool {
		tracker.mu.Lock()
		defer tracker.mu.Unlock()
		return len(tracker.observers["ORD-1"]) == 1
	}, time.Second, 5*time.Millisecond)

	loc := &domain.Location{Lat: 40.7128, Lng: -74.006}
	update := domain.OrderStatus{
		OrderID:     "ORD-1",
		Status:      domain.StatusProcessing,
		Location:    loc,
		LastUpdated: time.Now().UTC(),
	}
	require.NoError(t, tracker.UpdateOrderStatus(context.Background(), update, "warehouse-1"))

	status := readStatus(t, conn)
	assert.Equal(t, domain.StatusProcessing, status.Status)
	require.NotNil(t, status.Location)
	assert.InDelta(t, 40.7128, status.Location.Lat, 0.0001)
}

func TestHandleTrackingWireContract(t *testing.T) {
	tracker := newFakeTracker()
	tracker.seeded["ORD-1"] = domain.OrderStatus{
		OrderID:     "ORD-1",
		Status:      domain.StatusPending,
		LastUpdated: time.Now().UTC(),
	}

	srv, base := startTrackingEndpoint(t, tracker)
	defer srv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(base+"/ws/orders/ORD-1", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Contains(t, payload, "orderId")
	assert.Contains(t, payload, "status")
	assert.Contains(t, payload, "lastUpdated")
	assert.NotContains(t, payload, "location", "absent location must be omitted")
	assert.NotContains(t, payload, "estimatedDelivery", "absent estimate must be omitted")
}

func TestHandleTrackingUnsubscribesOnClose(t *testing.T) {
	tracker := newFakeTracker()
	srv, base := startTrackingEndpoint(t, tracker)
	defer srv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(base+"/ws/orders/ORD-1", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool {
		return tracker.subscribeCount() == 1
	}, time.Second, 5*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return tracker.unsubscribeCount() == 1
	}, time.Second, 5*time.Millisecond)

	tracker.mu.Lock()
	remaining := len(tracker.observers["ORD-1"])
	tracker.mu.Unlock()
	assert.Zero(t, remaining)
}

func TestHandleTrackingRejectsMissingOrderID(t *testing.T) {
	tracker := newFakeTracker()
	srv, _ := startTrackingEndpoint(t, tracker)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws/orders/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
