package trackclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoply/tracking/internal/domain"
)

// newTrackingServer runs a websocket endpoint at /ws/orders/{id} and hands
// each accepted connection to handle. It returns a ws:// base URL and a
// counter of dial attempts.
func newTrackingServer(t *testing.T, handle func(conn *websocket.Conn, orderID string)) (string, *int32, func()) {
	t.Helper()

	var dials int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&dials, 1)
		orderID := strings.TrimPrefix(r.URL.Path, "/ws/orders/")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handle(conn, orderID)
	}))

	return "ws" + strings.TrimPrefix(srv.URL, "http"), &dials, srv.Close
}

func writeStatus(t *testing.T, conn *websocket.Conn, status domain.OrderStatus) {
	t.Helper()
	payload, err := json.Marshal(status)
	require.NoError(t, err)
	_ = conn.WriteMessage(websocket.TextMessage, payload)
}

// holdOpen blocks until the peer closes the connection.
func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			conn.Close()
			return
		}
	}
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		floor   time.Duration
		attempt int
		want    time.Duration
	}{
		{time.Second, 1, time.Second},
		{time.Second, 2, 2 * time.Second},
		{time.Second, 3, 4 * time.Second},
		{time.Second, 4, 8 * time.Second},
		{time.Second, 5, 16 * time.Second},
		{250 * time.Millisecond, 3, time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, backoffDelay(tt.floor, tt.attempt),
			"floor %s attempt %d", tt.floor, tt.attempt)
	}
}

func TestSubscribeReceivesStatus(t *testing.T) {
	base, _, stop := newTrackingServer(t, func(conn *websocket.Conn, orderID string) {
		writeStatus(t, conn, domain.OrderStatus{
			OrderID:     orderID,
			Status:      domain.StatusShipped,
			LastUpdated: time.Now(),
		})
		holdOpen(conn)
	})
	defer stop()

	client := NewClient(base, WithBackoffFloor(10*time.Millisecond))
	defer client.Disconnect()

	statusCh := make(chan domain.OrderStatus, 4)
	remove := client.Subscribe("ORD-1", func(st domain.OrderStatus) { statusCh <- st })
	defer remove()

	select {
	case st := <-statusCh:
		assert.Equal(t, "ORD-1", st.OrderID)
		assert.Equal(t, domain.StatusShipped, st.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status update")
	}

	assert.Equal(t, StateConnected, client.State())
	cached, ok := client.GetOrderStatus("ORD-1")
	assert.True(t, ok)
	assert.Equal(t, domain.StatusShipped, cached.Status)
}

func TestMalformedPayloadDropsMessage(t *testing.T) {
	base, _, stop := newTrackingServer(t, func(conn *websocket.Conn, orderID string) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"lastUpdated":"2026-08-30T10:00:00Z"}`))
		writeStatus(t, conn, domain.OrderStatus{
			OrderID:     orderID,
			Status:      domain.StatusProcessing,
			LastUpdated: time.Now(),
		})
		holdOpen(conn)
	})
	defer stop()

	client := NewClient(base, WithBackoffFloor(10*time.Millisecond))
	defer client.Disconnect()

	var errCount int32
	client.OnError(func(error) { atomic.AddInt32(&errCount, 1) })

	statusCh := make(chan domain.OrderStatus, 4)
	client.Subscribe("ORD-1", func(st domain.OrderStatus) { statusCh <- st })

	select {
	case st := <-statusCh:
		assert.Equal(t, domain.StatusProcessing, st.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("valid payload after malformed ones was not delivered")
	}

	// one error per bad payload, and the connection survived both
	assert.Equal(t, int32(2), atomic.LoadInt32(&errCount))
	assert.Equal(t, StateConnected, client.State())
}

func TestUpdatesFilteredPerOrder(t *testing.T) {
	base, _, stop := newTrackingServer(t, func(conn *websocket.Conn, _ string) {
		writeStatus(t, conn, domain.OrderStatus{OrderID: "ORD-2", Status: domain.StatusDelivered, LastUpdated: time.Now()})
		writeStatus(t, conn, domain.OrderStatus{OrderID: "ORD-1", Status: domain.StatusProcessing, LastUpdated: time.Now()})
		holdOpen(conn)
	})
	defer stop()

	client := NewClient(base, WithBackoffFloor(10*time.Millisecond))
	defer client.Disconnect()

	statusCh := make(chan domain.OrderStatus, 4)
	client.Subscribe("ORD-1", func(st domain.OrderStatus) { statusCh <- st })

	select {
	case st := <-statusCh:
		assert.Equal(t, "ORD-1", st.OrderID, "listener must only see its own order")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status update")
	}

	// the shared cache still recorded the other order
	cached, ok := client.GetOrderStatus("ORD-2")
	assert.True(t, ok)
	assert.Equal(t, domain.StatusDelivered, cached.Status)
}

func TestReconnectAfterConnectionDrop(t *testing.T) {
	var dials *int32
	var base string
	var stop func()
	base, dials, stop = newTrackingServer(t, func(conn *websocket.Conn, orderID string) {
		n := atomic.LoadInt32(dials)
		if n == 1 {
			writeStatus(t, conn, domain.OrderStatus{OrderID: orderID, Status: domain.StatusProcessing, LastUpdated: time.Now()})
			conn.Close()
			return
		}
		writeStatus(t, conn, domain.OrderStatus{OrderID: orderID, Status: domain.StatusShipped, LastUpdated: time.Now()})
		holdOpen(conn)
	})
	defer stop()

	client := NewClient(base, WithBackoffFloor(5*time.Millisecond))
	defer client.Disconnect()

	var disconnects int32
	client.OnDisconnected(func() { atomic.AddInt32(&disconnects, 1) })

	statusCh := make(chan domain.OrderStatus, 4)
	client.Subscribe("ORD-1", func(st domain.OrderStatus) { statusCh <- st })

	var seen []domain.Status
	deadline := time.After(3 * time.Second)
	for len(seen) == 0 || seen[len(seen)-1] != domain.StatusShipped {
		select {
		case st := <-statusCh:
			seen = append(seen, st.Status)
		case <-deadline:
			t.Fatalf("never received post-reconnect update, got %v", seen)
		}
	}

	assert.GreaterOrEqual(t, atomic.LoadInt32(dials), int32(2))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&disconnects), int32(1))
	assert.Equal(t, StateConnected, client.State())
}

func TestExplicitDisconnectDoesNotReconnect(t *testing.T) {
	base, dials, stop := newTrackingServer(t, func(conn *websocket.Conn, _ string) {
		holdOpen(conn)
	})
	defer stop()

	client := NewClient(base, WithBackoffFloor(time.Millisecond))
	client.Connect("ORD-1")

	require.Eventually(t, func() bool {
		return client.State() == StateConnected
	}, 2*time.Second, 5*time.Millisecond)

	client.Disconnect()
	assert.Equal(t, StateDisconnected, client.State())

	// give any stray reconnect timer plenty of room to fire
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(dials))
	assert.Equal(t, StateDisconnected, client.State())
}

func TestRetriesExhausted(t *testing.T) {
	// nothing listens here; every dial fails
	client := NewClient("ws://127.0.0.1:1",
		WithBackoffFloor(time.Millisecond),
		WithMaxRetries(3),
	)
	defer client.Disconnect()

	var disconnects int32
	client.OnDisconnected(func() { atomic.AddInt32(&disconnects, 1) })

	errCh := make(chan error, 8)
	client.OnError(func(err error) { errCh <- err })

	client.Connect("ORD-1")

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrRetriesExhausted)
	case <-time.After(3 * time.Second):
		t.Fatal("retries were never exhausted")
	}

	// initial failure plus one per retry
	assert.Equal(t, int32(4), atomic.LoadInt32(&disconnects))
	assert.Equal(t, StateDisconnected, client.State())

	// exhaustion is terminal: no further attempts, no further errors
	select {
	case err := <-errCh:
		t.Fatalf("unexpected error after exhaustion: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeKeepsSharedConnection(t *testing.T) {
	base, _, stop := newTrackingServer(t, func(conn *websocket.Conn, _ string) {
		holdOpen(conn)
	})
	defer stop()

	client := NewClient(base, WithBackoffFloor(10*time.Millisecond))
	defer client.Disconnect()

	client.Subscribe("ORD-1", func(domain.OrderStatus) {})
	client.Subscribe("ORD-2", func(domain.OrderStatus) {})

	require.Eventually(t, func() bool {
		return client.State() == StateConnected
	}, 2*time.Second, 5*time.Millisecond)

	client.Unsubscribe("ORD-1")
	assert.Equal(t, StateConnected, client.State(), "other orders still have listeners")

	client.Unsubscribe("ORD-2")
	assert.Equal(t, StateDisconnected, client.State())
}

func TestConnectedHandlerRemoval(t *testing.T) {
	base, _, stop := newTrackingServer(t, func(conn *websocket.Conn, _ string) {
		holdOpen(conn)
	})
	defer stop()

	client := NewClient(base, WithBackoffFloor(10*time.Millisecond))
	defer client.Disconnect()

	var calls int32
	remove := client.OnConnected(func() { atomic.AddInt32(&calls, 1) })
	remove()

	client.Connect("ORD-1")
	require.Eventually(t, func() bool {
		return client.State() == StateConnected
	}, 2*time.Second, 5*time.Millisecond)

	assert.Zero(t, atomic.LoadInt32(&calls))
}
