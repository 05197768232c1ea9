package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"devops-sentinel/internal/domain"
	"devops-sentinel/internal/infra/logger"
)

type testBus struct {
	mu       sync.Mutex
	handlers []domain.EventHandler
}

func (b *testBus) Publish(ctx context.Context, event domain.Event) {
	b.mu.Lock()
	hs := make([]domain.EventHandler, len(b.handlers))
	copy(hs, b.handlers)
	b.mu.Unlock()
	for _, h := range hs {
		h(ctx, event)
	}
}

func (b *testBus) Subscribe(_ domain.EventType, _ domain.EventHandler) func() { return func() {} }

func (b *testBus) SubscribeAll(handler domain.EventHandler) func() {
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		b.handlers = nil
		b.mu.Unlock()
	}
}

type stubHandler struct {
	err error
}

func (h *stubHandler) Handle(_ context.Context, sessionID, text string, _ map[string]string) (*domain.AggregatedResponse, error) {
	if h.err != nil {
		return nil, h.err
	}
	return &domain.AggregatedResponse{
		SessionID:     sessionID,
		RequestID:     "req-1",
		OverallStatus: domain.StatusComplete,
		Text:          "handled: " + text,
	}, nil
}

func (h *stubHandler) Status() []domain.AgentStatus {
	return []domain.AgentStatus{{ID: "infrastructure_monitor"}}
}

func startTestServer(t *testing.T, handler RequestHandler, bus domain.EventBus) *Server {
	t.Helper()
	srv := NewServer(handler, bus, "127.0.0.1:0", logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() { _ = srv.Start(ctx) }()
	for i := 0; srv.BoundAddr() == ""; i++ {
		if i > 200 {
			t.Fatal("gateway never bound")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return srv
}

func dial(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, "ws://"+srv.BoundAddr()+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close(websocket.StatusNormalClosure, "") })
	return ws
}

func TestRequestResponse(t *testing.T) {
	srv := startTestServer(t, &stubHandler{}, &testBus{})
	ws := dial(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload, _ := json.Marshal(RequestPayload{SessionID: "s1", Text: "check prod health"})
	require.NoError(t, wsjson.Write(ctx, ws, Frame{Type: FrameTypeRequest, ID: 7, Payload: payload}))

	var frame Frame
	require.NoError(t, wsjson.Read(ctx, ws, &frame))
	require.Equal(t, FrameTypeResponse, frame.Type)
	assert.Equal(t, uint64(7), frame.ID)
	assert.Empty(t, frame.Error)

	var resp domain.AggregatedResponse
	require.NoError(t, json.Unmarshal(frame.Payload, &resp))
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, domain.StatusComplete, resp.OverallStatus)
	assert.Equal(t, "handled: check prod health", resp.Text)
}

func TestRequestErrorSurfaced(t *testing.T) {
	handler := &stubHandler{err: fmt.Errorf("%w: empty request text", domain.ErrInvalidInput)}
	srv := startTestServer(t, handler, &testBus{})
	ws := dial(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload, _ := json.Marshal(RequestPayload{SessionID: "s1", Text: ""})
	require.NoError(t, wsjson.Write(ctx, ws, Frame{Type: FrameTypeRequest, ID: 1, Payload: payload}))

	var frame Frame
	require.NoError(t, wsjson.Read(ctx, ws, &frame))
	assert.Contains(t, frame.Error, "invalid input")
}

func TestEventForwarding(t *testing.T) {
	bus := &testBus{}
	srv := startTestServer(t, &stubHandler{}, bus)
	ws := dial(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bus.Publish(ctx, domain.Event{Type: domain.EventSweepFired, At: time.Now()})

	var frame Frame
	require.NoError(t, wsjson.Read(ctx, ws, &frame))
	require.Equal(t, FrameTypeEvent, frame.Type)

	var event domain.Event
	require.NoError(t, json.Unmarshal(frame.Payload, &event))
	assert.Equal(t, domain.EventSweepFired, event.Type)
}

func TestAgentsRoute(t *testing.T) {
	srv := startTestServer(t, &stubHandler{}, &testBus{})

	resp, err := http.Get("http://" + srv.BoundAddr() + "/api/v1/agents")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var statuses []domain.AgentStatus
	require.NoError(t, json.Unmarshal(body, &statuses))
	require.Len(t, statuses, 1)
	assert.Equal(t, "infrastructure_monitor", statuses[0].ID)
}
