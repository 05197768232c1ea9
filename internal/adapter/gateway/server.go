package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"devops-sentinel/internal/domain"
)

// RequestHandler is the orchestration entrypoint the gateway fronts.
type RequestHandler interface {
	Handle(ctx context.Context, sessionID, text string, metadata map[string]string) (*domain.AggregatedResponse, error)
	Status() []domain.AgentStatus
}

// clientConn tracks one WebSocket connection.
type clientConn struct {
	ws        *websocket.Conn
	sendCh    chan Frame // buffered outbound queue
	done      chan struct{}
	closeOnce sync.Once
}

// Server is the WebSocket gateway. Operator clients send request frames
// and receive one response frame per request plus a live feed of
// orchestration events. It also serves the agent status route over
// plain HTTP.
type Server struct {
	handler   RequestHandler
	bus       domain.EventBus
	logger    *slog.Logger
	addr      string
	clients   sync.Map // connID (uint64) -> *clientConn
	httpSrv   *http.Server
	boundAddr string
	nextID    atomic.Uint64
	unsubAll  func()
}

func NewServer(handler RequestHandler, bus domain.EventBus, addr string, logger *slog.Logger) *Server {
	return &Server{
		handler: handler,
		bus:     bus,
		logger:  logger,
		addr:    addr,
	}
}

// Start accepts connections until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/api/v1/agents", s.handleAgents)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()

	s.httpSrv = &http.Server{Handler: mux}

	// Forward all orchestration events to connected clients.
	s.unsubAll = s.bus.SubscribeAll(func(_ context.Context, event domain.Event) {
		payload, err := json.Marshal(event)
		if err != nil {
			return
		}
		frame := Frame{Type: FrameTypeEvent, Payload: payload}
		s.clients.Range(func(_, value any) bool {
			cc := value.(*clientConn)
			select {
			case cc.sendCh <- frame:
			default:
				s.logger.Warn("gateway: dropped event for slow client")
			}
			return true
		})
	})

	s.logger.Info("gateway started", "addr", s.boundAddr)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop shuts the gateway down, closing every client connection.
func (s *Server) Stop(ctx context.Context) error {
	if s.unsubAll != nil {
		s.unsubAll()
	}

	s.clients.Range(func(key, value any) bool {
		cc := value.(*clientConn)
		cc.closeOnce.Do(func() { close(cc.done) })
		cc.ws.Close(websocket.StatusGoingAway, "server shutting down")
		s.clients.Delete(key)
		return true
	})

	if s.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// BoundAddr returns the listen address. Only valid after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.handler.Status())
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
			"[::1]",
			"[::1]:*",
		},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	connID := s.nextID.Add(1)
	cc := &clientConn{
		ws:     ws,
		sendCh: make(chan Frame, 64),
		done:   make(chan struct{}),
	}
	s.clients.Store(connID, cc)
	s.logger.Info("gateway client connected", "conn_id", connID)

	go s.writeLoop(cc)
	s.readLoop(r.Context(), cc)

	cc.closeOnce.Do(func() { close(cc.done) })
	s.clients.Delete(connID)
	ws.Close(websocket.StatusNormalClosure, "")
	s.logger.Info("gateway client disconnected", "conn_id", connID)
}

func (s *Server) readLoop(ctx context.Context, cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		default:
		}

		var frame Frame
		if err := wsjson.Read(ctx, cc.ws, &frame); err != nil {
			return
		}
		if frame.Type != FrameTypeRequest {
			continue
		}

		go s.dispatchRequest(ctx, cc, frame)
	}
}

func (s *Server) writeLoop(cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		case frame := <-cc.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := wsjson.Write(ctx, cc.ws, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) dispatchRequest(ctx context.Context, cc *clientConn, frame Frame) {
	var payload RequestPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		s.sendResponse(cc, frame.ID, nil, domain.NewDomainError("gateway.dispatch", domain.ErrInvalidInput, "malformed request payload"))
		return
	}

	resp, err := s.handler.Handle(ctx, payload.SessionID, payload.Text, payload.Metadata)
	if err != nil {
		s.sendResponse(cc, frame.ID, nil, err)
		return
	}

	body, err := json.Marshal(resp)
	if err != nil {
		s.sendResponse(cc, frame.ID, nil, err)
		return
	}
	s.sendResponse(cc, frame.ID, body, nil)
}

func (s *Server) sendResponse(cc *clientConn, id uint64, body json.RawMessage, err error) {
	resp := Frame{
		Type:    FrameTypeResponse,
		ID:      id,
		Payload: body,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	select {
	case cc.sendCh <- resp:
	default:
		s.logger.Warn("gateway: dropped response for slow client", "frame_id", id)
	}
}
