package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/quantfold/conductor/id"
	"github.com/quantfold/conductor/stream"
)

// Server serves the feed protocol over WebSocket, with a one-shot HTTP
// RPC fallback for simple request/response operations.
type Server struct {
	broker       *stream.Broker
	handler      *Handler
	conns        *ConnectionManager
	defaultCodec Codec
	logger       *slog.Logger
	basePath     string
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server's logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBasePath sets the mount path for feed endpoints (default "/feed").
func WithBasePath(path string) ServerOption {
	return func(s *Server) { s.basePath = path }
}

// NewServer creates a feed server.
func NewServer(broker *stream.Broker, handler *Handler, opts ...ServerOption) *Server {
	s := &Server{
		broker:       broker,
		handler:      handler,
		conns:        NewConnectionManager(),
		defaultCodec: JSONCodec{},
		logger:       slog.Default(),
		basePath:     "/feed",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "feed-server")
	return s
}

// Broker returns the underlying stream broker.
func (s *Server) Broker() *stream.Broker { return s.broker }

// Connections returns the connection manager.
func (s *Server) Connections() *ConnectionManager { return s.conns }

// RegisterRoutes mounts feed endpoints on an HTTP mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(s.basePath, s.handleWebSocket)
	mux.HandleFunc(s.basePath+"/rpc", s.handleHTTPRPC)
}

// handleWebSocket upgrades the request and runs the frame loop.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	netConn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	go s.serveConn(r.Context(), netConn)
}

func (s *Server) serveConn(ctx context.Context, netConn net.Conn) {
	defer netConn.Close() //nolint:errcheck // best-effort close on teardown

	connID := "feed-" + id.NewSubID().String()
	s.logger.Info("feed connected", "conn", connID)

	// Wait for the hello frame. It is always JSON, before negotiation.
	data, _, err := wsutil.ReadClientData(netConn)
	if err != nil {
		return
	}
	var hello Frame
	if err := json.Unmarshal(data, &hello); err != nil {
		s.writeRaw(netConn, JSONCodec{}, NewErrorFrame("", ErrCodeBadRequest, "invalid hello frame"))
		return
	}
	if hello.Method != MethodHello {
		s.writeRaw(netConn, JSONCodec{}, NewErrorFrame(hello.ID, ErrCodeBadRequest, "first frame must be hello"))
		return
	}

	var helloReq HelloRequest
	if len(hello.Data) > 0 {
		if err := json.Unmarshal(hello.Data, &helloReq); err != nil {
			s.writeRaw(netConn, JSONCodec{}, NewErrorFrame(hello.ID, ErrCodeBadRequest, "invalid hello data"))
			return
		}
	}

	codec, err := GetCodec(helloReq.Format)
	if err != nil {
		s.writeRaw(netConn, JSONCodec{}, NewErrorFrame(hello.ID, ErrCodeBadRequest, err.Error()))
		return
	}

	sub := s.broker.Subscribe(connID)
	conn := NewConnection(connID, codec, sub)
	s.conns.Add(conn)
	defer func() {
		s.broker.RemoveSubscriber(connID)
		s.conns.Remove(connID)
		s.logger.Info("feed disconnected", "conn", connID)
	}()

	// Hello response travels in the negotiated codec already.
	resp, respErr := NewResponseFrame(hello.ID, HelloResponse{
		Format:    codec.Name(),
		SessionID: connID,
	})
	if respErr != nil {
		return
	}
	if err := s.writeFrame(netConn, conn, resp); err != nil {
		return
	}

	s.logger.Info("feed negotiated", "conn", connID, "codec", codec.Name())

	go s.forwardEvents(netConn, conn)

	// Frame processing loop.
	for {
		data, _, err := wsutil.ReadClientData(netConn)
		if err != nil {
			return // connection closed
		}

		conn.Touch()

		frame, decErr := codec.Decode(data)
		if decErr != nil {
			errFrame := NewErrorFrame("", ErrCodeBadRequest, "invalid frame: "+decErr.Error())
			if writeErr := s.writeFrame(netConn, conn, errFrame); writeErr != nil {
				return
			}
			continue
		}

		if frame.Type == FramePing {
			pong := &Frame{
				ID:        generateFrameID(),
				Type:      FramePong,
				CorrelID:  frame.ID,
				Timestamp: frame.Timestamp,
			}
			if writeErr := s.writeFrame(netConn, conn, pong); writeErr != nil {
				return
			}
			continue
		}

		// Credits replenishment frames carry no method.
		if frame.Credits > 0 && frame.Method == "" {
			sub.AddCredits(int64(frame.Credits))
			continue
		}

		respFrame := s.handler.Handle(ctx, frame, conn)
		if respFrame != nil {
			if writeErr := s.writeFrame(netConn, conn, respFrame); writeErr != nil {
				s.logger.Warn("write response frame", "conn", connID, "error", writeErr)
				return
			}
		}
	}
}

// forwardEvents drains the connection's subscriber channel, wrapping
// events in event frames. Returns when the subscriber closes or the
// socket dies.
func (s *Server) forwardEvents(netConn net.Conn, conn *Connection) {
	for evt := range conn.Subscriber.C() {
		evtFrame, err := NewEventFrame(evt.Topic, evt)
		if err != nil {
			continue
		}
		if writeErr := s.writeFrame(netConn, conn, evtFrame); writeErr != nil {
			return
		}
	}
}

// writeFrame encodes under the connection's codec and writes, holding
// the connection's write lock so handler responses and forwarded events
// never interleave mid-message.
func (s *Server) writeFrame(netConn net.Conn, conn *Connection, frame *Frame) error {
	data, err := conn.Codec.Encode(frame)
	if err != nil {
		return fmt.Errorf("feed: encode frame: %w", err)
	}
	conn.writeMu.Lock()
	defer conn.writeMu.Unlock()
	if conn.Codec.Binary() {
		return wsutil.WriteServerBinary(netConn, data)
	}
	return wsutil.WriteServerText(netConn, data)
}

// writeRaw writes a frame before a Connection exists (pre-negotiation).
func (s *Server) writeRaw(netConn net.Conn, codec Codec, frame *Frame) {
	data, err := codec.Encode(frame)
	if err != nil {
		return
	}
	//nolint:errcheck // best-effort error response before disconnect
	wsutil.WriteServerText(netConn, data)
}

// handleHTTPRPC handles one-shot JSON request frames for clients that
// do not hold a WebSocket open.
func (s *Server) handleHTTPRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var frame Frame
	if err := json.NewDecoder(r.Body).Decode(&frame); err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorFrame("", ErrCodeBadRequest, "invalid request body"))
		return
	}

	// RPC requests cannot subscribe: there is no channel to deliver on.
	if frame.Method == MethodSubscribe || frame.Method == MethodUnsubscribe {
		s.writeJSON(w, http.StatusBadRequest, NewErrorFrame(frame.ID, ErrCodeBadRequest, "subscriptions require a websocket connection"))
		return
	}

	conn := NewConnection("rpc-"+generateFrameID(), JSONCodec{}, nil)
	resp := s.handler.Handle(r.Context(), &frame, conn)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	status := http.StatusOK
	if resp.Type == FrameErr && resp.Error != nil {
		status = resp.Error.Code
		if status < 100 || status > 599 {
			status = http.StatusInternalServerError
		}
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write rpc response", "error", err)
	}
}
