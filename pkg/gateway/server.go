// Package gateway is the websocket boundary between the external voice
// pipeline and the personas. Each connection carries one conversation of
// text turns.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harunnryd/cipher/pkg/errorsx"
	"github.com/harunnryd/cipher/pkg/logging"
	"github.com/harunnryd/cipher/pkg/metrics"
	"github.com/harunnryd/cipher/pkg/persona"
	"github.com/harunnryd/cipher/pkg/redact"
	"github.com/harunnryd/cipher/pkg/shop"
)

type Config struct {
	Addr             string
	WSPath           string
	AllowedOrigins   []string
	HandshakeTimeout time.Duration
	MaxMessageBytes  int64
	// DrainTimeout bounds how long Run waits for sessions on shutdown.
	DrainTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.WSPath == "" {
		c.WSPath = "/ws"
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 64 << 10
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 5 * time.Second
	}
	return c
}

// ConversationFactory starts a conversation for a hello frame.
type ConversationFactory interface {
	New(kind persona.Kind, identity string) (persona.Conversation, error)
}

type Server struct {
	cfg      Config
	factory  ConversationFactory
	registry *SessionRegistry
	observer metrics.Observer
	logger   *slog.Logger
	upgrader websocket.Upgrader
	origins  map[string]struct{}
}

func NewServer(cfg Config, factory ConversationFactory, observer metrics.Observer, logger *slog.Logger) *Server {
	cfg = cfg.withDefaults()
	if observer == nil {
		observer = metrics.NoopObserver{}
	}
	s := &Server{
		cfg:      cfg,
		factory:  factory,
		registry: NewSessionRegistry(),
		observer: observer,
		logger:   logging.NewComponentLogger(logger, "gateway"),
		origins:  make(map[string]struct{}, len(cfg.AllowedOrigins)),
	}
	for _, o := range cfg.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			s.origins[o] = struct{}{}
		}
	}
	s.upgrader = websocket.Upgrader{
		HandshakeTimeout: cfg.HandshakeTimeout,
		CheckOrigin:      s.originAllowed,
	}
	return s
}

func (s *Server) Registry() *SessionRegistry { return s.registry }

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc(s.cfg.WSPath, s.handleWS)
	return mux
}

// Run serves until ctx is done, then stops accepting connections and drains
// live sessions.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: s.cfg.HandshakeTimeout}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway_listening", "addr", ln.Addr().String(), "ws_path", s.cfg.WSPath)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.registry.SetDraining(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.DrainTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if !s.registry.WaitForEmpty(shutdownCtx, 100*time.Millisecond) {
		s.logger.Warn("gateway_drain_timeout", "sessions", s.registry.Count())
	}
	s.registry.CloseAll()
	s.logger.Info("gateway_stopped")
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || len(s.origins) == 0 {
		return true
	}
	_, ok := s.origins[origin]
	return ok
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.registry.Draining() {
		http.Error(w, "gateway is draining", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("ws_upgrade_failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.cfg.MaxMessageBytes)

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	var hello ClientMessage
	if err := conn.ReadJSON(&hello); err != nil {
		s.writeWSError(conn, CodeBadRequest, "failed to read hello", true)
		return
	}
	if hello.Type != TypeHello {
		s.writeWSError(conn, CodeBadRequest, "first frame must be hello", true)
		return
	}
	kind, err := persona.ParseKind(hello.Persona)
	if err != nil {
		s.writeWSError(conn, CodeUnknownPersona, err.Error(), true)
		return
	}
	conv, err := s.factory.New(kind, hello.Identity)
	if err != nil {
		s.logger.Error("conversation_start_failed", "persona", string(kind), "error", err)
		s.writeWSError(conn, CodeInternal, "could not start conversation", true)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	sess, err := s.registry.Add(conv, conn)
	if err != nil {
		s.logger.Error("session_register_failed", "persona", string(kind), "error", err)
		s.writeWSError(conn, CodeInternal, "could not start conversation", true)
		return
	}
	defer s.registry.Remove(sess.ID)
	logger := s.logger.With("session_id", sess.ID, "persona", string(kind))
	logger.Info("session_opened", redact.IdentityAttr(hello.Identity))
	metrics.Record(s.observer, metrics.EventSessionOpen, map[string]string{"session_id": sess.ID, "persona": string(kind)}, nil)
	defer func() {
		logger.Info("session_closed", "duration_ms", time.Since(sess.Created).Milliseconds())
		metrics.Record(s.observer, metrics.EventSessionClose, map[string]string{"session_id": sess.ID, "persona": string(kind)},
			map[string]any{"duration_ms": time.Since(sess.Created).Milliseconds()})
	}()

	if err := s.write(conn, ServerMessage{Type: TypeHelloAck, SessionID: sess.ID, Persona: string(kind), Text: conv.Greeting()}); err != nil {
		logger.Warn("ws_write_failed", "reason_code", string(errorsx.ReasonGatewaySend), "error", err)
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && sess.Ctx.Err() == nil {
				logger.Debug("ws_read_failed", "error", err)
			}
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.writeWSError(conn, CodeBadRequest, "invalid json frame", false)
			continue
		}
		if msg.Type == TypeBye {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
			return
		}
		reply, code, err := s.dispatch(sess.Ctx, conv, msg)
		if err != nil {
			if sess.Ctx.Err() != nil {
				return
			}
			logger.Warn("turn_failed", "type", msg.Type, "code", code, "reason_code", errorsx.LogValue(err), "error", err)
			s.writeWSError(conn, code, err.Error(), false)
			continue
		}
		if err := s.write(conn, ServerMessage{Type: TypeReply, SessionID: sess.ID, Text: reply}); err != nil {
			logger.Warn("ws_write_failed", "reason_code", string(errorsx.ReasonGatewaySend), "error", err)
			return
		}
	}
}

// dispatch runs one client frame and returns the reply text or an error code.
func (s *Server) dispatch(ctx context.Context, conv persona.Conversation, msg ClientMessage) (string, string, error) {
	switch msg.Type {
	case TypeUtterance:
		reply, err := conv.Respond(ctx, msg.Text)
		if err != nil {
			return "", codeFor(err), err
		}
		return reply, "", nil
	case TypeAction:
		if strings.TrimSpace(msg.Name) == "" {
			return "", CodeBadRequest, errorsx.New(errorsx.ReasonGatewayProtocol, "action name is required")
		}
		reply, err := conv.Invoke(ctx, msg.Name, msg.Args)
		if err != nil {
			return "", codeFor(err), err
		}
		return reply, "", nil
	case TypeHello:
		return "", CodeBadRequest, errorsx.New(errorsx.ReasonGatewayProtocol, "session already started")
	default:
		return "", CodeBadRequest, errorsx.New(errorsx.ReasonGatewayProtocol, "unknown frame type %q", msg.Type)
	}
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, persona.ErrNoLanguageModel):
		return CodeNoLanguageModel
	case errors.Is(err, persona.ErrUnsupportedAction):
		return CodeUnsupportedAction
	case errors.Is(err, shop.ErrUnknownTool):
		return CodeUnknownAction
	default:
		return CodeInternal
	}
}

func (s *Server) write(conn *websocket.Conn, msg ServerMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(msg)
}

func (s *Server) writeWSError(conn *websocket.Conn, code, message string, close bool) {
	_ = s.write(conn, ServerMessage{Type: TypeError, Code: code, Message: message})
	if close {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message), time.Now().Add(2*time.Second))
	}
}
