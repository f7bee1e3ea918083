package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/harunnryd/cipher/pkg/agent"
	"github.com/harunnryd/cipher/pkg/catalog"
	"github.com/harunnryd/cipher/pkg/improv"
	"github.com/harunnryd/cipher/pkg/ledger"
	"github.com/harunnryd/cipher/pkg/llm"
	"github.com/harunnryd/cipher/pkg/logging"
	"github.com/harunnryd/cipher/pkg/metrics"
	"github.com/harunnryd/cipher/pkg/persona"
	"github.com/harunnryd/cipher/pkg/providers/mock"
	"github.com/harunnryd/cipher/pkg/shop"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type firstChooser struct{}

func (firstChooser) Choose(c improv.Category) string {
	if c == improv.CategoryStyle {
		return improv.StyleEnthusiastic
	}
	return improv.DefaultPhraseBook()[c][0]
}

type failingFactory struct{}

func (failingFactory) New(persona.Kind, string) (persona.Conversation, error) {
	return nil, errors.New("no capacity")
}

func newTestServer(t *testing.T, model llm.LLMAdapter, cfg Config) (*Server, *httptest.Server, ledger.Ledger, *metrics.MemoryObserver) {
	t.Helper()
	l := ledger.NewMemory()
	f := persona.Factory{
		Controller: shop.NewController(catalog.Default(), l, shop.Options{}),
		Chooser:    firstChooser{},
		MaxRounds:  2,
		Logger:     logging.Discard(),
	}
	if model != nil {
		f.Agent = agent.New(model, "test", agent.Options{Logger: logging.Discard()})
	}
	obs := metrics.NewMemoryObserver()
	srv := NewServer(cfg, f, obs, logging.Discard())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts, l, obs
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func mustDialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err, "dial websocket")
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func mustWriteJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func mustReadJSON(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out ServerMessage
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func hello(t *testing.T, conn *websocket.Conn, kind, identity string) ServerMessage {
	t.Helper()
	mustWriteJSON(t, conn, ClientMessage{Type: TypeHello, Persona: kind, Identity: identity})
	ack := mustReadJSON(t, conn)
	require.Equal(t, TypeHelloAck, ack.Type, "hello ack: %+v", ack)
	return ack
}

func TestHealth(t *testing.T) {
	_, ts, _, _ := newTestServer(t, nil, Config{})
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestShopActionsOverWebsocket(t *testing.T) {
	srv, ts, l, obs := newTestServer(t, nil, Config{})
	conn := mustDialWS(t, wsURL(ts))

	ack := hello(t, conn, "shop", "+15551234567")
	assert.Equal(t, "shop", ack.Persona)
	assert.NotEmpty(t, ack.SessionID)
	assert.Contains(t, ack.Text, "Khan's Tech Store")

	mustWriteJSON(t, conn, ClientMessage{Type: TypeAction, Name: shop.ActionAddToCart, Args: map[string]any{"product_ref": "mouse-001", "quantity": 2}})
	reply := mustReadJSON(t, conn)
	assert.Equal(t, TypeReply, reply.Type)
	assert.Contains(t, reply.Text, "Added 2 x Gaming Mouse Pro")

	mustWriteJSON(t, conn, ClientMessage{Type: TypeAction, Name: shop.ActionPlaceOrder})
	reply = mustReadJSON(t, conn)
	assert.Contains(t, reply.Text, "Order placed")

	all, err := l.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 6998, all[0].Total)

	mustWriteJSON(t, conn, ClientMessage{Type: TypeAction, Name: "teleport"})
	errMsg := mustReadJSON(t, conn)
	assert.Equal(t, TypeError, errMsg.Type)
	assert.Equal(t, CodeUnknownAction, errMsg.Code)

	mustWriteJSON(t, conn, ClientMessage{Type: TypeUtterance, Text: "hello"})
	errMsg = mustReadJSON(t, conn)
	assert.Equal(t, CodeNoLanguageModel, errMsg.Code)

	assert.EqualValues(t, 1, srv.Registry().Count())
	mustWriteJSON(t, conn, ClientMessage{Type: TypeBye})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	require.Eventually(t, func() bool { return srv.Registry().Count() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, obs.Named(metrics.EventSessionOpen), 1)
	require.Eventually(t, func() bool { return len(obs.Named(metrics.EventSessionClose)) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestShopUtteranceUsesAgent(t *testing.T) {
	model := mock.NewLLMAdapter(mock.LLMConfig{
		Responses: []llm.Response{
			{ToolCalls: []llm.ToolCall{{ID: "c1", Name: shop.ActionShowCatalog, Arguments: map[string]any{"category": "books"}}}},
			{Text: "We have two books: book-001 and book-002."},
		},
	})
	_, ts, _, _ := newTestServer(t, model, Config{})
	conn := mustDialWS(t, wsURL(ts))
	hello(t, conn, "", "")

	mustWriteJSON(t, conn, ClientMessage{Type: TypeUtterance, Text: "any books?"})
	reply := mustReadJSON(t, conn)
	assert.Equal(t, TypeReply, reply.Type)
	assert.Equal(t, "We have two books: book-001 and book-002.", reply.Text)

	toolMsg := model.Inputs()[1].Messages[2]
	assert.Contains(t, toolMsg.Content, "book-001")
}

func TestImprovOverWebsocket(t *testing.T) {
	_, ts, _, _ := newTestServer(t, nil, Config{})
	conn := mustDialWS(t, wsURL(ts))
	ack := hello(t, conn, "improv", "")
	assert.Equal(t, improv.Welcome, ack.Text)

	mustWriteJSON(t, conn, ClientMessage{Type: TypeUtterance, Text: "Asha here"})
	assert.Contains(t, mustReadJSON(t, conn).Text, "Nice to meet you, Asha!")

	mustWriteJSON(t, conn, ClientMessage{Type: TypeUtterance, Text: "stop game"})
	assert.Contains(t, mustReadJSON(t, conn).Text, "That's a wrap")

	mustWriteJSON(t, conn, ClientMessage{Type: TypeAction, Name: "show_catalog"})
	assert.Equal(t, CodeUnsupportedAction, mustReadJSON(t, conn).Code)
}

func TestHandshakeErrors(t *testing.T) {
	_, ts, _, _ := newTestServer(t, nil, Config{})

	conn := mustDialWS(t, wsURL(ts))
	mustWriteJSON(t, conn, ClientMessage{Type: TypeUtterance, Text: "hi"})
	msg := mustReadJSON(t, conn)
	assert.Equal(t, TypeError, msg.Type)
	assert.Equal(t, CodeBadRequest, msg.Code)

	conn = mustDialWS(t, wsURL(ts))
	mustWriteJSON(t, conn, ClientMessage{Type: TypeHello, Persona: "pirate"})
	assert.Equal(t, CodeUnknownPersona, mustReadJSON(t, conn).Code)
}

func TestBadFramesKeepSessionOpen(t *testing.T) {
	_, ts, _, _ := newTestServer(t, nil, Config{})
	conn := mustDialWS(t, wsURL(ts))
	hello(t, conn, "shop", "")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, CodeBadRequest, mustReadJSON(t, conn).Code)

	mustWriteJSON(t, conn, ClientMessage{Type: "dance"})
	assert.Equal(t, CodeBadRequest, mustReadJSON(t, conn).Code)

	mustWriteJSON(t, conn, ClientMessage{Type: TypeHello, Persona: "shop"})
	assert.Equal(t, CodeBadRequest, mustReadJSON(t, conn).Code)

	mustWriteJSON(t, conn, ClientMessage{Type: TypeAction, Name: shop.ActionShowCart})
	assert.Contains(t, mustReadJSON(t, conn).Text, "Your cart is empty")
}

func TestBadActionArgsGetSpokenReply(t *testing.T) {
	_, ts, l, _ := newTestServer(t, nil, Config{})
	conn := mustDialWS(t, wsURL(ts))
	hello(t, conn, "shop", "")

	mustWriteJSON(t, conn, ClientMessage{Type: TypeAction, Name: shop.ActionAddToCart, Args: map[string]any{"product_ref": "mouse-001", "quantity": "two"}})
	reply := mustReadJSON(t, conn)
	assert.Equal(t, TypeReply, reply.Type)
	assert.Contains(t, reply.Text, "How many would you like")

	mustWriteJSON(t, conn, ClientMessage{Type: TypeAction, Name: shop.ActionPlaceOrder, Args: map[string]any{"confirm": "maybe"}})
	reply = mustReadJSON(t, conn)
	assert.Equal(t, TypeReply, reply.Type)
	assert.Contains(t, reply.Text, "Should I place the order")

	mustWriteJSON(t, conn, ClientMessage{Type: TypeAction, Name: shop.ActionShowCart})
	assert.Contains(t, mustReadJSON(t, conn).Text, "Your cart is empty")

	all, err := l.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestFactoryFailure(t *testing.T) {
	srv := NewServer(Config{}, failingFactory{}, nil, logging.Discard())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := mustDialWS(t, wsURL(ts))
	mustWriteJSON(t, conn, ClientMessage{Type: TypeHello})
	assert.Equal(t, CodeInternal, mustReadJSON(t, conn).Code)
}

func TestOriginCheck(t *testing.T) {
	_, ts, _, _ := newTestServer(t, nil, Config{AllowedOrigins: []string{"https://shop.example"}})

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		resp.Body.Close()
	}

	header = http.Header{"Origin": []string{"https://shop.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
	require.NoError(t, err)
	conn.Close()
}

func TestServeDrainsOnCancel(t *testing.T) {
	f := persona.Factory{Controller: shop.NewController(catalog.Default(), ledger.NewMemory(), shop.Options{}), Logger: logging.Discard()}
	srv := NewServer(Config{DrainTimeout: 50 * time.Millisecond}, f, nil, logging.Discard())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	conn := mustDialWS(t, "ws://"+ln.Addr().String()+"/ws")
	hello(t, conn, "shop", "")
	require.EqualValues(t, 1, srv.Registry().Count())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not stop")
	}
	assert.True(t, srv.Registry().Draining())
	require.Eventually(t, func() bool { return srv.Registry().Count() == 0 }, 2*time.Second, 10*time.Millisecond)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
