package cipher

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/cipher/pkg/logging"
	"github.com/harunnryd/cipher/pkg/persona"
	"github.com/harunnryd/cipher/pkg/shop"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.DrainTimeoutMS = 50
	cfg.Ledger = VendorConfig{Provider: "file", Settings: map[string]any{"path": filepath.Join(dir, "orders.json")}}
	cfg.Trace.Path = filepath.Join(dir, "trace", "events.jsonl")
	return cfg
}

func TestEngineWiresShopFlow(t *testing.T) {
	cfg := testConfig(t)
	e, err := NewEngine(context.Background(), EngineOptions{Config: cfg, Logger: logging.Discard()})
	require.NoError(t, err)

	conv, err := e.Personas().New(persona.KindShop, "")
	require.NoError(t, err)
	ctx := context.Background()

	out, err := conv.Invoke(ctx, shop.ActionAddToCart, map[string]any{"product_ref": "book-001"})
	require.NoError(t, err)
	assert.Contains(t, out, "AI Programming Masterclass")
	out, err = conv.Invoke(ctx, shop.ActionPlaceOrder, map[string]any{"confirm": true})
	require.NoError(t, err)
	assert.Contains(t, out, "Total 1599 INR")

	out, err = conv.Respond(ctx, "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "without a language model")

	all, err := e.Ledger().All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, e.Close())

	f, err := os.Open(cfg.Trace.Path)
	require.NoError(t, err)
	defer f.Close()
	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.Contains(line, `"name":"action"`) {
			names = append(names, line)
		}
	}
	assert.Len(t, names, 2)
}

func TestEngineRejectsBadProviders(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ledger = VendorConfig{Provider: "oracle"}
	_, err := NewEngine(context.Background(), EngineOptions{Config: cfg, Logger: logging.Discard()})
	assert.ErrorContains(t, err, "build ledger")

	cfg = testConfig(t)
	cfg.LLM = VendorConfig{Provider: "gemini"}
	_, err = NewEngine(context.Background(), EngineOptions{Config: cfg, Logger: logging.Discard()})
	assert.ErrorContains(t, err, "build llm")

	cfg = testConfig(t)
	cfg.Catalog.Path = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = NewEngine(context.Background(), EngineOptions{Config: cfg, Logger: logging.Discard()})
	assert.Error(t, err)
}

func TestEngineRunStopsOnCancel(t *testing.T) {
	e, err := NewEngine(context.Background(), EngineOptions{Config: testConfig(t), Logger: logging.Discard()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
	assert.True(t, e.Gateway().Registry().Draining())
}
