package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/harunnryd/cipher/pkg/orders"
	"github.com/harunnryd/cipher/pkg/resilience"
)

func sampleOrder(id string, total int) orders.Order {
	return orders.Order{
		ID: id,
		Items: []orders.OrderLine{{
			ProductID: "mouse-001",
			Name:      "Gaming Mouse Pro",
			UnitPrice: total,
			Quantity:  1,
			LineTotal: total,
			Attrs:     map[string]string{},
		}},
		Total:     total,
		Currency:  "INR",
		CreatedAt: time.Date(2025, 11, 30, 9, 0, 0, 0, time.UTC),
	}
}

func runContract(t *testing.T, l Ledger) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := l.Last(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	first := sampleOrder("order-"+uuid.NewString(), 3499)
	second := sampleOrder("order-"+uuid.NewString(), 5999)
	require.NoError(t, l.Append(ctx, first))
	require.NoError(t, l.Append(ctx, second))

	last, ok, err := l.Last(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(second, last); diff != "" {
		t.Fatalf("last order mismatch (-want +got):\n%s", diff)
	}

	all, err := l.All(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff([]orders.Order{first, second}, all); diff != "" {
		t.Fatalf("ledger contents mismatch (-want +got):\n%s", diff)
	}
}

func runConcurrentAppends(t *testing.T, l Ledger, n int) {
	t.Helper()
	var g errgroup.Group
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("order-%d-%s", i, uuid.NewString())
		g.Go(func() error {
			return l.Append(context.Background(), sampleOrder(id, 100))
		})
	}
	require.NoError(t, g.Wait())
	all, err := l.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, n)
	seen := map[string]bool{}
	for _, o := range all {
		seen[o.ID] = true
	}
	assert.Len(t, seen, n)
}

func TestMemoryLedger(t *testing.T) {
	runContract(t, NewMemory())
	runConcurrentAppends(t, NewMemory(), 50)
}

func TestFileLedgerInitializesEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "orders.json")
	l, err := NewFile(path)
	require.NoError(t, err)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(raw))

	all, err := l.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestFileLedger(t *testing.T) {
	l, err := NewFile(filepath.Join(t.TempDir(), "orders.json"))
	require.NoError(t, err)
	runContract(t, l)

	reopened, err := NewFile(l.Path())
	require.NoError(t, err)
	all, err := reopened.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFileLedgerConcurrentAppends(t *testing.T) {
	l, err := NewFile(filepath.Join(t.TempDir(), "orders.json"))
	require.NoError(t, err)
	runConcurrentAppends(t, l, 25)
}

func TestFileLedgerCorruptReadFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	l, err := NewFile(path)
	require.NoError(t, err)

	_, _, err = l.Last(context.Background())
	assert.Error(t, err)
	assert.Error(t, l.Append(context.Background(), sampleOrder("order-x", 1)))
}

func TestSQLiteLedger(t *testing.T) {
	ctx := context.Background()
	l, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	defer l.Close()
	assert.Equal(t, "sqlite", l.Name())
	runContract(t, l)
	runConcurrentAppends(t, l, 10)
}

func TestMySQLLedger(t *testing.T) {
	dsn := os.Getenv("CIPHER_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skipf("CIPHER_TEST_MYSQL_DSN not set")
	}
	ctx := context.Background()
	l, err := OpenMySQL(ctx, dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	defer l.Close()
	_, err = l.db.ExecContext(ctx, `DELETE FROM orders`)
	require.NoError(t, err)
	runContract(t, l)
}

func TestPostgresLedger(t *testing.T) {
	dsn := os.Getenv("CIPHER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skipf("CIPHER_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	l, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer l.Close()
	_, err = l.pool.Exec(ctx, `TRUNCATE orders`)
	require.NoError(t, err)
	runContract(t, l)
}

func TestRedisLedger(t *testing.T) {
	addr := os.Getenv("CIPHER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skipf("CIPHER_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	key := "cipher:test:" + uuid.NewString()
	defer client.Del(ctx, key)
	l := NewRedis(client, key)
	defer l.Close()
	runContract(t, l)
}

type flakyLedger struct {
	*Memory
	failures int
	appends  int
}

func (f *flakyLedger) Last(ctx context.Context) (orders.Order, bool, error) {
	if f.failures > 0 {
		f.failures--
		return orders.Order{}, false, errors.New("transient read")
	}
	return f.Memory.Last(ctx)
}

func (f *flakyLedger) Append(ctx context.Context, o orders.Order) error {
	f.appends++
	return errors.New("disk full")
}

func TestRetryingReadsOnly(t *testing.T) {
	inner := &flakyLedger{Memory: NewMemory(), failures: 2}
	require.NoError(t, inner.Memory.Append(context.Background(), sampleOrder("order-1", 10)))

	l := WithReadRetry(inner, resilience.RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond})
	o, ok, err := l.Last(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "order-1", o.ID)

	assert.Error(t, l.Append(context.Background(), sampleOrder("order-2", 10)))
	assert.Equal(t, 1, inner.appends)
}

func TestMigrateRejectsUnknownDialect(t *testing.T) {
	_, err := migrationDir("oracle")
	assert.Error(t, err)
}
