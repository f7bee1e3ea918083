package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/harunnryd/cipher/pkg/orders"
)

// SQL stores orders in a database/sql backend using "?" placeholders
// (SQLite and MySQL). Each append is a single INSERT.
type SQL struct {
	db   *sql.DB
	name string
}

// OpenSQLite opens (and migrates) a SQLite ledger at path.
func OpenSQLite(ctx context.Context, path string) (*SQL, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite pragma: %w", err)
	}
	return newSQL(ctx, db, "sqlite", goose.DialectSQLite3)
}

// OpenMySQL opens (and migrates) a MySQL ledger.
func OpenMySQL(ctx context.Context, dsn string) (*SQL, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	return newSQL(ctx, db, "mysql", goose.DialectMySQL)
}

func newSQL(ctx context.Context, db *sql.DB, name string, dialect goose.Dialect) (*SQL, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", name, err)
	}
	if err := Migrate(ctx, db, dialect); err != nil {
		db.Close()
		return nil, err
	}
	return &SQL{db: db, name: name}, nil
}

func (s *SQL) Name() string { return s.name }

func (s *SQL) Append(ctx context.Context, order orders.Order) error {
	body, err := encodeOrder(order)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (id, total, currency, created_at, body)
		VALUES (?, ?, ?, ?, ?)`,
		order.ID, order.Total, order.Currency, order.CreatedAt, string(body),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *SQL) All(ctx context.Context) ([]orders.Order, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM orders ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var list []orders.Order
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o, err := decodeOrder(body)
		if err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return list, nil
}

func (s *SQL) Last(ctx context.Context) (orders.Order, bool, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM orders ORDER BY seq DESC LIMIT 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return orders.Order{}, false, nil
	}
	if err != nil {
		return orders.Order{}, false, fmt.Errorf("query last order: %w", err)
	}
	o, err := decodeOrder(body)
	if err != nil {
		return orders.Order{}, false, err
	}
	return o, true, nil
}

func (s *SQL) Close() error { return s.db.Close() }
