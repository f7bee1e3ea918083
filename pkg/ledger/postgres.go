package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/harunnryd/cipher/pkg/orders"
)

// Postgres stores orders in a JSONB column through a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects, migrates and returns a Postgres ledger.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	db := stdlib.OpenDBFromPool(pool)
	migrateErr := Migrate(ctx, db, goose.DialectPostgres)
	db.Close()
	if migrateErr != nil {
		pool.Close()
		return nil, migrateErr
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Name() string { return "postgres" }

func (p *Postgres) Append(ctx context.Context, order orders.Order) error {
	body, err := encodeOrder(order)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO orders (id, total, currency, created_at, body)
		VALUES ($1, $2, $3, $4, $5)`,
		order.ID, order.Total, order.Currency, order.CreatedAt, body,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (p *Postgres) All(ctx context.Context) ([]orders.Order, error) {
	rows, err := p.pool.Query(ctx, `SELECT body FROM orders ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	bodies, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("collect orders: %w", err)
	}
	list := make([]orders.Order, 0, len(bodies))
	for _, body := range bodies {
		o, err := decodeOrder(body)
		if err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	return list, nil
}

func (p *Postgres) Last(ctx context.Context) (orders.Order, bool, error) {
	var body []byte
	err := p.pool.QueryRow(ctx, `SELECT body FROM orders ORDER BY seq DESC LIMIT 1`).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
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

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
