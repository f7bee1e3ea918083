package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/harunnryd/cipher/pkg/orders"
)

const defaultRedisKey = "cipher:orders"

// Redis keeps the ledger as a list of JSON orders. RPUSH is atomic, so
// concurrent appends never overwrite each other.
type Redis struct {
	client *redis.Client
	key    string
}

func NewRedis(client *redis.Client, key string) *Redis {
	if key == "" {
		key = defaultRedisKey
	}
	return &Redis{client: client, key: key}
}

// OpenRedis dials addr and verifies the connection.
func OpenRedis(ctx context.Context, addr, password string, db int, key string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client, key), nil
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) Append(ctx context.Context, order orders.Order) error {
	body, err := encodeOrder(order)
	if err != nil {
		return err
	}
	if err := r.client.RPush(ctx, r.key, body).Err(); err != nil {
		return fmt.Errorf("rpush order: %w", err)
	}
	return nil
}

func (r *Redis) All(ctx context.Context) ([]orders.Order, error) {
	raw, err := r.client.LRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange orders: %w", err)
	}
	list := make([]orders.Order, 0, len(raw))
	for _, item := range raw {
		o, err := decodeOrder([]byte(item))
		if err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	return list, nil
}

func (r *Redis) Last(ctx context.Context) (orders.Order, bool, error) {
	raw, err := r.client.LIndex(ctx, r.key, -1).Bytes()
	if errors.Is(err, redis.Nil) {
		return orders.Order{}, false, nil
	}
	if err != nil {
		return orders.Order{}, false, fmt.Errorf("lindex order: %w", err)
	}
	o, err := decodeOrder(raw)
	if err != nil {
		return orders.Order{}, false, err
	}
	return o, true, nil
}

func (r *Redis) Close() error { return r.client.Close() }
