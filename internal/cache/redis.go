package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	genPrefix   = "outcomes:gen:"
	entryPrefix = "outcomes:report:"
)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

type Redis struct {
	rdb *goredis.Client
}

// NewRedis connects and pings with a short timeout.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: redis ping %s: %w", opts.Addr, err)
	}
	return &Redis{rdb: rdb}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.rdb.Get(ctx, entryPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, entryPrefix+key, val, ttl).Err()
}

func (r *Redis) Generation(ctx context.Context, partition string) (int64, error) {
	n, err := r.rdb.Get(ctx, genPrefix+partition).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return n, err
}

func (r *Redis) Bump(ctx context.Context, partitions ...string) error {
	if len(partitions) == 0 {
		return nil
	}
	pipe := r.rdb.TxPipeline()
	for _, p := range partitions {
		pipe.Incr(ctx, genPrefix+p)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Redis) Close() error { return r.rdb.Close() }
