// Package redis stores the token collection and the analysis cache as JSON
// documents under fixed keys.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// Default keys.
const (
	DefaultTokensKey = "bsc_tokens"
	DefaultCacheKey  = "analysis_cache"
)

// maxTxRetries bounds optimistic transaction retries before ErrConflict.
const maxTxRetries = 5

// NewClient connects to addr and verifies the connection. addr may be a
// host:port pair or a redis:// URL.
func NewClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	opts := &goredis.Options{Addr: addr, Password: password, DB: db}
	if u, err := goredis.ParseURL(addr); err == nil {
		opts = u
		if password != "" {
			opts.Password = password
		}
		if db != 0 {
			opts.DB = db
		}
	}

	cli := goredis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		cli.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return cli, nil
}
