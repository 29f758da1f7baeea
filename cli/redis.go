package main

import (
	"context"
	"fmt"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// redisEmbedded as redis_addr runs an in-process redis so a single container
// can serve without an external one. Session liveness is lost on restart.
const redisEmbedded = "embedded"

// miniredis only expires keys when its clock is advanced.
var embeddedClockTick = time.Second

// openRedis connects to cfg.RedisAddr, or starts the embedded server. The
// returned close func releases both.
func openRedis(ctx context.Context, cfg Config, logger *logrus.Logger) (*redis.Client, func(), error) {
	if cfg.RedisAddr != redisEmbedded {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		return rdb, func() { _ = rdb.Close() }, nil
	}

	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		return nil, nil, fmt.Errorf("start embedded redis: %w", err)
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(embeddedClockTick)
		defer ticker.Stop()
		last := time.Now()
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				mr.FastForward(now.Sub(last))
				last = now
			}
		}
	}()
	logger.WithField("addr", mr.Addr()).Warn("using embedded redis; sessions do not survive restarts")

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return rdb, func() {
		_ = rdb.Close()
		close(done)
		mr.Close()
	}, nil
}
