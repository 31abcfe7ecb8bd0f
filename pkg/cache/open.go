package cache

import (
	"context"
	"fmt"
	"time"

	stackerrors "github.com/matzehuels/stackscan/pkg/errors"
)

// Backend names accepted by [Open].
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
	BackendNone   = "none"
)

// Options selects and configures a backend.
type Options struct {
	Backend        string
	Dir            string // file backend
	RedisURL       string // redis backend
	RedisPrefix    string
	MemoryMaxBytes int64
	// L1 fronts a file or redis backend with an in-process MemoryCache.
	// Useful for the long-running server, pointless for one-shot commands.
	L1 bool
}

// Open constructs the configured backend. An empty backend means file.
func Open(ctx context.Context, opts Options) (Cache, error) {
	var (
		c   Cache
		err error
	)
	switch opts.Backend {
	case "", BackendFile:
		if opts.Dir == "" {
			return nil, stackerrors.New(stackerrors.ErrCodeInvalidInput, "file cache needs a directory")
		}
		c, err = NewFileCache(opts.Dir)
	case BackendRedis:
		if opts.RedisURL == "" {
			return nil, stackerrors.New(stackerrors.ErrCodeInvalidInput, "redis cache needs cache.redis_url")
		}
		c, err = NewRedisCache(ctx, opts.RedisURL, opts.RedisPrefix)
	case BackendMemory:
		return NewMemoryCache(opts.MemoryMaxBytes)
	case BackendNone:
		return NewNullCache(), nil
	default:
		return nil, stackerrors.New(stackerrors.ErrCodeInvalidInput,
			"unknown cache backend %q (want file, redis, memory or none)", opts.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s cache: %w", opts.Backend, err)
	}

	if opts.L1 {
		l1, err := NewMemoryCache(opts.MemoryMaxBytes)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("open memory cache: %w", err)
		}
		return NewTiered(l1, c, 10*time.Minute), nil
	}
	return c, nil
}
