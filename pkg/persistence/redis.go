package persistence

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tieredvm/recompiler/pkg/ctlerrors"
)

// RedisStore is the shared, multi-process shared-cache backend: useful
// when a fleet of VM processes wants to share warm IP profiles through
// one external store rather than each keeping its own SQLite file
// (SPEC_FULL §11's domain-stack table). Grounded on the teacher's
// pkg/redis client configuration shape, reworked around a plain
// key/blob contract instead of pub/sub.
type RedisStore struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
	full    atomic.Bool
}

// RedisConfig configures a RedisStore connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	Timeout  time.Duration
}

// NewRedisStore dials a single-node redis client per cfg. Cluster/
// sentinel modes are out of scope here: the controller's shared-cache
// use case is a single logical keyspace, not the teacher's chat-room
// fan-out topology.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisStore{client: client, prefix: cfg.Prefix, timeout: timeout}
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

func (s *RedisStore) Load(key string) ([]byte, bool, ctlerrors.ReasonCode) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	blob, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, ctlerrors.ReasonOK
	}
	if err != nil {
		return nil, false, ctlerrors.ReasonPortLayerFailure
	}
	return blob, true, ctlerrors.ReasonOK
}

func (s *RedisStore) Store(key string, blob []byte) ctlerrors.ReasonCode {
	if s.full.Load() {
		return ctlerrors.ReasonSCCFull
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.client.Set(ctx, s.key(key), blob, 0).Err(); err != nil {
		if err == redis.Nil {
			return ctlerrors.ReasonOK
		}
		// OOM command not allowed / maxmemory policy rejections surface
		// as generic redis errors; treat any write failure as sticky
		// SCC-full, same as the SQLite backend.
		s.full.Store(true)
		return ctlerrors.ReasonSCCFull
	}
	return ctlerrors.ReasonOK
}

func (s *RedisStore) IsFull() bool { return s.full.Load() }

func (s *RedisStore) Close() error { return s.client.Close() }
