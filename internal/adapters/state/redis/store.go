// Package redis backs the StateStore with Redis so state survives process
// restarts and can be shared between instances. Payloads are stored as JSON,
// so numbers read back as float64.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bnema/formflow/internal/domain"
	"github.com/bnema/formflow/internal/ports"
	"github.com/go-redis/redis/v8"
)

const (
	DefaultKeyPrefix = "formflow:state:"
	fallbackTTL      = 30 * time.Minute
	scanCount        = 100
	maxUpdateRetries = 8
)

var errUpdateContention = errors.New("update retries exhausted")

type Options struct {
	Address     string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
}

// NewClient dials Redis and verifies the connection with a ping.
func NewClient(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return client, nil
}

type Store struct {
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration
	logger     *slog.Logger
}

var _ ports.StateStore = (*Store)(nil)

func NewStore(client *redis.Client, prefix string, defaultTTL time.Duration, logger *slog.Logger) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if defaultTTL <= 0 {
		defaultTTL = fallbackTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		client:     client,
		prefix:     prefix,
		defaultTTL: defaultTTL,
		logger:     logger.With("component", "state_store", "backend", "redis"),
	}
}

func (s *Store) Save(ctx context.Context, key string, payload domain.Payload, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	data, err := encode(payload)
	if err != nil {
		return fmt.Errorf("save state %q: %w", key, err)
	}
	if err := s.client.Set(ctx, s.redisKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("save state %q: %w", key, err)
	}
	return nil
}

func (s *Store) Restore(ctx context.Context, key string) (domain.Payload, bool, error) {
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("restore state %q: %w", key, err)
	}

	payload, err := decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("restore state %q: %w", key, err)
	}
	return payload, true, nil
}

func (s *Store) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("clear state %q: %w", key, err)
	}
	return nil
}

// Update runs the merge inside a WATCH/MULTI transaction and retries when a
// concurrent writer touches the key first.
func (s *Store) Update(ctx context.Context, key string, partial domain.Payload) error {
	redisKey := s.redisKey(key)

	txf := func(tx *redis.Tx) error {
		current := domain.Payload{}
		data, err := tx.Get(ctx, redisKey).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			current, err = decode(data)
			if err != nil {
				return err
			}
		}

		merged, err := encode(current.Merge(partial))
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, merged, s.defaultTTL)
			return nil
		})
		return err
	}

	for range maxUpdateRetries {
		err := s.client.Watch(ctx, txf, redisKey)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("state update lost a race, retrying", "key", key)
			continue
		}
		return fmt.Errorf("update state %q: %w", key, err)
	}

	return fmt.Errorf("update state %q: %w", key, errUpdateContention)
}

func (s *Store) ClearPrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := s.scan(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("clear prefix %q: %w", prefix, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	removed, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("clear prefix %q: %w", prefix, err)
	}
	return int(removed), nil
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.scan(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list keys %q: %w", prefix, err)
	}

	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, strings.TrimPrefix(key, s.prefix))
	}
	return out, nil
}

func (s *Store) Len(ctx context.Context) (int, error) {
	keys, err := s.scan(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("count state: %w", err)
	}
	return len(keys), nil
}

func (s *Store) Describe(ctx context.Context, key string) (domain.StateMeta, bool, error) {
	redisKey := s.redisKey(key)

	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, redisKey)
	ttlCmd := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.StateMeta{}, false, fmt.Errorf("describe state %q: %w", key, err)
	}

	data, err := getCmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.StateMeta{}, false, nil
		}
		return domain.StateMeta{}, false, fmt.Errorf("describe state %q: %w", key, err)
	}
	payload, err := decode(data)
	if err != nil {
		return domain.StateMeta{}, false, fmt.Errorf("describe state %q: %w", key, err)
	}

	return domain.StateMeta{
		Key:       key,
		ExpiresIn: ttlCmd.Val(),
		Size:      len(payload),
		Fields:    payload.Fields(),
	}, true, nil
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}

func (s *Store) redisKey(key string) string {
	return s.prefix + key
}

func (s *Store) scan(ctx context.Context, prefix string) ([]string, error) {
	match := escapeGlob(s.prefix+prefix) + "*"

	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, match, scanCount).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func escapeGlob(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func encode(payload domain.Payload) ([]byte, error) {
	if payload == nil {
		payload = domain.Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

func decode(data []byte) (domain.Payload, error) {
	var payload domain.Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if payload == nil {
		payload = domain.Payload{}
	}
	return payload, nil
}
