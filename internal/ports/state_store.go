package ports

import (
	"context"
	"time"

	"github.com/bnema/formflow/internal/domain"
)

// StateStore holds form state under string keys with per-entry expiry.
// A ttl <= 0 means the store's default TTL.
type StateStore interface {
	Save(ctx context.Context, key string, payload domain.Payload, ttl time.Duration) error
	Restore(ctx context.Context, key string) (domain.Payload, bool, error)
	Clear(ctx context.Context, key string) error
	Update(ctx context.Context, key string, partial domain.Payload) error
	ClearPrefix(ctx context.Context, prefix string) (int, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
	Len(ctx context.Context) (int, error)
	Describe(ctx context.Context, key string) (domain.StateMeta, bool, error)
	Close() error
}

// Snapshotter is implemented by stores that can hand their live entries
// to a SnapshotRepository and take them back on start.
type Snapshotter interface {
	Snapshot() []domain.StateEntry
	Load(entries []domain.StateEntry) int
}

type SnapshotRepository interface {
	Save(ctx context.Context, entries []domain.StateEntry) error
	Load(ctx context.Context) ([]domain.StateEntry, error)
}
