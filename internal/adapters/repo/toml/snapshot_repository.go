package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bnema/formflow/internal/domain"
	"github.com/bnema/formflow/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	snapshotPathKey  = "state.snapshot_path"
	snapshotFileMode = 0o600
	snapshotDirMode  = 0o700
	snapshotDir      = ".config/formflow"
	snapshotFile     = "state.toml"
	tempFilePattern  = ".state-*.toml.tmp"
)

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

// SnapshotRepository persists live state entries to a TOML file so an
// in-memory store survives a restart. Nil payload values are dropped since
// TOML has no null.
type SnapshotRepository struct {
	path  string
	mu    *sync.RWMutex
	clock ports.Clock
}

var _ ports.SnapshotRepository = (*SnapshotRepository)(nil)

func NewSnapshotRepository(cfg *viper.Viper, clock ports.Clock) (*SnapshotRepository, error) {
	if cfg == nil {
		cfg = viper.New()
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}

	path := cfg.GetString(snapshotPathKey)
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(homeDir, snapshotDir, snapshotFile)
	}

	path, err := normalizePath(path)
	if err != nil {
		return nil, err
	}

	return &SnapshotRepository{path: path, mu: lockForPath(path), clock: clock}, nil
}

func (r *SnapshotRepository) Path() string {
	return r.path
}

// Save replaces the snapshot with entries, skipping any already expired.
func (r *SnapshotRepository) Save(ctx context.Context, entries []domain.StateEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := r.clock.Now()
	file := fileSchema{SavedAt: formatTime(now)}
	file.applyDefaults()
	for _, entry := range entries {
		if entry.Expired(now) {
			continue
		}
		file.Entries = append(file.Entries, toSchema(entry))
	}
	sort.Slice(file.Entries, func(i, j int) bool {
		return file.Entries[i].Key < file.Entries[j].Key
	})

	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return writeTOMLFile(r.path, file)
}

// Load returns the unexpired entries of the snapshot. A missing file is an
// empty snapshot.
func (r *SnapshotRepository) Load(ctx context.Context) ([]domain.StateEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return nil, err
	}

	now := r.clock.Now()
	entries := make([]domain.StateEntry, 0, len(file.Entries))
	for _, schema := range file.Entries {
		entry := fromSchema(schema)
		if entry.Key == "" || entry.Expired(now) {
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

func (r *SnapshotRepository) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{}, nil
		}
		return fileSchema{}, fmt.Errorf("read snapshot file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode snapshot file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func normalizePath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve snapshot path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

func writeTOMLFile(path string, file any) error {
	if err := os.MkdirAll(filepath.Dir(path), snapshotDirMode); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode snapshot file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp snapshot file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp snapshot file: %w", err)
	}

	if err := tempFile.Chmod(snapshotFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp snapshot file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp snapshot file: %w", err)
	}

	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("replace snapshot file: %w", err)
	}

	cleanup = false

	return nil
}

func toSchema(entry domain.StateEntry) entrySchema {
	return entrySchema{
		Key:       entry.Key,
		ExpiresAt: formatTime(entry.ExpiresAt),
		Payload:   withoutNils(entry.Payload),
	}
}

func fromSchema(schema entrySchema) domain.StateEntry {
	payload := domain.Payload(schema.Payload)
	if payload == nil {
		payload = domain.Payload{}
	}

	return domain.StateEntry{
		Key:       schema.Key,
		Payload:   payload,
		ExpiresAt: parseTime(schema.ExpiresAt),
	}
}

func withoutNils(payload domain.Payload) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		if nested, ok := domain.AsPayload(v); ok {
			out[k] = withoutNils(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}

	return parsed
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}

	return value.UTC().Format(time.RFC3339Nano)
}
