package toml

import (
	"fmt"

	"github.com/bnema/formflow/internal/domain"
)

const currentSchemaVersion = 1

type fileSchema struct {
	Version int           `toml:"version"`
	SavedAt string        `toml:"saved_at,omitempty"`
	Entries []entrySchema `toml:"entries"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("%w: %d (current %d)", domain.ErrSnapshotVersion, s.Version, currentSchemaVersion)
	}

	return nil
}

type entrySchema struct {
	Key       string         `toml:"key"`
	ExpiresAt string         `toml:"expires_at"`
	Payload   map[string]any `toml:"payload"`
}
