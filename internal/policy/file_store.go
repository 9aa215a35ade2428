package policy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/rs/zerolog"
)

var guildIDPattern = regexp.MustCompile(`^[0-9A-Za-z_-]{1,64}$`)

// FileStore keeps one JSON document per guild under a directory.
type FileStore struct {
	dir      string
	defaults Defaults
	logger   zerolog.Logger
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string, d Defaults, logger zerolog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating policy dir: %w", err)
	}
	return &FileStore{
		dir:      dir,
		defaults: d,
		logger:   logger.With().Str("component", "policy_store").Str("backend", "file").Logger(),
	}, nil
}

func (s *FileStore) path(guildID string) (string, error) {
	if !guildIDPattern.MatchString(guildID) {
		return "", fmt.Errorf("%w: invalid guild id %q", ErrStoreUnavailable, guildID)
	}
	return filepath.Join(s.dir, guildID+".json"), nil
}

func (s *FileStore) Load(ctx context.Context, guildID string) (*Policy, error) {
	path, err := s.path(guildID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		p := s.defaults.New()
		if err := s.Save(ctx, guildID, p); err != nil {
			s.logger.Warn().Err(err).Str("guild_id", guildID).Msg("could not persist default policy")
		}
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrStoreUnavailable, path, err)
	}

	p, err := Unmarshal(data, s.defaults)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, path, err)
	}
	return p, nil
}

// Save writes to a temp file in the same directory and renames it over the
// old document, so readers never observe a partial write.
func (s *FileStore) Save(_ context.Context, guildID string, p *Policy) error {
	path, err := s.path(guildID)
	if err != nil {
		return err
	}
	data, err := p.Marshal()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	tmp, err := os.CreateTemp(s.dir, guildID+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %v", ErrStoreUnavailable, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: writing %s: %v", ErrStoreUnavailable, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: closing %s: %v", ErrStoreUnavailable, tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: renaming to %s: %v", ErrStoreUnavailable, path, err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
