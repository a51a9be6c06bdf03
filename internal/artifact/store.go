// Package artifact persists pipeline checkpoints and diagnostic logs under
// hierarchical string paths. Stage outputs use fixed names and are
// overwritten in place with a bumped version; log entries are appended under
// unique timestamped names and never overwritten.
package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"seoforge/internal/domain"
)

// ErrNotFound is returned for absent paths.
var ErrNotFound = domain.ErrNotFound

// Tags are free-form labels stored beside a payload.
type Tags map[string]string

// Envelope is one stored artifact.
type Envelope struct {
	Path      string          `json:"path"`
	Payload   json.RawMessage `json:"payload"`
	Tags      Tags            `json:"tags,omitempty"`
	Version   int64           `json:"version"`
	WrittenAt time.Time       `json:"written_at"`
}

// Backend is the persistence layer behind Store. Save assigns env.Version:
// one for a new path, previous plus one for an overwrite. Load returns an
// error wrapping ErrNotFound for absent paths.
type Backend interface {
	Save(ctx context.Context, env *Envelope) error
	Load(ctx context.Context, path string) (*Envelope, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// Store encodes payloads and delegates persistence to a Backend.
type Store struct {
	backend Backend
	logger  zerolog.Logger
	now     func() time.Time
	newID   func() string
}

type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDSource overrides the id generator used for appended entries.
func WithIDSource(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

func New(backend Backend, logger zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		logger:  logger,
		now:     time.Now,
		newID:   func() string { return uuid.NewString()[:8] },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put writes payload at path, replacing any previous version.
func (s *Store) Put(ctx context.Context, path string, payload any, tags Tags) error {
	_, err := s.write(ctx, path, payload, tags)
	return err
}

// Append writes payload under a new unique entry below prefix and returns its path.
func (s *Store) Append(ctx context.Context, prefix string, payload any, tags Tags) (string, error) {
	path := strings.TrimRight(prefix, "/") + "/" + entryName(s.now(), s.newID())
	env, err := s.write(ctx, path, payload, tags)
	if err != nil {
		return "", err
	}
	return env.Path, nil
}

// Get decodes the payload stored at path into out.
func (s *Store) Get(ctx context.Context, path string, out any) error {
	env, err := s.Envelope(ctx, path)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return fmt.Errorf("artifact: decode %s: %w", path, err)
	}
	return nil
}

// Envelope returns the stored envelope at path.
func (s *Store) Envelope(ctx context.Context, path string) (*Envelope, error) {
	path, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	env, err := s.backend.Load(ctx, path)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error().Err(err).Str("path", path).Msg("artifact: load failed")
		}
		return nil, err
	}
	return env, nil
}

// Exists reports whether path holds an artifact.
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.Envelope(ctx, path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// List returns every stored path below prefix in lexical order.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	return s.backend.List(ctx, prefix)
}

func (s *Store) write(ctx context.Context, path string, payload any, tags Tags) (*Envelope, error) {
	path, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("artifact: encode %s: %w", path, err)
	}
	merged := Tags{"namespace": namespaceOf(path)}
	for k, v := range tags {
		merged[k] = v
	}
	env := &Envelope{
		Path:      path,
		Payload:   raw,
		Tags:      merged,
		WrittenAt: s.now().UTC(),
	}
	if err := s.backend.Save(ctx, env); err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("artifact: save failed")
		return nil, fmt.Errorf("artifact: save %s: %w", path, err)
	}
	s.logger.Debug().Str("path", path).Int64("version", env.Version).Msg("artifact: saved")
	return env, nil
}

// cleanPath normalizes a path and rejects ones that could escape a namespace.
func cleanPath(path string) (string, error) {
	path = strings.Trim(strings.TrimSpace(strings.ReplaceAll(path, "\\", "/")), "/")
	if path == "" {
		return "", errors.New("artifact: path is required")
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("artifact: invalid path %q", path)
		}
	}
	return path, nil
}
