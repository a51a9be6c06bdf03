package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const fileExt = ".json"

// FileBackend stores each envelope as {basePath}/{path}.json. It is intended
// for single-host deployments and local development.
type FileBackend struct {
	basePath string
	mu       sync.Mutex
}

// NewFileBackend initializes a FileBackend rooted at basePath.
func NewFileBackend(basePath string) (*FileBackend, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("artifact: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: ensure base path: %w", err)
	}
	return &FileBackend{basePath: basePath}, nil
}

// BasePath returns the configured root directory.
func (b *FileBackend) BasePath() string {
	if b == nil {
		return ""
	}
	return b.basePath
}

func (b *FileBackend) Save(ctx context.Context, env *Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := b.fullPath(env.Path)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	env.Version = 1
	if prev, err := readEnvelope(fullPath); err == nil {
		env.Version = prev.Version + 1
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: encode envelope: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("artifact: ensure directory: %w", err)
	}
	// Write then rename so readers never observe a torn file.
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("artifact: create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("artifact: write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("artifact: close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("artifact: rename file: %w", err)
	}
	return nil
}

func (b *FileBackend) Load(ctx context.Context, path string) (*Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := b.fullPath(path)
	if err != nil {
		return nil, err
	}
	env, err := readEnvelope(fullPath)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("artifact %s: %w", path, ErrNotFound)
		}
		return nil, err
	}
	return env, nil
}

func (b *FileBackend) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root := b.basePath
	if prefix != "" {
		cleanPrefix, err := sanitizeKey(prefix)
		if err != nil {
			return nil, err
		}
		root = filepath.Join(b.basePath, filepath.FromSlash(cleanPrefix))
	}
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), fileExt) || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(b.basePath, p)
		if err != nil {
			return err
		}
		out = append(out, strings.TrimSuffix(filepath.ToSlash(rel), fileExt))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("artifact: list %s: %w", prefix, err)
	}
	sort.Strings(out)
	return out, nil
}

func (b *FileBackend) fullPath(path string) (string, error) {
	cleanKey, err := sanitizeKey(path)
	if err != nil {
		return "", err
	}
	return filepath.Join(b.basePath, filepath.FromSlash(cleanKey)+fileExt), nil
}

func readEnvelope(fullPath string) (*Envelope, error) {
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("artifact: read file: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("artifact: decode %s: %w", fullPath, err)
	}
	return &env, nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("artifact: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("artifact: invalid key")
	}
	return cleaned, nil
}
