package worklist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"seoforge/internal/domain"
)

// FileRow mirrors one worklist row: the keyword plus the date and status
// columns filled in once it has been processed.
type FileRow struct {
	Keyword string `yaml:"keyword"`
	Date    string `yaml:"date,omitempty"`
	Status  string `yaml:"status,omitempty"`
}

type fileDoc struct {
	Keywords []FileRow `yaml:"keywords"`
}

// FileSource is a YAML-backed worklist. Locators are row indexes.
type FileSource struct {
	path   string
	logger zerolog.Logger
	now    func() time.Time
	mu     sync.Mutex
}

func NewFileSource(path string, logger zerolog.Logger) (*FileSource, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("worklist: file path is required")
	}
	return &FileSource{path: path, logger: logger, now: time.Now}, nil
}

func (s *FileSource) Next(ctx context.Context) (*domain.KeywordTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	for idx, row := range doc.Keywords {
		if strings.TrimSpace(row.Keyword) == "" || row.Status != "" {
			continue
		}
		return &domain.KeywordTask{Keyword: strings.TrimSpace(row.Keyword), Locator: strconv.Itoa(idx)}, nil
	}
	return nil, domain.ErrSourceExhausted
}

// MarkProcessed writes the processing date and "Success" or "Error: msg".
func (s *FileSource) MarkProcessed(ctx context.Context, locator string, status domain.ProcessStatus, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	idx, err := strconv.Atoi(locator)
	if err != nil || idx < 0 || idx >= len(doc.Keywords) {
		return fmt.Errorf("worklist: row %q: %w", locator, domain.ErrNotFound)
	}
	doc.Keywords[idx].Date = s.now().UTC().Format("2006-01-02")
	doc.Keywords[idx].Status = statusText(status, message)
	if err := s.save(doc); err != nil {
		return err
	}
	s.logger.Info().Str("locator", locator).Str("status", string(status)).Msg("worklist: row marked")
	return nil
}

func (s *FileSource) FindByKeyword(ctx context.Context, keyword string) (*domain.KeywordTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	want := strings.ToLower(strings.TrimSpace(keyword))
	for idx, row := range doc.Keywords {
		if want != "" && strings.ToLower(strings.TrimSpace(row.Keyword)) == want {
			return &domain.KeywordTask{Keyword: strings.TrimSpace(row.Keyword), Locator: strconv.Itoa(idx)}, nil
		}
	}
	return nil, domain.ErrNotFound
}

// Add appends keyword as a pending row unless it is already listed.
func (s *FileSource) Add(ctx context.Context, keyword string) error {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return errors.New("worklist: keyword is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	for _, row := range doc.Keywords {
		if strings.EqualFold(strings.TrimSpace(row.Keyword), keyword) {
			return nil
		}
	}
	doc.Keywords = append(doc.Keywords, FileRow{Keyword: keyword})
	return s.save(doc)
}

func (s *FileSource) load() (*fileDoc, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &fileDoc{}, nil
		}
		return nil, fmt.Errorf("worklist: read %s: %w", s.path, err)
	}
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("worklist: parse %s: %w", s.path, err)
	}
	return &doc, nil
}

func (s *FileSource) save(doc *fileDoc) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("worklist: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("worklist: ensure directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("worklist: write %s: %w", tmp, err)
	}
	return os.Rename(tmp, s.path)
}

func statusText(status domain.ProcessStatus, message string) string {
	if status == domain.StatusSuccess {
		return "Success"
	}
	if message == "" {
		return "Error"
	}
	return "Error: " + message
}
