// Package worklist provides the keyword sources the pipeline pulls from.
package worklist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"seoforge/internal/domain"
	"seoforge/internal/infra"
	"seoforge/internal/sqlinline"
)

// PGSource reads pending keywords from the keywords table. A row is pending
// while processed_at is null.
type PGSource struct {
	sql    infra.SQLExecutor
	logger zerolog.Logger
}

func NewPGSource(sql infra.SQLExecutor, logger zerolog.Logger) *PGSource {
	return &PGSource{sql: sql, logger: logger}
}

func (s *PGSource) Next(ctx context.Context) (*domain.KeywordTask, error) {
	task, err := s.scanTask(s.sql.QueryRow(ctx, sqlinline.QSelectNextKeyword))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrSourceExhausted
		}
		return nil, fmt.Errorf("worklist: next keyword: %w", err)
	}
	return task, nil
}

func (s *PGSource) MarkProcessed(ctx context.Context, locator string, status domain.ProcessStatus, message string) error {
	tag, err := s.sql.Exec(ctx, sqlinline.QMarkKeywordProcessed, locator, string(status), message)
	if err != nil {
		return fmt.Errorf("worklist: mark %s: %w", locator, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("worklist: mark %s: %w", locator, domain.ErrNotFound)
	}
	s.logger.Info().Str("locator", locator).Str("status", string(status)).Msg("worklist: row marked")
	return nil
}

func (s *PGSource) FindByKeyword(ctx context.Context, keyword string) (*domain.KeywordTask, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, domain.ErrNotFound
	}
	task, err := s.scanTask(s.sql.QueryRow(ctx, sqlinline.QFindKeyword, keyword))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("worklist: find %q: %w", keyword, err)
	}
	return task, nil
}

// Add inserts keyword as a pending row; duplicates are ignored.
func (s *PGSource) Add(ctx context.Context, keyword string) error {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return errors.New("worklist: keyword is required")
	}
	_, err := s.sql.Exec(ctx, sqlinline.QInsertKeyword, keyword)
	return err
}

func (s *PGSource) scanTask(row interface{ Scan(...any) error }) (*domain.KeywordTask, error) {
	var task domain.KeywordTask
	if err := row.Scan(&task.Locator, &task.Keyword); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &task, nil
}
