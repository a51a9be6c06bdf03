package worklist

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"seoforge/internal/domain"
)

type stubExecutor struct {
	id       string
	keyword  string
	err      error
	affected string
	exec     struct {
		query string
		args  []any
	}
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.exec.query = query
	s.exec.args = args
	tag := s.affected
	if tag == "" {
		tag = "UPDATE 1"
	}
	return pgconn.NewCommandTag(tag), s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return stubRow{id: s.id, keyword: s.keyword, err: s.err}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	id      string
	keyword string
	err     error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != 2 {
		return errors.New("expected two destinations")
	}
	*dest[0].(*string) = r.id
	*dest[1].(*string) = r.keyword
	return nil
}

func TestPGSourceNext(t *testing.T) {
	src := NewPGSource(&stubExecutor{id: "0b5c", keyword: "antique pocket watch value"}, zerolog.Nop())
	task, err := src.Next(context.Background())
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if task.Locator != "0b5c" || task.Keyword != "antique pocket watch value" {
		t.Fatalf("task = %+v", task)
	}
}

func TestPGSourceNext_NoRows(t *testing.T) {
	src := NewPGSource(&stubExecutor{err: pgx.ErrNoRows}, zerolog.Nop())
	if _, err := src.Next(context.Background()); !errors.Is(err, domain.ErrSourceExhausted) {
		t.Fatalf("Next error = %v, want ErrSourceExhausted", err)
	}
}

func TestPGSourceMarkProcessed(t *testing.T) {
	exec := &stubExecutor{}
	src := NewPGSource(exec, zerolog.Nop())
	if err := src.MarkProcessed(context.Background(), "0b5c", domain.StatusError, "stage plan failed"); err != nil {
		t.Fatalf("MarkProcessed error: %v", err)
	}
	if len(exec.exec.args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(exec.exec.args))
	}
	if v, ok := exec.exec.args[1].(string); !ok || v != "error" {
		t.Fatalf("expected status argument, got %T %v", exec.exec.args[1], exec.exec.args[1])
	}
	if v, ok := exec.exec.args[2].(string); !ok || v != "stage plan failed" {
		t.Fatalf("expected message argument, got %T %v", exec.exec.args[2], exec.exec.args[2])
	}
}

func TestPGSourceMarkProcessedMissingRow(t *testing.T) {
	src := NewPGSource(&stubExecutor{affected: "UPDATE 0"}, zerolog.Nop())
	if err := src.MarkProcessed(context.Background(), "gone", domain.StatusSuccess, ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("MarkProcessed error = %v, want ErrNotFound", err)
	}
}

func TestPGSourceFindByKeyword(t *testing.T) {
	src := NewPGSource(&stubExecutor{err: pgx.ErrNoRows}, zerolog.Nop())
	if _, err := src.FindByKeyword(context.Background(), "nothing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("FindByKeyword error = %v, want ErrNotFound", err)
	}
	if _, err := src.FindByKeyword(context.Background(), "  "); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("blank keyword should be ErrNotFound, got %v", err)
	}
}

func TestPGSourceAddRejectsBlank(t *testing.T) {
	src := NewPGSource(&stubExecutor{}, zerolog.Nop())
	if err := src.Add(context.Background(), " "); err == nil {
		t.Fatal("expected error for blank keyword")
	}
}

var _ domain.KeywordSource = (*PGSource)(nil)
var _ domain.KeywordSource = (*FileSource)(nil)
