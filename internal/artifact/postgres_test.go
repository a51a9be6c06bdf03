package artifact

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

type stubExecutor struct {
	rowErr  error
	version int64
	load    struct {
		payload   []byte
		tags      []byte
		version   int64
		writtenAt time.Time
	}
	queries []string
	args    [][]any
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("not implemented")
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.queries = append(s.queries, query)
	s.args = append(s.args, args)
	return stubRow{exec: s}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	exec *stubExecutor
}

func (r stubRow) Scan(dest ...any) error {
	if r.exec.rowErr != nil {
		return r.exec.rowErr
	}
	switch len(dest) {
	case 1:
		ptr, ok := dest[0].(*int64)
		if !ok {
			return errors.New("invalid dest")
		}
		r.exec.version++
		*ptr = r.exec.version
	case 4:
		*dest[0].(*[]byte) = r.exec.load.payload
		*dest[1].(*[]byte) = r.exec.load.tags
		*dest[2].(*int64) = r.exec.load.version
		*dest[3].(*time.Time) = r.exec.load.writtenAt
	default:
		return errors.New("unexpected dest count")
	}
	return nil
}

func TestPGBackendSave(t *testing.T) {
	exec := &stubExecutor{}
	store := New(NewPGBackend(exec), zerolog.Nop(), WithClock(fixedClock()))

	if err := store.Put(context.Background(), KeywordPath("x", StageStructure), map[string]string{"title": "t"}, Tags{"keyword": "x"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(exec.queries) != 1 || !strings.Contains(exec.queries[0], "insert into artifacts") {
		t.Fatalf("queries = %#v", exec.queries)
	}
	args := exec.args[0]
	if len(args) != 4 {
		t.Fatalf("expected 4 args, got %d", len(args))
	}
	if v, ok := args[0].(string); !ok || v != "keywords/x/structure" {
		t.Fatalf("path arg = %T %v", args[0], args[0])
	}
	if v, ok := args[1].([]byte); !ok || string(v) != `{"title":"t"}` {
		t.Fatalf("payload arg = %T %v", args[1], args[1])
	}
	if v, ok := args[2].([]byte); !ok || !strings.Contains(string(v), `"keyword":"x"`) {
		t.Fatalf("tags arg = %T %v", args[2], args[2])
	}
}

func TestPGBackendLoad(t *testing.T) {
	exec := &stubExecutor{}
	exec.load.payload = []byte(`{"remote_id":"42"}`)
	exec.load.tags = []byte(`{"namespace":"keywords"}`)
	exec.load.version = 2
	exec.load.writtenAt = fixedClock()()
	store := New(NewPGBackend(exec), zerolog.Nop())

	var out struct {
		RemoteID string `json:"remote_id"`
	}
	if err := store.Get(context.Background(), KeywordPath("x", StagePublished), &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if out.RemoteID != "42" {
		t.Fatalf("RemoteID = %q", out.RemoteID)
	}
	env, err := store.Envelope(context.Background(), KeywordPath("x", StagePublished))
	if err != nil {
		t.Fatalf("Envelope: %v", err)
	}
	if env.Version != 2 || env.Tags["namespace"] != "keywords" {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestPGBackendLoadNoRows(t *testing.T) {
	store := New(NewPGBackend(&stubExecutor{rowErr: pgx.ErrNoRows}), zerolog.Nop())
	err := store.Get(context.Background(), KeywordPath("x", StageComposed), nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get error = %v, want ErrNotFound", err)
	}
}
