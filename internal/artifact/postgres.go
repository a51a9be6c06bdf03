package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"seoforge/internal/infra"
	"seoforge/internal/sqlinline"
)

// PGBackend stores envelopes in the artifacts table.
type PGBackend struct {
	sql infra.SQLExecutor
}

func NewPGBackend(sql infra.SQLExecutor) *PGBackend {
	return &PGBackend{sql: sql}
}

func (b *PGBackend) Save(ctx context.Context, env *Envelope) error {
	tags, err := json.Marshal(env.Tags)
	if err != nil {
		return fmt.Errorf("artifact: encode tags: %w", err)
	}
	row := b.sql.QueryRow(ctx, sqlinline.QUpsertArtifact, env.Path, []byte(env.Payload), tags, env.WrittenAt)
	if err := row.Scan(&env.Version); err != nil {
		return fmt.Errorf("artifact: upsert %s: %w", env.Path, err)
	}
	return nil
}

func (b *PGBackend) Load(ctx context.Context, path string) (*Envelope, error) {
	var (
		payload   []byte
		tags      []byte
		version   int64
		writtenAt time.Time
	)
	row := b.sql.QueryRow(ctx, sqlinline.QSelectArtifact, path)
	if err := row.Scan(&payload, &tags, &version, &writtenAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, fmt.Errorf("artifact %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("artifact: select %s: %w", path, err)
	}
	env := &Envelope{
		Path:      path,
		Payload:   json.RawMessage(payload),
		Version:   version,
		WrittenAt: writtenAt.UTC(),
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &env.Tags); err != nil {
			return nil, fmt.Errorf("artifact: decode tags %s: %w", path, err)
		}
	}
	return env, nil
}

func (b *PGBackend) List(ctx context.Context, prefix string) ([]string, error) {
	match := prefix
	if match != "" {
		match += "/"
	}
	rows, err := b.sql.Query(ctx, sqlinline.QListArtifacts, match)
	if err != nil {
		return nil, fmt.Errorf("artifact: list %s: %w", prefix, err)
	}
	paths, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("artifact: list %s: %w", prefix, err)
	}
	return paths, nil
}
