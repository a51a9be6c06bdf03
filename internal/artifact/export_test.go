package artifact

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

func TestArchiveCollectsEveryLayout(t *testing.T) {
	ctx := context.Background()
	store := New(NewMemoryBackend(), zerolog.Nop(), WithClock(fixedClock()))
	for _, p := range []string{
		"keywords/pocket-watch/structure",
		"keywords/pocket-watch/composed",
		"content/pocket-watch/composed",
		"keywords/pocket-watch-repair/structure",
	} {
		if err := store.Put(ctx, p, map[string]string{"path": p}, nil); err != nil {
			t.Fatalf("Put %s: %v", p, err)
		}
	}

	data, n, err := store.Archive(ctx, KeywordPrefixes("pocket-watch")...)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	want := []string{
		"keywords/pocket-watch/composed.json",
		"keywords/pocket-watch/structure.json",
		"content/pocket-watch/composed.json",
	}
	if n != len(want) {
		t.Fatalf("count = %d, want %d", n, len(want))
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("archive entries mismatch (-want +got):\n%s", diff)
	}
}

func TestArchiveEmpty(t *testing.T) {
	store := New(NewMemoryBackend(), zerolog.Nop())
	if _, _, err := store.Archive(context.Background(), KeywordPrefixes("missing")...); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Archive error = %v, want ErrNotFound", err)
	}
}

func TestKeywordPrefixes(t *testing.T) {
	want := []string{"keywords/x", "posts/x", "content/x"}
	if diff := cmp.Diff(want, KeywordPrefixes("x")); diff != "" {
		t.Fatalf("prefixes mismatch (-want +got):\n%s", diff)
	}
}
