package artifact

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"seoforge/internal/domain"
)

func fixedClock() func() time.Time {
	ts := time.Date(2024, 3, 9, 10, 30, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	fileBackend, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"file":   fileBackend,
	}
}

func samplePlan() domain.ContentPlan {
	return domain.ContentPlan{
		Keyword: "antique pocket watch value",
		Title:   "What Is My Antique Pocket Watch Worth?",
		Slug:    "antique-pocket-watch-value",
		Metadata: domain.PlanMetadata{
			SEOTitle:       "Antique Pocket Watch Value Guide",
			SEODescription: "How collectors price antique pocket watches.",
			FocusKeyword:   "antique pocket watch value",
		},
		Outline: []domain.OutlineSection{
			{Heading: "Maker and movement", KeyPoints: []string{"hallmarks", "jewel count"}},
			{Heading: "Condition", KeyPoints: []string{"dial", "case wear"}},
		},
		ImagePlans: []domain.ImagePlanItem{
			{Type: domain.ImageTypeFeatured, Prompt: "gold pocket watch on velvet", AltText: "gold pocket watch", PlacementHint: "top"},
			{Type: domain.ImageTypeContent, Prompt: "watch movement macro", AltText: "movement", PlacementHint: "after section 1"},
		},
	}
}

func TestContentPlanRoundTrip(t *testing.T) {
	for name, backend := range backends(t) {
		backend := backend
		t.Run(name, func(t *testing.T) {
			store := New(backend, zerolog.Nop(), WithClock(fixedClock()))
			plan := samplePlan()
			path := KeywordPath(plan.Slug, StageStructure)
			if err := store.Put(context.Background(), path, plan, Tags{"keyword": plan.Keyword}); err != nil {
				t.Fatalf("Put: %v", err)
			}
			var got domain.ContentPlan
			if err := store.Get(context.Background(), path, &got); err != nil {
				t.Fatalf("Get: %v", err)
			}
			if diff := cmp.Diff(plan, got); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPutOverwritesAndBumpsVersion(t *testing.T) {
	for name, backend := range backends(t) {
		backend := backend
		t.Run(name, func(t *testing.T) {
			store := New(backend, zerolog.Nop(), WithClock(fixedClock()))
			path := KeywordPath("x", StageContent)
			for i := 1; i <= 3; i++ {
				if err := store.Put(context.Background(), path, map[string]int{"n": i}, nil); err != nil {
					t.Fatalf("Put #%d: %v", i, err)
				}
			}
			env, err := store.Envelope(context.Background(), path)
			if err != nil {
				t.Fatalf("Envelope: %v", err)
			}
			if env.Version != 3 {
				t.Fatalf("version = %d, want 3", env.Version)
			}
			if string(env.Payload) != `{"n":3}` {
				t.Fatalf("payload = %s, want latest write", env.Payload)
			}
			if env.Tags["namespace"] != NamespaceKeywords {
				t.Fatalf("namespace tag = %q", env.Tags["namespace"])
			}
			if !env.WrittenAt.Equal(fixedClock()()) {
				t.Fatalf("written_at = %s", env.WrittenAt)
			}
		})
	}
}

func TestGetMissing(t *testing.T) {
	for name, backend := range backends(t) {
		backend := backend
		t.Run(name, func(t *testing.T) {
			store := New(backend, zerolog.Nop())
			var out map[string]any
			err := store.Get(context.Background(), KeywordPath("missing", StageComposed), &out)
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get error = %v, want ErrNotFound", err)
			}
			ok, err := store.Exists(context.Background(), KeywordPath("missing", StageComposed))
			if err != nil || ok {
				t.Fatalf("Exists = %v, %v", ok, err)
			}
		})
	}
}

func TestAppendNeverOverwrites(t *testing.T) {
	for name, backend := range backends(t) {
		backend := backend
		t.Run(name, func(t *testing.T) {
			ids := []string{"aaaa", "bbbb"}
			store := New(backend, zerolog.Nop(), WithClock(fixedClock()), WithIDSource(func() string {
				id := ids[0]
				ids = ids[1:]
				return id
			}))
			prefix := ErrorLogPrefix("2024-03-09")
			first, err := store.Append(context.Background(), prefix, map[string]string{"error": "one"}, nil)
			if err != nil {
				t.Fatalf("Append: %v", err)
			}
			second, err := store.Append(context.Background(), prefix, map[string]string{"error": "two"}, nil)
			if err != nil {
				t.Fatalf("Append: %v", err)
			}
			if first == second {
				t.Fatalf("append reused path %s", first)
			}
			if !strings.HasPrefix(first, "logs/2024-03-09/errors/20240309T103000") {
				t.Fatalf("unexpected entry path %s", first)
			}
			paths, err := store.List(context.Background(), prefix)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if diff := cmp.Diff([]string{first, second}, paths); diff != "" {
				t.Fatalf("List mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestListRespectsSegmentBoundary(t *testing.T) {
	for name, backend := range backends(t) {
		backend := backend
		t.Run(name, func(t *testing.T) {
			store := New(backend, zerolog.Nop())
			for _, p := range []string{"keywords/ab/structure", "keywords/abc/structure"} {
				if err := store.Put(context.Background(), p, true, nil); err != nil {
					t.Fatalf("Put %s: %v", p, err)
				}
			}
			paths, err := store.List(context.Background(), "keywords/ab")
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(paths) != 1 || paths[0] != "keywords/ab/structure" {
				t.Fatalf("List = %#v", paths)
			}
		})
	}
}

func TestRejectsTraversal(t *testing.T) {
	store := New(NewMemoryBackend(), zerolog.Nop())
	for _, p := range []string{"", "keywords/../etc", "keywords//x", "./"} {
		if err := store.Put(context.Background(), p, 1, nil); err == nil {
			t.Fatalf("Put(%q) should fail", p)
		}
	}
}

func TestComposedCandidatesOrder(t *testing.T) {
	want := []string{
		"keywords/x/composed",
		"posts/x/composed",
		"content/x/composed",
	}
	if diff := cmp.Diff(want, ComposedCandidates("x")); diff != "" {
		t.Fatalf("ComposedCandidates mismatch (-want +got):\n%s", diff)
	}
}

func TestPathHelpers(t *testing.T) {
	cases := map[string]string{
		KeywordPath("s", StageStructure):      "keywords/s/structure",
		PostPath("2024-03-09", PreCreation):   "posts/2024-03-09/pre_creation",
		ErrorLogPrefix("2024-03-09"):          "logs/2024-03-09/errors",
		RecoveryErrorLogPrefix("2024-03-09"):  "logs/recovery/2024-03-09/errors",
		ImageLogPrefix("2024-03-09", "error"): "logs/image_operations/2024-03-09/error",
		DateKey(fixedClock()()):               "2024-03-09",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("path = %q, want %q", got, want)
		}
	}
}
