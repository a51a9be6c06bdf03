package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"seoforge/internal/artifact"
	"seoforge/internal/domain"
	"seoforge/internal/lock"
)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

const testDate = "2026-03-14"

type fakeGenerator struct {
	mu         sync.Mutex
	responses  map[string]string
	errs       map[string]error
	imageErrs  map[string]error
	structured map[string]int
	images     int
	bundles    []domain.PromptBundle
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		responses:  map[string]string{},
		errs:       map[string]error{},
		imageErrs:  map[string]error{},
		structured: map[string]int{},
	}
}

func (g *fakeGenerator) GenerateStructured(_ context.Context, bundle domain.PromptBundle) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.structured[bundle.Name]++
	g.bundles = append(g.bundles, bundle)
	if err := g.errs[bundle.Name]; err != nil {
		return "", err
	}
	resp, ok := g.responses[bundle.Name]
	if !ok {
		return "", fmt.Errorf("no scripted response for %s", bundle.Name)
	}
	return resp, nil
}

// GenerateImage fails for prompts containing a key of imageErrs.
func (g *fakeGenerator) GenerateImage(_ context.Context, prompt, size string) (*domain.GeneratedImage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.images++
	for needle, err := range g.imageErrs {
		if strings.Contains(prompt, needle) {
			return nil, err
		}
	}
	return &domain.GeneratedImage{URL: fmt.Sprintf("https://images.example.com/raw/%d.png", g.images), MIMEType: "image/png"}, nil
}

func (g *fakeGenerator) structuredCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	total := 0
	for _, n := range g.structured {
		total += n
	}
	return total
}

type fakePublisher struct {
	mu         sync.Mutex
	failUpload map[string]error
	createErr  error
	uploads    []string
	posts      []domain.PostPackage
	nextID     int
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{failUpload: map[string]error{}, nextID: 100}
}

func uploadURL(filename string) string {
	return "https://blog.example.com/wp-content/uploads/" + filename + ".png"
}

func (p *fakePublisher) UploadAsset(_ context.Context, _ domain.GeneratedImage, filename string) (*domain.UploadedAsset, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.uploads = append(p.uploads, filename)
	if err := p.failUpload[filename]; err != nil {
		return nil, err
	}
	p.nextID++
	return &domain.UploadedAsset{ID: strconv.Itoa(p.nextID), URL: uploadURL(filename)}, nil
}

func (p *fakePublisher) CreatePost(_ context.Context, pkg domain.PostPackage) (*domain.PublishedPost, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts = append(p.posts, pkg)
	if p.createErr != nil {
		return nil, p.createErr
	}
	id := 9000 + len(p.posts)
	return &domain.PublishedPost{
		RemoteID:  strconv.Itoa(id),
		RemoteURL: fmt.Sprintf("https://blog.example.com/?p=%d", id),
		CreatedAt: testNow,
	}, nil
}

func (p *fakePublisher) postCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.posts)
}

type sourceRow struct {
	keyword string
	status  domain.ProcessStatus
	message string
}

type fakeSource struct {
	mu   sync.Mutex
	rows []*sourceRow
	// failSuccess rejects that many success marks before accepting one.
	failSuccess int
}

func newFakeSource(keywords ...string) *fakeSource {
	s := &fakeSource{}
	for _, kw := range keywords {
		s.rows = append(s.rows, &sourceRow{keyword: kw})
	}
	return s
}

func (s *fakeSource) Next(context.Context) (*domain.KeywordTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, row := range s.rows {
		if row.status == "" {
			return &domain.KeywordTask{Keyword: row.keyword, Locator: strconv.Itoa(i)}, nil
		}
	}
	return nil, domain.ErrSourceExhausted
}

func (s *fakeSource) MarkProcessed(_ context.Context, locator string, status domain.ProcessStatus, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := strconv.Atoi(locator)
	if err != nil || idx < 0 || idx >= len(s.rows) {
		return domain.ErrNotFound
	}
	if status == domain.StatusSuccess && s.failSuccess > 0 {
		s.failSuccess--
		return errWorklistDown
	}
	s.rows[idx].status = status
	s.rows[idx].message = message
	return nil
}

func (s *fakeSource) FindByKeyword(_ context.Context, keyword string) (*domain.KeywordTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, row := range s.rows {
		if strings.EqualFold(row.keyword, keyword) {
			return &domain.KeywordTask{Keyword: row.keyword, Locator: strconv.Itoa(i)}, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *fakeSource) row(i int) sourceRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rows[i]
}

type testEnv struct {
	gen      *fakeGenerator
	pub      *fakePublisher
	src      *fakeSource
	store    *artifact.Store
	locker   *lock.LocalLocker
	coord    *Coordinator
	recovery *Recovery
}

func newTestEnv(t *testing.T, keywords ...string) *testEnv {
	t.Helper()
	env := &testEnv{
		gen:    newFakeGenerator(),
		pub:    newFakePublisher(),
		src:    newFakeSource(keywords...),
		store:  artifact.New(artifact.NewMemoryBackend(), zerolog.Nop(), artifact.WithClock(func() time.Time { return testNow })),
		locker: lock.NewLocalLocker(),
	}
	runs := 0
	coord, err := NewCoordinator(Deps{
		Source:    env.src,
		Generator: env.gen,
		Publisher: env.pub,
		Store:     env.store,
		Locker:    env.locker,
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return testNow },
		NewRunID: func() string {
			runs++
			return fmt.Sprintf("run-%d", runs)
		},
	})
	if err != nil {
		t.Fatalf("NewCoordinator returned error: %v", err)
	}
	env.coord = coord
	env.recovery = NewRecovery(coord)
	return env
}

// scriptPlan sets a fenced structure response with the given image types.
func (e *testEnv) scriptPlan(t *testing.T, keyword string, kinds ...domain.ImageType) {
	t.Helper()
	items := make([]map[string]string, 0, len(kinds))
	for i, kind := range kinds {
		items = append(items, map[string]string{
			"type":           string(kind),
			"prompt":         fmt.Sprintf("image %d of %s", i+1, keyword),
			"alt_text":       fmt.Sprintf("alt %d", i+1),
			"placement_hint": "after introduction",
		})
	}
	plan := map[string]any{
		"title": "Guide to " + keyword,
		"slug":  "model-picked-slug",
		"metadata": map[string]string{
			"seo_title":       "What is your " + keyword + "?",
			"seo_description": "Learn about " + keyword,
			"focus_keyword":   keyword,
		},
		"outline":     []map[string]any{{"heading": "Introduction", "key_points": []string{"history"}}},
		"image_plans": items,
	}
	data, err := json.Marshal(plan)
	if err != nil {
		t.Fatalf("marshal plan: %v", err)
	}
	e.gen.responses["structure"] = "Here is the plan:\n```json\n" + string(data) + "\n```"
}

// scriptContent sets a body response embedding every url.
func (e *testEnv) scriptContent(t *testing.T, title string, urls ...string) {
	t.Helper()
	var html strings.Builder
	html.WriteString("<article><h1>" + title + "</h1><p>Antique pocket watches are valued by maker, movement and condition.</p>")
	for i, u := range urls {
		fmt.Fprintf(&html, `<figure><img src="%s" alt="alt %d" class="old"><figcaption>caption</figcaption></figure>`, u, i+1)
	}
	html.WriteString("</article>")
	body := map[string]any{
		"title": title,
		"slug":  "ignored",
		"meta": map[string]string{
			"title":         title + " | Guide",
			"description":   "How to value " + title,
			"focus_keyword": title,
		},
		"html": html.String(),
	}
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	e.gen.responses["content"] = string(data)
}

func (e *testEnv) exists(t *testing.T, path string) bool {
	t.Helper()
	ok, err := e.store.Exists(context.Background(), path)
	if err != nil {
		t.Fatalf("Exists(%s): %v", path, err)
	}
	return ok
}

func (e *testEnv) list(t *testing.T, prefix string) []string {
	t.Helper()
	paths, err := e.store.List(context.Background(), prefix)
	if err != nil {
		t.Fatalf("List(%s): %v", prefix, err)
	}
	return paths
}

var (
	errUpstream     = errors.New("upstream unavailable")
	errWorklistDown = errors.New("worklist unavailable")
)
