package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSlugCommand(t *testing.T) {
	out, err := execute(t, "slug", "Antique", "Pocket Watch", "Value!")
	if err != nil {
		t.Fatalf("slug: %v", err)
	}
	if strings.TrimSpace(out) != "antique-pocket-watch-value" {
		t.Fatalf("slug output = %q", out)
	}
	if _, err := execute(t, "slug", "%%%"); err == nil {
		t.Fatal("expected error for unsluggable keyword")
	}
}

func TestRecoverRequiresKeyword(t *testing.T) {
	_, err := execute(t, "recover", "--date", "2026-03-14")
	if err == nil || !strings.Contains(err.Error(), "keyword") {
		t.Fatalf("recover error = %v", err)
	}
}

func TestKeywordsAddAndRunWithoutPending(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WORDPRESS_API_URL", "https://blog.example.com/wp-json/wp/v2")
	t.Setenv("ARTIFACT_BACKEND", "file")
	t.Setenv("ARTIFACT_PATH", dir+"/artifacts")
	t.Setenv("WORKLIST_BACKEND", "file")
	t.Setenv("WORKLIST_PATH", dir+"/keywords.yaml")
	t.Setenv("TEXT_PROVIDER", "gemini")
	t.Setenv("IMAGE_PROVIDER", "gemini")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("PROMPTS_PATH", "")

	out, err := execute(t, "run")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "No pending keyword") {
		t.Fatalf("run output = %q", out)
	}

	out, err = execute(t, "keywords", "add", "antique pocket watch", "brass compass")
	if err != nil {
		t.Fatalf("keywords add: %v", err)
	}
	if !strings.Contains(out, "Added 2 keyword(s)") {
		t.Fatalf("keywords add output = %q", out)
	}
}
