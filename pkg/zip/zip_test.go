package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
	"time"
)

func TestArchiveAssets(t *testing.T) {
	modified := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	data, err := ArchiveAssets([]Asset{
		{Filename: "keywords/pocket-watch/structure.json", Modified: modified, Data: []byte(`{"title":"x"}`)},
		{Filename: "keywords/pocket-watch/composed.json", Modified: modified, Data: []byte(`{}`)},
	})
	if err != nil {
		t.Fatalf("ArchiveAssets: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 2 || zr.File[0].Name != "keywords/pocket-watch/structure.json" {
		t.Fatalf("files = %v", zr.File)
	}
	rc, err := zr.File[0].Open()
	if err != nil {
		t.Fatalf("open entry: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != `{"title":"x"}` {
		t.Fatalf("entry = %s", body)
	}
	if !zr.File[0].Modified.Equal(modified) {
		t.Fatalf("modified = %s", zr.File[0].Modified)
	}
}
