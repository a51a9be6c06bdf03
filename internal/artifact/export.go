package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"seoforge/pkg/zip"
)

// Archive zips every envelope below the given prefixes, one JSON file per
// path. Paths present under several prefixes are written once.
func (s *Store) Archive(ctx context.Context, prefixes ...string) ([]byte, int, error) {
	seen := map[string]bool{}
	var assets []zip.Asset
	for _, prefix := range prefixes {
		paths, err := s.List(ctx, prefix)
		if err != nil {
			return nil, 0, fmt.Errorf("artifact: list %s: %w", prefix, err)
		}
		for _, p := range paths {
			if seen[p] {
				continue
			}
			seen[p] = true
			env, err := s.Envelope(ctx, p)
			if err != nil {
				return nil, 0, err
			}
			data, err := json.MarshalIndent(env, "", "  ")
			if err != nil {
				return nil, 0, fmt.Errorf("artifact: encode %s: %w", p, err)
			}
			assets = append(assets, zip.Asset{Filename: p + ".json", Modified: env.WrittenAt, Data: data})
		}
	}
	if len(assets) == 0 {
		return nil, 0, fmt.Errorf("artifact: nothing stored under %v: %w", prefixes, ErrNotFound)
	}
	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		return nil, 0, err
	}
	return archive, len(assets), nil
}

// KeywordPrefixes returns every directory that may hold checkpoints for
// slug, current layout first.
func KeywordPrefixes(slug string) []string {
	candidates := ComposedCandidates(slug)
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, path.Dir(c))
	}
	return out
}
