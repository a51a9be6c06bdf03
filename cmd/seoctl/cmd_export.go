package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"seoforge/internal/artifact"
	"seoforge/internal/domain"
)

var exportFlags struct {
	keyword string
	out     string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Zip every stored checkpoint for a keyword",
	RunE:  runExport,
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportFlags.keyword, "keyword", "", "Keyword to export (required)")
	f.StringVar(&exportFlags.out, "out", "", "Output file (default <slug>.zip)")

	_ = exportCmd.MarkFlagRequired("keyword")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
	slug := domain.Slug(exportFlags.keyword)
	if slug == "" {
		return fmt.Errorf("keyword %q has no slug characters", exportFlags.keyword)
	}
	out := exportFlags.out
	if out == "" {
		out = slug + ".zip"
	}

	ctx := cmd.Context()
	graph, err := buildGraph(ctx)
	if err != nil {
		return err
	}
	defer graph.Close()

	data, n, err := graph.Store.Archive(ctx, artifact.KeywordPrefixes(slug)...)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d artifact(s) to %s.\n", n, out)
	return nil
}
