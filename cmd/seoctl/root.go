package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"seoforge/internal/infra"
	"seoforge/internal/wiring"
)

var rootCmd = &cobra.Command{
	Use:   "seoctl",
	Short: "Operate the keyword-to-article pipeline",
	Long:  "seoctl runs pipeline steps, resumes interrupted keywords and manages\nthe worklist and provider credentials.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(slugCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(keywordsCmd)
	rootCmd.AddCommand(credentialsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*infra.Config, zerolog.Logger, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, infra.NewLogger(cfg.AppEnv, cfg.LogLevel), nil
}

func buildGraph(ctx context.Context) (*wiring.Graph, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return wiring.Build(ctx, cfg, logger)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
