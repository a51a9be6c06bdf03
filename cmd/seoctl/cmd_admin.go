package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"seoforge/internal/infra"
	"seoforge/internal/infra/credentials"
	"seoforge/internal/sqlinline"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the worklist, artifact and credential tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSQL(cmd.Context(), func(sql *infra.SQLRunner) error {
			if _, err := sql.Exec(cmd.Context(), sqlinline.QEnsureSchema); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
			return nil
		})
	},
}

var keywordsCmd = &cobra.Command{
	Use:   "keywords",
	Short: "Manage the keyword worklist",
}

var keywordsAddCmd = &cobra.Command{
	Use:   "add <keyword>...",
	Short: "Append keywords as pending rows",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		graph, err := buildGraph(ctx)
		if err != nil {
			return err
		}
		defer graph.Close()
		for _, kw := range args {
			if err := graph.Worklist.Add(ctx, kw); err != nil {
				return fmt.Errorf("add %q: %w", kw, err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %d keyword(s).\n", len(args))
		return nil
	},
}

var credentialsFlags struct {
	provider string
	token    string
}

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage stored provider tokens",
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store a provider token in the database",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSQL(cmd.Context(), func(sql *infra.SQLRunner) error {
			provider := strings.ToLower(strings.TrimSpace(credentialsFlags.provider))
			if err := credentials.NewStore(sql).SetToken(cmd.Context(), provider, credentialsFlags.token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s token.\n", provider)
			return nil
		})
	},
}

func init() {
	keywordsCmd.AddCommand(keywordsAddCmd)

	f := credentialsSetCmd.Flags()
	f.StringVar(&credentialsFlags.provider, "provider", "", "openai, gemini, anthropic or wordpress (required)")
	f.StringVar(&credentialsFlags.token, "token", "", "Token to store (required)")
	_ = credentialsSetCmd.MarkFlagRequired("provider")
	_ = credentialsSetCmd.MarkFlagRequired("token")
	credentialsCmd.AddCommand(credentialsSetCmd)
}

// withSQL connects to DATABASE_URL without building the provider graph.
func withSQL(ctx context.Context, fn func(*infra.SQLRunner) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(infra.NewSQLRunner(pool, logger))
}
