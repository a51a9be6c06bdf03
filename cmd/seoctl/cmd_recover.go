package main

import (
	"time"

	"github.com/spf13/cobra"

	"seoforge/internal/artifact"
)

var recoverFlags struct {
	date    string
	keyword string
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Resume a keyword from its most advanced checkpoint",
	RunE:  runRecover,
}

func init() {
	f := recoverCmd.Flags()
	f.StringVar(&recoverFlags.date, "date", "", "Recovery log date, YYYY-MM-DD (default today)")
	f.StringVar(&recoverFlags.keyword, "keyword", "", "Keyword to resume (required)")

	_ = recoverCmd.MarkFlagRequired("keyword")
}

func runRecover(cmd *cobra.Command, _ []string) error {
	date := recoverFlags.date
	if date == "" {
		date = artifact.DateKey(time.Now())
	}
	ctx := cmd.Context()
	graph, err := buildGraph(ctx)
	if err != nil {
		return err
	}
	defer graph.Close()

	res, err := graph.Recovery.Recover(ctx, date, recoverFlags.keyword)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}
