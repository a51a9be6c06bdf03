package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"seoforge/internal/domain"
	"seoforge/internal/pipeline"
)

var runFlags struct {
	all bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process the next pending keyword",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runFlags.all, "all", false, "Keep processing until the worklist is empty")
}

func runRun(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	graph, err := buildGraph(ctx)
	if err != nil {
		return err
	}
	defer graph.Close()

	out := cmd.OutOrStdout()
	var results []*pipeline.RunResult
	for {
		res, err := graph.Coordinator.RunNext(ctx)
		if errors.Is(err, domain.ErrSourceExhausted) {
			if len(results) == 0 {
				fmt.Fprintln(out, "No pending keyword.")
			}
			return nil
		}
		if res != nil {
			results = append(results, res)
			if perr := printJSON(out, res); perr != nil {
				return perr
			}
		}
		if err != nil {
			return err
		}
		if !runFlags.all {
			return nil
		}
	}
}
