package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"seoforge/internal/domain"
)

var slugCmd = &cobra.Command{
	Use:   "slug <keyword>",
	Short: "Print the slug a keyword maps to",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slug := domain.Slug(strings.Join(args, " "))
		if slug == "" {
			return fmt.Errorf("keyword %q has no slug characters", strings.Join(args, " "))
		}
		fmt.Fprintln(cmd.OutOrStdout(), slug)
		return nil
	},
}
