package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"earmark/internal/workflow"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or reset the cached result",
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Describe the cached result without consuming it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStack(func(stack *workflow.Stack) error {
				out := cmd.OutOrStdout()
				entry, err := stack.Cache.Peek(cmd.Context())
				if err != nil {
					return err
				}
				if entry == nil {
					fmt.Fprintln(out, "Cache is empty")
					return nil
				}
				fmt.Fprintln(out, renderKeyValues(out, [][2]string{
					{"Job", entry.JobID},
					{"Cached", entry.CachedAt.Local().Format(time.RFC3339)},
					{"Age", formatAge(time.Now(), entry.CachedAt)},
					{"Shown", yesNo(entry.Shown)},
					{"Verdict", displayLabel(entry.Result.OverallLabel)},
					{"Confidence", formatPercent(entry.Result.AggregateConfidence)},
					{"Chunks", fmt.Sprintf("%d", len(entry.Result.Chunks))},
					{"Transcript", yesNo(entry.Result.Transcript != nil)},
				}))
				return nil
			})
		},
	})

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Remove the cached result if it is older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStack(func(stack *workflow.Stack) error {
				removed, err := stack.Cache.SweepStale(cmd.Context(), stack.Config.CacheMaxAge())
				if err != nil {
					return err
				}
				if removed {
					fmt.Fprintln(cmd.OutOrStdout(), "Removed stale result")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to sweep")
				}
				return nil
			})
		},
	})

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Discard the cached result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStack(func(stack *workflow.Stack) error {
				if err := stack.Cache.Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
				return nil
			})
		},
	})

	return cacheCmd
}
