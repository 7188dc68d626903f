package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"earmark/internal/analysis"
	"earmark/internal/workflow"
)

func newResultCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "result",
		Short: "Show the latest result if it has not been shown yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStack(func(stack *workflow.Stack) error {
				if err := stack.Runner.Prepare(cmd.Context()); err != nil {
					return fmt.Errorf("prepare cache: %w", err)
				}
				delivery, err := stack.Runner.Deliver(cmd.Context())
				if err != nil {
					return err
				}
				if delivery == nil {
					if jsonOutput {
						return writeJSON(cmd, map[string]any{"result": nil})
					}
					fmt.Fprintln(cmd.OutOrStdout(), "No new result")
					return nil
				}
				if jsonOutput {
					return writeJSON(cmd, viewFor(delivery.JobID, analysis.StateCompleted, &delivery.Deliverable))
				}
				renderDeliverable(cmd.OutOrStdout(), delivery.JobID, delivery.Deliverable)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List tracked jobs and the cached result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStack(func(stack *workflow.Stack) error {
				out := cmd.OutOrStdout()
				records, err := stack.Store.ActiveJobs(cmd.Context())
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Fprintln(out, "No pending jobs")
				} else {
					now := time.Now()
					rows := make([][]string, 0, len(records))
					for _, rec := range records {
						rows = append(rows, []string{
							rec.ID,
							string(rec.Kind),
							rec.Source,
							string(rec.Tier),
							string(rec.State),
							strings.TrimSpace(rec.Message),
							formatAge(now, rec.SubmittedAt),
						})
					}
					fmt.Fprintln(out, renderTable(out,
						[]string{"Job", "Kind", "Source", "Tier", "State", "Message", "Submitted"}, rows, nil))
				}

				entry, err := stack.Cache.Peek(cmd.Context())
				if err != nil {
					return err
				}
				if entry == nil {
					fmt.Fprintln(out, "Cache: empty")
				} else {
					fmt.Fprintf(out, "Cache: job %s (%s, shown: %s)\n",
						entry.JobID, formatAge(time.Now(), entry.CachedAt), yesNo(entry.Shown))
				}
				return nil
			})
		},
	}
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Stop tracking a job",
		Long: `Stop tracking a job locally. The remote service is not told to abort,
so the job may still finish there; its result is discarded.

Jobs followed by a running analyze or resume are cancelled by interrupting
that process; this command only forgets jobs no process is following.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := strings.TrimSpace(args[0])
			err := ctx.withInstanceLock(func() error {
				return ctx.withStack(func(stack *workflow.Stack) error {
					known, err := stack.Runner.Cancel(cmd.Context(), jobID)
					if err != nil {
						return err
					}
					if !known {
						return fmt.Errorf("job %s is not tracked", jobID)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Stopped tracking job %s\n", jobID)
					return nil
				})
			})
			if errors.Is(err, workflow.ErrAlreadyRunning) {
				return fmt.Errorf("job %s may be followed by a running earmark process; interrupt it with Ctrl-C instead: %w", jobID, err)
			}
			return err
		},
	}
}
