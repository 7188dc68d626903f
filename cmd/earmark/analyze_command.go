package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"earmark/internal/analysis"
	"earmark/internal/config"
	"earmark/internal/monitor"
	"earmark/internal/services"
	"earmark/internal/submit"
	"earmark/internal/upload"
	"earmark/internal/workflow"
)

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "analyze <file|url>",
		Short: "Submit audio for analysis and wait for the verdict",
		Long: `Submit a local .mp3/.wav/.m4a file or a link to remote media.

The command waits until the job completes. Interrupting it leaves the job
running remotely; run "earmark resume" to wait for it again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := resolveInput(args[0])
			if err != nil {
				return err
			}
			return ctx.withInstanceLock(func() error {
				return ctx.withStack(func(stack *workflow.Stack) error {
					runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
					defer stop()

					if err := stack.Runner.Prepare(runCtx); err != nil {
						return fmt.Errorf("prepare cache: %w", err)
					}
					if err := stack.Push.Start(runCtx); err != nil {
						return err
					}
					defer stack.Push.Stop()

					progress := newProgressPrinter(cmd.ErrOrStderr())
					outcome, err := stack.Runner.Analyze(runCtx, input, func(s monitor.JobState) {
						progress.update(s.JobID, s)
					})
					progress.finish()
					if err != nil {
						if outcome.JobID != "" && errors.Is(err, context.Canceled) {
							fmt.Fprintf(cmd.OutOrStdout(), "Stopped waiting for job %s; run `earmark resume` to wait again\n", outcome.JobID)
							return nil
						}
						return err
					}
					return printOutcome(cmd, outcome, jsonOutput)
				})
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	return cmd
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Wait for jobs left running by an earlier invocation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withInstanceLock(func() error {
				return ctx.withStack(func(stack *workflow.Stack) error {
					runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
					defer stop()

					if err := stack.Runner.Prepare(runCtx); err != nil {
						return fmt.Errorf("prepare cache: %w", err)
					}
					if err := stack.Push.Start(runCtx); err != nil {
						return err
					}
					defer stack.Push.Stop()

					progress := newProgressPrinter(cmd.ErrOrStderr())
					outcomes, err := stack.Runner.Resume(runCtx, progress.update)
					progress.finish()
					if err != nil && !errors.Is(err, context.Canceled) {
						return err
					}
					if len(outcomes) == 0 && err == nil {
						fmt.Fprintln(cmd.OutOrStdout(), "No pending jobs")
						return nil
					}

					var failed []string
					for _, outcome := range outcomes {
						if printErr := printOutcome(cmd, outcome, jsonOutput); printErr != nil {
							failed = append(failed, printErr.Error())
						}
					}
					if err != nil {
						fmt.Fprintln(cmd.OutOrStdout(), "Stopped waiting; run `earmark resume` to continue")
					}
					if len(failed) > 0 {
						return errors.New(strings.Join(failed, "; "))
					}
					return nil
				})
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	return cmd
}

// resolveInput treats http(s) URLs as links and everything else as a local
// file path.
func resolveInput(arg string) (submit.Input, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return submit.Input{}, services.Wrap(services.ErrInvalidInput, "cli", "analyze", "a file path or URL is required", nil)
	}
	if parsed, err := url.Parse(arg); err == nil && parsed.Host != "" &&
		(parsed.Scheme == "http" || parsed.Scheme == "https") {
		return submit.LinkInput(arg), nil
	}

	path, err := config.ExpandPath(arg)
	if err != nil {
		return submit.Input{}, fmt.Errorf("resolve input path: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return submit.Input{}, fmt.Errorf("stat input: %w", err)
	}
	if info.IsDir() {
		return submit.Input{}, services.Wrap(services.ErrInvalidInput, "cli", "analyze", fmt.Sprintf("%s is a directory", path), nil)
	}
	if info.Size() > upload.MaxFileSize {
		return submit.Input{}, services.Wrap(services.ErrInvalidInput, "cli", "analyze",
			fmt.Sprintf("file exceeds %d MiB limit", upload.MaxFileSize>>20), nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return submit.Input{}, fmt.Errorf("read input: %w", err)
	}
	// Validation resolves the content type from the extension.
	return submit.FileInput(filepath.Base(path), "", data), nil
}

// printOutcome renders one terminal outcome. Failed jobs surface as errors
// so the process exits non-zero.
func printOutcome(cmd *cobra.Command, outcome workflow.Outcome, jsonOutput bool) error {
	out := cmd.OutOrStdout()
	var failure error
	if outcome.Failure != nil {
		failure = fmt.Errorf("job %s failed: %s", outcome.JobID, outcome.Failure.Message)
	}

	if jsonOutput {
		view := viewFor(outcome.JobID, outcome.State, outcome.Deliverable)
		if outcome.Failure != nil {
			view.Error = outcome.Failure.Error()
		}
		if err := writeJSON(cmd, view); err != nil {
			return err
		}
		return failure
	}

	switch outcome.State {
	case analysis.StateCompleted:
		if outcome.Deliverable == nil {
			fmt.Fprintf(out, "Job %s completed; its result was already shown\n", outcome.JobID)
			return nil
		}
		renderDeliverable(out, outcome.JobID, *outcome.Deliverable)
	case analysis.StateFailed:
		return failure
	case analysis.StateCancelled:
		fmt.Fprintf(out, "Job %s cancelled\n", outcome.JobID)
	default:
		fmt.Fprintf(out, "Job %s is still %s\n", outcome.JobID, outcome.State)
	}
	return nil
}
