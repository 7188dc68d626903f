package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"earmark/internal/preflight"
	"earmark/internal/workflow"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check local state and service connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStack(func(stack *workflow.Stack) error {
				var credentials preflight.CredentialSource
				if !offline {
					credentials = stack.Auth
				}
				results := preflight.RunAll(cmd.Context(), stack.Config, stack.Store, credentials)

				out := cmd.OutOrStdout()
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					status := "ok"
					if !r.Passed {
						status = "FAIL"
					}
					rows = append(rows, []string{r.Name, status, r.Detail})
				}
				fmt.Fprintln(out, renderTable(out, []string{"Check", "Status", "Detail"}, rows, nil))
				if preflight.Failed(results) {
					return errors.New("one or more checks failed")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the service connectivity check")
	return cmd
}
