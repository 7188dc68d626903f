package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"earmark/internal/workflow"
)

func newAuthCommand(ctx *commandContext) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the service credential",
	}

	var showToken bool
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Obtain a valid credential, refreshing it if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStack(func(stack *workflow.Stack) error {
				cred, err := stack.Auth.Acquire(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if showToken {
					fmt.Fprintln(out, cred.Token)
					return nil
				}
				fmt.Fprintf(out, "Credential valid until %s\n", cred.ExpiresAt.Local().Format(time.RFC3339))
				return nil
			})
		},
	}
	tokenCmd.Flags().BoolVar(&showToken, "show", false, "Print the bearer token itself")
	authCmd.AddCommand(tokenCmd)

	authCmd.AddCommand(&cobra.Command{
		Use:   "whoami",
		Short: "Show the identity credentials are issued for",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStack(func(stack *workflow.Stack) error {
				out := cmd.OutOrStdout()
				subject, ok := stack.Auth.Subject()
				if !ok {
					subject = "(no valid credential)"
				}
				fmt.Fprintln(out, renderKeyValues(out, [][2]string{
					{"Identity", stack.Auth.Identity()},
					{"Credential subject", subject},
					{"Tier", string(stack.Runner.Tier())},
					{"Credential file", stack.Config.CredentialPath()},
				}))
				return nil
			})
		},
	})

	authCmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Discard the stored credential so the next request issues a new one",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStack(func(stack *workflow.Stack) error {
				if err := stack.Auth.Invalidate(); err != nil {
					return fmt.Errorf("reset credential: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Credential cleared")
				return nil
			})
		},
	})

	return authCmd
}
