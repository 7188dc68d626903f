package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"earmark/internal/chat"
	"earmark/internal/logging"
	"earmark/internal/workflow"
)

func newChatCommand(ctx *commandContext) *cobra.Command {
	var showUsage bool

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Ask questions about the cached analysis (Pro)",
		Long: `Send a question about the most recently cached analysis.

With no message, questions are read line by line from stdin and the
conversation history is carried between them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStack(func(stack *workflow.Stack) error {
				out := cmd.OutOrStdout()
				entry, err := stack.Cache.Peek(cmd.Context())
				if err != nil {
					return err
				}
				payload, err := chat.BuildContext(entry, nil, nil)
				if err != nil {
					if errors.Is(err, chat.ErrNoResult) {
						return errors.New("no cached analysis; run `earmark analyze` first")
					}
					return err
				}
				if err := stack.Store.ResetChatUsage(cmd.Context(), payload.JobID); err != nil {
					return err
				}

				logger, _ := ctx.ensureLogger()
				session := chat.NewSession(stack.Client, stack.Store, payload, stack.Runner.Tier(),
					chat.WithLimit(stack.Config.Chat.ProMessageLimit),
					chat.WithLogger(logger),
				)

				if showUsage {
					return printChatUsage(cmd, stack, session, payload.JobID, logger)
				}

				message := strings.TrimSpace(strings.Join(args, " "))
				if message != "" {
					reply, err := session.Send(cmd.Context(), message)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, reply)
					return nil
				}
				return chatLoop(cmd, session, cmd.InOrStdin())
			})
		},
	}

	cmd.Flags().BoolVar(&showUsage, "usage", false, "Show how many messages remain for the cached analysis")
	return cmd
}

func chatLoop(cmd *cobra.Command, session *chat.Session, in io.Reader) error {
	out := cmd.OutOrStdout()
	prompt := isTerminal(out)
	scanner := bufio.NewScanner(in)
	for {
		if prompt {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}
		reply, err := session.Send(cmd.Context(), message)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, reply)
	}
}

func printChatUsage(cmd *cobra.Command, stack *workflow.Stack, session *chat.Session, jobID string, logger *slog.Logger) error {
	out := cmd.OutOrStdout()
	remaining, err := session.Remaining(cmd.Context())
	if err != nil {
		return err
	}
	pairs := [][2]string{
		{"Job", jobID},
		{"Tier", string(stack.Runner.Tier())},
		{"Limit", fmt.Sprintf("%d", session.Limit())},
		{"Remaining", fmt.Sprintf("%d", remaining)},
	}
	if session.Limit() > 0 {
		usage, err := stack.Client.GetChatUsage(cmd.Context(), jobID)
		if err != nil {
			logging.WarnWithContext(logger, "remote chat usage unavailable", "chat_usage_remote",
				logging.String(logging.FieldJobID, jobID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "showing local count only"),
			)
		} else {
			pairs = append(pairs, [2]string{"Remote used", fmt.Sprintf("%d of %d", usage.MessageCount, usage.Limit)})
		}
	}
	fmt.Fprintln(out, renderKeyValues(out, pairs))
	return nil
}
