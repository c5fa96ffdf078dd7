package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"claimlens/internal/ipc"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var priority int
	var watch bool

	cmd := &cobra.Command{
		Use:   "submit <source-ref>",
		Short: "Submit a media source for fact-checking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceRef := strings.TrimSpace(args[0])
			if sourceRef == "" {
				return errors.New("source reference is required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Submit(sourceRef, priority)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Job %s queued (priority %d)\n", resp.Job.ID, resp.Job.Priority)
				if !watch {
					return nil
				}
				return watchJob(cmd, client, resp.Job.ID)
			})
		},
	}

	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "Scheduling priority (higher runs first)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Stream job events until completion")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Cancel(strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if resp.Cancelled {
					fmt.Fprintf(cmd.OutOrStdout(), "Job %s cancelled\n", args[0])
				}
				return nil
			})
		},
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop daemon processing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Stop()
				if err != nil {
					return err
				}
				if resp.Stopped {
					fmt.Fprintln(cmd.OutOrStdout(), "Daemon stopped")
				}
				return nil
			})
		},
	}
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification through the configured ntfy topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
				return nil
			})
		},
	}
}
