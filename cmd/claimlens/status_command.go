package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"claimlens/internal/ipc"
	"claimlens/internal/textutil"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)

				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(stdout, line)
				}
				runningKind := textutil.Ternary(status.Running, statusOK, statusWarn)
				runningMsg := textutil.Ternary(status.Running, fmt.Sprintf("running (pid %d)", status.PID), "not processing")
				fmt.Fprintln(stdout, renderStatusLine("State", runningKind, runningMsg, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Socket", statusInfo, status.SocketPath, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Job database", statusInfo, status.JobDBPath, colorize))
				if len(status.ActiveJobs) > 0 {
					fmt.Fprintln(stdout, renderStatusLine("Active jobs", statusInfo, strings.Join(status.ActiveJobs, ", "), colorize))
				}
				fmt.Fprintln(stdout)

				if len(status.StageHealth) > 0 {
					for _, line := range renderSectionHeader("Stage Health", colorize) {
						fmt.Fprintln(stdout, line)
					}
					for _, stage := range status.StageHealth {
						kind := textutil.Ternary(stage.Ready, statusOK, statusError)
						detail := textutil.Ternary(stage.Ready, "Ready", stage.Detail)
						fmt.Fprintln(stdout, renderStatusLine(stage.Name, kind, detail, colorize))
					}
					fmt.Fprintln(stdout)
				}

				for _, line := range renderSectionHeader("Queue Status", colorize) {
					fmt.Fprintln(stdout, line)
				}
				rows := buildQueueStatusRows(status.QueueStats)
				if len(rows) == 0 {
					fmt.Fprintln(stdout, "Queue is empty")
					return nil
				}
				table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(stdout, table)
				return nil
			})
		},
	}
}

func buildQueueStatusRows(stats map[string]int) [][]string {
	keys := make([]string, 0, len(stats))
	for key, count := range stats {
		if count == 0 {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{key, fmt.Sprintf("%d", stats[key])})
	}
	return rows
}
