package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"claimlens/internal/events"
	"claimlens/internal/ipc"
)

const watchPollMillis = 1000

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [job-id]",
		Short: "Stream job events; with a job id, stop once that job finishes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := ""
			if len(args) == 1 {
				jobID = strings.TrimSpace(args[0])
			}
			return ctx.withClient(func(client *ipc.Client) error {
				return watchJob(cmd, client, jobID)
			})
		},
	}
}

// watchJob long-polls the daemon event cursor and prints one line per event.
// When jobID is non-empty it returns after that job's terminal event.
func watchJob(cmd *cobra.Command, client *ipc.Client, jobID string) error {
	out := cmd.OutOrStdout()
	var since uint64
	for {
		if err := cmd.Context().Err(); err != nil {
			return err
		}
		resp, err := client.Events(ipc.EventsRequest{Since: since, Limit: 256, WaitMillis: watchPollMillis})
		if err != nil {
			return err
		}
		if gap := cursorGap(since, resp.Events); gap > 0 {
			// The daemon's ring buffer overwrote events we never fetched.
			fmt.Fprintln(out, formatEvent(events.Event{
				Timestamp: time.Now(),
				Kind:      events.KindEventsDropped,
				Dropped:   gap,
			}))
		}
		for _, evt := range resp.Events {
			if jobID != "" && evt.JobID != jobID {
				continue
			}
			fmt.Fprintln(out, formatEvent(evt))
			if jobID != "" && evt.Terminal() {
				return nil
			}
		}
		since = resp.Next
	}
}

// cursorGap reports how many events between the cursor and the first fetched
// event are gone from the daemon's buffer. A zero cursor means the watch just
// started, so older events are expected to be missing.
func cursorGap(since uint64, evts []events.Event) uint64 {
	if since == 0 || len(evts) == 0 || evts[0].Sequence <= since+1 {
		return 0
	}
	return evts[0].Sequence - since - 1
}

func formatEvent(evt events.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-18s", evt.Timestamp.Format("15:04:05"), evt.Kind)
	if evt.JobID != "" {
		fmt.Fprintf(&b, " job=%s", evt.JobID)
	}
	if evt.Stage != "" {
		fmt.Fprintf(&b, " stage=%s", evt.Stage)
	}
	if evt.Percent > 0 {
		fmt.Fprintf(&b, " %.0f%%", evt.Percent)
	}
	if evt.Claim != nil {
		fmt.Fprintf(&b, " claim=%q", evt.Claim.Text)
	}
	if evt.Result != nil {
		fmt.Fprintf(&b, " claim=%s verdict=%s", evt.Result.ClaimID, evt.Result.Verdict)
	}
	if evt.Message != "" {
		fmt.Fprintf(&b, " %s", evt.Message)
	}
	if evt.Error != "" {
		fmt.Fprintf(&b, " error=%q", evt.Error)
	}
	if evt.Kind == events.KindEventsDropped {
		fmt.Fprintf(&b, " dropped=%d", evt.Dropped)
	}
	return b.String()
}
