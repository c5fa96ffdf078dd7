package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"claimlens/internal/ipc"
	"claimlens/internal/jobs"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var showSources bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job's details and fact-check report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueDescribe(strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				job := resp.Job
				fmt.Fprintf(out, "Job:      %s\n", job.ID)
				fmt.Fprintf(out, "Source:   %s\n", job.SourceRef)
				fmt.Fprintf(out, "Status:   %s\n", job.Status)
				fmt.Fprintf(out, "Progress: %.0f%% (%s)\n", job.ProgressPercent, job.ProgressMessage)
				if job.ErrorMessage != "" {
					fmt.Fprintf(out, "Error:    %s\n", job.ErrorMessage)
				}
				if len(job.DegradedStages) > 0 {
					for stage, reason := range job.DegradedStages {
						fmt.Fprintf(out, "Degraded: %s (%s)\n", stage, reason)
					}
				}

				if len(resp.Results) == 0 {
					if len(resp.Claims) > 0 {
						fmt.Fprintf(out, "\n%d claims extracted, verdicts pending\n", len(resp.Claims))
					}
					return nil
				}

				claimsByID := make(map[string]jobs.Claim, len(resp.Claims))
				for _, claim := range resp.Claims {
					claimsByID[claim.ID] = claim
				}

				rows := make([][]string, 0, len(resp.Results))
				for _, result := range resp.Results {
					claim := claimsByID[result.ClaimID]
					rows = append(rows, []string{
						truncate(claim.Text, 60),
						string(claim.Category),
						claim.Speaker,
						string(result.Verdict),
						fmt.Sprintf("%.2f", result.Confidence),
						truncate(result.Explanation, 60),
					})
				}
				fmt.Fprintln(out)
				table := renderTable(
					[]string{"Claim", "Category", "Speaker", "Verdict", "Confidence", "Explanation"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(out, table)

				if showSources {
					for _, result := range resp.Results {
						if len(result.Sources) == 0 {
							continue
						}
						fmt.Fprintf(out, "%s sources:\n", result.ClaimID)
						for _, src := range result.Sources {
							fmt.Fprint(out, "  - ", src.URL)
							if src.Title != "" {
								fmt.Fprintf(out, " (%s)", src.Title)
							}
							if src.Relevance > 0 {
								fmt.Fprintf(out, " relevance %.2f", src.Relevance)
							}
							fmt.Fprintln(out)
						}
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&showSources, "sources", false, "List source URLs for each verdict")
	return cmd
}
