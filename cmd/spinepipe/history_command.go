package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"spinepipe/internal/ledger"
	"spinepipe/internal/textutil"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var subject string
	var runID string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded step outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openLedger()
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), ledger.Filter{
				Subject: strings.TrimSpace(subject),
				RunID:   strings.TrimSpace(runID),
				Limit:   limit,
			})
			if err != nil {
				return err
			}
			if asJSON {
				if entries == nil {
					entries = []ledger.Entry{}
				}
				return writeJSON(cmd, entries)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No recorded runs")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.Started.Local().Format("2006-01-02 15:04:05"),
					shortRunID(e.RunID),
					e.Subject,
					e.Pipeline,
					textutil.StepLabel(e.Step),
					e.Outcome,
					formatDuration(e.Duration),
				})
			}
			fmt.Fprintln(out, renderTable(historyColumns, rows))
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Only show this subject")
	cmd.Flags().StringVar(&runID, "run", "", "Only show this run id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
