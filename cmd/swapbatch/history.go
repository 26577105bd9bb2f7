package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/swapbatch/swapbatch/internal/db"
	"github.com/swapbatch/swapbatch/internal/history"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	var runID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, or the items of one run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withContext(func(ctx context.Context) error {
				database, err := db.New(a.cfg.DBPath(), a.logger)
				if err != nil {
					return err
				}
				defer database.Close()

				repo := history.NewRepository(database.Conn())
				if runID != "" {
					return a.printItems(ctx, repo, runID)
				}
				return a.printRuns(ctx, repo, limit)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list, 0 for all")
	cmd.Flags().StringVar(&runID, "run", "", "show the items of this run")
	return cmd
}

func (a *app) printRuns(ctx context.Context, repo history.Repository, limit int) error {
	runs, err := repo.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(a.stdout, "no runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSTARTED\tOK\tFAILED\tTOTAL\tMINUTES")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%.1f\n",
			r.ID, r.Status, humanize.Time(r.StartedAt),
			r.Successful, r.Failed, r.Total, r.DurationMinutes)
	}
	return tw.Flush()
}

func (a *app) printItems(ctx context.Context, repo history.Repository, runID string) error {
	run, err := repo.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}
	items, err := repo.ListItems(ctx, runID)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tFILE\tSIZE\tOUTCOME\tTIME\tERROR")
	for _, it := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.1fs\t%s\n",
			it.Index+1, it.File, humanize.Bytes(uint64(max(it.SizeBytes, 0))),
			it.Outcome, float64(it.DurationMs)/1000, it.Error)
	}
	return tw.Flush()
}
