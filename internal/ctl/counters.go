package ctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	queueerrors "clinicflow/internal/queue/errors"
	"clinicflow/pkg/locale"
	"clinicflow/pkg/model"

	"github.com/spf13/cobra"
)

func newCountersCommand(open Opener) *cobra.Command {
	counters := &cobra.Command{
		Use:   "counters",
		Short: "Inspect and repair daily sequence counters",
	}
	counters.AddCommand(newCountersShowCommand(open))
	counters.AddCommand(newCountersListCommand(open))
	counters.AddCommand(newCountersReclaimCommand(open))
	return counters
}

func newCountersShowCommand(open Opener) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the counter for one day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, open, "", func(ctx context.Context, env *Env) error {
				day := date
				if day == "" {
					day = locale.DateOf(time.Now(), env.Config.ClinicLocation())
				}
				if !locale.ValidDate(day) {
					return fmt.Errorf("invalid --date %q, want YYYY-MM-DD", day)
				}

				counter, err := env.Sequences.Get(ctx, model.SequenceKey(day))
				if errors.Is(err, queueerrors.ErrNotFound) {
					fmt.Fprintf(cmd.OutOrStdout(), "No counter for %s; next number is %s.\n", day, model.FormatQueueNumber(day, 1))
					return nil
				}
				if err != nil {
					return err
				}
				return printCounters(cmd.OutOrStdout(), []*model.SequenceCounter{counter}, time.Now())
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "clinic day (YYYY-MM-DD), defaults to today")
	return cmd
}

func newCountersListCommand(open Opener) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, open, "", func(ctx context.Context, env *Env) error {
				counters, err := env.Sequences.List(ctx, limit)
				if err != nil {
					return err
				}
				return printCounters(cmd.OutOrStdout(), counters, time.Now())
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 14, "number of counters to show")
	return cmd
}

func newCountersReclaimCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "reclaim",
		Short: "Release every counter lock that has expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, open, "", func(ctx context.Context, env *Env) error {
				n, err := env.Sequences.ReclaimExpired(ctx, time.Now().UTC())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reclaimed %d expired lock(s).\n", n)
				return nil
			})
		},
	}
}

func printCounters(out io.Writer, counters []*model.SequenceCounter, now time.Time) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tVALUE\tLOCK\tLAST UPDATED")
	for _, c := range counters {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", c.Key, c.Value, lockState(c, now), c.LastUpdated.Format(time.RFC3339))
	}
	return w.Flush()
}

func lockState(c *model.SequenceCounter, now time.Time) string {
	switch {
	case !c.Locked:
		return "free"
	case c.LockExpiresAt == nil:
		return "held"
	case c.LockExpired(now):
		return "expired"
	default:
		return "held until " + c.LockExpiresAt.Format(time.RFC3339)
	}
}
