package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/longmans/prompt-agent/internal/app"
	"github.com/longmans/prompt-agent/internal/db"
	"github.com/longmans/prompt-agent/internal/optimizer"
)

func newHistoryCmd(a *cliApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List, show and delete stored runs",
	}
	cmd.AddCommand(
		newHistoryListCmd(a),
		newHistoryShowCmd(a),
		newHistoryDeleteCmd(a),
	)
	return cmd
}

// withStore runs fn against the configured run history.
func (a *cliApp) withStore(ctx context.Context, fn func(db.Store) error) error {
	ap, err := a.load(ctx, app.Options{NoAudit: true})
	if err != nil {
		return err
	}
	defer a.closeApp(ap)
	if ap.Store == nil {
		return fmt.Errorf("run history is disabled (storage.enabled is false)")
	}
	return fn(ap.Store)
}

func newHistoryListCmd(a *cliApp) *cobra.Command {
	var (
		limit   int
		offset  int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored runs, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return invalidf("--limit must be at least 1")
			}
			return a.withStore(cmd.Context(), func(store db.Store) error {
				runs, err := store.ListRuns(cmd.Context(), limit, offset)
				if err != nil {
					return err
				}
				if jsonOut {
					if runs == nil {
						runs = []*db.RunSummary{}
					}
					return writeJSON(a.stdout, runs)
				}
				if len(runs) == 0 {
					fmt.Fprintln(a.stdout, "No runs stored.")
					return nil
				}
				tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCREATED\tMODEL\tROLE\tSTATUS")
				for _, r := range runs {
					status := "ok"
					if r.Degraded {
						status = fmt.Sprintf("degraded (%d)", len(r.Fallbacks))
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.CreatedAt.Local().Format(time.DateTime), r.ModelType, r.Role, status)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print JSON")
	return cmd
}

func newHistoryShowCmd(a *cliApp) *cobra.Command {
	var (
		jsonOut bool
		plain   bool
	)
	cmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show the full report of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(store db.Store) error {
				resp, err := store.GetRun(cmd.Context(), args[0])
				if errors.Is(err, db.ErrNotFound) {
					return invalidf("run %s not found", args[0])
				}
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(a.stdout, resp)
				}
				return writeMarkdown(a.stdout, optimizer.RenderReport(*resp), plain)
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print JSON")
	cmd.Flags().BoolVar(&plain, "plain", false, "print markdown without terminal rendering")
	return cmd
}

func newHistoryDeleteCmd(a *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:     "delete RUN_ID...",
		Aliases: []string{"rm"},
		Short:   "Delete stored runs",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(store db.Store) error {
				for _, id := range args {
					if err := store.DeleteRun(cmd.Context(), id); err != nil {
						return err
					}
					fmt.Fprintf(a.stdout, "deleted %s\n", id)
				}
				return nil
			})
		},
	}
}
