package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/lazysearch/internal/config"
	"github.com/AaronLay10/lazysearch/internal/storage/postgres"
)

type replayFlags struct {
	runID       string
	limit       int
	host        string
	port        int
	user        string
	database    string
	sslmode     string
	passwordEnv string
}

func newReplayCmd() *cobra.Command {
	var f replayFlags
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Summarize a run from the postgres journal",
		Long: `Load the journaled events of a run and print what happened: expansions,
pruned and failed nodes, the solutions found and how the run ended.

Connection settings fall back to the PG* environment variables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.runID == "" {
				return fmt.Errorf("--run-id is required")
			}
			password, err := config.Secret("", f.passwordEnv)
			if err != nil {
				return err
			}
			client, err := postgres.New(postgres.Settings{
				Host:     f.host,
				Port:     f.port,
				User:     f.user,
				Password: password,
				Database: f.database,
				SSLMode:  f.sslmode,
			}, f.runID, "")
			if err != nil {
				return err
			}
			defer client.Close()

			summary, n, err := postgres.Replay(client, f.runID, f.limit)
			if err != nil {
				return fmt.Errorf("failed to replay run %s: %w", f.runID, err)
			}
			if summary == nil {
				return fmt.Errorf("no events journaled for run %s", f.runID)
			}
			printSummary(cmd.OutOrStdout(), summary, n)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.runID, "run-id", "", "run to replay")
	cmd.Flags().IntVar(&f.limit, "limit", postgres.DefaultReplayLimit, "maximum number of events to load")
	cmd.Flags().StringVar(&f.host, "host", "", "postgres host")
	cmd.Flags().IntVar(&f.port, "port", 0, "postgres port")
	cmd.Flags().StringVar(&f.user, "user", "", "postgres user")
	cmd.Flags().StringVar(&f.database, "database", "", "postgres database")
	cmd.Flags().StringVar(&f.sslmode, "sslmode", "", "postgres sslmode")
	cmd.Flags().StringVar(&f.passwordEnv, "password-env", "PGPASSWORD", "variable holding the postgres password")
	return cmd
}

func printSummary(w io.Writer, s *postgres.RunSummary, events int) {
	fmt.Fprintf(w, "run %s", s.RunID)
	if s.Strategy != "" {
		fmt.Fprintf(w, " (%s)", s.Strategy)
	}
	fmt.Fprintf(w, ": %d events\n", events)
	if !s.Started.IsZero() && !s.Finished.IsZero() {
		fmt.Fprintf(w, "  duration:        %s\n", s.Finished.Sub(s.Started).Round(time.Millisecond))
	}
	fmt.Fprintf(w, "  expansions:      %d\n", s.Expansions)
	fmt.Fprintf(w, "  pruned:          %d\n", s.Pruned)
	fmt.Fprintf(w, "  deferred:        %d\n", s.Deferred)
	fmt.Fprintf(w, "  failed:          %d\n", s.Failed)
	fmt.Fprintf(w, "  parent switches: %d\n", s.ParentSwitches)
	fmt.Fprintf(w, "  reevaluations:   %d\n", s.Reevaluations)
	fmt.Fprintf(w, "  solutions:       %d\n", len(s.Solutions))
	if best, ok := s.Best(); ok {
		fmt.Fprintf(w, "  best:            score=%g length=%d path=%s\n", best.Score, best.Length, best.Path)
	}
	if s.CancelRequests > 0 {
		fmt.Fprintf(w, "  cancel requests: %d\n", s.CancelRequests)
	}
	switch {
	case !s.Terminated():
		fmt.Fprintln(w, "  state:           not terminated")
	case s.Error != "":
		fmt.Fprintf(w, "  reason:          %s (%s)\n", s.Reason, s.Error)
	default:
		fmt.Fprintf(w, "  reason:          %s\n", s.Reason)
	}
}
