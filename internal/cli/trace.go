package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weftlang/weft/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string
	Instance string
	Output   string
}

// NewTraceCommand creates the trace command: inspect recorded
// sessions. Without --session it lists sessions; with one it shows the
// session's compile passes, and with --instance/--output its sampled
// values.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:          "trace",
		Short:        "Inspect recorded session traces",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to trace database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session token")
	cmd.Flags().StringVar(&opts.Instance, "instance", "", "instance to list samples for")
	cmd.Flags().StringVar(&opts.Output, "output", "", "output to list samples for")
	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	out := cmd.OutOrStdout()

	if opts.Session == "" {
		sessions, err := st.Sessions(ctx)
		if err != nil {
			return err
		}
		if opts.Format == "json" {
			return printJSON(cmd, sessions)
		}
		if len(sessions) == 0 {
			fmt.Fprintln(out, "no sessions")
			return nil
		}
		for _, s := range sessions {
			fmt.Fprintf(out, "%s  %s  %s\n", s.Token, s.StartedAt.Format("2006-01-02 15:04:05"), s.Description)
		}
		return nil
	}

	if opts.Instance != "" || opts.Output != "" {
		if opts.Instance == "" || opts.Output == "" {
			return fmt.Errorf("--instance and --output must be given together")
		}
		samples, err := st.Samples(ctx, opts.Session, opts.Instance, opts.Output)
		if err != nil {
			return err
		}
		if opts.Format == "json" {
			return printJSON(cmd, samples)
		}
		for _, sm := range samples {
			fmt.Fprintf(out, "t=%.3f frame=%d %s@%s = %g\n", sm.Time, sm.Frame, sm.Instance, sm.Output, sm.Value)
		}
		return nil
	}

	compiles, err := st.Compiles(ctx, opts.Session)
	if err != nil {
		return err
	}
	if opts.Format == "json" {
		return printJSON(cmd, compiles)
	}
	for _, rec := range compiles {
		fmt.Fprintf(out, "compile %d  hash=%s\n", rec.ID, rec.ProgramHash)
		fmt.Fprintf(out, "  exec order: %s\n", strings.Join(rec.ExecOrder, " -> "))
		for _, rr := range rec.Routes {
			status := "ok"
			if !rr.OK {
				status = "failed: " + rr.Err
			}
			fmt.Fprintf(out, "  %s: %s\n", rr.Route, status)
		}
	}
	return nil
}
