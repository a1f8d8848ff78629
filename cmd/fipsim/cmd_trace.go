package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/fipsim/internal/models"
	"github.com/nvandessel/fipsim/internal/store"
	"github.com/nvandessel/fipsim/internal/visualization"
)

func newTraceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect stored runs",
		Long: `List, show, export, import and serve stored traces.

Runs are addressed by full id or by any unique prefix, as printed by
"fipsim trace list".

Examples:
  fipsim trace list
  fipsim trace show 3f2a --seq 4 --format dot
  fipsim trace export -o traces.jsonl
  fipsim trace import traces.jsonl
  fipsim trace serve 3f2a`,
	}

	cmd.AddCommand(
		newTraceListCmd(),
		newTraceShowCmd(),
		newTraceExportCmd(),
		newTraceImportCmd(),
		newTraceDeleteCmd(),
		newTraceServeCmd(),
	)

	return cmd
}

// withStore loads the configuration, opens the trace store and runs fn.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, ts *store.SQLiteTraceStore) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ts, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer ts.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, ts)
}

func newTraceListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withStore(cmd, func(ctx context.Context, ts *store.SQLiteTraceStore) error {
				runs, err := ts.ListRuns(ctx, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOutput(cmd) {
					if runs == nil {
						runs = []store.Run{}
					}
					return json.NewEncoder(out).Encode(runs)
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "No stored runs.")
					return nil
				}
				fmt.Fprintf(out, "%-8s  %-19s  %-4s  %-6s  %-6s  %-7s  %s\n",
					"ID", "CREATED", "DISC", "FRAMES", "ALLOCS", "DEALLOC", "INPUT")
				for _, r := range runs {
					fmt.Fprintf(out, "%-8s  %-19s  %-4s  %-6d  %-6d  %-7d  %v\n",
						shortID(r.ID), r.CreatedAt.Local().Format(time.DateTime), r.Discipline,
						r.FrameCount, r.Stats.Allocations, r.Stats.Deallocations, r.Input)
				}
				return nil
			})
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum runs to list (0 for all)")
	return cmd
}

func newTraceShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the frames of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, _ := cmd.Flags().GetInt("seq")
			formatName, _ := cmd.Flags().GetString("format")
			return withStore(cmd, func(ctx context.Context, ts *store.SQLiteTraceStore) error {
				if formatName == "" {
					formatName = string(visualization.FormatText)
				}
				format, err := visualization.ParseFormat(formatName)
				if err != nil {
					return err
				}

				run, err := ts.GetRun(ctx, args[0])
				if err != nil {
					return err
				}

				var frames []models.Snapshot
				if seq > 0 {
					snap, err := ts.Frame(ctx, run.ID, seq)
					if err != nil {
						return err
					}
					frames = []models.Snapshot{*snap}
				} else {
					frames, err = ts.Frames(ctx, run.ID)
					if err != nil {
						return err
					}
				}

				out := cmd.OutOrStdout()
				if format == visualization.FormatText {
					fmt.Fprintf(out, "run %s  %s  %v -> %v  (%d frames)\n\n",
						run.ID, run.Discipline, run.Input, run.Result, run.FrameCount)
				}
				return visualization.RenderTrace(out, frames, format)
			})
		},
	}
	cmd.Flags().Int("seq", 0, "Show only this frame (default: all frames)")
	cmd.Flags().String("format", "", "Frame format: text, dot or json (default text)")
	return cmd
}

func newTraceExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [run-id...]",
		Short: "Export runs as JSONL (all runs when no ids are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			return withStore(cmd, func(ctx context.Context, ts *store.SQLiteTraceStore) error {
				var w io.Writer = cmd.OutOrStdout()
				if output != "" && output != "-" {
					f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
					if err != nil {
						return fmt.Errorf("create export file: %w", err)
					}
					defer f.Close()
					w = f
				}

				n, err := store.ExportJSONL(ctx, ts, w, args...)
				if err != nil {
					return err
				}
				if output != "" && output != "-" {
					fmt.Fprintf(cmd.OutOrStdout(), "Exported %d runs to %s\n", n, output)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	return cmd
}

func newTraceImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Import runs from a JSONL export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, ts *store.SQLiteTraceStore) error {
				var r io.Reader = cmd.InOrStdin()
				if args[0] != "-" {
					f, err := os.Open(args[0])
					if err != nil {
						return fmt.Errorf("open import file: %w", err)
					}
					defer f.Close()
					r = f
				}

				n, err := store.ImportJSONL(ctx, ts, r)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]int{"imported": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d runs\n", n)
				return nil
			})
		},
	}
}

func newTraceDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, ts *store.SQLiteTraceStore) error {
				run, err := ts.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				if err := ts.DeleteRun(ctx, run.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", run.ID)
				return nil
			})
		},
	}
}

func newTraceServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve <run-id>",
		Short: "Serve a stored run as an HTML frame viewer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			open, _ := cmd.Flags().GetBool("open")
			return withStore(cmd, func(ctx context.Context, ts *store.SQLiteTraceStore) error {
				if _, err := ts.GetRun(ctx, args[0]); err != nil {
					return err
				}
				return runTraceServer(cmd, ctx, ts, args[0], open)
			})
		},
	}
	cmd.Flags().Bool("open", false, "Open the viewer in a browser")
	return cmd
}

// runTraceServer starts a local HTTP server for one run and blocks until
// Ctrl-C or ctx is cancelled.
func runTraceServer(cmd *cobra.Command, ctx context.Context, ts store.TraceStore, runID string, open bool) error {
	srv := visualization.NewServer(ts, runID)

	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()

	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			srvCancel()
		case <-srvCtx.Done():
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(srvCtx) }()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if srv.Addr() != "" {
			break
		}
		select {
		case err := <-errCh:
			return fmt.Errorf("server error: %w", err)
		case <-time.After(10 * time.Millisecond):
		}
	}

	addr := srv.Addr()
	if addr == "" {
		return fmt.Errorf("server failed to start")
	}

	url := "http://" + addr
	fmt.Fprintf(cmd.OutOrStdout(), "Trace viewer running at %s\n", url)
	fmt.Fprintf(cmd.OutOrStdout(), "Press Ctrl-C to stop.\n")

	if open {
		if err := visualization.OpenBrowser(url); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, url)
		}
	}

	if err := <-errCh; err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
