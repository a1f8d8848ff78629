package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nvandessel/fipsim/internal/config"
	"github.com/nvandessel/fipsim/internal/engine"
	"github.com/nvandessel/fipsim/internal/logging"
	"github.com/nvandessel/fipsim/internal/metrics"
	"github.com/nvandessel/fipsim/internal/models"
	"github.com/nvandessel/fipsim/internal/reversal"
	"github.com/nvandessel/fipsim/internal/store"
	"github.com/nvandessel/fipsim/internal/visualization"
)

// runReport is the JSON form of one finished run.
type runReport struct {
	RunID      string            `json:"run_id,omitempty"`
	Discipline string            `json:"discipline"`
	Input      []int             `json:"input"`
	Result     []int             `json:"result"`
	Stats      engine.Stats      `json:"stats"`
	Frames     []models.Snapshot `json:"frames,omitempty"`
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reverse a list and print every snapshot",
		Long: `Reverse a list on the simulated heap and print the snapshot log.

Values and discipline default to the configuration (simulation.values,
simulation.discipline). Each run is stored in the trace database unless
--no-persist is given or store.persist is false.

Examples:
  fipsim run --values 1,2,3                  # FIP reversal, text frame log
  fipsim run --values 1,2 --discipline rc    # refcount reversal
  fipsim run --values 1,2,3 --compare        # both disciplines side by side
  fipsim run --values 1,2 --format dot -o trace.dot`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runSimulation(cmd, cfg)
		},
	}

	cmd.Flags().String("values", "", "Comma separated integers to reverse (default from config)")
	cmd.Flags().String("discipline", "", "Memory discipline: fip or rc (default from config)")
	cmd.Flags().String("format", "", "Frame format: text, dot or json (default from config)")
	cmd.Flags().Bool("compare", false, "Run both disciplines and print a comparison instead of frames")
	cmd.Flags().Bool("no-persist", false, "Do not store the trace")
	cmd.Flags().Bool("metrics", false, "Print engine metrics after the run")
	cmd.Flags().StringP("output", "o", "", "Write frames to this file instead of stdout")

	return cmd
}

func runSimulation(cmd *cobra.Command, cfg *config.FipsimConfig) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()
	logger := newLogger(cmd, cfg)

	values := cfg.Simulation.Values
	if s, _ := cmd.Flags().GetString("values"); cmd.Flags().Changed("values") {
		parsed, err := reversal.ParseValues(s)
		if err != nil {
			return fmt.Errorf("--values: %w", err)
		}
		values = parsed
	}

	discipline := cfg.Simulation.Discipline
	if s, _ := cmd.Flags().GetString("discipline"); s != "" {
		discipline = s
	}
	fip, err := reversal.ParseDiscipline(discipline)
	if err != nil {
		return err
	}

	formatName := cfg.Output.Format
	if s, _ := cmd.Flags().GetString("format"); s != "" {
		formatName = s
	}
	format, err := visualization.ParseFormat(formatName)
	if err != nil {
		return err
	}

	compare, _ := cmd.Flags().GetBool("compare")
	noPersist, _ := cmd.Flags().GetBool("no-persist")
	showMetrics, _ := cmd.Flags().GetBool("metrics")
	outputPath, _ := cmd.Flags().GetString("output")

	disciplines := []bool{fip}
	if compare {
		disciplines = []bool{true, false}
	}

	var ts store.TraceStore
	storeDir, err := store.ResolveDir(cfg.Store.Dir)
	if err != nil {
		return err
	}
	if cfg.Store.Persist && !noPersist {
		sqliteStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer sqliteStore.Close()
		ts = sqliteStore
	}

	collector := metrics.NewCollector()
	reports := make([]runReport, 0, len(disciplines))
	for _, d := range disciplines {
		report, err := simulateOnce(ctx, values, d, ts, collector, logger, storeDir, cfg.Logging.Level)
		if err != nil {
			return err
		}
		reports = append(reports, report)
	}

	if jsonOutput(cmd) {
		if compare {
			for i := range reports {
				reports[i].Frames = nil
			}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if compare {
			return enc.Encode(reports)
		}
		return enc.Encode(reports[0])
	}

	if compare {
		writeComparison(out, reports)
	} else {
		w := out
		if outputPath != "" {
			f, err := os.Create(outputPath)
			if err != nil {
				return fmt.Errorf("create output file: %w", err)
			}
			defer f.Close()
			w = f
		}
		if err := visualization.RenderTrace(w, reports[0].Frames, format); err != nil {
			return fmt.Errorf("render trace: %w", err)
		}
		if outputPath != "" {
			fmt.Fprintf(out, "Frames written to %s\n", outputPath)
		}
		writeSummary(out, reports[0])
	}

	if showMetrics {
		fmt.Fprintln(out)
		if err := collector.WriteSummary(out); err != nil {
			return err
		}
	}
	return nil
}

// simulateOnce runs one discipline, stores the trace when ts is non-nil and
// returns the report with its frames.
func simulateOnce(ctx context.Context, values []int, fip bool, ts store.TraceStore, collector *metrics.Collector, logger *slog.Logger, storeDir, level string) (runReport, error) {
	discipline := reversal.DisciplineName(fip)
	runID := uuid.NewString()

	eventLog := logging.NewEventLogger(storeDir, level, runID)
	defer eventLog.Close()

	rec := &engine.Recorder{}
	outcome, err := reversal.SimulateContext(ctx, values, fip, rec, engine.WithObserver(engine.Observers{
		collector.ForDiscipline(discipline),
		logging.SlogObserver{Logger: logger},
		eventLog,
	}))
	collector.RecordRun(discipline, err)
	if err != nil {
		return runReport{}, fmt.Errorf("%s run: %w", discipline, err)
	}

	report := runReport{
		Discipline: discipline,
		Input:      outcome.Input,
		Result:     outcome.Result.Values,
		Stats:      outcome.Stats,
		Frames:     rec.Snapshots,
	}
	if report.Result == nil {
		report.Result = []int{}
	}

	if ts != nil {
		id, err := ts.SaveRun(ctx, store.Run{
			ID:         runID,
			Discipline: discipline,
			Input:      outcome.Input,
			Result:     outcome.Result.Values,
			Stats:      outcome.Stats,
		}, rec.Snapshots)
		if err != nil {
			return runReport{}, fmt.Errorf("save %s run: %w", discipline, err)
		}
		report.RunID = id
		logger.Debug("run stored", "run", id, "discipline", discipline, "frames", len(rec.Snapshots))
	}
	return report, nil
}

func writeSummary(w io.Writer, r runReport) {
	fmt.Fprintf(w, "\n%s: %v -> %v  input=%d allocations=%d reuses=%d deallocations=%d peak_cells=%d frames=%d\n",
		r.Discipline, r.Input, r.Result, r.Stats.InputCells, r.Stats.Allocations, r.Stats.Reuses, r.Stats.Deallocations, r.Stats.PeakCells, r.Stats.Snapshots)
	if r.RunID != "" {
		fmt.Fprintf(w, "Stored as run %s\n", r.RunID)
	}
}

func writeComparison(w io.Writer, reports []runReport) {
	if len(reports) == 0 {
		return
	}
	fmt.Fprintf(w, "input:  %v\nresult: %v\n\n", reports[0].Input, reports[0].Result)
	fmt.Fprintf(w, "%-10s %-12s %-7s %-14s %-11s %-7s %s\n",
		"discipline", "allocations", "reuses", "deallocations", "peak_cells", "frames", "run")
	for _, r := range reports {
		id := "-"
		if r.RunID != "" {
			id = shortID(r.RunID)
		}
		fmt.Fprintf(w, "%-10s %-12d %-7d %-14d %-11d %-7d %s\n",
			r.Discipline, r.Stats.Allocations, r.Stats.Reuses, r.Stats.Deallocations, r.Stats.PeakCells, r.Stats.Snapshots, id)
	}
}

// shortID returns the first 8 characters of a run id.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
