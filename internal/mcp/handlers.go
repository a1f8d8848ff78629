package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/fipsim/internal/constants"
	"github.com/nvandessel/fipsim/internal/engine"
	"github.com/nvandessel/fipsim/internal/logging"
	"github.com/nvandessel/fipsim/internal/models"
	"github.com/nvandessel/fipsim/internal/ratelimit"
	"github.com/nvandessel/fipsim/internal/reversal"
	"github.com/nvandessel/fipsim/internal/store"
	"github.com/nvandessel/fipsim/internal/visualization"
)

const (
	runResourcePrefix  = "fipsim://runs/"
	metricsResourceURI = "fipsim://metrics"
	defaultRunsLimit   = 20
)

// registerTools registers all fipsim MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "fipsim_reverse",
		Description: "Reverse a linked list under the FIP or refcount discipline and record every heap snapshot",
	}, s.handleFipsimReverse)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "fipsim_frame",
		Description: "Render one snapshot of a recorded run as text, Graphviz DOT or JSON",
	}, s.handleFipsimFrame)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "fipsim_runs",
		Description: "List recorded runs, newest first",
	}, s.handleFipsimRuns)
}

// registerResources registers the trace and metrics resources.
func (s *Server) registerResources() {
	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: runResourcePrefix + "{id}",
		Name:        "fipsim-run-trace",
		Description: "Every frame of a recorded run as a plain-text frame log.",
		MIMEType:    "text/plain",
	}, s.handleRunResource)

	s.server.AddResource(&sdk.Resource{
		URI:         metricsResourceURI,
		Name:        "fipsim-metrics",
		Description: "Heap, binding and snapshot counters for runs made through this server.",
		MIMEType:    "text/plain",
	}, s.handleMetricsResource)
}

// handleFipsimReverse implements the fipsim_reverse tool.
func (s *Server) handleFipsimReverse(ctx context.Context, req *sdk.CallToolRequest, args FipsimReverseInput) (_ *sdk.CallToolResult, _ FipsimReverseOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("fipsim_reverse", start, retErr, sanitizeToolParams(map[string]any{
			"values": args.Values, "discipline": args.Discipline, "format": args.Format, "include_frames": args.IncludeFrames,
		}))
	}()

	if err := ratelimit.CheckLimit(s.limiters, "fipsim_reverse"); err != nil {
		return nil, FipsimReverseOutput{}, err
	}
	ctx, cancel := s.toolContext(ctx)
	defer cancel()

	discipline := args.Discipline
	if discipline == "" {
		discipline = constants.DisciplineFIP
	}
	fip, err := reversal.ParseDiscipline(discipline)
	if err != nil {
		return nil, FipsimReverseOutput{}, err
	}
	discipline = reversal.DisciplineName(fip)

	format, err := parseFormat(args.Format)
	if err != nil {
		return nil, FipsimReverseOutput{}, err
	}

	rec := &engine.Recorder{}
	out, err := reversal.SimulateContext(ctx, args.Values, fip, rec, engine.WithObserver(engine.Observers{
		s.metrics.ForDiscipline(discipline),
		logging.SlogObserver{Logger: s.logger},
	}))
	s.metrics.RecordRun(discipline, err)
	if err != nil {
		return nil, FipsimReverseOutput{}, err
	}

	id, err := s.store.SaveRun(ctx, store.Run{
		Discipline: discipline,
		Input:      out.Input,
		Result:     out.Result.Values,
		Stats:      out.Stats,
	}, rec.Snapshots)
	if err != nil {
		return nil, FipsimReverseOutput{}, fmt.Errorf("save run: %w", err)
	}
	s.logger.Info("run recorded", "run", id, "discipline", discipline, "frames", len(rec.Snapshots))

	var rendered string
	if args.IncludeFrames {
		var b strings.Builder
		if err := visualization.RenderTrace(&b, rec.Snapshots, format); err != nil {
			return nil, FipsimReverseOutput{}, fmt.Errorf("render trace: %w", err)
		}
		rendered = b.String()
	} else if last, ok := rec.Last(); ok {
		rendered, err = renderFrame(last, format)
		if err != nil {
			return nil, FipsimReverseOutput{}, err
		}
	}

	return nil, FipsimReverseOutput{
		RunID:      id,
		Discipline: discipline,
		Input:      out.Input,
		Result:     nonNil(out.Result.Values),
		Stats:      out.Stats,
		FrameCount: len(rec.Snapshots),
		Format:     string(format),
		Rendered:   rendered,
	}, nil
}

// handleFipsimFrame implements the fipsim_frame tool.
func (s *Server) handleFipsimFrame(ctx context.Context, req *sdk.CallToolRequest, args FipsimFrameInput) (_ *sdk.CallToolResult, _ FipsimFrameOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("fipsim_frame", start, retErr, sanitizeToolParams(map[string]any{
			"run_id": args.RunID, "seq": args.Seq, "format": args.Format,
		}))
	}()

	if err := ratelimit.CheckLimit(s.limiters, "fipsim_frame"); err != nil {
		return nil, FipsimFrameOutput{}, err
	}
	ctx, cancel := s.toolContext(ctx)
	defer cancel()

	if args.RunID == "" {
		return nil, FipsimFrameOutput{}, fmt.Errorf("'run_id' parameter is required")
	}
	if args.Seq < 0 {
		return nil, FipsimFrameOutput{}, fmt.Errorf("'seq' must be positive, got %d", args.Seq)
	}
	format, err := parseFormat(args.Format)
	if err != nil {
		return nil, FipsimFrameOutput{}, err
	}

	run, err := s.store.GetRun(ctx, args.RunID)
	if err != nil {
		return nil, FipsimFrameOutput{}, fmt.Errorf("get run %q: %w", args.RunID, err)
	}
	seq := args.Seq
	if seq == 0 {
		seq = run.FrameCount
	}
	snap, err := s.store.Frame(ctx, run.ID, seq)
	if err != nil {
		return nil, FipsimFrameOutput{}, fmt.Errorf("get frame %d of %s: %w", seq, run.ID, err)
	}

	rendered, err := renderFrame(*snap, format)
	if err != nil {
		return nil, FipsimFrameOutput{}, err
	}
	return nil, FipsimFrameOutput{
		RunID:      run.ID,
		Seq:        snap.Seq,
		Step:       snap.Step,
		FrameCount: run.FrameCount,
		Format:     string(format),
		Rendered:   rendered,
	}, nil
}

// handleFipsimRuns implements the fipsim_runs tool.
func (s *Server) handleFipsimRuns(ctx context.Context, req *sdk.CallToolRequest, args FipsimRunsInput) (_ *sdk.CallToolResult, _ FipsimRunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("fipsim_runs", start, retErr, sanitizeToolParams(map[string]any{}))
	}()

	if err := ratelimit.CheckLimit(s.limiters, "fipsim_runs"); err != nil {
		return nil, FipsimRunsOutput{}, err
	}
	ctx, cancel := s.toolContext(ctx)
	defer cancel()

	limit := args.Limit
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	runs, err := s.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, FipsimRunsOutput{}, fmt.Errorf("list runs: %w", err)
	}

	summaries := make([]RunSummary, 0, len(runs))
	for _, r := range runs {
		summaries = append(summaries, RunSummary{
			ID:            r.ID,
			CreatedAt:     r.CreatedAt.UTC().Format(time.RFC3339),
			Discipline:    r.Discipline,
			Input:         nonNil(r.Input),
			Result:        nonNil(r.Result),
			FrameCount:    r.FrameCount,
			Allocations:   r.Stats.Allocations,
			Reuses:        r.Stats.Reuses,
			Deallocations: r.Stats.Deallocations,
		})
	}
	return nil, FipsimRunsOutput{Runs: summaries, Count: len(summaries)}, nil
}

// handleRunResource returns the text frame log of one run.
// URI format: fipsim://runs/{id}
func (s *Server) handleRunResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	if !strings.HasPrefix(uri, runResourcePrefix) {
		return nil, fmt.Errorf("invalid URI format: %s", uri)
	}
	id := strings.TrimPrefix(uri, runResourcePrefix)
	if id == "" {
		return nil, fmt.Errorf("run ID is required")
	}

	frames, err := s.store.Frames(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load run %q: %w", id, err)
	}
	var b strings.Builder
	if err := visualization.RenderTrace(&b, frames, visualization.FormatText); err != nil {
		return nil, fmt.Errorf("render run %q: %w", id, err)
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      uri,
				MIMEType: "text/plain",
				Text:     b.String(),
			},
		},
	}, nil
}

// handleMetricsResource returns the server's metric samples.
func (s *Server) handleMetricsResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	var b strings.Builder
	if err := s.metrics.WriteSummary(&b); err != nil {
		return nil, err
	}
	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      metricsResourceURI,
				MIMEType: "text/plain",
				Text:     b.String(),
			},
		},
	}, nil
}

// parseFormat defaults an empty format to text.
func parseFormat(s string) (visualization.Format, error) {
	if s == "" {
		return visualization.FormatText, nil
	}
	return visualization.ParseFormat(s)
}

// renderFrame renders a single snapshot.
func renderFrame(snap models.Snapshot, format visualization.Format) (string, error) {
	switch format {
	case visualization.FormatDOT:
		return visualization.RenderDOT(snap), nil
	case visualization.FormatJSON:
		data, err := visualization.RenderJSON(snap)
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		return visualization.RenderText(snap), nil
	}
}

func nonNil(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}
