package visualization

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/nvandessel/fipsim/internal/engine"
	"github.com/nvandessel/fipsim/internal/models"
	"github.com/nvandessel/fipsim/internal/reversal"
)

func traceOf(t *testing.T, values []int, fip bool) []models.Snapshot {
	t.Helper()
	rec := &engine.Recorder{}
	if _, err := reversal.Simulate(values, fip, rec); err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	return rec.Snapshots
}

// sampleSnapshot has one root binding to a two-cell chain and a pending
// transient in a nested frame.
func sampleSnapshot() models.Snapshot {
	return models.Snapshot{
		Seq:  4,
		Step: "commit",
		Cells: []models.CellView{
			{ID: 1, Value: 10, Next: 2, RefCount: 1, Tag: models.CellNew},
			{ID: 2, Value: 20, RefCount: 1, Tag: models.CellPendingDealloc},
		},
		Frames: []models.FrameView{
			{Label: "main", Depth: 0, Bindings: []models.BindingView{
				{ID: 1, Label: "list", Target: models.CellRef(1), Tag: models.BindingNormal},
			}},
			{Label: "reverse#1", Depth: 1, Bindings: []models.BindingView{
				{ID: 2, Label: "x", Target: models.Value(10), Transient: true, Tag: models.BindingPendingRemoval},
			}},
		},
		Edges: []models.Edge{
			{Kind: models.EdgeNext, From: "c1", To: 2},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"dot", FormatDOT, false},
		{"JSON", FormatJSON, false},
		{" text ", FormatText, false},
		{"html", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenderDOT_Snapshot(t *testing.T) {
	dot := RenderDOT(sampleSnapshot())

	checks := []string{
		"digraph snapshot_4",
		`label="#4 commit"`,
		"subgraph cluster_0",
		"subgraph cluster_1",
		`"c1" [label="c1 | 10 | rc=1"`,
		`fillcolor="mediumseagreen"`,
		`fillcolor="tomato"`,
		`"b2" [label="x = 10*", shape=ellipse, style=dashed]`,
		`"c1" -> "c2" [label="next", style=solid]`,
	}
	for _, want := range checks {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q\n%s", want, dot)
		}
	}
	if !strings.HasSuffix(strings.TrimSpace(dot), "}") {
		t.Error("expected closing brace")
	}
}

func TestRenderDOT_EmptyFrameKeepsCluster(t *testing.T) {
	snap := models.Snapshot{Seq: 1, Step: "commit", Frames: []models.FrameView{{Label: "main"}}}
	dot := RenderDOT(snap)
	if !strings.Contains(dot, `"frame0"`) {
		t.Errorf("expected placeholder node for empty frame\n%s", dot)
	}
}

func TestRenderDOT_BindingEdgesDashed(t *testing.T) {
	frames := traceOf(t, []int{1, 2}, true)
	found := false
	for _, f := range frames {
		for _, e := range f.Edges {
			if e.Kind == models.EdgeBinding {
				found = true
				dot := RenderDOT(f)
				if !strings.Contains(dot, `[label="binding", style=dashed]`) {
					t.Errorf("frame %d: binding edge not dashed\n%s", f.Seq, dot)
				}
			}
		}
	}
	if !found {
		t.Fatal("trace had no binding edges")
	}
}

func TestRenderJSON_Snapshot(t *testing.T) {
	data, err := RenderJSON(sampleSnapshot())
	if err != nil {
		t.Fatalf("RenderJSON: %v", err)
	}
	var back models.Snapshot
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Seq != 4 || len(back.Cells) != 2 || back.Frames[1].Bindings[0].Target != models.Value(10) {
		t.Errorf("decoded snapshot = %+v", back)
	}
}

func TestRenderText_Snapshot(t *testing.T) {
	text := RenderText(sampleSnapshot())

	checks := []string{
		"#4 commit (2 cells)",
		"c1    value=10   next=c2    rc=1  new",
		"c2    value=20   next=nil   rc=1  pending-dealloc",
		"[0] main",
		"b1   list -> c1 [10 20]",
		"[1] reverse#1",
		"b2   x = 10  transient  pending-removal",
	}
	for _, want := range checks {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q\n%s", want, text)
		}
	}
}

func TestRenderTrace_Formats(t *testing.T) {
	frames := traceOf(t, []int{1, 2}, false)

	tests := []struct {
		format Format
		check  func(t *testing.T, out string)
	}{
		{FormatDOT, func(t *testing.T, out string) {
			if got := strings.Count(out, "digraph "); got != len(frames) {
				t.Errorf("digraph count = %d, want %d", got, len(frames))
			}
		}},
		{FormatJSON, func(t *testing.T, out string) {
			var back []models.Snapshot
			if err := json.Unmarshal([]byte(out), &back); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if len(back) != len(frames) {
				t.Errorf("decoded %d frames, want %d", len(back), len(frames))
			}
		}},
		{FormatText, func(t *testing.T, out string) {
			if !strings.HasPrefix(out, "#1 ") {
				t.Errorf("text log should start with frame #1, got %q", truncate(out, 20))
			}
			if !strings.Contains(out, "dealloc") {
				t.Error("rc trace should show a dealloc frame")
			}
		}},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := RenderTrace(&buf, frames, tt.format); err != nil {
				t.Fatalf("RenderTrace: %v", err)
			}
			tt.check(t, buf.String())
		})
	}

	if err := RenderTrace(&bytes.Buffer{}, frames, "svg"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestRenderTrace_EmptyJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderTrace(&buf, nil, FormatJSON); err != nil {
		t.Fatalf("RenderTrace: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty trace = %q, want []", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("a long string here", 10); got != "a long ..." {
		t.Errorf("truncate long = %q", got)
	}
}
