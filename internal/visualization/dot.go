// Package visualization renders snapshots and traces in various output formats.
package visualization

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/nvandessel/fipsim/internal/models"
)

// Format specifies the output format for snapshot rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatDOT, FormatJSON, FormatText:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (use dot, json or text)", s)
	}
}

// cellColors maps cell tags to DOT fill colors.
var cellColors = map[models.CellTag]string{
	models.CellNormal:         "lightgray",
	models.CellNew:            "mediumseagreen",
	models.CellMutated:        "goldenrod",
	models.CellPendingDealloc: "tomato",
}

// edgeStyles maps edge kinds to DOT styles.
var edgeStyles = map[models.EdgeKind]string{
	models.EdgeNext:    "solid",
	models.EdgeBinding: "dashed",
}

// RenderDOT produces a Graphviz DOT representation of one snapshot. Every
// frame becomes a cluster of binding nodes; cells sit outside the clusters.
func RenderDOT(snap models.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph snapshot_%d {\n", snap.Seq)
	fmt.Fprintf(&b, "  label=%q;\n", fmt.Sprintf("#%d %s", snap.Seq, snap.Step))
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n\n")

	for _, f := range snap.Frames {
		fmt.Fprintf(&b, "  subgraph cluster_%d {\n", f.Depth)
		fmt.Fprintf(&b, "    label=%q;\n", f.Label)
		b.WriteString("    style=rounded;\n")
		if len(f.Bindings) == 0 {
			// Graphviz drops empty clusters.
			fmt.Fprintf(&b, "    \"frame%d\" [label=\"\", shape=point, style=invis];\n", f.Depth)
		}
		for _, bv := range f.Bindings {
			style := "solid"
			if bv.Tag == models.BindingPendingRemoval {
				style = "dashed"
			}
			label := bv.Label
			if bv.Target.Kind != models.SlotCell {
				label += " = " + bv.Target.String()
			}
			if bv.Transient {
				label += "*"
			}
			fmt.Fprintf(&b, "    %q [label=%q, shape=ellipse, style=%s];\n", bv.ID.String(), label, style)
		}
		b.WriteString("  }\n")
	}
	b.WriteString("\n")

	for _, c := range snap.Cells {
		color := cellColors[c.Tag]
		if color == "" {
			color = "lightgray"
		}
		fmt.Fprintf(&b, "  %q [label=%q, shape=record, style=filled, fillcolor=%q];\n",
			c.ID.String(), fmt.Sprintf("%s | %d | rc=%d", c.ID, c.Value, c.RefCount), color)
	}
	b.WriteString("\n")

	for _, e := range snap.Edges {
		style := edgeStyles[e.Kind]
		if style == "" {
			style = "solid"
		}
		fmt.Fprintf(&b, "  %q -> %q [label=%q, style=%s];\n", e.From, e.To.String(), e.Kind, style)
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces an indented JSON document for one snapshot.
func RenderJSON(snap models.Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot %d: %w", snap.Seq, err)
	}
	return data, nil
}

// RenderTrace writes every frame of a trace in the given format. DOT output
// is a sequence of digraphs, JSON a single array, text a frame log.
func RenderTrace(w io.Writer, frames []models.Snapshot, format Format) error {
	switch format {
	case FormatDOT:
		for _, f := range frames {
			if _, err := io.WriteString(w, RenderDOT(f)); err != nil {
				return err
			}
		}
		return nil
	case FormatJSON:
		if frames == nil {
			frames = []models.Snapshot{}
		}
		data, err := json.MarshalIndent(frames, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal trace: %w", err)
		}
		data = append(data, '\n')
		_, err = w.Write(data)
		return err
	case FormatText:
		for _, f := range frames {
			if _, err := io.WriteString(w, RenderText(f)); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
