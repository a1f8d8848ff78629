package visualization

import (
	"fmt"
	"strings"

	"github.com/nvandessel/fipsim/internal/models"
)

// maxChainText bounds the rendered list behind a binding.
const maxChainText = 60

// RenderText renders one snapshot as a block of the plain-text frame log.
func RenderText(snap models.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s (%d cells)\n", snap.Seq, snap.Step, len(snap.Cells))

	for _, c := range snap.Cells {
		fmt.Fprintf(&b, "  %-5s value=%-4d next=%-5s rc=%d", c.ID, c.Value, c.Next, c.RefCount)
		if c.Tag != models.CellNormal {
			b.WriteString("  " + string(c.Tag))
		}
		b.WriteString("\n")
	}

	for _, f := range snap.Frames {
		fmt.Fprintf(&b, "  [%d] %s\n", f.Depth, f.Label)
		for _, bv := range f.Bindings {
			fmt.Fprintf(&b, "      %-4s %s", bv.ID, bv.Label)
			if bv.Target.Kind == models.SlotCell {
				fmt.Fprintf(&b, " -> %s %s", bv.Target.Cell, truncate(fmt.Sprint(snap.Chain(bv.Target.Cell)), maxChainText))
			} else {
				fmt.Fprintf(&b, " = %s", bv.Target)
			}
			if bv.Transient {
				b.WriteString("  transient")
			}
			if bv.Tag != models.BindingNormal {
				b.WriteString("  " + string(bv.Tag))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
