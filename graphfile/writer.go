// ABOUTME: Serializer that writes an Instance back to the fixed-layout graph file format.
// ABOUTME: Output preserves entry and edge order so Parse(Write(x)) reproduces x.
package graphfile

import (
	"bufio"
	"fmt"
	"io"
)

// Write serializes inst in the format accepted by Parse. The declared node
// count is derived from the number of demand entries.
func Write(w io.Writer, inst *Instance) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "%d\n", len(inst.Entries)+1)
	for _, d := range inst.Entries {
		fmt.Fprintf(bw, "%d %d\n", d.Node, d.Amount)
	}

	fmt.Fprintf(bw, "%d\n", len(inst.Edges))
	for _, e := range inst.Edges {
		fmt.Fprintf(bw, "%s %s %d\n", e.From, e.To, e.Cost)
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write graph file: %w", err)
	}
	return nil
}
