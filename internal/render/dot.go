package render

import (
	"fmt"
	"strings"

	"symtrace/internal/record"
)

// DOT renders every unit into a single GraphViz digraph: one
// rectangle-shaped node per record, an edge per child relation. Branch and
// call children get labelled edges so the slot they came from stays visible.
func DOT(units []Unit) string {
	var sb strings.Builder
	sb.WriteString("digraph {\n")
	sb.WriteString("node [shape=rectangle];\n")
	for _, u := range units {
		dotNode(&sb, u.Root)
	}
	sb.WriteString("}\n")
	return sb.String()
}

func dotNode(sb *strings.Builder, r *record.Record) {
	if !record.Loggable(r.Kind, r.Source) {
		return
	}
	fmt.Fprintf(sb, "%q [label=%q];\n", r.UID, r.Display())

	switch {
	case r.Branch != nil:
		dotEdges(sb, r, r.Branch.Condition, "")
		if r.Kind == record.KindCondEdge {
			dotEdges(sb, r, r.Branch.Then, "")
		} else {
			dotEdges(sb, r, r.Branch.Then, "Branch 1")
			dotEdges(sb, r, r.Branch.Else, "Branch 2")
		}
	case r.Edges != nil:
		if len(r.Edges) == 1 {
			dotEdges(sb, r, r.Edges[0], "")
		} else {
			for i, edge := range r.Edges {
				dotEdges(sb, r, edge, fmt.Sprintf("Branch %d", i+1))
			}
		}
	case r.Call != nil:
		dotEdges(sb, r, r.Call.Parameters, "parameters")
		dotEdges(sb, r, r.Call.Precondition, "precondition")
		dotEdges(sb, r, r.Call.Postcondition, "postcondition")
		dotEdges(sb, r, r.Children, "")
	default:
		dotEdges(sb, r, r.Children, "")
	}
}

func dotEdges(sb *strings.Builder, parent *record.Record, children []*record.Record, label string) {
	for _, c := range children {
		if !record.Loggable(c.Kind, c.Source) {
			continue
		}
		if label == "" {
			fmt.Fprintf(sb, "%q -> %q;\n", parent.UID, c.UID)
		} else {
			fmt.Fprintf(sb, "%q -> %q [label=%q];\n", parent.UID, c.UID, label)
		}
		dotNode(sb, c)
	}
}
