// Package render turns finished record trees into the artifact formats:
// indented text, structure-only text, GraphViz, a browser-viewable JS tree,
// a generic timing graph and a Chrome trace event log. Renderers never
// mutate records.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"symtrace/internal/record"
	"symtrace/internal/tracer"
)

// Unit pairs a finished record tree with the macros recorded alongside it.
type Unit struct {
	Root   *record.Record
	Macros []tracer.Macro
}

// treeVisitor receives the flattened tree: one callback per record line and
// one per structural label (branch group headers).
type treeVisitor struct {
	record func(r *record.Record, depth int)
	label  func(text string, depth int)
}

// walk drives a visitor over the tree in render order: condition first, then
// branch groups, then flat children. Records the insert filter would have
// skipped are omitted, single-successor control-flow records are unwrapped.
func walk(r *record.Record, depth int, v treeVisitor) {
	if !record.Loggable(r.Kind, r.Source) {
		return
	}
	v.record(r, depth)

	switch {
	case r.Branch != nil:
		walkList(r.Branch.Condition, depth+1, v)
		if r.Kind == record.KindCondEdge {
			walkList(r.Branch.Then, depth+1, v)
		} else {
			v.label("Branch 1:", depth+1)
			walkList(r.Branch.Then, depth+2, v)
			v.label("Branch 2:", depth+1)
			walkList(r.Branch.Else, depth+2, v)
		}
	case r.Edges != nil:
		if len(r.Edges) == 1 {
			walkList(r.Edges[0], depth+1, v)
		} else {
			for i, edge := range r.Edges {
				v.label(fmt.Sprintf("Branch %d:", i+1), depth+1)
				walkList(edge, depth+2, v)
			}
		}
	case r.Call != nil:
		if len(r.Call.Parameters) > 0 {
			v.label("parameters:", depth+1)
			walkList(r.Call.Parameters, depth+2, v)
		}
		if len(r.Call.Precondition) > 0 {
			v.label("precondition:", depth+1)
			walkList(r.Call.Precondition, depth+2, v)
		}
		if len(r.Call.Postcondition) > 0 {
			v.label("postcondition:", depth+1)
			walkList(r.Call.Postcondition, depth+2, v)
		}
		walkList(r.Children, depth+1, v)
	default:
		walkList(r.Children, depth+1, v)
	}
}

func walkList(rs []*record.Record, depth int, v treeVisitor) {
	for _, r := range rs {
		walk(r, depth, v)
	}
}

// Text renders one unit as an indented dump: one line per record, two
// spaces per depth, record content included.
func Text(root *record.Record) string {
	var sb strings.Builder
	walk(root, 0, treeVisitor{
		record: func(r *record.Record, depth int) {
			writeLine(&sb, depth, r.Display())
		},
		label: func(text string, depth int) {
			writeLine(&sb, depth, text)
		},
	})
	return sb.String()
}

// Structure renders the same skeleton as Text with each record line reduced
// to its type tag. State and timing never leak into this output, so it is
// the stable form the regression engine compares.
func Structure(root *record.Record) string {
	var sb strings.Builder
	walk(root, 0, treeVisitor{
		record: func(r *record.Record, depth int) {
			writeLine(&sb, depth, string(r.Kind))
		},
		label: func(text string, depth int) {
			writeLine(&sb, depth, text)
		},
	})
	return sb.String()
}

func writeLine(sb *strings.Builder, depth int, text string) {
	for i := 0; i < depth; i++ {
		sb.WriteString("  ")
	}
	sb.WriteString(text)
	sb.WriteByte('\n')
}

// Visit calls fn for every record the renderers would show, in render order.
// Group labels are not reported.
func Visit(root *record.Record, fn func(r *record.Record)) {
	walk(root, 0, treeVisitor{
		record: func(r *record.Record, depth int) { fn(r) },
		label:  func(text string, depth int) {},
	})
}

// TextDump concatenates the Text rendering of every unit, one blank line
// between units.
func TextDump(units []Unit) string {
	return dump(units, Text)
}

// StructureDump concatenates the Structure rendering of every unit, one
// blank line between units.
func StructureDump(units []Unit) string {
	return dump(units, Structure)
}

func dump(units []Unit, render func(*record.Record) string) string {
	parts := make([]string, 0, len(units))
	for _, u := range units {
		parts = append(parts, render(u.Root))
	}
	return strings.Join(parts, "\n")
}

// encodeIndented marshals v as two-space indented JSON, leaving <, > and &
// unescaped so condition labels stay readable in the artifacts.
func encodeIndented(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
