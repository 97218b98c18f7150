package render

import (
	"fmt"

	"symtrace/internal/record"
)

// TreeVariable is the JS variable the browser viewer reads.
const TreeVariable = "traceTreeData"

// treeUnit is one top-level entry of the viewer data, one per verified unit.
type treeUnit struct {
	Unit   string      `json:"unit"`
	Macros []treeMacro `json:"macros,omitempty"`
	Tree   *treeNode   `json:"tree"`
}

type treeMacro struct {
	Name string `json:"name"`
	Body string `json:"body"`
}

// treeNode is the nested object shape the viewer consumes. Prestate carries
// the formatted heap/store snapshot; json encoding escapes its newlines and
// backslashes.
type treeNode struct {
	Name     string      `json:"name"`
	Kind     string      `json:"kind"`
	Open     bool        `json:"open"`
	Prestate string      `json:"prestate,omitempty"`
	Children []*treeNode `json:"children,omitempty"`
}

// Tree renders the viewer data file: a nested-object array literal assigned
// to TreeVariable.
func Tree(units []Unit) ([]byte, error) {
	entries := make([]treeUnit, 0, len(units))
	for _, u := range units {
		entry := treeUnit{
			Unit: u.Root.Display(),
			Tree: treeFromRecord(u.Root),
		}
		for _, m := range u.Macros {
			entry.Macros = append(entry.Macros, treeMacro{Name: m.Name.String(), Body: m.Body.String()})
		}
		entries = append(entries, entry)
	}

	data, err := encodeIndented(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tree data: %w", err)
	}
	out := make([]byte, 0, len(data)+len(TreeVariable)+16)
	out = append(out, "var "+TreeVariable+" = "...)
	out = append(out, data...)
	out = append(out, ";\n"...)
	return out, nil
}

func treeFromRecord(r *record.Record) *treeNode {
	e := r.Export()
	n := &treeNode{
		Name:     e.Label,
		Kind:     e.Kind,
		Prestate: e.Prestate,
	}

	switch {
	case r.Branch != nil:
		n.Children = append(n.Children, treeFromList(r.Branch.Condition)...)
		if r.Kind == record.KindCondEdge {
			n.Children = append(n.Children, treeFromList(r.Branch.Then)...)
		} else {
			n.Children = append(n.Children,
				treeGroup("Branch 1", r.Branch.Then),
				treeGroup("Branch 2", r.Branch.Else))
		}
	case r.Edges != nil:
		if len(r.Edges) == 1 {
			n.Children = treeFromList(r.Edges[0])
		} else {
			for i, edge := range r.Edges {
				n.Children = append(n.Children, treeGroup(fmt.Sprintf("Branch %d", i+1), edge))
			}
		}
	case r.Call != nil:
		if len(r.Call.Parameters) > 0 {
			n.Children = append(n.Children, treeGroup("parameters", r.Call.Parameters))
		}
		if len(r.Call.Precondition) > 0 {
			n.Children = append(n.Children, treeGroup("precondition", r.Call.Precondition))
		}
		if len(r.Call.Postcondition) > 0 {
			n.Children = append(n.Children, treeGroup("postcondition", r.Call.Postcondition))
		}
		n.Children = append(n.Children, treeFromList(r.Children)...)
	default:
		n.Children = treeFromList(r.Children)
	}

	n.Open = len(n.Children) > 0
	return n
}

func treeFromList(rs []*record.Record) []*treeNode {
	var nodes []*treeNode
	for _, r := range rs {
		if !record.Loggable(r.Kind, r.Source) {
			continue
		}
		nodes = append(nodes, treeFromRecord(r))
	}
	return nodes
}

func treeGroup(name string, rs []*record.Record) *treeNode {
	children := treeFromList(rs)
	return &treeNode{Name: name, Open: len(children) > 0, Children: children}
}
