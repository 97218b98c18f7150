package render

import (
	"fmt"

	"go.uber.org/zap"

	"symtrace/internal/record"
)

// GenericNode is the renderer-neutral graph node derived from a record
// tree. Children nest like the source records; successors express control
// flow between branch bodies. Derivation is the only place timing is ever
// recomputed.
type GenericNode struct {
	Label      string
	Children   []*GenericNode
	Successors []*GenericNode
	Syntactic  bool // Structural node, not a semantic step
	SmtQuery   bool // Node standing for a prover interaction
	StartMs    int64
	EndMs      int64
}

// Generic derives the generic-node graph for one unit.
func Generic(root *record.Record) *GenericNode {
	return genericFromRecord(root)
}

func genericFromRecord(r *record.Record) *GenericNode {
	n := &GenericNode{
		Label:   r.Display(),
		StartMs: r.StartMs,
		EndMs:   r.EndMs,
	}
	if r.Kind == record.KindComment && r.Term != nil {
		n.SmtQuery = true
	}

	switch {
	case r.Branch != nil:
		// The condition nests, the bodies are control flow.
		n.Children = genericList(r.Branch.Condition)
		b := r.Branch
		if r.Kind == record.KindCondEdge {
			n.Successors = []*GenericNode{genericGroup("Branch 1", b.Then, b.CondEndMs, b.ThenEndMs)}
			break
		}
		thenBody := genericGroup("Branch 1", b.Then, b.CondEndMs, b.ThenEndMs)
		elseBody := genericGroup("Branch 2", b.Else, b.ThenEndMs, b.ElseEndMs)
		n.Successors = []*GenericNode{thenBody, elseBody}
		if r.Kind == record.KindLocalBranch {
			// Local splits rejoin: both bodies flow into a synthesized join
			// spanning the later body end through the branch record's end.
			join := &GenericNode{
				Label:     "join",
				Syntactic: true,
				StartMs:   maxMs(b.ThenEndMs, b.ElseEndMs),
				EndMs:     r.EndMs,
			}
			thenBody.Successors = append(thenBody.Successors, join)
			elseBody.Successors = append(elseBody.Successors, join)
		}
	case r.Edges != nil:
		// The record wraps its out-edges; its own span shrinks to the
		// dispatch so edge bodies own their time.
		n.Syntactic = true
		for i, edge := range r.Edges {
			n.Successors = append(n.Successors, genericEdgeGroup(fmt.Sprintf("Branch %d", i+1), edge))
		}
		if min, ok := minStart(n.Successors); ok {
			n.EndMs = min
		}
	case r.Call != nil:
		n.Children = append(n.Children, genericList(r.Call.Parameters)...)
		n.Children = append(n.Children, genericList(r.Call.Precondition)...)
		n.Children = append(n.Children, genericList(r.Call.Postcondition)...)
		n.Children = append(n.Children, genericList(r.Children)...)
	default:
		n.Children = genericList(r.Children)
	}
	return n
}

func genericList(rs []*record.Record) []*GenericNode {
	var nodes []*GenericNode
	for _, r := range rs {
		if !record.Loggable(r.Kind, r.Source) {
			continue
		}
		nodes = append(nodes, genericFromRecord(r))
	}
	return nodes
}

// genericGroup wraps a branch body, timed by the enclosing record's phase
// stamps.
func genericGroup(label string, rs []*record.Record, startMs, endMs int64) *GenericNode {
	return &GenericNode{
		Label:     label,
		Syntactic: true,
		StartMs:   startMs,
		EndMs:     endMs,
		Children:  genericList(rs),
	}
}

// genericEdgeGroup wraps a control-flow edge body. Edges have no phase
// stamps; the group takes its span from its first and last timed children.
func genericEdgeGroup(label string, rs []*record.Record) *GenericNode {
	g := &GenericNode{Label: label, Syntactic: true, Children: genericList(rs)}
	for _, c := range g.Children {
		if c.StartMs > 0 {
			g.StartMs = c.StartMs
			break
		}
	}
	for i := len(g.Children) - 1; i >= 0; i-- {
		if g.Children[i].EndMs > 0 {
			g.EndMs = g.Children[i].EndMs
			break
		}
	}
	return g
}

func minStart(nodes []*GenericNode) (int64, bool) {
	var min int64
	for _, n := range nodes {
		if n.StartMs == 0 {
			continue
		}
		if min == 0 || n.StartMs < min {
			min = n.StartMs
		}
	}
	return min, min != 0
}

func maxMs(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// ============================================================================
// JSON export
// ============================================================================

type genericJSONNode struct {
	ID         int    `json:"id"`
	Label      string `json:"label"`
	Syntactic  bool   `json:"syntactic,omitempty"`
	SmtQuery   bool   `json:"smtQuery,omitempty"`
	StartMs    int64  `json:"startMs,omitempty"`
	EndMs      int64  `json:"endMs,omitempty"`
	Children   []int  `json:"children,omitempty"`
	Successors []int  `json:"successors,omitempty"`
}

// GenericJSON exports unit graphs as one flat JSON array of nodes: every
// node gets an integer id matching its array position, child and successor
// lists become index lists. Unit roots come first in depth-first order. A
// node with a reference that cannot be resolved renders as a minimal
// label-only object and is reported on the diagnostic logger; the export
// itself never fails over it.
func GenericJSON(roots []*GenericNode, logger *zap.Logger) ([]byte, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var order []*GenericNode
	index := make(map[*GenericNode]int)
	var collect func(n *GenericNode)
	collect = func(n *GenericNode) {
		if _, seen := index[n]; seen {
			return
		}
		index[n] = len(order)
		order = append(order, n)
		for _, c := range n.Children {
			collect(c)
		}
		for _, s := range n.Successors {
			collect(s)
		}
	}
	for _, r := range roots {
		collect(r)
	}

	nodes := make([]any, 0, len(order))
	for id, n := range order {
		nodes = append(nodes, genericJSONEntry(id, n, index, logger))
	}

	data, err := encodeIndented(nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode generic graph: %w", err)
	}
	return data, nil
}

// genericJSONEntry builds the export object for one node. When a child or
// successor is missing from the index the node degrades to a label-only
// object so the rest of the graph still exports.
func genericJSONEntry(id int, n *GenericNode, index map[*GenericNode]int, logger *zap.Logger) any {
	out := genericJSONNode{
		ID:        id,
		Label:     n.Label,
		Syntactic: n.Syntactic,
		SmtQuery:  n.SmtQuery,
		StartMs:   n.StartMs,
		EndMs:     n.EndMs,
	}
	resolved := true
	for _, c := range n.Children {
		ref, ok := index[c]
		if !ok {
			resolved = false
			break
		}
		out.Children = append(out.Children, ref)
	}
	if resolved {
		for _, s := range n.Successors {
			ref, ok := index[s]
			if !ok {
				resolved = false
				break
			}
			out.Successors = append(out.Successors, ref)
		}
	}
	if !resolved {
		logger.Warn("generic graph node has unresolvable references",
			zap.Int("id", id),
			zap.String("label", n.Label))
		return struct {
			Label string `json:"label"`
		}{n.Label}
	}
	return out
}
