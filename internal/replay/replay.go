// Package replay executes recorded operation scripts against a live
// session. Scripts are the YAML fixtures of the regression suites; running
// one reproduces the exact builder call sequence of a verifier run without
// needing the verifier.
package replay

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"symtrace/internal/record"
	"symtrace/internal/session"
	"symtrace/internal/tracer"
)

// Script is one replayable recording: a list of units, each a member
// declaration plus the ordered builder operations observed for it.
type Script struct {
	Version int          `yaml:"version"`
	Units   []UnitScript `yaml:"units"`
}

// UnitScript declares one verified unit and its operation sequence.
type UnitScript struct {
	Kind  string `yaml:"kind"`
	Name  string `yaml:"name"`
	State string `yaml:"state,omitempty"`
	Ops   []Op   `yaml:"ops"`
}

// Op is one builder operation. Which fields apply depends on Op.
type Op struct {
	Op         string   `yaml:"op"`
	Kind       string   `yaml:"kind,omitempty"`
	Node       string   `yaml:"node,omitempty"`
	Ref        string   `yaml:"ref,omitempty"`
	State      string   `yaml:"state,omitempty"`
	PathConds  []string `yaml:"path_conds,omitempty"`
	EmptySeq   bool     `yaml:"empty_seq,omitempty"`
	CallExpr   bool     `yaml:"call_expr,omitempty"`
	CondExpr   bool     `yaml:"cond_expr,omitempty"`
	Successors int      `yaml:"successors,omitempty"`
	Text       string   `yaml:"text,omitempty"`
	Term       string   `yaml:"term,omitempty"`
	Phase      string   `yaml:"phase,omitempty"`
	Aborted    bool     `yaml:"aborted,omitempty"`
	Branches   int      `yaml:"branches,omitempty"`
	Name       string   `yaml:"name,omitempty"`
	Body       string   `yaml:"body,omitempty"`
}

// scriptNode stands in for a program AST node. The capability flags feed
// the same insert filtering a real node would.
type scriptNode struct {
	label    string
	emptySeq bool
	callExpr bool
	condExpr bool
}

func (n scriptNode) String() string { return n.label }
func (n scriptNode) EmptySeq() bool { return n.emptySeq }
func (n scriptNode) IsCall() bool   { return n.callExpr }
func (n scriptNode) IsCond() bool   { return n.condExpr }

type scriptState string

func (s scriptState) Format() string { return string(s) }

type scriptTerm string

func (t scriptTerm) String() string { return string(t) }

// Load reads a script file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read replay script: %w", err)
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse replay script %s: %w", path, err)
	}
	return &s, nil
}

// Run replays every unit of the script against sess, in script order.
func Run(script *Script, sess *session.Session) error {
	for _, u := range script.Units {
		if err := runUnit(u, sess); err != nil {
			return fmt.Errorf("unit %q: %w", u.Name, err)
		}
	}
	return nil
}

// fork tracks one open begin-branch and the sibling outcomes gathered so
// far. Nested case splits stack.
type fork struct {
	saved    *tracer.Saved
	outcomes []tracer.Outcome
	branches int
}

func runUnit(u UnitScript, sess *session.Session) error {
	kind := record.Kind(u.Kind)
	if !kind.IsMember() {
		return fmt.Errorf("%q is not a member kind", u.Kind)
	}
	tr := sess.InsertMember(kind, scriptNode{label: u.Name}, stateOf(u.State))

	ids := make(map[string]int)
	var forks []fork
	for i, op := range u.Ops {
		if err := apply(tr, op, ids, &forks); err != nil {
			return fmt.Errorf("op %d (%s): %w", i+1, op.Op, err)
		}
	}
	if len(forks) != 0 {
		return fmt.Errorf("%d branch forks left open", len(forks))
	}
	tr.Close()
	return nil
}

func apply(tr *tracer.Tracer, op Op, ids map[string]int, forks *[]fork) error {
	switch op.Op {
	case "insert":
		rec, err := buildRecord(op)
		if err != nil {
			return err
		}
		id := tr.Insert(rec)
		if op.Ref != "" {
			ids[op.Ref] = id
		}
		return nil

	case "collapse":
		id, ok := ids[op.Ref]
		if !ok {
			return fmt.Errorf("unknown ref %q", op.Ref)
		}
		tr.Collapse(nodeOf(op), id)
		return nil

	case "begin-branch":
		*forks = append(*forks, fork{saved: tr.BeginBranch(), branches: op.Branches})
		return nil

	case "end-sibling":
		if len(*forks) == 0 {
			return fmt.Errorf("end-sibling without begin-branch")
		}
		f := &(*forks)[len(*forks)-1]
		out := tr.EndSibling(f.saved)
		out.Aborted = op.Aborted
		f.outcomes = append(f.outcomes, out)
		return nil

	case "end-branch":
		if len(*forks) == 0 {
			return fmt.Errorf("end-branch without begin-branch")
		}
		f := (*forks)[len(*forks)-1]
		*forks = (*forks)[:len(*forks)-1]
		count := f.branches
		if count == 0 {
			count = len(f.outcomes)
		}
		tr.EndBranch(f.saved, f.outcomes, count)
		return nil

	case "finish":
		return finishPhase(tr, op.Phase)

	case "macro":
		tr.AddMacro(scriptTerm(op.Name), scriptTerm(op.Body))
		return nil

	case "failed-query":
		tr.SetFailedQuery(scriptTerm(op.Term))
		return nil

	default:
		return fmt.Errorf("unknown op %q", op.Op)
	}
}

func finishPhase(tr *tracer.Tracer, phase string) error {
	switch phase {
	case "condition":
		tr.FinishCondition()
	case "then":
		tr.FinishThen()
	case "else":
		tr.FinishElse()
	case "edge":
		tr.FinishEdge()
	case "parameters":
		tr.FinishParameters()
	case "precondition":
		tr.FinishPrecondition()
	case "postcondition":
		tr.FinishPostcondition()
	default:
		return fmt.Errorf("unknown finish phase %q", phase)
	}
	return nil
}

func buildRecord(op Op) (*record.Record, error) {
	node := nodeOf(op)
	st := stateOf(op.State)
	conds := termsOf(op.PathConds)
	kind := record.Kind(op.Kind)

	switch {
	case kind.IsStep():
		return record.NewStep(kind, node, st, conds), nil
	case kind == record.KindGlobalBranch:
		return record.NewGlobalBranch(node, st, conds), nil
	case kind == record.KindLocalBranch:
		return record.NewLocalBranch(node, st, conds), nil
	case kind == record.KindCondEdge:
		return record.NewCondEdge(node, st, conds), nil
	case kind == record.KindCFGBranch:
		if op.Successors < 1 {
			return nil, fmt.Errorf("cfg-branch needs successors >= 1, got %d", op.Successors)
		}
		return record.NewCFGBranch(node, st, conds, op.Successors), nil
	case kind == record.KindCall:
		return record.NewCall(node, st, conds), nil
	case kind == record.KindComment:
		if op.Term != "" {
			return record.NewTermComment(scriptTerm(op.Term)), nil
		}
		return record.NewComment(op.Text), nil
	default:
		return nil, fmt.Errorf("unknown record kind %q", op.Kind)
	}
}

func nodeOf(op Op) record.Node {
	return scriptNode{
		label:    op.Node,
		emptySeq: op.EmptySeq,
		callExpr: op.CallExpr,
		condExpr: op.CondExpr,
	}
}

func stateOf(s string) record.Snapshot {
	if s == "" {
		return nil
	}
	return scriptState(s)
}

func termsOf(ss []string) []record.Term {
	if len(ss) == 0 {
		return nil
	}
	ts := make([]record.Term, 0, len(ss))
	for _, s := range ss {
		ts = append(ts, scriptTerm(s))
	}
	return ts
}
