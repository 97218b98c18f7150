// Package record defines the trace record model: the closed set of record
// variants emitted while a unit is verified, plus the borrowed handles
// (program nodes, state snapshots, prover terms) that records point into
// without owning.
package record

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind identifies a record variant. Renderers and the branch-merge rule
// dispatch on it; the set is closed.
type Kind string

const (
	// Member roots, exactly one per verified unit.
	KindMethod    Kind = "method"
	KindPredicate Kind = "predicate"
	KindFunction  Kind = "function"

	// Sequential steps.
	KindExecute  Kind = "execute"
	KindEvaluate Kind = "evaluate"
	KindProduce  Kind = "produce"
	KindConsume  Kind = "consume"

	// Branching.
	KindGlobalBranch Kind = "global-branch" // case split the prover forces on the whole unit
	KindLocalBranch  Kind = "local-branch"  // case split local to an expression
	KindCondEdge     Kind = "cond-edge"     // condition with a single successor list
	KindCFGBranch    Kind = "cfg-branch"    // control-flow node with one child list per out-edge

	// Composite and diagnostic.
	KindCall    Kind = "call"    // method call with parameter/pre/post slots
	KindComment Kind = "comment" // display string or algebraic payload, no children
)

// IsMember reports whether k is a member-root kind.
func (k Kind) IsMember() bool {
	return k == KindMethod || k == KindPredicate || k == KindFunction
}

// IsStep reports whether k is a plain sequential step kind.
func (k Kind) IsStep() bool {
	return k == KindExecute || k == KindEvaluate || k == KindProduce || k == KindConsume
}

// ============================================================================
// Borrowed handles
// ============================================================================

// Node is a borrowed handle to a program AST node. The executor owns the
// node; records only hold and format it.
type Node interface {
	String() string
}

// Snapshot is a borrowed handle to a symbolic state. Format returns the
// heap/store display embedded by state-carrying renderers.
type Snapshot interface {
	Format() string
}

// Term is a borrowed handle to a prover term.
type Term interface {
	String() string
}

// Chunk is a borrowed handle to a heap chunk.
type Chunk interface {
	String() string
}

// EmptySeq is implemented by statement nodes that can report wrapping a
// structurally empty sequence. Such steps carry no information and are
// filtered at insert time.
type EmptySeq interface {
	Node
	EmptySeq() bool
}

// CallNode marks expression nodes that are method calls. Their evaluation is
// recorded through the composite call record, never as a plain step.
type CallNode interface {
	Node
	IsCall() bool
}

// CondNode marks conditional expressions. Their evaluation is recorded
// through a branch record, never as a plain step.
type CondNode interface {
	Node
	IsCond() bool
}

// Loggable applies the recording filter shared by the tracer and the
// renderers: statement steps around a structurally empty sequence carry no
// information, and plain steps on nodes owned by a more specific variant
// (call expressions, conditionals) would duplicate that variant's record.
func Loggable(kind Kind, node Node) bool {
	if kind == KindExecute {
		if seq, ok := node.(EmptySeq); ok && seq.EmptySeq() {
			return false
		}
	}
	if kind.IsStep() {
		if c, ok := node.(CallNode); ok && c.IsCall() {
			return false
		}
		if c, ok := node.(CondNode); ok && c.IsCond() {
			return false
		}
	}
	return true
}

// ============================================================================
// Record
// ============================================================================

// Record is one node of a unit's execution trace. Source and State are
// borrowed; everything else is owned by the trace.
type Record struct {
	Kind Kind   // Variant tag
	UID  string // Identity token for the graph renderers

	Source    Node     // Program node being worked on (may be nil)
	State     Snapshot // Symbolic state when the record was created (may be nil)
	PathConds []Term   // Path conditions when the record was created (may be nil)

	Children []*Record // Ordered sub-records (flat-child variants)
	StartMs  int64     // Wall-clock start in ms, zero until stamped
	EndMs    int64     // Wall-clock end in ms, zero until stamped

	FailedQuery Term // Last failed prover query; member roots only

	Branch *BranchData // global-branch, local-branch, cond-edge
	Edges  [][]*Record // cfg-branch: one child list per successor edge
	Call   *CallData   // call

	// Comment payloads; at most one is set.
	Text   string
	Term   Term
	Terms  []Term
	Chunks []Chunk

	working     []*Record // Buffered children awaiting the next Finish* call
	edgeCursor  int       // Next cfg edge slot to be finished
	placeholder bool      // Marks the synthetic "Unreachable" leaves
}

// BranchData carries the named slots of a two-branch or conditional-edge
// record. For cond-edge only Condition and Then are used.
type BranchData struct {
	Condition []*Record // Condition evaluation records
	Then      []*Record // First branch body
	Else      []*Record // Second branch body

	ThenExplored bool // A finish call moved real children into Then
	ElseExplored bool

	CondEndMs int64 // Phase-end stamps, zero until the phase finishes
	ThenEndMs int64
	ElseEndMs int64
}

// CallData carries the named slots of a composite method-call record.
type CallData struct {
	Parameters    []*Record
	Precondition  []*Record
	Postcondition []*Record

	ParamsEndMs int64
	PreEndMs    int64
	PostEndMs   int64
}

func newRecord(kind Kind, node Node, state Snapshot, pathConds []Term) *Record {
	return &Record{
		Kind:      kind,
		UID:       uuid.New().String(),
		Source:    node,
		State:     state,
		PathConds: pathConds,
	}
}

// NewMember creates the root record of a unit trace. kind must be one of the
// member kinds.
func NewMember(kind Kind, node Node, state Snapshot) *Record {
	if !kind.IsMember() {
		panic(fmt.Sprintf("record: %q is not a member kind", kind))
	}
	return newRecord(kind, node, state, nil)
}

// NewStep creates a plain sequential record. kind must be one of the step
// kinds.
func NewStep(kind Kind, node Node, state Snapshot, pathConds []Term) *Record {
	if !kind.IsStep() {
		panic(fmt.Sprintf("record: %q is not a step kind", kind))
	}
	return newRecord(kind, node, state, pathConds)
}

// NewGlobalBranch creates a two-branch record for a prover-forced case split.
// Both branch slots start with an unreachable placeholder so an unexplored
// branch renders explicitly rather than as an empty list.
func NewGlobalBranch(node Node, state Snapshot, pathConds []Term) *Record {
	r := newRecord(KindGlobalBranch, node, state, pathConds)
	r.Branch = &BranchData{Then: unreachable(), Else: unreachable()}
	return r
}

// NewLocalBranch creates a two-branch record for an expression-local case
// split.
func NewLocalBranch(node Node, state Snapshot, pathConds []Term) *Record {
	r := newRecord(KindLocalBranch, node, state, pathConds)
	r.Branch = &BranchData{Then: unreachable(), Else: unreachable()}
	return r
}

// NewCondEdge creates a conditional-edge record: one condition slot and a
// single successor list.
func NewCondEdge(node Node, state Snapshot, pathConds []Term) *Record {
	r := newRecord(KindCondEdge, node, state, pathConds)
	r.Branch = &BranchData{Then: unreachable()}
	return r
}

// NewCFGBranch creates a control-flow branch record with successors edge
// slots, each starting at its unreachable placeholder.
func NewCFGBranch(node Node, state Snapshot, pathConds []Term, successors int) *Record {
	if successors < 1 {
		panic(fmt.Sprintf("record: cfg-branch needs at least one successor, got %d", successors))
	}
	r := newRecord(KindCFGBranch, node, state, pathConds)
	r.Edges = make([][]*Record, successors)
	for i := range r.Edges {
		r.Edges[i] = unreachable()
	}
	return r
}

// NewCall creates a composite method-call record.
func NewCall(node Node, state Snapshot, pathConds []Term) *Record {
	r := newRecord(KindCall, node, state, pathConds)
	r.Call = &CallData{}
	return r
}

// NewComment creates a diagnostic record carrying a display string.
func NewComment(text string) *Record {
	r := newRecord(KindComment, nil, nil, nil)
	r.Text = text
	return r
}

// NewTermComment creates a diagnostic record carrying a single term.
func NewTermComment(t Term) *Record {
	r := newRecord(KindComment, nil, nil, nil)
	r.Term = t
	return r
}

// NewTermsComment creates a diagnostic record carrying a set of terms.
func NewTermsComment(ts []Term) *Record {
	r := newRecord(KindComment, nil, nil, nil)
	r.Terms = ts
	return r
}

// NewChunksComment creates a diagnostic record carrying a heap chunk list.
func NewChunksComment(cs []Chunk) *Record {
	r := newRecord(KindComment, nil, nil, nil)
	r.Chunks = cs
	return r
}

func unreachable() []*Record {
	leaf := NewComment("Unreachable")
	leaf.placeholder = true
	return []*Record{leaf}
}

// Placeholder reports whether r is a synthetic unreachable leaf. Placeholders
// are excluded from the timestamp completeness check.
func (r *Record) Placeholder() bool {
	return r.placeholder
}

// IsMember reports whether r is a unit root.
func (r *Record) IsMember() bool {
	return r.Kind.IsMember()
}

// Slotted reports whether r buffers inserted children for named slots
// instead of appending to a flat child list.
func (r *Record) Slotted() bool {
	switch r.Kind {
	case KindGlobalBranch, KindLocalBranch, KindCondEdge, KindCFGBranch, KindCall:
		return true
	}
	return false
}

// Attach appends child to r: slotted variants buffer it for the next
// Finish* call, everything else appends to the flat child list.
func (r *Record) Attach(child *Record) {
	if r.Slotted() {
		r.working = append(r.working, child)
		return
	}
	r.Children = append(r.Children, child)
}

// Working returns the children buffered since the last finish call.
func (r *Record) Working() []*Record {
	return r.working
}

// SetStartMs stamps the start time. Later calls are no-ops.
func (r *Record) SetStartMs(ms int64) {
	if r.StartMs == 0 {
		r.StartMs = ms
	}
}

// SetEndMs stamps the end time. Later calls are no-ops.
func (r *Record) SetEndMs(ms int64) {
	if r.EndMs == 0 {
		r.EndMs = ms
	}
}

// ============================================================================
// Finish phases
// ============================================================================

// takeWorking empties the buffer and returns it.
func (r *Record) takeWorking() []*Record {
	w := r.working
	r.working = nil
	return w
}

func (r *Record) branchData(phase string) *BranchData {
	if r.Branch == nil {
		panic(fmt.Sprintf("record: finish %s on %q record without branch slots", phase, r.Kind))
	}
	return r.Branch
}

// FinishCondition moves the working buffer into the condition slot and
// stamps the condition phase end. An empty buffer leaves the slot untouched.
func (r *Record) FinishCondition(nowMs int64) {
	b := r.branchData("condition")
	if w := r.takeWorking(); len(w) > 0 {
		b.Condition = w
	}
	if b.CondEndMs == 0 {
		b.CondEndMs = nowMs
	}
}

// FinishThen moves the working buffer into the first branch slot. An empty
// buffer keeps the unreachable placeholder.
func (r *Record) FinishThen(nowMs int64) {
	b := r.branchData("then")
	if w := r.takeWorking(); len(w) > 0 {
		b.Then = w
		b.ThenExplored = true
	}
	if b.ThenEndMs == 0 {
		b.ThenEndMs = nowMs
	}
}

// FinishElse moves the working buffer into the second branch slot. An empty
// buffer keeps the unreachable placeholder.
func (r *Record) FinishElse(nowMs int64) {
	if r.Kind == KindCondEdge {
		panic("record: cond-edge has no else slot")
	}
	b := r.branchData("else")
	if w := r.takeWorking(); len(w) > 0 {
		b.Else = w
		b.ElseExplored = true
	}
	if b.ElseEndMs == 0 {
		b.ElseEndMs = nowMs
	}
}

// FinishEdge moves the working buffer into the next cfg edge slot. An empty
// buffer keeps the edge's unreachable placeholder.
func (r *Record) FinishEdge(nowMs int64) {
	if r.Kind != KindCFGBranch {
		panic(fmt.Sprintf("record: finish edge on %q record", r.Kind))
	}
	if r.edgeCursor >= len(r.Edges) {
		panic(fmt.Sprintf("record: cfg-branch has %d edges, finish edge called again", len(r.Edges)))
	}
	if w := r.takeWorking(); len(w) > 0 {
		r.Edges[r.edgeCursor] = w
	}
	r.edgeCursor++
}

func (r *Record) callData(phase string) *CallData {
	if r.Call == nil {
		panic(fmt.Sprintf("record: finish %s on %q record without call slots", phase, r.Kind))
	}
	return r.Call
}

// FinishParameters moves the working buffer into the parameters slot.
func (r *Record) FinishParameters(nowMs int64) {
	c := r.callData("parameters")
	if w := r.takeWorking(); len(w) > 0 {
		c.Parameters = w
	}
	if c.ParamsEndMs == 0 {
		c.ParamsEndMs = nowMs
	}
}

// FinishPrecondition moves the working buffer into the precondition slot.
func (r *Record) FinishPrecondition(nowMs int64) {
	c := r.callData("precondition")
	if w := r.takeWorking(); len(w) > 0 {
		c.Precondition = w
	}
	if c.PreEndMs == 0 {
		c.PreEndMs = nowMs
	}
}

// FinishPostcondition moves the working buffer into the postcondition slot.
func (r *Record) FinishPostcondition(nowMs int64) {
	c := r.callData("postcondition")
	if w := r.takeWorking(); len(w) > 0 {
		c.Postcondition = w
	}
	if c.PostEndMs == 0 {
		c.PostEndMs = nowMs
	}
}

// FinishAuxiliary moves the remaining working buffer into the flat child
// list. A call record accrues ordinary children between its last named slot
// and its close; the builder flushes them when the call collapses.
func (r *Record) FinishAuxiliary() {
	r.Children = append(r.Children, r.takeWorking()...)
}

// ============================================================================
// Display
// ============================================================================

// Display returns the one-line form "<tag> <content>". A missing program
// node renders as the literal "null".
func (r *Record) Display() string {
	return fmt.Sprintf("%s %s", r.Kind, r.content())
}

func (r *Record) content() string {
	if r.Kind == KindComment {
		switch {
		case r.Term != nil:
			return r.Term.String()
		case r.Terms != nil:
			return joinTerms(r.Terms)
		case r.Chunks != nil:
			return joinChunks(r.Chunks)
		default:
			return r.Text
		}
	}
	if r.Source == nil {
		return "null"
	}
	return r.Source.String()
}

func joinTerms(ts []Term) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

func joinChunks(cs []Chunk) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}

// Export is the renderer-facing view of a record: the per-record data the
// machine-readable outputs embed, detached from the live tree.
type Export struct {
	Kind     string `json:"kind"`
	Label    string `json:"label"`
	Prestate string `json:"prestate,omitempty"`
	StartMs  int64  `json:"startMs"`
	EndMs    int64  `json:"endMs"`
}

// Export returns the detached renderer view of r.
func (r *Record) Export() Export {
	e := Export{
		Kind:    string(r.Kind),
		Label:   r.Display(),
		StartMs: r.StartMs,
		EndMs:   r.EndMs,
	}
	if r.State != nil {
		e.Prestate = r.State.Format()
	}
	return e
}
