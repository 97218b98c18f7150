// Package tracer builds one execution trace per verified unit. The executor
// drives it with insert/collapse pairs around each step, fork/merge calls
// around branch exploration, and finish calls that move buffered children
// into a slotted record's named slots.
package tracer

import (
	"fmt"
	"time"

	"symtrace/internal/record"
)

// Sentinel is returned by Insert for records the filter rejects. Collapse
// treats it as a no-op id.
const Sentinel = -1

// QuorumPolicy controls how a sibling that aborted early participates in the
// ignored-set merge at a branch point.
type QuorumPolicy string

const (
	// QuorumCountAborted treats an aborted sibling as having ignored every
	// candidate id.
	QuorumCountAborted QuorumPolicy = "count-aborted"

	// QuorumExcludeAborted drops aborted siblings from the quorum.
	QuorumExcludeAborted QuorumPolicy = "exclude-aborted"
)

// Valid reports whether p names a known policy.
func (p QuorumPolicy) Valid() bool {
	return p == QuorumCountAborted || p == QuorumExcludeAborted
}

// Macro is an auxiliary term definition accumulated during recording. The
// tracer never interprets macros; they are forwarded to the outputs.
type Macro struct {
	Name record.Term
	Body record.Term
}

// Options configure a unit tracer.
type Options struct {
	Timing bool         // Stamp wall-clock times on records
	Clock  func() int64 // Millisecond clock, defaults to time.Now
	Policy QuorumPolicy // Aborted-sibling merge policy, defaults to exclude
}

// Tracer records the execution trace of a single verified unit. It is
// driven from one logical thread; no operation locks.
type Tracer struct {
	root    *record.Record
	stack   []*record.Record        // Open records, member root at the bottom
	pending map[int]*record.Record  // Ids handed out by Insert, not yet collapsed
	ignored map[int]struct{}        // Collapse ids that arrived while not pending
	nextID  int
	macros  []Macro
	enabled bool
	timing  bool
	clock   func() int64
	policy  QuorumPolicy
}

// New creates the tracer for one unit and its member root record.
func New(kind record.Kind, node record.Node, state record.Snapshot, opts Options) *Tracer {
	tr := &Tracer{
		root:    record.NewMember(kind, node, state),
		pending: make(map[int]*record.Record),
		ignored: make(map[int]struct{}),
		enabled: true,
		timing:  opts.Timing,
		clock:   opts.Clock,
		policy:  opts.Policy,
	}
	tr.stack = []*record.Record{tr.root}
	if tr.clock == nil {
		tr.clock = func() int64 { return time.Now().UnixMilli() }
	}
	if tr.policy == "" {
		tr.policy = QuorumExcludeAborted
	}
	if tr.timing {
		tr.root.SetStartMs(tr.clock())
	}
	return tr
}

// Disabled returns a tracer whose operations are all no-ops, handed out when
// recording is switched off so call sites stay unconditional.
func Disabled() *Tracer {
	return &Tracer{}
}

// Enabled reports whether this tracer records anything.
func (tr *Tracer) Enabled() bool {
	return tr.enabled
}

// Root returns the member root, nil on a disabled tracer.
func (tr *Tracer) Root() *record.Record {
	return tr.root
}

// Macros returns the accumulated auxiliary definitions.
func (tr *Tracer) Macros() []Macro {
	return tr.macros
}

// OpenDepth returns the number of currently open records, the member root
// included.
func (tr *Tracer) OpenDepth() int {
	return len(tr.stack)
}

func (tr *Tracer) nowMs() int64 {
	if tr.timing {
		return tr.clock()
	}
	return 0
}

func (tr *Tracer) top() *record.Record {
	assertf(len(tr.stack) > 0, "open stack is empty")
	return tr.stack[len(tr.stack)-1]
}

// ============================================================================
// Insert / collapse
// ============================================================================

// Insert attaches rec under the current stack top, pushes it and returns the
// id its collapse must present. Filtered records are not attached and get
// the sentinel id.
func (tr *Tracer) Insert(rec *record.Record) int {
	if !tr.enabled {
		return Sentinel
	}
	if !record.Loggable(rec.Kind, rec.Source) {
		return Sentinel
	}

	tr.top().Attach(rec)
	tr.stack = append(tr.stack, rec)
	if tr.timing {
		rec.SetStartMs(tr.clock())
	}

	tr.nextID++
	tr.pending[tr.nextID] = rec
	return tr.nextID
}

// Collapse closes the record inserted under id. The node may differ from the
// inserted one when the caller records the close of a related step; the
// loggability filter is re-applied to it. An id with no pending entry is
// remembered in the ignored set: during branch exploration closes routinely
// arrive for records inserted before the fork, and only the merge decides
// whether they count.
func (tr *Tracer) Collapse(node record.Node, id int) {
	if !tr.enabled || id == Sentinel {
		return
	}

	rec, ok := tr.pending[id]
	if !ok {
		tr.ignored[id] = struct{}{}
		return
	}
	delete(tr.pending, id)

	if !record.Loggable(rec.Kind, node) {
		return
	}

	top := tr.top()
	if tr.timing {
		top.SetEndMs(tr.clock())
	}
	assertf(top == rec, "collapse mismatch: id %d closes %q but stack top is %q",
		id, rec.Display(), top.Display())
	tr.stack = tr.stack[:len(tr.stack)-1]
	if rec.Kind == record.KindCall {
		rec.FinishAuxiliary()
	}

	// A close that arrived early for the record now on top has been waiting
	// in the ignored set; let it run.
	newTop := tr.top()
	for pid, prec := range tr.pending {
		if prec != newTop {
			continue
		}
		if _, deferred := tr.ignored[pid]; deferred {
			tr.Collapse(prec.Source, pid)
		}
		break
	}
}

// ============================================================================
// Branch protocol
// ============================================================================

// Saved is the pre-fork bookkeeping captured by BeginBranch and consumed by
// EndSibling and EndBranch.
type Saved struct {
	pending map[int]*record.Record
	stack   []*record.Record
	ignored map[int]struct{}
}

// Outcome is one sibling's bookkeeping at the end of its exploration.
type Outcome struct {
	Aborted bool // Set by the caller when the sibling stopped early
	ignored map[int]struct{}
}

// BeginBranch captures the pre-fork bookkeeping and gives the first sibling
// fresh pending and ignored sets. The open stack is kept: the first sibling
// continues from the fork point.
func (tr *Tracer) BeginBranch() *Saved {
	if !tr.enabled {
		return &Saved{}
	}
	s := &Saved{
		pending: clonePending(tr.pending),
		stack:   cloneStack(tr.stack),
		ignored: cloneSet(tr.ignored),
	}
	tr.pending = make(map[int]*record.Record)
	tr.ignored = make(map[int]struct{})
	return s
}

// EndSibling captures the finished sibling's outcome and rewinds the open
// stack to the fork point for the next sibling.
func (tr *Tracer) EndSibling(saved *Saved) Outcome {
	if !tr.enabled {
		return Outcome{}
	}
	out := Outcome{ignored: tr.ignored}
	tr.pending = make(map[int]*record.Record)
	tr.ignored = make(map[int]struct{})
	tr.stack = cloneStack(saved.stack)
	return out
}

// EndBranch restores the pre-fork bookkeeping and merges the siblings'
// ignored sets: an id stays ignored only when the whole quorum ignored it,
// unioned with the pre-fork ignored set unconditionally.
func (tr *Tracer) EndBranch(saved *Saved, outcomes []Outcome, branchCount int) {
	if !tr.enabled {
		return
	}
	assertf(len(outcomes) == branchCount, "branch merge: %d outcomes for %d branches",
		len(outcomes), branchCount)

	tr.pending = saved.pending
	tr.stack = cloneStack(saved.stack)

	merged := saved.ignored
	if merged == nil {
		merged = make(map[int]struct{})
	}
	for id := range mergeIgnored(outcomes, tr.policy) {
		merged[id] = struct{}{}
	}
	tr.ignored = merged
}

// mergeIgnored intersects the siblings' ignored sets. Aborted siblings agree
// with every candidate under the count policy and drop out of the quorum
// under the exclude policy; the policies only diverge when every sibling
// aborted.
func mergeIgnored(outcomes []Outcome, policy QuorumPolicy) map[int]struct{} {
	merged := make(map[int]struct{})

	var live []Outcome
	for _, o := range outcomes {
		if !o.Aborted {
			live = append(live, o)
		}
	}

	if len(live) == 0 {
		if policy == QuorumCountAborted {
			for _, o := range outcomes {
				for id := range o.ignored {
					merged[id] = struct{}{}
				}
			}
		}
		return merged
	}

	for id := range live[0].ignored {
		inAll := true
		for _, o := range live[1:] {
			if _, ok := o.ignored[id]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			merged[id] = struct{}{}
		}
	}
	return merged
}

// ============================================================================
// Finish phases and unit lifecycle
// ============================================================================

// FinishCondition moves the buffered children of the stack top into its
// condition slot.
func (tr *Tracer) FinishCondition() {
	if !tr.enabled {
		return
	}
	tr.top().FinishCondition(tr.nowMs())
}

// FinishThen moves the buffered children of the stack top into its first
// branch slot.
func (tr *Tracer) FinishThen() {
	if !tr.enabled {
		return
	}
	tr.top().FinishThen(tr.nowMs())
}

// FinishElse moves the buffered children of the stack top into its second
// branch slot.
func (tr *Tracer) FinishElse() {
	if !tr.enabled {
		return
	}
	tr.top().FinishElse(tr.nowMs())
}

// FinishEdge moves the buffered children of the stack top into its next
// control-flow edge slot.
func (tr *Tracer) FinishEdge() {
	if !tr.enabled {
		return
	}
	tr.top().FinishEdge(tr.nowMs())
}

// FinishParameters moves the buffered children of the stack top into its
// parameters slot.
func (tr *Tracer) FinishParameters() {
	if !tr.enabled {
		return
	}
	tr.top().FinishParameters(tr.nowMs())
}

// FinishPrecondition moves the buffered children of the stack top into its
// precondition slot.
func (tr *Tracer) FinishPrecondition() {
	if !tr.enabled {
		return
	}
	tr.top().FinishPrecondition(tr.nowMs())
}

// FinishPostcondition moves the buffered children of the stack top into its
// postcondition slot.
func (tr *Tracer) FinishPostcondition() {
	if !tr.enabled {
		return
	}
	tr.top().FinishPostcondition(tr.nowMs())
}

// AddMacro registers an auxiliary term definition for the outputs.
func (tr *Tracer) AddMacro(name, body record.Term) {
	if !tr.enabled {
		return
	}
	tr.macros = append(tr.macros, Macro{Name: name, Body: body})
}

// SetFailedQuery records the last failed prover query on the member root.
func (tr *Tracer) SetFailedQuery(q record.Term) {
	if !tr.enabled {
		return
	}
	tr.root.FailedQuery = q
}

// Close stamps the member root's end time once the unit finishes. Records
// left open deeper in the stack keep their zero end times; the completeness
// check reports them.
func (tr *Tracer) Close() {
	if !tr.enabled {
		return
	}
	if tr.timing {
		tr.root.SetEndMs(tr.clock())
	}
}

// ============================================================================
// Helpers
// ============================================================================

func clonePending(m map[int]*record.Record) map[int]*record.Record {
	c := make(map[int]*record.Record, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func cloneSet(m map[int]struct{}) map[int]struct{} {
	c := make(map[int]struct{}, len(m))
	for k := range m {
		c[k] = struct{}{}
	}
	return c
}

func cloneStack(s []*record.Record) []*record.Record {
	return append([]*record.Record(nil), s...)
}

func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("tracer: "+format, args...))
	}
}
