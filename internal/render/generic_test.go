package render

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"symtrace/internal/record"
	"symtrace/internal/tracer"
)

// localBranchUnit records a local case split with both branches explored.
func localBranchUnit(t *testing.T) *tracer.Tracer {
	t.Helper()
	tr := tracer.New(record.KindMethod, node("M"), nil, opts())

	branch := record.NewLocalBranch(node("c ? a : b"), nil, nil)
	branchID := tr.Insert(branch)

	condID := tr.Insert(record.NewStep(record.KindEvaluate, node("c"), nil, nil))
	tr.Collapse(node("c"), condID)
	tr.FinishCondition()

	saved := tr.BeginBranch()
	aID := tr.Insert(record.NewStep(record.KindEvaluate, node("a"), nil, nil))
	tr.Collapse(node("a"), aID)
	tr.FinishThen()
	out1 := tr.EndSibling(saved)

	bID := tr.Insert(record.NewStep(record.KindEvaluate, node("b"), nil, nil))
	tr.Collapse(node("b"), bID)
	tr.FinishElse()
	out2 := tr.EndSibling(saved)

	tr.EndBranch(saved, []tracer.Outcome{out1, out2}, 2)
	tr.Collapse(node("c ? a : b"), branchID)
	tr.Close()
	return tr
}

func TestGenericConditionBecomesChild(t *testing.T) {
	tr := localBranchUnit(t)
	g := Generic(tr.Root())

	require.Len(t, g.Children, 1)
	branch := g.Children[0]
	require.Len(t, branch.Children, 1, "condition must nest as a child")
	assert.Equal(t, "evaluate c", branch.Children[0].Label)
	require.Len(t, branch.Successors, 2, "bodies must be successors, not children")
}

func TestGenericBranchBodiesCarryPhaseTimes(t *testing.T) {
	tr := localBranchUnit(t)
	branchRec := tr.Root().Children[0]
	b := branchRec.Branch

	g := Generic(tr.Root())
	branch := g.Children[0]
	thenBody, elseBody := branch.Successors[0], branch.Successors[1]

	assert.True(t, thenBody.Syntactic)
	assert.Equal(t, b.CondEndMs, thenBody.StartMs)
	assert.Equal(t, b.ThenEndMs, thenBody.EndMs)
	assert.Equal(t, b.ThenEndMs, elseBody.StartMs)
	assert.Equal(t, b.ElseEndMs, elseBody.EndMs)
}

func TestGenericLocalBranchSynthesizesJoin(t *testing.T) {
	tr := localBranchUnit(t)
	branchRec := tr.Root().Children[0]

	g := Generic(tr.Root())
	branch := g.Children[0]
	thenBody, elseBody := branch.Successors[0], branch.Successors[1]

	require.Len(t, thenBody.Successors, 1)
	require.Len(t, elseBody.Successors, 1)
	join := thenBody.Successors[0]
	assert.Same(t, join, elseBody.Successors[0], "both bodies must point at one join node")

	assert.True(t, join.Syntactic)
	later := branchRec.Branch.ThenEndMs
	if branchRec.Branch.ElseEndMs > later {
		later = branchRec.Branch.ElseEndMs
	}
	assert.Equal(t, later, join.StartMs)
	assert.Equal(t, branchRec.EndMs, join.EndMs)
}

func TestGenericGlobalBranchHasNoJoin(t *testing.T) {
	tr := branchUnit(t)
	g := Generic(tr.Root())

	branch := g.Children[0]
	require.Len(t, branch.Successors, 2)
	assert.Empty(t, branch.Successors[0].Successors)
	assert.Empty(t, branch.Successors[1].Successors)
}

func TestGenericCFGWrapperEndPulledDown(t *testing.T) {
	tr := tracer.New(record.KindMethod, node("M"), nil, opts())

	cfg := record.NewCFGBranch(node("head"), nil, nil, 2)
	cfgID := tr.Insert(cfg)

	saved := tr.BeginBranch()
	lID := tr.Insert(record.NewStep(record.KindExecute, node("left"), nil, nil))
	tr.Collapse(node("left"), lID)
	tr.FinishEdge()
	out1 := tr.EndSibling(saved)

	rID := tr.Insert(record.NewStep(record.KindExecute, node("right"), nil, nil))
	tr.Collapse(node("right"), rID)
	tr.FinishEdge()
	out2 := tr.EndSibling(saved)

	tr.EndBranch(saved, []tracer.Outcome{out1, out2}, 2)
	tr.Collapse(node("head"), cfgID)
	tr.Close()

	left := cfg.Edges[0][0]
	right := cfg.Edges[1][0]

	g := Generic(tr.Root())
	wrapper := g.Children[0]

	require.True(t, wrapper.Syntactic)
	require.Len(t, wrapper.Successors, 2)
	assert.Equal(t, left.StartMs, wrapper.Successors[0].StartMs)
	assert.Equal(t, left.EndMs, wrapper.Successors[0].EndMs)
	assert.Equal(t, right.StartMs, wrapper.Successors[1].StartMs)

	// The wrapper hands its span to the edge bodies: it ends where the
	// earliest successor starts.
	assert.Equal(t, left.StartMs, wrapper.EndMs)
}

func TestGenericSmtQueryMarking(t *testing.T) {
	tr := tracer.New(record.KindMethod, node("M"), nil, opts())
	id := tr.Insert(record.NewTermComment(term("x > 0")))
	tr.Collapse(nil, id)
	tr.Close()

	g := Generic(tr.Root())
	require.Len(t, g.Children, 1)
	assert.True(t, g.Children[0].SmtQuery)
	assert.False(t, g.SmtQuery)
}

func TestGenericJSONIndexes(t *testing.T) {
	tr := localBranchUnit(t)
	g := Generic(tr.Root())

	data, err := GenericJSON([]*GenericNode{g}, nil)
	require.NoError(t, err)

	var nodes []struct {
		ID         int    `json:"id"`
		Label      string `json:"label"`
		Syntactic  bool   `json:"syntactic"`
		StartMs    int64  `json:"startMs"`
		EndMs      int64  `json:"endMs"`
		Children   []int  `json:"children"`
		Successors []int  `json:"successors"`
	}
	require.NoError(t, json.Unmarshal(data, &nodes))
	require.NotEmpty(t, nodes)
	assert.Equal(t, g.Label, nodes[0].Label, "unit root leads the array")

	// Ids are their positions; every reference resolves; the shared join
	// node appears exactly once.
	joins := 0
	for i, n := range nodes {
		assert.Equal(t, i, n.ID)
		for _, ref := range append(append([]int{}, n.Children...), n.Successors...) {
			assert.GreaterOrEqual(t, ref, 0)
			assert.Less(t, ref, len(nodes))
		}
		if n.Label == "join" {
			joins++
		}
	}
	assert.Equal(t, 1, joins)

	// Both branch bodies reference the same join index.
	var bodyTargets []int
	for _, n := range nodes {
		if n.Label == "Branch 1" || n.Label == "Branch 2" {
			require.Len(t, n.Successors, 1)
			bodyTargets = append(bodyTargets, n.Successors[0])
		}
	}
	require.Len(t, bodyTargets, 2)
	assert.Equal(t, bodyTargets[0], bodyTargets[1])
}

func TestGenericJSONUnresolvableReferenceDegrades(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	orphan := &GenericNode{Label: "ghost"}
	n := &GenericNode{
		Label:      "body := r",
		StartMs:    1,
		EndMs:      2,
		Successors: []*GenericNode{orphan},
	}
	index := map[*GenericNode]int{n: 0}

	entry := genericJSONEntry(0, n, index, zap.New(core))

	// The degraded object keeps nothing but the label.
	data, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.Equal(t, `{"label":"body := r"}`, string(data))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "generic graph node has unresolvable references", logs.All()[0].Message)
}
