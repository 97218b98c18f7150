package replay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"symtrace/internal/config"
	"symtrace/internal/render"
	"symtrace/internal/session"
)

// newSession returns a fresh session with timing off so structure dumps are
// byte-stable across runs.
func newSession() *session.Session {
	cfg := config.DefaultConfig()
	cfg.Timing = false
	return session.New(cfg, nil)
}

func parseScript(t *testing.T, text string) *Script {
	t.Helper()
	var s Script
	require.NoError(t, yaml.Unmarshal([]byte(text), &s))
	return &s
}

func structureOf(t *testing.T, text string) string {
	t.Helper()
	sess := newSession()
	require.NoError(t, Run(parseScript(t, text), sess))
	return render.StructureDump(sess.RenderUnits())
}

func TestLoadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: 1
units:
  - kind: method
    name: abs
    state: "store: x -> ?x"
    ops:
      - op: insert
        kind: execute
        node: "r := x"
        ref: r1
      - op: collapse
        node: "r := x"
        ref: r1
`), 0644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Version)
	require.Len(t, s.Units, 1)
	assert.Equal(t, "method", s.Units[0].Kind)
	assert.Equal(t, "abs", s.Units[0].Name)
	require.Len(t, s.Units[0].Ops, 2)
	assert.Equal(t, "insert", s.Units[0].Ops[0].Op)
	assert.Equal(t, "r1", s.Units[0].Ops[1].Ref)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadMalformedScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("units: {not: [a, list"), 0644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestRunSequentialScript(t *testing.T) {
	got := structureOf(t, `
units:
  - kind: method
    name: m
    ops:
      - {op: insert, kind: execute, node: "x := 1", ref: s1}
      - {op: insert, kind: evaluate, node: "1", ref: e1}
      - {op: collapse, node: "1", ref: e1}
      - {op: collapse, node: "x := 1", ref: s1}
`)
	want := "method\n" +
		"  execute\n" +
		"    evaluate\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("structure mismatch (-want +got):\n%s", diff)
	}
}

func TestRunBranchScript(t *testing.T) {
	got := structureOf(t, `
units:
  - kind: method
    name: abs
    ops:
      - {op: insert, kind: global-branch, node: "if x < 0", ref: b}
      - {op: insert, kind: evaluate, node: "x < 0", ref: c}
      - {op: collapse, node: "x < 0", ref: c}
      - {op: finish, phase: condition}
      - {op: begin-branch}
      - {op: insert, kind: execute, node: "r := -x", ref: t1}
      - {op: collapse, node: "r := -x", ref: t1}
      - {op: finish, phase: then}
      - {op: end-sibling}
      - {op: insert, kind: execute, node: "r := x", ref: e1}
      - {op: collapse, node: "r := x", ref: e1}
      - {op: finish, phase: else}
      - {op: end-sibling}
      - {op: end-branch, branches: 2}
      - {op: collapse, node: "if x < 0", ref: b}
`)
	want := "method\n" +
		"  global-branch\n" +
		"    evaluate\n" +
		"    Branch 1:\n" +
		"      execute\n" +
		"    Branch 2:\n" +
		"      execute\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("structure mismatch (-want +got):\n%s", diff)
	}
}

func TestRunCFGScript(t *testing.T) {
	got := structureOf(t, `
units:
  - kind: function
    name: pick
    ops:
      - {op: insert, kind: cfg-branch, node: "goto L1, L2", successors: 2, ref: g}
      - {op: begin-branch}
      - {op: insert, kind: execute, node: "L1: y := 1", ref: a}
      - {op: collapse, node: "L1: y := 1", ref: a}
      - {op: finish, phase: edge}
      - {op: end-sibling}
      - {op: insert, kind: execute, node: "L2: y := 2", ref: b}
      - {op: collapse, node: "L2: y := 2", ref: b}
      - {op: finish, phase: edge}
      - {op: end-sibling}
      - {op: end-branch}
      - {op: collapse, node: "goto L1, L2", ref: g}
`)
	want := "function\n" +
		"  cfg-branch\n" +
		"    Branch 1:\n" +
		"      execute\n" +
		"    Branch 2:\n" +
		"      execute\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("structure mismatch (-want +got):\n%s", diff)
	}
}

func TestRunFilteredInsert(t *testing.T) {
	// The empty block is filtered at insert; collapsing its ref is a no-op.
	got := structureOf(t, `
units:
  - kind: method
    name: m
    ops:
      - {op: insert, kind: execute, node: "skip", empty_seq: true, ref: s}
      - {op: collapse, node: "skip", empty_seq: true, ref: s}
`)
	assert.Equal(t, "method\n", got)
}

func TestRunMacroAndFailedQuery(t *testing.T) {
	sess := newSession()
	err := Run(parseScript(t, `
units:
  - kind: predicate
    name: valid
    ops:
      - {op: macro, name: len0, body: "|xs| == 0"}
      - {op: failed-query, term: "xs != null"}
`), sess)
	require.NoError(t, err)

	units := sess.Units()
	require.Len(t, units, 1)
	macros := units[0].Macros()
	require.Len(t, macros, 1)
	assert.Equal(t, "len0", macros[0].Name.String())
	assert.Equal(t, "|xs| == 0", macros[0].Body.String())
	require.NotNil(t, units[0].Root().FailedQuery)
	assert.Equal(t, "xs != null", units[0].Root().FailedQuery.String())
}

func TestRunRejectsBadScripts(t *testing.T) {
	cases := []struct {
		name    string
		script  string
		wantErr string
	}{
		{
			name: "unknown op",
			script: `
units:
  - kind: method
    name: m
    ops:
      - {op: explode}
`,
			wantErr: "unknown op",
		},
		{
			name: "unknown ref",
			script: `
units:
  - kind: method
    name: m
    ops:
      - {op: collapse, ref: ghost}
`,
			wantErr: "unknown ref",
		},
		{
			name: "unclosed fork",
			script: `
units:
  - kind: method
    name: m
    ops:
      - {op: insert, kind: global-branch, node: "if b", ref: b}
      - {op: begin-branch}
`,
			wantErr: "left open",
		},
		{
			name: "not a member kind",
			script: `
units:
  - kind: execute
    name: m
    ops: []
`,
			wantErr: "not a member kind",
		},
		{
			name: "cfg without successors",
			script: `
units:
  - kind: method
    name: m
    ops:
      - {op: insert, kind: cfg-branch, node: "goto"}
`,
			wantErr: "successors",
		},
		{
			name: "unknown finish phase",
			script: `
units:
  - kind: method
    name: m
    ops:
      - {op: finish, phase: epilogue}
`,
			wantErr: "unknown finish phase",
		},
		{
			name: "unknown record kind",
			script: `
units:
  - kind: method
    name: m
    ops:
      - {op: insert, kind: mystery, node: "?"}
`,
			wantErr: "unknown record kind",
		},
		{
			name: "end-sibling without fork",
			script: `
units:
  - kind: method
    name: m
    ops:
      - {op: end-sibling}
`,
			wantErr: "without begin-branch",
		},
		{
			name: "end-branch without fork",
			script: `
units:
  - kind: method
    name: m
    ops:
      - {op: end-branch}
`,
			wantErr: "without begin-branch",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Run(parseScript(t, tc.script), newSession())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
