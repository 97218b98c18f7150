package regression

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symtrace/internal/config"
	"symtrace/internal/replay"
	"symtrace/internal/session"
)

const absScript = `
version: 1
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
`

// seedCase writes a script and its matching expected file under dir.
func seedCase(t *testing.T, dir string) (scriptPath, expectedPath string) {
	t.Helper()
	scriptPath = filepath.Join(dir, "abs.yaml")
	expectedPath = filepath.Join(dir, "abs.structure.txt")
	require.NoError(t, os.WriteFile(scriptPath, []byte(absScript), 0644))

	script, err := replay.Load(scriptPath)
	require.NoError(t, err)
	sess := session.New(config.DefaultConfig(), nil)
	require.NoError(t, replay.Run(script, sess))
	require.NoError(t, WriteActual(sess.RenderUnits(), expectedPath))
	return scriptPath, expectedPath
}

func TestLoadSuiteResolvesRelativePaths(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "suites")
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: 1
cases:
  - name: abs
    script: scripts/abs.yaml
    expected: /tmp/absolute.txt
`), 0644))

	s, err := LoadSuite(path)
	require.NoError(t, err)
	require.Len(t, s.Cases, 1)
	assert.Equal(t, filepath.Join(dir, "scripts", "abs.yaml"), s.Cases[0].Script)
	assert.Equal(t, "/tmp/absolute.txt", s.Cases[0].Expected)
}

func TestLoadSuiteMissingFile(t *testing.T) {
	_, err := LoadSuite(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestRunSuite(t *testing.T) {
	dir := t.TempDir()
	scriptPath, expectedPath := seedCase(t, dir)

	staleExpected := filepath.Join(dir, "stale.structure.txt")
	require.NoError(t, os.WriteFile(staleExpected, []byte("method\n  produce\n"), 0644))

	suite := &Suite{Cases: []Case{
		{Name: "matches", Script: scriptPath, Expected: expectedPath},
		{Name: "stale expectation", Script: scriptPath, Expected: staleExpected},
		{Name: "missing script", Script: filepath.Join(dir, "ghost.yaml"), Expected: expectedPath},
	}}

	results := NewEngine(nil).RunSuite(suite)
	require.Len(t, results, 3)

	assert.True(t, results[0].Passed())
	assert.GreaterOrEqual(t, results[0].DurationMs, int64(0))

	assert.False(t, results[1].Passed())
	require.NotNil(t, results[1].Result)
	require.NotNil(t, results[1].Result.Mismatch)
	assert.Equal(t, 2, results[1].Result.Mismatch.Line)

	assert.False(t, results[2].Passed())
	require.Error(t, results[2].Err)
}

func TestRunSuiteEmpty(t *testing.T) {
	assert.Nil(t, NewEngine(nil).RunSuite(nil))
	assert.Nil(t, NewEngine(nil).RunSuite(&Suite{}))
}
