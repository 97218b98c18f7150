package regression

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"symtrace/internal/config"
	"symtrace/internal/replay"
	"symtrace/internal/session"
)

// Suite is a YAML-defined list of regression cases, each pairing a replay
// script with its expected structure dump.
type Suite struct {
	Version int    `yaml:"version"`
	Cases   []Case `yaml:"cases"`
}

// Case is a single regression case. Script and expected paths are resolved
// against the suite file's directory when relative.
type Case struct {
	Name     string `yaml:"name"`
	Script   string `yaml:"script"`
	Expected string `yaml:"expected"`
}

// CaseResult captures the outcome of one case.
type CaseResult struct {
	Name       string
	Result     *Result
	Err        error
	DurationMs int64
}

// Passed reports whether the case replayed cleanly and its check passed.
func (c *CaseResult) Passed() bool {
	return c.Err == nil && c.Result != nil && c.Result.Passed()
}

// LoadSuite reads a YAML suite file from disk and resolves its case paths.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse suite YAML: %w", err)
	}
	dir := filepath.Dir(path)
	for i := range s.Cases {
		s.Cases[i].Script = resolve(dir, s.Cases[i].Script)
		s.Cases[i].Expected = resolve(dir, s.Cases[i].Expected)
	}
	return &s, nil
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// RunSuite replays every case against a fresh session and checks it. Case
// failures land in the results, never in an error; callers decide how to
// report them.
func (e *Engine) RunSuite(suite *Suite) []CaseResult {
	if suite == nil || len(suite.Cases) == 0 {
		return nil
	}

	results := make([]CaseResult, 0, len(suite.Cases))
	for _, c := range suite.Cases {
		start := time.Now()
		res := e.runCase(c)
		res.DurationMs = time.Since(start).Milliseconds()
		results = append(results, res)
	}
	return results
}

func (e *Engine) runCase(c Case) CaseResult {
	out := CaseResult{Name: c.Name}

	script, err := replay.Load(c.Script)
	if err != nil {
		out.Err = err
		return out
	}

	sess := session.New(config.DefaultConfig(), e.log)
	if err := replay.Run(script, sess); err != nil {
		out.Err = fmt.Errorf("replay: %w", err)
		return out
	}

	res, err := e.Check(sess.RenderUnits(), c.Expected)
	if err != nil {
		out.Err = err
		return out
	}
	out.Result = res
	e.log.Debug("regression case checked",
		zap.String("case", c.Name), zap.Bool("passed", res.Passed()))
	return out
}

// DefaultSuitePath returns the canonical suite path for a workspace.
func DefaultSuitePath(workspace string) string {
	return filepath.Join(workspace, "traces", "suite.yaml")
}
