// Package regression checks freshly recorded traces against stored
// structure dumps. The structure dump strips every volatile detail from the
// text rendering, so a stored copy stays valid until the verifier's control
// flow genuinely changes.
package regression

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"symtrace/internal/diff"
	"symtrace/internal/record"
	"symtrace/internal/render"
)

// Mismatch pinpoints the first diverging line between the expected and the
// actual structure dump.
type Mismatch struct {
	Line     int // 1-based
	Expected string
	Actual   string
}

// Result is the outcome of checking one recording.
type Result struct {
	Applicable   bool // False when no expected file exists yet
	ExpectedPath string
	ActualPath   string // Dump left next to the expectation on mismatch
	Mismatch     *Mismatch
	Diff         string   // Unified diff of the dumps, set alongside Mismatch
	MissingTimes []string // Records without both timestamps
}

// Passed reports whether the check ran and found nothing wrong.
func (r *Result) Passed() bool {
	return r.Applicable && r.Mismatch == nil && len(r.MissingTimes) == 0
}

// Engine checks recordings against expected structure files.
type Engine struct {
	log *zap.Logger
}

// NewEngine creates an engine. A nil logger disables diagnostics.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{log: logger}
}

// Check compares the structure dump of units against the expected file and
// verifies that every rendered record carries both timestamps. Placeholder
// comments are exempt from the timing check. A mismatch leaves the freshly
// rendered dump in a sibling .actual file for inspection or adoption. A
// missing expected file is not an error; the result comes back inapplicable.
func (e *Engine) Check(units []render.Unit, expectedPath string) (*Result, error) {
	res := &Result{ExpectedPath: expectedPath}

	expected, err := os.ReadFile(expectedPath)
	if err != nil {
		if os.IsNotExist(err) {
			e.log.Warn("no expected structure file, skipping comparison",
				zap.String("path", expectedPath))
			return res, nil
		}
		return nil, fmt.Errorf("read expected structure: %w", err)
	}
	res.Applicable = true

	actual := render.StructureDump(units)
	res.Mismatch = firstMismatch(string(expected), actual)
	if res.Mismatch != nil {
		res.Diff = diff.Unified(string(expected), actual, 2)
		res.ActualPath = actualPath(expectedPath)
		if err := os.WriteFile(res.ActualPath, []byte(actual), 0644); err != nil {
			e.log.Error("failed to write actual structure dump",
				zap.String("path", res.ActualPath), zap.Error(err))
			res.ActualPath = ""
		}
	}
	for _, u := range units {
		render.Visit(u.Root, func(r *record.Record) {
			if r.Placeholder() {
				return
			}
			if r.StartMs == 0 || r.EndMs == 0 {
				res.MissingTimes = append(res.MissingTimes, r.Display())
			}
		})
	}
	return res, nil
}

// firstMismatch walks both dumps line by line and reports the first
// divergence. A line missing on one side compares against the empty string.
func firstMismatch(expected, actual string) *Mismatch {
	expLines := strings.Split(expected, "\n")
	actLines := strings.Split(actual, "\n")
	n := len(expLines)
	if len(actLines) > n {
		n = len(actLines)
	}
	for i := 0; i < n; i++ {
		var e, a string
		if i < len(expLines) {
			e = expLines[i]
		}
		if i < len(actLines) {
			a = actLines[i]
		}
		if e != a {
			return &Mismatch{Line: i + 1, Expected: e, Actual: a}
		}
	}
	return nil
}

// actualPath names the dump file a diverging check leaves next to the
// expectation.
func actualPath(expectedPath string) string {
	return expectedPath + ".actual"
}

// WriteActual stores the structure dump of units at path, creating parent
// directories. Adoption runs use it to record a new expectation.
func WriteActual(units []render.Unit, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create structure dump dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(render.StructureDump(units)), 0644); err != nil {
		return fmt.Errorf("write structure dump: %w", err)
	}
	return nil
}
