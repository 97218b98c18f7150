// Package diff renders unified line diffs of structure dumps. It wraps the
// sergi/go-diff engine with a line-level reduction so hunks always land on
// line boundaries.
package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// lineOp is one diffed line with its unified-diff prefix.
type lineOp struct {
	kind byte // ' ', '-' or '+'
	text string
}

// Unified compares two texts line by line and returns a unified diff with
// contextLines of context around each change. Equal inputs yield "".
func Unified(expected, actual string, contextLines int) string {
	if expected == actual {
		return ""
	}
	if contextLines < 0 {
		contextLines = 0
	}

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0

	// The char encoding makes DiffMain operate on whole lines, so the
	// cleanup pass cannot split a line.
	a, b, lineArray := dmp.DiffLinesToChars(expected, actual)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	return formatHunks(lineOps(diffs), contextLines)
}

func lineOps(diffs []diffmatchpatch.Diff) []lineOp {
	var ops []lineOp
	for _, d := range diffs {
		var kind byte
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			kind = ' '
		case diffmatchpatch.DiffDelete:
			kind = '-'
		case diffmatchpatch.DiffInsert:
			kind = '+'
		}
		lines := strings.Split(d.Text, "\n")
		if len(lines) > 0 && lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}
		for _, l := range lines {
			ops = append(ops, lineOp{kind: kind, text: l})
		}
	}
	return ops
}

func formatHunks(ops []lineOp, contextLines int) string {
	keep := make([]bool, len(ops))
	for i, op := range ops {
		if op.kind == ' ' {
			continue
		}
		lo := i - contextLines
		if lo < 0 {
			lo = 0
		}
		hi := i + contextLines
		if hi > len(ops)-1 {
			hi = len(ops) - 1
		}
		for j := lo; j <= hi; j++ {
			keep[j] = true
		}
	}

	var sb strings.Builder
	oldLine, newLine := 1, 1
	i := 0
	for i < len(ops) {
		if !keep[i] {
			if ops[i].kind != '+' {
				oldLine++
			}
			if ops[i].kind != '-' {
				newLine++
			}
			i++
			continue
		}

		oldStart, newStart := oldLine, newLine
		oldCount, newCount := 0, 0
		var body strings.Builder
		for i < len(ops) && keep[i] {
			op := ops[i]
			body.WriteByte(op.kind)
			body.WriteString(op.text)
			body.WriteByte('\n')
			if op.kind != '+' {
				oldCount++
				oldLine++
			}
			if op.kind != '-' {
				newCount++
				newLine++
			}
			i++
		}
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", oldStart, oldCount, newStart, newCount)
		sb.WriteString(body.String())
	}
	return sb.String()
}
