package session

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"symtrace/internal/render"
)

// Artifact file names under the output directory.
const (
	TextFile      = "trace.txt"
	StructureFile = "structure.txt"
	DotFile       = "trace.dot"
	TreeFile      = "tree.js"
	ChromeFile    = "chrome_trace.json"
	GenericFile   = "generic_graph.json"
)

// WriteArtifacts renders every enabled format for the recorded units and
// writes it under dir. An empty dir falls back to the configured output
// directory. With write_files off the call is a no-op; flip it through the
// config file or SetConfig before writing. Formats render and write
// independently; the combined error carries every failure.
func (s *Session) WriteArtifacts(dir string) error {
	if !s.cfg.WriteFiles {
		s.log.Debug("artifact files disabled, nothing written")
		return nil
	}
	if dir == "" {
		dir = s.cfg.OutputDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create trace output dir: %w", err)
	}

	units := s.RenderUnits()
	formats := s.cfg.Formats

	var errs error
	write := func(name string, content []byte) {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, content, 0644); err != nil {
			s.log.Error("failed to write trace artifact", zap.String("path", path), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("write %s: %w", name, err))
			return
		}
		s.log.Debug("trace artifact written", zap.String("path", path))
	}

	if formats.Text {
		write(TextFile, []byte(render.TextDump(units)))
	}
	if formats.Structure {
		write(StructureFile, []byte(render.StructureDump(units)))
	}
	if formats.Dot {
		write(DotFile, []byte(render.DOT(units)))
	}
	if formats.Tree {
		tree, err := render.Tree(units)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("render %s: %w", TreeFile, err))
		} else {
			write(TreeFile, tree)
		}
	}

	if formats.Chrome || formats.Generic {
		roots := make([]*render.GenericNode, 0, len(units))
		for _, u := range units {
			roots = append(roots, render.Generic(u.Root))
		}
		if formats.Chrome {
			chrome, err := render.ChromeTrace(roots, s.log)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("render %s: %w", ChromeFile, err))
			} else {
				write(ChromeFile, chrome)
			}
		}
		if formats.Generic {
			generic, err := render.GenericJSON(roots, s.log)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("render %s: %w", GenericFile, err))
			} else {
				write(GenericFile, generic)
			}
		}
	}
	return errs
}
