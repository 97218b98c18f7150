// Package session owns the process-wide recording lifecycle: the list of
// completed unit traces, the enable switch and the artifact writer. One
// session serves one verifier run and is passed around explicitly.
package session

import (
	"go.uber.org/zap"

	"symtrace/internal/config"
	"symtrace/internal/record"
	"symtrace/internal/render"
	"symtrace/internal/tracer"
)

// Session accumulates unit traces for one verifier run. It is driven from a
// single logical thread, like the tracers it hands out.
type Session struct {
	cfg    *config.Config
	log    *zap.Logger
	policy tracer.QuorumPolicy
	units  []*tracer.Tracer
}

// New creates a session. A nil cfg means defaults, a nil logger disables
// diagnostics.
func New(cfg *config.Config, logger *zap.Logger) *Session {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		cfg:    cfg,
		log:    logger,
		policy: resolvePolicy(cfg, logger),
	}
}

func resolvePolicy(cfg *config.Config, logger *zap.Logger) tracer.QuorumPolicy {
	p := tracer.QuorumPolicy(cfg.AbortedSiblings)
	if !p.Valid() {
		if cfg.AbortedSiblings != "" {
			logger.Warn("unknown aborted_siblings policy, falling back to exclude-aborted",
				zap.String("policy", cfg.AbortedSiblings))
		}
		return tracer.QuorumExcludeAborted
	}
	return p
}

// InsertMember opens recording for one verified unit and returns its
// tracer. With recording disabled the tracer is a no-op and the unit list
// stays untouched.
func (s *Session) InsertMember(kind record.Kind, node record.Node, state record.Snapshot) *tracer.Tracer {
	if !s.cfg.Enabled {
		return tracer.Disabled()
	}
	tr := tracer.New(kind, node, state, tracer.Options{
		Timing: s.cfg.Timing,
		Policy: s.policy,
	})
	s.units = append(s.units, tr)
	s.log.Debug("unit recording started", zap.String("unit", tr.Root().Display()))
	return tr
}

// SetEnabled flips recording for units opened after the call.
func (s *Session) SetEnabled(on bool) {
	s.cfg.Enabled = on
}

// SetConfig redirects artifact output and switches file writing on or off.
func (s *Session) SetConfig(outputDir string, writeFiles bool) {
	s.cfg.OutputDir = outputDir
	s.cfg.WriteFiles = writeFiles
}

// Units returns the tracers of every unit recorded so far.
func (s *Session) Units() []*tracer.Tracer {
	return s.units
}

// RenderUnits adapts the unit list for the renderers.
func (s *Session) RenderUnits() []render.Unit {
	us := make([]render.Unit, 0, len(s.units))
	for _, tr := range s.units {
		us = append(us, render.Unit{Root: tr.Root(), Macros: tr.Macros()})
	}
	return us
}

// Reset drops every recorded unit. The next verifier run starts clean.
func (s *Session) Reset() {
	s.units = nil
}
