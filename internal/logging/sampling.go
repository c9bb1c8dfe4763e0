package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore samples warn-and-below records per message and tick.
// Errors skip the sampler so a burst of identical failures is never thinned.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}
	sampled := zapcore.NewSamplerWithOptions(
		&levelRangeCore{Core: core, keep: func(l zapcore.Level) bool { return l < zapcore.ErrorLevel }},
		cfg.Tick.Duration(), cfg.Initial, cfg.Thereafter,
	)
	errors := &levelRangeCore{Core: core, keep: func(l zapcore.Level) bool { return l >= zapcore.ErrorLevel }}
	return zapcore.NewTee(errors, sampled)
}

// levelRangeCore passes only the levels keep accepts.
type levelRangeCore struct {
	zapcore.Core
	keep func(zapcore.Level) bool
}

func (c *levelRangeCore) Enabled(l zapcore.Level) bool {
	return c.keep(l) && c.Core.Enabled(l)
}

func (c *levelRangeCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.keep(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *levelRangeCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelRangeCore{Core: c.Core.With(fields), keep: c.keep}
}
