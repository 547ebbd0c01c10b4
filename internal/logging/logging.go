// Package logging provides the shared zap logger used by the kernel,
// exchange, and gateway, in place of the teacher's bare fmt.Printf debug
// lines (SPEC_FULL.md's ambient-stack section).
package logging

import "go.uber.org/zap"

// New returns a SugaredLogger suitable for interactive/demo runs
// (development encoder, human-readable) when dev is true, or a
// production JSON logger otherwise.
func New(dev bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if dev {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// Noop returns a logger that discards everything, for tests that don't
// want kernel/exchange log noise.
func Noop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
