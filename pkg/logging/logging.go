// Package logging constructs the structured logger every engine and
// ambient component takes as a dependency, rather than reaching for a
// package-global.
package logging

import "go.uber.org/zap"

// New builds a *zap.SugaredLogger: development encoding (human-readable,
// colorized level, stack traces on Warn+) when debug is true, production
// JSON encoding otherwise.
func New(debug bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if debug {
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

// Nop returns a logger that discards everything, for tests and tools that
// don't want log output on stderr.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
