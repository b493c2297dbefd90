package bootstrap

import (
	"time"

	"github.com/kbukum/eventstream/logger"
)

const defaultGracefulTimeout = 15 * time.Second

// Option configures NewApp. Options are not generic so one set serves every
// config type.
type Option func(*options)

type options struct {
	logger          *logger.Logger
	gracefulTimeout time.Duration
}

// WithLogger replaces the logger NewApp would build from the config's
// logging section.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithGracefulTimeout bounds the stop hooks and component shutdown.
func WithGracefulTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.gracefulTimeout = d
		}
	}
}
