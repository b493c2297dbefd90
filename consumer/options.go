package consumer

import (
	"github.com/kbukum/eventstream/logger"
	"github.com/kbukum/eventstream/observability"
)

type options struct {
	lastEventID string
	checkpoint  func(id string)
	log         *logger.Logger
	metrics     *observability.StreamMetrics
}

// Option configures Subscribe.
type Option func(*options)

// WithLastEventID resumes after id on the first attempt, typically one
// persisted by a previous process through WithCheckpoint.
func WithLastEventID(id string) Option {
	return func(o *options) { o.lastEventID = id }
}

// WithCheckpoint calls fn every time the resumption id advances. fn runs on
// the goroutine calling Next, before the corresponding item is returned.
func WithCheckpoint(fn func(id string)) Option {
	return func(o *options) { o.checkpoint = fn }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics records stream metrics. A nil value disables recording.
func WithMetrics(m *observability.StreamMetrics) Option {
	return func(o *options) { o.metrics = m }
}
