package canopy

import (
	"github.com/hupe1980/canopy/resource"
)

type options struct {
	logger         *Logger
	metrics        MetricsCollector
	verifyChecksum bool
	controller     *resource.Controller
}

func defaultOptions() options {
	return options{
		logger:         NoopLogger(),
		metrics:        NoopMetricsCollector{},
		verifyChecksum: true,
	}
}

// Option configures Open and Fetch behavior.
type Option func(*options)

// WithLogger sets the structured logger for operation tracing.
// Pass nil to disable logging.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector configures a metrics collector for monitoring.
// Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metrics = mc
	}
}

// WithChecksumValidation controls CRC verification when opening an index
// file. Enabled by default; disabling skips one full read of the file,
// which matters for very large artifacts on slow storage.
func WithChecksumValidation(verify bool) Option {
	return func(o *options) {
		o.verifyChecksum = verify
	}
}

// WithResourceController attaches a resource controller that limits
// artifact transfer throughput and, for Open, accounts the mapped file
// size against the controller's memory budget until the DB is closed.
func WithResourceController(ctrl *resource.Controller) Option {
	return func(o *options) {
		o.controller = ctrl
	}
}
