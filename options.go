package bkdgo

import "runtime"

type options struct {
	logger           *Logger
	batchConcurrency int
}

// Option configures query behavior.
type Option func(*options)

func defaultOptions() options {
	return options{
		logger:           NoopLogger(),
		batchConcurrency: runtime.GOMAXPROCS(0),
	}
}

func applyOptions(optFns []Option) options {
	o := defaultOptions()
	for _, fn := range optFns {
		fn(&o)
	}
	return o
}

// WithLogger installs a logger for query-level logging.
// The default discards all output.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithBatchConcurrency caps the number of queries NearestBatch runs
// concurrently. Defaults to GOMAXPROCS. Each individual query remains
// single-threaded.
func WithBatchConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchConcurrency = n
		}
	}
}
