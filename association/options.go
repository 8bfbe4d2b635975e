package association

import "github.com/go-logr/logr"

// Option configures owners and their caches.
type Option func(*options)

type options struct {
	logger logr.Logger
}

func defaultOptions() options {
	return options{logger: logr.Discard()}
}

// WithLogger sets the logger used by the owner's cache and proxies.
func WithLogger(logger logr.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
