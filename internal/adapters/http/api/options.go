package api

const (
	defaultMatchesLimit = 20
	defaultMaxLimit     = 500
)

type options struct {
	defaultLimit int
	maxLimit     int
}

func defaultOptions() options {
	return options{defaultLimit: defaultMatchesLimit, maxLimit: defaultMaxLimit}
}

// Option configures the API server.
type Option func(*options)

// WithMaxLimit caps GET /data/matches?limit.
func WithMaxLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLimit = n
		}
	}
}

// WithDefaultLimit sets the page size when limit is omitted.
func WithDefaultLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.defaultLimit = n
		}
	}
}
