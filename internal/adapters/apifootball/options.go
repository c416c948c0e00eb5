package apifootball

import (
	"net/http"
	"time"

	"github.com/okian/harvester/pkg/logger"
)

type options struct {
	apiKey            string
	host              string
	timeout           time.Duration
	requestsPerMinute int
	httpClient        *http.Client
	log               logger.Logger
}

func defaultOptions() options {
	return options{
		host:              DefaultHost,
		timeout:           30 * time.Second,
		requestsPerMinute: 10,
		httpClient:        &http.Client{},
		log:               logger.Nop(),
	}
}

// Option configures a Client.
type Option func(*options)

// WithAPIKey sets the x-rapidapi-key header.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithHost sets the x-rapidapi-host header.
func WithHost(host string) Option {
	return func(o *options) {
		if host != "" {
			o.host = host
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRequestsPerMinute paces requests; zero disables pacing.
func WithRequestsPerMinute(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.requestsPerMinute = n
		}
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}
