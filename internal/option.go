package internal

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config   *Config
	out      io.Writer
	registry *prometheus.Registry
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithOutput sets where the print and check commands write. Defaults to
// stdout.
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.out = w
	}
}

// WithMetricsRegistry sets the Prometheus registry served at /metrics.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(a *application) {
		a.registry = reg
	}
}
