package internal

import "io"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	password  *string
	logOutput io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithPassword unlocks the store at startup.
func WithPassword(pw string) Option {
	return func(a *application) {
		a.password = &pw
	}
}

// WithLogOutput sends logs to w instead of stdout. Commands that print
// results on stdout log to stderr.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}
