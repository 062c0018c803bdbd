package internal

import "github.com/starford/raido/internal/forms"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	submit forms.SubmitFunc
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithSubmitHandler sets the hook that receives submitted forms.
// Without one, the workspace logs submissions.
func WithSubmitHandler(fn forms.SubmitFunc) Option {
	return func(a *application) {
		a.submit = fn
	}
}
