package internal

import (
	"io"
	"net/http"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config     *Config
	version    string
	logOutput  io.Writer
	httpClient *http.Client
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithLogOutput redirects the JSON logger. The MCP command logs to stderr
// because stdout carries the protocol.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

// WithHTTPClient sets the client used to reach the remote service.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *application) {
		a.httpClient = hc
	}
}
