// Package host resolves a stable identifier for the machine the agent runs
// on, used to attribute events and heartbeats when several agents feed the
// same destination.
package host

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

// Provider represents the detected host environment
type Provider string

const (
	ProviderUnknown Provider = "unknown"
	ProviderGCP     Provider = "gcp"
	ProviderLocal   Provider = "local"
)

// Info contains resolved host identification information
type Info struct {
	HostID   string
	Hostname string
	Provider Provider
	Zone     string
}

// ErrNoProviderDetected is returned when no environment can be detected
var ErrNoProviderDetected = errors.New("no host environment detected")

// EnvProvider defines the interface for environment-specific host resolution
type EnvProvider interface {
	// Name returns the provider identifier
	Name() Provider
	// Detect checks if running in this environment
	Detect(ctx context.Context) bool
	// Resolve retrieves host information from the environment
	Resolve(ctx context.Context) (*Info, error)
}

// Config holds configuration for the resolver
type Config struct {
	// Timeout for metadata requests
	Timeout time.Duration
	// EnableGCP enables GCE metadata detection
	EnableGCP bool
}

// DefaultConfig returns the default resolver configuration
func DefaultConfig() Config {
	return Config{
		Timeout:   3 * time.Second,
		EnableGCP: true,
	}
}

// Resolver orchestrates environment detection and host id resolution
type Resolver struct {
	config    Config
	providers []EnvProvider
}

// NewResolver creates a new resolver with the GCP provider and a local
// hostname fallback
func NewResolver(cfg Config) *Resolver {
	httpClient := &http.Client{
		Timeout: cfg.Timeout,
	}

	var providers []EnvProvider

	if cfg.EnableGCP {
		providers = append(providers, NewGCPProvider(httpClient))
	}

	return &Resolver{
		config:    cfg,
		providers: providers,
	}
}

// Resolve detects the environment and resolves the host id, falling back to
// the OS hostname when no cloud environment is detected.
func (r *Resolver) Resolve(ctx context.Context) (*Info, error) {
	for _, provider := range r.providers {
		if provider.Detect(ctx) {
			return provider.Resolve(ctx)
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoProviderDetected, err)
	}
	return &Info{
		HostID:   "local/" + hostname,
		Hostname: hostname,
		Provider: ProviderLocal,
	}, nil
}

// DetectProvider returns the detected environment without resolving the id
func (r *Resolver) DetectProvider(ctx context.Context) Provider {
	for _, provider := range r.providers {
		if provider.Detect(ctx) {
			return provider.Name()
		}
	}
	return ProviderUnknown
}
