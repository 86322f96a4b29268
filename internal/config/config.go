/*
 * internal/config/config.go
 *
 * Configuration and timing settings used across the workload observer.
 */

package config

import (
	"os"
	"time"

	"sigs.k8s.io/yaml"
)

// Timing and capacity knobs used across the store, watcher and enrichment worker.
const (
	// DefaultSubscriberCapacity is the buffer size for an ordinary store subscription.
	DefaultSubscriberCapacity = 16

	// StreamSubscriberCapacity is the buffer size used for the public WebSocket event stream,
	// which tends to have bursty delivery to a single, possibly slow, browser client.
	StreamSubscriberCapacity = 128

	// MirrorSubscriberCapacity is the buffer used by the enrichment worker's mirror loop,
	// which reads from the pod adapter's store.
	MirrorSubscriberCapacity = 32

	// ScanConcurrency bounds the number of SBOM fetches in flight at once.
	ScanConcurrency = 8

	// SbomFetchTimeout bounds a single outbound request to the artifact service.
	SbomFetchTimeout = 10 * time.Second

	// ReSubscribeBackoff is the delay before the enrichment worker re-subscribes after
	// losing its store subscription.
	ReSubscribeBackoff = time.Second

	// InformerResyncInterval controls how often the pod informer performs a full resync sweep.
	InformerResyncInterval = 30 * time.Second

	// HTTPShutdownTimeout bounds how long the HTTP server waits for in-flight requests to
	// finish during graceful shutdown.
	HTTPShutdownTimeout = 10 * time.Second
)

// Config holds the environment-derived and optionally overlaid runtime settings.
type Config struct {
	// BombasticURL is the base URL of the artifact service that serves SBOM blobs.
	BombasticURL string `json:"bombasticUrl,omitempty"`

	// BindAddr is the address the HTTP server listens on.
	BindAddr string `json:"bindAddr,omitempty"`

	// Namespace restricts the pod watcher to a single namespace; empty means all namespaces.
	Namespace string `json:"namespace,omitempty"`
}

// FromEnv builds a Config from environment variables, applying the documented defaults.
func FromEnv() *Config {
	cfg := &Config{
		BombasticURL: "http://localhost:8080",
		BindAddr:     "[::]:8080",
	}
	if v := os.Getenv("BOMBASTIC_URL"); v != "" {
		cfg.BombasticURL = v
	}
	if v := os.Getenv("BIND_ADDR"); v != "" {
		cfg.BindAddr = v
	}
	if v := os.Getenv("WATCH_NAMESPACE"); v != "" {
		cfg.Namespace = v
	}
	return cfg
}

// LoadOverlay reads a YAML file and merges any fields it sets on top of cfg, returning a new
// Config. A missing file is not an error; callers that want the overlay to be mandatory should
// stat the path themselves first.
func LoadOverlay(cfg *Config, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	merged := *cfg
	if err := yaml.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}
