// Package tuning loads the per-namespace default retry/backoff/interval
// table from a YAML fixture, grounded on vjache-cie's cmd/cie/config.go
// (yaml.v3-unmarshalled config struct with getEnv-overridable defaults),
// adapted from a single project config file to a namespace-keyed table.
package tuning

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Namespace holds one source's default sync cadence and retry posture.
// No environment variable overrides these values; a zero or missing field
// falls back to the default the caller passes to the accessor
type Namespace struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	TimeoutSeconds  int `yaml:"timeout_seconds"`
	MaxRetries      int `yaml:"max_retries"`
	RetryDelayMS    int `yaml:"retry_delay_ms"`
}

// Table maps namespace name to its tuning defaults
type Table map[string]Namespace

// Default returns the built-in table used when no fixture is supplied,
// mirroring the per-adapter defaults original_source's source classes hardcode
func Default() Table {
	return Table{
		"limitless": {IntervalSeconds: 900, TimeoutSeconds: 30, MaxRetries: 5, RetryDelayMS: 500},
		"news":      {IntervalSeconds: 21600, TimeoutSeconds: 30, MaxRetries: 5, RetryDelayMS: 500},
		"weather":   {IntervalSeconds: 21600, TimeoutSeconds: 30, MaxRetries: 5, RetryDelayMS: 500},
	}
}

// Load reads a YAML tuning table from path, falling back to Default when
// path is empty or the file does not exist
func Load(path string) (Table, error) {
	t := Default()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, err
	}
	overrides := Table{}
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, err
	}
	for ns, cfg := range overrides {
		t[ns] = cfg
	}
	return t, nil
}

// Interval returns the configured sync cadence for namespace, or def if unset
func (t Table) Interval(namespace string, def time.Duration) time.Duration {
	ns, ok := t[namespace]
	if !ok || ns.IntervalSeconds <= 0 {
		return def
	}
	return time.Duration(ns.IntervalSeconds) * time.Second
}

// Timeout returns the configured per-run timeout for namespace, or def if unset
func (t Table) Timeout(namespace string, def time.Duration) time.Duration {
	ns, ok := t[namespace]
	if !ok || ns.TimeoutSeconds <= 0 {
		return def
	}
	return time.Duration(ns.TimeoutSeconds) * time.Second
}

// MaxRetries returns the configured retry ceiling for namespace, or def if unset
func (t Table) MaxRetries(namespace string, def int) int {
	ns, ok := t[namespace]
	if !ok || ns.MaxRetries <= 0 {
		return def
	}
	return ns.MaxRetries
}

// RetryDelay returns the configured base retry delay for namespace, or def if unset
func (t Table) RetryDelay(namespace string, def time.Duration) time.Duration {
	ns, ok := t[namespace]
	if !ok || ns.RetryDelayMS <= 0 {
		return def
	}
	return time.Duration(ns.RetryDelayMS) * time.Millisecond
}
