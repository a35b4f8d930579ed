// Package config loads an optional on-disk YAML configuration for the
// tracecapd harness (SPEC_FULL.md §3): listen address, chunk sizes, the
// Linux context-switch log path, and initial per-descriptor statuses.
// Programmatic use of *profiler.Profiler needs none of this; it exists
// purely as a convenience for a standalone daemon.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tracecap/tracecap/internal/descriptor"
)

// Config is the root document. Every field has a zero value that means
// "use the built-in default" (cmd/tracecapd only overrides what's set).
type Config struct {
	// ListenAddr is the address start_listen binds to, e.g. ":28077".
	// Empty means cmd/tracecapd listens on its default ":28077".
	ListenAddr string `yaml:"listen_addr"`

	// ChunkBytes is parsed from the config but not applied: nothing reads
	// it, and per-thread arenas always use the fixed chunk sizes in
	// internal/threadstore.
	ChunkBytes int `yaml:"chunk_bytes"`

	// ContextSwitchLogPath overrides the Linux CS-tracer log path (spec
	// §6.1 set_context_switch_log_filename). Ignored on other platforms.
	ContextSwitchLogPath string `yaml:"context_switch_log_path"`

	// EventTracingEnabled and LowPriorityEventTracing mirror the
	// corresponding Profiler setters, applied once at startup.
	EventTracingEnabled     bool `yaml:"event_tracing_enabled"`
	LowPriorityEventTracing bool `yaml:"low_priority_event_tracing"`

	// Descriptors seeds initial statuses for call sites that haven't
	// registered yet, keyed by the same site_key passed to
	// register_description; applied lazily as each site registers (see
	// Config.StatusFor).
	Descriptors map[string]DescriptorStatus `yaml:"descriptors"`
}

// DescriptorStatus is the YAML-friendly spelling of descriptor.Status
// ("on", "off", "force_on", "off_recursive", "on_without_children",
// "force_on_without_children"); UnmarshalYAML converts it.
type DescriptorStatus descriptor.Status

func (s *DescriptorStatus) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	status, ok := parseStatusName(name)
	if !ok {
		return fmt.Errorf("config: unknown descriptor status %q", name)
	}
	*s = DescriptorStatus(status)
	return nil
}

func parseStatusName(name string) (descriptor.Status, bool) {
	switch name {
	case "off":
		return descriptor.Off, true
	case "on":
		return descriptor.On, true
	case "force_on":
		return descriptor.ForceOn, true
	case "off_recursive":
		return descriptor.OffRecursive, true
	case "on_without_children":
		return descriptor.OnWithoutChildren, true
	case "force_on_without_children":
		return descriptor.ForceOnWithoutChildren, true
	default:
		return 0, false
	}
}

// Load reads and parses a YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &c, nil
}

// StatusFor looks up the configured initial status for siteKey, if any.
func (c *Config) StatusFor(siteKey string) (descriptor.Status, bool) {
	if c == nil {
		return 0, false
	}
	s, ok := c.Descriptors[siteKey]
	return descriptor.Status(s), ok
}
