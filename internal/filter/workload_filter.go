package filter

import (
	"path/filepath"
	"strings"
)

// Config holds the configuration for workload filtering.
type Config struct {
	// Name filtering
	WatchNames   []string // Glob patterns for container names to mirror (e.g., "web-*")
	ExcludeNames []string // Glob patterns for container names to skip (e.g., "buildkit*")

	// Label filtering
	RequireLabels []string // Label keys that must be present
	ExcludeLabels []string // Label key=value pairs that cause exclusion (e.g., "logpost.sh/ignore=true")
}

// WorkloadFilter decides which observed containers get mirrored.
type WorkloadFilter struct {
	config Config
}

// New creates a new workload filter.
func New(config Config) *WorkloadFilter {
	return &WorkloadFilter{config: config}
}

// MatchName returns true if a container with this name should be mirrored.
func (f *WorkloadFilter) MatchName(name string) bool {
	// Check exclusions first
	for _, pattern := range f.config.ExcludeNames {
		if matchGlob(pattern, name) {
			return false
		}
	}

	// If no watch patterns specified, mirror all (that aren't excluded)
	if len(f.config.WatchNames) == 0 {
		return true
	}

	for _, pattern := range f.config.WatchNames {
		if matchGlob(pattern, name) {
			return true
		}
	}

	return false
}

// MatchLabels returns true if a container with these labels should be mirrored.
func (f *WorkloadFilter) MatchLabels(labels map[string]string) bool {
	// Check required labels
	for _, requiredKey := range f.config.RequireLabels {
		if _, exists := labels[requiredKey]; !exists {
			return false
		}
	}

	// Check exclusion labels
	for _, exclusion := range f.config.ExcludeLabels {
		key, value := parseKeyValue(exclusion)
		if labelValue, exists := labels[key]; exists {
			if value == "" || labelValue == value {
				return false
			}
		}
	}

	return true
}

// matchGlob performs a simple glob match (supports * wildcard)
func matchGlob(pattern, s string) bool {
	matched, err := filepath.Match(pattern, s)
	if err != nil {
		return false
	}
	return matched
}

// parseKeyValue parses a "key=value" or "key" string
func parseKeyValue(s string) (key, value string) {
	parts := strings.SplitN(s, "=", 2)
	key = parts[0]
	if len(parts) > 1 {
		value = parts[1]
	}
	return
}
