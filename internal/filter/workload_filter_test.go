package filter

import "testing"

func TestMatchName(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		input    string
		expected bool
	}{
		{
			name:     "no patterns mirrors everything",
			config:   Config{},
			input:    "web",
			expected: true,
		},
		{
			name:     "watch pattern match",
			config:   Config{WatchNames: []string{"web-*"}},
			input:    "web-1",
			expected: true,
		},
		{
			name:     "watch pattern miss",
			config:   Config{WatchNames: []string{"web-*"}},
			input:    "db-1",
			expected: false,
		},
		{
			name:     "exclusion wins over watch",
			config:   Config{WatchNames: []string{"*"}, ExcludeNames: []string{"buildkit*"}},
			input:    "buildkit-builder",
			expected: false,
		},
		{
			name:     "exclusion alone",
			config:   Config{ExcludeNames: []string{"tmp-*"}},
			input:    "tmp-scratch",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.config)
			if got := f.MatchName(tt.input); got != tt.expected {
				t.Errorf("MatchName(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestMatchLabels(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		labels   map[string]string
		expected bool
	}{
		{
			name:     "no rules match everything",
			config:   Config{},
			labels:   nil,
			expected: true,
		},
		{
			name:     "required label present",
			config:   Config{RequireLabels: []string{"logpost.sh/mirror"}},
			labels:   map[string]string{"logpost.sh/mirror": "true"},
			expected: true,
		},
		{
			name:     "required label missing",
			config:   Config{RequireLabels: []string{"logpost.sh/mirror"}},
			labels:   map[string]string{},
			expected: false,
		},
		{
			name:     "exclusion key=value matches",
			config:   Config{ExcludeLabels: []string{"logpost.sh/ignore=true"}},
			labels:   map[string]string{"logpost.sh/ignore": "true"},
			expected: false,
		},
		{
			name:     "exclusion key=value wrong value",
			config:   Config{ExcludeLabels: []string{"logpost.sh/ignore=true"}},
			labels:   map[string]string{"logpost.sh/ignore": "false"},
			expected: true,
		},
		{
			name:     "bare exclusion key matches any value",
			config:   Config{ExcludeLabels: []string{"logpost.sh/ignore"}},
			labels:   map[string]string{"logpost.sh/ignore": "whatever"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.config)
			if got := f.MatchLabels(tt.labels); got != tt.expected {
				t.Errorf("MatchLabels(%v) = %v, want %v", tt.labels, got, tt.expected)
			}
		})
	}
}
