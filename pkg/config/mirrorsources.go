package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MirrorSource describes one external data source to mirror into an app.
type MirrorSource struct {
	App      string            `yaml:"app"`
	KeyField string            `yaml:"key_field"`
	URL      string            `yaml:"url"`
	Headers  map[string]string `yaml:"headers"`
	Schedule string            `yaml:"schedule"`
	// RawTimeout is a duration string like "45s".
	RawTimeout string `yaml:"timeout"`

	Timeout time.Duration `yaml:"-"`
}

// LoadMirrorSources reads the mirror source list from a YAML file.
func LoadMirrorSources(path string) ([]MirrorSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mirror sources file: %w", err)
	}

	var doc struct {
		Sources []MirrorSource `yaml:"sources"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse mirror sources file: %w", err)
	}

	for i := range doc.Sources {
		src := &doc.Sources[i]
		if src.App == "" || src.KeyField == "" || src.URL == "" {
			return nil, fmt.Errorf("mirror source %d: app, key_field and url are required", i)
		}
		if src.RawTimeout != "" {
			timeout, err := time.ParseDuration(src.RawTimeout)
			if err != nil {
				return nil, fmt.Errorf("mirror source %d: invalid timeout %q: %w", i, src.RawTimeout, err)
			}
			src.Timeout = timeout
		}
	}
	return doc.Sources, nil
}
