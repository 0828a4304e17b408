package apps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/deskforge/deskforge/pkg/observability"
)

// seedTemplate is the YAML shape of a template file on disk
type seedTemplate struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Blueprint   TemplateBlueprint `yaml:"blueprint"`
}

// SeedTemplates loads *.yaml template files from dir and upserts them
// as system templates. Missing dir is not an error so deployments
// without a template bundle start clean.
func SeedTemplates(ctx context.Context, store *Store, dir string, logger *observability.Logger) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read template dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read template %s: %w", entry.Name(), err)
		}

		var seed seedTemplate
		if err := yaml.Unmarshal(data, &seed); err != nil {
			return fmt.Errorf("failed to parse template %s: %w", entry.Name(), err)
		}
		if seed.Name == "" {
			return fmt.Errorf("template %s has no name", entry.Name())
		}

		tmpl := &Template{
			Name:        seed.Name,
			Description: seed.Description,
			IsSystem:    true,
			Blueprint:   seed.Blueprint,
		}
		if err := store.CreateTemplate(ctx, tmpl); err != nil {
			return fmt.Errorf("failed to seed template %s: %w", seed.Name, err)
		}
		logger.WithField("template", seed.Name).Debug("seeded system template")
	}
	return nil
}
