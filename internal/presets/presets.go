// Package presets holds the built-in templates used by "normal" campaigns.
package presets

import (
	_ "embed"
	"fmt"
	"os"

	"autoleads/internal/models"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Presets maps a vehicle reference mode to its template
type Presets struct {
	Templates map[models.VehicleReference]string `yaml:"templates"`
}

// Load reads presets from path, or the embedded defaults when path is empty
func Load(path string) (*Presets, error) {
	data := defaultYAML
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read presets file: %w", err)
		}
	}
	return Parse(data)
}

// Parse decodes presets YAML. Both vehicle reference modes must be present.
func Parse(data []byte) (*Presets, error) {
	var p Presets
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse presets: %w", err)
	}

	for _, ref := range []models.VehicleReference{models.VehicleReferenceMake, models.VehicleReferenceModel} {
		if p.Templates[ref] == "" {
			return nil, fmt.Errorf("presets missing template for vehicle reference %q", ref)
		}
	}

	return &p, nil
}

// Template returns the preset for a vehicle reference mode
func (p *Presets) Template(ref models.VehicleReference) (string, bool) {
	t, ok := p.Templates[ref]
	return t, ok && t != ""
}
