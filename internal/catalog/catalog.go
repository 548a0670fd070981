// Package catalog holds the static hardware pricing and capability table
// consumed at startup. The table ships embedded; deployments can replace it
// with a YAML file via HYBRIDGEN_CATALOG_PATH.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/villenero912/hybridgen/internal/model"
)

//go:embed catalog.yaml
var embedded []byte

// Hardware is one catalog entry: a rentable GPU configuration.
type Hardware struct {
	Type                string  `yaml:"-"`
	MemoryGB            int     `yaml:"memory_gb"`
	HourlyRate          float64 `yaml:"hourly_rate"`
	DefaultProvider     string  `yaml:"default_provider"`
	MinimumBillingHours float64 `yaml:"minimum_billing_hours"`
	SetupOverheadHours  float64 `yaml:"setup_overhead_hours"`
}

// Catalog is an immutable lookup table of hardware types. Loaded once at
// startup; safe for concurrent reads.
type Catalog struct {
	entries map[string]Hardware
}

type catalogFile struct {
	Hardware map[string]Hardware `yaml:"hardware"`
}

// Load parses the embedded table, or the YAML file at path when non-empty.
func Load(path string) (*Catalog, error) {
	data := embedded
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("catalog: read %s: %w", path, err)
		}
		data = b
	}
	return Parse(data)
}

// Parse builds a Catalog from YAML bytes.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse yaml: %w", err)
	}
	if len(f.Hardware) == 0 {
		return nil, fmt.Errorf("catalog: no hardware entries")
	}
	entries := make(map[string]Hardware, len(f.Hardware))
	for name, hw := range f.Hardware {
		hw.Type = name
		if hw.HourlyRate <= 0 {
			return nil, fmt.Errorf("catalog: %s: hourly_rate must be positive", name)
		}
		if hw.MinimumBillingHours <= 0 {
			return nil, fmt.Errorf("catalog: %s: minimum_billing_hours must be positive", name)
		}
		if hw.DefaultProvider == "" {
			return nil, fmt.Errorf("catalog: %s: default_provider is required", name)
		}
		entries[name] = hw
	}
	return &Catalog{entries: entries}, nil
}

// Lookup returns the entry for hardwareType, or a ValidationError when the
// type is not in the table.
func (c *Catalog) Lookup(hardwareType string) (Hardware, error) {
	hw, ok := c.entries[hardwareType]
	if !ok {
		return Hardware{}, &model.ValidationError{
			Field:  "hardware_type",
			Reason: fmt.Sprintf("unknown hardware type %q", hardwareType),
		}
	}
	return hw, nil
}

// Types returns all hardware type names, sorted.
func (c *Catalog) Types() []string {
	out := make([]string, 0, len(c.entries))
	for name := range c.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// All returns every entry, sorted by type name.
func (c *Catalog) All() []Hardware {
	out := make([]Hardware, 0, len(c.entries))
	for _, name := range c.Types() {
		out = append(out, c.entries[name])
	}
	return out
}
