package policy

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Pack is a YAML policy bundle:
//
//	name: hoa-defaults
//	policies:
//	  - id: large-transaction-approval
//	    name: Large transaction requires approval
//	    expression: amount_minor >= 500000 && approved_by == ""
//	    severity: error
//	    category: approval
//	    enabled: true
type Pack struct {
	Name     string   `yaml:"name"`
	Policies []Policy `yaml:"policies"`
}

// LoadPack parses a policy pack. Expressions are not compiled here; that
// happens when the policies are registered with the engine.
func LoadPack(r io.Reader) (*Pack, error) {
	var pack Pack
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pack); err != nil {
		return nil, fmt.Errorf("decode policy pack: %w", err)
	}

	seen := make(map[string]bool, len(pack.Policies))
	for i, p := range pack.Policies {
		if p.ID == "" {
			return nil, fmt.Errorf("policy %d: missing id", i)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate policy id %q", p.ID)
		}
		seen[p.ID] = true
		if p.Expression == "" {
			return nil, fmt.Errorf("policy %s: missing expression", p.ID)
		}
		if !p.Severity.Valid() {
			return nil, fmt.Errorf("policy %s: unknown severity %q", p.ID, p.Severity)
		}
	}
	return &pack, nil
}

// LoadPackFile reads a policy pack from disk.
func LoadPackFile(path string) (*Pack, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open policy pack: %w", err)
	}
	defer f.Close()
	return LoadPack(f)
}
