package rules

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of a rule file.
type File struct {
	Retailers []Spec `yaml:"retailers"`
}

// ParseFile decodes and validates the rule sets in a YAML document.
func ParseFile(data []byte) ([]*RuleSet, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "rules: decode rule file")
	}
	out := make([]*RuleSet, 0, len(f.Retailers))
	seen := make(map[string]bool, len(f.Retailers))
	for _, spec := range f.Retailers {
		if seen[spec.Name] {
			return nil, eris.Errorf("rules: retailer %q defined twice", spec.Name)
		}
		seen[spec.Name] = true
		rs, err := New(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, nil
}

// LoadFile reads and validates the rule sets in path.
func LoadFile(path string) ([]*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: read %s", path)
	}
	sets, err := ParseFile(data)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: load %s", path)
	}
	return sets, nil
}

// Load returns the built-in registry with the rule sets from path layered
// on top. Sets in the file override built-ins of the same name. An empty
// path returns the built-ins alone.
func Load(path string) (*Registry, error) {
	reg := Default()
	if path == "" {
		return reg, nil
	}
	sets, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	for _, rs := range sets {
		if err := reg.Replace(rs); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
