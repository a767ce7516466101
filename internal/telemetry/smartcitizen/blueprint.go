package smartcitizen

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/i474232898/sensor-map-sync/internal/common"
)

//go:embed blueprints.yaml
var defaultBlueprints []byte

// Channel maps remote sensors onto one dataset column.
type Channel struct {
	Column string   `yaml:"column"`
	IDs    []int    `yaml:"ids"`
	Names  []string `yaml:"names"`
}

// Blueprint is the set of channels a kit reports.
type Blueprint struct {
	Name     string    `yaml:"-"`
	Channels []Channel `yaml:"channels"`
}

// ParseBlueprints decodes a YAML document keyed by blueprint name.
func ParseBlueprints(data []byte) (map[string]Blueprint, error) {
	var raw map[string]Blueprint
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse blueprints: %w", err)
	}
	for name, bp := range raw {
		bp.Name = name
		seen := make(map[string]bool)
		for _, ch := range bp.Channels {
			if ch.Column == "" {
				return nil, fmt.Errorf("blueprint %s: channel without column", name)
			}
			if seen[ch.Column] {
				return nil, fmt.Errorf("blueprint %s: duplicate column %s", name, ch.Column)
			}
			seen[ch.Column] = true
		}
		raw[name] = bp
	}
	return raw, nil
}

// LookupBlueprint returns a blueprint from the built-in set.
func LookupBlueprint(name string) (Blueprint, error) {
	all, err := ParseBlueprints(defaultBlueprints)
	if err != nil {
		return Blueprint{}, err
	}
	bp, ok := all[name]
	if !ok {
		names := make([]string, 0, len(all))
		for n := range all {
			names = append(names, n)
		}
		sort.Strings(names)
		return Blueprint{}, fmt.Errorf("unknown blueprint %q (known: %v)", name, names)
	}
	return bp, nil
}

// Column returns the dataset column a remote sensor maps to. IDs are matched
// before name fragments so a generic fragment never shadows an explicit id.
func (b Blueprint) Column(s apiSensor) (string, bool) {
	for _, ch := range b.Channels {
		for _, id := range ch.IDs {
			if id == s.ID {
				return ch.Column, true
			}
		}
	}
	for _, ch := range b.Channels {
		if common.HasAnyFold(s.Name, ch.Names...) || common.HasAnyFold(s.Description, ch.Names...) {
			return ch.Column, true
		}
	}
	return "", false
}
