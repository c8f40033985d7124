package cluster

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// FileConfig is the optional YAML shape for a Static cluster's fixed
// answers, the same small-struct-resolved-once-at-startup pattern as
// the ocx pack member's config.Manager, scaled down to two fields.
type FileConfig struct {
	Leader  string   `yaml:"leader"`
	Servers []string `yaml:"servers"`
}

// LoadStatic reads path as YAML and returns the Static cluster it
// describes.
func LoadStatic(path string) (*Static, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cluster: read %q: %w", path, err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return nil, fmt.Errorf("cluster: parse %q: %w", path, err)
	}
	return NewStatic(fc.Leader, fc.Servers), nil
}
