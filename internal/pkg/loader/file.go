package loader

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML layout of a trusted table file:
//
//	trusted:
//	  - src_ip: 10.0.0.5
//	    proto: udp
//	    from_pattern: "^sip:.*@carrier\\.example$"
//	    tag: carrier
type FileConfig struct {
	Trusted []Row `yaml:"trusted"`
}

// FileSource reads rows from a YAML file.
type FileSource struct {
	Path string
}

// Describe implements Source.
func (f FileSource) Describe() string {
	return "file:" + f.Path
}

// Rows implements Source.
func (f FileSource) Rows(ctx context.Context) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trusted file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes a trusted table document. A missing pattern or tag, or
// an explicit null, leaves the field absent.
func ParseYAML(data []byte) ([]Row, error) {
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse trusted YAML: %w", err)
	}
	return cfg.Trusted, nil
}

// WriteYAML encodes rows as a trusted table document.
func WriteYAML(rows []Row) ([]byte, error) {
	data, err := yaml.Marshal(&FileConfig{Trusted: rows})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trusted rows: %w", err)
	}
	return data, nil
}
