package tle

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// metadataFile is the on-disk shape of the sidecar metadata document.
type metadataFile struct {
	Objects []struct {
		NoradID  int `yaml:"norad_id"`
		Metadata `yaml:",inline"`
	} `yaml:"objects"`
}

// LoadMetadataFile reads a YAML sidecar document mapping catalog ids to
// mass/area/operator facts:
//
//	objects:
//	  - norad_id: 25544
//	    mass_kg: 419700
//	    area_m2: 2500
//	    operator: NASA
//	    controlled: true
func LoadMetadataFile(path string) (map[int]Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading metadata file: %w", err)
	}
	return ParseMetadata(data)
}

// ParseMetadata decodes sidecar metadata YAML.
func ParseMetadata(data []byte) (map[int]Metadata, error) {
	var doc metadataFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing metadata: %w", err)
	}

	out := make(map[int]Metadata, len(doc.Objects))
	for _, entry := range doc.Objects {
		if entry.NoradID <= 0 {
			return nil, fmt.Errorf("metadata entry with invalid norad_id %d", entry.NoradID)
		}
		out[entry.NoradID] = entry.Metadata
	}
	return out, nil
}
