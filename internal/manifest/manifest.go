// Package manifest loads the integration package metadata and the
// per-instance runtime spec from YAML.
package manifest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ledgerworks/integration-runtime/internal/ledger"
)

// Metadata keys recognised in runtime spec metadata.
const (
	MetadataRunAsParty       = "runAsParty"
	MetadataCommonRunAsParty = "common.runAsParty"
)

// TypeInfo describes one integration type shipped in a package.
type TypeInfo struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Entrypoint  string `yaml:"entrypoint"`
}

// PackageMetadata is the package-level manifest listing the integration
// types available and the model they run against.
type PackageMetadata struct {
	IntegrationTypes []TypeInfo        `yaml:"integration_types"`
	Model            *ledger.ModelInfo `yaml:"daml_model"`
}

// IntegrationType returns the type info for an ID.
func (m *PackageMetadata) IntegrationType(typeID string) (TypeInfo, error) {
	for _, it := range m.IntegrationTypes {
		if it.ID == typeID {
			return it, nil
		}
	}
	return TypeInfo{}, fmt.Errorf("no integration of type %s", typeID)
}

// RuntimeSpec is the per-instance configuration deployed alongside the
// integration.
type RuntimeSpec struct {
	TypeID   string            `yaml:"type_id"`
	Enabled  bool              `yaml:"enabled"`
	Metadata map[string]string `yaml:"metadata"`
}

// RunAsParty returns the party named in the spec metadata fallback
// slots, preferring the common slot.
func (s *RuntimeSpec) RunAsParty() string {
	if s == nil || s.Metadata == nil {
		return ""
	}
	if party := s.Metadata[MetadataCommonRunAsParty]; party != "" {
		return party
	}
	return s.Metadata[MetadataRunAsParty]
}

// LoadPackageMetadata reads a package manifest from a YAML file.
func LoadPackageMetadata(path string) (*PackageMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read package metadata: %w", err)
	}

	var meta PackageMetadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse package metadata: %w", err)
	}
	return &meta, nil
}

// LoadRuntimeSpec reads a runtime spec from a YAML file.
func LoadRuntimeSpec(path string) (*RuntimeSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read runtime spec: %w", err)
	}

	var spec RuntimeSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse runtime spec: %w", err)
	}
	return &spec, nil
}
