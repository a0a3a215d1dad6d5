package ledger

import (
	"fmt"
	"strings"
)

// WildcardTemplate subscribes to every template.
const WildcardTemplate = "*"

// ModelInfo describes the deployed model the integration runs against.
// MainPackageID qualifies template names given without a package.
type ModelInfo struct {
	MainPackageID string `yaml:"main_package_id" json:"main_package_id"`
	Name          string `yaml:"name" json:"name"`
	Version       string `yaml:"version" json:"version"`
}

// QualifyTemplate resolves a template identifier against the default
// model package. Fully qualified identifiers (`pkg:Module:Entity`) and
// the universal wildcard pass through unchanged; unqualified
// identifiers (`Module:Entity`, `*:Module:Entity`) take the model's
// main package ID. An unqualified identifier with no model available is
// an error.
func QualifyTemplate(model *ModelInfo, template string) (string, error) {
	if template == WildcardTemplate {
		return template, nil
	}

	parts := strings.Split(template, ":")
	switch len(parts) {
	case 3:
		if parts[0] != WildcardTemplate {
			return template, nil
		}
		if model == nil || model.MainPackageID == "" {
			return "", fmt.Errorf("no default model known when qualifying template: %s", template)
		}
		return fmt.Sprintf("%s:%s:%s", model.MainPackageID, parts[1], parts[2]), nil
	case 2:
		if model == nil || model.MainPackageID == "" {
			return "", fmt.Errorf("no default model known when qualifying template: %s", template)
		}
		return fmt.Sprintf("%s:%s", model.MainPackageID, template), nil
	default:
		return "", fmt.Errorf("malformed template identifier: %s", template)
	}
}
