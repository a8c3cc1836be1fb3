package output

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/k93s/internal/fleet"
)

// YAMLFormatter formats a fleet as a YAML list.
type YAMLFormatter struct{}

// FormatFleet implements Formatter. An empty fleet renders as "[]".
func (f *YAMLFormatter) FormatFleet(fl fleet.Fleet) (string, error) {
	data, err := yaml.Marshal(Entries(fl))
	if err != nil {
		return "", fmt.Errorf("failed to marshal fleet to YAML: %w", err)
	}
	return string(data), nil
}
