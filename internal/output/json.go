package output

import (
	"encoding/json"
	"fmt"

	"github.com/jbweber/k93s/internal/fleet"
)

// JSONFormatter formats a fleet as a JSON array.
type JSONFormatter struct{}

// FormatFleet implements Formatter.
func (f *JSONFormatter) FormatFleet(fl fleet.Fleet) (string, error) {
	data, err := json.MarshalIndent(Entries(fl), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal fleet to JSON: %w", err)
	}
	return string(data) + "\n", nil
}
