package orchestrator

import (
	"fmt"
	"os"

	"github.com/jbweber/k93s/internal/config"
)

// PrepareWorkDir returns the directory actions run in. An empty dir yields a
// fresh temporary directory; otherwise dir is resolved and created.
func PrepareWorkDir(dir string) (string, error) {
	if dir == "" {
		tmp, err := os.MkdirTemp("", "k93s-")
		if err != nil {
			return "", fmt.Errorf("failed to create temporary working directory: %w", err)
		}
		return tmp, nil
	}

	resolved, err := config.ResolvePath(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(resolved, 0o700); err != nil {
		return "", fmt.Errorf("failed to create working directory: %w", err)
	}
	return resolved, nil
}
