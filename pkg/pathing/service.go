package pathing

import (
	"fmt"
	"os"
)

func GetConfigDir() string {
	return "/etc/dlogg-dashboard"
}

func GetDataDir() string {
	return "/var/lib/dlogg-dashboard"
}

// EnsureDirs creates the config and data directories. Called by the
// binaries on startup rather than from init so importing this package has
// no side effects in tests.
func EnsureDirs() error {
	dirs := []string{
		GetConfigDir(),
		GetDataDir(),
	}

	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("create %s: %w", dir, err)
			}
		}
	}
	return nil
}
