// Package xdgpath resolves and creates the host's configuration file,
// following the same tzrikka/xdg-backed pattern as the teacher's
// cmd/timpani/main.go.
package xdgpath

import (
	"fmt"

	"github.com/tzrikka/xdg"
)

// EnsureConfigFile returns the path to appName/fileName under the user's
// XDG config home, creating the directory and an empty file there (with
// xdg's own restrictive permissions) if neither exists yet.
func EnsureConfigFile(appName, fileName string) (string, error) {
	path, err := xdg.CreateFile(xdg.ConfigHome, appName, fileName)
	if err != nil {
		return "", fmt.Errorf("xdgpath: failed to create config file %s/%s: %w", appName, fileName, err)
	}
	return path, nil
}
