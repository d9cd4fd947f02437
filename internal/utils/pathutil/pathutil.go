package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath resolves environment variables and a leading "~" to the user's
// home directory. "~user" forms are left untouched.
func ExpandPath(path string) (string, error) {
	path = os.ExpandEnv(strings.TrimSpace(path))

	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}

	if path == "" {
		return "", nil
	}

	return filepath.Clean(path), nil
}
