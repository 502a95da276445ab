// conf/utils.go helper functions for locating configuration files
package conf

import (
	"os"
	"path/filepath"
	"runtime"
)

// GetDefaultConfigPaths returns the directories searched for config.yaml, in order:
// the working directory, then the per-user and system-wide locations.
func GetDefaultConfigPaths() []string {
	paths := []string{"."}

	if homeDir, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "windows" {
			paths = append(paths, filepath.Join(homeDir, "AppData", "Roaming", "gwpe"))
		} else {
			paths = append(paths, filepath.Join(homeDir, ".config", "gwpe"))
		}
	}
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/gwpe")
	}
	return paths
}

// OutputPath returns <outdir>/<label><suffix>.
func (s *Settings) OutputPath(suffix string) string {
	return filepath.Join(s.Main.Outdir, s.Main.Label+suffix)
}
