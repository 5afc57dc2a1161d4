package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/adrg/xdg"

	"cron-rs/internal/cronerr"
)

// Paths holds the resolved directories the daemon creates: logs (when
// logging.output is "file") and a .tmp directory. Task default stdio paths
// are ".tmp/..." relative to the process's working directory; they do not
// read TmpDir.
type Paths struct {
	ConfigDir string
	LogsDir   string
	TmpDir    string
}

// ResolvePaths picks the directories the daemon writes to: next to the
// config file when one was given, otherwise XDG on Unix and %AppData%
// on Windows.
func ResolvePaths(configPath string) (Paths, error) {
	if configPath != "" {
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return Paths{}, cronerr.Wrap(cronerr.KindIO, "resolve config path", err)
		}
		dir := filepath.Dir(abs)
		return Paths{
			ConfigDir: dir,
			LogsDir:   filepath.Join(dir, "logs"),
			TmpDir:    filepath.Join(dir, ".tmp"),
		}, nil
	}

	var dir string
	if runtime.GOOS == "windows" {
		base := os.Getenv("AppData")
		if base == "" {
			base = xdg.ConfigHome
		}
		dir = filepath.Join(base, AppName)
	} else {
		dir = filepath.Join(xdg.ConfigHome, AppName)
	}

	return Paths{
		ConfigDir: dir,
		LogsDir:   filepath.Join(dir, "logs"),
		TmpDir:    ".tmp",
	}, nil
}

// EnsureDirs creates every directory in p that does not already exist.
func EnsureDirs(p Paths) error {
	for _, dir := range []string{p.ConfigDir, p.LogsDir, p.TmpDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
