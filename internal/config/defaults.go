package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "stenotouch"

// PlatformDataDir returns the platform-specific data directory, or
// STENOTOUCH_DATA_DIR when set.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/stenotouch/
//   - Linux:   ~/.local/share/stenotouch/
//   - Windows: %APPDATA%\stenotouch\
func PlatformDataDir() string {
	if dir := os.Getenv("STENOTOUCH_DATA_DIR"); dir != "" {
		return dir
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", appName)
	case "windows":
		return windowsAppData()
	default:
		return xdgDir("XDG_DATA_HOME", ".local", "share")
	}
}

// PlatformConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/stenotouch/
//   - Linux:   ~/.config/stenotouch/
//   - Windows: %APPDATA%\stenotouch\
func PlatformConfigDir() string {
	if dir := os.Getenv("STENOTOUCH_CONFIG_DIR"); dir != "" {
		return dir
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", appName)
	case "windows":
		return windowsAppData()
	default:
		return xdgDir("XDG_CONFIG_HOME", ".config")
	}
}

// PlatformLogDir returns the platform-specific log directory.
//
// Platform paths:
//   - macOS:   ~/Library/Logs/stenotouch/
//   - Linux:   ~/.local/state/stenotouch/
//   - Windows: %LOCALAPPDATA%\stenotouch\logs\
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Logs", appName)
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, appName, "logs")
		}
		return filepath.Join(homeDir(), "AppData", "Local", appName, "logs")
	default:
		return xdgDir("XDG_STATE_HOME", ".local", "state")
	}
}

// PlatformRuntimeDir returns the directory for the instance lock file.
func PlatformRuntimeDir() string {
	if runtime.GOOS == "linux" {
		if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
			return filepath.Join(dir, appName)
		}
	}
	return filepath.Join(os.TempDir(), appName)
}

func homeDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return home
}

// xdgDir follows the XDG Base Directory Specification: env if set,
// otherwise ~/<fallback...>.
func xdgDir(env string, fallback ...string) string {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, appName)
	}
	parts := append([]string{homeDir()}, fallback...)
	return filepath.Join(append(parts, appName)...)
}

func windowsAppData() string {
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, appName)
	}
	return filepath.Join(homeDir(), "AppData", "Roaming", appName)
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{"toml", "json", "yaml", "yml"}
}

// FindConfigFile searches for a config file in standard locations.
// Returns the path to the first found config file, or empty string if none found.
func FindConfigFile() string {
	for _, dir := range []string{".", PlatformConfigDir()} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
