package system

import (
	"os"
	"path/filepath"
)

const appName = "netglobe"

// ConfigDir returns the netglobe config directory path,
// creating it if it does not already exist.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(base, appName)

	if err := os.MkdirAll(dir, 0o700); err != nil { // 0o700 private to the user
		return "", err
	}

	return dir, nil
}

// CacheDir returns the directory holding the persisted geo cache.
func CacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, appName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

func DefaultDBPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName+".db"), nil
}

func DefaultConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DefaultCachePath returns the geo cache location for a backend:
// a file for json, a directory for pebble.
func DefaultCachePath(backend string) (string, error) {
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	if backend == "pebble" {
		return filepath.Join(dir, "geo-cache.pebble"), nil
	}
	return filepath.Join(dir, "geo-cache.json"), nil
}
