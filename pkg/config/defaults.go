package config

import "path/filepath"

// defaultEnvFiles is the .env search path, mirroring config.py's
// _load_from_env candidates: cwd, ~/.scriptsmith, /etc/scriptsmith.
func defaultEnvFiles() []string {
	home := defaultHome()
	return []string{
		".env",
		filepath.Join(home, ".scriptsmith", ".env"),
		filepath.Join("/etc", "scriptsmith", ".env"),
	}
}

// defaultConfigLocations is the YAML config search path, mirroring
// config.py's _load_from_default_locations candidates.
func defaultConfigLocations() []string {
	home := defaultHome()
	return []string{
		"scriptsmith.yaml",
		"scriptsmith.yml",
		filepath.Join("config", "scriptsmith.yaml"),
		filepath.Join("config", "scriptsmith.yml"),
		filepath.Join(home, ".scriptsmith", "config.yaml"),
		filepath.Join(home, ".scriptsmith", "config.yml"),
		filepath.Join("/etc", "scriptsmith", "config.yaml"),
		filepath.Join("/etc", "scriptsmith", "config.yml"),
	}
}
