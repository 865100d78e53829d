// Package xdg resolves XDG Base Directory paths for querypilot.
// The config directory holds config.json; the state directory holds the
// on-disk retrieval index. Both are created private (0700) on first use.
//
// QUERYPILOT_HOME overrides both bases, which keeps containers and tests
// away from the real home directory.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "querypilot"

// ConfigDir returns the XDG config directory for querypilot.
// It falls back to ~/.config/querypilot when XDG_CONFIG_HOME is unset.
func ConfigDir() (string, error) {
	return resolve("XDG_CONFIG_HOME", ".config", "config")
}

// StateDir returns the XDG state directory for querypilot.
// It falls back to ~/.local/state/querypilot when XDG_STATE_HOME is unset.
func StateDir() (string, error) {
	return resolve("XDG_STATE_HOME", filepath.Join(".local", "state"), "state")
}

func resolve(envKey, homeRel, homeSub string) (string, error) {
	var dir string
	if root := os.Getenv("QUERYPILOT_HOME"); root != "" {
		dir = filepath.Join(root, homeSub)
	} else {
		base := os.Getenv(envKey)
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			base = filepath.Join(home, homeRel)
		}
		dir = filepath.Join(base, appName)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil { // private dir
		return "", err
	}
	return dir, nil
}
