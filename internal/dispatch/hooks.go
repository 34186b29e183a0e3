package dispatch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// HookManifestFile is the manifest name looked for in each hook directory.
const HookManifestFile = "hook.json"

// HookManifest describes an external hook executable.
type HookManifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	// Commands limits the commands forwarded to the hook. Empty accepts all.
	Commands []string        `json:"commands"`
	Config   json.RawMessage `json:"config,omitempty"`
}

// Hook is a discovered hook with its manifest and location.
type Hook struct {
	Manifest   HookManifest
	Path       string
	Executable string
}

// Accepts reports whether the hook wants the command.
func (h *Hook) Accepts(command string) bool {
	if len(h.Manifest.Commands) == 0 {
		return true
	}
	for _, c := range h.Manifest.Commands {
		if c == command {
			return true
		}
	}
	return false
}

// DiscoverHooks scans dir for subdirectories containing a hook.json manifest.
// A missing directory yields no hooks. Unreadable or invalid manifests are
// skipped. Hooks are returned sorted by name.
func DiscoverHooks(dir string) ([]*Hook, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("hook path %s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var hooks []*Hook
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		hookPath := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(filepath.Join(hookPath, HookManifestFile))
		if err != nil {
			continue
		}

		var manifest HookManifest
		if err := json.Unmarshal(data, &manifest); err != nil || manifest.Executable == "" {
			continue
		}
		if manifest.Name == "" {
			manifest.Name = entry.Name()
		}

		hooks = append(hooks, &Hook{
			Manifest:   manifest,
			Path:       hookPath,
			Executable: filepath.Join(hookPath, manifest.Executable),
		})
	}

	sort.Slice(hooks, func(i, j int) bool {
		return hooks[i].Manifest.Name < hooks[j].Manifest.Name
	})
	return hooks, nil
}
