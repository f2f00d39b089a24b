// Package presets embeds the bundled scan presets so they ship with
// every install method (Homebrew, Docker, a bare binary download).
// config.LoadPreset resolves bare preset names against this FS, so
// "sitehawk scan -preset gentle" works without a checkout.
//
// Usage:
//
//	data, _ := presets.FS.ReadFile("gentle.yaml")
package presets

import (
	"embed"
	"strings"
)

// FS holds the bundled presets. Each file overlays the defaults and
// only states what it changes.
//
//go:embed *.yaml
var FS embed.FS

// Names returns the bundled preset names with the extension stripped,
// in lexical order.
func Names() []string {
	entries, err := FS.ReadDir(".")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	return names
}
