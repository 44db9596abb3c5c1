// Package lockfile emits and consumes a canonical JSON snapshot of a
// DependencyMap, and computes the delta between a lock file and the
// current environment as a resolve.Plan the executor can enact.
package lockfile

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pipaudit/pipaudit/internal/conflict"
	"github.com/pipaudit/pipaudit/internal/graph"
	"github.com/pipaudit/pipaudit/internal/resolve"
	"github.com/pipaudit/pipaudit/internal/version"
)

const schemaVersion = 1

// Entry is one locked package.
type Entry struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
}

// File is the canonical lock document.
type File struct {
	SchemaVersion int     `json:"schema_version"`
	GeneratedAt   string  `json:"generated_at"`
	Entries       []Entry `json:"entries"`
}

// Lock traverses m and produces a File with entries sorted by
// normalized name, each carrying the raw specifier strings of its
// outbound edges. generatedAt must already be formatted as ISO-8601
// UTC (time.Now().UTC().Format(time.RFC3339) by the caller) — this
// package never reads the clock directly, matching the rule that the
// core is not environment-sensitive on its own.
func Lock(m graph.DependencyMap, generatedAt string) File {
	names := m.Names()
	entries := make([]Entry, 0, len(names))

	for _, name := range names {
		node := m[name]

		deps := make(map[string]string, len(node.Dependencies))
		for depName, set := range node.Dependencies {
			deps[depName] = set.String()
		}

		entries = append(entries, Entry{
			Name:         name,
			Version:      node.InstalledVersion.String(),
			Dependencies: deps,
		})
	}

	return File{
		SchemaVersion: schemaVersion,
		GeneratedAt:   generatedAt,
		Entries:       entries,
	}
}

// Marshal renders f as canonical JSON: struct fields in their fixed
// declaration order, map keys (each entry's dependencies) sorted by
// Go's encoding/json, UTF-8, two-space indent, single trailing
// newline, no carriage returns.
func Marshal(f File) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	if err := enc.Encode(f); err != nil {
		return nil, fmt.Errorf("marshaling lock file: %w", err)
	}

	return buf.Bytes(), nil
}

// Unmarshal parses data into a File.
func Unmarshal(data []byte) (File, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parsing lock file: %w", err)
	}

	return f, nil
}

// UninstallPolicy controls whether Restore's delta includes packages
// present in the current environment but absent from the lock file.
type UninstallPolicy bool

const (
	// KeepExtra leaves packages not mentioned in the lock file alone.
	KeepExtra UninstallPolicy = false
	// UninstallExtra removes packages not mentioned in the lock file.
	UninstallExtra UninstallPolicy = true
)

// Restore computes the delta between f and the current environment m
// and constructs a resolve.Plan the Executor can apply: entries whose
// version differs become version-change items; entries absent from m
// become install items whose current version is the zero Version
// (empty string, rendered as "(new)" in text reports); if policy is
// UninstallExtra, packages present in m but absent from f become items
// targeting the zero Version, which the Executor applies as "uninstall,
// no reinstall". An
// already-matching environment produces an empty Plan, satisfying the
// restore idempotence invariant.
func Restore(f File, m graph.DependencyMap, policy UninstallPolicy) resolve.Plan {
	var items []resolve.Item

	locked := make(map[string]Entry, len(f.Entries))
	for _, e := range f.Entries {
		locked[e.Name] = e
	}

	for _, e := range f.Entries {
		current := version.Version{}

		node, installed := m[e.Name]
		if installed {
			current = node.InstalledVersion
		}

		target := version.Parse(e.Version)

		if installed && version.Compare(current, target) == 0 {
			continue
		}

		items = append(items, resolve.Item{
			PackageName:    e.Name,
			CurrentVersion: current,
			TargetVersion:  target,
			Satisfies:      []conflict.Conflict{},
		})
	}

	if policy == UninstallExtra {
		for _, name := range m.Names() {
			if _, locked := locked[name]; locked {
				continue
			}

			items = append(items, resolve.Item{
				PackageName:    name,
				CurrentVersion: m[name].InstalledVersion,
				TargetVersion:  version.Version{},
				Satisfies:      []conflict.Conflict{},
			})
		}
	}

	return resolve.Plan{Items: items}
}
