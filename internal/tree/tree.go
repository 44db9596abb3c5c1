// Package tree normalizes the external dependency-tree enumerator's
// JSON output — which has shipped in two incompatible shapes across
// enumerator versions — into a canonical graph.DependencyMap.
package tree

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pipaudit/pipaudit/internal/graph"
	"github.com/pipaudit/pipaudit/internal/names"
	"github.com/pipaudit/pipaudit/internal/version"
)

// element is a loosely-typed view over one top-level array entry that
// can hold either the nested or the flat shape. Both shapes are
// decoded into this struct; Normalize inspects which fields came back
// non-empty to decide which shape it is looking at, per-element.
type element struct {
	// Nested shape.
	Package      *identity `json:"package"`
	Dependencies []rawDep  `json:"dependencies"`

	// Flat shape (identity fields live at the top level).
	Key              string `json:"key"`
	PackageName      string `json:"package_name"`
	InstalledVersion string `json:"installed_version"`
}

// identity is the nested shape's embedded package identity.
type identity struct {
	Key              string `json:"key"`
	PackageName      string `json:"package_name"`
	InstalledVersion string `json:"installed_version"`
}

// rawDep is one dependency entry, tolerant of both shapes: nested
// dependency elements carry a "package" sub-object and
// "required_version"; flat ones carry key/package_name directly.
type rawDep struct {
	Package         *identity `json:"package"`
	Key             string    `json:"key"`
	PackageName     string    `json:"package_name"`
	RequiredVersion string    `json:"required_version"`
}

func (i *identity) name() string {
	if i == nil {
		return ""
	}

	if i.Key != "" {
		return i.Key
	}

	return i.PackageName
}

func (e *element) name() string {
	if e.Package != nil {
		return e.Package.name()
	}

	if e.Key != "" {
		return e.Key
	}

	return e.PackageName
}

func (e *element) installedVersion() string {
	if e.Package != nil {
		return e.Package.InstalledVersion
	}

	return e.InstalledVersion
}

func (d *rawDep) name() string {
	if d.Package != nil {
		return d.Package.name()
	}

	if d.Key != "" {
		return d.Key
	}

	return d.PackageName
}

// Normalize decodes the enumerator's JSON array into a canonical
// DependencyMap. Malformed elements are skipped with a warning; the
// pass never aborts on a single bad element.
func Normalize(data []byte, logger *slog.Logger) (graph.DependencyMap, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var elements []element
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, fmt.Errorf("decoding dependency tree: %w", err)
	}

	m := graph.New()

	for i, el := range elements {
		if err := normalizeElement(m, el, logger); err != nil {
			logger.Warn("skipping malformed tree element",
				slog.Int("index", i),
				slog.String("error", err.Error()),
			)
		}
	}

	return m, nil
}

func normalizeElement(m graph.DependencyMap, el element, logger *slog.Logger) error {
	rawName := el.name()
	if rawName == "" {
		return fmt.Errorf("element has no package identity")
	}

	name := names.Normalize(rawName)
	installed := version.Parse(el.installedVersion())

	node := m.GetOrCreate(name, installed)

	for _, dep := range el.Dependencies {
		rawDepName := dep.name()
		if rawDepName == "" {
			logger.Warn("skipping dependency with no identity", slog.String("parent", name))

			continue
		}

		depName := names.Normalize(rawDepName)

		// A wildcard requirement ("Any" or "") declares no constraint
		// at all, so it must not produce an edge — otherwise a
		// wildcard dependency on a package that happens to be missing
		// would still surface as a not_installed conflict.
		if version.IsWildcard(dep.RequiredVersion) {
			continue
		}

		set := version.ParseSpecifierSet(dep.RequiredVersion, logger)
		node.AddDependency(depName, set)

		// Referencing a name that the map doesn't yet know about is
		// not an error here — it is exactly the not_installed
		// conflict kind, detected later by the conflict package. The
		// tree normalizer's only invariant is that every node it DID
		// see gets an entry.
	}

	return nil
}
