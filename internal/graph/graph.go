// Package graph holds the canonical, already-installed dependency
// graph that the tree normalizer builds and every downstream
// component (conflict detection, resolution, locking) reads.
package graph

import (
	"sort"

	"github.com/pipaudit/pipaudit/internal/version"
)

// PackageNode is one installed distribution: its normalized name, the
// version actually installed, and the version-specifier requirements
// it declares on its own dependencies, keyed by normalized dep name.
type PackageNode struct {
	Name             string
	InstalledVersion version.Version
	Dependencies     map[string]version.SpecifierSet
}

// DependencyMap is the single owner of PackageNodes; every other
// component looks packages up by normalized name rather than holding
// direct references, which keeps the graph trivially cloneable and
// free of ownership cycles.
type DependencyMap map[string]*PackageNode

// New returns an empty DependencyMap.
func New() DependencyMap {
	return make(DependencyMap)
}

// GetOrCreate returns the node for name, creating it with the given
// installed version if absent. If a node already exists, its
// installed version is left untouched — the first-seen version wins,
// per the "duplicates from the enumerator are collapsed" invariant.
func (m DependencyMap) GetOrCreate(name string, installed version.Version) *PackageNode {
	if node, ok := m[name]; ok {
		return node
	}

	node := &PackageNode{
		Name:             name,
		InstalledVersion: installed,
		Dependencies:     make(map[string]version.SpecifierSet),
	}
	m[name] = node

	return node
}

// AddDependency merges a (dep_name -> specifier set) edge into node.
// If the dependency name was already present (e.g. the same parent
// was seen twice across merged enumerator elements), the existing and
// new specifier sets are intersected rather than overwritten.
func (node *PackageNode) AddDependency(depName string, set version.SpecifierSet) {
	if existing, ok := node.Dependencies[depName]; ok {
		node.Dependencies[depName] = version.Intersect(existing, set)

		return
	}

	node.Dependencies[depName] = set
}

// Names returns every normalized package name in the map, sorted.
func (m DependencyMap) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
