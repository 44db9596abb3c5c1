// Package conflict walks a graph.DependencyMap and decides, for every
// (parent, dependency) edge, whether the installed dependency version
// satisfies the parent's declared specifier set.
package conflict

import (
	"sort"

	"github.com/pipaudit/pipaudit/internal/graph"
	"github.com/pipaudit/pipaudit/internal/version"
)

// Kind classifies why an edge was flagged.
type Kind int

const (
	// VersionMismatch means the dependency is installed, but at a
	// version that doesn't satisfy the parent's specifier set.
	VersionMismatch Kind = iota
	// NotInstalled means the dependency has no node in the map at all.
	NotInstalled
	// UnparseableVersion means the dependency's installed version
	// string did not conform to PEP 440.
	UnparseableVersion
)

// String renders a Kind for reports and log messages.
func (k Kind) String() string {
	switch k {
	case VersionMismatch:
		return "version_mismatch"
	case NotInstalled:
		return "not_installed"
	case UnparseableVersion:
		return "unparseable_version"
	default:
		return "unknown"
	}
}

// Conflict records one edge that failed to satisfy its parent's
// requirement.
type Conflict struct {
	ParentName       string
	ParentVersion    version.Version
	DepName          string
	InstalledVersion version.Version // zero value when Kind == NotInstalled
	Required         version.SpecifierSet
	Kind             Kind
}

// Detect walks every (parent, dep) edge in m and returns the
// conflicts found, sorted by parent name then dependency name for
// deterministic, byte-identical reports across runs.
func Detect(m graph.DependencyMap) []Conflict {
	var conflicts []Conflict

	for _, parentName := range m.Names() {
		parent := m[parentName]

		depNames := make([]string, 0, len(parent.Dependencies))
		for depName := range parent.Dependencies {
			depNames = append(depNames, depName)
		}

		sort.Strings(depNames)

		for _, depName := range depNames {
			required := parent.Dependencies[depName]

			if c, ok := detectEdge(parent, depName, required, m); ok {
				conflicts = append(conflicts, c)
			}
		}
	}

	return conflicts
}

func detectEdge(parent *graph.PackageNode, depName string, required version.SpecifierSet, m graph.DependencyMap) (Conflict, bool) {
	base := Conflict{
		ParentName:    parent.Name,
		ParentVersion: parent.InstalledVersion,
		DepName:       depName,
		Required:      required,
	}

	dep, installed := m[depName]
	if !installed {
		base.Kind = NotInstalled

		return base, true
	}

	if dep.InstalledVersion.Unknown() {
		base.Kind = UnparseableVersion
		base.InstalledVersion = dep.InstalledVersion

		return base, true
	}

	base.InstalledVersion = dep.InstalledVersion

	if version.Satisfies(dep.InstalledVersion, required) {
		return Conflict{}, false
	}

	base.Kind = VersionMismatch

	return base, true
}
