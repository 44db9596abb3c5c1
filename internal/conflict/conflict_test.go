package conflict_test

import (
	"testing"

	"github.com/pipaudit/pipaudit/internal/conflict"
	"github.com/pipaudit/pipaudit/internal/graph"
	"github.com/pipaudit/pipaudit/internal/version"
)

func mustSet(raw string) version.SpecifierSet {
	return version.ParseSpecifierSet(raw, nil)
}

func TestDetectVersionMismatch(t *testing.T) {
	m := graph.New()

	a := m.GetOrCreate("a", version.Parse("1.0"))
	a.AddDependency("requests", mustSet(">=2.28.0"))

	m.GetOrCreate("requests", version.Parse("2.26.0"))

	conflicts := conflict.Detect(m)
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}

	if conflicts[0].Kind != conflict.VersionMismatch {
		t.Errorf("expected VersionMismatch, got %v", conflicts[0].Kind)
	}

	if conflicts[0].DepName != "requests" {
		t.Errorf("expected dep name requests, got %s", conflicts[0].DepName)
	}
}

func TestDetectNotInstalled(t *testing.T) {
	m := graph.New()

	a := m.GetOrCreate("a", version.Parse("1.0"))
	a.AddDependency("ghost", mustSet(">=1.0"))

	conflicts := conflict.Detect(m)
	if len(conflicts) != 1 || conflicts[0].Kind != conflict.NotInstalled {
		t.Fatalf("expected a single not_installed conflict, got %+v", conflicts)
	}
}

func TestDetectUnparseableVersion(t *testing.T) {
	m := graph.New()

	a := m.GetOrCreate("a", version.Parse("1.0"))
	a.AddDependency("weird", mustSet(">=1.0"))

	m.GetOrCreate("weird", version.Parse("not-a-version"))

	conflicts := conflict.Detect(m)
	if len(conflicts) != 1 || conflicts[0].Kind != conflict.UnparseableVersion {
		t.Fatalf("expected a single unparseable_version conflict, got %+v", conflicts)
	}
}

func TestDetectSatisfiedProducesNoConflict(t *testing.T) {
	m := graph.New()

	a := m.GetOrCreate("a", version.Parse("1.0"))
	a.AddDependency("requests", mustSet(">=2.0"))

	m.GetOrCreate("requests", version.Parse("2.5.0"))

	if conflicts := conflict.Detect(m); len(conflicts) != 0 {
		t.Fatalf("expected no conflicts, got %+v", conflicts)
	}
}

func TestDetectWildcardNeverConflicts(t *testing.T) {
	m := graph.New()

	a := m.GetOrCreate("a", version.Parse("1.0"))
	a.AddDependency("anything", mustSet("Any"))

	m.GetOrCreate("anything", version.Parse("0.0.1"))

	if conflicts := conflict.Detect(m); len(conflicts) != 0 {
		t.Fatalf("expected no conflicts for wildcard spec, got %+v", conflicts)
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	m := graph.New()

	b := m.GetOrCreate("b", version.Parse("1.0"))
	b.AddDependency("x", mustSet(">=9.0"))

	a := m.GetOrCreate("a", version.Parse("1.0"))
	a.AddDependency("x", mustSet(">=9.0"))
	a.AddDependency("y", mustSet(">=9.0"))

	m.GetOrCreate("x", version.Parse("1.0"))
	m.GetOrCreate("y", version.Parse("1.0"))

	first := conflict.Detect(m)
	second := conflict.Detect(m)

	if len(first) != len(second) {
		t.Fatalf("nondeterministic conflict count: %d vs %d", len(first), len(second))
	}

	for i := range first {
		if first[i].ParentName != second[i].ParentName || first[i].DepName != second[i].DepName {
			t.Fatalf("nondeterministic ordering at index %d: %+v vs %+v", i, first[i], second[i])
		}
	}

	// Parent "a" sorts before "b".
	if first[0].ParentName != "a" {
		t.Errorf("expected first conflict's parent to be 'a', got %s", first[0].ParentName)
	}
}
