package tree_test

import (
	"testing"

	"github.com/pipaudit/pipaudit/internal/conflict"
	"github.com/pipaudit/pipaudit/internal/tree"
	"github.com/pipaudit/pipaudit/internal/version"
)

func TestNormalizeNestedShape(t *testing.T) {
	data := []byte(`[
		{
			"package": {"key": "flask", "installed_version": "2.0.0"},
			"dependencies": [
				{"package": {"key": "werkzeug"}, "required_version": ">=2.0"}
			]
		},
		{
			"package": {"key": "werkzeug", "installed_version": "1.0.1"},
			"dependencies": []
		}
	]`)

	m, err := tree.Normalize(data, nil)
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}

	flask, ok := m["flask"]
	if !ok {
		t.Fatal("expected node for flask")
	}

	if flask.InstalledVersion.String() != "2.0.0" {
		t.Errorf("flask installed version = %q, want 2.0.0", flask.InstalledVersion.String())
	}

	set, ok := flask.Dependencies["werkzeug"]
	if !ok {
		t.Fatal("expected flask to depend on werkzeug")
	}

	if !version.Satisfies(version.Parse("2.0.0"), set) {
		t.Error("expected werkzeug spec >=2.0 to be satisfied by 2.0.0")
	}
}

func TestNormalizeFlatShape(t *testing.T) {
	data := []byte(`[
		{
			"key": "requests",
			"installed_version": "2.26.0",
			"dependencies": [
				{"key": "urllib3", "required_version": "<1.27,>=1.21.1"}
			]
		}
	]`)

	m, err := tree.Normalize(data, nil)
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}

	requests, ok := m["requests"]
	if !ok {
		t.Fatal("expected node for requests")
	}

	if len(requests.Dependencies) != 1 {
		t.Fatalf("expected 1 dependency, got %d", len(requests.Dependencies))
	}
}

func TestNormalizeMixedShapes(t *testing.T) {
	data := []byte(`[
		{"package": {"key": "a", "installed_version": "1.0"}, "dependencies": []},
		{"key": "b", "installed_version": "2.0", "dependencies": []}
	]`)

	m, err := tree.Normalize(data, nil)
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}

	if len(m) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(m))
	}
}

func TestNormalizeSkipsWildcardSpecifierEdgesEntirely(t *testing.T) {
	data := []byte(`[
		{
			"package": {"key": "a", "installed_version": "1.0"},
			"dependencies": [
				{"package": {"key": "b"}, "required_version": "Any"},
				{"package": {"key": "c"}, "required_version": ""}
			]
		}
	]`)

	m, err := tree.Normalize(data, nil)
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}

	a := m["a"]

	if len(a.Dependencies) != 0 {
		t.Errorf("expected wildcard requirements to produce no edges at all, got %+v", a.Dependencies)
	}
}

func TestNormalizeWildcardDependencyOnMissingPackageNeverConflicts(t *testing.T) {
	data := []byte(`[
		{
			"package": {"key": "a", "installed_version": "1.0"},
			"dependencies": [
				{"package": {"key": "never-installed"}, "required_version": "Any"}
			]
		}
	]`)

	m, err := tree.Normalize(data, nil)
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}

	if conflicts := conflict.Detect(m); len(conflicts) != 0 {
		t.Errorf("expected a wildcard edge to a missing package to never conflict, got %+v", conflicts)
	}
}

func TestNormalizeNameCollapsesDuplicates(t *testing.T) {
	data := []byte(`[
		{"package": {"key": "Python_DateUtil", "installed_version": "1.0"}, "dependencies": []},
		{"package": {"key": "python.dateutil", "installed_version": "2.0"}, "dependencies": []},
		{"package": {"key": "python-dateutil", "installed_version": "2.1"}, "dependencies": []}
	]`)

	m, err := tree.Normalize(data, nil)
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}

	if len(m) != 1 {
		t.Fatalf("expected a single collapsed node, got %d", len(m))
	}

	dateutil, ok := m["python-dateutil"]
	if !ok {
		t.Fatal("expected node keyed by normalized name 'python-dateutil'")
	}

	if dateutil.InstalledVersion.String() != "1.0" {
		t.Errorf("expected first-seen version 1.0 to win, got %s", dateutil.InstalledVersion.String())
	}
}

func TestNormalizeSkipsMalformedElement(t *testing.T) {
	data := []byte(`[
		{"dependencies": []},
		{"package": {"key": "a", "installed_version": "1.0"}, "dependencies": []}
	]`)

	m, err := tree.Normalize(data, nil)
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}

	if len(m) != 1 {
		t.Fatalf("expected malformed element to be skipped, got %d nodes", len(m))
	}
}

func TestNormalizeInvalidJSON(t *testing.T) {
	_, err := tree.Normalize([]byte(`not json`), nil)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
