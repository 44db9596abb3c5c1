package report_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/pipaudit/pipaudit/internal/conflict"
	"github.com/pipaudit/pipaudit/internal/report"
	"github.com/pipaudit/pipaudit/internal/resolve"
	"github.com/pipaudit/pipaudit/internal/version"
)

func mustSet(raw string) version.SpecifierSet {
	return version.ParseSpecifierSet(raw, nil)
}

func sampleConflicts() []conflict.Conflict {
	return []conflict.Conflict{
		{
			ParentName:       "a",
			DepName:          "requests",
			InstalledVersion: version.Parse("2.26.0"),
			Required:         mustSet(">=2.28.0"),
			Kind:             conflict.VersionMismatch,
		},
	}
}

func samplePlan() resolve.Plan {
	return resolve.Plan{
		Items: []resolve.Item{
			{
				PackageName:    "requests",
				CurrentVersion: version.Parse("2.26.0"),
				TargetVersion:  version.Parse("2.32.5"),
			},
		},
	}
}

func TestBuildComputesSummary(t *testing.T) {
	doc := report.Build(sampleConflicts(), samplePlan())

	if doc.Summary.ConflictCount != 1 {
		t.Errorf("expected conflict_count 1, got %d", doc.Summary.ConflictCount)
	}

	if doc.Summary.ResolvableCount != 1 {
		t.Errorf("expected resolvable_count 1, got %d", doc.Summary.ResolvableCount)
	}
}

func TestMarshalJSONIsDeterministic(t *testing.T) {
	doc := report.Build(sampleConflicts(), samplePlan())

	first, err := report.MarshalJSON(doc)
	if err != nil {
		t.Fatalf("MarshalJSON() error: %v", err)
	}

	second, err := report.MarshalJSON(doc)
	if err != nil {
		t.Fatalf("MarshalJSON() error: %v", err)
	}

	if string(first) != string(second) {
		t.Error("expected byte-identical JSON across repeated marshals")
	}

	var parsed map[string]any
	if err := json.Unmarshal(first, &parsed); err != nil {
		t.Fatalf("report JSON is invalid: %v", err)
	}

	for _, key := range []string{"conflicts", "plan", "unsolvable", "summary"} {
		if _, ok := parsed[key]; !ok {
			t.Errorf("expected top-level key %q in report JSON", key)
		}
	}
}

func TestRenderTextIncludesPlanAndSummary(t *testing.T) {
	doc := report.Build(sampleConflicts(), samplePlan())

	text := report.RenderText(doc)

	if !strings.Contains(text, "requests") {
		t.Error("expected the rendered text to mention the affected package")
	}

	if !strings.Contains(text, "2.32.5") {
		t.Error("expected the rendered text to mention the plan's target version")
	}

	if !strings.Contains(text, "1 conflict(s), 1 resolvable") {
		t.Errorf("expected a summary line, got: %s", text)
	}
}

func TestRenderTextHandlesEmptyPlan(t *testing.T) {
	doc := report.Build(nil, resolve.Plan{})

	text := report.RenderText(doc)

	if !strings.Contains(text, "No conflicts found.") {
		t.Errorf("expected a no-conflicts message, got: %s", text)
	}

	if !strings.Contains(text, "(empty)") {
		t.Errorf("expected an empty-plan marker, got: %s", text)
	}
}
