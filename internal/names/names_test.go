package names_test

import (
	"testing"

	"github.com/pipaudit/pipaudit/internal/names"
)

func TestNormalizeCollapsesCase(t *testing.T) {
	for _, raw := range []string{"Pillow", "PILLOW", "pillow"} {
		if got := names.Normalize(raw); got != "pillow" {
			t.Errorf("Normalize(%q) = %q, want pillow", raw, got)
		}
	}
}

func TestNormalizeCollapsesSeparatorRuns(t *testing.T) {
	cases := map[string]string{
		"python_dateutil": "python-dateutil",
		"python.dateutil": "python-dateutil",
		"python-dateutil": "python-dateutil",
		"a__b--c..d":      "a-b-c-d",
	}

	for raw, want := range cases {
		if got := names.Normalize(raw); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	once := names.Normalize("Flask-SQLAlchemy")
	twice := names.Normalize(once)

	if once != twice {
		t.Errorf("expected normalization to be idempotent, got %q then %q", once, twice)
	}
}
