package version_test

import (
	"testing"

	"github.com/pipaudit/pipaudit/internal/version"
)

func TestParseSpecifierSetFiltersWildcards(t *testing.T) {
	for _, raw := range []string{"", "Any"} {
		set := version.ParseSpecifierSet(raw, nil)

		if !set.Empty() {
			t.Errorf("expected %q to produce the empty set, got %v", raw, set.Fragments())
		}
	}
}

func TestEmptySetSatisfiesEveryKnownVersion(t *testing.T) {
	set := version.ParseSpecifierSet("", nil)

	for _, raw := range []string{"1.0.0", "0.0.1", "9.9.9"} {
		if !version.Satisfies(version.Parse(raw), set) {
			t.Errorf("expected the empty set to satisfy %s", raw)
		}
	}
}

func TestUnknownVersionOnlySatisfiesEmptySet(t *testing.T) {
	unknown := version.Parse("garbage-version-string")

	if !version.Satisfies(unknown, version.ParseSpecifierSet("", nil)) {
		t.Error("expected an Unknown version to satisfy the empty set")
	}

	if version.Satisfies(unknown, version.ParseSpecifierSet(">=1.0", nil)) {
		t.Error("expected an Unknown version to never satisfy a non-empty set")
	}
}

func TestSatisfiesBasicComparisons(t *testing.T) {
	cases := []struct {
		version string
		spec    string
		want    bool
	}{
		{"2.0.0", ">=1.0.0", true},
		{"0.9.0", ">=1.0.0", false},
		{"1.0.0", "==1.0.0", true},
		{"1.0.1", "==1.0.0", false},
		{"1.0.0", "!=1.0.0", false},
		{"1.5.0", "<2.0.0,>=1.0.0", true},
		{"2.5.0", "<2.0.0,>=1.0.0", false},
	}

	for _, c := range cases {
		set := version.ParseSpecifierSet(c.spec, nil)
		got := version.Satisfies(version.Parse(c.version), set)

		if got != c.want {
			t.Errorf("Satisfies(%s, %s) = %v, want %v", c.version, c.spec, got, c.want)
		}
	}
}

func TestCompatibleReleaseOperator(t *testing.T) {
	set := version.ParseSpecifierSet("~=2.2", nil)

	if !version.Satisfies(version.Parse("2.3.0"), set) {
		t.Error("expected ~=2.2 to allow 2.3.0")
	}

	if version.Satisfies(version.Parse("3.0.0"), set) {
		t.Error("expected ~=2.2 to exclude 3.0.0")
	}
}

func TestIntersectNarrowsSatisfaction(t *testing.T) {
	a := version.ParseSpecifierSet(">=1.0.0", nil)
	b := version.ParseSpecifierSet("<2.0.0", nil)

	combined := version.Intersect(a, b)

	if !version.Satisfies(version.Parse("1.5.0"), combined) {
		t.Error("expected 1.5.0 to satisfy the intersection of >=1.0.0 and <2.0.0")
	}

	if version.Satisfies(version.Parse("2.5.0"), combined) {
		t.Error("expected 2.5.0 to violate the intersection's upper bound")
	}
}

func TestIntersectWithEmptySetReturnsOther(t *testing.T) {
	a := version.ParseSpecifierSet("", nil)
	b := version.ParseSpecifierSet(">=1.0.0", nil)

	if got := version.Intersect(a, b).String(); got != b.String() {
		t.Errorf("expected intersecting with the empty set to return the other set, got %s", got)
	}
}

func TestParseSpecifierSetUnparseableFragmentIsUnconstrained(t *testing.T) {
	set := version.ParseSpecifierSet("not a specifier", nil)

	if !set.Empty() {
		t.Errorf("expected an unparseable specifier string to fall back to the empty set, got %v", set.Fragments())
	}
}

func TestSpecifierSetStringRendersWildcardAsAny(t *testing.T) {
	if got := version.ParseSpecifierSet("", nil).String(); got != "Any" {
		t.Errorf("expected empty set to render as Any, got %q", got)
	}
}
