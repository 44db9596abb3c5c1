package version_test

import (
	"testing"

	"github.com/pipaudit/pipaudit/internal/version"
)

func TestParseUnknownSentinel(t *testing.T) {
	v := version.Parse("not-a-version")

	if !v.Unknown() {
		t.Fatal("expected an unparseable string to yield the Unknown sentinel")
	}

	if v.String() != "not-a-version" {
		t.Errorf("expected String() to preserve the original input, got %q", v.String())
	}
}

func TestParseKnownVersion(t *testing.T) {
	v := version.Parse("1.2.3")

	if v.Unknown() {
		t.Fatal("expected 1.2.3 to parse")
	}
}

func TestCompareUnknownVersionsSortToOneEnd(t *testing.T) {
	unknown := version.Parse("???")
	known := version.Parse("1.0.0")

	if version.Compare(unknown, unknown) != 0 {
		t.Error("expected two Unknown versions to compare equal")
	}

	if !(version.Compare(unknown, known) < 0) {
		t.Error("expected Unknown to sort before any known version")
	}
}

func TestCompareOrdersReleases(t *testing.T) {
	if !version.GreaterThan(version.Parse("2.0.0"), version.Parse("1.9.9")) {
		t.Error("expected 2.0.0 > 1.9.9")
	}

	if version.GreaterThan(version.Parse("1.0.0"), version.Parse("1.0.0")) {
		t.Error("expected 1.0.0 is not greater than itself")
	}
}

func TestDistanceMeasuresMajorMinorPatch(t *testing.T) {
	got := version.Distance(version.Parse("1.2.3"), version.Parse("2.3.4"))

	want := int64(1*1_000_000 + 1*1_000 + 1)
	if got != want {
		t.Errorf("Distance(1.2.3, 2.3.4) = %d, want %d", got, want)
	}
}

func TestDistancePatchCheaperThanMinorCheaperThanMajor(t *testing.T) {
	patch := version.Distance(version.Parse("1.0.0"), version.Parse("1.0.1"))
	minor := version.Distance(version.Parse("1.0.0"), version.Parse("1.1.0"))
	major := version.Distance(version.Parse("1.0.0"), version.Parse("2.0.0"))

	if !(patch < minor && minor < major) {
		t.Errorf("expected patch < minor < major, got patch=%d minor=%d major=%d", patch, minor, major)
	}
}

func TestSortDescending(t *testing.T) {
	vs := []version.Version{
		version.Parse("1.0.0"),
		version.Parse("3.0.0"),
		version.Parse("2.0.0"),
	}

	version.SortDescending(vs)

	if vs[0].String() != "3.0.0" || vs[1].String() != "2.0.0" || vs[2].String() != "1.0.0" {
		t.Errorf("expected descending order, got %v", vs)
	}
}
