// Package version implements the PEP 440 version and specifier algebra
// that every other component builds on: parsing, ordered comparison,
// and specifier-set satisfaction.
package version

import (
	"regexp"
	"strconv"

	pep440 "github.com/aquasecurity/go-pep440-version"
)

// Version is a parsed PEP 440 release identifier, or the Unknown
// sentinel for strings that don't conform.
type Version struct {
	raw     string
	parsed  pep440.Version
	unknown bool
}

// Unknown reports whether v failed to parse as a PEP 440 version.
// An Unknown version never satisfies a non-empty SpecifierSet.
func (v Version) Unknown() bool { return v.unknown }

// String returns the original, unparsed version string.
func (v Version) String() string { return v.raw }

// IsPreRelease reports whether v is a pre-release. Unknown versions
// are never considered pre-releases.
func (v Version) IsPreRelease() bool {
	if v.unknown {
		return false
	}

	return v.parsed.IsPreRelease()
}

// Parse parses s as a PEP 440 version. Non-conforming strings never
// return an error; they yield the Unknown sentinel instead, per the
// lenient parsing contract.
func Parse(s string) Version {
	p, err := pep440.Parse(s)
	if err != nil {
		return Version{raw: s, unknown: true}
	}

	return Version{raw: s, parsed: p}
}

// Compare orders two versions. Unknown versions compare equal to each
// other and less than every known version, so they sort to one end
// deterministically rather than panicking.
func Compare(a, b Version) int {
	switch {
	case a.unknown && b.unknown:
		return 0
	case a.unknown:
		return -1
	case b.unknown:
		return 1
	default:
		return a.parsed.Compare(b.parsed)
	}
}

// GreaterThan reports whether a sorts strictly after b.
func GreaterThan(a, b Version) bool { return Compare(a, b) > 0 }

var (
	releaseSegmentRe = regexp.MustCompile(`\d+`)
	releasePartRe    = regexp.MustCompile(`^\s*[vV]?(?:\d+!)?(\d+(?:\.\d+)*)`)
)

// releaseSegments extracts up to three leading numeric release
// segments (major, minor, patch) from a version string, defaulting
// missing segments to zero. Used only for the resolver's "minimize
// change" distance metric, not for comparison or satisfaction.
func releaseSegments(v Version) [3]int {
	var segs [3]int

	release := ""
	if m := releasePartRe.FindStringSubmatch(v.raw); m != nil {
		release = m[1]
	}

	matches := releaseSegmentRe.FindAllString(release, 3)
	for i, m := range matches {
		n, err := strconv.Atoi(m)
		if err != nil {
			continue
		}

		segs[i] = n
	}

	return segs
}

// Distance computes the resolver's change-minimization metric between
// two versions: (major_diff * 10^6) + (minor_diff * 10^3) + patch_diff,
// per the ranking rule in the resolver specification.
func Distance(a, b Version) int64 {
	sa, sb := releaseSegments(a), releaseSegments(b)

	abs := func(x int) int64 {
		if x < 0 {
			return int64(-x)
		}

		return int64(x)
	}

	majorDiff := abs(sa[0] - sb[0])
	minorDiff := abs(sa[1] - sb[1])
	patchDiff := abs(sa[2] - sb[2])

	return majorDiff*1_000_000 + minorDiff*1_000 + patchDiff
}
