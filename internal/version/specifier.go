package version

import (
	"log/slog"
	"sort"
	"strings"

	pep440 "github.com/aquasecurity/go-pep440-version"
)

// wildcardMarkers are historical spellings of "no constraint" that
// must be filtered before a specifier set is ever constructed.
var wildcardMarkers = map[string]bool{
	"":    true,
	"Any": true,
}

// SpecifierSet is an ordered collection of PEP 440 specifiers combined
// by logical AND. The zero value is the empty set, which is satisfied
// by every known version.
type SpecifierSet struct {
	fragments []string // individual "<op><version>" clauses, raw
	combined  pep440.Specifiers
}

// Fragments returns the raw specifier clauses that make up the set,
// in the order they were added.
func (s SpecifierSet) Fragments() []string { return s.fragments }

// Empty reports whether the set carries no constraints.
func (s SpecifierSet) Empty() bool { return len(s.fragments) == 0 }

// String renders the set as a comma-joined specifier string, or the
// "Any" sentinel when unconstrained.
func (s SpecifierSet) String() string {
	if s.Empty() {
		return "Any"
	}

	return strings.Join(s.fragments, ",")
}

// IsWildcard reports whether raw is one of the "no constraint"
// sentinel spellings that ParseSpecifierSet filters out. Callers that
// need to distinguish "explicitly unconstrained" from "present but
// unparseable" — e.g. deciding whether to record a dependency edge at
// all — check this before calling ParseSpecifierSet.
func IsWildcard(raw string) bool {
	return wildcardMarkers[strings.TrimSpace(raw)]
}

// ParseSpecifierSet parses a comma-separated specifier string.
// Fragments equal to the wildcard sentinels ("" and "Any") are
// filtered before construction and never produce a constraint. If any
// remaining fragment fails to parse, the whole string is treated as
// unconstrained and a warning is logged — never a fatal error.
func ParseSpecifierSet(raw string, logger *slog.Logger) SpecifierSet {
	if logger == nil {
		logger = slog.Default()
	}

	var fragments []string

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if wildcardMarkers[part] {
			continue
		}

		fragments = append(fragments, part)
	}

	if len(fragments) == 0 {
		return SpecifierSet{}
	}

	combined, err := pep440.NewSpecifiers(strings.Join(fragments, ","))
	if err != nil {
		logger.Warn("ignoring unparseable specifier set",
			slog.String("raw", raw),
			slog.String("error", err.Error()),
		)

		return SpecifierSet{}
	}

	return SpecifierSet{fragments: fragments, combined: combined}
}

// Satisfies reports whether v satisfies every specifier in the set.
// An Unknown version satisfies only the empty set.
func Satisfies(v Version, set SpecifierSet) bool {
	if v.unknown {
		return set.Empty()
	}

	if set.Empty() {
		return true
	}

	return set.combined.Check(v.parsed)
}

// Intersect combines two specifier sets by concatenating their
// fragments — AND semantics, per the specification's note that no
// simplification is required for correctness.
func Intersect(a, b SpecifierSet) SpecifierSet {
	if a.Empty() {
		return b
	}

	if b.Empty() {
		return a
	}

	fragments := make([]string, 0, len(a.fragments)+len(b.fragments))
	fragments = append(fragments, a.fragments...)
	fragments = append(fragments, b.fragments...)

	combined, err := pep440.NewSpecifiers(strings.Join(fragments, ","))
	if err != nil {
		// Fragments were each individually valid when parsed; a
		// combination failure here indicates a logic error in the
		// underlying library's comma-splitting, not bad input.
		return SpecifierSet{fragments: fragments}
	}

	return SpecifierSet{fragments: fragments, combined: combined}
}

// SortDescending sorts versions highest-first in place.
func SortDescending(vs []Version) {
	sort.Slice(vs, func(i, j int) bool {
		return GreaterThan(vs[i], vs[j])
	})
}
