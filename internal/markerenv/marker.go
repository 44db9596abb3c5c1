package markerenv

import (
	"regexp"
	"strings"

	pep440 "github.com/aquasecurity/go-pep440-version"
)

// Requirement is a parsed PEP 508 dependency line, e.g. from a
// requires_dist entry: name, version specifier, and environment
// marker, each left unparsed for the caller to hand to version.ParseSpecifierSet
// and EvalMarker respectively.
type Requirement struct {
	Name      string
	Specifier string
	Marker    string
}

// ParseRequirement parses a PEP 508 requirement string. Supported
// shapes:
//
//	"flask"
//	"flask>=3.0"
//	"flask>=3.0,<4.0"
//	"flask (>=3.0)"
//	"importlib-metadata>=3.6.0; python_version < \"3.10\""
//
// The returned Name is not normalized; callers that need a canonical
// key should run it through names.Normalize.
func ParseRequirement(s string) Requirement {
	marker := ""

	parts := strings.SplitN(s, ";", 2)
	nameSpec := strings.TrimSpace(parts[0])

	if len(parts) > 1 {
		marker = strings.TrimSpace(parts[1])
	}

	// Strip extras: package[extra1,extra2]
	if idx := strings.Index(nameSpec, "["); idx >= 0 {
		if endIdx := strings.Index(nameSpec, "]"); endIdx > idx {
			nameSpec = nameSpec[:idx] + nameSpec[endIdx+1:]
		}
	}

	// Strip parenthesized specifier: package (>=1.0)
	nameSpec = strings.NewReplacer("(", "", ")", "").Replace(nameSpec)
	nameSpec = strings.TrimSpace(nameSpec)

	specStart := strings.IndexAny(nameSpec, "><=!~")
	name := nameSpec
	specifier := ""

	if specStart >= 0 {
		name = strings.TrimSpace(nameSpec[:specStart])
		specifier = strings.TrimSpace(nameSpec[specStart:])
	}

	return Requirement{Name: name, Specifier: specifier, Marker: marker}
}

// EvalMarker evaluates a PEP 508 environment marker against env.
// Returns true for empty markers and for terms this evaluator
// cannot parse confidently — erring toward inclusion rather than
// silently dropping edges. The exception is any marker that mentions
// "extra": it always evaluates false.
func EvalMarker(marker string, env Env) bool {
	marker = strings.TrimSpace(marker)
	if marker == "" {
		return true
	}

	// extra markers (package[foo]) need the consumer's requested
	// extras, which this core does not track; skip them.
	if strings.Contains(marker, "extra") {
		return false
	}

	for _, orGroup := range splitOutside(marker, " or ") {
		allTrue := true

		for _, term := range splitOutside(strings.TrimSpace(orGroup), " and ") {
			if !evalTerm(strings.TrimSpace(term), env) {
				allTrue = false

				break
			}
		}

		if allTrue {
			return true
		}
	}

	return false
}

var markerTermRe = regexp.MustCompile(
	`^\s*([\w.]+|"[^"]*"|'[^']*')\s*(>=|<=|!=|==|~=|>|<|not\s+in|in)\s*([\w.]+|"[^"]*"|'[^']*')\s*$`,
)

func evalTerm(term string, env Env) bool {
	m := markerTermRe.FindStringSubmatch(term)
	if m == nil {
		return true
	}

	left := resolveValue(m[1], env)
	op := m[2]
	right := resolveValue(m[3], env)

	lVar := unquote(m[1])
	if isVersionVariable(lVar) || isVersionVariable(unquote(m[3])) {
		return compareVersionMarker(left, op, right)
	}

	return compareStringMarker(left, op, right)
}

func resolveValue(token string, env Env) string {
	token = unquote(token)

	switch token {
	case "python_version", "python_full_version":
		return env.PythonVersion
	case "sys_platform":
		return env.SysPlatform
	case "os_name":
		return env.OsName
	default:
		return token
	}
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}

	return s
}

func isVersionVariable(name string) bool {
	return name == "python_version" || name == "python_full_version"
}

func compareVersionMarker(left, op, right string) bool {
	lv, err1 := pep440.Parse(left)
	rv, err2 := pep440.Parse(right)

	if err1 != nil || err2 != nil {
		return compareStringMarker(left, op, right)
	}

	cmp := lv.Compare(rv)

	switch op {
	case ">=":
		return cmp >= 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case "<":
		return cmp < 0
	case "==":
		return cmp == 0
	case "!=":
		return cmp != 0
	case "~=":
		return cmp >= 0
	default:
		return false
	}
}

func compareStringMarker(left, op, right string) bool {
	switch op {
	case "==":
		return left == right
	case "!=":
		return left != right
	case "in":
		return strings.Contains(right, left)
	case "not in":
		return !strings.Contains(right, left)
	default:
		return left == right
	}
}

// splitOutside splits s on sep, ignoring occurrences inside
// parentheses or quotes. Used for the marker grammar's "and"/"or".
func splitOutside(s, sep string) []string {
	var parts []string

	depth := 0
	inQuote := byte(0)
	start := 0

	for i := 0; i < len(s); i++ {
		switch {
		case inQuote != 0:
			if s[i] == inQuote {
				inQuote = 0
			}
		case s[i] == '"' || s[i] == '\'':
			inQuote = s[i]
		case s[i] == '(':
			depth++
		case s[i] == ')':
			depth--
		case depth == 0 && i+len(sep) <= len(s) && s[i:i+len(sep)] == sep:
			parts = append(parts, s[start:i])
			start = i + len(sep)
			i += len(sep) - 1
		}
	}

	parts = append(parts, s[start:])

	return parts
}
