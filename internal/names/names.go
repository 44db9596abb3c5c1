// Package names normalizes Python distribution names per PEP 503:
// lowercase, with runs of "-", "_", "." folded to a single hyphen.
package names

import "strings"

// Normalize canonicalizes a distribution name so that "Pillow",
// "PILLOW", and "pillow" all collapse to the same key.
func Normalize(name string) string {
	name = strings.ToLower(name)

	var b strings.Builder

	prevHyphen := false

	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '-', '_', '.':
			if !prevHyphen {
				b.WriteByte('-')
				prevHyphen = true
			}
		default:
			b.WriteByte(name[i])
			prevHyphen = false
		}
	}

	return b.String()
}
