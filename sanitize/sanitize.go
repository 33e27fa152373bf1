// Package sanitize turns test identities into strings that are safe to use as
// file-name components on every platform the harness runs on.
package sanitize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Placeholder is substituted for every rune that isn't allowed in a name.
const Placeholder = '_'

// transliterations are folded before the generic filter so that common
// letters keep a readable spelling instead of turning into underscores.
var transliterations = map[rune]string{ //nolint:gochecknoglobals
	'ä': "ae", 'Ä': "Ae", 'ö': "oe", 'Ö': "Oe",
	'ü': "ue", 'Ü': "Ue", 'ß': "ss",
}

// Name returns name with accents removed and every rune outside
// [A-Za-z0-9_-] replaced by an underscore. The mapping is deterministic and
// preserves length for ASCII input, so distinct ASCII test names stay
// distinct unless they only differ in disallowed characters.
func Name(name string) string {
	if name == "" {
		return ""
	}

	var folded strings.Builder

	for _, r := range name {
		if repl, ok := transliterations[r]; ok {
			folded.WriteString(repl)
		} else {
			folded.WriteRune(r)
		}
	}

	var out strings.Builder

	out.Grow(folded.Len())

	// Decompose so that "é" becomes "e" + combining accent, then drop the accent.
	for _, r := range norm.NFD.String(folded.String()) {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case allowed(r):
			out.WriteRune(r)
		default:
			out.WriteRune(Placeholder)
		}
	}

	return out.String()
}

// NameOr is Name with a fallback for identities that are empty.
func NameOr(name, fallback string) string {
	if s := Name(name); s != "" {
		return s
	}

	return Name(fallback)
}

func allowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_':
		return true
	default:
		return false
	}
}
