package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
	"#", "",
	"%", "",
)

// maxFileNameBytes keeps room for the longest suffix appended to an episode
// identifier (".local.comparison.wav") under the common 255 byte limit.
const maxFileNameBytes = 200

// SanitizeFileName turns an arbitrary string into a single safe path
// component. Input is NFC normalized, control characters are removed, path
// separators and colons become dashes, and leading dots are trimmed so the
// result is never hidden, "." or "..". An empty result means nothing usable
// remained.
func SanitizeFileName(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(fileNameReplacer.Replace(name))
	name = strings.TrimLeft(name, ".")
	name = strings.TrimSpace(name)
	return truncateUTF8(name, maxFileNameBytes)
}

// TitleCase capitalizes each word, for display names derived from hostnames.
func TitleCase(value string) string {
	return cases.Title(language.Und).String(strings.TrimSpace(value))
}

func truncateUTF8(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !isRuneStart(value[cut]) {
		cut--
	}
	return strings.TrimSpace(value[:cut])
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
