package textutil

import (
	"path/filepath"
	"strings"
	"unicode"
)

// SanitizeUploadName keeps letters, digits, combining marks and "._- " from a
// client-supplied filename. Path separators are dropped, so the result is
// always a single path segment.
func SanitizeUploadName(name string) string {
	return keep(name, "._- ")
}

// SanitizeArtifactName keeps letters, digits, "_" and "-". It guards the
// download route, where the name becomes part of a file path.
func SanitizeArtifactName(name string) string {
	return keep(name, "_-")
}

// BaseName derives a job base identifier from a stored file name: the name
// without its final extension, with anything SanitizeArtifactName would strip
// replaced by "_" so the identifier survives a round trip through the
// download route.
func BaseName(fileName string) string {
	stem := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	var b strings.Builder
	for _, r := range stem {
		if isWordRune(r) || r == '_' || r == '-' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}

// Extension returns the lower-case extension of name without the dot.
func Extension(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

func keep(value, extra string) string {
	var b strings.Builder
	for _, r := range value {
		if isWordRune(r) || strings.ContainsRune(extra, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isWordRune accepts combining marks so vowel signs in scripts such as
// Devanagari stay attached to their consonants.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}
