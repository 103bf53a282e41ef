// Package textnorm canonicalizes source filenames and derives ASCII-safe
// identifier components from free text.
package textnorm

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonWordRe    = regexp.MustCompile(`[^A-Za-z0-9_\s]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// StripAccents removes combining marks, so "Constitución" becomes "Constitucion".
func StripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Fold lower-cases and strips accents, for accent-insensitive comparisons.
func Fold(s string) string {
	return strings.ToLower(StripAccents(s))
}

// ASCII turns text into an identifier component: accents are transliterated,
// anything outside ASCII word characters is dropped and whitespace runs
// become a single underscore.
func ASCII(s string) string {
	s = norm.NFKD.String(s)
	var b strings.Builder
	for _, r := range s {
		if r <= unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	s = nonWordRe.ReplaceAllString(b.String(), "")
	s = strings.TrimSpace(s)
	return whitespaceRe.ReplaceAllString(s, "_")
}

// Normalizer canonicalizes filenames. Accents are kept unless StripAccents is set.
type Normalizer struct {
	StripAccents bool
}

// Normalize lower-cases the name, turns "_" and "-" into spaces, collapses
// whitespace and keeps the extension in lower case.
func (n Normalizer) Normalize(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	base = strings.Join(strings.Fields(strings.ToLower(base)), " ")
	if n.StripAccents {
		base = StripAccents(base)
	}
	return base + strings.ToLower(ext)
}

// RenameInDirectory renames every regular file of dir to its normalized
// name and returns the number of files renamed. Existing targets are left
// untouched.
func (n Normalizer) RenameInDirectory(dir string, logger *slog.Logger) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	renamed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		newName := n.Normalize(e.Name())
		if newName == e.Name() {
			continue
		}
		from := filepath.Join(dir, e.Name())
		to := filepath.Join(dir, newName)
		if _, err := os.Stat(to); err == nil {
			logger.Warn("[NORMALIZE] target already exists, skipping", "from", from, "to", to)
			continue
		}
		if err := os.Rename(from, to); err != nil {
			return renamed, fmt.Errorf("rename %s: %w", from, err)
		}
		logger.Info("[NORMALIZE] renamed", "from", e.Name(), "to", newName)
		renamed++
	}
	return renamed, nil
}
