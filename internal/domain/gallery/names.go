package gallery

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/okian/facesense/internal/domain/model"
)

// ParseFilename extracts the display name and employee id from an
// enrollment photo named like "jane_doe_1042.jpg". With fewer than three
// underscore-separated parts the whole stem is the name and the id is N/A.
func ParseFilename(filename string) (name, employeeID string) {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	parts := strings.Split(stem, "_")

	title := cases.Title(language.Und)
	if len(parts) >= 3 {
		name = title.String(strings.Join(parts[:len(parts)-1], " "))
		return name, parts[len(parts)-1]
	}
	return title.String(strings.Join(parts, " ")), model.UnknownEmployeeID
}

// NormalizeName folds case and strips diacritics so "José" matches "jose".
func NormalizeName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, name)
	if err != nil {
		out = name
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}
