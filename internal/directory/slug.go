package directory

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxSlugLength caps generated agency and office slugs.
const MaxSlugLength = 50

var separatorRun = regexp.MustCompile(`[-\s]+`)

// Slugify converts name into a URL slug: the name is NFKD-normalized and
// reduced to ASCII, characters other than letters, digits, underscores,
// hyphens and whitespace are dropped, and runs of hyphens or whitespace
// become a single hyphen. The result is lowercase and at most MaxSlugLength
// bytes long.
func Slugify(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	ascii, _, err := transform.String(t, name)
	if err != nil {
		ascii = name
	}
	var b strings.Builder
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	slug := separatorRun.ReplaceAllString(strings.TrimSpace(b.String()), "-")
	if len(slug) > MaxSlugLength {
		slug = slug[:MaxSlugLength]
	}
	return slug
}
