// Package search turns free-text search input into Postgres tsquery
// expressions and evaluates those expressions in process for stores without a
// native full-text index.
package search

import (
	"regexp"
	"strings"
)

var (
	// ASCII punctuation other than & | " '.
	punctuationRe = regexp.MustCompile("[!#$%()*+,\\-./:;<=>?@\\[\\\\\\]^_`{}~]+")
	quoteRunRe    = regexp.MustCompile(`'+`)
	quotedRe      = regexp.MustCompile(`'[^']*'`)
	lonelyCharRe  = regexp.MustCompile(`[ ]+([^ &|])[ ]+`)
	adjacentRe    = regexp.MustCompile(`([^ &|])[ ]+([^ &|])`)
	wordRe        = regexp.MustCompile(`([^ &|]+)`)
	operatorRunRe = regexp.MustCompile(`[ &]+(&|\|)[ &]+`)
)

// Sanitize converts user input into a tsquery expression for
// to_tsquery('english', ...). Punctuation other than & | and quotes becomes
// whitespace, double quotes become single quotes, quoted phrases are kept
// verbatim, words are joined with & unless an operator is given and every bare
// word is prefix-matched with :*. Single quotes in the result are doubled.
func Sanitize(term string) string {
	term = punctuationRe.ReplaceAllString(term, " ")
	term = strings.ReplaceAll(term, `"`, "'")
	term = quoteRunRe.ReplaceAllString(term, "'")

	var processed []string
	for _, token := range splitQuoted(term) {
		token = strings.TrimSpace(token)
		if token == "" || token == "'" {
			continue
		}
		if token[0] != '\'' {
			token = lonelyCharRe.ReplaceAllString(token, " & ${1} & ")
			token = adjacentRe.ReplaceAllString(token, "${1} & ${2}")
			token = wordRe.ReplaceAllString(token, "${1}:*")
		}
		processed = append(processed, token)
	}

	term = strings.Join(processed, " & ")
	term = operatorRunRe.ReplaceAllString(term, " ${1} ")
	return strings.ReplaceAll(term, "'", "''")
}

// splitQuoted splits s around quoted substrings, keeping the quoted parts as
// their own elements.
func splitQuoted(s string) []string {
	var parts []string
	last := 0
	for _, loc := range quotedRe.FindAllStringIndex(s, -1) {
		parts = append(parts, s[last:loc[0]], s[loc[0]:loc[1]])
		last = loc[1]
	}
	return append(parts, s[last:])
}
