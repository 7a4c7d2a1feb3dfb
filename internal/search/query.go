package search

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// ErrEmptyQuery is returned by Compile when the expression has no terms.
var ErrEmptyQuery = errors.New("search: empty query")

// Weight labels a field the way setweight does in Postgres.
type Weight byte

const (
	WeightA Weight = 'A'
	WeightB Weight = 'B'
	WeightC Weight = 'C'
)

// Value is the ranking contribution of a match in a field of weight w.
func (w Weight) Value() float64 {
	switch w {
	case WeightA:
		return 1.0
	case WeightB:
		return 0.4
	case WeightC:
		return 0.2
	default:
		return 0.1
	}
}

// Field is a piece of searchable text with a weight.
type Field struct {
	Text   string
	Weight Weight
}

// Query is a compiled tsquery expression. & binds tighter than |.
type Query struct {
	any [][]leaf // disjunction of conjunctions
}

// leaf matches consecutive words; when prefix is set the last word only has
// to start with the query word.
type leaf struct {
	words  []string
	prefix bool
}

// Tokenize case-folds s and splits it into words of letters and digits.
func Tokenize(s string) []string {
	return strings.FieldsFunc(cases.Fold().String(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// Compile parses an expression produced by Sanitize.
func Compile(expr string) (*Query, error) {
	expr = strings.ReplaceAll(expr, "''", "'")
	q := &Query{}
	var current []leaf
	flush := func() {
		if len(current) > 0 {
			q.any = append(q.any, current)
			current = nil
		}
	}
	for i := 0; i < len(expr); {
		switch c := expr[i]; {
		case c == ' ' || c == '&':
			i++
		case c == '|':
			flush()
			i++
		case c == '\'':
			end := strings.IndexByte(expr[i+1:], '\'')
			var phrase string
			if end < 0 {
				phrase, i = expr[i+1:], len(expr)
			} else {
				phrase, i = expr[i+1:i+1+end], i+end+2
			}
			if words := Tokenize(phrase); len(words) > 0 {
				current = append(current, leaf{words: words})
			}
		default:
			end := strings.IndexAny(expr[i:], " &|")
			if end < 0 {
				end = len(expr) - i
			}
			word := expr[i : i+end]
			i += end
			prefix := strings.HasSuffix(word, ":*")
			if words := Tokenize(strings.TrimSuffix(word, ":*")); len(words) > 0 {
				current = append(current, leaf{words: words, prefix: prefix})
			}
		}
	}
	flush()
	if len(q.any) == 0 {
		return nil, ErrEmptyQuery
	}
	return q, nil
}

// Parse sanitizes and compiles user input.
func Parse(input string) (*Query, error) {
	return Compile(Sanitize(input))
}

func (l leaf) in(words []string) int {
	n := 0
	last := len(l.words) - 1
	for i := 0; i+last < len(words); i++ {
		ok := true
		for j, w := range l.words {
			got := words[i+j]
			if j == last && l.prefix {
				ok = strings.HasPrefix(got, w)
			} else {
				ok = got == w
			}
			if !ok {
				break
			}
		}
		if ok {
			n++
		}
	}
	return n
}

// Match reports whether the fields, taken together, satisfy the query.
func (q *Query) Match(fields ...Field) bool {
	var words []string
	for _, f := range fields {
		words = append(words, Tokenize(f.Text)...)
	}
	return q.match(words)
}

func (q *Query) match(words []string) bool {
	for _, all := range q.any {
		ok := true
		for _, l := range all {
			if l.in(words) == 0 {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// Rank scores fields against the query: zero when the query does not match,
// otherwise the sum over query terms and fields of the field weight times the
// number of occurrences, damped for long fields.
func (q *Query) Rank(fields ...Field) float64 {
	tokenized := make([][]string, len(fields))
	var words []string
	for i, f := range fields {
		tokenized[i] = Tokenize(f.Text)
		words = append(words, tokenized[i]...)
	}
	if !q.match(words) {
		return 0
	}
	var score float64
	for _, all := range q.any {
		for _, l := range all {
			for i, f := range fields {
				if n := l.in(tokenized[i]); n > 0 {
					score += f.Weight.Value() * float64(n) / (1 + float64(len(tokenized[i]))/100)
				}
			}
		}
	}
	return score
}
