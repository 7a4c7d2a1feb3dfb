package search

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sanitizeInputs are the left-hand sides of testdata/golden/sanitize.golden.
func sanitizeInputs(t *testing.T) []string {
	t.Helper()
	f, err := os.Open(filepath.Join("testdata", "golden", "sanitize.golden"))
	require.NoError(t, err)
	defer f.Close()
	var inputs []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lhs, _, ok := strings.Cut(sc.Text(), " => ")
		require.True(t, ok, "malformed golden line %q", sc.Text())
		in, err := strconv.Unquote(lhs)
		require.NoError(t, err)
		inputs = append(inputs, in)
	}
	require.NoError(t, sc.Err())
	return inputs
}

func TestSanitizeGolden(t *testing.T) {
	var b strings.Builder
	for _, in := range sanitizeInputs(t) {
		fmt.Fprintf(&b, "%q => %q\n", in, Sanitize(in))
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "sanitize", []byte(b.String()))
}

func TestSanitizeExamples(t *testing.T) {
	assert.Equal(t, "ufo:*", Sanitize("ufo"))
	assert.Equal(t, "fbi:* | cia:*", Sanitize("fbi | cia"))
	assert.Equal(t, "''project blue book'' & report:*", Sanitize(`"project blue book" report`))
	assert.Equal(t, "", Sanitize("?!"))
}

func TestCompileRejectsEmpty(t *testing.T) {
	_, err := Compile("")
	assert.ErrorIs(t, err, ErrEmptyQuery)
	_, err = Parse("  ...  ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestMatch(t *testing.T) {
	cases := []struct {
		input string
		text  string
		want  bool
	}{
		{"ufo", "UFOs land on South Lawn", true},
		{"flying saucer", "Memorandum on flying discs", false},
		{"flying disc", "Memorandum on flying discs", true},
		{"fbi | cia", "Central Intelligence Agency (CIA)", true},
		{`"blue book"`, "Project Blue Book status report", true},
		{`"book blue"`, "Project Blue Book status report", false},
		{`"blue book" & memo`, "Project Blue Book status report", false},
		{"O'Neil", "Letter from Tip O'Neil", true},
		{"département", "Département d'État", true},
		{"justice | defense & navy", "Department of Defense", false},
		{"justice | defense & navy", "Department of Justice", true},
	}
	for _, tc := range cases {
		q, err := Parse(tc.input)
		require.NoError(t, err, tc.input)
		assert.Equal(t, tc.want, q.Match(Field{Text: tc.text, Weight: WeightA}), "%q against %q", tc.input, tc.text)
	}
}

func TestMatchSpansFields(t *testing.T) {
	q, err := Parse("archives records")
	require.NoError(t, err)
	assert.True(t, q.Match(
		Field{Text: "National Archives", Weight: WeightA},
		Field{Text: "Keeps the records of the federal government", Weight: WeightB},
	))
}

func TestRankWeightsFields(t *testing.T) {
	q, err := Parse("archives")
	require.NoError(t, err)

	inName := q.Rank(
		Field{Text: "National Archives and Records Administration", Weight: WeightA},
		Field{Text: "Preserves government records.", Weight: WeightB},
	)
	inDescription := q.Rank(
		Field{Text: "Library of Congress", Weight: WeightA},
		Field{Text: "Maintains archives of the legislature.", Weight: WeightB},
	)
	inText := q.Rank(
		Field{Text: "Library of Congress", Weight: WeightA},
		Field{Text: "Kept with other archives.", Weight: WeightC},
	)
	none := q.Rank(Field{Text: "Department of Energy", Weight: WeightA})

	assert.Greater(t, inName, inDescription)
	assert.Greater(t, inDescription, inText)
	assert.Zero(t, none)
}

func TestWeightValues(t *testing.T) {
	assert.Equal(t, 1.0, WeightA.Value())
	assert.Equal(t, 0.4, WeightB.Value())
	assert.Equal(t, 0.2, WeightC.Value())
	assert.Equal(t, 0.1, Weight('D').Value())
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"u", "s", "army", "2014"}, Tokenize("U.S. Army, 2014"))
	assert.Empty(t, Tokenize(" -- "))
}
