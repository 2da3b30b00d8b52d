package scanner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func find(lines []Line, substr string) []int {
	var nums []int
	for _, l := range lines {
		if strings.Contains(l.Text, substr) {
			nums = append(nums, l.Number)
		}
	}
	return nums
}

func TestCodeSurvives(t *testing.T) {
	src := "let x = 1\nconsole.log(x)\n"
	lines := CodeLines(src, DefaultOptions())

	require.Len(t, lines, 2)
	assert.Equal(t, []int{2}, find(lines, "console.log"))
}

func TestLineCommentBlanked(t *testing.T) {
	src := "real()\n// console.log(x)\nmore() // console.log(y)\n"
	lines := CodeLines(src, DefaultOptions())

	assert.Empty(t, find(lines, "console.log"))
	assert.Equal(t, []int{1}, find(lines, "real()"))
	assert.Equal(t, []int{3}, find(lines, "more()"))
}

func TestBlockCommentSpansLines(t *testing.T) {
	src := "a()\n/* one\nconsole.log(x)\nstill comment */ b()\nc()\n"
	lines := CodeLines(src, DefaultOptions())

	assert.Empty(t, find(lines, "console.log"))
	assert.Equal(t, []int{4}, find(lines, "b()"))
	assert.Equal(t, []int{5}, find(lines, "c()"))
}

func TestStringInteriorBlanked(t *testing.T) {
	src := `run("console.log is banned")` + "\n"
	lines := CodeLines(src, DefaultOptions())

	assert.Empty(t, find(lines, "console.log"))
	assert.Equal(t, []int{1}, find(lines, `run("`))
}

func TestEscapedQuoteStaysInString(t *testing.T) {
	src := `say("he said \"hi\" then console.log")` + "\n" + "console.log(1)\n"
	lines := CodeLines(src, DefaultOptions())

	assert.Equal(t, []int{2}, find(lines, "console.log"))
}

func TestUnterminatedStringResetsAtNewline(t *testing.T) {
	src := "bad(\"oops\nconsole.log(1)\n"
	lines := CodeLines(src, DefaultOptions())

	assert.Equal(t, []int{2}, find(lines, "console.log"))
}

func TestMultilineStringBlanked(t *testing.T) {
	src := "let doc = `\nconsole.log inside\n`\nconsole.log(2)\n"
	lines := CodeLines(src, DefaultOptions())

	assert.Equal(t, []int{4}, find(lines, "console.log"))
}

func TestSwiftTripleQuote(t *testing.T) {
	src := "let s = \"\"\"\nprint(\"nope\")\n\"\"\"\nprint(x)\n"
	lines := CodeLines(src, DefaultOptions())

	assert.Equal(t, []int{4}, find(lines, "print("))
}

func TestPythonOptions(t *testing.T) {
	opts := OptionsFor("tools/deploy.py")
	src := "# print(secret)\nprint(x)\ns = '''\nprint(hidden)\n'''\n"
	lines := CodeLines(src, opts)

	assert.Equal(t, []int{2}, find(lines, "print("))
}

func TestOptionsForExtensions(t *testing.T) {
	assert.Equal(t, []string{"#"}, OptionsFor("config.yaml").LineComments)
	assert.Equal(t, []string{"//"}, OptionsFor("App.swift").LineComments)
	assert.Equal(t, []string{"//"}, OptionsFor("unknown.xyz").LineComments)
}

func TestLineNumbersStable(t *testing.T) {
	src := "a\nb\nc"
	lines := CodeLines(src, DefaultOptions())
	require.Len(t, lines, 3)
	for i, l := range lines {
		assert.Equal(t, i+1, l.Number)
	}
}
