// Package scanner classifies source text into code, comment and string
// regions so heuristic detectors only ever match executable code. A
// console.log inside a block comment or a string literal is not a
// finding.
package scanner

import (
	"path/filepath"
	"strings"
)

// State is the scanner's position in the source text.
type State int

const (
	StateCode State = iota
	StateLineComment
	StateBlockComment
	StateString
	StateMultilineString
)

// Options describe the comment and string syntax of a language family.
type Options struct {
	LineComments    []string
	BlockOpen       string
	BlockClose      string
	Quotes          []byte
	MultilineQuotes []string
}

// DefaultOptions covers the C-family syntax shared by Swift, Kotlin,
// TypeScript and Go closely enough for heuristic scanning.
func DefaultOptions() Options {
	return Options{
		LineComments:    []string{"//"},
		BlockOpen:       "/*",
		BlockClose:      "*/",
		Quotes:          []byte{'"', '\''},
		MultilineQuotes: []string{`"""`, "`"},
	}
}

// OptionsFor picks scanning options from the file extension. Unknown
// extensions get the C-family defaults.
func OptionsFor(path string) Options {
	switch filepath.Ext(strings.ToLower(path)) {
	case ".py":
		return Options{
			LineComments:    []string{"#"},
			Quotes:          []byte{'"', '\''},
			MultilineQuotes: []string{`"""`, "'''"},
		}
	case ".rb", ".sh", ".yml", ".yaml":
		return Options{
			LineComments: []string{"#"},
			Quotes:       []byte{'"', '\''},
		}
	default:
		return DefaultOptions()
	}
}

// Line is one source line with its non-code regions blanked out.
type Line struct {
	Number int
	Text   string
}

// CodeLines runs the state machine over content and returns each line
// with comment and string interiors replaced by spaces. Line numbers are
// one-based. Quote characters themselves survive so call shapes that
// take string arguments still read naturally.
func CodeLines(content string, opts Options) []Line {
	var (
		state     = StateCode
		quote     byte
		mlQuote   string
		escaped   bool
		out       strings.Builder
		lines     []Line
		lineStart int
		lineNo    = 1
	)

	flush := func(end int) {
		text := strings.TrimSuffix(out.String()[lineStart:end], "\n")
		lines = append(lines, Line{Number: lineNo, Text: text})
		lineNo++
		lineStart = end
	}

	i := 0
	for i < len(content) {
		c := content[i]

		if c == '\n' {
			switch state {
			case StateLineComment, StateString:
				state = StateCode
			}
			out.WriteByte('\n')
			flush(out.Len())
			i++
			escaped = false
			continue
		}

		switch state {
		case StateCode:
			if marker := matchAny(content, i, opts.LineComments); marker != "" {
				state = StateLineComment
				out.WriteString(spaces(len(marker)))
				i += len(marker)
				continue
			}
			if opts.BlockOpen != "" && strings.HasPrefix(content[i:], opts.BlockOpen) {
				state = StateBlockComment
				out.WriteString(spaces(len(opts.BlockOpen)))
				i += len(opts.BlockOpen)
				continue
			}
			if marker := matchAny(content, i, opts.MultilineQuotes); marker != "" {
				state = StateMultilineString
				mlQuote = marker
				out.WriteString(marker)
				i += len(marker)
				continue
			}
			if isQuote(c, opts.Quotes) {
				state = StateString
				quote = c
				out.WriteByte(c)
				i++
				continue
			}
			out.WriteByte(c)
			i++

		case StateLineComment, StateBlockComment:
			if state == StateBlockComment && opts.BlockClose != "" && strings.HasPrefix(content[i:], opts.BlockClose) {
				state = StateCode
				out.WriteString(spaces(len(opts.BlockClose)))
				i += len(opts.BlockClose)
				continue
			}
			out.WriteByte(' ')
			i++

		case StateString:
			if escaped {
				escaped = false
				out.WriteByte(' ')
				i++
				continue
			}
			if c == '\\' {
				escaped = true
				out.WriteByte(' ')
				i++
				continue
			}
			if c == quote {
				state = StateCode
				out.WriteByte(c)
				i++
				continue
			}
			out.WriteByte(' ')
			i++

		case StateMultilineString:
			if strings.HasPrefix(content[i:], mlQuote) {
				state = StateCode
				out.WriteString(mlQuote)
				i += len(mlQuote)
				continue
			}
			out.WriteByte(' ')
			i++
		}
	}

	if out.Len() > lineStart || len(lines) == 0 {
		flush(out.Len())
	}
	return lines
}

func matchAny(content string, i int, markers []string) string {
	for _, m := range markers {
		if m != "" && strings.HasPrefix(content[i:], m) {
			return m
		}
	}
	return ""
}

func isQuote(c byte, quotes []byte) bool {
	for _, q := range quotes {
		if c == q {
			return true
		}
	}
	return false
}

func spaces(n int) string {
	return strings.Repeat(" ", n)
}
