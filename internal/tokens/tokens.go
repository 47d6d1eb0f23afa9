// Package tokens implements the token unit shared by chunking and context
// assembly.
//
// A token is either a maximal run of identifier characters (letters, digits,
// underscore) or a single non-space character outside such a run. Whitespace
// never counts, so Count(a+"\n"+b) == Count(a)+Count(b).
package tokens

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Token is one token of a text with its byte offsets.
type Token struct {
	Text  string
	Start int
	End   int
	Word  bool // identifier run rather than punctuation
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Scan splits s into tokens.
func Scan(s string) []Token {
	var out []Token
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case isWordRune(r):
			start := i
			for i < len(s) {
				r, size = utf8.DecodeRuneInString(s[i:])
				if !isWordRune(r) {
					break
				}
				i += size
			}
			out = append(out, Token{Text: s[start:i], Start: start, End: i, Word: true})
		default:
			out = append(out, Token{Text: s[i : i+size], Start: i, End: i + size})
			i += size
		}
	}
	return out
}

// Count returns the number of tokens in s without allocating them.
func Count(s string) int {
	n := 0
	inWord := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			inWord = false
		case isWordRune(r):
			if !inWord {
				n++
				inWord = true
			}
		default:
			n++
			inWord = false
		}
	}
	return n
}

// Words returns the lower-cased identifier runs of s.
func Words(s string) []string {
	var out []string
	for _, t := range Scan(s) {
		if t.Word {
			out = append(out, strings.ToLower(t.Text))
		}
	}
	return out
}

// Split breaks text into pieces of at most max tokens. It cuts at line
// boundaries, and only when a single line exceeds max does it cut that line
// between tokens. Each piece reports the 0-based index of its first line
// relative to text. max <= 0 returns text unsplit.
func Split(text string, max int) []Piece {
	if max <= 0 || Count(text) <= max {
		return []Piece{{Text: text, Lines: strings.Count(text, "\n") + 1, Tokens: Count(text)}}
	}
	var (
		out     []Piece
		cur     []string
		curTok  int
		curLine int
	)
	flush := func() {
		if len(cur) == 0 {
			return
		}
		out = append(out, Piece{Text: strings.Join(cur, "\n"), Line: curLine, Lines: len(cur), Tokens: curTok})
		cur, curTok = nil, 0
	}
	for i, line := range strings.Split(text, "\n") {
		n := Count(line)
		if n > max {
			flush()
			for _, part := range splitLine(line, max) {
				out = append(out, Piece{Text: part, Line: i, Lines: 1, Tokens: Count(part)})
			}
			curLine = i + 1
			continue
		}
		if curTok+n > max {
			flush()
		}
		if len(cur) == 0 {
			curLine = i
		}
		cur = append(cur, line)
		curTok += n
	}
	flush()
	return out
}

// Piece is one part of a Split text.
type Piece struct {
	Text   string
	Line   int // first line, 0-based, relative to the split text
	Lines  int // number of source lines covered
	Tokens int
}

// splitLine cuts a single line into parts of at most max tokens, always
// between two tokens.
func splitLine(line string, max int) []string {
	toks := Scan(line)
	var parts []string
	for start := 0; start < len(toks); start += max {
		end := start + max
		if end > len(toks) {
			end = len(toks)
		}
		parts = append(parts, strings.TrimSpace(line[toks[start].Start:toks[end-1].End]))
	}
	return parts
}
