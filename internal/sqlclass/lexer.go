package sqlclass

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokIdent  tokenKind = iota // bare word: keyword or identifier
	tokQuoted                  // "quoted", `backtick` or [bracket] identifier
	tokString                  // 'string literal'
	tokNumber
	tokPunct // ( ) , ; . and any other single symbol
)

type token struct {
	kind tokenKind
	text string // quoted identifiers are stored unquoted
}

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && t.text == text
}

func (t token) keyword(word string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, word)
}

func (t token) name() bool {
	return t.kind == tokIdent || t.kind == tokQuoted
}

// tokenize splits SQL text into tokens. Whitespace and comments are dropped.
// It only understands as much SQL as the classifier needs: literals and
// quoted identifiers are kept whole so their contents never look like
// structure.
func tokenize(sql string) ([]token, error) {
	var toks []token
	src := []rune(sql)
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case unicode.IsSpace(c):
			i++

		case c == '-' && i+1 < len(src) && src[i+1] == '-':
			for i < len(src) && src[i] != '\n' {
				i++
			}

		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			j := i + 2
			for j+1 < len(src) && (src[j] != '*' || src[j+1] != '/') {
				j++
			}
			if j+1 >= len(src) {
				return nil, fmt.Errorf("unterminated comment at offset %d", i)
			}
			i = j + 2

		case c == '\'':
			text, n, err := readQuoted(src[i:], '\'')
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: text})
			i += n

		case c == '"' || c == '`':
			text, n, err := readQuoted(src[i:], c)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokQuoted, text: text})
			i += n

		case c == '[':
			end := i + 1
			for end < len(src) && src[end] != ']' {
				end++
			}
			if end == len(src) {
				return nil, fmt.Errorf("unterminated bracket identifier at offset %d", i)
			}
			toks = append(toks, token{kind: tokQuoted, text: string(src[i+1 : end])})
			i = end + 1

		case c == '_' || unicode.IsLetter(c):
			start := i
			for i < len(src) && (src[i] == '_' || src[i] == '$' || unicode.IsLetter(src[i]) || unicode.IsDigit(src[i])) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: string(src[start:i])})

		case unicode.IsDigit(c):
			start := i
			for i < len(src) && (unicode.IsDigit(src[i]) || src[i] == '.' || src[i] == 'e' || src[i] == 'E') {
				i++
			}
			toks = append(toks, token{kind: tokNumber, text: string(src[start:i])})

		default:
			toks = append(toks, token{kind: tokPunct, text: string(c)})
			i++
		}
	}
	return toks, nil
}

// readQuoted reads a quoted run starting at src[0] == q. A doubled quote
// inside the run is an escaped quote. It returns the unescaped text and the
// number of runes consumed.
func readQuoted(src []rune, q rune) (string, int, error) {
	var b strings.Builder
	for i := 1; i < len(src); i++ {
		if src[i] != q {
			b.WriteRune(src[i])
			continue
		}
		if i+1 < len(src) && src[i+1] == q {
			b.WriteRune(q)
			i++
			continue
		}
		return b.String(), i + 1, nil
	}
	return "", 0, fmt.Errorf("unterminated %c-quoted text", q)
}
