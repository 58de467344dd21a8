// Package syntax reads and prints terms and patterns as s-expressions.
//
//	(lam $x body)        lambda binding $x
//	(app f a)            application; (f a b) is sugar for (app (app f a) b)
//	(let $x value body)  let binding $x
//	(add a b)            addition
//	42                   integer literal
//	$x                   variable reference
//	name                 symbol
//	?name                pattern variable (patterns only)
//	(subst body $x t)    explicit substitution (patterns only)
//
// Identifiers are NFC-normalized, so composed and decomposed spellings of
// the same name denote the same slot or symbol.
package syntax

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// TokenType represents the kind of token.
type TokenType int

const (
	EOF TokenType = iota
	LPAREN
	RPAREN
	ATOM
)

func (t TokenType) String() string {
	switch t {
	case EOF:
		return "end of input"
	case LPAREN:
		return "'('"
	case RPAREN:
		return "')'"
	default:
		return "atom"
	}
}

// Token is a lexical token with its position.
type Token struct {
	Type   TokenType
	Lexeme string
	Line   int
	Col    int
}

// SyntaxError reports malformed input with a 1-based position.
type SyntaxError struct {
	Line int
	Col  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %d:%d: %s", e.Line, e.Col, e.Msg)
}

type lexer struct {
	src  string
	pos  int
	line int
	col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

func (l *lexer) advance() rune {
	r, w := utf8.DecodeRuneInString(l.src[l.pos:])
	l.pos += w
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *lexer) peek() (rune, bool) {
	if l.pos >= len(l.src) {
		return 0, false
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
	return r, true
}

// skip consumes whitespace and ';' line comments.
func (l *lexer) skip() {
	for {
		r, ok := l.peek()
		switch {
		case !ok:
			return
		case unicode.IsSpace(r):
			l.advance()
		case r == ';':
			for r, ok := l.peek(); ok && r != '\n'; r, ok = l.peek() {
				l.advance()
			}
		default:
			return
		}
	}
}

func (l *lexer) next() (Token, error) {
	l.skip()
	tok := Token{Line: l.line, Col: l.col}
	r, ok := l.peek()
	if !ok {
		tok.Type = EOF
		return tok, nil
	}
	switch r {
	case '(':
		l.advance()
		tok.Type, tok.Lexeme = LPAREN, "("
		return tok, nil
	case ')':
		l.advance()
		tok.Type, tok.Lexeme = RPAREN, ")"
		return tok, nil
	}

	var b strings.Builder
	for r, ok := l.peek(); ok && !unicode.IsSpace(r) && r != '(' && r != ')' && r != ';'; r, ok = l.peek() {
		if r == utf8.RuneError {
			return tok, &SyntaxError{Line: l.line, Col: l.col, Msg: "invalid UTF-8"}
		}
		b.WriteRune(l.advance())
	}
	tok.Type = ATOM
	tok.Lexeme = norm.NFC.String(b.String())
	return tok, nil
}

// tokenize splits src into tokens, ending with EOF.
func tokenize(src string) ([]Token, error) {
	l := newLexer(src)
	var out []Token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.Type == EOF {
			return out, nil
		}
	}
}
