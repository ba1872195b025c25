// Package parser turns WEFT source text into an ast.Program.
//
// The surface syntax is small: instance bindings (`wave<v> = expr`),
// plain assignments, output statements (`display(...)`, `play(...)`,
// `compute(...)`), spindle definitions
// (`spindle blur(img, amt) :: <out> { ... }`), strand access (`img@r`)
// and remapping (`img@r[x: me.y]`), tuples, if/else expressions, and
// `//` comments.
// A hand-rolled lexer feeds a recursive-descent parser; precedence is
// encoded in the descent, with `^` right-associative.
package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// TokenType is the kind of a lexical token.
type TokenType int

const (
	EOF TokenType = iota
	ILLEGAL

	// Punctuation
	LPAREN     // "("
	RPAREN     // ")"
	LBRACKET   // "["
	RBRACKET   // "]"
	LBRACE     // "{"
	RBRACE     // "}"
	COMMA      // ","
	COLON      // ":"
	COLONCOLON // "::"
	DOT        // "."
	AT         // "@"

	// Operators
	PLUS    // "+"
	MINUS   // "-"
	STAR    // "*"
	SLASH   // "/"
	PERCENT // "%"
	CARET   // "^"
	BANG    // "!"
	ASSIGN  // "="
	EQ      // "=="
	NEQ     // "!="
	LT      // "<"
	LE      // "<="
	GT      // ">"
	GE      // ">="
	ANDAND  // "&&"
	OROR    // "||"

	// Literals and identifiers
	IDENT
	NUMBER
	STRING

	// Keywords
	IF
	THEN
	ELSE
	ME
	SPINDLE
)

var tokenNames = map[TokenType]string{
	EOF: "end of input", ILLEGAL: "illegal token",
	LPAREN: "'('", RPAREN: "')'", LBRACKET: "'['", RBRACKET: "']'",
	LBRACE: "'{'", RBRACE: "'}'",
	COMMA: "','", COLON: "':'", COLONCOLON: "'::'", DOT: "'.'", AT: "'@'",
	PLUS: "'+'", MINUS: "'-'", STAR: "'*'", SLASH: "'/'",
	PERCENT: "'%'", CARET: "'^'", BANG: "'!'", ASSIGN: "'='",
	EQ: "'=='", NEQ: "'!='", LT: "'<'", LE: "'<='", GT: "'>'", GE: "'>='",
	ANDAND: "'&&'", OROR: "'||'",
	IDENT: "identifier", NUMBER: "number", STRING: "string",
	IF: "'if'", THEN: "'then'", ELSE: "'else'", ME: "'me'",
	SPINDLE: "'spindle'",
}

func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(t))
}

var keywords = map[string]TokenType{
	"if":      IF,
	"then":    THEN,
	"else":    ELSE,
	"me":      ME,
	"spindle": SPINDLE,
}

// Token is one lexical token with its source position.
type Token struct {
	Type   TokenType
	Lexeme string
	Num    float64 // parsed value when Type == NUMBER
	Line   int
	Col    int
}

// Lexer scans WEFT source text into tokens. Whitespace and `//`
// comments are skipped; newlines are not significant.
type Lexer struct {
	src  []rune
	pos  int
	line int
	col  int
}

// NewLexer creates a lexer over src.
func NewLexer(src string) *Lexer {
	return &Lexer{src: []rune(src), line: 1, col: 1}
}

// Tokens scans the whole input. The returned slice always ends with an
// EOF token.
func (l *Lexer) Tokens() ([]Token, error) {
	var out []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.Type == EOF {
			return out, nil
		}
	}
}

// Next returns the next token.
func (l *Lexer) Next() (Token, error) {
	l.skipSpace()
	if l.pos >= len(l.src) {
		return l.token(EOF, ""), nil
	}

	line, col := l.line, l.col
	ch := l.src[l.pos]

	switch {
	case unicode.IsLetter(ch) || ch == '_':
		word := l.scanWhile(func(r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
		})
		if kw, ok := keywords[word]; ok {
			return Token{Type: kw, Lexeme: word, Line: line, Col: col}, nil
		}
		return Token{Type: IDENT, Lexeme: word, Line: line, Col: col}, nil

	case unicode.IsDigit(ch) || (ch == '.' && l.peekAt(1) != 0 && unicode.IsDigit(l.peekAt(1))):
		text := l.scanNumber()
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Token{}, &LexError{Line: line, Col: col, Msg: fmt.Sprintf("malformed number %q", text)}
		}
		return Token{Type: NUMBER, Lexeme: text, Num: v, Line: line, Col: col}, nil

	case ch == '"':
		text, err := l.scanString()
		if err != nil {
			return Token{}, err
		}
		return Token{Type: STRING, Lexeme: text, Line: line, Col: col}, nil
	}

	// Operators and punctuation, longest match first.
	two := string(ch)
	if next := l.peekAt(1); next != 0 {
		two += string(next)
	}
	for _, cand := range []struct {
		text string
		typ  TokenType
	}{
		{"==", EQ}, {"!=", NEQ}, {"<=", LE}, {">=", GE},
		{"&&", ANDAND}, {"||", OROR}, {"::", COLONCOLON},
	} {
		if two == cand.text {
			l.advance()
			l.advance()
			return Token{Type: cand.typ, Lexeme: cand.text, Line: line, Col: col}, nil
		}
	}

	single := map[rune]TokenType{
		'(': LPAREN, ')': RPAREN, '[': LBRACKET, ']': RBRACKET,
		'{': LBRACE, '}': RBRACE,
		',': COMMA, ':': COLON, '.': DOT, '@': AT,
		'+': PLUS, '-': MINUS, '*': STAR, '/': SLASH,
		'%': PERCENT, '^': CARET, '!': BANG, '=': ASSIGN,
		'<': LT, '>': GT,
	}
	if typ, ok := single[ch]; ok {
		l.advance()
		return Token{Type: typ, Lexeme: string(ch), Line: line, Col: col}, nil
	}

	return Token{}, &LexError{Line: line, Col: col, Msg: fmt.Sprintf("unexpected character %q", ch)}
}

func (l *Lexer) skipSpace() {
	for l.pos < len(l.src) {
		ch := l.src[l.pos]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n':
			l.advance()
		case ch == '/' && l.peekAt(1) == '/':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func (l *Lexer) scanWhile(pred func(rune) bool) string {
	var sb strings.Builder
	for l.pos < len(l.src) && pred(l.src[l.pos]) {
		sb.WriteRune(l.src[l.pos])
		l.advance()
	}
	return sb.String()
}

// scanNumber accepts 12, 12.5, .5 and exponent forms.
func (l *Lexer) scanNumber() string {
	var sb strings.Builder
	digits := func() {
		for l.pos < len(l.src) && unicode.IsDigit(l.src[l.pos]) {
			sb.WriteRune(l.src[l.pos])
			l.advance()
		}
	}
	digits()
	if l.pos < len(l.src) && l.src[l.pos] == '.' && unicode.IsDigit(l.peekAt(1)) {
		sb.WriteRune('.')
		l.advance()
		digits()
	}
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		mark := l.pos
		exp := string(l.src[l.pos])
		l.advance()
		if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
			exp += string(l.src[l.pos])
			l.advance()
		}
		if l.pos < len(l.src) && unicode.IsDigit(l.src[l.pos]) {
			sb.WriteString(exp)
			digits()
		} else {
			l.pos = mark // not an exponent, leave the 'e' for the next token
		}
	}
	return sb.String()
}

func (l *Lexer) scanString() (string, error) {
	line, col := l.line, l.col
	l.advance() // opening quote
	var sb strings.Builder
	for l.pos < len(l.src) {
		ch := l.src[l.pos]
		switch ch {
		case '"':
			l.advance()
			return sb.String(), nil
		case '\\':
			l.advance()
			if l.pos >= len(l.src) {
				break
			}
			esc := l.src[l.pos]
			switch esc {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case '"', '\\':
				sb.WriteRune(esc)
			default:
				return "", &LexError{Line: l.line, Col: l.col, Msg: fmt.Sprintf("unknown escape \\%c", esc)}
			}
			l.advance()
		case '\n':
			return "", &LexError{Line: line, Col: col, Msg: "unterminated string"}
		default:
			sb.WriteRune(ch)
			l.advance()
		}
	}
	return "", &LexError{Line: line, Col: col, Msg: "unterminated string"}
}

func (l *Lexer) peekAt(offset int) rune {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return l.src[l.pos+offset]
}

func (l *Lexer) advance() {
	if l.pos < len(l.src) {
		if l.src[l.pos] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.pos++
	}
}

func (l *Lexer) token(typ TokenType, lexeme string) Token {
	return Token{Type: typ, Lexeme: lexeme, Line: l.line, Col: l.col}
}

// LexError reports a scanning failure with its source position.
type LexError struct {
	Line int
	Col  int
	Msg  string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Col, e.Msg)
}
