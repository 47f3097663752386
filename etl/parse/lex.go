package parse

import (
	"fmt"
	"strings"
	"unicode"
)

type stateFunc func(*Lexer) stateFunc

// Lexer splits an expression into tokens with a small state machine. The
// input is held in memory; expressions are short contract snippets, not
// streams.
type Lexer struct {
	input  []rune
	start  uint
	pos    uint
	tokens []*Token
	idx    uint
}

func NewLexer(input string) *Lexer {
	return &Lexer{input: []rune(input)}
}

const eof rune = -1

func (l *Lexer) next() rune {
	if l.pos >= uint(len(l.input)) {
		l.pos++
		return eof
	}
	r := l.input[l.pos]
	l.pos++
	return r
}

func (l *Lexer) backup() {
	l.pos--
}

func (l *Lexer) peek() rune {
	r := l.next()
	l.backup()
	return r
}

func (l *Lexer) word() string {
	end := l.pos
	if end > uint(len(l.input)) {
		end = uint(len(l.input))
	}
	return string(l.input[l.start:end])
}

func (l *Lexer) ignore() {
	l.start = l.pos
}

func (l *Lexer) emit(typ TokenType) {
	l.tokens = append(l.tokens, NewToken(typ, l.word(), l.start))
	l.start = l.pos
}

func (l *Lexer) emitValue(typ TokenType, value string) {
	l.tokens = append(l.tokens, NewToken(typ, value, l.start))
	l.start = l.pos
}

func (l *Lexer) errorf(format string, args ...interface{}) stateFunc {
	l.tokens = append(l.tokens, NewToken(ErrorToken, fmt.Sprintf(format, args...), l.pos))
	return nil
}

// Run lexes the whole input. The token stream always ends with an EOFToken
// or an ErrorToken.
func (l *Lexer) Run() {
	for state := lexExpr; state != nil; {
		state = state(l)
	}
}

// Next returns the next token, nil after the last one.
func (l *Lexer) Next() *Token {
	if l.idx >= uint(len(l.tokens)) {
		return nil
	}
	tk := l.tokens[l.idx]
	l.idx++
	return tk
}

const (
	comma       = ','
	leftParen   = '('
	rightParen  = ')'
	quote       = '"'
	singleQuote = '\''
	backslash   = '\\'
)

func lexExpr(l *Lexer) stateFunc {
	r := l.next()

	switch true {
	case r == eof:
		l.backup()
		l.emit(EOFToken)
		return nil
	case isSpace(r):
		return lexSpaces
	case isLetter(r):
		return lexIdentifier
	case isAllowedInOp(r):
		return lexOp
	case r == comma:
		l.emit(CommaToken)
		return lexExpr
	case r == leftParen:
		l.emit(LeftParenToken)
		return lexExpr
	case r == rightParen:
		l.emit(RightParenToken)
		return lexExpr
	case r == singleQuote:
		return lexSingleQuote
	case r == quote:
		return lexQuote
	case unicode.IsDigit(r):
		return lexNumber
	}

	return l.errorf("unexpected character: %q", r)
}

func (l *Lexer) scanDigits() {
	for {
		r := l.next()
		if !unicode.IsDigit(r) {
			l.backup()
			return
		}
	}
}

func lexNumber(l *Lexer) stateFunc {
	l.scanDigits()

	typ := IntToken
	if l.peek() == '.' {
		l.next()
		l.scanDigits()
		typ = FloatToken
	}

	if r := l.peek(); !isValidNumberTermination(r) {
		return l.errorf("invalid number syntax: %q", l.word())
	}

	l.emit(typ)
	return lexExpr
}

var keywords = []string{
	"case", "when", "then", "else", "end",
	"and", "or", "not", "is", "null", "empty", "like",
}

func isKeyword(kw string) bool {
	kw = strings.ToLower(kw)
	for _, k := range keywords {
		if k == kw {
			return true
		}
	}
	return false
}

func lexIdentifier(l *Lexer) stateFunc {
	for {
		r := l.next()
		if !isAllowedInIdentifier(r) {
			l.backup()

			word := l.word()
			var typ = IdentifierToken
			if isKeyword(word) {
				typ = KeywordToken
			}

			l.emit(typ)
			return lexExpr
		}
	}
}

var operators = []string{
	"<", ">", ">=", "<=", "=", "<>", "!=",
	"+", "-", "*", "/", "//", "%", "**",
}

func isValidOperator(word string) bool {
	for _, op := range operators {
		if op == word {
			return true
		}
	}
	return false
}

func lexOp(l *Lexer) stateFunc {
	for {
		r := l.next()
		if !isAllowedInOp(r) {
			l.backup()

			op := l.word()
			if !isValidOperator(op) {
				return l.errorf("invalid operator: %q", op)
			}

			l.emit(OpToken)
			return lexExpr
		}
	}
}

func lexQuote(l *Lexer) stateFunc {
	return lexString(l, quote)
}

func lexSingleQuote(l *Lexer) stateFunc {
	return lexString(l, singleQuote)
}

func lexString(l *Lexer, quoteRune rune) stateFunc {
	var value []rune
	var escaped bool
	for {
		r := l.next()
		if r == eof {
			return l.errorf("unterminated string: %q", l.word())
		}

		if escaped {
			value = append(value, r)
			escaped = false
		} else if r == backslash {
			escaped = true
		} else if r == quoteRune {
			l.emitValue(StringToken, string(value))
			return lexExpr
		} else {
			value = append(value, r)
		}
	}
}

func lexSpaces(l *Lexer) stateFunc {
	for {
		r := l.next()
		if !isSpace(r) {
			l.backup()
			l.ignore()
			return lexExpr
		}
	}
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\n'
}

func isLetter(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isAllowedInOp(r rune) bool {
	return strings.IndexRune("<>=!+-*/%", r) >= 0
}

// Dots stay inside identifiers so cross-element references such as
// contact.first_name lex as one name.
func isAllowedInIdentifier(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.'
}

func isValidNumberTermination(r rune) bool {
	return r == eof || r == comma || r == leftParen || r == rightParen ||
		isSpace(r) || isAllowedInOp(r)
}
