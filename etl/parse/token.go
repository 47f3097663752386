package parse

// Token is one lexed unit of a calculated-field expression.
type Token struct {
	Type  TokenType
	Value string
	Pos   uint
}

// TokenType enumerates the token classes the lexer emits.
type TokenType uint

const (
	ErrorToken TokenType = iota
	EOFToken
	LeftParenToken
	RightParenToken
	CommaToken
	KeywordToken
	IdentifierToken
	IntToken
	FloatToken
	StringToken
	OpToken
)

func NewToken(typ TokenType, value string, pos uint) *Token {
	return &Token{
		Type:  typ,
		Value: value,
		Pos:   pos,
	}
}
