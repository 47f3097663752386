package parse

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/appsink/appsink/etl"
	"github.com/appsink/appsink/etl/expression"
)

// Parse compiles a calculated-field expression into an evaluable tree.
// Grammar violations fail with etl.ErrExpressionParse; everything else about
// an expression (unknown identifiers, bad operand types) is deferred to
// evaluation, where it yields null.
func Parse(input string) (etl.Expression, error) {
	lexer := NewLexer(input)
	lexer.Run()

	p := &parser{input: input, lexer: lexer}
	expr, err := p.parseBinary(1)
	if err != nil {
		return nil, err
	}

	tok := p.peek()
	if tok.Type == ErrorToken {
		return nil, p.errorf("%s", tok.Value)
	}
	if tok.Type != EOFToken {
		return nil, p.errorf("unexpected %q after the expression", tok.Value)
	}
	return expr, nil
}

type parser struct {
	input   string
	lexer   *Lexer
	pending *Token
}

func (p *parser) peek() *Token {
	if p.pending == nil {
		p.pending = p.lexer.Next()
		if p.pending == nil {
			p.pending = NewToken(EOFToken, "", 0)
		}
	}
	return p.pending
}

func (p *parser) next() *Token {
	tok := p.peek()
	p.pending = nil
	return tok
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return etl.ErrExpressionParse.New(p.input, fmt.Sprintf(format, args...))
}

// keyword consumes the next token when it is the given keyword.
func (p *parser) keyword(kw string) bool {
	tok := p.peek()
	if tok.Type == KeywordToken && strings.EqualFold(tok.Value, kw) {
		p.next()
		return true
	}
	return false
}

// binaryOp returns the operator entry for the next token when it can start
// a binary operation.
func (p *parser) binaryOp() *operator {
	tok := p.peek()
	switch tok.Type {
	case OpToken:
		return opTable[tok.Value]
	case KeywordToken:
		return opTable[strings.ToLower(tok.Value)]
	}
	return nil
}

func (p *parser) parseBinary(minPrec uint) (etl.Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		op := p.binaryOp()
		if op == nil || op.precedence < minPrec {
			return left, nil
		}
		p.next()

		if op.name == "is" {
			left, err = p.parseIs(left)
			if err != nil {
				return nil, err
			}
			continue
		}

		nextMin := op.precedence + 1
		if op.isRightAssoc() {
			nextMin = op.precedence
		}
		right, err := p.parseBinary(nextMin)
		if err != nil {
			return nil, err
		}

		left, err = combine(op, left, right)
		if err != nil {
			return nil, err
		}
	}
}

// parseIs handles IS [NOT] NULL and IS [NOT] EMPTY after the operand has
// been parsed.
func (p *parser) parseIs(operand etl.Expression) (etl.Expression, error) {
	negated := p.keyword("not")

	var expr etl.Expression
	switch {
	case p.keyword("null"):
		expr = expression.NewIsNull(operand)
	case p.keyword("empty"):
		expr = expression.NewIsEmpty(operand)
	default:
		return nil, p.errorf("IS must be followed by [NOT] NULL or EMPTY, got %q", p.peek().Value)
	}

	if negated {
		return expression.NewNot(expr), nil
	}
	return expr, nil
}

func combine(op *operator, left, right etl.Expression) (etl.Expression, error) {
	switch op.name {
	case "or":
		return expression.NewOr(left, right), nil
	case "and":
		return expression.NewAnd(left, right), nil
	case "like":
		return expression.NewLike(left, right), nil
	case "=", "!=", "<", ">", "<=", ">=":
		return expression.NewComparison(left, right, op.name), nil
	case "<>":
		return expression.NewComparison(left, right, expression.NeqStr), nil
	case "+", "-", "*", "/", "//", "%", "**":
		return expression.NewArithmetic(left, right, op.name), nil
	}
	return nil, fmt.Errorf("no expression for operator %q", op.name)
}

func (p *parser) parseUnary() (etl.Expression, error) {
	tok := p.peek()

	if tok.Type == OpToken && tok.Value == "-" {
		p.next()
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return expression.NewUnaryMinus(child), nil
	}

	if tok.Type == KeywordToken && strings.EqualFold(tok.Value, "not") {
		p.next()
		child, err := p.parseBinary(notPrecedence)
		if err != nil {
			return nil, err
		}
		return expression.NewNot(child), nil
	}

	return p.parsePrimary()
}

func (p *parser) parsePrimary() (etl.Expression, error) {
	tok := p.next()

	switch tok.Type {
	case ErrorToken:
		return nil, p.errorf("%s", tok.Value)
	case EOFToken:
		return nil, p.errorf("the expression ends unexpectedly")

	case IntToken:
		n, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			return nil, p.errorf("invalid integer %q", tok.Value)
		}
		return expression.NewLiteral(n), nil

	case FloatToken:
		f, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, p.errorf("invalid number %q", tok.Value)
		}
		return expression.NewLiteral(f), nil

	case StringToken:
		return expression.NewLiteral(tok.Value), nil

	case LeftParenToken:
		expr, err := p.parseBinary(1)
		if err != nil {
			return nil, err
		}
		if p.next().Type != RightParenToken {
			return nil, p.errorf("missing closing parenthesis")
		}
		return expr, nil

	case KeywordToken:
		switch strings.ToLower(tok.Value) {
		case "null":
			return expression.NewLiteral(nil), nil
		case "case":
			return p.parseCase()
		}
		return nil, p.errorf("unexpected keyword %q", tok.Value)

	case IdentifierToken:
		if p.peek().Type == LeftParenToken {
			return p.parseFunction(tok.Value)
		}
		return expression.NewIdentifier(tok.Value), nil
	}

	return nil, p.errorf("unexpected %q", tok.Value)
}

func (p *parser) parseFunction(name string) (etl.Expression, error) {
	p.next() // consume the open paren

	var args []etl.Expression
	if p.peek().Type != RightParenToken {
		for {
			arg, err := p.parseBinary(1)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)

			tok := p.next()
			if tok.Type == RightParenToken {
				break
			}
			if tok.Type != CommaToken {
				return nil, p.errorf("expected , or ) in the arguments of %s, got %q", name, tok.Value)
			}
		}
	} else {
		p.next()
	}

	fn, err := expression.NewFunction(name, args...)
	if err != nil {
		return nil, etl.ErrExpressionParse.New(p.input, err.Error())
	}
	return fn, nil
}

// parseCase parses both CASE forms: the searched form evaluates each WHEN as
// a condition; the simple form compares the operand against each WHEN value.
func (p *parser) parseCase() (etl.Expression, error) {
	var operand etl.Expression
	var err error

	if p.peek().Type != KeywordToken || !strings.EqualFold(p.peek().Value, "when") {
		operand, err = p.parseBinary(1)
		if err != nil {
			return nil, err
		}
	}

	var branches []expression.CaseBranch
	for p.keyword("when") {
		cond, err := p.parseBinary(1)
		if err != nil {
			return nil, err
		}
		if !p.keyword("then") {
			return nil, p.errorf("expected THEN after the WHEN condition, got %q", p.peek().Value)
		}
		value, err := p.parseBinary(1)
		if err != nil {
			return nil, err
		}
		branches = append(branches, expression.CaseBranch{Cond: cond, Value: value})
	}
	if len(branches) == 0 {
		return nil, p.errorf("CASE needs at least one WHEN branch")
	}

	var elseExpr etl.Expression
	if p.keyword("else") {
		elseExpr, err = p.parseBinary(1)
		if err != nil {
			return nil, err
		}
	}

	if !p.keyword("end") {
		return nil, p.errorf("expected END to close the CASE, got %q", p.peek().Value)
	}

	return expression.NewCase(operand, branches, elseExpr), nil
}
