package parse

type operator struct {
	name       string
	assoc      Associativity
	precedence uint
}

type Associativity byte

const (
	LeftAssoc Associativity = 1 << iota
	RightAssoc
)

func newOperator(name string, assoc Associativity, precedence uint) *operator {
	return &operator{name, assoc, precedence}
}

func (o *operator) isRightAssoc() bool {
	return o.assoc == RightAssoc
}

// opTable orders the binary operators from loosest to tightest. Unary NOT
// sits between AND and the comparisons; unary minus binds tighter than any
// binary operator.
var opTable = map[string]*operator{
	"or":   newOperator("or", LeftAssoc, 1),
	"and":  newOperator("and", LeftAssoc, 2),
	">":    newOperator(">", LeftAssoc, 4),
	">=":   newOperator(">=", LeftAssoc, 4),
	"<":    newOperator("<", LeftAssoc, 4),
	"<=":   newOperator("<=", LeftAssoc, 4),
	"=":    newOperator("=", LeftAssoc, 4),
	"<>":   newOperator("<>", LeftAssoc, 4),
	"!=":   newOperator("!=", LeftAssoc, 4),
	"like": newOperator("like", LeftAssoc, 4),
	"is":   newOperator("is", LeftAssoc, 4),
	"+":    newOperator("+", LeftAssoc, 5),
	"-":    newOperator("-", LeftAssoc, 5),
	"*":    newOperator("*", LeftAssoc, 6),
	"/":    newOperator("/", LeftAssoc, 6),
	"//":   newOperator("//", LeftAssoc, 6),
	"%":    newOperator("%", LeftAssoc, 6),
	"**":   newOperator("**", RightAssoc, 8),
}

const notPrecedence = 3
