package expr

import "strings"

// Node is an expression or statement in the formula language. The variants
// are a closed set; the evaluator switches on the concrete type.
type Node interface {
	node()
	String() string
}

// NumberLit is a numeric literal.
type NumberLit struct {
	Value float64
	Text  string
}

// Name is an unqualified identifier resolved against the scope stack.
type Name struct {
	Ident  string
	Offset int
}

// QualifiedName is a global.x reference, resolved against the globals
// frame only. The qualifier is an access path, not a value.
type QualifiedName struct {
	Qualifier string // always "global"
	Ident     string
	Offset    int
}

// Unary is a prefix sign operator.
type Unary struct {
	Op TokenKind // MINUS or PLUS
	X  Node
}

// Binary is an arithmetic, comparison, or logical operator application.
type Binary struct {
	Op   TokenKind
	L, R Node
}

// NotOp is logical negation.
type NotOp struct {
	X Node
}

// Call is a builtin invocation, e.g. $random(a, b, c).
type Call struct {
	Func   string // name without the sigil, e.g. "random"
	Args   []Node
	Offset int
}

// Assign stores the value of an expression into the innermost scope frame.
type Assign struct {
	Ident string
	Value Node
}

func (*NumberLit) node()     {}
func (*Name) node()          {}
func (*QualifiedName) node() {}
func (*Unary) node()         {}
func (*Binary) node()        {}
func (*NotOp) node()         {}
func (*Call) node()          {}
func (*Assign) node()        {}

func (n *NumberLit) String() string { return n.Text }
func (n *Name) String() string      { return n.Ident }

func (n *QualifiedName) String() string { return n.Qualifier + "." + n.Ident }

func (n *Unary) String() string {
	op := "-"
	if n.Op == PLUS {
		op = "+"
	}
	return "(" + op + n.X.String() + ")"
}

var opText = map[TokenKind]string{
	PLUS: "+", MINUS: "-", STAR: "*", SLASH: "/", POW: "**",
	EQ: "==", NEQ: "!=", LT: "<", LE: "<=", GT: ">", GE: ">=",
	AND: "and", OR: "or",
}

func (n *Binary) String() string {
	return "(" + n.L.String() + " " + opText[n.Op] + " " + n.R.String() + ")"
}

func (n *NotOp) String() string { return "(not " + n.X.String() + ")" }

func (n *Call) String() string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = a.String()
	}
	return "$" + n.Func + "(" + strings.Join(args, ", ") + ")"
}

func (n *Assign) String() string { return n.Ident + " = " + n.Value.String() }
