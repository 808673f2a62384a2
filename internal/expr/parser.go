package expr

import (
	"fmt"
	"strconv"
)

// Parser builds ASTs from formula source. Expressions follow the usual
// precedence ladder (tightest first): unary sign, '**' (right-assoc),
// '*' '/', '+' '-', comparisons (non-chaining), 'not', 'and', 'or'.
type Parser struct {
	toks []Token
	pos  int
}

// ParseExpr parses a single expression and requires the whole source to be
// consumed by it.
func ParseExpr(src string) (Node, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	p.skipSeparators()
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSeparators()
	if tok := p.peek(); tok.Kind != EOF {
		return nil, &ParseError{Msg: "unexpected trailing input", Token: tok.Text, Offset: tok.Offset}
	}
	return n, nil
}

// ParseStatement parses one statement: either `IDENT = expr` or a bare
// expression.
func ParseStatement(src string) (Node, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	p.skipSeparators()
	n, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	p.skipSeparators()
	if tok := p.peek(); tok.Kind != EOF {
		return nil, &ParseError{Msg: "unexpected trailing input", Token: tok.Text, Offset: tok.Offset}
	}
	return n, nil
}

// ParseStatements parses a statement list separated by line breaks or
// semicolons.
func ParseStatements(src string) ([]Node, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	var stmts []Node
	for {
		p.skipSeparators()
		if p.peek().Kind == EOF {
			return stmts, nil
		}
		n, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, n)
		switch tok := p.peek(); tok.Kind {
		case NEWLINE, SEMICOLON, EOF:
		default:
			return nil, &ParseError{Msg: "expected statement separator", Token: tok.Text, Offset: tok.Offset}
		}
	}
}

func newParser(src string) (*Parser, error) {
	lex := NewLexer(src)
	var toks []Token
	for {
		tok, err := lex.Next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Kind == EOF {
			return &Parser{toks: toks}, nil
		}
	}
}

func (p *Parser) peek() Token { return p.toks[p.pos] }

func (p *Parser) next() Token {
	tok := p.toks[p.pos]
	if tok.Kind != EOF {
		p.pos++
	}
	return tok
}

func (p *Parser) skipSeparators() {
	for p.peek().Kind == NEWLINE || p.peek().Kind == SEMICOLON {
		p.pos++
	}
}

func (p *Parser) expect(kind TokenKind) (Token, error) {
	tok := p.peek()
	if tok.Kind != kind {
		return tok, &ParseError{
			Msg:    fmt.Sprintf("expected %s, found %s", kind, tok.Kind),
			Token:  tok.Text,
			Offset: tok.Offset,
		}
	}
	return p.next(), nil
}

func (p *Parser) parseStatement() (Node, error) {
	if p.peek().Kind == IDENT && p.toks[p.pos+1].Kind == ASSIGN {
		ident := p.next()
		p.next() // '='
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &Assign{Ident: ident.Text, Value: value}, nil
	}
	return p.parseExpr()
}

func (p *Parser) parseExpr() (Node, error) { return p.parseOr() }

func (p *Parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == OR {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: OR, L: left, R: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == AND {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: AND, L: left, R: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (Node, error) {
	if p.peek().Kind == NOT {
		p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &NotOp{X: x}, nil
	}
	return p.parseCmp()
}

func (p *Parser) parseCmp() (Node, error) {
	left, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	switch op := p.peek().Kind; op {
	case EQ, NEQ, LT, LE, GT, GE:
		p.next()
		right, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, L: left, R: right}
		// Comparisons do not chain.
		switch tok := p.peek(); tok.Kind {
		case EQ, NEQ, LT, LE, GT, GE:
			return nil, &ParseError{Msg: "comparisons cannot be chained", Token: tok.Text, Offset: tok.Offset}
		}
	}
	return left, nil
}

func (p *Parser) parseSum() (Node, error) {
	left, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek().Kind
		if op != PLUS && op != MINUS {
			return left, nil
		}
		p.next()
		right, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, L: left, R: right}
	}
}

func (p *Parser) parseMul() (Node, error) {
	left, err := p.parsePow()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek().Kind
		if op != STAR && op != SLASH {
			return left, nil
		}
		p.next()
		right, err := p.parsePow()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, L: left, R: right}
	}
}

// parsePow handles '**', which is right-associative and binds looser than
// the unary sign.
func (p *Parser) parsePow() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.peek().Kind == POW {
		p.next()
		right, err := p.parsePow()
		if err != nil {
			return nil, err
		}
		return &Binary{Op: POW, L: left, R: right}, nil
	}
	return left, nil
}

func (p *Parser) parseUnary() (Node, error) {
	switch p.peek().Kind {
	case MINUS:
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: MINUS, X: x}, nil
	case PLUS:
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: PLUS, X: x}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Node, error) {
	tok := p.peek()
	switch tok.Kind {
	case NUMBER:
		p.next()
		v, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			return nil, &ParseError{Msg: "malformed number", Token: tok.Text, Offset: tok.Offset}
		}
		return &NumberLit{Value: v, Text: tok.Text}, nil

	case IDENT:
		p.next()
		return &Name{Ident: tok.Text, Offset: tok.Offset}, nil

	case QUALIFIED:
		p.next()
		qualifier, ident, ok := splitQualified(tok.Text)
		if !ok {
			return nil, &ParseError{Msg: "malformed qualified name", Token: tok.Text, Offset: tok.Offset}
		}
		if qualifier != "global" {
			return nil, &ParseError{
				Msg:    fmt.Sprintf("unknown namespace %q (only 'global' is defined)", qualifier),
				Token:  tok.Text,
				Offset: tok.Offset,
			}
		}
		return &QualifiedName{Qualifier: qualifier, Ident: ident, Offset: tok.Offset}, nil

	case SIGIL:
		return p.parseCall()

	case LPAREN:
		p.next()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return nil, &ParseError{Msg: "expected expression", Token: tok.Text, Offset: tok.Offset}
}

func (p *Parser) parseCall() (Node, error) {
	tok := p.next() // SIGIL
	name := tok.Text[1:]
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	var args []Node
	if p.peek().Kind != RPAREN {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().Kind != COMMA {
				break
			}
			p.next()
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return &Call{Func: name, Args: args, Offset: tok.Offset}, nil
}

func splitQualified(text string) (qualifier, ident string, ok bool) {
	for i := 0; i < len(text); i++ {
		if text[i] == '.' {
			return text[:i], text[i+1:], i > 0 && i < len(text)-1
		}
	}
	return "", "", false
}
