package query

import "strings"

// Compile parses a rich filter expression into a filter tree.
//
// Grammar, loosest binding first:
//
//	expr       = orExpr
//	orExpr     = andExpr { "or" andExpr }
//	andExpr    = notExpr { "and" notExpr }
//	notExpr    = "not" notExpr | primary
//	primary    = "(" expr ")" | comparison
//	comparison = identifier compareOp value
//	value      = term | "[" [ term { "," term } ] "]"
//	compareOp  = ">=" | "<=" | "!=" | ">" | "<" | "=" | "==" | eq | ne | lt | le | gt | ge
//
// Errors are *SyntaxError and match ErrSyntax.
func Compile(expr string) (Node, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, syntaxErrorf(expr, 0, "empty expression")
	}

	tokens, err := tokenize(expr)
	if err != nil {
		return nil, err
	}

	p := &parser{input: expr, tokens: tokens}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.current(); tok.Kind != tokEOF {
		return nil, syntaxErrorf(expr, tok.Pos, "unexpected %s after complete expression", tok.describe())
	}
	return node, nil
}

// MustCompile is like Compile but panics on error. Intended for filters
// written in code.
func MustCompile(expr string) Node {
	node, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return node
}

type parser struct {
	input  string
	tokens []token
	pos    int
}

func (p *parser) current() token {
	return p.tokens[p.pos]
}

func (p *parser) advance() token {
	tok := p.tokens[p.pos]
	if tok.Kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind tokenKind) (token, error) {
	tok := p.current()
	if tok.Kind != kind {
		return tok, p.unexpected(tok, kind.String())
	}
	return p.advance(), nil
}

func (p *parser) unexpected(tok token, want string) *SyntaxError {
	if tok.Kind == tokEOF {
		return syntaxErrorf(p.input, tok.Pos, "expected %s, found end of input", want)
	}
	return syntaxErrorf(p.input, tok.Pos, "expected %s, found %q", want, tok.Text)
}

func (p *parser) parseOr() (Node, error) {
	return p.parseChain(Or, tokOr, p.parseAnd)
}

func (p *parser) parseAnd() (Node, error) {
	return p.parseChain(And, tokAnd, p.parseNot)
}

// parseChain collects operand (sep operand)* and folds the operands into a
// single junction.
func (p *parser) parseChain(op Logic, sep tokenKind, operand func() (Node, error)) (Node, error) {
	first, err := operand()
	if err != nil {
		return nil, err
	}
	operands := []Node{first}
	for p.current().Kind == sep {
		p.advance()
		next, err := operand()
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
	}
	if len(operands) == 1 {
		return first, nil
	}
	return foldChain(op, operands), nil
}

// foldChain reduces X1 op X2 op ... op Xn from the right: the accumulator
// starts at Xn and each preceding operand is appended to it when it is
// already a junction of op, otherwise both are wrapped in a new junction.
// The operands list therefore reads Xn, ..., X1, and a parenthesized
// junction of the same op in last position absorbs the whole chain.
// Operand nodes are never modified; an absorbing junction is copied first.
func foldChain(op Logic, operands []Node) Node {
	acc := operands[len(operands)-1]
	owned := false
	for i := len(operands) - 2; i >= 0; i-- {
		if j, ok := acc.(*Junction); ok && j.Op == op {
			if !owned {
				j = &Junction{Op: op, Operands: append([]Node(nil), j.Operands...)}
				owned = true
			}
			j.Operands = append(j.Operands, operands[i])
			acc = j
			continue
		}
		acc = &Junction{Op: op, Operands: []Node{acc, operands[i]}}
		owned = true
	}
	return acc
}

// parseNot is right-associative: not not a=1 is {"not": {"not": ...}}.
func (p *parser) parseNot() (Node, error) {
	if p.current().Kind == tokNot {
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Not{Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.current()
	switch tok.Kind {
	case tokLParen:
		p.advance()
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return node, nil
	case tokTerm:
		return p.parseComparison()
	default:
		return nil, p.unexpected(tok, "comparison or \"(\"")
	}
}

func (p *parser) parseComparison() (Node, error) {
	fieldTok := p.advance()
	if !fieldTok.Ident {
		return nil, syntaxErrorf(p.input, fieldTok.Pos, "expected field name, found %q", fieldTok.Text)
	}

	op, err := p.parseOperator()
	if err != nil {
		return nil, err
	}

	value, err := p.parseValue()
	if err != nil {
		return nil, err
	}

	return &Comparison{
		Field: string(fieldTok.Value.(String)),
		Op:    op,
		Value: value,
	}, nil
}

// parseOperator accepts a symbol or a bare word form such as `le`.
func (p *parser) parseOperator() (Operator, error) {
	tok := p.current()
	switch {
	case tok.Kind == tokCompare:
		p.advance()
		return tok.Op, nil
	case tok.Kind == tokTerm && tok.Ident:
		if op, ok := ParseOperator(tok.Text); ok {
			p.advance()
			return op, nil
		}
	}
	return 0, p.unexpected(tok, "comparison operator")
}

func (p *parser) parseValue() (Literal, error) {
	tok := p.current()
	switch tok.Kind {
	case tokTerm:
		p.advance()
		return tok.Value, nil
	case tokLBracket:
		return p.parseList()
	default:
		return nil, p.unexpected(tok, "value")
	}
}

// parseList reads [term, term, ...]. Elements are scalar terms only.
func (p *parser) parseList() (Literal, error) {
	p.advance()
	list := List{}
	if p.current().Kind == tokRBracket {
		p.advance()
		return list, nil
	}
	for {
		tok, err := p.expect(tokTerm)
		if err != nil {
			return nil, err
		}
		list = append(list, tok.Value)

		switch p.current().Kind {
		case tokComma:
			p.advance()
		case tokRBracket:
			p.advance()
			return list, nil
		default:
			return nil, p.unexpected(p.current(), `"," or "]"`)
		}
	}
}
