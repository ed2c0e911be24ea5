package query

import "fmt"

// tokenKind identifies the lexical class of a rich-grammar token.
type tokenKind int

const (
	tokEOF tokenKind = iota
	tokTerm
	tokCompare
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokTerm:
		return "term"
	case tokCompare:
		return "comparison operator"
	case tokAnd:
		return `"and"`
	case tokOr:
		return `"or"`
	case tokNot:
		return `"not"`
	case tokLParen:
		return `"("`
	case tokRParen:
		return `")"`
	case tokLBracket:
		return `"["`
	case tokRBracket:
		return `"]"`
	case tokComma:
		return `","`
	default:
		return fmt.Sprintf("token(%d)", int(k))
	}
}

// token is a single lexeme. Terms carry their typed literal; Text is the
// source spelling.
type token struct {
	Kind  tokenKind
	Text  string
	Pos   int
	Value Literal
	Ident bool     // unquoted identifier
	Op    Operator // set for tokCompare
}

// describe names a token for error messages. Terms and operators also show
// their source spelling; punctuation and keywords are already quoted by kind.
func (t token) describe() string {
	switch t.Kind {
	case tokTerm, tokCompare:
		return fmt.Sprintf("%s %q", t.Kind, t.Text)
	default:
		return t.Kind.String()
	}
}

// lexer splits a rich expression into tokens. It works on bytes: every
// structural character is ASCII and quoted text is copied through verbatim.
type lexer struct {
	input string
	pos   int
}

func newLexer(input string) *lexer {
	return &lexer{input: input}
}

// tokenize returns all tokens of the input, ending with tokEOF.
func tokenize(input string) ([]token, error) {
	lx := newLexer(input)
	var tokens []token
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == tokEOF {
			return tokens, nil
		}
	}
}

func (lx *lexer) next() (token, error) {
	lx.skipWhitespace()
	if lx.pos >= len(lx.input) {
		return token{Kind: tokEOF, Pos: lx.pos}, nil
	}

	start := lx.pos
	ch := lx.input[lx.pos]
	switch ch {
	case '(':
		lx.pos++
		return token{Kind: tokLParen, Text: "(", Pos: start}, nil
	case ')':
		lx.pos++
		return token{Kind: tokRParen, Text: ")", Pos: start}, nil
	case '[':
		lx.pos++
		return token{Kind: tokLBracket, Text: "[", Pos: start}, nil
	case ']':
		lx.pos++
		return token{Kind: tokRBracket, Text: "]", Pos: start}, nil
	case ',':
		lx.pos++
		return token{Kind: tokComma, Text: ",", Pos: start}, nil
	case '"', '\'':
		return lx.quoted(ch)
	case '<', '>', '=', '!':
		return lx.compare()
	}

	if !isBareChar(ch) {
		return token{}, syntaxErrorf(lx.input, start, "unexpected character %q", ch)
	}
	return lx.bare()
}

func (lx *lexer) skipWhitespace() {
	for lx.pos < len(lx.input) {
		switch lx.input[lx.pos] {
		case ' ', '\t', '\n', '\r':
			lx.pos++
		default:
			return
		}
	}
}

// quoted reads text up to the matching quote character. There is no escape
// processing.
func (lx *lexer) quoted(quote byte) (token, error) {
	start := lx.pos
	lx.pos++
	for lx.pos < len(lx.input) && lx.input[lx.pos] != quote {
		lx.pos++
	}
	if lx.pos >= len(lx.input) {
		return token{}, syntaxErrorf(lx.input, start, "unterminated quoted string")
	}
	text := lx.input[start+1 : lx.pos]
	lx.pos++
	return token{
		Kind:  tokTerm,
		Text:  lx.input[start:lx.pos],
		Pos:   start,
		Value: String(text),
	}, nil
}

// compare reads a symbolic comparison operator, preferring two characters.
func (lx *lexer) compare() (token, error) {
	start := lx.pos
	if lx.pos+2 <= len(lx.input) {
		if op, ok := ParseOperator(lx.input[lx.pos : lx.pos+2]); ok {
			lx.pos += 2
			return token{Kind: tokCompare, Text: lx.input[start:lx.pos], Pos: start, Op: op}, nil
		}
	}
	if op, ok := ParseOperator(lx.input[lx.pos : lx.pos+1]); ok {
		lx.pos++
		return token{Kind: tokCompare, Text: lx.input[start:lx.pos], Pos: start, Op: op}, nil
	}
	return token{}, syntaxErrorf(lx.input, start, "unexpected character %q", lx.input[start])
}

// bare reads a maximal run of unquoted term characters and classifies it.
func (lx *lexer) bare() (token, error) {
	start := lx.pos
	for lx.pos < len(lx.input) && isBareChar(lx.input[lx.pos]) {
		lx.pos++
	}
	text := lx.input[start:lx.pos]

	switch text {
	case "and":
		return token{Kind: tokAnd, Text: text, Pos: start}, nil
	case "or":
		return token{Kind: tokOr, Text: text, Pos: start}, nil
	case "not":
		return token{Kind: tokNot, Text: text, Pos: start}, nil
	}

	lit, ident, err := TypeLiteral(text)
	if err != nil {
		return token{}, syntaxErrorf(lx.input, start, "%v", err)
	}
	return token{Kind: tokTerm, Text: text, Pos: start, Value: lit, Ident: ident}, nil
}

// isBareChar reports whether c can appear in an unquoted term: identifier
// characters plus the sign, point and hyphen used by numbers and UUIDs.
func isBareChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_', c == '-', c == '+', c == '.':
		return true
	default:
		return false
	}
}
