package query

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Node is a sealed interface for filter-tree nodes. Only *Comparison, *Not
// and *Junction implement it, so type switches over Node are exhaustive:
//
//	switch n := node.(type) {
//	case *Comparison:
//	case *Not:
//	case *Junction:
//	}
//
// Trees returned by Compile are not modified afterwards.
type Node interface {
	filterNode()
	json.Marshaler
}

// Comparison is a leaf: Field Op Value. It encodes as {"<symbol>": {"<field>": value}}.
type Comparison struct {
	Field string
	Op    Operator
	Value Literal
}

func (*Comparison) filterNode() {}

// MarshalJSON implements json.Marshaler for Comparison.
func (c *Comparison) MarshalJSON() ([]byte, error) {
	if !c.Op.Valid() {
		return nil, fmt.Errorf("comparison on %q: invalid operator %d", c.Field, int(c.Op))
	}
	if c.Value == nil {
		return nil, fmt.Errorf("comparison on %q: missing value", c.Field)
	}
	key, err := marshalString(c.Op.Symbol())
	if err != nil {
		return nil, err
	}
	field, err := marshalString(c.Field)
	if err != nil {
		return nil, err
	}
	value, err := c.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("comparison on %q: %w", c.Field, err)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	buf.Write(key)
	buf.WriteString(": {")
	buf.Write(field)
	buf.WriteString(": ")
	buf.Write(value)
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

// Not negates its operand. It encodes as {"not": operand}.
type Not struct {
	Operand Node
}

func (*Not) filterNode() {}

// MarshalJSON implements json.Marshaler for Not.
func (n *Not) MarshalJSON() ([]byte, error) {
	if n.Operand == nil {
		return nil, fmt.Errorf("not: missing operand")
	}
	inner, err := n.Operand.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("not: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(`{"not": `)
	buf.Write(inner)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Logic is the operator of a Junction.
type Logic int

const (
	And Logic = iota
	Or
)

func (l Logic) String() string {
	switch l {
	case And:
		return "and"
	case Or:
		return "or"
	default:
		return fmt.Sprintf("Logic(%d)", int(l))
	}
}

// Junction is an and/or over two or more operands. It encodes as
// {"and": [operands...]} in Operands order.
type Junction struct {
	Op       Logic
	Operands []Node
}

func (*Junction) filterNode() {}

// MarshalJSON implements json.Marshaler for Junction.
func (j *Junction) MarshalJSON() ([]byte, error) {
	if j.Op != And && j.Op != Or {
		return nil, fmt.Errorf("junction: invalid operator %d", int(j.Op))
	}
	if len(j.Operands) < 2 {
		return nil, fmt.Errorf("%s: needs at least 2 operands, got %d", j.Op, len(j.Operands))
	}

	var buf bytes.Buffer
	buf.WriteString(`{"`)
	buf.WriteString(j.Op.String())
	buf.WriteString(`": [`)
	for i, operand := range j.Operands {
		if i > 0 {
			buf.WriteString(", ")
		}
		b, err := operand.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", j.Op, i, err)
		}
		buf.Write(b)
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

// EqualTo builds the single comparison field = value.
func EqualTo(field string, value Literal) *Comparison {
	return &Comparison{Field: field, Op: Eq, Value: value}
}

// AllOf combines filters with and, collecting operands in the same reversed
// order Compile uses for `n1 and n2 and ...`. Nil filters are skipped; a
// single remaining filter is returned as is.
func AllOf(nodes ...Node) Node {
	var present []Node
	for _, n := range nodes {
		if n != nil {
			present = append(present, n)
		}
	}
	switch len(present) {
	case 0:
		return nil
	case 1:
		return present[0]
	}
	return foldChain(And, present)
}

// Encode returns the wire form of a filter tree: the same bytes the service's
// own client sends, with ", " and ": " separators and no HTML escaping.
func Encode(n Node) (string, error) {
	if n == nil {
		return "", fmt.Errorf("encode: nil filter")
	}
	b, err := n.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
