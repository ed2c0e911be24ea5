package query

import "fmt"

// Operator is a comparison operator shared by both grammars.
type Operator int

const (
	Eq Operator = iota
	Ne
	Lt
	Le
	Gt
	Ge
)

// Symbol returns the canonical symbol used as the key of a comparison in the
// rich filter tree.
func (op Operator) Symbol() string {
	switch op {
	case Eq:
		return "="
	case Ne:
		return "!="
	case Lt:
		return "<"
	case Le:
		return "<="
	case Gt:
		return ">"
	case Ge:
		return ">="
	default:
		return fmt.Sprintf("Operator(%d)", int(op))
	}
}

// Name returns the canonical word form used by the compact grammar and the
// list API (q.op).
func (op Operator) Name() string {
	switch op {
	case Eq:
		return "eq"
	case Ne:
		return "ne"
	case Lt:
		return "lt"
	case Le:
		return "le"
	case Gt:
		return "gt"
	case Ge:
		return "ge"
	default:
		return fmt.Sprintf("Operator(%d)", int(op))
	}
}

func (op Operator) String() string {
	return op.Name()
}

// Valid reports whether op is one of the declared operators.
func (op Operator) Valid() bool {
	return op >= Eq && op <= Ge
}

// MarshalText writes the word form, so Items encode as {"op": "le"}.
func (op Operator) MarshalText() ([]byte, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("invalid operator %d", int(op))
	}
	return []byte(op.Name()), nil
}

// UnmarshalText accepts any spelling ParseOperator accepts.
func (op *Operator) UnmarshalText(text []byte) error {
	parsed, ok := ParseOperator(string(text))
	if !ok {
		return fmt.Errorf("unknown operator %q", string(text))
	}
	*op = parsed
	return nil
}

// ParseOperator maps a symbol (`>=`, `==`, ...) or word form (`ge`, ...) to
// its Operator. Both `=` and `==` mean equality.
func ParseOperator(s string) (Operator, bool) {
	switch s {
	case "=", "==", "eq":
		return Eq, true
	case "!=", "ne":
		return Ne, true
	case "<", "lt":
		return Lt, true
	case "<=", "le":
		return Le, true
	case ">", "gt":
		return Gt, true
	case ">=", "ge":
		return Ge, true
	default:
		return 0, false
	}
}

// compactSymbols are the operator spellings recognized by the compact
// grammar, longest first so `>=` wins over `>` at the same position.
var compactSymbols = []string{">=", "<=", "!=", ">", "<", "="}
