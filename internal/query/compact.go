package query

import (
	"fmt"
	"net/url"
	"strings"
)

// ValueType is the declared type tag of a compact clause value. The service
// uses it to interpret Item.Value; Untyped leaves the choice to the service.
type ValueType int

const (
	Untyped ValueType = iota
	TypeString
	TypeInteger
	TypeFloat
	TypeDatetime
	TypeBoolean
)

func (t ValueType) String() string {
	switch t {
	case Untyped:
		return ""
	case TypeString:
		return "string"
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeDatetime:
		return "datetime"
	case TypeBoolean:
		return "boolean"
	default:
		return fmt.Sprintf("ValueType(%d)", int(t))
	}
}

// MarshalText implements encoding.TextMarshaler; Untyped encodes as "".
func (t ValueType) MarshalText() ([]byte, error) {
	if t < Untyped || t > TypeBoolean {
		return nil, fmt.Errorf("invalid value type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ValueType) UnmarshalText(text []byte) error {
	parsed, ok := ParseValueType(string(text))
	if !ok {
		return fmt.Errorf("unknown value type %q", string(text))
	}
	*t = parsed
	return nil
}

// ParseValueType maps a declared type tag to its ValueType. The empty string
// is Untyped.
func ParseValueType(s string) (ValueType, bool) {
	switch s {
	case "":
		return Untyped, true
	case "string":
		return TypeString, true
	case "integer":
		return TypeInteger, true
	case "float":
		return TypeFloat, true
	case "datetime":
		return TypeDatetime, true
	case "boolean":
		return TypeBoolean, true
	default:
		return 0, false
	}
}

// Item is one clause of the compact grammar. Value is the raw text after the
// operator (and after the type tag, if any), never interpreted here.
type Item struct {
	Field string    `json:"field" yaml:"field"`
	Op    Operator  `json:"op" yaml:"op"`
	Type  ValueType `json:"type" yaml:"type"`
	Value string    `json:"value" yaml:"value"`
}

// typeSeparator splits a declared type from the value: `string::foo`.
const typeSeparator = "::"

// CompileCompact parses a `;`-separated list of `field<op>[type::]value`
// clauses, e.g. "this<=34;that=string::foo".
//
// Neither `;` nor the operator symbols can be escaped inside values; a value
// containing them is split like any other clause. Errors are *ValueError and
// match ErrValue.
func CompileCompact(expr string) ([]Item, error) {
	clauses := strings.Split(expr, ";")
	items := make([]Item, 0, len(clauses))
	for _, clause := range clauses {
		item, err := compileClause(clause)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func compileClause(clause string) (Item, error) {
	idx, symbol := findOperator(clause)
	if idx < 0 {
		return Item{}, &ValueError{
			Clause: clause,
			Message: fmt.Sprintf("invalid or missing operator in query %s, the supported operators are: %s",
				clause, strings.Join(compactSymbols, ", ")),
		}
	}

	field := clause[:idx]
	typeValue := clause[idx+len(symbol):]
	if field == "" {
		return Item{}, &ValueError{Clause: clause, Message: fmt.Sprintf("missing field in query %s", clause)}
	}
	if typeValue == "" {
		return Item{}, &ValueError{Clause: clause, Message: fmt.Sprintf("missing value in query %s", clause)}
	}

	op, _ := ParseOperator(symbol)
	item := Item{Field: field, Op: op, Value: typeValue}

	if tag, value, found := strings.Cut(typeValue, typeSeparator); found {
		vt, ok := ParseValueType(tag)
		if !ok {
			return Item{}, &ValueError{
				Clause: clause,
				Message: fmt.Sprintf("invalid value type %s, the type of value should be one of: "+
					"integer, string, float, datetime, boolean", tag),
			}
		}
		item.Type = vt
		item.Value = value
	}
	return item, nil
}

// findOperator returns the leftmost operator symbol in clause, preferring
// the longest symbol at that position.
func findOperator(clause string) (int, string) {
	for i := 0; i < len(clause); i++ {
		for _, symbol := range compactSymbols {
			if strings.HasPrefix(clause[i:], symbol) {
				return i, symbol
			}
		}
	}
	return -1, ""
}

// ParseFilterParam parses a `key=value` list filter into an equality Item.
// The value is everything after the first `=` and may be empty.
func ParseFilterParam(param string) (Item, error) {
	key, value, found := strings.Cut(param, "=")
	if !found {
		return Item{}, &ValueError{
			Clause:  param,
			Message: fmt.Sprintf("malformed parameter(%s), use the key=value format", param),
		}
	}
	return Item{Field: key, Op: Eq, Value: value}, nil
}

// EncodeItems renders items as repeated q.field/q.op/q.value/q.type groups,
// one group per item, in input order.
func EncodeItems(items []Item) string {
	parts := make([]string, 0, len(items)*4)
	for _, item := range items {
		parts = append(parts,
			"q.field="+url.QueryEscape(item.Field),
			"q.op="+item.Op.Name(),
			"q.value="+url.QueryEscape(item.Value),
			"q.type="+item.Type.String(),
		)
	}
	return strings.Join(parts, "&")
}
