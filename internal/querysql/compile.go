package querysql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/aodh/internal/query"
)

// ErrUnsupported is returned for filters that have no SQL rendering.
var ErrUnsupported = errors.New("unsupported filter")

// Compiler compiles rich filter trees to parameterized SQLite WHERE
// fragments.
//
// Values are never interpolated into the SQL text; every literal becomes a
// ? placeholder with its value in the returned params.
type Compiler struct {
	// Columns maps filter field names to column names. Fields missing from
	// the map are rejected.
	Columns map[string]string
}

// NewCompiler creates a Compiler over the given field-to-column mapping.
func NewCompiler(columns map[string]string) *Compiler {
	return &Compiler{Columns: columns}
}

// Where compiles n to a WHERE fragment (without the WHERE keyword).
// A nil filter compiles to "1 = 1".
func (c *Compiler) Where(n query.Node) (string, []any, error) {
	if n == nil {
		return "1 = 1", nil, nil
	}

	switch node := n.(type) {
	case *query.Comparison:
		return c.compileComparison(node)
	case *query.Not:
		inner, params, err := c.Where(node.Operand)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + inner + ")", params, nil
	case *query.Junction:
		return c.compileJunction(node)
	default:
		return "", nil, fmt.Errorf("%w: node type %T", ErrUnsupported, n)
	}
}

func (c *Compiler) compileJunction(j *query.Junction) (string, []any, error) {
	if len(j.Operands) == 0 {
		return "1 = 1", nil, nil
	}

	sep := " AND "
	if j.Op == query.Or {
		sep = " OR "
	}

	parts := make([]string, 0, len(j.Operands))
	var params []any
	for _, operand := range j.Operands {
		sql, p, err := c.Where(operand)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, p...)
	}
	return "(" + strings.Join(parts, sep) + ")", params, nil
}

func (c *Compiler) compileComparison(cmp *query.Comparison) (string, []any, error) {
	column, ok := c.Columns[cmp.Field]
	if !ok {
		return "", nil, fmt.Errorf("%w: unknown field %q", ErrUnsupported, cmp.Field)
	}

	switch v := cmp.Value.(type) {
	case query.Null:
		switch cmp.Op {
		case query.Eq:
			return column + " IS NULL", nil, nil
		case query.Ne:
			return column + " IS NOT NULL", nil, nil
		}
		return "", nil, fmt.Errorf("%w: %s %s null", ErrUnsupported, cmp.Field, cmp.Op.Symbol())
	case query.List:
		return compileList(column, cmp, v)
	}

	param, err := literalToParam(cmp.Value)
	if err != nil {
		return "", nil, fmt.Errorf("field %q: %w", cmp.Field, err)
	}
	return fmt.Sprintf("%s %s ?", column, cmp.Op.Symbol()), []any{param}, nil
}

// compileList renders = and != against a list as IN and NOT IN.
func compileList(column string, cmp *query.Comparison, list query.List) (string, []any, error) {
	var keyword string
	switch cmp.Op {
	case query.Eq:
		keyword = " IN "
	case query.Ne:
		keyword = " NOT IN "
	default:
		return "", nil, fmt.Errorf("%w: %s %s list", ErrUnsupported, cmp.Field, cmp.Op.Symbol())
	}
	if len(list) == 0 {
		return "", nil, fmt.Errorf("%w: empty list for %s", ErrUnsupported, cmp.Field)
	}

	params := make([]any, 0, len(list))
	for _, item := range list {
		p, err := literalToParam(item)
		if err != nil {
			return "", nil, fmt.Errorf("field %q: %w", cmp.Field, err)
		}
		params = append(params, p)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(list)), ", ")
	return column + keyword + "(" + placeholders + ")", params, nil
}

// literalToParam converts a scalar literal to a database/sql parameter.
func literalToParam(v query.Literal) (any, error) {
	switch val := v.(type) {
	case query.String:
		return string(val), nil
	case query.UUID:
		return string(val), nil
	case query.Number:
		return float64(val), nil
	case query.Bool:
		return bool(val), nil
	case query.Null:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: literal type %T", ErrUnsupported, v)
	}
}
