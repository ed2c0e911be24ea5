package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/aodh/internal/query"
)

var testColumns = map[string]string{
	"name":    "name",
	"grammar": "grammar",
	"created": "created_at",
}

func TestWhere_Comparison(t *testing.T) {
	c := NewCompiler(testColumns)

	sql, params, err := c.Where(query.MustCompile(`grammar="rich"`))
	require.NoError(t, err)
	assert.Equal(t, "grammar = ?", sql)
	assert.Equal(t, []any{"rich"}, params)

	// Values are never interpolated.
	assert.NotContains(t, sql, "rich")
}

func TestWhere_ColumnMapping(t *testing.T) {
	c := NewCompiler(testColumns)

	sql, params, err := c.Where(query.MustCompile(`created>="2024-01-01"`))
	require.NoError(t, err)
	assert.Equal(t, "created_at >= ?", sql)
	assert.Equal(t, []any{"2024-01-01"}, params)
}

func TestWhere_Junctions(t *testing.T) {
	c := NewCompiler(testColumns)

	sql, params, err := c.Where(query.MustCompile(`grammar="rich" and (name="a" or name!="b")`))
	require.NoError(t, err)
	assert.Equal(t, "((name != ? OR name = ?) AND grammar = ?)", sql)
	assert.Equal(t, []any{"b", "a", "rich"}, params)
}

func TestWhere_Not(t *testing.T) {
	c := NewCompiler(testColumns)

	sql, params, err := c.Where(query.MustCompile(`not name="x"`))
	require.NoError(t, err)
	assert.Equal(t, "NOT (name = ?)", sql)
	assert.Equal(t, []any{"x"}, params)
}

func TestWhere_NullAndList(t *testing.T) {
	c := NewCompiler(testColumns)

	sql, params, err := c.Where(&query.Comparison{Field: "name", Op: query.Eq, Value: query.Null{}})
	require.NoError(t, err)
	assert.Equal(t, "name IS NULL", sql)
	assert.Empty(t, params)

	sql, _, err = c.Where(&query.Comparison{Field: "name", Op: query.Ne, Value: query.Null{}})
	require.NoError(t, err)
	assert.Equal(t, "name IS NOT NULL", sql)

	sql, params, err = c.Where(&query.Comparison{
		Field: "name",
		Op:    query.Ne,
		Value: query.List{query.String("a"), query.Number(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, "name NOT IN (?, ?)", sql)
	assert.Equal(t, []any{"a", float64(2)}, params)
}

func TestWhere_Nil(t *testing.T) {
	sql, params, err := NewCompiler(testColumns).Where(nil)
	require.NoError(t, err)
	assert.Equal(t, "1 = 1", sql)
	assert.Nil(t, params)
}

func TestWhere_Unsupported(t *testing.T) {
	c := NewCompiler(testColumns)

	testCases := []struct {
		name string
		node query.Node
	}{
		{"unknown field", query.MustCompile(`state="alarm"`)},
		{"ordered null", &query.Comparison{Field: "name", Op: query.Lt, Value: query.Null{}}},
		{"ordered list", &query.Comparison{Field: "name", Op: query.Gt, Value: query.List{query.String("a")}}},
		{"empty list", &query.Comparison{Field: "name", Op: query.Eq, Value: query.List{}}},
		{"nested unknown", query.MustCompile(`name="a" or state="ok"`)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := c.Where(tc.node)
			assert.ErrorIs(t, err, ErrUnsupported)
		})
	}
}
