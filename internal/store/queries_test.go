package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/aodh/internal/query"
	"github.com/roach88/aodh/internal/querysql"
)

func TestSave_RichRoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, "noisy", GrammarRich, `state="alarm" and severity!="low"`, SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, `{"and": [{"!=": {"severity": "low"}}, {"=": {"state": "alarm"}}]}`, saved.Compiled)

	got, err := s.Get(ctx, "noisy")
	require.NoError(t, err)
	assert.Equal(t, saved, got)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC), got.CreatedAt)
}

func TestSave_CompactRoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, "cpu", GrammarCompact, "cpu_util>=integer::80;state=alarm", SaveOptions{})
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"field": "cpu_util", "op": "ge", "type": "integer", "value": "80"},
		{"field": "state", "op": "eq", "type": "", "value": "alarm"}
	]`, saved.Compiled)

	got, err := s.Get(ctx, "cpu")
	require.NoError(t, err)
	assert.Equal(t, GrammarCompact, got.Grammar)
	assert.Equal(t, "cpu_util>=integer::80;state=alarm", got.Expression)
}

func TestSave_RejectsInvalidExpressions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, "bad", GrammarRich, `state="alarm" and`, SaveOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, query.ErrSyntax)

	_, err = s.Save(ctx, "bad", GrammarCompact, "state", SaveOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, query.ErrValue)

	_, err = s.Save(ctx, "bad", Grammar("sql"), "select 1", SaveOptions{})
	require.Error(t, err)

	_, err = s.Get(ctx, "bad")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSave_DuplicateName(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, "q", GrammarRich, `a=1`, SaveOptions{})
	require.NoError(t, err)

	_, err = s.Save(ctx, "q", GrammarRich, `a=2`, SaveOptions{})
	assert.ErrorIs(t, err, ErrExists)

	_, err = s.Save(ctx, "q", GrammarCompact, "a=2", SaveOptions{Overwrite: true})
	require.NoError(t, err)

	got, err := s.Get(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, GrammarCompact, got.Grammar)
	assert.Equal(t, "a=2", got.Expression)
}

func TestNames_AreNFCNormalized(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	decomposed := "cafe\u0301"
	composed := "caf\u00e9"

	saved, err := s.Save(ctx, " "+decomposed+" ", GrammarRich, `a=1`, SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, composed, saved.Name)

	got, err := s.Get(ctx, composed)
	require.NoError(t, err)
	assert.Equal(t, composed, got.Name)

	_, err = s.Save(ctx, composed, GrammarRich, `a=2`, SaveOptions{})
	assert.ErrorIs(t, err, ErrExists)

	_, err = s.Save(ctx, "   ", GrammarRich, `a=1`, SaveOptions{})
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestList(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	empty, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	for _, q := range []struct {
		name    string
		grammar Grammar
		expr    string
	}{
		{"zeta", GrammarRich, `a=1`},
		{"alpha", GrammarCompact, "a=1"},
		{"Mid", GrammarRich, `b=2`},
	} {
		_, err := s.Save(ctx, q.name, q.grammar, q.expr, SaveOptions{})
		require.NoError(t, err)
	}

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Mid", "alpha", "zeta"}, names(all))

	rich, err := s.List(ctx, GrammarRich)
	require.NoError(t, err)
	assert.Equal(t, []string{"Mid", "zeta"}, names(rich))
}

func TestSearch(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, q := range []struct {
		name    string
		grammar Grammar
		expr    string
	}{
		{"cpu-high", GrammarRich, `meter="cpu" and value>80`},
		{"cpu-low", GrammarCompact, "meter=cpu"},
		{"disk", GrammarRich, `meter="disk"`},
	} {
		_, err := s.Save(ctx, q.name, q.grammar, q.expr, SaveOptions{})
		require.NoError(t, err)
	}

	got, err := s.Search(ctx, query.MustCompile(`grammar="rich" and name!="disk"`))
	require.NoError(t, err)
	assert.Equal(t, []string{"cpu-high"}, names(got))

	got, err = s.Search(ctx, query.MustCompile(`name=["disk", "cpu-low"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"cpu-low", "disk"}, names(got))

	got, err = s.Search(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = s.Search(ctx, query.MustCompile(`name="nothing"`))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, err = s.Search(ctx, query.MustCompile(`state="alarm"`))
	assert.ErrorIs(t, err, querysql.ErrUnsupported)
}

func TestDelete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, "gone", GrammarRich, `a=1`, SaveOptions{})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "gone"))

	_, err = s.Get(ctx, "gone")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, "gone"), ErrNotFound)
}

func TestOperations_HonorCanceledContext(t *testing.T) {
	s := createTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Save(ctx, "q", GrammarRich, `a=1`, SaveOptions{})
	assert.Error(t, err)

	_, err = s.List(ctx, "")
	assert.Error(t, err)
}

func names(saved []SavedQuery) []string {
	out := make([]string, 0, len(saved))
	for _, q := range saved {
		out = append(out, q.Name)
	}
	return out
}
