package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/aodh/internal/query"
	"github.com/roach88/aodh/internal/querysql"
)

var (
	// ErrNotFound is returned when no saved query has the requested name.
	ErrNotFound = errors.New("saved query not found")

	// ErrExists is returned by Save when the name is taken and Overwrite
	// was not requested.
	ErrExists = errors.New("saved query already exists")

	// ErrInvalidName is returned for names that are empty after trimming.
	ErrInvalidName = errors.New("invalid saved query name")
)

// Grammar names the query language an expression is written in.
type Grammar string

const (
	GrammarRich    Grammar = "rich"
	GrammarCompact Grammar = "compact"
)

// SavedQuery is one stored expression.
type SavedQuery struct {
	Name       string    `json:"name" yaml:"name"`
	Grammar    Grammar   `json:"grammar" yaml:"grammar"`
	Expression string    `json:"expression" yaml:"expression"`
	Compiled   string    `json:"compiled" yaml:"compiled"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// SaveOptions controls Save.
type SaveOptions struct {
	Overwrite bool
}

// NormalizeName trims surrounding space and applies Unicode NFC.
func NormalizeName(name string) (string, error) {
	n := norm.NFC.String(strings.TrimSpace(name))
	if n == "" {
		return "", ErrInvalidName
	}
	return n, nil
}

// CompileExpression compiles expr with the given grammar and returns its
// wire form: the filter JSON for rich expressions, the item list as JSON
// for compact ones.
func CompileExpression(grammar Grammar, expr string) (string, error) {
	switch grammar {
	case GrammarRich:
		node, err := query.Compile(expr)
		if err != nil {
			return "", err
		}
		return query.Encode(node)
	case GrammarCompact:
		items, err := query.CompileCompact(expr)
		if err != nil {
			return "", err
		}
		data, err := json.Marshal(items)
		if err != nil {
			return "", fmt.Errorf("encode items: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unknown grammar %q", grammar)
	}
}

// Save compiles expr and stores it under name. On a compilation error
// nothing is written and the error matches query.ErrSyntax or
// query.ErrValue.
func (s *Store) Save(ctx context.Context, name string, grammar Grammar, expr string, opts SaveOptions) (SavedQuery, error) {
	key, err := NormalizeName(name)
	if err != nil {
		return SavedQuery{}, fmt.Errorf("save query %q: %w", name, err)
	}

	compiled, err := CompileExpression(grammar, expr)
	if err != nil {
		return SavedQuery{}, fmt.Errorf("save query %q: %w", key, err)
	}

	saved := SavedQuery{
		Name:       key,
		Grammar:    grammar,
		Expression: expr,
		Compiled:   compiled,
		CreatedAt:  s.now().UTC().Truncate(time.Second),
	}

	stmt := `
		INSERT INTO saved_queries (name, grammar, expression, compiled, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if opts.Overwrite {
		stmt += `
		ON CONFLICT(name) DO UPDATE SET
			grammar = excluded.grammar,
			expression = excluded.expression,
			compiled = excluded.compiled,
			created_at = excluded.created_at
		`
	}

	_, err = s.db.ExecContext(ctx, stmt,
		saved.Name,
		string(saved.Grammar),
		saved.Expression,
		saved.Compiled,
		saved.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isPrimaryKeyConflict(err) {
			return SavedQuery{}, fmt.Errorf("save query %q: %w", key, ErrExists)
		}
		return SavedQuery{}, fmt.Errorf("save query %q: %w", key, err)
	}

	return saved, nil
}

// Get returns the saved query with the given name.
func (s *Store) Get(ctx context.Context, name string) (SavedQuery, error) {
	key, err := NormalizeName(name)
	if err != nil {
		return SavedQuery{}, fmt.Errorf("get query %q: %w", name, err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT name, grammar, expression, compiled, created_at
		FROM saved_queries
		WHERE name = ?
	`, key)

	saved, err := scanSavedQuery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SavedQuery{}, fmt.Errorf("get query %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return SavedQuery{}, fmt.Errorf("get query %q: %w", key, err)
	}
	return saved, nil
}

// List returns saved queries ordered by name. An empty grammar lists all.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) List(ctx context.Context, grammar Grammar) ([]SavedQuery, error) {
	var filter query.Node
	if grammar != "" {
		filter = query.EqualTo("grammar", query.String(grammar))
	}
	return s.Search(ctx, filter)
}

// searchColumns maps filter fields to saved_queries columns.
var searchColumns = map[string]string{
	"name":       "name",
	"grammar":    "grammar",
	"expression": "expression",
	"compiled":   "compiled",
	"created_at": "created_at",
}

// Search returns saved queries matching a rich filter, ordered by name.
// A nil filter matches everything. Fields other than the saved_queries
// columns are rejected with querysql.ErrUnsupported.
func (s *Store) Search(ctx context.Context, filter query.Node) ([]SavedQuery, error) {
	where, params, err := querysql.NewCompiler(searchColumns).Where(filter)
	if err != nil {
		return nil, fmt.Errorf("search queries: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, grammar, expression, compiled, created_at
		FROM saved_queries
		WHERE `+where+`
		ORDER BY name COLLATE BINARY ASC
	`, params...)
	if err != nil {
		return nil, fmt.Errorf("search queries: %w", err)
	}
	defer rows.Close()

	saved := []SavedQuery{}
	for rows.Next() {
		q, err := scanSavedQuery(rows)
		if err != nil {
			return nil, fmt.Errorf("search queries: %w", err)
		}
		saved = append(saved, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queries: %w", err)
	}
	return saved, nil
}

// Delete removes the saved query with the given name.
func (s *Store) Delete(ctx context.Context, name string) error {
	key, err := NormalizeName(name)
	if err != nil {
		return fmt.Errorf("delete query %q: %w", name, err)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM saved_queries WHERE name = ?`, key)
	if err != nil {
		return fmt.Errorf("delete query %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete query %q: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("delete query %q: %w", key, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSavedQuery(row rowScanner) (SavedQuery, error) {
	var (
		q         SavedQuery
		grammar   string
		createdAt string
	)
	if err := row.Scan(&q.Name, &grammar, &q.Expression, &q.Compiled, &createdAt); err != nil {
		return SavedQuery{}, err
	}
	q.Grammar = Grammar(grammar)

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return SavedQuery{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	q.CreatedAt = t
	return q, nil
}

func isPrimaryKeyConflict(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
