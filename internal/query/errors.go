package query

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. Every error returned by Compile matches ErrSyntax;
// every error returned by CompileCompact or ParseFilterParam matches ErrValue.
var (
	ErrSyntax = errors.New("query syntax error")
	ErrValue  = errors.New("query value error")
)

// SyntaxError reports a rich expression that cannot be tokenized or parsed
// to completion.
type SyntaxError struct {
	Input   string
	Pos     int // byte offset into Input
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at position %d: %s", e.Pos, e.Message)
}

// Is matches ErrSyntax.
func (e *SyntaxError) Is(target error) bool {
	return target == ErrSyntax
}

// ValueError reports a malformed compact clause.
type ValueError struct {
	Clause  string
	Message string
}

func (e *ValueError) Error() string {
	return e.Message
}

// Is matches ErrValue.
func (e *ValueError) Is(target error) bool {
	return target == ErrValue
}

func syntaxErrorf(input string, pos int, format string, args ...any) *SyntaxError {
	return &SyntaxError{
		Input:   input,
		Pos:     pos,
		Message: fmt.Sprintf(format, args...),
	}
}
