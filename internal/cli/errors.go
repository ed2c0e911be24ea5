package cli

import (
	"errors"
	"fmt"

	"github.com/roach88/aodh/internal/client"
	"github.com/roach88/aodh/internal/config"
	"github.com/roach88/aodh/internal/query"
	"github.com/roach88/aodh/internal/querysql"
	"github.com/roach88/aodh/internal/store"
)

// Error codes for CLI output.
const (
	ErrCodeGeneric  = "E001" // Generic/unknown error, bad flag combination
	ErrCodeSyntax   = "E201" // Rich query syntax error
	ErrCodeValue    = "E202" // Compact query or filter value error
	ErrCodeConfig   = "E203" // Invalid or incomplete configuration
	ErrCodeRemote   = "E204" // Alarm service returned an error
	ErrCodeStore    = "E205" // Saved-query database error
	ErrCodeNotFound = "E206" // Saved query not found
)

// UsageError is a flag or argument combination the command rejects.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string { return e.Message }

func usageErrorf(format string, args ...any) error {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

// storeError marks failures of the saved-query database.
type storeError struct {
	err error
}

func (e *storeError) Error() string { return e.err.Error() }
func (e *storeError) Unwrap() error { return e.err }

// classify maps err to an error code, an exit code, details for the output
// envelope and the service request ID if there is one.
func classify(err error) (code string, exit int, details any, traceID string) {
	var (
		syntaxErr *query.SyntaxError
		valueErr  *query.ValueError
		cfgErr    *config.Error
		httpErr   *client.HTTPError
		usageErr  *UsageError
		storeErr  *storeError
	)

	switch {
	case errors.As(err, &syntaxErr):
		return ErrCodeSyntax, ExitCommandError, map[string]any{
			"input":    syntaxErr.Input,
			"position": syntaxErr.Pos,
		}, ""
	case errors.As(err, &valueErr):
		return ErrCodeValue, ExitCommandError, map[string]any{"clause": valueErr.Clause}, ""
	case errors.As(err, &cfgErr):
		if cfgErr.Field != "" {
			return ErrCodeConfig, ExitCommandError, map[string]any{"field": cfgErr.Field}, ""
		}
		return ErrCodeConfig, ExitCommandError, nil, ""
	case errors.As(err, &usageErr):
		return ErrCodeGeneric, ExitCommandError, nil, ""
	case errors.Is(err, store.ErrNotFound):
		return ErrCodeNotFound, ExitCommandError, nil, ""
	case errors.Is(err, store.ErrExists), errors.Is(err, store.ErrInvalidName):
		return ErrCodeStore, ExitCommandError, nil, ""
	case errors.Is(err, querysql.ErrUnsupported):
		return ErrCodeGeneric, ExitCommandError, nil, ""
	case errors.As(err, &storeErr):
		return ErrCodeStore, ExitFailure, nil, ""
	case errors.As(err, &httpErr):
		details := map[string]any{
			"status": httpErr.Status,
			"method": httpErr.Method,
			"url":    httpErr.URL,
		}
		if httpErr.RetryAfter > 0 {
			details["retry_after"] = httpErr.RetryAfter
		}
		return ErrCodeRemote, ExitFailure, details, httpErr.RequestID
	default:
		return ErrCodeGeneric, ExitFailure, nil, ""
	}
}

// fail reports err through the formatter and returns the ExitError the
// command should return.
func fail(formatter *OutputFormatter, err error) error {
	code, exit, details, traceID := classify(err)
	_ = formatter.Error(code, err.Error(), details, traceID)
	return WrapExitError(exit, code, err)
}
