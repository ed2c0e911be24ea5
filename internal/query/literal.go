package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Literal is a sealed interface for typed scalar values produced by the rich
// grammar. Only Null, Bool, Number, String, UUID and List implement it.
type Literal interface {
	literal()
	json.Marshaler
}

// Null is the null/none/None keyword.
type Null struct{}

func (Null) literal() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// Bool is a true/false keyword, matched case-insensitively.
type Bool bool

func (Bool) literal() {}

// MarshalJSON implements json.Marshaler for Bool.
func (b Bool) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatBool(bool(b))), nil
}

// Number is a numeric literal. Integral values are still floats and are
// written with a fraction: 1 encodes as 1.0.
type Number float64

func (Number) literal() {}

// MarshalJSON implements json.Marshaler for Number.
func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("unsupported number %v", f)
	}
	return []byte(formatNumber(f)), nil
}

// String is a quoted string or a bare identifier used as a value.
type String string

func (String) literal() {}

// MarshalJSON implements json.Marshaler for String.
func (s String) MarshalJSON() ([]byte, error) {
	return marshalString(string(s))
}

// UUID is a bare 8-4-4-4-12 hex token, kept exactly as typed. It encodes as
// a JSON string.
type UUID string

func (UUID) literal() {}

// MarshalJSON implements json.Marshaler for UUID.
func (u UUID) MarshalJSON() ([]byte, error) {
	return marshalString(string(u))
}

// List is a bracketed list of literals.
type List []Literal

func (List) literal() {}

// MarshalJSON implements json.Marshaler for List. A nil List encodes as [].
func (l List) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range l {
		if i > 0 {
			buf.WriteString(", ")
		}
		b, err := elem.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("list[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	numberPattern     = regexp.MustCompile(`^[+-]?[0-9]+(\.[0-9]*)?([eE][+-]?[0-9]+)?$`)
)

// TypeLiteral applies the literal typing rules to an unquoted token, in
// priority order: null keyword, boolean keyword, UUID, identifier, number.
// The second result reports whether the token was a bare identifier, which
// is the only term allowed on the left of a comparison.
//
// Quoted text must not be passed here; it is always a String.
func TypeLiteral(token string) (lit Literal, identifier bool, err error) {
	switch {
	case isNullKeyword(token):
		return Null{}, false, nil
	case strings.EqualFold(token, "true"):
		return Bool(true), false, nil
	case strings.EqualFold(token, "false"):
		return Bool(false), false, nil
	case isUUID(token):
		return UUID(token), false, nil
	case identifierPattern.MatchString(token):
		return String(token), true, nil
	case numberPattern.MatchString(token):
		f, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return nil, false, fmt.Errorf("number %q out of range", token)
		}
		return Number(f), false, nil
	default:
		return nil, false, fmt.Errorf("unrecognized term %q", token)
	}
}

func isNullKeyword(token string) bool {
	switch token {
	case "null", "none", "None":
		return true
	default:
		return false
	}
}

// isUUID accepts only the hyphenated 36-character form. uuid.Parse alone
// also accepts braces, URNs and bare hex.
func isUUID(token string) bool {
	if len(token) != 36 {
		return false
	}
	_, err := uuid.Parse(token)
	return err == nil
}

// formatNumber renders f the way the service's own client does: shortest
// round-trip digits, always with a fraction or an exponent.
func formatNumber(f float64) string {
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

// marshalString encodes s as a JSON string without HTML escaping, so values
// like "<none>" reach the service unchanged.
func marshalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
