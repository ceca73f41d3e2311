// Package sqlguard converts named-placeholder SQL into positional-parameter
// statements and redacts sensitive parameters for logging. Every statement
// the chat pipeline runs against Postgres passes through Prepare.
package sqlguard

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrQuestionPlaceholder indicates a ?-style placeholder outside a string literal.
	ErrQuestionPlaceholder = errors.New("sqlguard: '?' placeholders are not supported")
	// ErrUnboundParameter indicates a :name with no entry in the parameter map.
	ErrUnboundParameter = errors.New("sqlguard: unbound named parameter")
	// ErrUndefinedValue indicates a parameter bound to an undefined (nil) value.
	ErrUndefinedValue = errors.New("sqlguard: undefined parameter value")
	// ErrResidualParameter indicates a :name token survived substitution.
	ErrResidualParameter = errors.New("sqlguard: residual named parameter after substitution")
)

// Prepared is a positional-parameter statement ready for database/sql.
type Prepared struct {
	SQL    string
	Values []any
}

// Prepare rewrites every :name occurrence to $1,$2,... in first-seen order.
// Repeated names reuse the same positional index. String literals are left
// untouched. Postgres ::type casts are not treated as parameters.
func Prepare(sql string, params map[string]any) (Prepared, error) {
	var out strings.Builder
	values := make([]any, 0, len(params))
	indexByName := make(map[string]int, len(params))

	runes := []rune(sql)
	for i := 0; i < len(runes); {
		ch := runes[i]
		switch ch {
		case '\'':
			end, err := skipLiteral(runes, i)
			if err != nil {
				return Prepared{}, err
			}
			out.WriteString(string(runes[i:end]))
			i = end
		case '?':
			return Prepared{}, fmt.Errorf("%w at offset %d", ErrQuestionPlaceholder, i)
		case ':':
			if i+1 < len(runes) && runes[i+1] == ':' {
				// type cast, not a parameter
				out.WriteString("::")
				i += 2
				continue
			}
			name, end := readName(runes, i+1)
			if name == "" {
				out.WriteRune(ch)
				i++
				continue
			}
			index, seen := indexByName[name]
			if !seen {
				value, bound := params[name]
				if !bound {
					return Prepared{}, fmt.Errorf("%w: :%s", ErrUnboundParameter, name)
				}
				if value == nil {
					return Prepared{}, fmt.Errorf("%w: :%s", ErrUndefinedValue, name)
				}
				values = append(values, value)
				index = len(values)
				indexByName[name] = index
			}
			fmt.Fprintf(&out, "$%d", index)
			i = end
		default:
			out.WriteRune(ch)
			i++
		}
	}

	prepared := Prepared{SQL: out.String(), Values: values}
	if name := residualParameter(prepared.SQL); name != "" {
		return Prepared{}, fmt.Errorf("%w: :%s", ErrResidualParameter, name)
	}
	return prepared, nil
}

// skipLiteral returns the index just past a single-quoted literal starting at
// start, honouring doubled-quote escapes.
func skipLiteral(runes []rune, start int) (int, error) {
	i := start + 1
	for i < len(runes) {
		if runes[i] == '\'' {
			if i+1 < len(runes) && runes[i+1] == '\'' {
				i += 2
				continue
			}
			return i + 1, nil
		}
		i++
	}
	return 0, errors.New("sqlguard: unterminated string literal")
}

func readName(runes []rune, start int) (string, int) {
	i := start
	if i >= len(runes) || !isNameStart(runes[i]) {
		return "", start
	}
	for i < len(runes) && isNameRune(runes[i]) {
		i++
	}
	return string(runes[start:i]), i
}

func isNameStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isNameRune(r rune) bool {
	return isNameStart(r) || (r >= '0' && r <= '9')
}

// residualParameter re-scans substituted SQL for any surviving :name token
// outside string literals and returns its name, or "" when clean.
func residualParameter(sql string) string {
	runes := []rune(sql)
	for i := 0; i < len(runes); {
		switch runes[i] {
		case '\'':
			end, err := skipLiteral(runes, i)
			if err != nil {
				return ""
			}
			i = end
		case ':':
			if i+1 < len(runes) && runes[i+1] == ':' {
				i += 2
				continue
			}
			if name, _ := readName(runes, i+1); name != "" {
				return name
			}
			i++
		default:
			i++
		}
	}
	return ""
}
