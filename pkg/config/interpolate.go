package config

import (
	"fmt"
	"strings"
)

// LookupFunc resolves an interpolation variable. The second return
// reports whether the variable is set at all, which decides between the
// ${VAR-def} and ${VAR:-def} forms.
type LookupFunc func(name string) (string, bool)

// Interpolate expands environment references in a descriptor before it
// is parsed. Supported forms:
//
//	$VAR, ${VAR}       value of VAR, empty when unset
//	${VAR:-default}    default when VAR is unset or empty
//	${VAR-default}     default when VAR is unset
//	${VAR:?message}    error when VAR is unset or empty
//	${VAR?message}     error when VAR is unset
//	$$                 literal dollar sign
//
// Defaults may themselves contain references, which are expanded
// recursively.
func Interpolate(input string, lookup LookupFunc) (string, error) {
	var out strings.Builder
	out.Grow(len(input))

	for i := 0; i < len(input); {
		c := input[i]
		if c != '$' {
			out.WriteByte(c)
			i++
			continue
		}
		if i+1 >= len(input) {
			return "", fmt.Errorf("invalid interpolation format near %q", tail(input, i))
		}
		next := input[i+1]
		switch {
		case next == '$':
			out.WriteByte('$')
			i += 2
		case next == '{':
			body, end, err := bracedBody(input, i+2)
			if err != nil {
				return "", err
			}
			expanded, err := expandExpression(body, lookup)
			if err != nil {
				return "", err
			}
			out.WriteString(expanded)
			i = end
		default:
			name := leadingName(input[i+1:])
			if name == "" {
				return "", fmt.Errorf("invalid interpolation format near %q", tail(input, i))
			}
			value, _ := lookup(name)
			out.WriteString(value)
			i += 1 + len(name)
		}
	}

	return out.String(), nil
}

// bracedBody extracts the contents of a ${...} expression starting with
// start pointing just past the opening brace. Nested ${...} references
// inside defaults are kept intact for recursive expansion.
func bracedBody(input string, start int) (body string, end int, err error) {
	depth := 0
	for i := start; i < len(input); i++ {
		switch {
		case input[i] == '$' && i+1 < len(input) && input[i+1] == '{':
			depth++
			i++
		case input[i] == '}':
			if depth == 0 {
				return input[start:i], i + 1, nil
			}
			depth--
		}
	}
	return "", 0, fmt.Errorf("unclosed variable reference near %q", tail(input, start-2))
}

// expandExpression evaluates the inside of a ${...} reference.
func expandExpression(body string, lookup LookupFunc) (string, error) {
	name := leadingName(body)
	if name == "" {
		return "", fmt.Errorf("invalid variable reference ${%s}", body)
	}
	rest := body[len(name):]
	value, set := lookup(name)

	switch {
	case rest == "":
		return value, nil
	case strings.HasPrefix(rest, ":-"):
		if set && value != "" {
			return value, nil
		}
		return Interpolate(rest[2:], lookup)
	case strings.HasPrefix(rest, "-"):
		if set {
			return value, nil
		}
		return Interpolate(rest[1:], lookup)
	case strings.HasPrefix(rest, ":?"):
		if set && value != "" {
			return value, nil
		}
		return "", requiredError(name, rest[2:])
	case strings.HasPrefix(rest, "?"):
		if set {
			return value, nil
		}
		return "", requiredError(name, rest[1:])
	default:
		return "", fmt.Errorf("invalid variable reference ${%s}", body)
	}
}

func requiredError(name, message string) error {
	if message == "" {
		return fmt.Errorf("required variable %s is missing a value", name)
	}
	return fmt.Errorf("required variable %s is missing a value: %s", name, message)
}

// leadingName returns the longest valid variable name prefix of s.
func leadingName(s string) string {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' {
			continue
		}
		if c >= '0' && c <= '9' && i > 0 {
			continue
		}
		return s[:i]
	}
	return s
}

// tail returns a short context snippet for error messages.
func tail(input string, from int) string {
	const window = 20
	end := from + window
	if end > len(input) {
		end = len(input)
	}
	return input[from:end]
}
