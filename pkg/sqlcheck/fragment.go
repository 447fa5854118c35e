// Package sqlcheck screens model-authored SQL WHERE fragments before they
// are embedded in generated queries.
package sqlcheck

import (
	"errors"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
)

var (
	// ErrMultipleStatements indicates the fragment contains a statement
	// separator; a WHERE fragment must be a single expression.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed in a condition fragment")
)

// NormalizeFragment trims the fragment, strips a trailing semicolon, and
// rejects any remaining semicolon outside string literals.
func NormalizeFragment(fragment string) (string, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return "", nil
	}

	normalized := stripTrailingSemicolon(fragment)
	if hasSemicolonOutsideStrings(normalized) {
		return "", ErrMultipleStatements
	}
	return normalized, nil
}

// ScreenResult reports a fragment that matched a known injection pattern.
type ScreenResult struct {
	IsSQLi      bool
	Fingerprint string
}

// Screen runs libinjection over the fragment. A hit does not prove malice --
// the model may legitimately author unusual predicates -- so callers surface
// it as a review signal rather than a rejection.
func Screen(fragment string) *ScreenResult {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(fragment)
	if !isSQLi {
		return nil
	}
	return &ScreenResult{
		IsSQLi:      true,
		Fingerprint: string(fingerprint),
	}
}

// hasSemicolonOutsideStrings returns true if the fragment contains any
// semicolon outside of string literals.
func hasSemicolonOutsideStrings(fragment string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	state := stateNormal
	prevChar := rune(0)

	for _, char := range fragment {
		switch state {
		case stateNormal:
			switch char {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			// Handles both backslash escape (\') and SQL doubled quote ('')
			if char == '\'' && prevChar != '\\' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' && prevChar != '\\' {
				state = stateNormal
			}
		}
		prevChar = char
	}

	return false
}

// stripTrailingSemicolon removes one trailing semicolon and surrounding
// whitespace.
func stripTrailingSemicolon(fragment string) string {
	fragment = strings.TrimRight(fragment, " \t\n\r")
	if strings.HasSuffix(fragment, ";") {
		fragment = strings.TrimSuffix(fragment, ";")
		fragment = strings.TrimRight(fragment, " \t\n\r")
	}
	return fragment
}
