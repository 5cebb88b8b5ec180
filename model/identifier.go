package model

import (
	"fmt"
	"regexp"
)

// MaxIdentifierLength bounds project, version and task names.
const MaxIdentifierLength = 255

var identifierExpr = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// ValidateIdentifier checks that value is safe to use as a path element.
// kind names the identifier in the returned error (project, version, task).
func ValidateIdentifier(kind, value string) error {
	switch {
	case value == "":
		return fmt.Errorf("%w: %s is empty", ErrInvalidIdentifier, kind)
	case len(value) > MaxIdentifierLength:
		return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidIdentifier, kind, MaxIdentifierLength)
	case value == "." || value == "..":
		return fmt.Errorf("%w: %s %q", ErrInvalidIdentifier, kind, value)
	case !identifierExpr.MatchString(value):
		return fmt.Errorf("%w: %s %q contains disallowed characters", ErrInvalidIdentifier, kind, value)
	}
	return nil
}

// ValidateIdentifiers validates name/value pairs in order and returns the
// first failure.
func ValidateIdentifiers(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := ValidateIdentifier(pairs[i], pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}
