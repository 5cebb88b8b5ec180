package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// NewFunc returns a new globally unique token. Override in tests for
// deterministic identifiers.
var NewFunc = func() string { return strings.ReplaceAll(uuid.New().String(), "-", "") }

// New returns a new job identifier.
func New() string { return NewFunc() }
