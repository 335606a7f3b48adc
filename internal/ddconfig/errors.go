package ddconfig

import (
	"fmt"
	"strings"
)

// ParseError is a load-time diagnostic carrying enough location context to
// point an operator at the offending line of the config file: every
// config-shaped parse failure in this codebase reads the same way.
type ParseError struct {
	File    string
	Line    int
	Field   string
	Message string
	Hint    string
}

func (e *ParseError) Error() string {
	var parts []string
	if e.File != "" {
		parts = append(parts, e.File)
	}
	if e.Line > 0 {
		parts = append(parts, fmt.Sprintf("line %d", e.Line))
	}
	if e.Field != "" {
		parts = append(parts, e.Field)
	}

	location := strings.Join(parts, ":")
	if location != "" {
		return fmt.Sprintf("%s: %s", location, e.Message)
	}
	return e.Message
}
