package script

import (
	"errors"
	"fmt"
)

// ErrMalformedRule is matched by every error returned while loading a script.
var ErrMalformedRule = errors.New("malformed rule definition")

// MalformedRuleError describes why a script was rejected at load time.
type MalformedRuleError struct {
	Keyword string // rule keyword, empty for script-level fields
	Field   string // offending field, e.g. "pattern" or "templates[2]"
	Reason  string
	Err     error
}

func (e *MalformedRuleError) Error() string {
	var where string
	switch {
	case e.Keyword != "" && e.Field != "":
		where = fmt.Sprintf("rule %q: %s", e.Keyword, e.Field)
	case e.Keyword != "":
		where = fmt.Sprintf("rule %q", e.Keyword)
	case e.Field != "":
		where = e.Field
	default:
		where = "script"
	}
	if e.Err != nil {
		return fmt.Sprintf("malformed rule definition: %s: %s: %v", where, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed rule definition: %s: %s", where, e.Reason)
}

func (e *MalformedRuleError) Unwrap() error {
	return e.Err
}

// Is reports ErrMalformedRule so callers can use errors.Is without a type switch.
func (e *MalformedRuleError) Is(target error) bool {
	return target == ErrMalformedRule
}

func malformed(keyword, field, reason string) *MalformedRuleError {
	return &MalformedRuleError{Keyword: keyword, Field: field, Reason: reason}
}
