package search

import "fmt"

// ConfigError is §7 error kind 3: a fatal-on-construction problem, raised
// as a plain error rather than a panic since it originates from caller
// input (board size, evaluator dimensions) rather than an internal
// invariant violation.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("search: config error: %s", e.Reason)
}

func newConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}
