// Completion: 100% - Error handling complete, clear and helpful messages
package main

import (
	"fmt"
	"strings"
)

// ErrorCategory classifies the type of error
type ErrorCategory int

const (
	CategoryFormat ErrorCategory = iota
	CategoryUnsupported
	CategoryMissingSymbol
	CategoryInternal
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryFormat:
		return "format"
	case CategoryUnsupported:
		return "unsupported"
	case CategoryMissingSymbol:
		return "missing symbol"
	case CategoryInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// CompilerError is fatal to the current compilation unit. Nothing is
// retried.
type CompilerError struct {
	Category ErrorCategory
	Message  string
	Method   string // Enclosing method name, if known
}

// Error implements the error interface
func (e *CompilerError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("%s: %s: %s", e.Category, e.Method, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// Format returns the diagnostic line printed by the CLI
func (e *CompilerError) Format(useColor bool) string {
	var sb strings.Builder
	if useColor {
		sb.WriteString("\033[1;31m") // Bold red
	}
	sb.WriteString("error")
	if useColor {
		sb.WriteString("\033[0m")
	}
	sb.WriteString(": ")
	sb.WriteString(e.Error())
	return sb.String()
}

func formatError(format string, args ...interface{}) error {
	return &CompilerError{Category: CategoryFormat, Message: fmt.Sprintf(format, args...)}
}

func unsupportedError(format string, args ...interface{}) error {
	return &CompilerError{Category: CategoryUnsupported, Message: fmt.Sprintf(format, args...)}
}

func missingSymbolError(format string, args ...interface{}) error {
	return &CompilerError{Category: CategoryMissingSymbol, Message: fmt.Sprintf(format, args...)}
}

func internalError(format string, args ...interface{}) error {
	return &CompilerError{Category: CategoryInternal, Message: fmt.Sprintf(format, args...)}
}

// inMethod attaches the enclosing method name to a CompilerError once,
// leaving other error values untouched.
func inMethod(err error, method string) error {
	if ce, ok := err.(*CompilerError); ok && ce.Method == "" {
		ce.Method = method
	}
	return err
}
