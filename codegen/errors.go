package codegen

import (
	"fmt"
	"strings"
)

// Diagnostic is one class-1 AST structural violation (§7): the emitter
// skips the offending sub-expression and keeps compiling the rest.
type Diagnostic struct {
	Message string
	Line    int
	Column  int
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("line %d:%d: %s", d.Line, d.Column, d.Message)
}

// ErrorSink accumulates Diagnostics across a single Compile call, modeled
// on the teacher's *Parser error-collection pattern.
type ErrorSink struct {
	diagnostics []Diagnostic
}

func (s *ErrorSink) report(d Diagnostic) {
	s.diagnostics = append(s.diagnostics, d)
}

func (s *ErrorSink) hasErrors() bool { return len(s.diagnostics) > 0 }

// CompileError wraps every Diagnostic a single Compile call collected.
// Unwrap() []error lets callers use errors.Is/errors.As across the whole
// batch.
type CompileError struct {
	Diagnostics []Diagnostic
}

func (e *CompileError) Error() string {
	msgs := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		msgs[i] = d.Error()
	}
	return fmt.Sprintf("codegen: %d error(s): %s", len(e.Diagnostics), strings.Join(msgs, "; "))
}

func (e *CompileError) Unwrap() []error {
	errs := make([]error, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		errs[i] = d
	}
	return errs
}

// InvariantError is a class-2 programmer invariant violation (§7): the
// emitter panics one of these when it detects state that makes correct
// code generation impossible to continue (unbalanced fixups, an unbound
// identifier, redefinition, break/continue outside a loop). Compile
// recovers it once, at the top level, and returns it as a plain error.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string { return "codegen: invariant violated: " + e.Msg }
