package codegen

import (
	"fmt"

	"doublefn/ast"
)

// visitCallExpression emits §4.7's runtime-binding sequence for "name |
// arg": evaluate the argument into a fresh slot, load it into xmm0, load
// the registered helper's address into rax via movabs, and call through
// rax. The AST has no dedicated call node for built-ins — the parser
// reuses the bitwise-or token for this form — so the only class-1
// violation left to check here is whether name is actually registered;
// the parser already rejected a non-identifier callee.
func (g *CodeGenerator) visitCallExpression(e *ast.CallExpression, dest int) {
	name := e.Function.Value

	addr, ok := g.runtime.Address(name)
	if !ok {
		g.sink.report(Diagnostic{
			Message: fmt.Sprintf("call to unregistered runtime function %q", name),
			Line:    e.Token.Line,
			Column:  e.Token.Column,
		})
		return
	}

	if len(e.Arguments) != 1 {
		g.sink.report(Diagnostic{
			Message: fmt.Sprintf("runtime call to %q takes exactly one argument, got %d", name, len(e.Arguments)),
			Line:    e.Token.Line,
			Column:  e.Token.Column,
		})
		return
	}

	argSlot := g.symbols.freshSlot()
	g.visitExpression(e.Arguments[0], argSlot)

	g.buf.movsdXmmMemLoad(0, displacement(argSlot))
	g.buf.movabsRAXCallRAX(addr)
	g.buf.movsdMemXmmStore(displacement(dest), 0)
}
