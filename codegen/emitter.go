// Package codegen is the core of this module: the single-pass AST visitor
// that emits x86-64 SSE2 machine code for one function declaration (spec.md
// §1-§4, components C1-C6). It has no knowledge of how its output becomes
// callable — that is the exec package's job (C7).
package codegen

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/sirupsen/logrus"

	"doublefn/ast"
	"doublefn/runtime"
)

const registerArgCount = 4

// CodeGenerator is the long-lived generator state of §3: code buffer,
// literal pool, symbol table, fixup stacks, and error sink. It
// is reset at the start of every Compile call except the literal pool,
// which persists for the generator's lifetime because every executable
// page already produced from it points into its entries (§3 Lifecycle,
// §5 "Shared resources").
type CodeGenerator struct {
	log     logrus.FieldLogger
	runtime *runtime.Table

	buf      *codeBuffer
	literals *literalPool
	symbols  *symbolTable
	fixups   *fixupState
	sink     *ErrorSink
}

// Option configures a CodeGenerator at construction, following the
// teacher's constructor-with-defaults pattern (jit.NewJITCompiler) rather
// than a config struct.
type Option func(*CodeGenerator)

// WithLogger overrides the structured logger used for compilation
// lifecycle and error-path messages. Defaults to logrus.StandardLogger().
func WithLogger(l logrus.FieldLogger) Option {
	return func(g *CodeGenerator) { g.log = l }
}

// WithRuntime overrides the runtime-helper table used to resolve "name |
// arg" calls (§4.7). Defaults to runtime.Default. Tests that want to
// assert on a specific helper's behavior, or stub one out, should supply
// their own table rather than mutating runtime.Default.
func WithRuntime(t *runtime.Table) Option {
	return func(g *CodeGenerator) { g.runtime = t }
}

// New constructs a CodeGenerator. The literal pool is allocated once here
// and outlives every subsequent Compile call on this instance.
func New(opts ...Option) *CodeGenerator {
	g := &CodeGenerator{
		log:      logrus.StandardLogger(),
		runtime:  runtime.Default,
		literals: newLiteralPool(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Compile generates machine code for program's single function
// declaration (§1 "the core... translates a small JavaScript-like function
// body"). program must declare exactly one function; anything else is a
// class-1 structural violation reported as a plain error, not a
// *CompileError, since it is detected before any AST visiting begins.
//
// The returned bytes are a raw, unpublished instruction stream: callers
// hand them to exec.Publish to obtain an executable, callable function
// pointer (C7 is a separate concern from C1-C6).
func (g *CodeGenerator) Compile(program *ast.Program) (code []byte, err error) {
	if len(program.Functions) != 1 {
		return nil, fmt.Errorf("codegen: expected exactly one function declaration, got %d", len(program.Functions))
	}

	g.buf = newCodeBuffer()
	g.symbols = newSymbolTable()
	g.fixups = newFixupState()
	g.sink = &ErrorSink{}

	fn := program.Functions[0]
	log := g.log.WithFields(logrus.Fields{"component": "codegen", "function": fn.Name.Value})

	defer func() {
		if r := recover(); r != nil {
			ie, ok := r.(*InvariantError)
			if !ok {
				panic(r)
			}
			log.WithFields(logrus.Fields{"error": ie.Error()}).Error("compilation aborted")
			code, err = nil, ie
		}
	}()

	g.visitFunctionDeclaration(fn)

	if g.sink.hasErrors() {
		return nil, &CompileError{Diagnostics: g.sink.diagnostics}
	}
	if !g.fixups.empty() {
		panic(&InvariantError{Msg: "fixup stacks not empty at end of compilation"})
	}

	out := g.buf.bytesCopy()
	log.WithFields(logrus.Fields{"bytes": len(out)}).Debug("function compiled")
	return out, nil
}

// visitFunctionDeclaration emits the outer envelope (§4.4 "Function
// declaration"): prologue, parameter binding, body, return-fixup patching,
// frame-size patching, and epilogue.
func (g *CodeGenerator) visitFunctionDeclaration(fn *ast.FunctionDeclaration) {
	g.buf.pushRBP()
	g.buf.movRBPRSP()
	frameSizeOffset := g.buf.subRSPImm32(0)

	for i, param := range fn.Parameters {
		if i < registerArgCount {
			slot := g.symbols.define(param.Value)
			g.buf.movMemXmmStore(displacement(slot), i)
		} else {
			g.symbols.bindArg(param.Value, i)
		}
	}

	g.visitBlock(fn.Body)

	// Fall-through path: no explicit return executed, so xmm0 is
	// zeroed explicitly rather than relying on incidental register
	// state (§9 Design Notes, "Empty-function behavior").
	g.buf.xorpd(0, 0)

	epilogue := g.buf.len()
	for _, f := range g.fixups.drainReturns() {
		g.buf.patchJump(f.Offset, epilogue)
	}

	slots := g.symbols.frameSize()
	frameBytes := uint32(slots * 8)
	if slots%2 != 0 {
		frameBytes += 8
	}
	g.buf.patchU32(frameSizeOffset, frameBytes)

	g.buf.addRSPImm32(frameBytes)
	g.buf.movRSPRBP()
	g.buf.popRBP()
	g.buf.ret()
}

func (g *CodeGenerator) visitBlock(block *ast.BlockStatement) {
	for _, stmt := range block.Statements {
		g.visitStatement(stmt)
	}
}

func (g *CodeGenerator) visitStatement(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.VarStatement:
		g.visitVarStatement(s)
	case *ast.ExpressionStatement:
		if s.Expression != nil {
			slot := g.symbols.freshSlot()
			g.visitExpression(s.Expression, slot)
		}
	case *ast.BlockStatement:
		g.visitBlock(s)
	case *ast.IfStatement:
		g.visitIf(s)
	case *ast.WhileStatement:
		g.visitWhile(s)
	case *ast.ForStatement:
		g.visitFor(s)
	case *ast.BreakStatement:
		g.visitBreak(s)
	case *ast.ContinueStatement:
		g.visitContinue(s)
	default:
		panic(&InvariantError{Msg: fmt.Sprintf("unhandled statement node %T", stmt)})
	}
}

// visitVarStatement emits "var x = expr;" (§4.4 "Variable definition"):
// define the name, evaluate the initializer directly into its slot, then
// emit an explicit (possibly redundant) mov so correctness never depends
// on slot-reuse elision.
func (g *CodeGenerator) visitVarStatement(stmt *ast.VarStatement) {
	slot := g.symbols.define(stmt.Name.Value)
	g.visitExpression(stmt.Value, slot)
	g.buf.movsdXmmMemLoad(0, displacement(slot))
	g.buf.movsdMemXmmStore(displacement(slot), 0)
}

// visitForClauseStatement emits the init/update position of a for header,
// which admits a var declaration or a bare expression (§4.4 "For-statement").
func (g *CodeGenerator) visitForClauseStatement(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.VarStatement:
		g.visitVarStatement(s)
	case *ast.ExpressionStatement:
		slot := g.symbols.freshSlot()
		g.visitExpression(s.Expression, slot)
	default:
		panic(&InvariantError{Msg: fmt.Sprintf("unexpected for-clause statement %T", stmt)})
	}
}

func (g *CodeGenerator) visitIf(stmt *ast.IfStatement) {
	condSlot := g.symbols.freshSlot()
	g.visitExpression(stmt.Condition, condSlot)
	g.emitConditionalFalseJump(condSlot)

	g.visitBlock(stmt.Consequence)

	if stmt.Alternative == nil {
		g.patchConditionalFalseJump()
		return
	}

	skipElse := g.buf.jmpRel32Placeholder()
	g.fixups.pushForward(skipElse)

	g.patchConditionalFalseJump()
	g.visitBlock(stmt.Alternative)

	off, ok := g.fixups.popForward()
	if !ok {
		panic(&InvariantError{Msg: "forward-jump fixup stack underflow"})
	}
	g.buf.patchJump(off.Offset, g.buf.len())
}

func (g *CodeGenerator) visitWhile(stmt *ast.WhileStatement) {
	loop := g.fixups.beginLoop()
	loopTop := g.buf.len()

	condSlot := g.symbols.freshSlot()
	g.visitExpression(stmt.Condition, condSlot)
	g.emitConditionalFalseJump(condSlot)

	g.visitBlock(stmt.Body)
	g.buf.jmpBackTo(loopTop)

	g.patchConditionalFalseJump()

	after := g.buf.len()
	g.resolveLoopScope(loop, after, loopTop)
}

// visitFor emits "for (init; cond; update) { body }" (§4.4 "For-statement"):
// continue targets the update section, not the condition; the backward
// jump is placed after the update section, per §9's corrected structure.
func (g *CodeGenerator) visitFor(stmt *ast.ForStatement) {
	loop := g.fixups.beginLoop()

	if stmt.Init != nil {
		g.visitForClauseStatement(stmt.Init)
	}

	condTop := g.buf.len()
	hasCondition := stmt.Condition != nil
	if hasCondition {
		condSlot := g.symbols.freshSlot()
		g.visitExpression(stmt.Condition, condSlot)
		g.emitConditionalFalseJump(condSlot)
	}

	g.visitBlock(stmt.Body)

	iterTop := g.buf.len()
	if stmt.Update != nil {
		g.visitForClauseStatement(stmt.Update)
	}

	g.buf.jmpBackTo(condTop)

	if hasCondition {
		g.patchConditionalFalseJump()
	}

	after := g.buf.len()
	g.resolveLoopScope(loop, after, iterTop)
}

func (g *CodeGenerator) resolveLoopScope(loop *loopScope, breakTarget, continueTarget int) {
	current := g.fixups.endLoop()
	if current != loop {
		panic(&InvariantError{Msg: "loop scope stack imbalance"})
	}
	for _, f := range loop.breaks {
		g.buf.patchJump(f.Offset, breakTarget)
	}
	for _, f := range loop.continues {
		g.buf.patchJump(f.Offset, continueTarget)
	}
}

func (g *CodeGenerator) visitBreak(*ast.BreakStatement) {
	loop := g.fixups.currentLoop()
	if loop == nil {
		panic(&InvariantError{Msg: "break outside of loop"})
	}
	off := g.buf.jmpRel32Placeholder()
	loop.breaks = append(loop.breaks, Fixup{Offset: off})
}

func (g *CodeGenerator) visitContinue(*ast.ContinueStatement) {
	loop := g.fixups.currentLoop()
	if loop == nil {
		panic(&InvariantError{Msg: "continue outside of loop"})
	}
	off := g.buf.jmpRel32Placeholder()
	loop.continues = append(loop.continues, Fixup{Offset: off})
}

// emitConditionalFalseJump emits the "condition is false" protocol (§4.5):
// xorpd xmm0,xmm0; ucomisd xmm0,[cond]; jp; ucomisd xmm0,[cond]; je. Both
// placeholder offsets are pushed as a pair onto the conditional-jump fixup
// stack, to be patched to the same target by patchConditionalFalseJump.
func (g *CodeGenerator) emitConditionalFalseJump(condSlot int) {
	disp := displacement(condSlot)
	g.buf.xorpd(0, 0)
	g.buf.ucomisdXmmMem(0, disp)
	jpOff := g.buf.jp()
	g.buf.ucomisdXmmMem(0, disp)
	jeOff := g.buf.je()
	g.fixups.pushConditional(jpOff)
	g.fixups.pushConditional(jeOff)
}

func (g *CodeGenerator) patchConditionalFalseJump() {
	jp, je, ok := g.fixups.popConditionalPair()
	if !ok {
		panic(&InvariantError{Msg: "conditional-jump fixup stack underflow"})
	}
	target := g.buf.len()
	g.buf.patchJump(jp.Offset, target)
	g.buf.patchJump(je.Offset, target)
}

// visitExpression is the per-node contract of §4.4: expr writes its result
// into dest. dest plays the role of §4.4's "destination-slot stack" top —
// here it is an explicit parameter threaded through the recursive visit
// rather than a literal stack the Go call stack already does that job.
func (g *CodeGenerator) visitExpression(expr ast.Expression, dest int) {
	switch e := expr.(type) {
	case *ast.NumberLiteral:
		g.emitLiteral(e.Value, dest)
	case *ast.BooleanLiteral:
		v := 0.0
		if e.Value {
			v = 1.0
		}
		g.emitLiteral(v, dest)
	case *ast.NullLiteral:
		g.emitLiteral(0.0, dest)
	case *ast.UndefinedLiteral:
		g.emitLiteral(0.0, dest)
	case *ast.Identifier:
		g.emitIdentifierLoad(e.Value, dest)
	case *ast.InfixExpression:
		g.visitInfixExpression(e, dest)
	case *ast.PrefixExpression:
		g.visitPrefixExpression(e, dest)
	case *ast.CallExpression:
		g.visitCallExpression(e, dest)
	case *ast.ListExpression:
		g.visitListExpression(e, dest)
	default:
		panic(&InvariantError{Msg: fmt.Sprintf("unhandled expression node %T", expr)})
	}
}

// literalAddress interns v and returns its stable pool address for use in a
// movabsRAX immediate.
func (g *CodeGenerator) literalAddress(v float64) uint64 {
	entry := g.literals.intern(v)
	return uint64(uintptr(unsafe.Pointer(entry)))
}

// emitLiteral emits §4.4's "Literal" encoding: load the 64-bit bit pattern
// from the literal pool into rax (a raw address load then a dereference),
// then store it, still via a general-purpose register, into dest's slot.
func (g *CodeGenerator) emitLiteral(v float64, dest int) {
	g.buf.movabsRAX(g.literalAddress(v))
	g.buf.movRAXIndirect()
	g.buf.movMemRAXStore(displacement(dest))
}

// emitIdentifierLoad emits §4.4's "Identifier" encoding: a double-move from
// the source slot into dest, via xmm0.
func (g *CodeGenerator) emitIdentifierLoad(name string, dest int) {
	src := g.symbols.lookup(name)
	g.buf.movsdXmmMemLoad(0, displacement(src))
	g.buf.movsdMemXmmStore(displacement(dest), 0)
}

func (g *CodeGenerator) visitInfixExpression(e *ast.InfixExpression, dest int) {
	if e.Operator == "=" {
		g.visitAssignment(e, dest)
		return
	}

	leftSlot := g.operandSlot(e.Left)
	g.visitExpression(e.Left, leftSlot)
	rightSlot := g.operandSlot(e.Right)
	g.visitExpression(e.Right, rightSlot)

	g.buf.movsdXmmMemLoad(0, displacement(leftSlot))
	g.buf.movsdXmmMemLoad(1, displacement(rightSlot))

	switch e.Operator {
	case "+":
		g.buf.arithSD(0x58, 0, 1)
	case "-":
		g.buf.arithSD(0x5C, 0, 1)
	case "*":
		g.buf.arithSD(0x59, 0, 1)
	case "/":
		g.buf.arithSD(0x5E, 0, 1)
	case "<":
		g.emitComparison(0x01)
	case "<=":
		g.emitComparison(0x02)
	case ">":
		g.emitComparison(0x06)
	case ">=":
		g.emitComparison(0x05)
	case "==", "===":
		g.emitComparison(0x00)
	case "!=", "!==":
		g.emitComparison(0x04)
	case "&&":
		g.emitLogical(g.buf.pand)
	case "||":
		g.emitLogical(g.buf.por)
	default:
		panic(&InvariantError{Msg: "unknown infix operator " + e.Operator})
	}

	g.buf.movsdMemXmmStore(displacement(dest), 0)
}

// operandSlot picks a binary-expression operand's destination per §4.4's
// slot-reuse rule: a bare identifier reuses its own slot (no extra copy);
// anything else gets a fresh scratch slot.
func (g *CodeGenerator) operandSlot(expr ast.Expression) int {
	if id, ok := expr.(*ast.Identifier); ok {
		return g.symbols.lookup(id.Value)
	}
	return g.symbols.freshSlot()
}

func (g *CodeGenerator) emitComparison(predicate byte) {
	g.buf.cmpsd(0, 1, predicate)
	g.booleanNormalize()
}

func (g *CodeGenerator) emitLogical(op func(dst, src int)) {
	op(0, 1)
	g.booleanNormalize()
}

// booleanNormalize masks xmm0 against the bit pattern of 1.0 (GLOSSARY
// "Boolean-normalize"), turning an all-ones-or-all-zero packed result into
// exactly 1.0 or 0.0. The mask is the literal pool's own 1.0 entry — its
// bit pattern already is 0x3FF0000000000000, so no separate data section
// is needed to hold it.
func (g *CodeGenerator) booleanNormalize() {
	g.buf.movabsRAX(g.literalAddress(1.0))
	g.buf.movsdXmmIndirect(2)
	g.buf.pand(0, 2)
}

// visitAssignment emits §4.4's "Assignment" encoding: store the evaluated
// right-hand side into the left identifier's slot and chain xmm1 into
// xmm0. Per §9, the result is not re-normalized to a boolean even when the
// right-hand side is a comparison — an accepted limitation, not a defect
// (see DESIGN.md).
func (g *CodeGenerator) visitAssignment(e *ast.InfixExpression, dest int) {
	ident, ok := e.Left.(*ast.Identifier)
	if !ok {
		g.sink.report(Diagnostic{
			Message: "left-hand side of assignment must be an identifier",
			Line:    e.Token.Line,
			Column:  e.Token.Column,
		})
		return
	}

	targetSlot := g.symbols.lookup(ident.Value)
	rightSlot := g.operandSlot(e.Right)
	g.visitExpression(e.Right, rightSlot)

	g.buf.movsdXmmMemLoad(1, displacement(rightSlot))
	g.buf.movsdMemXmmStore(displacement(targetSlot), 1)
	g.buf.movsdXmmXmm(0, 1)
	g.buf.movsdMemXmmStore(displacement(dest), 0)
}

func (g *CodeGenerator) visitPrefixExpression(e *ast.PrefixExpression, dest int) {
	switch e.Operator {
	case "return":
		g.visitReturn(e)
	case "-":
		g.visitNegation(e, dest)
	default:
		panic(&InvariantError{Msg: "unknown prefix operator " + e.Operator})
	}
}

// visitReturn emits §4.4's "return <expr>" encoding: evaluate into a fresh
// slot, load into xmm0, emit a placeholder jmp to the epilogue, and record
// its offset on the return-fixup stack. A bare "return;" (Right == nil)
// zeroes xmm0 directly instead.
func (g *CodeGenerator) visitReturn(e *ast.PrefixExpression) {
	if e.Right != nil {
		slot := g.symbols.freshSlot()
		g.visitExpression(e.Right, slot)
		g.buf.movsdXmmMemLoad(0, displacement(slot))
	} else {
		g.buf.xorpd(0, 0)
	}
	off := g.buf.jmpRel32Placeholder()
	g.fixups.pushReturn(off)
}

// visitNegation emits §4.4's unary "-<expr>" encoding: pxor against the
// IEEE-754 sign bit, taken from the literal pool's -0.0 entry, whose bit
// pattern already is 0x8000000000000000.
func (g *CodeGenerator) visitNegation(e *ast.PrefixExpression, dest int) {
	slot := g.symbols.freshSlot()
	g.visitExpression(e.Right, slot)
	g.buf.movsdXmmMemLoad(0, displacement(slot))

	g.buf.movabsRAX(g.literalAddress(math.Copysign(0, -1)))
	g.buf.movsdXmmIndirect(1)
	g.buf.pxor(0, 1)

	g.buf.movsdMemXmmStore(displacement(dest), 0)
}

// visitListExpression evaluates each element for its side effects, writing
// only the last one into dest — comma-operator semantics (§4.4 "Block /
// list / top-statements": "each statement has a scratch location").
func (g *CodeGenerator) visitListExpression(e *ast.ListExpression, dest int) {
	for i, el := range e.Elements {
		if i == len(e.Elements)-1 {
			g.visitExpression(el, dest)
			return
		}
		slot := g.symbols.freshSlot()
		g.visitExpression(el, slot)
	}
}
