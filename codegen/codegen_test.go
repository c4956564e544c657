package codegen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"doublefn/ast"
	"doublefn/lexer"
	"doublefn/parser"
)

func parseProgram(t *testing.T, src string) *ast.Program {
	t.Helper()
	l := lexer.New(src)
	p := parser.New(l)
	program := p.ParseProgram()
	require.Empty(t, p.Errors(), "parser errors: %v", p.Errors())
	return program
}

func TestDisplacement(t *testing.T) {
	require.Equal(t, int32(-8), displacement(1))
	require.Equal(t, int32(-16), displacement(2))
	require.Equal(t, int32(8), displacement(-1))
}

func TestRelative32MeasuredFromInstructionEnd(t *testing.T) {
	require.Equal(t, int32(10), relative32(20, 30))
	require.Equal(t, int32(-10), relative32(30, 20))
}

func TestLiteralPoolCoalescesIdenticalValues(t *testing.T) {
	p := newLiteralPool()
	a := p.intern(3.5)
	b := p.intern(3.5)
	require.Same(t, a, b)
	require.Equal(t, 1, p.len())
}

func TestLiteralPoolDistinctValues(t *testing.T) {
	p := newLiteralPool()
	a := p.intern(1.0)
	b := p.intern(2.0)
	require.NotSame(t, a, b)
	require.Equal(t, 2, p.len())
}

func TestSymbolTableRedefinitionPanics(t *testing.T) {
	s := newSymbolTable()
	s.define("x")
	require.Panics(t, func() { s.define("x") })
}

func TestSymbolTableLookupUnboundPanics(t *testing.T) {
	s := newSymbolTable()
	require.Panics(t, func() { s.lookup("missing") })
}

func TestSymbolTableBindArgNegativeSlot(t *testing.T) {
	s := newSymbolTable()
	s.bindArg("fifth", 4)
	require.Equal(t, int32(48), displacement(s.lookup("fifth")))
}

func TestFixupStateLIFODiscipline(t *testing.T) {
	f := newFixupState()
	require.True(t, f.empty())

	f.pushConditional(10)
	f.pushConditional(20)
	jp, je, ok := f.popConditionalPair()
	require.True(t, ok)
	require.Equal(t, 10, jp.Offset)
	require.Equal(t, 20, je.Offset)
	require.True(t, f.empty())

	loop := f.beginLoop()
	loop.breaks = append(loop.breaks, Fixup{Offset: 1})
	require.False(t, f.empty())
	f.endLoop()
	require.True(t, f.empty())
}

func TestCompileEmptyFunctionEndsInRet(t *testing.T) {
	program := parseProgram(t, `function f() {}`)
	g := New()
	code, err := g.Compile(program)
	require.NoError(t, err)
	require.NotEmpty(t, code)
	require.Equal(t, byte(0xC3), code[len(code)-1])
}

func TestCompileIsDeterministicOnSameGenerator(t *testing.T) {
	program := parseProgram(t, `function f(x) { return x + 1; }`)
	g := New()

	first, err := g.Compile(program)
	require.NoError(t, err)
	second, err := g.Compile(program)
	require.NoError(t, err)

	require.Equal(t, first, second, "recompiling the same AST on a reset generator must be byte-identical")
}

func TestCompileRejectsMultipleFunctions(t *testing.T) {
	program := parseProgram(t, `function a() {} function b() {}`)
	g := New()
	_, err := g.Compile(program)
	require.Error(t, err)
}

func TestCompileReportsUnregisteredRuntimeCall(t *testing.T) {
	program := parseProgram(t, `function f() { nope | 1; }`)
	g := New()
	_, err := g.Compile(program)
	require.Error(t, err)

	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	require.Len(t, compileErr.Diagnostics, 1)
}

func TestCompileLeavesFixupStacksEmpty(t *testing.T) {
	program := parseProgram(t, `
		function f(low, up) {
			for (var i = low; i <= up; i = i + 1) {
				if (i == up) {
					break;
				}
				continue;
			}
			return 0;
		}
	`)
	g := New()
	_, err := g.Compile(program)
	require.NoError(t, err)
	require.True(t, g.fixups.empty())
}

func TestCompileAssignmentRequiresIdentifierTarget(t *testing.T) {
	program := parseProgram(t, `function f(a) { 1 = a; }`)
	g := New()
	_, err := g.Compile(program)
	require.Error(t, err)

	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	require.Len(t, compileErr.Diagnostics, 1)
	require.Contains(t, compileErr.Diagnostics[0].Message, "left-hand side of assignment must be an identifier")
}

func TestCompileBreakOutsideLoopIsInvariantError(t *testing.T) {
	g := New()
	g.buf = newCodeBuffer()
	g.symbols = newSymbolTable()
	g.fixups = newFixupState()
	g.sink = &ErrorSink{}

	require.Panics(t, func() { g.visitBreak(nil) })
}
