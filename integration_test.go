//go:build linux && amd64

// End-to-end tests driving the full pipeline spec.md §8 describes: lex,
// parse, compile, publish to an executable page, and call the result,
// checking both the returned double and any captured stdout.
package doublefn_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"doublefn/codegen"
	"doublefn/exec"
	"doublefn/lexer"
	"doublefn/parser"
	"doublefn/runtime"
)

// compileAndPublish lexes, parses, and compiles src, returning a callable
// CompiledFunction backed by a fresh runtime.Table writing print output to
// out.
func compileAndPublish(t *testing.T, src string, out *bytes.Buffer) *exec.CompiledFunction {
	t.Helper()

	l := lexer.New(src)
	p := parser.New(l)
	program := p.ParseProgram()
	require.Empty(t, p.Errors(), "parse errors: %v", p.Errors())

	gen := codegen.New(codegen.WithRuntime(runtime.NewDefaultTable(out)))
	code, err := gen.Compile(program)
	require.NoError(t, err)

	page, err := exec.Publish(code, nil)
	require.NoError(t, err)
	t.Cleanup(func() { page.Close() })

	return exec.NewCompiledFunction(page)
}

// Scenario 1: a function with zero statements returns 0.0 and produces no
// output (spec.md §8 scenario 1).
func TestScenarioEmptyFunction(t *testing.T) {
	var out bytes.Buffer
	fn := compileAndPublish(t, `function f() {}`, &out)

	require.Equal(t, 0.0, fn.Call())
	require.Empty(t, out.String())
}

// Scenario 2: a weighted sum over eight parameters, exercising both
// register-passed and stack-passed arguments (spec.md §8 scenario 2).
func TestScenarioEightArgumentWeightedSum(t *testing.T) {
	var out bytes.Buffer
	src := `function f(a1,a2,a3,a4,a5,a6,a7,a8) {
		return a1 + 2*a2 + 3*a3 + 4*a4 + 5*a5 + 6*a6 + 7*a7 + 8*a8;
	}`
	fn := compileAndPublish(t, src, &out)

	got := fn.Call(1, 2, 3, 4, 5, 6, 7, 8)
	require.Equal(t, 204.0, got)
}

// Scenario 3: a longer arithmetic expression mixing every arithmetic
// operator and nested grouping (spec.md §8 scenario 3).
func TestScenarioArithmeticExpression(t *testing.T) {
	var out bytes.Buffer
	src := `function f(x,y) {
		return (x+2 - y*6/2 + (x+y)/8)/2*100 - 200 + x*y*y - 8;
	}`
	fn := compileAndPublish(t, src, &out)

	got := fn.Call(5, 12)
	require.InDelta(t, -831.75, got, 1e-9)
}

// Scenario 4: every comparison operator evaluated on equal operands
// (spec.md §8 scenario 4).
func TestScenarioComparisonOperators(t *testing.T) {
	var out bytes.Buffer
	src := `function f(x,y) {
		return 8*(x>y) + 15*(x>=y) + (x==y) + 2*(x<y) + 3*(x<=y);
	}`
	fn := compileAndPublish(t, src, &out)

	got := fn.Call(5, 5)
	require.Equal(t, 19.0, got)
}

// Scenario 5: a for-loop calling the print runtime helper once per
// iteration (spec.md §8 scenario 5).
func TestScenarioForLoopPrintsRange(t *testing.T) {
	var out bytes.Buffer
	src := `function f(low,up) {
		for (var i=low; i<=up; i=i+1) { print | i; }
		return 0;
	}`
	fn := compileAndPublish(t, src, &out)

	got := fn.Call(1, 10)
	require.Equal(t, 0.0, got)
	require.Equal(t, "1\n2\n3\n4\n5\n6\n7\n8\n9\n10\n", out.String())
}

// Scenario 6: the first twelve Fibonacci numbers, exercising multiple
// mutated locals inside a loop body (spec.md §8 scenario 6).
func TestScenarioFibonacciSequence(t *testing.T) {
	var out bytes.Buffer
	src := `function fib(n) {
		var prev=0;
		var current=1;
		for (var i=0; i<n; i=i+1) {
			print | current;
			var next=prev+current;
			prev=current;
			current=next;
		}
		return 0;
	}`
	fn := compileAndPublish(t, src, &out)

	got := fn.Call(12)
	require.Equal(t, 0.0, got)
	require.Equal(t, "1\n1\n2\n3\n5\n8\n13\n21\n34\n55\n89\n144\n", out.String())
}

// A while-loop whose condition is immediately false must execute the body
// zero times (spec.md §8 "Boundary behaviors").
func TestWhileLoopConditionImmediatelyFalse(t *testing.T) {
	var out bytes.Buffer
	src := `function f() {
		var n = 0;
		while (n > 0) { print | n; n = n - 1; }
		return n;
	}`
	fn := compileAndPublish(t, src, &out)

	require.Equal(t, 0.0, fn.Call())
	require.Empty(t, out.String())
}

// break/continue inside nested loops must target only the innermost loop
// (spec.md §8 "Boundary behaviors").
func TestNestedLoopsBreakAndContinueTargetInnermost(t *testing.T) {
	var out bytes.Buffer
	src := `function f() {
		var count = 0;
		for (var i = 0; i < 3; i = i + 1) {
			for (var j = 0; j < 3; j = j + 1) {
				if (j == 1) { continue; }
				if (j == 2) { break; }
				count = count + 1;
			}
		}
		return count;
	}`
	fn := compileAndPublish(t, src, &out)

	require.Equal(t, 3.0, fn.Call())
}

// Negative arguments and unary minus round-trip through the literal pool's
// sign-bit flip correctly.
func TestUnaryNegation(t *testing.T) {
	var out bytes.Buffer
	fn := compileAndPublish(t, `function f(x) { return -x; }`, &out)

	require.Equal(t, -5.0, fn.Call(5))
	require.Equal(t, 5.0, fn.Call(-5))
}

// Logical && / || normalize to exactly 1.0 or 0.0 on already-boolean
// operands (spec.md §4.4 "Logical").
func TestLogicalOperatorsNormalizeToBoolean(t *testing.T) {
	var out bytes.Buffer
	fn := compileAndPublish(t, `function f(x,y) { return (x < y) && (y < 10); }`, &out)

	require.Equal(t, 1.0, fn.Call(1, 5))
	require.Equal(t, 0.0, fn.Call(5, 1))
}

// Compiling the same AST twice on a reset generator must produce functions
// that behave identically, including captured stdout (spec.md §8
// "Round-trip / idempotence").
func TestRecompilingSameProgramIsIdempotent(t *testing.T) {
	src := `function f(n) {
		var total = 0;
		for (var i = 0; i < n; i = i + 1) { total = total + i; print | total; }
		return total;
	}`

	var out1 bytes.Buffer
	fn1 := compileAndPublish(t, src, &out1)
	got1 := fn1.Call(5)

	var out2 bytes.Buffer
	fn2 := compileAndPublish(t, src, &out2)
	got2 := fn2.Call(5)

	require.Equal(t, got1, got2)
	require.Equal(t, out1.String(), out2.String())
}

// More than four parameters must read the excess correctly from the
// caller's stack (spec.md §8 "Boundary behaviors").
func TestMoreThanFourParametersReadFromStack(t *testing.T) {
	var out bytes.Buffer
	fn := compileAndPublish(t, `function f(a,b,c,d,e,f2) { return a+b+c+d+e+f2; }`, &out)

	got := fn.Call(1, 1, 1, 1, 1, 1)
	require.Equal(t, 6.0, got)
}

// The additional math helpers supplementing print (spec.md's minimum) are
// reachable through the same "name | arg" call form.
func TestAdditionalRuntimeHelpers(t *testing.T) {
	var out bytes.Buffer
	src := `function f(x) {
		var a = abs | x;
		var s = sqrt | a;
		return floor | s;
	}`
	fn := compileAndPublish(t, src, &out)

	require.Equal(t, 4.0, fn.Call(-17))
}
