// Command doublefnc compiles a single function body into native x86-64
// machine code and either calls it with caller-supplied arguments or dumps
// the generated bytes, mirroring the teacher's cmd/rush file-execution CLI
// but for a one-shot compile-and-call workflow instead of a REPL.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"doublefn/codegen"
	"doublefn/exec"
	"doublefn/lexer"
	"doublefn/parser"
	"doublefn/runtime"
)

// argList collects repeated "-arg" flags into an ordered []float64, since
// the standard flag package has no built-in repeated-flag type.
type argList []float64

func (a *argList) String() string {
	return fmt.Sprintf("%v", []float64(*a))
}

func (a *argList) Set(s string) error {
	var v float64
	if _, err := fmt.Sscanf(s, "%g", &v); err != nil {
		return fmt.Errorf("invalid -arg value %q: %w", s, err)
	}
	*a = append(*a, v)
	return nil
}

func main() {
	var args argList
	dump := flag.Bool("dump", false, "print the generated machine code as a hex dump instead of calling it")
	verbose := flag.Bool("verbose", false, "enable debug-level compiler logging")
	flag.Var(&args, "arg", "a double argument to pass to the compiled function (repeatable, in order)")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: doublefnc [-dump] [-arg N ...] <source-file>")
		os.Exit(2)
	}
	filename := flag.Args()[0]

	log := logrus.StandardLogger()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	source, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "doublefnc: reading %s: %v\n", filename, err)
		os.Exit(1)
	}

	l := lexer.New(string(source))
	p := parser.New(l)
	program := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		fmt.Fprintln(os.Stderr, "doublefnc: parse errors:")
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  %s\n", e)
		}
		os.Exit(1)
	}

	gen := codegen.New(codegen.WithLogger(log))
	code, err := gen.Compile(program)
	if err != nil {
		fmt.Fprintf(os.Stderr, "doublefnc: compile error: %v\n", err)
		os.Exit(1)
	}

	if *dump {
		dumpHex(code)
		return
	}

	page, err := exec.Publish(code, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "doublefnc: %v\n", err)
		os.Exit(1)
	}
	defer page.Close()

	fn := exec.NewCompiledFunction(page)
	result := fn.Call([]float64(args)...)
	fmt.Println(runtime.FormatNumber(result))
}

// dumpHex prints code as a 16-bytes-per-line hex dump, for inspecting what
// the emitter produced without executing it.
func dumpHex(code []byte) {
	for i := 0; i < len(code); i += 16 {
		end := i + 16
		if end > len(code) {
			end = len(code)
		}
		fmt.Printf("%08x  ", i)
		for _, b := range code[i:end] {
			fmt.Printf("%02x ", b)
		}
		fmt.Println()
	}
}
