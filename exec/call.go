//go:build linux && amd64

package exec

// callNative is implemented in call_amd64.s.
func callNative(fn uintptr, args []float64) float64

// CompiledFunction is the host-callable handle a Page publishes (spec.md
// §6 "Emitted-code ABI": "double fn(double, double, ...)"). It keeps the
// Page it was built from alive for as long as the function might still be
// called; nothing else in this package holds that reference.
type CompiledFunction struct {
	page *Page
}

// NewCompiledFunction wraps page as a callable double fn(double, ...).
func NewCompiledFunction(page *Page) *CompiledFunction {
	return &CompiledFunction{page: page}
}

// Call invokes the compiled function with args under the host C calling
// convention. Passing fewer or more arguments than the compiled function
// expects is a caller error with no defined behavior, mirroring a raw C
// function-pointer call through a mismatched prototype.
func (f *CompiledFunction) Call(args ...float64) float64 {
	return callNative(f.page.Entry(), args)
}

// Close releases the underlying page; see Page.Close.
func (f *CompiledFunction) Close() error {
	return f.page.Close()
}
