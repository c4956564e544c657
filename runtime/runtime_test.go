package runtime

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultTableRegistersBuiltins(t *testing.T) {
	var buf bytes.Buffer
	table := NewDefaultTable(&buf)

	for _, name := range []string{"print", "abs", "sqrt", "floor"} {
		_, ok := table.Lookup(name)
		require.Truef(t, ok, "expected %s to be registered", name)
	}
}

func TestPrintWritesFormattedNumber(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(&buf)

	out := printHelper(42)
	require.Equal(t, 42.0, out)
	require.Equal(t, "42\n", buf.String())
}

func TestPrintFormatsFractional(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)

	printHelper(3.5)
	require.Equal(t, "3.5\n", buf.String())
}

func TestAddressIsStableAcrossLookups(t *testing.T) {
	table := NewDefaultTable(&bytes.Buffer{})

	a1, ok := table.Address("abs")
	require.True(t, ok)
	a2, ok := table.Address("abs")
	require.True(t, ok)
	require.Equal(t, a1, a2)
}

func TestAddressUnknownName(t *testing.T) {
	table := NewTable()
	_, ok := table.Address("nope")
	require.False(t, ok)
}

func TestRegisterOverwritesBinding(t *testing.T) {
	table := NewTable()
	table.Register("id", func(v float64) float64 { return v })
	first, _ := table.Lookup("id")
	require.Equal(t, 5.0, first(5))

	table.Register("id", func(v float64) float64 { return v * 2 })
	second, _ := table.Lookup("id")
	require.Equal(t, 10.0, second(5))
}
