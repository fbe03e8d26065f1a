package metadata

import (
	"testing"

	"github.com/bgrewell/lvm2-kit/pkg/lvmerr"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleDocument(t *testing.T) {
	src := []byte(`
# a leading comment
vg0 {
	id = "abc123"
	seqno = 3
	extent_size = 8192
	physical_volumes {
		pv0 {
			id = "pvid0"
			device = "/dev/sda1"
			status = ["ALLOCATABLE"]
			pe_start = 2048
			pe_count = 100
		}
	}
}
`)
	root, err := Parse(src)
	require.NoError(t, err)

	vg := root.Section("vg0")
	require.NotNil(t, vg)
	require.Equal(t, "abc123", vg.Assignment("id").Value.String)
	require.EqualValues(t, 3, vg.Assignment("seqno").Value.Integer)

	pvs := vg.Section("physical_volumes")
	require.NotNil(t, pvs)
	pv0 := pvs.Section("pv0")
	require.NotNil(t, pv0)
	require.Equal(t, "/dev/sda1", pv0.Assignment("device").Value.String)

	status := pv0.Assignment("status").Value
	require.Equal(t, KindArray, status.Kind)
	require.Len(t, status.Array, 1)
	require.Equal(t, "ALLOCATABLE", status.Array[0].String)
}

func TestParseStripesArrayMixedTypes(t *testing.T) {
	src := []byte(`segment1 { stripes = ["pv0", 0, "pv1", 0] }`)
	root, err := Parse(src)
	require.NoError(t, err)
	seg := root.Section("segment1")
	stripes := seg.Assignment("stripes").Value
	require.Len(t, stripes.Array, 4)
	require.Equal(t, "pv0", stripes.Array[0].String)
	require.EqualValues(t, 0, stripes.Array[1].Integer)
}

func TestParseAcceptsCommaSeparatedArrays(t *testing.T) {
	src := []byte(`x = [1, 2, 3]`)
	root, err := Parse(src)
	require.NoError(t, err)
	v := root.Assignment("x").Value
	require.Len(t, v.Array, 3)
}

func TestParseEscapeSequences(t *testing.T) {
	src := []byte(`s = "a\"b\\c\nd"`)
	root, err := Parse(src)
	require.NoError(t, err)
	require.Equal(t, "a\"b\\c\nd", root.Assignment("s").Value.String)
}

func TestParseUnterminatedStringReportsPosition(t *testing.T) {
	src := []byte("x = \"unterminated")
	_, err := Parse(src)
	require.Error(t, err)
	var mErr *lvmerr.MalformedMetadataError
	require.ErrorAs(t, err, &mErr)
	require.Equal(t, 1, mErr.Line)
	require.Equal(t, 18, mErr.Col) // end of input, where the lexer stopped
}

func TestParseUnmatchedBrace(t *testing.T) {
	_, err := Parse([]byte(`a { b = 1`))
	require.Error(t, err)
}

func TestParseRejectsDuplicateAssignment(t *testing.T) {
	_, err := Parse([]byte(`a = 1 a = 2`))
	require.Error(t, err)
}

func TestParseDepthLimit(t *testing.T) {
	src := []byte(`a { b { c { d { e { f { g { h { i { j { k { l { m { n { o { p { q { r { s { t { u { v { w { x { y { z { aa = 1 } } } } } } } } } } } } } } } } } } } } } } } } } }`)
	_, err := Parse(src, WithMaxDepth(4))
	require.Error(t, err)
}

func TestParseAbortPoll(t *testing.T) {
	called := false
	_, err := Parse([]byte(`a = 1
b = 2`), WithAbortPoll(func() bool {
		if !called {
			called = true
			return false
		}
		return true
	}))
	require.ErrorIs(t, err, lvmerr.ErrAbortRequested)
}
