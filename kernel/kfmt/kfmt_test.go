package kfmt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrintf(t *testing.T) {
	defer SetOutputSink(nil)

	specs := []struct {
		name string
		f    string
		args []interface{}
		exp  string
	}{
		{"plain string", "hello world", nil, "hello world"},
		{"string verb", "name: %s", []interface{}{"kernel"}, "name: kernel"},
		{"decimal", "%d", []interface{}{42}, "42"},
		{"negative decimal", "%d", []interface{}{-7}, "-7"},
		{"hex", "%x", []interface{}{uint32(255)}, "0xff"},
		{"octal", "%o", []interface{}{int8(8)}, "10"},
		{"bool true", "%t", []interface{}{true}, "true"},
		{"bool false", "%t", []interface{}{false}, "false"},
		{"literal percent", "100%%", nil, "100%"},
		{"missing arg", "%s", nil, "(MISSING)"},
		{"extra arg", "no verbs", []interface{}{1}, "no verbs%!(EXTRA)"},
		{"wrong type", "%s", []interface{}{1}, "%!(WRONGTYPE)"},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			var buf bytes.Buffer
			SetOutputSink(&buf)
			Printf(spec.f, spec.args...)
			require.Equal(t, spec.exp, buf.String())
		})
	}
}

func TestSetOutputSinkFlushesEarlyBuffer(t *testing.T) {
	defer SetOutputSink(nil)
	SetOutputSink(nil)

	Printf("boot line 1\n")
	Printf("boot line 2\n")

	var buf bytes.Buffer
	SetOutputSink(&buf)

	require.Equal(t, "boot line 1\nboot line 2\n", buf.String())
}

func TestRingBufferWrapsWhenFull(t *testing.T) {
	var rb ringBuffer
	big := bytes.Repeat([]byte{'a'}, ringBufSize+10)
	rb.Write(big)

	out := make([]byte, ringBufSize)
	n, err := rb.Read(out)
	require.NoError(t, err)
	require.Equal(t, ringBufSize, n)
}
