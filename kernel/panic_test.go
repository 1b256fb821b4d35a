package kernel

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"kernelcore/kernel/kfmt"

	"github.com/stretchr/testify/require"
)

func withCapturedOutput(t *testing.T) *bytes.Buffer {
	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	t.Cleanup(func() { kfmt.SetOutputSink(nil) })
	return &buf
}

func withFakeHalt(t *testing.T) *bool {
	halted := false
	prev := cpuHaltFn
	cpuHaltFn = func() { halted = true }
	t.Cleanup(func() { cpuHaltFn = prev })
	return &halted
}

func TestPanicWithErrorPrintsModuleAndMessage(t *testing.T) {
	buf := withCapturedOutput(t)
	halted := withFakeHalt(t)

	Panic(&Error{Module: "vmm", Message: "double free"})
	require.True(t, *halted)
	require.True(t, strings.Contains(buf.String(), "[vmm] unrecoverable error: double free"))
	require.True(t, strings.Contains(buf.String(), "kernel panic"))
}

func TestPanicWithStringUsesRuntimeModule(t *testing.T) {
	buf := withCapturedOutput(t)
	withFakeHalt(t)

	Panic("unexpected nil pointer")
	require.True(t, strings.Contains(buf.String(), "[rt] unrecoverable error: unexpected nil pointer"))
}

func TestPanicWithGoErrorUsesItsMessage(t *testing.T) {
	buf := withCapturedOutput(t)
	withFakeHalt(t)

	Panic(errors.New("wrapped"))
	require.True(t, strings.Contains(buf.String(), "wrapped"))
}

func TestPanicAlwaysHalts(t *testing.T) {
	withCapturedOutput(t)
	halted := withFakeHalt(t)

	Panic(nil)
	require.True(t, *halted)
}
