package kernel

import "testing"

func TestKernelError(t *testing.T) {
	err := &Error{
		Module:  "foo",
		Message: "error message",
	}

	if err.Error() != err.Message {
		t.Fatalf("expected to err.Error() to return %q; got %q", err.Message, err.Error())
	}
}

func TestKernelErrorCodeDefaultsToZero(t *testing.T) {
	err := &Error{Module: "foo", Message: "error message"}
	if err.Code != 0 {
		t.Fatalf("expected a kernel.Error with no explicit Code to default to 0; got %d", err.Code)
	}

	coded := &Error{Module: "vfs", Code: -1, Message: "path is missing a \"prefix:\" component"}
	if coded.Code != -1 {
		t.Fatalf("expected Code to be carried through unchanged; got %d", coded.Code)
	}
}
