package execrunner

import (
	"context"
	"strings"
	"testing"
)

func TestOutputAndCheckCapturesStdout(t *testing.T) {
	out, err := (Runner{}).OutputAndCheck(context.Background(), "echo", "-n", "hello")
	if err != nil {
		t.Fatalf("OutputAndCheck: %v", err)
	}
	if out != "hello" {
		t.Fatalf("expected %q, got %q", "hello", out)
	}
}

func TestOutputAndCheckWrapsFailureWithStderr(t *testing.T) {
	_, err := (Runner{}).OutputAndCheck(context.Background(), "sh", "-c", "echo boom >&2; exit 1")
	if err == nil {
		t.Fatal("expected an error from a non-zero exit")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected error to carry captured stderr, got: %v", err)
	}
}

func TestRunAndCheckSucceedsOnZeroExit(t *testing.T) {
	if err := (Runner{}).RunAndCheck(context.Background(), "true"); err != nil {
		t.Fatalf("RunAndCheck: %v", err)
	}
}
