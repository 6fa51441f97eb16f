package failure_test

import (
	"errors"
	"strings"
	"testing"

	"qcstation/internal/failure"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("disk gone")
	err := failure.Wrap(failure.ErrArtifactIO, "artifacts", "save", "SPARE-1", base)
	if !errors.Is(err, failure.ErrArtifactIO) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	for _, fragment := range []string{"artifacts", "save", "SPARE-1"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected %q in %q", fragment, err.Error())
		}
	}
}

func TestWrapDefaults(t *testing.T) {
	err := failure.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, failure.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "station failure") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestRetryable(t *testing.T) {
	if failure.Retryable(nil) {
		t.Fatal("nil error should not be retryable")
	}
	if failure.Retryable(failure.Wrap(failure.ErrNotFound, "artifacts", "load", "SPARE-1", nil)) {
		t.Fatal("not found should not be retryable")
	}
	if !failure.Retryable(failure.Wrap(failure.ErrArtifactIO, "artifacts", "save", "", errors.New("io"))) {
		t.Fatal("artifact io should be retryable")
	}
}
