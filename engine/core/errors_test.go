package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestGPUErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("rebuild: %w", NewGPUError("deferred", "pipeline `gbuffer_diffuse`", ErrDeviceLost))

	if !errors.Is(err, ErrDeviceLost) {
		t.Errorf("Expected error chain to contain ErrDeviceLost")
	}

	var gpuErr *GPUError
	if !errors.As(err, &gpuErr) {
		t.Fatalf("Expected error chain to contain a GPUError")
	}
	if gpuErr.Pass != "deferred" {
		t.Errorf("Expected pass deferred, got %s", gpuErr.Pass)
	}
	want := "pass `deferred`: failed to create pipeline `gbuffer_diffuse`: device lost"
	if gpuErr.Error() != want {
		t.Errorf("Expected %q, got %q", want, gpuErr.Error())
	}
}

func TestGPUErrorWithoutPass(t *testing.T) {
	err := NewGPUError("", "sampler", errors.New("boom"))
	if err.Error() != "failed to create sampler: boom" {
		t.Errorf("Expected message without pass, got %q", err.Error())
	}
}
