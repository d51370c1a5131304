package core

import (
	"math"
	"testing"
)

func TestMetricsAverageAfterFullWindow(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < AVG_COUNT-1; i++ {
		m.Update(0.010)
	}
	if m.FrameTime() != 0 {
		t.Errorf("Expected no average before the window is full, got %f", m.FrameTime())
	}
	m.Update(0.010)
	if math.Abs(m.FrameTime()-10.0) > 1e-9 {
		t.Errorf("Expected 10ms average, got %f", m.FrameTime())
	}
}

func TestMetricsFPS(t *testing.T) {
	m := NewMetrics()
	refreshed := false
	// 101 frames of 10ms cross the one-second boundary once.
	for i := 0; i < 101; i++ {
		if m.Update(0.010) {
			refreshed = true
		}
	}
	if !refreshed {
		t.Fatalf("Expected FPS to be refreshed")
	}
	if m.FPS() != 101 {
		t.Errorf("Expected 101 fps, got %f", m.FPS())
	}
}
