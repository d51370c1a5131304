package components

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestCameraDefaults(t *testing.T) {
	c := NewCamera()
	if c.Near() != 0.5 || c.Far() != 5 {
		t.Errorf("Expected clip planes (0.5, 5), got (%f, %f)", c.Near(), c.Far())
	}
	if c.Width() != 800 || c.Height() != 800 {
		t.Errorf("Expected 800x800, got %dx%d", c.Width(), c.Height())
	}
	if c.FovY() != 30 {
		t.Errorf("Expected fov 30, got %f", c.FovY())
	}
}

func TestCameraViewIsLazy(t *testing.T) {
	c := NewCamera()
	first := c.View()
	if c.viewDirty {
		t.Error("Expected view to be clean after View()")
	}

	c.SetPosition(mgl32.Vec3{0, 0, 5})
	if !c.viewDirty || !c.viewProjectionDirty {
		t.Error("Expected SetPosition to mark view and view-projection dirty")
	}
	if c.projectionDirty {
		t.Error("Expected SetPosition to leave projection clean")
	}
	if first.ApproxEqual(c.View()) {
		t.Error("Expected view to change after SetPosition")
	}
}

func TestCameraViewProjectionOrder(t *testing.T) {
	c := NewCamera()
	c.SetLookAt(mgl32.Vec3{1, 2, 3}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0})
	c.SetSize(1280, 720)

	expected := c.Projection().Mul4(c.View())
	if !c.ViewProjection().ApproxEqual(expected) {
		t.Errorf("Expected projection * view, got %v", c.ViewProjection())
	}
}

func TestCameraProjectionDepthRange(t *testing.T) {
	c := NewCamera()
	c.SetLookAt(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0})
	c.SetClipPlanes(1, 10)

	near := c.ViewProjection().Mul4x1(mgl32.Vec4{0, 0, -1, 1})
	far := c.ViewProjection().Mul4x1(mgl32.Vec4{0, 0, -10, 1})
	if d := near.Z() / near.W(); d < -1e-5 || d > 1e-5 {
		t.Errorf("Expected near plane at depth 0, got %f", d)
	}
	if d := far.Z() / far.W(); d < 1-1e-5 || d > 1+1e-5 {
		t.Errorf("Expected far plane at depth 1, got %f", d)
	}
}

func TestCameraMoveKeepsDirection(t *testing.T) {
	c := NewCamera()
	before := c.Forward()
	c.MoveForward(2)
	if !c.Position().ApproxEqual(mgl32.Vec3{0, 0, -2}) {
		t.Errorf("Expected position (0,0,-2), got %v", c.Position())
	}
	if !c.Forward().ApproxEqual(before) {
		t.Errorf("Expected forward %v, got %v", before, c.Forward())
	}
}
