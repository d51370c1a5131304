package math

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestClamp(t *testing.T) {
	if v := Clamp(12, 0, 10); v != 10 {
		t.Errorf("Expected 10, got %d", v)
	}
	if v := Clamp(-0.5, 0.0, 1.0); v != 0 {
		t.Errorf("Expected 0, got %f", v)
	}
	if v := Clamp(uint32(4), 1, 9); v != 4 {
		t.Errorf("Expected 4, got %d", v)
	}
}

func TestTransformPostMultiplies(t *testing.T) {
	m := NewTransform().
		Translate(mgl32.Vec3{1, 0, 0}).
		Scale(mgl32.Vec3{2, 2, 2}).
		Matrix()

	// scale first, then translate
	p := m.Mul4x1(mgl32.Vec4{1, 1, 1, 1})
	expected := mgl32.Vec4{3, 2, 2, 1}
	if !p.ApproxEqual(expected) {
		t.Errorf("Expected %v, got %v", expected, p)
	}
}

func TestTransformRotateDegrees(t *testing.T) {
	m := NewTransform().Rotate(90, mgl32.Vec3{0, 0, 1}).Matrix()
	p := m.Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	if !p.ApproxEqualThreshold(mgl32.Vec4{0, 1, 0, 1}, 1e-5) {
		t.Errorf("Expected (0,1,0,1), got %v", p)
	}

	unchanged := NewTransform().Rotate(45, mgl32.Vec3{}).Matrix()
	if !unchanged.ApproxEqual(mgl32.Ident4()) {
		t.Errorf("Expected identity for a zero axis, got %v", unchanged)
	}
}

func TestFrustumCornersOfIdentity(t *testing.T) {
	corners := FrustumCorners(mgl32.Ident4())
	for _, c := range corners {
		if (c.X() != -1 && c.X() != 1) || (c.Y() != -1 && c.Y() != 1) || (c.Z() != 0 && c.Z() != 1) {
			t.Errorf("Unexpected corner %v", c)
		}
	}
	center := Centroid(corners[:])
	if !center.ApproxEqual(mgl32.Vec3{0, 0, 0.5}) {
		t.Errorf("Expected centroid (0,0,0.5), got %v", center)
	}
}

func TestDirectionalLightMatrixCoversFrustum(t *testing.T) {
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	proj := mgl32.Perspective(mgl32.DegToRad(45), 1, 0.5, 10)
	vp := proj.Mul4(view)

	light := DirectionalLightMatrix(mgl32.Vec3{0, -1, -1}, vp)
	for _, c := range FrustumCorners(vp) {
		p := light.Mul4x1(c.Vec4(1))
		p = p.Mul(1 / p.W())
		if p.X() < -1.0001 || p.X() > 1.0001 || p.Y() < -1.0001 || p.Y() > 1.0001 {
			t.Errorf("Expected corner %v inside the light frustum, got %v", c, p)
		}
	}
}

func TestPerspectiveLightMatrixProjectsTarget(t *testing.T) {
	m := PerspectiveLightMatrix(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{}, 75, 0.01, 10)
	p := m.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	p = p.Mul(1 / p.W())
	if abs32(p.X()) > 1e-5 || abs32(p.Y()) > 1e-5 {
		t.Errorf("Expected the target at the center of the light view, got %v", p)
	}
}
