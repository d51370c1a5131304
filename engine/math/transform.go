package math

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Transform accumulates a model matrix from an ordered list of scale,
// rotate and translate operations. Every operation post-multiplies the
// current matrix, so the last operation in document order is the first
// one applied to a vertex.
type Transform struct {
	local mgl32.Mat4
}

func NewTransform() *Transform {
	return &Transform{local: mgl32.Ident4()}
}

func (t *Transform) Scale(s mgl32.Vec3) *Transform {
	t.local = t.local.Mul4(mgl32.Scale3D(s.X(), s.Y(), s.Z()))
	return t
}

// Rotate rotates by `degrees` around `axis`. A zero axis leaves the
// transform untouched.
func (t *Transform) Rotate(degrees float32, axis mgl32.Vec3) *Transform {
	if axis.Len() == 0 {
		return t
	}
	t.local = t.local.Mul4(mgl32.HomogRotate3D(mgl32.DegToRad(degrees), axis.Normalize()))
	return t
}

func (t *Transform) Translate(v mgl32.Vec3) *Transform {
	t.local = t.local.Mul4(mgl32.Translate3D(v.X(), v.Y(), v.Z()))
	return t
}

// Apply post-multiplies an arbitrary matrix, used when nested transform
// nodes are combined.
func (t *Transform) Apply(m mgl32.Mat4) *Transform {
	t.local = t.local.Mul4(m)
	return t
}

func (t *Transform) Matrix() mgl32.Mat4 {
	return t.local
}
