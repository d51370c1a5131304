package math

import (
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"
)

// ShadowZMultiplier widens the depth range of a fitted directional light
// frustum so casters outside the camera view still land in the map.
const ShadowZMultiplier float32 = 5.0

// FrustumCorners returns the eight world-space corners of the volume
// described by `viewProjection`. Clip space depth runs from 0 to 1.
func FrustumCorners(viewProjection mgl32.Mat4) [8]mgl32.Vec3 {
	inv := viewProjection.Inv()
	var corners [8]mgl32.Vec3
	i := 0
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			for z := 0; z < 2; z++ {
				p := inv.Mul4x1(mgl32.Vec4{
					2*float32(x) - 1,
					2*float32(y) - 1,
					float32(z),
					1,
				})
				corners[i] = p.Vec3().Mul(1 / p.W())
				i++
			}
		}
	}
	return corners
}

// Centroid is the average of the given points.
func Centroid(points []mgl32.Vec3) mgl32.Vec3 {
	var c mgl32.Vec3
	if len(points) == 0 {
		return c
	}
	for _, p := range points {
		c = c.Add(p)
	}
	return c.Mul(1 / float32(len(points)))
}

// DirectionalLightMatrix fits an orthographic projection around the camera
// frustum as seen from a light shining along `direction`.
func DirectionalLightMatrix(direction mgl32.Vec3, cameraViewProjection mgl32.Mat4) mgl32.Mat4 {
	corners := FrustumCorners(cameraViewProjection)
	center := Centroid(corners[:])

	dir := direction
	if dir.Len() == 0 {
		dir = mgl32.Vec3{0, -1, 0}
	}
	dir = dir.Normalize()
	up := mgl32.Vec3{0, 1, 0}
	if abs32(dir.Dot(up)) > 0.999 {
		up = mgl32.Vec3{0, 0, 1}
	}
	lightView := mgl32.LookAtV(center.Sub(dir), center, up)

	minX, minY, minZ := float32(stdmath.MaxFloat32), float32(stdmath.MaxFloat32), float32(stdmath.MaxFloat32)
	maxX, maxY, maxZ := -minX, -minY, -minZ
	for _, c := range corners {
		p := lightView.Mul4x1(c.Vec4(1))
		minX, maxX = min(minX, p.X()), max(maxX, p.X())
		minY, maxY = min(minY, p.Y()), max(maxY, p.Y())
		minZ, maxZ = min(minZ, p.Z()), max(maxZ, p.Z())
	}

	if minZ < 0 {
		minZ *= ShadowZMultiplier
	} else {
		minZ /= ShadowZMultiplier
	}
	if maxZ < 0 {
		maxZ /= ShadowZMultiplier
	} else {
		maxZ *= ShadowZMultiplier
	}

	lightProjection := mgl32.Ortho(minX, maxX, minY, maxY, minZ, maxZ)
	return lightProjection.Mul4(lightView)
}

// PerspectiveLightMatrix is the light-space matrix of a point light looking
// at `target`.
func PerspectiveLightMatrix(position, target mgl32.Vec3, fovDegrees, near, far float32) mgl32.Mat4 {
	up := mgl32.Vec3{0, 1, 0}
	if d := target.Sub(position); d.Len() > 0 && abs32(d.Normalize().Dot(up)) > 0.999 {
		up = mgl32.Vec3{0, 0, 1}
	}
	projection := mgl32.Perspective(mgl32.DegToRad(fovDegrees), 1, near, far)
	return projection.Mul4(mgl32.LookAtV(position, target, up))
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
