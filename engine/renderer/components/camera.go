package components

import (
	"github.com/go-gl/mathgl/mgl32"
)

// vulkanClip converts an OpenGL style projection to Vulkan clip space:
// Y points down and depth runs from 0 to 1.
var vulkanClip = mgl32.Mat4{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

const (
	DefaultFovY   float32 = 30.0
	DefaultNear   float32 = 0.5
	DefaultFar    float32 = 5.0
	DefaultWidth  uint32  = 800
	DefaultHeight uint32  = 800
)

/**
 * @brief A look-at camera. The view and projection matrices are rebuilt
 * lazily: every setter marks the matrix it affects as dirty.
 */
type Camera struct {
	position mgl32.Vec3
	target   mgl32.Vec3
	up       mgl32.Vec3

	perspective bool
	/** @brief Vertical field of view in degrees. */
	fovY                     float32
	left, right, bottom, top float32
	near, far                float32
	width, height            uint32

	view           mgl32.Mat4
	projection     mgl32.Mat4
	viewProjection mgl32.Mat4

	viewDirty           bool
	projectionDirty     bool
	viewProjectionDirty bool
}

func NewCamera() *Camera {
	c := &Camera{}
	c.Reset()
	return c
}

func (c *Camera) Reset() {
	c.position = mgl32.Vec3{0, 0, 0}
	c.target = mgl32.Vec3{0, 0, -10}
	c.up = mgl32.Vec3{0, 1, 0}
	c.perspective = true
	c.fovY = DefaultFovY
	c.left, c.right, c.bottom, c.top = -0.5, 0.5, -0.5, 0.5
	c.near = DefaultNear
	c.far = DefaultFar
	c.width = DefaultWidth
	c.height = DefaultHeight
	c.markViewDirty()
	c.markProjectionDirty()
}

func (c *Camera) markViewDirty() {
	c.viewDirty = true
	c.viewProjectionDirty = true
}

func (c *Camera) markProjectionDirty() {
	c.projectionDirty = true
	c.viewProjectionDirty = true
}

func (c *Camera) Position() mgl32.Vec3 { return c.position }
func (c *Camera) Target() mgl32.Vec3   { return c.target }
func (c *Camera) Up() mgl32.Vec3       { return c.up }
func (c *Camera) Near() float32        { return c.near }
func (c *Camera) Far() float32         { return c.far }
func (c *Camera) FovY() float32        { return c.fovY }
func (c *Camera) Width() uint32        { return c.width }
func (c *Camera) Height() uint32       { return c.height }
func (c *Camera) IsPerspective() bool  { return c.perspective }

func (c *Camera) SetPosition(position mgl32.Vec3) {
	c.position = position
	c.markViewDirty()
}

func (c *Camera) SetTarget(target mgl32.Vec3) {
	c.target = target
	c.markViewDirty()
}

func (c *Camera) SetUp(up mgl32.Vec3) {
	c.up = up
	c.markViewDirty()
}

func (c *Camera) SetLookAt(origin, target, up mgl32.Vec3) {
	c.position = origin
	c.target = target
	c.up = up
	c.markViewDirty()
}

// SetPerspective switches to a perspective projection with a vertical field
// of view in degrees.
func (c *Camera) SetPerspective(fovY float32) {
	c.perspective = true
	c.fovY = fovY
	c.markProjectionDirty()
}

func (c *Camera) SetOrthographic(left, right, bottom, top float32) {
	c.perspective = false
	c.left, c.right, c.bottom, c.top = left, right, bottom, top
	c.markProjectionDirty()
}

func (c *Camera) SetClipPlanes(near, far float32) {
	c.near = near
	c.far = far
	c.markProjectionDirty()
}

// SetSize sets the film size, which drives the aspect ratio.
func (c *Camera) SetSize(width, height uint32) {
	c.width = width
	c.height = height
	c.markProjectionDirty()
}

func (c *Camera) Aspect() float32 {
	if c.height == 0 {
		return 1
	}
	return float32(c.width) / float32(c.height)
}

func (c *Camera) View() mgl32.Mat4 {
	if c.viewDirty {
		c.view = mgl32.LookAtV(c.position, c.target, c.up)
		c.viewDirty = false
	}
	return c.view
}

func (c *Camera) Projection() mgl32.Mat4 {
	if c.projectionDirty {
		var p mgl32.Mat4
		if c.perspective {
			p = mgl32.Perspective(mgl32.DegToRad(c.fovY), c.Aspect(), c.near, c.far)
		} else {
			p = mgl32.Ortho(c.left, c.right, c.bottom, c.top, c.near, c.far)
		}
		c.projection = vulkanClip.Mul4(p)
		c.projectionDirty = false
	}
	return c.projection
}

// ViewProjection is projection * view.
func (c *Camera) ViewProjection() mgl32.Mat4 {
	if c.viewProjectionDirty {
		c.viewProjection = c.Projection().Mul4(c.View())
		c.viewProjectionDirty = false
	}
	return c.viewProjection
}

func (c *Camera) Forward() mgl32.Vec3 {
	d := c.target.Sub(c.position)
	if d.Len() == 0 {
		return mgl32.Vec3{0, 0, -1}
	}
	return d.Normalize()
}

func (c *Camera) Right() mgl32.Vec3 {
	r := c.Forward().Cross(c.up)
	if r.Len() == 0 {
		return mgl32.Vec3{1, 0, 0}
	}
	return r.Normalize()
}

func (c *Camera) move(direction mgl32.Vec3, amount float32) {
	delta := direction.Mul(amount)
	c.position = c.position.Add(delta)
	c.target = c.target.Add(delta)
	c.markViewDirty()
}

func (c *Camera) MoveForward(amount float32)  { c.move(c.Forward(), amount) }
func (c *Camera) MoveBackward(amount float32) { c.move(c.Forward(), -amount) }
func (c *Camera) MoveLeft(amount float32)     { c.move(c.Right(), -amount) }
func (c *Camera) MoveRight(amount float32)    { c.move(c.Right(), amount) }
func (c *Camera) MoveUp(amount float32)       { c.move(c.up.Normalize(), amount) }
func (c *Camera) MoveDown(amount float32)     { c.move(c.up.Normalize(), -amount) }

// Yaw turns the camera around its up axis by `degrees`.
func (c *Camera) Yaw(degrees float32) {
	rot := mgl32.HomogRotate3D(mgl32.DegToRad(degrees), c.up.Normalize())
	d := c.target.Sub(c.position)
	c.target = c.position.Add(rot.Mul4x1(d.Vec4(0)).Vec3())
	c.markViewDirty()
}
