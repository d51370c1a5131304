package scene

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/deferred/engine/math"
)

// LightSpaceMatrix returns the matrix used to render the shadow map of a
// light. Directional lights fit an orthographic volume around the camera
// frustum; point lights use a perspective projection towards their target.
// Ambient lights cast no shadow and return the identity.
func LightSpaceMatrix(light *Light, cameraViewProjection mgl32.Mat4) mgl32.Mat4 {
	switch light.Type {
	case LIGHT_TYPE_DIRECTIONAL:
		return math.DirectionalLightMatrix(light.Position, cameraViewProjection)
	case LIGHT_TYPE_POINT:
		return math.PerspectiveLightMatrix(light.Position, light.Target, light.Fov, light.Near, light.Far)
	}
	return mgl32.Ident4()
}
