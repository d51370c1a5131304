package engine

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/math"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/scene"
)

// PerFrameFromScene fills the per-frame block from the camera and the
// first renderer.MaxLights lights of the scene. Extra lights are dropped.
func PerFrameFromScene(s *scene.Scene) renderer.PerFrameData {
	var data renderer.PerFrameData

	cam := s.Camera
	view := cam.View()
	projection := cam.Projection()
	viewProjection := cam.ViewProjection()

	data.CameraPosition = cam.Position().Vec4(1)
	data.View = view
	data.Projection = projection
	data.ViewProjection = viewProjection
	data.InvView = view.Inv()
	data.InvProjection = projection.Inv()
	data.InvViewProjection = viewProjection.Inv()
	data.ClippingPlanes = mgl32.Vec4{cam.Near(), cam.Far(), 0, 0}

	n := math.Clamp(len(s.Lights), 0, renderer.MaxLights)
	for i := 0; i < n; i++ {
		data.Lights[i] = s.Lights[i].Data()
	}
	data.NumberOfLights = uint32(n)
	return data
}

// PerObjectsFromScene returns the per-object records indexed by entity
// offset. Entities with an offset past renderer.MaxObjects are skipped;
// they are not registered with the passes either.
func PerObjectsFromScene(s *scene.Scene) []renderer.PerObjectData {
	count := 0
	for _, e := range s.Entities {
		if int(e.Offset) >= renderer.MaxObjects {
			continue
		}
		if int(e.Offset)+1 > count {
			count = int(e.Offset) + 1
		}
	}
	objects := make([]renderer.PerObjectData, count)
	for _, e := range s.Entities {
		if int(e.Offset) < count {
			objects[e.Offset] = e.PerObject()
		}
	}
	return objects
}

// shadowCaster picks the light the shadow map is rendered from: the first
// light that is not ambient.
func shadowCaster(s *scene.Scene) *scene.Light {
	for _, l := range s.Lights {
		if l.Type != scene.LIGHT_TYPE_AMBIENT {
			return l
		}
	}
	return nil
}

// updateGlobalBuffers writes the uniform data of `slot`. The slot's fence
// must have been waited on.
func (e *Engine) updateGlobalBuffers(slot uint32) error {
	perFrame := PerFrameFromScene(e.scene)
	if err := e.runtime.WritePerFrame(slot, &perFrame); err != nil {
		return err
	}
	if err := e.runtime.WritePerObject(slot, PerObjectsFromScene(e.scene)); err != nil {
		return err
	}
	if e.shadow != nil {
		if l := shadowCaster(e.scene); l != nil {
			e.shadow.SetLightMatrix(scene.LightSpaceMatrix(l, perFrame.ViewProjection))
		}
	}
	return nil
}

// warnDroppedObjects logs what does not fit the per frame and per object
// buffers and returns the number of lights and entities left out. Scene files
// with too many entities are rejected by the loader, so the entity count only
// matters for scenes built in memory and passed to UseScene.
func warnDroppedObjects(s *scene.Scene) (lights, entities int) {
	if len(s.Lights) > renderer.MaxLights {
		lights = len(s.Lights) - renderer.MaxLights
		core.LogWarn("scene has %d lights, only the first %d are used", len(s.Lights), renderer.MaxLights)
	}
	if len(s.Entities) > renderer.MaxObjects {
		entities = len(s.Entities) - renderer.MaxObjects
		core.LogWarn("scene has %d entities, only the first %d are drawn", len(s.Entities), renderer.MaxObjects)
	}
	return lights, entities
}
