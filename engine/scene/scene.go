package scene

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/components"
)

type MaterialType uint32

const (
	MATERIAL_TYPE_DIFFUSE MaterialType = iota
	MATERIAL_TYPE_MICROFACETS
	// MATERIAL_TYPE_COUNT is the number of material types; passes iterate
	// material buckets in this order.
	MATERIAL_TYPE_COUNT
)

func (m MaterialType) String() string {
	switch m {
	case MATERIAL_TYPE_DIFFUSE:
		return "diffuse"
	case MATERIAL_TYPE_MICROFACETS:
		return "microfacets"
	}
	return "unknown"
}

const (
	DefaultRoughness float32 = 0.5
	DefaultMetallic  float32 = 0.0
)

var DefaultAlbedo = mgl32.Vec3{0.5, 0.5, 0.5}

type Material struct {
	Type      MaterialType
	Albedo    mgl32.Vec3
	Metallic  float32
	Roughness float32
}

func NewDiffuse(albedo mgl32.Vec3) Material {
	return Material{Type: MATERIAL_TYPE_DIFFUSE, Albedo: albedo}
}

func NewMicrofacets(albedo mgl32.Vec3, metallic, roughness float32) Material {
	return Material{Type: MATERIAL_TYPE_MICROFACETS, Albedo: albedo, Metallic: metallic, Roughness: roughness}
}

/** @brief A drawable object: a mesh placed in the world with a material. */
type Entity struct {
	Name      string
	MeshPath  string
	Mesh      *renderer.Mesh
	Transform mgl32.Mat4
	Material  Material
	// Offset is the stable index of the entity's PerObjectData record.
	Offset uint32
}

// PerObject returns the GPU record of the entity.
func (e *Entity) PerObject() renderer.PerObjectData {
	return renderer.PerObjectData{
		Model:             e.Transform,
		Albedo:            e.Material.Albedo.Vec4(0),
		MetallicRoughness: mgl32.Vec4{e.Material.Metallic, e.Material.Roughness, 0, 0},
	}
}

type LightType uint32

const (
	LIGHT_TYPE_DIRECTIONAL LightType = 0
	LIGHT_TYPE_POINT       LightType = 1
	LIGHT_TYPE_AMBIENT     LightType = 2
)

func (l LightType) String() string {
	switch l {
	case LIGHT_TYPE_DIRECTIONAL:
		return "directional"
	case LIGHT_TYPE_POINT:
		return "point"
	case LIGHT_TYPE_AMBIENT:
		return "ambient"
	}
	return "unknown"
}

const (
	DefaultShadowFov  float32 = 75.0
	DefaultShadowNear float32 = 0.01
	DefaultShadowFar  float32 = 10.0
)

/**
 * @brief A light. Directional lights keep their normalized direction in
 * Position.
 */
type Light struct {
	Type        LightType
	Radiance    mgl32.Vec3
	Position    mgl32.Vec3
	Attenuation mgl32.Vec3

	// shadow projection parameters
	Target mgl32.Vec3
	Fov    float32
	Near   float32
	Far    float32
}

func NewLight(t LightType) *Light {
	return &Light{
		Type:        t,
		Attenuation: mgl32.Vec3{1, 0, 0},
		Fov:         DefaultShadowFov,
		Near:        DefaultShadowNear,
		Far:         DefaultShadowFar,
	}
}

// Data returns the GPU record of the light; the type travels in Position.W.
func (l *Light) Data() renderer.LightData {
	return renderer.LightData{
		Position:    l.Position.Vec4(float32(l.Type)),
		Radiance:    l.Radiance.Vec4(0),
		Attenuation: l.Attenuation.Vec4(0),
	}
}

/** @brief A loaded scene. It is not modified while it is rendered. */
type Scene struct {
	Path     string
	Camera   *components.Camera
	Entities []*Entity
	Lights   []*Light
}

// MeshPaths returns the distinct mesh paths in entity order.
func (s *Scene) MeshPaths() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range s.Entities {
		if !seen[e.MeshPath] {
			seen[e.MeshPath] = true
			out = append(out, e.MeshPath)
		}
	}
	return out
}

// ResolveMeshes attaches a GPU mesh to every entity.
func (s *Scene) ResolveMeshes(meshes renderer.MeshProvider) error {
	for _, e := range s.Entities {
		m, err := meshes.LoadMesh(e.MeshPath)
		if err != nil {
			return err
		}
		e.Mesh = m
	}
	return nil
}
