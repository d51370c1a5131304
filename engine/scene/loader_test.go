package scene

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/deferred/engine/core"
)

const twoEntityScene = `<scene>
	<camera type="perspective">
		<float name="fov" value="45"/>
		<float name="near_clip" value="0.1"/>
		<float name="far_clip" value="100"/>
		<integer name="width" value="1024"/>
		<integer name="height" value="768"/>
		<transform name="toWorld">
			<lookat origin="0, 2, 8" target="0, 0, 0" up="0, 1, 0"/>
		</transform>
	</camera>
	<mesh type="obj">
		<string name="filename" value="meshes/plane.obj"/>
		<bsdf type="diffuse">
			<color name="albedo" value="0.8, 0.2, 0.1"/>
		</bsdf>
		<transform name="toWorld">
			<scale value="2 2 2"/>
			<translate value="0 -1 0"/>
		</transform>
	</mesh>
	<mesh type="obj">
		<string name="filename" value="meshes/sphere.obj"/>
		<bsdf type="microfacet">
			<color name="albedo" value="0.9 0.9 0.9"/>
			<float name="metallic" value="1"/>
			<float name="roughness" value="0.25"/>
		</bsdf>
	</mesh>
	<mesh type="ply">
		<string name="filename" value="meshes/ignored.ply"/>
	</mesh>
	<emitter type="directional">
		<vector name="direction" value="0 -2 0"/>
		<color name="radiance" value="1 1 1"/>
	</emitter>
</scene>`

func TestParseScene(t *testing.T) {
	s, err := Parse(strings.NewReader(twoEntityScene), "/scenes")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(s.Entities) != 2 {
		t.Fatalf("Expected 2 entities, got %d", len(s.Entities))
	}
	if len(s.Lights) != 1 {
		t.Fatalf("Expected 1 light, got %d", len(s.Lights))
	}

	e0, e1 := s.Entities[0], s.Entities[1]
	if e0.MeshPath != filepath.Join("/scenes", "meshes/plane.obj") {
		t.Errorf("Expected mesh path relative to the scene, got %s", e0.MeshPath)
	}
	if e0.Offset != 0 || e1.Offset != 1 {
		t.Errorf("Expected offsets 0 and 1, got %d and %d", e0.Offset, e1.Offset)
	}
	if e0.Material.Type != MATERIAL_TYPE_DIFFUSE || !e0.Material.Albedo.ApproxEqual(mgl32.Vec3{0.8, 0.2, 0.1}) {
		t.Errorf("Unexpected diffuse material %+v", e0.Material)
	}
	if e1.Material.Type != MATERIAL_TYPE_MICROFACETS || e1.Material.Metallic != 1 || e1.Material.Roughness != 0.25 {
		t.Errorf("Unexpected microfacet material %+v", e1.Material)
	}

	// scale then translate, both post-multiplied: M = S * T
	p := e0.Transform.Mul4x1(mgl32.Vec4{0, 1, 0, 1})
	if !p.ApproxEqual(mgl32.Vec4{0, 0, 0, 1}) {
		t.Errorf("Expected (0,0,0,1), got %v", p)
	}

	l := s.Lights[0]
	if l.Type != LIGHT_TYPE_DIRECTIONAL || !l.Position.ApproxEqual(mgl32.Vec3{0, -1, 0}) {
		t.Errorf("Expected a normalized directional light, got %+v", l)
	}

	c := s.Camera
	if c.FovY() != 45 || c.Near() != 0.1 || c.Far() != 100 {
		t.Errorf("Unexpected camera fov=%f near=%f far=%f", c.FovY(), c.Near(), c.Far())
	}
	if c.Width() != 1024 || c.Height() != 768 {
		t.Errorf("Expected 1024x768, got %dx%d", c.Width(), c.Height())
	}
	if !c.Position().ApproxEqual(mgl32.Vec3{0, 2, 8}) {
		t.Errorf("Expected camera at (0,2,8), got %v", c.Position())
	}
}

func TestParseSceneErrors(t *testing.T) {
	cases := map[string]string{
		"no camera":         `<scene></scene>`,
		"not a scene":       `<world><camera/></world>`,
		"two lookats":       `<scene><camera><transform><lookat origin="0 0 0" target="0 0 1" up="0 1 0"/><lookat origin="0 0 0" target="0 0 1" up="0 1 0"/></transform></camera></scene>`,
		"partial lookat":    `<scene><camera><transform><lookat origin="0 0 0" up="0 1 0"/></transform></camera></scene>`,
		"no bsdf":           `<scene><camera/><mesh type="obj"><string name="filename" value="a.obj"/></mesh></scene>`,
		"lookat on mesh":    `<scene><camera/><mesh type="obj"><string name="filename" value="a.obj"/><bsdf type="diffuse"/><transform><lookat origin="0 0 0" target="0 0 1" up="0 1 0"/></transform></mesh></scene>`,
		"no radiance":       `<scene><camera/><emitter type="ambient"/></scene>`,
		"no direction":      `<scene><camera/><emitter type="directional"><color name="radiance" value="1 1 1"/></emitter></scene>`,
		"bad vector":        `<scene><camera/><emitter type="ambient"><color name="radiance" value="1 1"/></emitter></scene>`,
		"unknown bsdf":      `<scene><camera/><mesh type="obj"><string name="filename" value="a.obj"/><bsdf type="glass"/></mesh></scene>`,
		"mesh without type": `<scene><camera/><mesh/></scene>`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(doc), "")
			if !errors.Is(err, core.ErrSceneInvalid) {
				t.Errorf("Expected ErrSceneInvalid, got %v", err)
			}
		})
	}
}

func TestParseSceneLightsFromMeshEmitters(t *testing.T) {
	doc := `<scene><camera/>
		<mesh type="obj"><emitter type="point">
			<point name="position" value="1 2 3"/>
			<vector name="attenuation" value="1 0.5 0.25"/>
			<color name="radiance" value="4 4 4"/>
		</emitter></mesh>
		<emitter type="ambient"><color name="radiance" value="0.1 0.1 0.1"/></emitter>
	</scene>`
	s, err := Parse(strings.NewReader(doc), "")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(s.Entities) != 0 || len(s.Lights) != 2 {
		t.Fatalf("Expected 0 entities and 2 lights, got %d and %d", len(s.Entities), len(s.Lights))
	}
	point := s.Lights[0]
	if point.Type != LIGHT_TYPE_POINT || !point.Position.ApproxEqual(mgl32.Vec3{1, 2, 3}) {
		t.Errorf("Expected the point light position to be kept as is, got %v", point.Position)
	}
	if !point.Attenuation.ApproxEqual(mgl32.Vec3{1, 0.5, 0.25}) {
		t.Errorf("Expected attenuation (1,0.5,0.25), got %v", point.Attenuation)
	}
	if d := point.Data(); d.Position.W() != float32(LIGHT_TYPE_POINT) {
		t.Errorf("Expected the light type in position.w, got %f", d.Position.W())
	}
	if s.Lights[1].Type != LIGHT_TYPE_AMBIENT {
		t.Errorf("Expected an ambient light, got %s", s.Lights[1].Type)
	}
}

func TestLoadSceneFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.xml")
	if err := os.WriteFile(path, []byte(twoEntityScene), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if s.Path != path {
		t.Errorf("Expected path %s, got %s", path, s.Path)
	}
	paths := s.MeshPaths()
	if len(paths) != 2 || paths[1] != filepath.Join(dir, "meshes/sphere.obj") {
		t.Errorf("Unexpected mesh paths %v", paths)
	}

	if _, err := Load(filepath.Join(dir, "missing.xml")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestLightSpaceMatrix(t *testing.T) {
	ambient := NewLight(LIGHT_TYPE_AMBIENT)
	if !LightSpaceMatrix(ambient, mgl32.Ident4()).ApproxEqual(mgl32.Ident4()) {
		t.Error("Expected identity for an ambient light")
	}

	point := NewLight(LIGHT_TYPE_POINT)
	point.Position = mgl32.Vec3{0, 0, 5}
	m := LightSpaceMatrix(point, mgl32.Ident4())
	p := m.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	if x := p.X() / p.W(); x > 1e-5 || x < -1e-5 {
		t.Errorf("Expected the target centered, got %v", p)
	}
}
