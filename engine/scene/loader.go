package scene

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/math"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/components"
)

// node is a generic XML element; scene files are property lists, so the
// loader walks the tree instead of binding fixed structs.
type node struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Nodes   []node     `xml:",any"`
}

func (n *node) tag() string { return n.XMLName.Local }

func (n *node) attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func (n *node) children(tag string) []*node {
	var out []*node
	for i := range n.Nodes {
		if n.Nodes[i].tag() == tag {
			out = append(out, &n.Nodes[i])
		}
	}
	return out
}

func (n *node) child(tag string) *node {
	for i := range n.Nodes {
		if n.Nodes[i].tag() == tag {
			return &n.Nodes[i]
		}
	}
	return nil
}

// property finds a direct child whose `name` attribute matches.
func (n *node) property(name string) *node {
	for i := range n.Nodes {
		if v, ok := n.Nodes[i].attr("name"); ok && v == name {
			return &n.Nodes[i]
		}
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", core.ErrSceneInvalid, fmt.Sprintf(format, args...))
}

func parseFloat(s string) (float32, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil {
		return 0, invalid("malformed number %q", s)
	}
	return float32(f), nil
}

// parseVec3 reads three numbers separated by commas or whitespace.
func parseVec3(s string) (mgl32.Vec3, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(fields) != 3 {
		return mgl32.Vec3{}, invalid("expected 3 values, got %q", s)
	}
	var v mgl32.Vec3
	for i, f := range fields {
		x, err := parseFloat(f)
		if err != nil {
			return mgl32.Vec3{}, err
		}
		v[i] = x
	}
	return v, nil
}

func (n *node) floatProperty(name string, def float32) (float32, error) {
	p := n.property(name)
	if p == nil {
		return def, nil
	}
	v, ok := p.attr("value")
	if !ok {
		return 0, invalid("property `%s` has no value", name)
	}
	return parseFloat(v)
}

func (n *node) vec3Property(name string) (mgl32.Vec3, bool, error) {
	p := n.property(name)
	if p == nil {
		return mgl32.Vec3{}, false, nil
	}
	v, ok := p.attr("value")
	if !ok {
		return mgl32.Vec3{}, false, invalid("property `%s` has no value", name)
	}
	vec, err := parseVec3(v)
	return vec, true, err
}

func (n *node) uintProperty(name string, def uint32) (uint32, error) {
	p := n.property(name)
	if p == nil {
		return def, nil
	}
	v, _ := p.attr("value")
	i, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
	if err != nil || i == 0 {
		return 0, invalid("property `%s` must be a positive integer, got %q", name, v)
	}
	return uint32(i), nil
}

// Load reads a scene file. Mesh paths are resolved relative to the file;
// meshes themselves are not loaded.
func Load(path string) (*Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scene %s: %w", path, err)
	}
	defer f.Close()

	s, err := Parse(f, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Path = path
	return s, nil
}

// Parse decodes a scene description.
func Parse(r io.Reader, baseDir string) (*Scene, error) {
	var root node
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, invalid("malformed XML: %v", err)
	}
	if root.tag() != "scene" {
		return nil, invalid("no scene node")
	}
	cameraNode := root.child("camera")
	if cameraNode == nil {
		return nil, invalid("no camera node")
	}

	s := &Scene{}
	camera, err := parseCamera(cameraNode)
	if err != nil {
		return nil, err
	}
	s.Camera = camera

	for _, n := range root.children("mesh") {
		typ, ok := n.attr("type")
		if !ok {
			return nil, invalid("mesh node without type attribute")
		}
		if emitter := n.child("emitter"); emitter != nil && typ == "obj" {
			light, err := parseLight(emitter)
			if err != nil {
				return nil, err
			}
			s.Lights = append(s.Lights, light)
			continue
		}
		if n.child("medium") != nil || n.child("phase") != nil || n.child("test") != nil || typ != "obj" {
			core.LogWarn("mesh of type `%s` is not supported, skipping", typ)
			continue
		}
		entity, err := parseEntity(n, baseDir, uint32(len(s.Entities)))
		if err != nil {
			return nil, err
		}
		s.Entities = append(s.Entities, entity)
		if len(s.Entities) > renderer.MaxObjects {
			return nil, invalid("more than %d entities", renderer.MaxObjects)
		}
	}

	for _, n := range root.children("emitter") {
		light, err := parseLight(n)
		if err != nil {
			return nil, err
		}
		s.Lights = append(s.Lights, light)
	}
	return s, nil
}

func parseCamera(n *node) (*components.Camera, error) {
	c := components.NewCamera()

	typ, _ := n.attr("type")
	switch typ {
	case "orthographic":
		l, err := n.floatProperty("left", -0.5)
		if err != nil {
			return nil, err
		}
		r, err := n.floatProperty("right", 0.5)
		if err != nil {
			return nil, err
		}
		b, err := n.floatProperty("bottom", -0.5)
		if err != nil {
			return nil, err
		}
		t, err := n.floatProperty("top", 0.5)
		if err != nil {
			return nil, err
		}
		c.SetOrthographic(l, r, b, t)
	default:
		fov, err := n.floatProperty("fov", components.DefaultFovY)
		if err != nil {
			return nil, err
		}
		c.SetPerspective(fov)
	}

	for _, t := range n.children("transform") {
		lookats := t.children("lookat")
		if len(lookats) > 1 {
			return nil, invalid("more than 1 lookat defined for the camera")
		}
		if len(lookats) == 0 {
			continue
		}
		var values [3]mgl32.Vec3
		for i, name := range []string{"origin", "target", "up"} {
			raw, ok := lookats[0].attr(name)
			if !ok {
				return nil, invalid("lookat not fully defined: missing `%s`", name)
			}
			v, err := parseVec3(raw)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		c.SetLookAt(values[0], values[1], values[2])
	}

	near, err := n.floatProperty("near_clip", c.Near())
	if err != nil {
		return nil, err
	}
	if near, err = n.floatProperty("near", near); err != nil {
		return nil, err
	}
	far, err := n.floatProperty("far_clip", c.Far())
	if err != nil {
		return nil, err
	}
	if far, err = n.floatProperty("far", far); err != nil {
		return nil, err
	}
	if near <= 0 || far <= near {
		return nil, invalid("invalid clip planes near=%f far=%f", near, far)
	}
	c.SetClipPlanes(near, far)

	width, err := n.uintProperty("width", components.DefaultWidth)
	if err != nil {
		return nil, err
	}
	height, err := n.uintProperty("height", components.DefaultHeight)
	if err != nil {
		return nil, err
	}
	c.SetSize(width, height)
	return c, nil
}

func parseTransform(n *node) (mgl32.Mat4, error) {
	t := math.NewTransform()
	for i := range n.Nodes {
		op := &n.Nodes[i]
		switch op.tag() {
		case "scale", "translate":
			raw, ok := op.attr("value")
			if !ok {
				return mgl32.Mat4{}, invalid("transform %s malformed", op.tag())
			}
			v, err := parseVec3(raw)
			if err != nil {
				return mgl32.Mat4{}, err
			}
			if op.tag() == "scale" {
				t.Scale(v)
			} else {
				t.Translate(v)
			}
		case "rotate":
			rawAngle, okAngle := op.attr("angle")
			rawAxis, okAxis := op.attr("axis")
			if !okAngle || !okAxis {
				return mgl32.Mat4{}, invalid("transform rotate malformed")
			}
			angle, err := parseFloat(rawAngle)
			if err != nil {
				return mgl32.Mat4{}, err
			}
			axis, err := parseVec3(rawAxis)
			if err != nil {
				return mgl32.Mat4{}, err
			}
			if axis.Len() == 0 {
				return mgl32.Mat4{}, invalid("rotation axis is zero")
			}
			t.Rotate(angle, axis)
		case "lookat":
			return mgl32.Mat4{}, invalid("mesh transform node cannot have lookat")
		}
	}
	return t.Matrix(), nil
}

func parseEntity(n *node, baseDir string, offset uint32) (*Entity, error) {
	bsdf := n.child("bsdf")
	filename := n.property("filename")
	if bsdf == nil || filename == nil {
		return nil, invalid("mesh without bsdf or filename")
	}
	path, ok := filename.attr("value")
	if !ok || path == "" {
		return nil, invalid("mesh filename has no value")
	}
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}

	model := math.NewTransform()
	for _, t := range n.children("transform") {
		m, err := parseTransform(t)
		if err != nil {
			return nil, err
		}
		model.Apply(m)
	}

	material, err := parseMaterial(bsdf)
	if err != nil {
		return nil, err
	}
	return &Entity{
		Name:      filepath.Base(path),
		MeshPath:  path,
		Transform: model.Matrix(),
		Material:  material,
		Offset:    offset,
	}, nil
}

func parseMaterial(n *node) (Material, error) {
	albedo, ok, err := n.vec3Property("albedo")
	if err != nil {
		return Material{}, err
	}
	if !ok {
		albedo = DefaultAlbedo
	}

	typ, _ := n.attr("type")
	switch typ {
	case "diffuse":
		return NewDiffuse(albedo), nil
	case "microfacet":
		metallic, err := n.floatProperty("metallic", DefaultMetallic)
		if err != nil {
			return Material{}, err
		}
		roughness, err := n.floatProperty("roughness", DefaultRoughness)
		if err != nil {
			return Material{}, err
		}
		return NewMicrofacets(albedo, metallic, roughness), nil
	}
	return Material{}, invalid("unsupported bsdf type `%s`", typ)
}

func parseLight(n *node) (*Light, error) {
	typ, _ := n.attr("type")
	var light *Light
	switch typ {
	case "ambient":
		light = NewLight(LIGHT_TYPE_AMBIENT)
	case "directional":
		light = NewLight(LIGHT_TYPE_DIRECTIONAL)
		dir, ok, err := n.vec3Property("direction")
		if err != nil {
			return nil, err
		}
		if !ok || dir.Len() == 0 {
			return nil, invalid("directional light without direction")
		}
		light.Position = dir.Normalize()
	case "point":
		light = NewLight(LIGHT_TYPE_POINT)
		if att, ok, err := n.vec3Property("attenuation"); err != nil {
			return nil, err
		} else if ok {
			light.Attenuation = att
		}
		if pos, ok, err := n.vec3Property("position"); err != nil {
			return nil, err
		} else if ok {
			light.Position = pos
		}
	default:
		return nil, invalid("unsupported emitter type `%s`", typ)
	}

	radiance, ok, err := n.vec3Property("radiance")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, invalid("emitter without radiance")
	}
	light.Radiance = radiance
	return light, nil
}
