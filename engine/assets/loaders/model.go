package loaders

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
)

// ModelLoader reads Wavefront OBJ files. Data is a *renderer.MeshData.
type ModelLoader struct{}

func (ml *ModelLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, core.ErrMeshNotFound)
		}
		return nil, err
	}
	defer f.Close()

	mesh, err := ParseOBJ(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	mesh.Name = path

	return &metadata.Resource{
		Name:     path,
		FullPath: path,
		Type:     metadata.RESOURCE_TYPE_MESH,
		DataSize: uint64(len(mesh.Vertices)*renderer.VertexStride + len(mesh.Indices)*4),
		Data:     mesh,
	}, nil
}

func (ml *ModelLoader) Unload(*metadata.Resource) error {
	return nil
}

type objIndex struct {
	v, vt, vn int
}

type objParser struct {
	positions []mgl32.Vec3
	normals   []mgl32.Vec3
	uvs       []mgl32.Vec2

	unique map[objIndex]uint32
	mesh   *renderer.MeshData
}

// ParseOBJ triangulates every face as a fan and deduplicates vertices that
// share position, normal and uv.
func ParseOBJ(r io.Reader) (*renderer.MeshData, error) {
	p := &objParser{
		unique: make(map[objIndex]uint32),
		mesh:   &renderer.MeshData{},
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		var err error
		switch fields[0] {
		case "v":
			var v []float32
			if v, err = parseFloats(fields[1:], 3); err == nil {
				p.positions = append(p.positions, mgl32.Vec3{v[0], v[1], v[2]})
			}
		case "vn":
			var v []float32
			if v, err = parseFloats(fields[1:], 3); err == nil {
				p.normals = append(p.normals, mgl32.Vec3{v[0], v[1], v[2]})
			}
		case "vt":
			var v []float32
			if v, err = parseFloats(fields[1:], 2); err == nil {
				p.uvs = append(p.uvs, mgl32.Vec2{v[0], v[1]})
			}
		case "f":
			err = p.face(fields[1:])
		default:
			// groups, objects, materials and smoothing are ignored
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(p.mesh.Indices) == 0 {
		return nil, fmt.Errorf("no faces found")
	}
	return p.mesh, nil
}

func parseFloats(fields []string, n int) ([]float32, error) {
	if len(fields) < n {
		return nil, fmt.Errorf("expected %d components, got %d", n, len(fields))
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(f)
	}
	return out, nil
}

func (p *objParser) face(fields []string) error {
	if len(fields) < 3 {
		return fmt.Errorf("face needs at least 3 vertices, got %d", len(fields))
	}
	corners := make([]uint32, len(fields))
	for i, field := range fields {
		idx, err := p.resolve(field)
		if err != nil {
			return err
		}
		corners[i] = p.vertex(idx)
	}
	for i := 1; i+1 < len(corners); i++ {
		p.mesh.Indices = append(p.mesh.Indices, corners[0], corners[i], corners[i+1])
	}
	return nil
}

// resolve handles the v, v/vt, v//vn and v/vt/vn forms. Missing components
// are -1.
func (p *objParser) resolve(field string) (objIndex, error) {
	parts := strings.Split(field, "/")
	if len(parts) > 3 {
		return objIndex{}, fmt.Errorf("invalid face vertex %q", field)
	}
	idx := objIndex{v: -1, vt: -1, vn: -1}
	counts := []int{len(p.positions), len(p.uvs), len(p.normals)}
	targets := []*int{&idx.v, &idx.vt, &idx.vn}
	for i, part := range parts {
		if part == "" {
			if i == 0 {
				return objIndex{}, fmt.Errorf("invalid face vertex %q", field)
			}
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return objIndex{}, fmt.Errorf("invalid face vertex %q: %w", field, err)
		}
		switch {
		case n > 0:
			n--
		case n < 0:
			n += counts[i]
		default:
			return objIndex{}, fmt.Errorf("zero index in face vertex %q", field)
		}
		if n < 0 || n >= counts[i] {
			return objIndex{}, fmt.Errorf("index out of range in face vertex %q", field)
		}
		*targets[i] = n
	}
	return idx, nil
}

func (p *objParser) vertex(idx objIndex) uint32 {
	if i, ok := p.unique[idx]; ok {
		return i
	}
	v := renderer.Vertex{Position: p.positions[idx.v]}
	if idx.vn >= 0 {
		v.Normal = p.normals[idx.vn]
	}
	if idx.vt >= 0 {
		v.UV = p.uvs[idx.vt]
	}
	i := uint32(len(p.mesh.Vertices))
	p.mesh.Vertices = append(p.mesh.Vertices, v)
	p.unique[idx] = i
	return i
}
