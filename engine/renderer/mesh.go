package renderer

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
)

type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	UV       mgl32.Vec2
}

const VertexStride = 32

// MeshVertexLayout is the vertex input of every geometry pipeline.
var MeshVertexLayout = metadata.VertexLayout{
	Stride: VertexStride,
	Attributes: []metadata.VertexAttribute{
		{Location: 0, Format: metadata.FORMAT_R32G32B32_SFLOAT, Offset: 0},
		{Location: 1, Format: metadata.FORMAT_R32G32B32_SFLOAT, Offset: 12},
		{Location: 2, Format: metadata.FORMAT_R32G32_SFLOAT, Offset: 24},
	},
}

/** @brief CPU side geometry, as produced by a mesh loader. */
type MeshData struct {
	Name     string
	Vertices []Vertex
	Indices  []uint32
}

func (d *MeshData) VertexBytes() []byte {
	out := make([]byte, len(d.Vertices)*VertexStride)
	off := 0
	put := func(f float32) {
		binary.LittleEndian.PutUint32(out[off:], math.Float32bits(f))
		off += 4
	}
	for _, v := range d.Vertices {
		put(v.Position[0])
		put(v.Position[1])
		put(v.Position[2])
		put(v.Normal[0])
		put(v.Normal[1])
		put(v.Normal[2])
		put(v.UV[0])
		put(v.UV[1])
	}
	return out
}

func (d *MeshData) IndexBytes() []byte {
	out := make([]byte, len(d.Indices)*4)
	for i, idx := range d.Indices {
		binary.LittleEndian.PutUint32(out[i*4:], idx)
	}
	return out
}

/** @brief GPU resident geometry. */
type Mesh struct {
	Name         string
	VertexBuffer *BufferBlock
	IndexBuffer  *BufferBlock
	IndexCount   uint32
	VertexCount  uint32
}

// NewMesh uploads the geometry into device local vertex and index buffers.
func NewMesh(rb *ResourceBuilder, data *MeshData) (*Mesh, error) {
	if len(data.Vertices) == 0 || len(data.Indices) == 0 {
		return nil, fmt.Errorf("mesh `%s` has no geometry", data.Name)
	}
	vb, err := rb.UploadBuffer(data.Name+"_vertices", metadata.BUFFER_USAGE_VERTEX_BUFFER, data.VertexBytes())
	if err != nil {
		return nil, err
	}
	ib, err := rb.UploadBuffer(data.Name+"_indices", metadata.BUFFER_USAGE_INDEX_BUFFER, data.IndexBytes())
	if err != nil {
		vb.Release()
		return nil, err
	}
	return &Mesh{
		Name:         data.Name,
		VertexBuffer: vb,
		IndexBuffer:  ib,
		IndexCount:   uint32(len(data.Indices)),
		VertexCount:  uint32(len(data.Vertices)),
	}, nil
}

// Draw binds the buffers and issues one indexed draw. firstInstance carries
// the per-object offset to the shader.
func (m *Mesh) Draw(rec CommandRecorder, cmd metadata.Handle, firstInstance uint32) {
	rec.CmdBindVertexBuffer(cmd, m.VertexBuffer.Buffer, 0)
	rec.CmdBindIndexBuffer(cmd, m.IndexBuffer.Buffer, 0, metadata.INDEX_TYPE_UINT32)
	rec.CmdDrawIndexed(cmd, m.IndexCount, firstInstance)
}

func (m *Mesh) Release() {
	m.VertexBuffer.Release()
	m.IndexBuffer.Release()
}

// MeshProvider returns GPU resident meshes by path.
type MeshProvider interface {
	LoadMesh(path string) (*Mesh, error)
}

// ShaderProvider returns shader modules by path.
type ShaderProvider interface {
	LoadShader(path string, stage metadata.ShaderStage) (metadata.Handle, error)
}
