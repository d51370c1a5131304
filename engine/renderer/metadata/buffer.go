package metadata

type BufferUsage uint32

const (
	BUFFER_USAGE_TRANSFER_SRC   BufferUsage = 0x01
	BUFFER_USAGE_TRANSFER_DST   BufferUsage = 0x02
	BUFFER_USAGE_UNIFORM_BUFFER BufferUsage = 0x10
	BUFFER_USAGE_STORAGE_BUFFER BufferUsage = 0x20
	BUFFER_USAGE_INDEX_BUFFER   BufferUsage = 0x40
	BUFFER_USAGE_VERTEX_BUFFER  BufferUsage = 0x80
)

type MemoryProperty uint32

const (
	MEMORY_PROPERTY_DEVICE_LOCAL  MemoryProperty = 0x01
	MEMORY_PROPERTY_HOST_VISIBLE  MemoryProperty = 0x02
	MEMORY_PROPERTY_HOST_COHERENT MemoryProperty = 0x04
)

// MEMORY_PROPERTY_HOST is the usual combination for CPU written buffers.
const MEMORY_PROPERTY_HOST = MEMORY_PROPERTY_HOST_VISIBLE | MEMORY_PROPERTY_HOST_COHERENT

func (m MemoryProperty) IsHostVisible() bool {
	return m&MEMORY_PROPERTY_HOST_VISIBLE != 0
}

type BufferConfig struct {
	Name   string
	Size   uint64
	Usage  BufferUsage
	Memory MemoryProperty
}

type VertexAttribute struct {
	Location uint32
	Format   Format
	Offset   uint32
}

/** @brief Layout of a single interleaved vertex stream. */
type VertexLayout struct {
	Stride     uint32
	Attributes []VertexAttribute
}

func (v VertexLayout) IsEmpty() bool { return v.Stride == 0 }
