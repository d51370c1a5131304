package renderer

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	// MaxLights is the capacity of the light array in PerFrameData.
	MaxLights = 10
	// MaxObjects bounds the number of PerObjectData records per frame.
	MaxObjects = 10000
	// MaxFramesInFlight is the maximum number of frame slots.
	MaxFramesInFlight = 3
)

const (
	lightDataSize = 3 * 16
	// PerFrameDataSize is the std140 size of PerFrameData, padded to 16 bytes.
	PerFrameDataSize = 16 + 6*64 + 16 + MaxLights*lightDataSize + 16
	// PerObjectDataSize is the std430 stride of one PerObjectData record.
	PerObjectDataSize = 64 + 16 + 16
	// PerObjectBufferSize is the size of one slot's per-object buffer.
	PerObjectBufferSize = MaxObjects * PerObjectDataSize

	lightCountOffset = 16 + 6*64 + 16 + MaxLights*lightDataSize
)

/** @brief One GPU light record. Position.W carries the light type. */
type LightData struct {
	Position    mgl32.Vec4
	Radiance    mgl32.Vec4
	Attenuation mgl32.Vec4
}

/** @brief The per-frame uniform block: camera state and lights. */
type PerFrameData struct {
	CameraPosition    mgl32.Vec4
	View              mgl32.Mat4
	Projection        mgl32.Mat4
	ViewProjection    mgl32.Mat4
	InvView           mgl32.Mat4
	InvProjection     mgl32.Mat4
	InvViewProjection mgl32.Mat4
	/** @brief (near, far, 0, 0) */
	ClippingPlanes mgl32.Vec4
	Lights         [MaxLights]LightData
	NumberOfLights uint32
}

/** @brief Per entity data, indexed by the entity's stable offset. */
type PerObjectData struct {
	Model mgl32.Mat4
	// Albedo.W is unused.
	Albedo mgl32.Vec4
	// (metallic, roughness, 0, 0)
	MetallicRoughness mgl32.Vec4
}

type byteWriter struct {
	buf []byte
	off int
}

func (w *byteWriter) float(v float32) {
	binary.LittleEndian.PutUint32(w.buf[w.off:], math.Float32bits(v))
	w.off += 4
}

func (w *byteWriter) vec4(v mgl32.Vec4) {
	for _, f := range v {
		w.float(f)
	}
}

// mgl32 matrices are column major, as GLSL expects.
func (w *byteWriter) mat4(m mgl32.Mat4) {
	for _, f := range m {
		w.float(f)
	}
}

// Encode returns the std140 representation of the block.
func (d *PerFrameData) Encode() []byte {
	w := &byteWriter{buf: make([]byte, PerFrameDataSize)}
	w.vec4(d.CameraPosition)
	w.mat4(d.View)
	w.mat4(d.Projection)
	w.mat4(d.ViewProjection)
	w.mat4(d.InvView)
	w.mat4(d.InvProjection)
	w.mat4(d.InvViewProjection)
	w.vec4(d.ClippingPlanes)
	for i := range d.Lights {
		w.vec4(d.Lights[i].Position)
		w.vec4(d.Lights[i].Radiance)
		w.vec4(d.Lights[i].Attenuation)
	}
	binary.LittleEndian.PutUint32(w.buf[w.off:], d.NumberOfLights)
	return w.buf
}

// DecodePerFrameData is the inverse of Encode.
func DecodePerFrameData(data []byte) PerFrameData {
	r := &byteReader{buf: data}
	var d PerFrameData
	d.CameraPosition = r.vec4()
	d.View = r.mat4()
	d.Projection = r.mat4()
	d.ViewProjection = r.mat4()
	d.InvView = r.mat4()
	d.InvProjection = r.mat4()
	d.InvViewProjection = r.mat4()
	d.ClippingPlanes = r.vec4()
	for i := range d.Lights {
		d.Lights[i].Position = r.vec4()
		d.Lights[i].Radiance = r.vec4()
		d.Lights[i].Attenuation = r.vec4()
	}
	d.NumberOfLights = binary.LittleEndian.Uint32(data[lightCountOffset:])
	return d
}

func (d *PerObjectData) Encode() []byte {
	w := &byteWriter{buf: make([]byte, PerObjectDataSize)}
	w.mat4(d.Model)
	w.vec4(d.Albedo)
	w.vec4(d.MetallicRoughness)
	return w.buf
}

func DecodePerObjectData(data []byte) PerObjectData {
	r := &byteReader{buf: data}
	return PerObjectData{
		Model:             r.mat4(),
		Albedo:            r.vec4(),
		MetallicRoughness: r.vec4(),
	}
}

type byteReader struct {
	buf []byte
	off int
}

func (r *byteReader) float() float32 {
	v := math.Float32frombits(binary.LittleEndian.Uint32(r.buf[r.off:]))
	r.off += 4
	return v
}

func (r *byteReader) vec4() mgl32.Vec4 {
	return mgl32.Vec4{r.float(), r.float(), r.float(), r.float()}
}

func (r *byteReader) mat4() mgl32.Mat4 {
	var m mgl32.Mat4
	for i := range m {
		m[i] = r.float()
	}
	return m
}

/** @brief Identifies the frame being recorded. */
type FrameContext struct {
	// Slot is the frame-in-flight index, in [0, frames in flight).
	Slot uint32
	// ImageIndex is the acquired swapchain image.
	ImageIndex uint32
	// Number is the monotonically increasing frame counter.
	Number uint64
}
