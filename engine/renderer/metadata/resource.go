package metadata

/**
 * @brief An opaque reference to a GPU object owned by a RendererBackend.
 * The zero value never refers to a live object.
 */
type Handle uint64

const NullHandle Handle = 0

func (h Handle) IsNull() bool { return h == NullHandle }

type Extent2D struct {
	Width  uint32
	Height uint32
}

func (e Extent2D) IsZero() bool { return e.Width == 0 || e.Height == 0 }

/** @brief The result of a surface acquire or present. */
type SurfaceStatus uint32

const (
	SURFACE_STATUS_OK SurfaceStatus = iota
	/** @brief The image was presented but the surface no longer matches exactly. */
	SURFACE_STATUS_SUBOPTIMAL
	/** @brief The surface changed and must be rebuilt before it can be used again. */
	SURFACE_STATUS_OUT_OF_DATE
)

func (s SurfaceStatus) NeedsRebuild() bool {
	return s == SURFACE_STATUS_SUBOPTIMAL || s == SURFACE_STATUS_OUT_OF_DATE
}

func (s SurfaceStatus) String() string {
	switch s {
	case SURFACE_STATUS_OK:
		return "ok"
	case SURFACE_STATUS_SUBOPTIMAL:
		return "suboptimal"
	case SURFACE_STATUS_OUT_OF_DATE:
		return "out of date"
	}
	return "unknown"
}

type ResourceType uint32

const (
	RESOURCE_TYPE_NONE ResourceType = iota
	RESOURCE_TYPE_SHADER
	RESOURCE_TYPE_MESH
	RESOURCE_TYPE_SCENE
	RESOURCE_TYPE_IMAGE
)

func (r ResourceType) String() string {
	switch r {
	case RESOURCE_TYPE_SHADER:
		return "shader"
	case RESOURCE_TYPE_MESH:
		return "mesh"
	case RESOURCE_TYPE_SCENE:
		return "scene"
	case RESOURCE_TYPE_IMAGE:
		return "image"
	}
	return "none"
}

/** @brief The result of loading an asset from disk. */
type Resource struct {
	Name     string
	FullPath string
	Type     ResourceType
	/** @brief The size of Data in bytes, as read from disk. */
	DataSize uint64
	Data     interface{}
}
