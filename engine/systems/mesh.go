package systems

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/spaghettifunk/deferred/engine/assets"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
)

/** @brief Configuration for the mesh system. */
type MeshSystemConfig struct {
	/** @brief The maximum number of GPU meshes held at once. */
	MaxMeshCount uint32
}

type parsedMesh struct {
	ready chan struct{}
	data  *renderer.MeshData
	err   error
}

// MeshSystem parses each OBJ file at most once and uploads it to the GPU at
// most once. Parsing is safe from any goroutine; uploads happen on the
// caller of LoadMesh.
type MeshSystem struct {
	Config *MeshSystemConfig

	mu     sync.Mutex
	parsed map[string]*parsedMesh
	meshes map[string]*renderer.Mesh

	assets  *assets.AssetManager
	builder *renderer.ResourceBuilder
}

func NewMeshSystem(config *MeshSystemConfig, am *assets.AssetManager, builder *renderer.ResourceBuilder) (*MeshSystem, error) {
	if config.MaxMeshCount == 0 {
		err := fmt.Errorf("NewMeshSystem - config.MaxMeshCount must be greater than 0")
		core.LogError(err.Error())
		return nil, err
	}
	if am == nil || builder == nil {
		err := fmt.Errorf("NewMeshSystem - asset manager and resource builder are required")
		core.LogError(err.Error())
		return nil, err
	}
	return &MeshSystem{
		Config:  config,
		parsed:  make(map[string]*parsedMesh),
		meshes:  make(map[string]*renderer.Mesh),
		assets:  am,
		builder: builder,
	}, nil
}

// Parse returns the CPU geometry of path. Concurrent callers share one read.
func (ms *MeshSystem) Parse(path string) (*renderer.MeshData, error) {
	key := filepath.Clean(path)

	ms.mu.Lock()
	if p, ok := ms.parsed[key]; ok {
		ms.mu.Unlock()
		<-p.ready
		return p.data, p.err
	}
	p := &parsedMesh{ready: make(chan struct{})}
	ms.parsed[key] = p
	ms.mu.Unlock()

	res, err := ms.assets.LoadAsset(key, metadata.RESOURCE_TYPE_MESH, nil)
	if err != nil {
		p.err = err
	} else {
		p.data = res.Data.(*renderer.MeshData)
	}
	close(p.ready)

	if p.err != nil {
		ms.mu.Lock()
		if ms.parsed[key] == p {
			delete(ms.parsed, key)
		}
		ms.mu.Unlock()
	}
	return p.data, p.err
}

// LoadMesh returns the GPU mesh for path, parsing and uploading it on first
// use.
func (ms *MeshSystem) LoadMesh(path string) (*renderer.Mesh, error) {
	key := filepath.Clean(path)

	ms.mu.Lock()
	if m, ok := ms.meshes[key]; ok {
		ms.mu.Unlock()
		return m, nil
	}
	full := uint32(len(ms.meshes)) >= ms.Config.MaxMeshCount
	ms.mu.Unlock()
	if full {
		err := fmt.Errorf("mesh system is full (%d meshes), cannot load %s", ms.Config.MaxMeshCount, key)
		core.LogError(err.Error())
		return nil, err
	}

	data, err := ms.Parse(key)
	if err != nil {
		return nil, err
	}
	mesh, err := renderer.NewMesh(ms.builder, data)
	if err != nil {
		return nil, fmt.Errorf("failed to upload mesh %s: %w", key, err)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if existing, ok := ms.meshes[key]; ok {
		// another caller uploaded it first
		mesh.Release()
		return existing, nil
	}
	ms.meshes[key] = mesh
	core.LogDebug("uploaded mesh %s (%d vertices, %d indices)", key, mesh.VertexCount, mesh.IndexCount)
	return mesh, nil
}

// Count returns the number of GPU meshes.
func (ms *MeshSystem) Count() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.meshes)
}

/**
 * @brief Shuts down the mesh system, releasing every GPU mesh.
 */
func (ms *MeshSystem) Shutdown() error {
	ms.mu.Lock()
	meshes := ms.meshes
	ms.meshes = make(map[string]*renderer.Mesh)
	ms.parsed = make(map[string]*parsedMesh)
	ms.mu.Unlock()

	for _, m := range meshes {
		m.Release()
	}
	return nil
}
