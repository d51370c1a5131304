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

/** @brief Configuration for the shader system. */
type ShaderSystemConfig struct {
	/** @brief The maximum number of shader modules held at once. */
	MaxShaderCount uint16
	/** @brief Relative shader paths are resolved against this directory. */
	ShaderDir string
}

type shaderEntry struct {
	ready  chan struct{}
	handle metadata.Handle
	stage  metadata.ShaderStage
	err    error
}

// ShaderSystem creates each shader module at most once per path and hands out
// the same handle to every caller until the path is evicted.
type ShaderSystem struct {
	Config *ShaderSystemConfig

	mu     sync.Mutex
	lookup map[string]*shaderEntry

	assets  *assets.AssetManager
	backend renderer.ResourceAllocator
}

func NewShaderSystem(config *ShaderSystemConfig, am *assets.AssetManager, backend renderer.ResourceAllocator) (*ShaderSystem, error) {
	if config.MaxShaderCount == 0 {
		err := fmt.Errorf("NewShaderSystem - config.MaxShaderCount must be greater than 0")
		core.LogError(err.Error())
		return nil, err
	}
	if am == nil || backend == nil {
		err := fmt.Errorf("NewShaderSystem - asset manager and backend are required")
		core.LogError(err.Error())
		return nil, err
	}
	return &ShaderSystem{
		Config:  config,
		lookup:  make(map[string]*shaderEntry),
		assets:  am,
		backend: backend,
	}, nil
}

// resolve keys modules by absolute path. Relative names are taken against
// ShaderDir.
func (ss *ShaderSystem) resolve(path string) string {
	if !filepath.IsAbs(path) && ss.Config.ShaderDir != "" {
		path = filepath.Join(ss.Config.ShaderDir, path)
	}
	return absPath(path)
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// LoadShader returns the module for path, creating it on first use. Failed
// loads are not cached.
func (ss *ShaderSystem) LoadShader(path string, stage metadata.ShaderStage) (metadata.Handle, error) {
	full := ss.resolve(path)

	ss.mu.Lock()
	if e, ok := ss.lookup[full]; ok {
		ss.mu.Unlock()
		<-e.ready
		return e.handle, e.err
	}
	if len(ss.lookup) >= int(ss.Config.MaxShaderCount) {
		ss.mu.Unlock()
		err := fmt.Errorf("shader system is full (%d modules), cannot load %s", ss.Config.MaxShaderCount, full)
		core.LogError(err.Error())
		return metadata.NullHandle, err
	}
	e := &shaderEntry{ready: make(chan struct{}), stage: stage}
	ss.lookup[full] = e
	ss.mu.Unlock()

	e.handle, e.err = ss.create(full, stage)
	close(e.ready)

	if e.err != nil {
		ss.mu.Lock()
		if ss.lookup[full] == e {
			delete(ss.lookup, full)
		}
		ss.mu.Unlock()
	}
	return e.handle, e.err
}

func (ss *ShaderSystem) create(path string, stage metadata.ShaderStage) (metadata.Handle, error) {
	res, err := ss.assets.LoadAsset(path, metadata.RESOURCE_TYPE_SHADER, nil)
	if err != nil {
		core.LogError("failed to load %s shader %s: %s", stage, path, err.Error())
		return metadata.NullHandle, err
	}
	defer ss.assets.UnloadAsset(res)

	h, err := ss.backend.CreateShaderModule(path, res.Data.([]uint32))
	if err != nil {
		core.LogError("failed to create shader module %s: %s", path, err.Error())
		return metadata.NullHandle, err
	}
	core.LogDebug("loaded %s shader %s", stage, path)
	return h, nil
}

// Evict destroys the module for path so the next LoadShader reads it again.
// path is either a shader name or a file path as reported by the watcher,
// relative to the working directory. Pipelines created from the module stay
// valid.
func (ss *ShaderSystem) Evict(path string) bool {
	ss.mu.Lock()
	var e *shaderEntry
	ok := false
	for _, full := range []string{ss.resolve(path), absPath(path)} {
		if e, ok = ss.lookup[full]; ok {
			delete(ss.lookup, full)
			break
		}
	}
	ss.mu.Unlock()
	if !ok {
		return false
	}

	<-e.ready
	if e.err == nil {
		ss.backend.DestroyShaderModule(e.handle)
	}
	return true
}

// Contains reports whether a module for path is cached.
func (ss *ShaderSystem) Contains(path string) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	_, ok := ss.lookup[ss.resolve(path)]
	return ok
}

func (ss *ShaderSystem) Count() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.lookup)
}

/**
 * @brief Shuts down the shader system, destroying every cached module.
 */
func (ss *ShaderSystem) Shutdown() error {
	ss.mu.Lock()
	entries := ss.lookup
	ss.lookup = make(map[string]*shaderEntry)
	ss.mu.Unlock()

	for _, e := range entries {
		<-e.ready
		if e.err == nil {
			ss.backend.DestroyShaderModule(e.handle)
		}
	}
	return nil
}
