package systems

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/spaghettifunk/deferred/engine/assets"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
)

type SystemManagerConfig struct {
	ShaderDir   string
	WatchAssets bool
	// Zero picks one worker per CPU.
	WorkerCount int
}

type SystemManager struct {
	assetManager *assets.AssetManager
	jobSystem    *JobSystem
	shaderSystem *ShaderSystem
	meshSystem   *MeshSystem
}

func NewSystemManager(config *SystemManagerConfig, builder *renderer.ResourceBuilder, bus *core.EventBus) (*SystemManager, error) {
	workers := config.WorkerCount
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	js, err := NewJobSystem(&JobSystemConfig{
		WorkerCount: workers,
		QueueSize:   64,
	})
	if err != nil {
		return nil, err
	}

	am := assets.NewAssetManager(bus)
	if config.WatchAssets && config.ShaderDir != "" {
		if err := am.Watch(config.ShaderDir); err != nil {
			js.Shutdown()
			return nil, err
		}
	}

	ss, err := NewShaderSystem(&ShaderSystemConfig{
		MaxShaderCount: 512,
		ShaderDir:      config.ShaderDir,
	}, am, builder.Backend())
	if err != nil {
		am.Shutdown()
		js.Shutdown()
		return nil, err
	}
	ms, err := NewMeshSystem(&MeshSystemConfig{
		MaxMeshCount: 4096,
	}, am, builder)
	if err != nil {
		am.Shutdown()
		js.Shutdown()
		return nil, err
	}

	return &SystemManager{
		assetManager: am,
		jobSystem:    js,
		shaderSystem: ss,
		meshSystem:   ms,
	}, nil
}

func (sm *SystemManager) Assets() *assets.AssetManager { return sm.assetManager }
func (sm *SystemManager) Jobs() *JobSystem             { return sm.jobSystem }
func (sm *SystemManager) Shaders() *ShaderSystem       { return sm.shaderSystem }
func (sm *SystemManager) Meshes() *MeshSystem          { return sm.meshSystem }

// PreloadMeshes parses every path on the job system and waits for all of
// them. GPU uploads are left to LoadMesh on the calling goroutine.
func (sm *SystemManager) PreloadMeshes(paths []string) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, path := range paths {
		wg.Add(1)
		err := sm.jobSystem.Submit(metadata.JobTask{
			Name: core.NewDebugName("preload"),
			OnStart: func(params interface{}) (interface{}, error) {
				return sm.meshSystem.Parse(params.(string))
			},
			OnFailure: func(err error) {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			},
			OnCompletionCallback: wg.Done,
			InputParams:          path,
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, fmt.Errorf("failed to schedule %s: %w", path, err))
			mu.Unlock()
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Shutdown stops the systems in reverse creation order.
func (sm *SystemManager) Shutdown() error {
	var errs []error
	if err := sm.meshSystem.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	if err := sm.shaderSystem.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	if err := sm.assetManager.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	if err := sm.jobSystem.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
