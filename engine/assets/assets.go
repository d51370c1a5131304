package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/deferred/engine/assets/loaders"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
)

type AssetInfo struct {
	Path       string
	Type       metadata.ResourceType
	LastLoaded time.Time
}

// AssetManager loads assets through per type loaders. When watching is
// enabled, changes under the watched directories are fired on the event bus
// as EVENT_CODE_ASSET_CHANGED from the watcher goroutine.
type AssetManager struct {
	assets  map[string]AssetInfo
	loaders map[metadata.ResourceType]Loader

	mutex sync.RWMutex

	bus      *core.EventBus
	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
}

func NewAssetManager(bus *core.EventBus) *AssetManager {
	am := &AssetManager{
		assets:  make(map[string]AssetInfo),
		loaders: make(map[metadata.ResourceType]Loader),
		bus:     bus,
	}
	am.registerLoader(metadata.RESOURCE_TYPE_SHADER, &loaders.ShaderLoader{})
	am.registerLoader(metadata.RESOURCE_TYPE_MESH, &loaders.ModelLoader{})
	am.registerLoader(metadata.RESOURCE_TYPE_IMAGE, &loaders.ImageLoader{})
	return am
}

// Watch starts watching the given directories and all of their
// sub-directories. Calling it again adds more directories.
func (am *AssetManager) Watch(dirs ...string) error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return errors.New("asset manager already shut down")
	}
	if am.fsnotify == nil {
		fsWatch, err := fsnotify.NewWatcher()
		if err != nil {
			am.mutex.Unlock()
			return err
		}
		am.fsnotify = fsWatch
		am.done = make(chan struct{})
		am.stopped = make(chan struct{})
		go am.start()
	}
	am.mutex.Unlock()

	for _, dir := range dirs {
		if err := am.watchRecursive(dir, false); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	return nil
}

func (am *AssetManager) Shutdown() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	watching := am.fsnotify != nil
	am.mutex.Unlock()

	if watching {
		close(am.done)
		<-am.stopped
	}
	return nil
}

func (am *AssetManager) registerLoader(assetType metadata.ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

// LoadAsset reads path with the loader registered for resourceType.
func (am *AssetManager) LoadAsset(path string, resourceType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	loader, loaderExists := am.loaders[resourceType]
	if !loaderExists {
		return nil, fmt.Errorf("no loader registered for asset type: %s", resourceType)
	}

	res, err := loader.Load(path, resourceType, params)
	if err != nil {
		return nil, err
	}

	am.mutex.Lock()
	am.assets[filepath.Clean(path)] = AssetInfo{
		Path:       path,
		Type:       resourceType,
		LastLoaded: time.Now(),
	}
	am.mutex.Unlock()
	return res, nil
}

func (am *AssetManager) UnloadAsset(asset *metadata.Resource) error {
	if asset == nil {
		return nil
	}
	loader, ok := am.loaders[asset.Type]
	if !ok {
		return fmt.Errorf("no loader registered for asset type: %s", asset.Type)
	}
	am.mutex.Lock()
	delete(am.assets, filepath.Clean(asset.FullPath))
	am.mutex.Unlock()
	return loader.Unload(asset)
}

// Loaded reports what was loaded from path, if anything.
func (am *AssetManager) Loaded(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[filepath.Clean(path)]
	return info, ok
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(e.Name, false); err != nil {
						core.LogWarn("failed to watch new directory %s: %s", e.Name, err.Error())
					}
				}
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				am.handleFileEvent(e.Name)
			}
			if e.Op&fsnotify.Remove != 0 {
				am.removeAsset(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

// watchRecursive adds all directories under the given one to the watch list.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return nil
		}
		if unWatch {
			return am.fsnotify.Remove(walkPath)
		}
		return am.fsnotify.Add(walkPath)
	})
}

func (am *AssetManager) handleFileEvent(path string) {
	if DetermineAssetType(path) == metadata.RESOURCE_TYPE_NONE {
		return
	}
	core.LogDebug("asset changed: %s", path)
	if am.bus != nil {
		am.bus.Fire(core.EVENT_CODE_ASSET_CHANGED, &core.AssetEvent{Path: path})
	}
}

func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, filepath.Clean(path))
}

func DetermineAssetType(path string) metadata.ResourceType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".spv":
		return metadata.RESOURCE_TYPE_SHADER
	case ".obj":
		return metadata.RESOURCE_TYPE_MESH
	case ".xml":
		return metadata.RESOURCE_TYPE_SCENE
	case ".png", ".bmp", ".tif", ".tiff":
		return metadata.RESOURCE_TYPE_IMAGE
	default:
		return metadata.RESOURCE_TYPE_NONE
	}
}
