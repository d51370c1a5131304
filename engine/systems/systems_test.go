package systems

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/spaghettifunk/deferred/engine/assets"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
	"github.com/spaghettifunk/deferred/engine/renderer/rendertest"
)

const triangleOBJ = "v 0 0 0\nv 1 0 0\nv 0 1 0\nvn 0 0 1\nf 1//1 2//1 3//1\n"

func writeSPIRV(t *testing.T, dir, name string) string {
	t.Helper()
	words := []uint32{0x07230203, 0x00010000, 0, 1, 0}
	data := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(data[i*4:], w)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeOBJ(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(triangleOBJ), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestJobSystem(t *testing.T) {
	if _, err := NewJobSystem(&JobSystemConfig{WorkerCount: 0}); !errors.Is(err, ErrNoWorkers) {
		t.Errorf("Expected ErrNoWorkers, got %v", err)
	}
	if _, err := NewJobSystem(&JobSystemConfig{WorkerCount: 1, QueueSize: -1}); !errors.Is(err, ErrNegativeChannelSize) {
		t.Errorf("Expected ErrNegativeChannelSize, got %v", err)
	}

	js, err := NewJobSystem(&JobSystemConfig{WorkerCount: 4, QueueSize: 8})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var completed, failed, finished int32
	boom := errors.New("boom")
	for i := 0; i < 20; i++ {
		i := i
		err := js.Submit(metadata.JobTask{
			Name: "job",
			OnStart: func(params interface{}) (interface{}, error) {
				if params.(int)%2 == 0 {
					return nil, boom
				}
				return params, nil
			},
			OnComplete: func(result interface{}) {
				if result.(int) != i {
					t.Errorf("Expected result %d, got %v", i, result)
				}
				atomic.AddInt32(&completed, 1)
			},
			OnFailure: func(err error) {
				if !errors.Is(err, boom) {
					t.Errorf("Expected boom, got %v", err)
				}
				atomic.AddInt32(&failed, 1)
			},
			OnCompletionCallback: func() { atomic.AddInt32(&finished, 1) },
			InputParams:          i,
		})
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	}
	if err := js.Shutdown(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if completed != 10 || failed != 10 || finished != 20 {
		t.Errorf("Expected 10/10/20, got %d/%d/%d", completed, failed, finished)
	}
	if err := js.Submit(metadata.JobTask{}); !errors.Is(err, ErrJobSystemClosed) {
		t.Errorf("Expected ErrJobSystemClosed, got %v", err)
	}
	if err := js.Shutdown(); err != nil {
		t.Errorf("Expected a second shutdown to succeed, got %v", err)
	}
}

func newShaderSystem(t *testing.T, dir string, max uint16) (*ShaderSystem, *rendertest.Backend) {
	t.Helper()
	backend := rendertest.NewBackend()
	ss, err := NewShaderSystem(&ShaderSystemConfig{MaxShaderCount: max, ShaderDir: dir}, assets.NewAssetManager(nil), backend)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	return ss, backend
}

func TestShaderSystemLoadsOnce(t *testing.T) {
	dir := t.TempDir()
	writeSPIRV(t, dir, "gbuffer.vert.spv")
	ss, backend := newShaderSystem(t, dir, 8)

	var wg sync.WaitGroup
	handles := make([]metadata.Handle, 16)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := ss.LoadShader("gbuffer.vert.spv", metadata.SHADER_STAGE_VERTEX)
			if err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
			handles[i] = h
		}(i)
	}
	wg.Wait()

	if c := backend.Created(rendertest.KindShaderModule); c != 1 {
		t.Errorf("Expected 1 shader module, got %d", c)
	}
	for _, h := range handles {
		if h != handles[0] {
			t.Errorf("Expected every caller to get %d, got %d", handles[0], h)
		}
	}

	// the absolute path resolves to the same entry
	h, err := ss.LoadShader(filepath.Join(dir, "gbuffer.vert.spv"), metadata.SHADER_STAGE_VERTEX)
	if err != nil || h != handles[0] {
		t.Errorf("Expected cached handle %d, got %d (%v)", handles[0], h, err)
	}

	if err := ss.Shutdown(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if leaks := backend.Leaks(); len(leaks) != 0 {
		t.Errorf("Expected no leaks, got %v", leaks)
	}
}

func TestShaderSystemErrors(t *testing.T) {
	dir := t.TempDir()
	ss, backend := newShaderSystem(t, dir, 1)

	if _, err := ss.LoadShader("missing.spv", metadata.SHADER_STAGE_FRAGMENT); !errors.Is(err, core.ErrShaderNotFound) {
		t.Errorf("Expected ErrShaderNotFound, got %v", err)
	}
	if ss.Contains("missing.spv") {
		t.Errorf("Expected failed loads not to be cached")
	}

	// a shader that shows up later loads fine
	writeSPIRV(t, dir, "missing.spv")
	if _, err := ss.LoadShader("missing.spv", metadata.SHADER_STAGE_FRAGMENT); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	writeSPIRV(t, dir, "other.spv")
	if _, err := ss.LoadShader("other.spv", metadata.SHADER_STAGE_FRAGMENT); err == nil {
		t.Errorf("Expected a capacity error, got nil")
	}

	backend.FailNext(rendertest.KindShaderModule, core.ErrDeviceLost)
	ss.Evict("missing.spv")
	if _, err := ss.LoadShader("missing.spv", metadata.SHADER_STAGE_FRAGMENT); !errors.Is(err, core.ErrDeviceLost) {
		t.Errorf("Expected the backend error, got %v", err)
	}
}

func TestShaderSystemEvict(t *testing.T) {
	dir := t.TempDir()
	writeSPIRV(t, dir, "ssao.frag.spv")
	ss, backend := newShaderSystem(t, dir, 8)

	first, err := ss.LoadShader("ssao.frag.spv", metadata.SHADER_STAGE_FRAGMENT)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !ss.Evict("ssao.frag.spv") {
		t.Errorf("Expected the entry to be evicted")
	}
	if ss.Evict("ssao.frag.spv") {
		t.Errorf("Expected a second evict to report nothing")
	}
	if backend.IsLive(first) {
		t.Errorf("Expected the evicted module to be destroyed")
	}
	second, err := ss.LoadShader("ssao.frag.spv", metadata.SHADER_STAGE_FRAGMENT)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if second == first {
		t.Errorf("Expected a new module after eviction, got the same handle")
	}
	if c := backend.Created(rendertest.KindShaderModule); c != 2 {
		t.Errorf("Expected 2 modules created, got %d", c)
	}
}

func TestShaderSystemEvictWatcherPath(t *testing.T) {
	root := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(root); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	if err := os.Mkdir("shaders", 0o755); err != nil {
		t.Fatal(err)
	}
	writeSPIRV(t, "shaders", "ssao.frag.spv")
	ss, backend := newShaderSystem(t, "shaders", 8)

	h, err := ss.LoadShader("ssao.frag.spv", metadata.SHADER_STAGE_FRAGMENT)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	// the watcher reports paths under the watched directory
	if !ss.Evict(filepath.Join("shaders", "ssao.frag.spv")) {
		t.Errorf("Expected the watcher path to evict the module")
	}
	if backend.IsLive(h) {
		t.Errorf("Expected the evicted module to be destroyed")
	}
	if ss.Contains("ssao.frag.spv") {
		t.Errorf("Expected the module to be dropped from the cache")
	}
}

func TestMeshSystem(t *testing.T) {
	dir := t.TempDir()
	path := writeOBJ(t, dir, "tri.obj")
	backend := rendertest.NewBackend()
	ms, err := NewMeshSystem(&MeshSystemConfig{MaxMeshCount: 4}, assets.NewAssetManager(nil), renderer.NewResourceBuilder(backend))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	a, err := ms.LoadMesh(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	b, err := ms.LoadMesh(filepath.Join(dir, ".", "tri.obj"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if a != b {
		t.Errorf("Expected the same mesh for the same path")
	}
	if a.IndexCount != 3 || a.VertexCount != 3 {
		t.Errorf("Expected 3 vertices and 3 indices, got %d and %d", a.VertexCount, a.IndexCount)
	}
	if ms.Count() != 1 {
		t.Errorf("Expected 1 mesh, got %d", ms.Count())
	}

	if _, err := ms.LoadMesh(filepath.Join(dir, "nope.obj")); !errors.Is(err, core.ErrMeshNotFound) {
		t.Errorf("Expected ErrMeshNotFound, got %v", err)
	}

	if err := ms.Shutdown(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if leaks := backend.Leaks(); len(leaks) != 0 {
		t.Errorf("Expected no leaks, got %v", leaks)
	}
}

func TestPreloadMeshes(t *testing.T) {
	dir := t.TempDir()
	paths := []string{writeOBJ(t, dir, "a.obj"), writeOBJ(t, dir, "b.obj"), writeOBJ(t, dir, "c.obj")}
	backend := rendertest.NewBackend()
	sm, err := NewSystemManager(&SystemManagerConfig{ShaderDir: dir, WorkerCount: 2}, renderer.NewResourceBuilder(backend), core.NewEventBus())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer sm.Shutdown()

	if err := sm.PreloadMeshes(paths); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	for _, p := range paths {
		if _, ok := sm.Assets().Loaded(p); !ok {
			t.Errorf("Expected %s to be parsed", p)
		}
	}
	// preloading parses only, nothing reaches the GPU
	if c := backend.Created(rendertest.KindBuffer); c != 0 {
		t.Errorf("Expected no buffers after preloading, got %d", c)
	}

	err = sm.PreloadMeshes(append(paths, filepath.Join(dir, "missing.obj")))
	if !errors.Is(err, core.ErrMeshNotFound) {
		t.Errorf("Expected ErrMeshNotFound, got %v", err)
	}
}

func TestSystemManagerShutdownReleasesEverything(t *testing.T) {
	dir := t.TempDir()
	writeSPIRV(t, dir, "composition.frag.spv")
	obj := writeOBJ(t, dir, "tri.obj")
	backend := rendertest.NewBackend()
	sm, err := NewSystemManager(&SystemManagerConfig{ShaderDir: dir, WatchAssets: true, WorkerCount: 1}, renderer.NewResourceBuilder(backend), core.NewEventBus())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := sm.Shaders().LoadShader("composition.frag.spv", metadata.SHADER_STAGE_FRAGMENT); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := sm.Meshes().LoadMesh(obj); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := sm.Shutdown(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if leaks := backend.Leaks(); len(leaks) != 0 {
		t.Errorf("Expected no leaks, got %v", leaks)
	}
	if v := backend.Violations(); len(v) != 0 {
		t.Errorf("Expected no violations, got %v", v)
	}
}
