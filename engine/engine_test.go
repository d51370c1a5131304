package engine

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/components"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
	"github.com/spaghettifunk/deferred/engine/renderer/passes"
	"github.com/spaghettifunk/deferred/engine/renderer/rendertest"
	"github.com/spaghettifunk/deferred/engine/scene"
)

const triangleOBJ = "v 0 0 0\nv 1 0 0\nv 0 1 0\nvn 0 0 1\nf 1//1 2//1 3//1\n"

const testScene = `<scene>
	<camera type="perspective">
		<float name="fov" value="45"/>
		<float name="near_clip" value="0.1"/>
		<float name="far_clip" value="100"/>
		<integer name="width" value="640"/>
		<integer name="height" value="480"/>
		<transform name="toWorld">
			<lookat origin="0, 2, 8" target="0, 0, 0" up="0, 1, 0"/>
		</transform>
	</camera>
	<mesh type="obj">
		<string name="filename" value="plane.obj"/>
		<bsdf type="diffuse">
			<color name="albedo" value="0.8, 0.2, 0.1"/>
		</bsdf>
	</mesh>
	<mesh type="obj">
		<string name="filename" value="sphere.obj"/>
		<bsdf type="microfacet">
			<color name="albedo" value="0.9 0.9 0.9"/>
			<float name="metallic" value="1"/>
			<float name="roughness" value="0.25"/>
		</bsdf>
	</mesh>
	<emitter type="directional">
		<vector name="direction" value="0 -1 0"/>
		<color name="radiance" value="1 1 1"/>
	</emitter>
</scene>`

type testEngine struct {
	*Engine
	backend *rendertest.Backend
	surface *rendertest.Surface
	window  *rendertest.Window
	bus     *core.EventBus
	input   *core.Input
	dir     string
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeSPIRV(t *testing.T, path string) {
	t.Helper()
	words := []uint32{0x07230203, 0x00010000, 0, 1, 0}
	data := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(data[i*4:], w)
	}
	writeFile(t, path, data)
}

// newTestEngine writes the shaders, meshes and scene into a temporary
// directory and initializes an engine on the recording backend.
func newTestEngine(t *testing.T, closeAfter int) *testEngine {
	t.Helper()
	dir := t.TempDir()
	for _, name := range passes.ShaderFiles {
		writeSPIRV(t, filepath.Join(dir, name))
	}
	writeFile(t, filepath.Join(dir, "plane.obj"), []byte(triangleOBJ))
	writeFile(t, filepath.Join(dir, "sphere.obj"), []byte(triangleOBJ))
	writeFile(t, filepath.Join(dir, "scene.xml"), []byte(testScene))

	config := DefaultConfig()
	config.Assets.ShaderDir = dir
	config.Assets.Workers = 2
	config.Renderer.SSAOSeed = 7
	config.Capture.Dir = filepath.Join(dir, "captures")

	backend := rendertest.NewBackend()
	surface := rendertest.NewSurface(backend, 800, 800, 3)
	window := rendertest.NewWindow(800, 800, closeAfter)
	bus := core.NewEventBus()
	input := core.NewInput(bus)

	e, err := New(config, Platform{Window: window, Surface: surface, Backend: backend, Bus: bus, Input: input})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	return &testEngine{Engine: e, backend: backend, surface: surface, window: window, bus: bus, input: input, dir: dir}
}

func (te *testEngine) load(t *testing.T) {
	t.Helper()
	if err := te.LoadScene(filepath.Join(te.dir, "scene.xml")); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
}

func (te *testEngine) drawFrames(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := te.DrawFrame(); err != nil {
			t.Fatalf("frame %d: Expected no error, got %v", i, err)
		}
	}
}

// shutdown releases the engine and checks that nothing leaked.
func (te *testEngine) shutdown(t *testing.T) {
	t.Helper()
	if err := te.Shutdown(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if leaks := te.backend.Leaks(); len(leaks) != 0 {
		t.Errorf("Expected no leaked objects, got %v", leaks)
	}
	if v := te.backend.Violations(); len(v) != 0 {
		t.Errorf("Expected no violations, got %v", v)
	}
}

func (te *testEngine) perFrame(slot uint32) renderer.PerFrameData {
	return renderer.DecodePerFrameData(te.backend.BufferData(te.Runtime().PerFrameBuffer(slot).Buffer))
}

func (te *testEngine) perObject(slot, offset uint32) renderer.PerObjectData {
	data := te.backend.BufferData(te.Runtime().PerObjectBuffer(slot).Buffer)
	start := int(offset) * renderer.PerObjectDataSize
	return renderer.DecodePerObjectData(data[start : start+renderer.PerObjectDataSize])
}

func TestStageErrors(t *testing.T) {
	backend := rendertest.NewBackend()
	e, err := New(nil, Platform{
		Window:  rendertest.NewWindow(100, 100, 1),
		Surface: rendertest.NewSurface(backend, 100, 100, 2),
		Backend: backend,
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := e.Run(); !errors.Is(err, core.ErrEngineStage) {
		t.Errorf("Expected ErrEngineStage, got %v", err)
	}
	if err := e.UseScene(&scene.Scene{Camera: components.NewCamera()}); !errors.Is(err, core.ErrEngineStage) {
		t.Errorf("Expected ErrEngineStage, got %v", err)
	}

	if _, err := New(nil, Platform{Backend: backend}); err == nil {
		t.Errorf("Expected an error without window and surface")
	}
}

func TestRunWithoutScene(t *testing.T) {
	te := newTestEngine(t, 1)
	if err := te.Run(); !errors.Is(err, core.ErrEngineStage) {
		t.Errorf("Expected ErrEngineStage, got %v", err)
	}
	if err := te.DrawFrame(); !errors.Is(err, core.ErrEngineStage) {
		t.Errorf("Expected ErrEngineStage, got %v", err)
	}
	te.shutdown(t)
}

func TestInitializeCreatesFrameSlots(t *testing.T) {
	te := newTestEngine(t, 0)
	if te.Stage() != EngineStageReady {
		t.Errorf("Expected stage ready, got %s", te.Stage())
	}
	if got := te.backend.LiveCount(rendertest.KindFence); got != 3 {
		t.Errorf("Expected 3 fences, got %d", got)
	}
	if got := te.backend.LiveCount(rendertest.KindSemaphore); got != 6 {
		t.Errorf("Expected 6 semaphores, got %d", got)
	}
	for i := uint32(0); i < 3; i++ {
		if te.Runtime().PerFrameBuffer(i) == nil || te.Runtime().PerObjectBuffer(i) == nil {
			t.Errorf("Expected global buffers for slot %d", i)
		}
	}
	te.shutdown(t)
	if te.Stage() != EngineStageTerminated {
		t.Errorf("Expected stage terminated, got %s", te.Stage())
	}
	if err := te.Shutdown(); err != nil {
		t.Errorf("Expected a second shutdown to be a no-op, got %v", err)
	}
}

func TestEndToEnd(t *testing.T) {
	te := newTestEngine(t, 0)
	te.load(t)

	s := te.Scene()
	if len(s.Entities) != 2 {
		t.Fatalf("Expected 2 entities, got %d", len(s.Entities))
	}
	diffuse := te.Deferred().DrawList(scene.MATERIAL_TYPE_DIFFUSE)
	if len(diffuse) != 1 || diffuse[0] != s.Entities[0] {
		t.Errorf("Expected the diffuse bucket to hold entity 0, got %v", diffuse)
	}
	microfacets := te.Deferred().DrawList(scene.MATERIAL_TYPE_MICROFACETS)
	if len(microfacets) != 1 || microfacets[0] != s.Entities[1] {
		t.Errorf("Expected the microfacets bucket to hold entity 1, got %v", microfacets)
	}

	te.drawFrames(t, 1)

	pf := te.perFrame(0)
	if pf.NumberOfLights != 1 {
		t.Errorf("Expected 1 light, got %d", pf.NumberOfLights)
	}
	if pf.ClippingPlanes[0] != 0.1 || pf.ClippingPlanes[1] != 100 {
		t.Errorf("Expected clipping planes (0.1, 100), got %v", pf.ClippingPlanes)
	}
	if !pf.ViewProjection.ApproxEqualThreshold(pf.Projection.Mul4(pf.View), 1e-5) {
		t.Errorf("Expected view projection to be projection * view")
	}
	po := te.perObject(0, 0)
	if !po.Albedo.Vec3().ApproxEqual(mgl32.Vec3{0.8, 0.2, 0.1}) {
		t.Errorf("Expected albedo (0.8, 0.2, 0.1), got %v", po.Albedo)
	}
	po = te.perObject(0, 1)
	if po.MetallicRoughness[0] != 1 || po.MetallicRoughness[1] != 0.25 {
		t.Errorf("Expected metallic 1 and roughness 0.25, got %v", po.MetallicRoughness)
	}

	submits := te.backend.Submits()
	if len(submits) != 1 {
		t.Fatalf("Expected 1 submission, got %d", len(submits))
	}
	if len(submits[0].CommandBuffers) != 4 {
		t.Errorf("Expected 4 command buffers in the frame, got %d", len(submits[0].CommandBuffers))
	}
	if presented := te.surface.Presented(); len(presented) != 1 {
		t.Errorf("Expected 1 presented image, got %v", presented)
	}
	te.shutdown(t)
}

func TestSceneLoadResizesWindow(t *testing.T) {
	te := newTestEngine(t, 0)
	te.load(t)

	w, h := te.window.FramebufferSize()
	if w != 640 || h != 480 {
		t.Errorf("Expected the window at 640x480, got %dx%d", w, h)
	}
	if ext := te.Runtime().Attachments().Extent(); ext.Width != 640 || ext.Height != 480 {
		t.Errorf("Expected attachments at 640x480, got %dx%d", ext.Width, ext.Height)
	}
	te.shutdown(t)
}

func TestEntityRegistrationCompleteness(t *testing.T) {
	te := newTestEngine(t, 0)
	te.load(t)

	geometry := []interface {
		DrawList(scene.MaterialType) []*scene.Entity
	}{te.Deferred(), te.Shadow()}
	for _, p := range geometry {
		for _, e := range te.Scene().Entities {
			found := 0
			for mt := scene.MaterialType(0); mt < scene.MATERIAL_TYPE_COUNT; mt++ {
				for _, d := range p.DrawList(mt) {
					if d == e {
						found++
						if mt != e.Material.Type {
							t.Errorf("Expected entity %s in bucket %s, got %s", e.Name, e.Material.Type, mt)
						}
					}
				}
			}
			if found != 1 {
				t.Errorf("Expected entity %s registered once, got %d", e.Name, found)
			}
		}
	}
	te.shutdown(t)
}

func TestPerFrameLightClamping(t *testing.T) {
	s := &scene.Scene{Camera: components.NewCamera()}
	for i := 0; i < 12; i++ {
		l := scene.NewLight(scene.LIGHT_TYPE_POINT)
		l.Position = mgl32.Vec3{float32(i), 0, 0}
		l.Radiance = mgl32.Vec3{1, 1, 1}
		s.Lights = append(s.Lights, l)
	}
	data := PerFrameFromScene(s)
	if data.NumberOfLights != renderer.MaxLights {
		t.Fatalf("Expected %d lights, got %d", renderer.MaxLights, data.NumberOfLights)
	}
	for i := 0; i < renderer.MaxLights; i++ {
		if data.Lights[i] != s.Lights[i].Data() {
			t.Errorf("Expected light %d to be scene light %d, got %v", i, i, data.Lights[i])
		}
	}
}

func TestPerObjectsIndexedByOffset(t *testing.T) {
	s := &scene.Scene{Camera: components.NewCamera()}
	s.Entities = []*scene.Entity{
		{Name: "b", Offset: 1, Transform: mgl32.Ident4(), Material: scene.NewDiffuse(mgl32.Vec3{0, 1, 0})},
		{Name: "a", Offset: 0, Transform: mgl32.Ident4(), Material: scene.NewDiffuse(mgl32.Vec3{1, 0, 0})},
		{Name: "far", Offset: renderer.MaxObjects, Transform: mgl32.Ident4()},
	}
	objects := PerObjectsFromScene(s)
	if len(objects) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(objects))
	}
	if objects[0].Albedo[0] != 1 || objects[1].Albedo[1] != 1 {
		t.Errorf("Expected records ordered by offset, got %v", objects)
	}
}

func TestWarnDroppedObjects(t *testing.T) {
	s := &scene.Scene{Camera: components.NewCamera()}
	for i := 0; i < renderer.MaxLights+2; i++ {
		s.Lights = append(s.Lights, scene.NewLight(scene.LIGHT_TYPE_POINT))
	}
	for i := 0; i < renderer.MaxObjects+3; i++ {
		s.Entities = append(s.Entities, &scene.Entity{Offset: uint32(i), Transform: mgl32.Ident4()})
	}
	lights, entities := warnDroppedObjects(s)
	if lights != 2 || entities != 3 {
		t.Errorf("Expected 2 lights and 3 entities dropped, got %d and %d", lights, entities)
	}

	s.Lights = s.Lights[:1]
	s.Entities = s.Entities[:1]
	if lights, entities := warnDroppedObjects(s); lights != 0 || entities != 0 {
		t.Errorf("Expected nothing dropped, got %d and %d", lights, entities)
	}
}

func TestFrameSlotIsolation(t *testing.T) {
	te := newTestEngine(t, 0)
	te.load(t)

	const slots = 3
	cam := te.Scene().Camera
	last := make(map[uint32]float32)
	for frame := 1; frame <= 2*slots+1; frame++ {
		slot := te.CurrentFrame()
		// the camera position is the sentinel of the frame
		cam.SetPosition(mgl32.Vec3{float32(frame), 0, 8})
		te.drawFrames(t, 1)
		last[slot] = float32(frame)

		for s := uint32(0); s < slots; s++ {
			want, ok := last[s]
			if !ok {
				continue
			}
			if got := te.perFrame(s).CameraPosition[0]; got != want {
				t.Errorf("frame %d: Expected slot %d to hold sentinel %v, got %v", frame, s, want, got)
			}
		}
	}
	if te.CurrentFrame() != uint32((2*slots+1)%slots) {
		t.Errorf("Expected frame slot %d, got %d", (2*slots+1)%slots, te.CurrentFrame())
	}
	te.shutdown(t)
}

func TestFenceBeforeReuse(t *testing.T) {
	te := newTestEngine(t, 0)
	te.load(t)

	// every write to a slot buffer still read by the fake GPU is a violation
	te.drawFrames(t, 10)
	if v := te.backend.Violations(); len(v) != 0 {
		t.Fatalf("Expected no violations, got %v", v)
	}

	// a GPU that never finishes must stop the loop before any slot is reused
	te.backend.HangFences = true
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = te.DrawFrame()
	}
	if !errors.Is(err, core.ErrFenceTimeout) {
		t.Errorf("Expected ErrFenceTimeout, got %v", err)
	}
	if v := te.backend.Violations(); len(v) != 0 {
		t.Errorf("Expected no violations, got %v", v)
	}
	te.backend.HangFences = false
	te.shutdown(t)
}

func TestResizeRoundTrip(t *testing.T) {
	te := newTestEngine(t, 0)
	te.load(t)
	te.drawFrames(t, 2)

	old := te.Runtime().Attachments().All()
	oldFences := te.backend.Handles(rendertest.KindFence)
	fencesCreated := te.backend.Created(rendertest.KindFence)
	semaphoresCreated := te.backend.Created(rendertest.KindSemaphore)
	resizes := len(te.surface.Resizes())

	te.window.SetSize(320, 200)
	te.surface.ScriptAcquire(metadata.SURFACE_STATUS_OUT_OF_DATE)
	te.drawFrames(t, 1)

	if got := len(te.surface.Resizes()) - resizes; got != 1 {
		t.Fatalf("Expected 1 surface rebuild, got %d", got)
	}
	if got := te.backend.Created(rendertest.KindFence) - fencesCreated; got != 3 {
		t.Errorf("Expected 3 new fences, got %d", got)
	}
	if got := te.backend.Created(rendertest.KindSemaphore) - semaphoresCreated; got != 6 {
		t.Errorf("Expected 6 new semaphores, got %d", got)
	}
	for _, h := range oldFences {
		if te.backend.IsLive(h) {
			t.Errorf("Expected fence %d destroyed by the rebuild", h)
		}
	}
	for _, img := range old {
		if !img.IsReleased() {
			t.Errorf("Expected attachment %s released by the rebuild", img.Name)
		}
	}
	for _, img := range te.Runtime().Attachments().All() {
		if img.Width != 320 || img.Height != 200 {
			t.Errorf("Expected %s at 320x200, got %dx%d", img.Name, img.Width, img.Height)
		}
	}
	if te.CurrentFrame() != 0 {
		t.Errorf("Expected frame slot 0 after a rebuild, got %d", te.CurrentFrame())
	}

	// the rebuilt chain renders
	te.drawFrames(t, 4)
	te.shutdown(t)
}

func TestSuboptimalPresentRebuilds(t *testing.T) {
	te := newTestEngine(t, 0)
	te.load(t)
	resizes := len(te.surface.Resizes())

	te.surface.ScriptPresent(metadata.SURFACE_STATUS_SUBOPTIMAL)
	te.drawFrames(t, 1)
	if got := len(te.surface.Resizes()) - resizes; got != 1 {
		t.Errorf("Expected 1 surface rebuild, got %d", got)
	}
	if presented := te.surface.Presented(); len(presented) != 1 {
		t.Errorf("Expected the suboptimal frame to be presented, got %v", presented)
	}

	te.bus.Fire(core.EVENT_CODE_RESIZED, &core.ResizeEvent{Width: 400, Height: 300})
	te.window.SetSize(400, 300)
	te.drawFrames(t, 1)
	if got := len(te.surface.Resizes()) - resizes; got != 2 {
		t.Errorf("Expected a rebuild after the resize event, got %d", got)
	}
	te.shutdown(t)
}

func TestAcquireErrorIsFatal(t *testing.T) {
	te := newTestEngine(t, 0)
	te.load(t)
	te.surface.AcquireErr = errors.New("surface lost")
	if err := te.DrawFrame(); err == nil {
		t.Errorf("Expected an error")
	}
	te.shutdown(t)
}

func TestAcquireIsBounded(t *testing.T) {
	te := newTestEngine(t, 0)
	te.load(t)
	te.drawFrames(t, 1)
	timeouts := te.surface.AcquireTimeouts()
	if len(timeouts) == 0 {
		t.Fatalf("Expected at least one acquire")
	}
	for _, timeout := range timeouts {
		if timeout != te.config.FenceTimeoutDuration() {
			t.Errorf("Expected acquire timeout %s, got %s", te.config.FenceTimeoutDuration(), timeout)
		}
	}

	te.surface.HangAcquire = true
	if err := te.DrawFrame(); !errors.Is(err, core.ErrAcquireTimeout) {
		t.Errorf("Expected ErrAcquireTimeout, got %v", err)
	}
	te.surface.HangAcquire = false
	te.shutdown(t)
}

func TestRunUntilWindowCloses(t *testing.T) {
	te := newTestEngine(t, 5)
	te.load(t)
	if err := te.Run(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got := len(te.surface.Presented()); got != 5 {
		t.Errorf("Expected 5 presented frames, got %d", got)
	}
	if te.Stage() != EngineStageReady {
		t.Errorf("Expected stage ready after run, got %s", te.Stage())
	}
	te.shutdown(t)
}

func TestEscapeQuits(t *testing.T) {
	te := newTestEngine(t, 0)
	te.load(t)
	te.input.ProcessKey(core.KEY_ESCAPE, true)
	if !te.window.ShouldClose() {
		t.Errorf("Expected the window to be asked to close")
	}
	if err := te.Run(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got := len(te.surface.Presented()); got != 0 {
		t.Errorf("Expected no frames after quit, got %d", got)
	}
	te.shutdown(t)
}

func TestCaptureWritesImage(t *testing.T) {
	te := newTestEngine(t, 0)
	te.load(t)
	te.input.ProcessKey(core.KEY_F12, true)
	te.drawFrames(t, 1)

	matches, err := filepath.Glob(filepath.Join(te.dir, "captures", "*.png"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Errorf("Expected 1 captured frame, got %v", matches)
	}
	te.shutdown(t)
}

func TestShaderChangeRebuildsPasses(t *testing.T) {
	te := newTestEngine(t, 0)
	te.load(t)
	te.drawFrames(t, 1)

	modules := te.backend.Created(rendertest.KindShaderModule)
	pipelines := te.backend.Created(rendertest.KindPipeline)
	te.bus.Fire(core.EVENT_CODE_ASSET_CHANGED, &core.AssetEvent{Path: filepath.Join(te.dir, passes.ShaderSSAOFrag)})
	te.bus.Fire(core.EVENT_CODE_ASSET_CHANGED, &core.AssetEvent{Path: filepath.Join(te.dir, "plane.obj")})

	if err := te.applyAssetChanges(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got := te.backend.Created(rendertest.KindShaderModule) - modules; got != 1 {
		t.Errorf("Expected 1 reloaded shader module, got %d", got)
	}
	if te.backend.Created(rendertest.KindPipeline) == pipelines {
		t.Errorf("Expected the pipelines to be recreated")
	}
	te.drawFrames(t, 1)
	te.shutdown(t)
}

func TestShutdownSkipsIdleWaitWhenDeviceLost(t *testing.T) {
	te := newTestEngine(t, 0)
	te.load(t)
	te.drawFrames(t, 1)

	te.backend.MarkDeviceLost()
	if err := te.DrawFrame(); !errors.Is(err, core.ErrDeviceLost) {
		t.Errorf("Expected ErrDeviceLost, got %v", err)
	}
	calls := te.backend.WaitIdleCalls()
	if err := te.Shutdown(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if got := te.backend.WaitIdleCalls(); got != calls {
		t.Errorf("Expected no idle wait on a lost device, got %d", got-calls)
	}
}
