package passes

import (
	"bytes"
	"errors"
	"fmt"
	stdmath "math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
	"github.com/spaghettifunk/deferred/engine/renderer/rendertest"
	"github.com/spaghettifunk/deferred/engine/scene"
	"golang.org/x/exp/rand"
)

const testSeed = 42

type testEnv struct {
	backend *rendertest.Backend
	surface *rendertest.Surface
	builder *renderer.ResourceBuilder
	shaders *rendertest.Shaders
	runtime *renderer.Runtime
	meshes  []*renderer.Mesh
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	backend := rendertest.NewBackend()
	surface := rendertest.NewSurface(backend, 320, 240, 3)
	builder := renderer.NewResourceBuilder(backend)
	shaders := rendertest.NewShaders(backend)
	rt, err := renderer.NewRuntime(builder, shaders, 2, testSeed)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := rt.CreateGlobalBuffers(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	att, err := renderer.CreateAttachments(builder, surface.Extent(), backend.DepthFormat())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	rt.SetAttachments(att)
	sampler, err := backend.CreateSampler(metadata.SamplerConfig{Name: "global", AddressMode: metadata.ADDRESS_MODE_CLAMP_TO_EDGE})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	rt.SetSampler(sampler)
	var images []*renderer.ImageBlock
	for i, h := range surface.Images() {
		images = append(images, renderer.WrapExternalImage(fmt.Sprintf("swapchain_%d", i), h, surface.Format(), surface.Extent()))
	}
	rt.SetSwapchain(images, surface.Format())
	return &testEnv{backend: backend, surface: surface, builder: builder, shaders: shaders, runtime: rt}
}

func (env *testEnv) mesh(t *testing.T, name string) *renderer.Mesh {
	t.Helper()
	m, err := renderer.NewMesh(env.builder, &renderer.MeshData{
		Name: name,
		Vertices: []renderer.Vertex{
			{Position: mgl32.Vec3{0, 0, 0}, Normal: mgl32.Vec3{0, 0, 1}},
			{Position: mgl32.Vec3{1, 0, 0}, Normal: mgl32.Vec3{0, 0, 1}},
			{Position: mgl32.Vec3{0, 1, 0}, Normal: mgl32.Vec3{0, 0, 1}},
		},
		Indices: []uint32{0, 1, 2},
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	env.meshes = append(env.meshes, m)
	return m
}

// teardown releases what the environment owns and reports leaks left by
// the passes under test.
func (env *testEnv) teardown(t *testing.T) {
	t.Helper()
	for _, m := range env.meshes {
		m.Release()
	}
	env.runtime.Attachments().Release()
	env.backend.DestroySampler(env.runtime.Sampler())
	env.runtime.FreeGlobalBuffers()
	env.shaders.Release()
	if leaks := env.backend.Leaks(); len(leaks) != 0 {
		t.Errorf("Expected no leaked objects, got %v", leaks)
	}
	if v := env.backend.Violations(); len(v) != 0 {
		t.Errorf("Expected no violations, got %v", v)
	}
}

func allPasses(res renderer.Resources) []RenderPass {
	return []RenderPass{
		NewDeferredPass(res),
		NewSSAOPass(res),
		NewBlurPass(res),
		NewCompositionPass(res),
		NewShadowPass(res),
	}
}

func TestGenerateKernel(t *testing.T) {
	a := GenerateKernel(testSeed)
	b := GenerateKernel(testSeed)
	if len(a) != SSAOKernelSize {
		t.Fatalf("Expected %d samples, got %d", SSAOKernelSize, len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Expected identical kernels for the same seed, sample %d differs", i)
		}
		if a[i][2] < 0 {
			t.Errorf("Expected sample %d in the +z hemisphere, got %v", i, a[i])
		}
		if a[i][3] != 0 {
			t.Errorf("Expected w = 0 for sample %d, got %f", i, a[i][3])
		}
		frac := float64(i) / SSAOKernelSize
		want := 0.1 + frac*frac*0.9
		if got := float64(a[i].Vec3().Len()); stdmath.Abs(got-want) > 1e-4 {
			t.Errorf("Expected sample %d length %f, got %f", i, want, got)
		}
	}

	c := GenerateKernel(testSeed + 1)
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("Expected different kernels for different seeds")
	}
}

func TestGenerateNoise(t *testing.T) {
	a := GenerateNoise(testSeed)
	b := GenerateNoise(testSeed)
	if len(a) != SSAONoiseSize*SSAONoiseSize {
		t.Fatalf("Expected %d noise vectors, got %d", SSAONoiseSize*SSAONoiseSize, len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Expected identical noise for the same seed, vector %d differs", i)
		}
		for _, c := range a[i] {
			if c < -1 || c > 1 {
				t.Errorf("Expected noise components in [-1, 1], got %v", a[i])
			}
		}
	}
	if got := len(noiseBytes(a)); got != SSAONoiseSize*SSAONoiseSize*8 {
		t.Errorf("Expected %d noise bytes, got %d", SSAONoiseSize*SSAONoiseSize*8, got)
	}

	// the kernel stream for the same seed starts with a different pair
	rng := rand.New(rand.NewSource(testSeed))
	kernelStart := mgl32.Vec2{rng.Float32()*2 - 1, rng.Float32()*2 - 1}
	if a[0] == kernelStart {
		t.Errorf("Expected noise independent of the kernel stream, got %v for both", a[0])
	}
}

func TestDrawRegistry(t *testing.T) {
	env := newTestEnv(t)
	defer env.teardown(t)

	deferred := NewDeferredPass(env.runtime)
	shadow := NewShadowPass(env.runtime)
	var entities []*scene.Entity
	for i := 0; i < 7; i++ {
		mat := scene.NewDiffuse(scene.DefaultAlbedo)
		if i%3 == 0 {
			mat = scene.NewMicrofacets(scene.DefaultAlbedo, 0.5, 0.5)
		}
		e := &scene.Entity{Name: fmt.Sprintf("e%d", i), Material: mat, Offset: uint32(i)}
		entities = append(entities, e)
		deferred.AddEntityToDraw(e)
		shadow.AddEntityToDraw(e)
	}
	deferred.AddEntityToDraw(&scene.Entity{Material: scene.Material{Type: scene.MATERIAL_TYPE_COUNT}})
	deferred.AddEntityToDraw(nil)

	for _, r := range []*drawRegistry{&deferred.drawRegistry, &shadow.drawRegistry} {
		if r.count() != len(entities) {
			t.Errorf("Expected %d registered entities, got %d", len(entities), r.count())
		}
		for _, e := range entities {
			found := 0
			for mt := scene.MaterialType(0); mt < scene.MATERIAL_TYPE_COUNT; mt++ {
				for _, d := range r.DrawList(mt) {
					if d == e {
						found++
						if mt != e.Material.Type {
							t.Errorf("Expected %s in bucket %s, got %s", e.Name, e.Material.Type, mt)
						}
					}
				}
			}
			if found != 1 {
				t.Errorf("Expected %s registered exactly once, got %d", e.Name, found)
			}
		}
	}
	if got := deferred.DrawList(scene.MATERIAL_TYPE_DIFFUSE); len(got) != 4 || got[0] != entities[1] || got[3] != entities[5] {
		t.Errorf("Expected diffuse entities in registration order, got %v", got)
	}
}

func TestPassLifecycle(t *testing.T) {
	env := newTestEnv(t)
	defer env.teardown(t)

	for _, p := range allPasses(env.runtime) {
		if err := p.Initialize(); err != nil {
			t.Fatalf("Expected %s to initialize, got %v", p.Name(), err)
		}
		// a second Initialize is a no-op
		before := env.backend.Created(rendertest.KindPipeline)
		if err := p.Initialize(); err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
		if after := env.backend.Created(rendertest.KindPipeline); after != before {
			t.Errorf("Expected %s not to create pipelines twice, got %d new", p.Name(), after-before)
		}
		p.Shutdown()
		p.Shutdown()
	}
	for _, kind := range []rendertest.Kind{rendertest.KindRenderPass, rendertest.KindPipeline, rendertest.KindDescriptorPool, rendertest.KindCommandBuffer, rendertest.KindFramebuffer} {
		if n := env.backend.LiveCount(kind); n != 0 {
			t.Errorf("Expected no live %s after shutdown, got %d", kind, n)
		}
	}
}

func TestDrawBeforeInitialize(t *testing.T) {
	env := newTestEnv(t)
	defer env.teardown(t)

	for _, p := range allPasses(env.runtime) {
		if _, err := p.Draw(renderer.FrameContext{}); !errors.Is(err, core.ErrPassNotInitialized) {
			t.Errorf("Expected ErrPassNotInitialized from %s, got %v", p.Name(), err)
		}
	}
}

func TestInitializeFailureReleasesEverything(t *testing.T) {
	env := newTestEnv(t)
	defer env.teardown(t)

	boom := errors.New("boom")
	for _, kind := range []rendertest.Kind{rendertest.KindPipeline, rendertest.KindDescriptorPool, rendertest.KindFramebuffer, rendertest.KindCommandBuffer} {
		for _, p := range allPasses(env.runtime) {
			env.backend.FailNext(kind, boom)
			err := p.Initialize()
			if !errors.Is(err, boom) {
				t.Errorf("Expected %s to fail on %s, got %v", p.Name(), kind, err)
			}
			var gerr *core.GPUError
			if !errors.As(err, &gerr) {
				t.Errorf("Expected a GPUError from %s, got %T", p.Name(), err)
			}
			// the injected failure is consumed; a retry succeeds
			if err := p.Initialize(); err != nil {
				t.Errorf("Expected %s to initialize after a failure, got %v", p.Name(), err)
			}
			p.Shutdown()
		}
	}

	env.shaders.Missing[ShaderSSAOFrag] = true
	p := NewSSAOPass(env.runtime)
	if err := p.Initialize(); !errors.Is(err, core.ErrShaderNotFound) {
		t.Errorf("Expected ErrShaderNotFound, got %v", err)
	}
}

func TestDeferredDrawOrder(t *testing.T) {
	env := newTestEnv(t)
	defer env.teardown(t)

	p := NewDeferredPass(env.runtime)
	shared := env.mesh(t, "shared")
	entities := []*scene.Entity{
		{Name: "a", Mesh: shared, Material: scene.NewMicrofacets(scene.DefaultAlbedo, 0, 0.5), Offset: 0},
		{Name: "b", Mesh: shared, Material: scene.NewDiffuse(scene.DefaultAlbedo), Offset: 1},
		{Name: "c", Mesh: env.mesh(t, "other"), Material: scene.NewDiffuse(scene.DefaultAlbedo), Offset: 2},
		{Name: "no_mesh", Material: scene.NewDiffuse(scene.DefaultAlbedo), Offset: 3},
	}
	for _, e := range entities {
		p.AddEntityToDraw(e)
	}
	if err := p.Initialize(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer p.Shutdown()

	cmd, err := p.Draw(renderer.FrameContext{Slot: 1, ImageIndex: 2})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cmd != p.CommandBuffers()[2] {
		t.Errorf("Expected the command buffer of image 2, got %d", cmd)
	}

	var ops []string
	var pipelines []metadata.Handle
	var firstInstances []uint32
	for _, c := range env.backend.Commands(cmd) {
		ops = append(ops, c.Op)
		switch c.Op {
		case "bind_pipeline":
			pipelines = append(pipelines, c.Handles[0])
		case "draw_indexed":
			firstInstances = append(firstInstances, c.Values[1])
		case "bind_descriptor_sets":
			if c.Handles[1] != p.perFrameSets[1] || c.Handles[2] != p.perObjectSets[1] {
				t.Errorf("Expected the descriptor sets of slot 1, got %v", c.Handles[1:])
			}
		}
	}
	if ops[0] != "begin_render_pass" || ops[len(ops)-1] != "end_render_pass" {
		t.Errorf("Expected commands inside one render pass, got %v", ops)
	}
	if len(pipelines) != 2 || pipelines[0] != p.pipelines[scene.MATERIAL_TYPE_DIFFUSE] || pipelines[1] != p.pipelines[scene.MATERIAL_TYPE_MICROFACETS] {
		t.Errorf("Expected diffuse then microfacets pipelines, got %v", pipelines)
	}
	want := []uint32{1, 2, 0}
	if len(firstInstances) != len(want) {
		t.Fatalf("Expected %d draws, got %d", len(want), len(firstInstances))
	}
	for i := range want {
		if firstInstances[i] != want[i] {
			t.Errorf("Expected draw %d to use offset %d, got %d", i, want[i], firstInstances[i])
		}
	}
}

func TestCompositionTargetsAcquiredImage(t *testing.T) {
	env := newTestEnv(t)
	defer env.teardown(t)

	p := NewCompositionPass(env.runtime)
	if err := p.Initialize(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer p.Shutdown()

	if len(p.framebuffers) != len(env.surface.Images()) {
		t.Fatalf("Expected one framebuffer per swapchain image, got %d", len(p.framebuffers))
	}
	for i := uint32(0); i < uint32(len(p.framebuffers)); i++ {
		cmd, err := p.Draw(renderer.FrameContext{Slot: i % 2, ImageIndex: i})
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		begin := env.backend.Commands(cmd)[0]
		if begin.Handles[1] != p.framebuffers[i] {
			t.Errorf("Expected framebuffer %d for image %d, got %d", p.framebuffers[i], i, begin.Handles[1])
		}
	}
	if _, err := p.Draw(renderer.FrameContext{ImageIndex: 3}); err == nil {
		t.Error("Expected an error for an out of range image index")
	}
	if _, err := p.Draw(renderer.FrameContext{Slot: 2}); err == nil {
		t.Error("Expected an error for an out of range frame slot")
	}
}

func TestSSAOUploadsKernel(t *testing.T) {
	env := newTestEnv(t)
	defer env.teardown(t)

	p := NewSSAOPass(env.runtime)
	if err := p.Initialize(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer p.Shutdown()

	if p.Seed() != testSeed {
		t.Errorf("Expected seed %d, got %d", testSeed, p.Seed())
	}
	want := kernelBytes(GenerateKernel(testSeed))
	if got := env.backend.BufferData(p.kernel.Buffer); !bytes.Equal(got, want) {
		t.Error("Expected the kernel buffer to hold the generated kernel")
	}
	if got := env.backend.SetBinding(p.inputSet, ssaoBindingKernel); got != p.kernel.Buffer {
		t.Errorf("Expected the kernel bound at %d, got %d", ssaoBindingKernel, got)
	}
	if got := env.backend.SetBinding(p.inputSet, ssaoBindingNoise); got != p.noise.Image {
		t.Errorf("Expected the noise texture bound at %d, got %d", ssaoBindingNoise, got)
	}
}

func TestShadowPassWritesLightMatrix(t *testing.T) {
	env := newTestEnv(t)
	defer env.teardown(t)

	p := NewShadowPass(env.runtime)
	p.AddEntityToDraw(&scene.Entity{Name: "e", Mesh: env.mesh(t, "m"), Material: scene.NewDiffuse(scene.DefaultAlbedo)})
	if p.Output() != nil {
		t.Error("Expected no shadow map before Initialize")
	}
	if err := p.Initialize(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer p.Shutdown()

	if ext := p.Output().Extent(); ext.Width != ShadowMapSize || ext.Height != ShadowMapSize {
		t.Errorf("Expected a %dx%d shadow map, got %v", ShadowMapSize, ShadowMapSize, ext)
	}
	m := mgl32.Perspective(mgl32.DegToRad(75), 1, 0.01, 10).Mul4(mgl32.LookAtV(mgl32.Vec3{0, 5, 5}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0}))
	p.SetLightMatrix(m)
	cmd, err := p.Draw(renderer.FrameContext{Slot: 1, ImageIndex: 0})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got := env.backend.BufferData(p.lightBuffers[1].Buffer); !bytes.Equal(got, encodeFloats(m[:])) {
		t.Error("Expected slot 1 light buffer to hold the light matrix")
	}
	if got := env.backend.BufferData(p.lightBuffers[0].Buffer); bytes.Equal(got, encodeFloats(m[:])) {
		t.Error("Expected slot 0 light buffer to be untouched")
	}
	draws := 0
	for _, c := range env.backend.Commands(cmd) {
		if c.Op == "draw_indexed" {
			draws++
		}
	}
	if draws != 1 {
		t.Errorf("Expected 1 draw, got %d", draws)
	}
}
