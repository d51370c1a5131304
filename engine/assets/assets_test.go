package assets

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
)

func TestDetermineAssetType(t *testing.T) {
	cases := map[string]metadata.ResourceType{
		"shaders/gbuffer.frag.spv": metadata.RESOURCE_TYPE_SHADER,
		"meshes/Bunny.OBJ":         metadata.RESOURCE_TYPE_MESH,
		"scenes/cornell.xml":       metadata.RESOURCE_TYPE_SCENE,
		"capture.tiff":             metadata.RESOURCE_TYPE_IMAGE,
		"shaders/gbuffer.frag":     metadata.RESOURCE_TYPE_NONE,
	}
	for path, expected := range cases {
		if got := DetermineAssetType(path); got != expected {
			t.Errorf("%s: Expected %s, got %s", path, expected, got)
		}
	}
}

func TestLoadAssetDispatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tri.obj")
	if err := os.WriteFile(path, []byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	am := NewAssetManager(nil)
	defer am.Shutdown()

	res, err := am.LoadAsset(path, metadata.RESOURCE_TYPE_MESH, nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if res.Type != metadata.RESOURCE_TYPE_MESH {
		t.Errorf("Expected mesh resource, got %s", res.Type)
	}
	if _, ok := am.Loaded(path); !ok {
		t.Errorf("Expected %s to be recorded as loaded", path)
	}
	if err := am.UnloadAsset(res); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if _, ok := am.Loaded(path); ok {
		t.Errorf("Expected %s to be forgotten after unload", path)
	}

	if _, err := am.LoadAsset(path, metadata.RESOURCE_TYPE_SCENE, nil); err == nil {
		t.Errorf("Expected an error for a type without a loader, got nil")
	}
}

func TestWatchFiresAssetChanged(t *testing.T) {
	dir := t.TempDir()
	bus := core.NewEventBus()
	changed := make(chan string, 16)
	bus.Register(core.EVENT_CODE_ASSET_CHANGED, t, func(ctx core.EventContext) bool {
		changed <- ctx.Data.(*core.AssetEvent).Path
		return true
	})

	am := NewAssetManager(bus)
	if err := am.Watch(dir); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer am.Shutdown()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(dir, "ssao.frag.spv")
	if err := os.WriteFile(target, []byte{0x03, 0x02, 0x23, 0x07}, 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-changed:
		if got != target {
			t.Errorf("Expected %s, got %s", target, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Expected an asset changed event, got none")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	am := NewAssetManager(nil)
	if err := am.Watch(t.TempDir()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := am.Shutdown(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if err := am.Shutdown(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if err := am.Watch(t.TempDir()); err == nil {
		t.Errorf("Expected an error when watching after shutdown, got nil")
	}
}
