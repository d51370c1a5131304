package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/deferred/engine/assets/loaders"
)

func TestLoadConfigMissingFile(t *testing.T) {
	c, err := LoadConfig(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if c.Renderer.FramesInFlight != 3 {
		t.Errorf("Expected 3 frames in flight, got %d", c.Renderer.FramesInFlight)
	}
	if c.FenceTimeoutDuration() != time.Second {
		t.Errorf("Expected a 1s fence timeout, got %s", c.FenceTimeoutDuration())
	}
	if c.CaptureEncoding() != loaders.IMAGE_ENCODING_PNG {
		t.Errorf("Expected png captures, got %s", c.CaptureEncoding())
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[window]
title = "test"
width = 1280
height = 720

[renderer]
frames_in_flight = 2
fence_timeout = "250ms"
ssao_seed = 42

[capture]
format = "bmp"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if c.Window.Title != "test" || c.Window.Width != 1280 || c.Window.Height != 720 {
		t.Errorf("Expected window test 1280x720, got %+v", c.Window)
	}
	if c.Renderer.FramesInFlight != 2 || c.Renderer.SSAOSeed != 42 {
		t.Errorf("Expected 2 frames and seed 42, got %+v", c.Renderer)
	}
	if c.FenceTimeoutDuration() != 250*time.Millisecond {
		t.Errorf("Expected a 250ms fence timeout, got %s", c.FenceTimeoutDuration())
	}
	if c.CaptureEncoding() != loaders.IMAGE_ENCODING_BMP {
		t.Errorf("Expected bmp captures, got %s", c.CaptureEncoding())
	}
	// untouched sections keep their defaults
	if c.Assets.ShaderDir != "assets/shaders" || c.Log.Level != "info" {
		t.Errorf("Expected default assets and log sections, got %+v %+v", c.Assets, c.Log)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"no frames", func(c *Config) { c.Renderer.FramesInFlight = 0 }},
		{"too many frames", func(c *Config) { c.Renderer.FramesInFlight = 4 }},
		{"bad timeout", func(c *Config) { c.Renderer.FenceTimeout = "soon" }},
		{"negative timeout", func(c *Config) { c.Renderer.FenceTimeout = "-1s" }},
		{"bad format", func(c *Config) { c.Capture.Format = "gif" }},
		{"empty window", func(c *Config) { c.Window.Width = 0 }},
		{"no shader dir", func(c *Config) { c.Assets.ShaderDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.modify(c)
			if err := c.Validate(); err == nil {
				t.Errorf("Expected an error")
			}
		})
	}
}

func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[renderer\nframes_in_flight = "), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Errorf("Expected an error")
	}
}
