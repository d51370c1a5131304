package engine

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/deferred/engine/assets/loaders"
	"github.com/spaghettifunk/deferred/engine/renderer"
)

type WindowConfig struct {
	Title  string `toml:"title"`
	X      uint32 `toml:"x"`
	Y      uint32 `toml:"y"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type RendererConfig struct {
	FramesInFlight uint32 `toml:"frames_in_flight"`
	// FenceTimeout is a time.ParseDuration string, e.g. "1s".
	FenceTimeout string `toml:"fence_timeout"`
	Validation   bool   `toml:"validation"`
	// Zero seeds the SSAO kernel from the clock.
	SSAOSeed uint64 `toml:"ssao_seed"`
}

type AssetsConfig struct {
	ShaderDir string `toml:"shader_dir"`
	Watch     bool   `toml:"watch"`
	// Zero uses one worker per CPU.
	Workers int `toml:"workers"`
}

type CaptureConfig struct {
	Dir    string `toml:"dir"`
	Format string `toml:"format"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Config is the engine configuration, read from a TOML file.
type Config struct {
	Window   WindowConfig   `toml:"window"`
	Renderer RendererConfig `toml:"renderer"`
	Assets   AssetsConfig   `toml:"assets"`
	Capture  CaptureConfig  `toml:"capture"`
	Log      LogConfig      `toml:"log"`

	fenceTimeout time.Duration
	encoding     loaders.ImageEncoding
}

func DefaultConfig() *Config {
	return &Config{
		Window: WindowConfig{
			Title:  "Deferred Renderer",
			Width:  800,
			Height: 800,
		},
		Renderer: RendererConfig{
			FramesInFlight: renderer.MaxFramesInFlight,
			FenceTimeout:   "1s",
			Validation:     true,
		},
		Assets: AssetsConfig{
			ShaderDir: "assets/shaders",
		},
		Capture: CaptureConfig{
			Dir:    "captures",
			Format: string(loaders.IMAGE_ENCODING_PNG),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig overlays the file at path on the defaults. A missing file is
// not an error.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config, config.Validate()
		}
		return nil, err
	}
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// Validate checks the values and caches the parsed ones.
func (c *Config) Validate() error {
	if c.Renderer.FramesInFlight < 1 || c.Renderer.FramesInFlight > renderer.MaxFramesInFlight {
		return fmt.Errorf("renderer.frames_in_flight must be in [1, %d], got %d", renderer.MaxFramesInFlight, c.Renderer.FramesInFlight)
	}
	timeout, err := time.ParseDuration(c.Renderer.FenceTimeout)
	if err != nil {
		return fmt.Errorf("renderer.fence_timeout: %w", err)
	}
	if timeout <= 0 {
		return fmt.Errorf("renderer.fence_timeout must be positive, got %s", c.Renderer.FenceTimeout)
	}
	enc, err := loaders.ParseImageEncoding(c.Capture.Format)
	if err != nil {
		return fmt.Errorf("capture.format: %w", err)
	}
	if c.Window.Width == 0 || c.Window.Height == 0 {
		return fmt.Errorf("window size must not be empty, got %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.Assets.ShaderDir == "" {
		return fmt.Errorf("assets.shader_dir must be set")
	}
	c.fenceTimeout = timeout
	c.encoding = enc
	return nil
}

func (c *Config) FenceTimeoutDuration() time.Duration { return c.fenceTimeout }

func (c *Config) CaptureEncoding() loaders.ImageEncoding { return c.encoding }
