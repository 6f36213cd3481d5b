package core

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config is the engine configuration, usually read from a TOML file.
type Config struct {
	Application ApplicationConfig `toml:"application"`
	Log         LogConfig         `toml:"log"`
	Renderer    RendererConfig    `toml:"renderer"`
	Assets      AssetsConfig      `toml:"assets"`
}

type ApplicationConfig struct {
	// The application name used in windowing, if applicable.
	Name string `toml:"name"`
	// Starting width of the screen target.
	Width uint32 `toml:"width"`
	// Starting height of the screen target.
	Height uint32 `toml:"height"`
	// Stop after this many frames. Zero runs until shutdown.
	MaxFrames uint64 `toml:"max_frames"`
	// When set, the last presented frame is written here on shutdown.
	CapturePath string `toml:"capture_path"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type RendererConfig struct {
	// "vulkan" or "noop".
	Backend string `toml:"backend"`
	// Fall back to the noop device when no hardware adapter can be opened.
	AllowNoopFallback bool       `toml:"allow_noop_fallback"`
	ClearColor        [4]float32 `toml:"clear_color"`
	// none, msaa2x, msaa4x, msaa8x, fxaa, smaa
	AntiAliasing string `toml:"anti_aliasing"`
	// Name of a material drawn in place of submissions whose material is gone.
	// Empty skips those submissions.
	FallbackMaterial string `toml:"fallback_material"`
}

type AssetsConfig struct {
	Dir   string `toml:"dir"`
	Watch bool   `toml:"watch"`
}

func DefaultConfig() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name:   "frameq",
			Width:  1280,
			Height: 720,
		},
		Log: LogConfig{
			Level: "info",
		},
		Renderer: RendererConfig{
			Backend:           "vulkan",
			AllowNoopFallback: true,
			ClearColor:        [4]float32{0.1, 0.2, 0.3, 1.0},
			AntiAliasing:      "none",
		},
		Assets: AssetsConfig{
			Dir:   "assets",
			Watch: true,
		},
	}
}

// LoadConfig reads path on top of DefaultConfig. Unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Application.Width == 0 || c.Application.Height == 0 {
		return fmt.Errorf("%w: application size must be non-zero, got %dx%d", ErrInvalidConfig, c.Application.Width, c.Application.Height)
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.Log.Level)
	}
	switch c.Renderer.Backend {
	case "vulkan", "noop":
	default:
		return fmt.Errorf("%w: renderer backend %q", ErrInvalidConfig, c.Renderer.Backend)
	}
	switch c.Renderer.AntiAliasing {
	case "", "none", "msaa2x", "msaa4x", "msaa8x", "fxaa", "smaa":
	default:
		return fmt.Errorf("%w: anti_aliasing %q", ErrInvalidConfig, c.Renderer.AntiAliasing)
	}
	for _, ch := range c.Renderer.ClearColor {
		if ch < 0 || ch > 1 {
			return fmt.Errorf("%w: clear_color values must be between 0.0 and 1.0", ErrInvalidConfig)
		}
	}
	return nil
}
