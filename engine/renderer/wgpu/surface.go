package wgpu

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/image/bmp"

	"github.com/spaghettifunk/frameq/engine/core"
)

// Surface is what the "screen" target renders into. Window integrations
// implement it on top of a swapchain and report a lost or outdated
// swapchain from Acquire with core.ErrSurfaceLost / core.ErrSurfaceOutdated.
type Surface interface {
	Configure(device hal.Device, queue hal.Queue, width, height uint32) error
	// Acquire returns the texture the current frame renders into.
	Acquire() (hal.Texture, hal.TextureView, error)
	// Present is called after the frame's commands completed.
	Present() error
	Format() gputypes.TextureFormat
	Size() (uint32, uint32)
	Destroy()
}

// OffscreenSurface backs the screen with a plain texture. It is used for
// headless runs and can write the last frame to an image file.
type OffscreenSurface struct {
	device hal.Device
	queue  hal.Queue

	texture hal.Texture
	view    hal.TextureView
	width   uint32
	height  uint32
	frames  uint64
}

func NewOffscreenSurface() *OffscreenSurface {
	return &OffscreenSurface{}
}

func (s *OffscreenSurface) Configure(device hal.Device, queue hal.Queue, width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("%w: surface size %dx%d", core.ErrInvalidConfig, width, height)
	}
	if s.texture != nil && s.width == width && s.height == height {
		return nil
	}
	s.Destroy()
	s.device, s.queue = device, queue

	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         "offscreen_surface",
		Size:          hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        s.Format(),
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc | gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		return fmt.Errorf("create surface texture: %w", err)
	}
	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         "offscreen_surface_view",
		Format:        s.Format(),
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		device.DestroyTexture(tex)
		return fmt.Errorf("create surface view: %w", err)
	}
	s.texture, s.view = tex, view
	s.width, s.height = width, height
	return nil
}

func (s *OffscreenSurface) Acquire() (hal.Texture, hal.TextureView, error) {
	if s.texture == nil {
		return nil, nil, fmt.Errorf("%w: surface not configured", core.ErrSurfaceOutdated)
	}
	return s.texture, s.view, nil
}

func (s *OffscreenSurface) Present() error {
	s.frames++
	return nil
}

func (s *OffscreenSurface) Format() gputypes.TextureFormat {
	return gputypes.TextureFormatRGBA8Unorm
}

func (s *OffscreenSurface) Size() (uint32, uint32) {
	return s.width, s.height
}

// Frames is the number of presented frames.
func (s *OffscreenSurface) Frames() uint64 {
	return s.frames
}

func (s *OffscreenSurface) Destroy() {
	if s.device == nil {
		return
	}
	if s.view != nil {
		s.device.DestroyTextureView(s.view)
		s.view = nil
	}
	if s.texture != nil {
		s.device.DestroyTexture(s.texture)
		s.texture = nil
	}
}

// Pixels reads back the last presented frame as RGBA8.
func (s *OffscreenSurface) Pixels() ([]byte, error) {
	if s.texture == nil {
		return nil, fmt.Errorf("%w: surface not configured", core.ErrSurfaceOutdated)
	}
	return readTexture(s.device, s.queue, s.texture, s.width, s.height)
}

// Capture writes the last presented frame to path. The encoding follows
// the extension: .bmp or .png.
func (s *OffscreenSurface) Capture(path string) error {
	pixels, err := s.Pixels()
	if err != nil {
		return err
	}
	img := &image.NRGBA{
		Pix:    pixels,
		Stride: int(s.width) * 4,
		Rect:   image.Rect(0, 0, int(s.width), int(s.height)),
	}
	return writeImage(path, img)
}

func writeImage(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".bmp":
		err = bmp.Encode(f, img)
	case ".png", "":
		err = png.Encode(f, img)
	default:
		err = fmt.Errorf("%w: capture format %s", core.ErrUnsupported, filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("failed to write capture %s: %w", path, err)
	}
	return nil
}
