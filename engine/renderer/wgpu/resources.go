package wgpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/spaghettifunk/frameq/engine/core"
	"github.com/spaghettifunk/frameq/engine/renderer/metadata"
)

// gpuTexture is stored in metadata.Texture.InternalData.
type gpuTexture struct {
	texture hal.Texture
	view    hal.TextureView
	width   uint32
	height  uint32
	format  gputypes.TextureFormat
	// set for render targets
	attach *attachments
}

type gpuShader struct {
	module hal.ShaderModule
}

type gpuBuffer struct {
	buffer hal.Buffer
	size   uint64
}

// attachments are the extra textures a render target needs: a multisampled
// color texture that resolves into the target and depth buffers per sample
// count.
type attachments struct {
	width   uint32
	height  uint32
	format  gputypes.TextureFormat
	samples uint32

	msaa     hal.Texture
	msaaView hal.TextureView
	// msaaCurrent is false once something wrote the resolved texture
	// directly, for instance a post-process step. Loading passes then
	// render single-sampled so they keep that content.
	msaaCurrent bool

	depth map[uint32]*depthAttachment
}

type depthAttachment struct {
	texture hal.Texture
	view    hal.TextureView
}

func toGPUFormat(f metadata.TextureFormat) gputypes.TextureFormat {
	if f == metadata.TextureFormatBGRA8 {
		return gputypes.TextureFormatBGRA8Unorm
	}
	return gputypes.TextureFormatRGBA8Unorm
}

func createTexture2D(device hal.Device, label string, w, h, samples uint32, format gputypes.TextureFormat, usage gputypes.TextureUsage) (hal.Texture, hal.TextureView, error) {
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   samples,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create texture %s: %w", label, err)
	}
	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         label + "_view",
		Format:        format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		device.DestroyTexture(tex)
		return nil, nil, fmt.Errorf("create texture view %s: %w", label, err)
	}
	return tex, view, nil
}

func newAttachments(device hal.Device, label string, w, h, samples uint32, format gputypes.TextureFormat) (*attachments, error) {
	a := &attachments{
		width:   w,
		height:  h,
		format:  format,
		samples: samples,
		depth:   make(map[uint32]*depthAttachment),
	}
	if samples > 1 {
		tex, view, err := createTexture2D(device, label+"_msaa", w, h, samples, format, gputypes.TextureUsageRenderAttachment)
		if err != nil {
			return nil, err
		}
		a.msaa, a.msaaView = tex, view
	}
	return a, nil
}

// depthView returns the depth buffer for the given sample count, creating
// it on first use.
func (a *attachments) depthView(device hal.Device, samples uint32) (hal.TextureView, error) {
	if d, ok := a.depth[samples]; ok {
		return d.view, nil
	}
	tex, view, err := createTexture2D(device, fmt.Sprintf("depth_x%d", samples), a.width, a.height, samples, depthFormat, gputypes.TextureUsageRenderAttachment)
	if err != nil {
		return nil, err
	}
	a.depth[samples] = &depthAttachment{texture: tex, view: view}
	return view, nil
}

func (a *attachments) destroy(device hal.Device) {
	if a == nil {
		return
	}
	if a.msaaView != nil {
		device.DestroyTextureView(a.msaaView)
	}
	if a.msaa != nil {
		device.DestroyTexture(a.msaa)
	}
	for _, d := range a.depth {
		device.DestroyTextureView(d.view)
		device.DestroyTexture(d.texture)
	}
	a.depth = nil
}

// CreateTexture uploads tightly packed RGBA8 pixels.
func (b *Backend) CreateTexture(texture *metadata.Texture, pixels []uint8) error {
	want := int(texture.Width) * int(texture.Height) * 4
	if texture.Width == 0 || texture.Height == 0 || len(pixels) != want {
		return fmt.Errorf("texture %s: expected %d bytes for %dx%d, got %d", texture.Name, want, texture.Width, texture.Height, len(pixels))
	}
	format := toGPUFormat(texture.Format)
	tex, view, err := createTexture2D(b.ctx.Device, texture.Name, texture.Width, texture.Height, 1, format,
		gputypes.TextureUsageTextureBinding|gputypes.TextureUsageCopyDst)
	if err != nil {
		return err
	}
	b.ctx.Queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: tex, MipLevel: 0},
		pixels,
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: texture.Width * 4, RowsPerImage: texture.Height},
		&hal.Extent3D{Width: texture.Width, Height: texture.Height, DepthOrArrayLayers: 1},
	)
	texture.InternalData = &gpuTexture{
		texture: tex,
		view:    view,
		width:   texture.Width,
		height:  texture.Height,
		format:  format,
	}
	return nil
}

// CreateRenderTarget allocates a texture passes can render into and
// post-process steps can sample.
func (b *Backend) CreateRenderTarget(texture *metadata.Texture) error {
	if texture.Width == 0 || texture.Height == 0 {
		return fmt.Errorf("render target %s: size must be non-zero", texture.Name)
	}
	format := toGPUFormat(texture.Format)
	tex, view, err := createTexture2D(b.ctx.Device, texture.Name, texture.Width, texture.Height, 1, format,
		gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageTextureBinding|gputypes.TextureUsageCopySrc)
	if err != nil {
		return err
	}
	att, err := newAttachments(b.ctx.Device, texture.Name, texture.Width, texture.Height, b.samples, format)
	if err != nil {
		b.ctx.Device.DestroyTextureView(view)
		b.ctx.Device.DestroyTexture(tex)
		return err
	}
	texture.InternalData = &gpuTexture{
		texture: tex,
		view:    view,
		width:   texture.Width,
		height:  texture.Height,
		format:  format,
		attach:  att,
	}
	return nil
}

func (b *Backend) DestroyTexture(texture *metadata.Texture) {
	gt, ok := texture.InternalData.(*gpuTexture)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	gt.attach.destroy(b.ctx.Device)
	b.ctx.Device.DestroyTextureView(gt.view)
	b.ctx.Device.DestroyTexture(gt.texture)
	texture.InternalData = nil
}

// ReadTexture reads back a render target as RGBA8.
func (b *Backend) ReadTexture(texture *metadata.Texture) ([]byte, error) {
	gt, ok := texture.InternalData.(*gpuTexture)
	if !ok || gt.attach == nil {
		return nil, fmt.Errorf("%w: %s is not a render target", core.ErrUnsupported, texture.Name)
	}
	pixels, err := readTexture(b.ctx.Device, b.ctx.Queue, gt.texture, gt.width, gt.height)
	if err != nil {
		return nil, err
	}
	if gt.format == gputypes.TextureFormatBGRA8Unorm {
		swizzleBGRA(pixels)
	}
	return pixels, nil
}

// CreateShader compiles the WGSL source. A shader that fails to compile
// leaves shader untouched.
func (b *Backend) CreateShader(shader *metadata.Shader) error {
	spirv, err := compileWGSL(shader.Source)
	if err != nil {
		return fmt.Errorf("shader %s: %w", shader.Name, err)
	}
	module, err := b.ctx.Device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  shader.Name,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fmt.Errorf("shader %s: create module: %w", shader.Name, err)
	}
	shader.InternalData = &gpuShader{module: module}
	return nil
}

func (b *Backend) DestroyShader(shader *metadata.Shader) {
	gs, ok := shader.InternalData.(*gpuShader)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evictShader(gs)
	b.ctx.Device.DestroyShaderModule(gs.module)
	shader.InternalData = nil
}

func (b *Backend) CreateVertexBuffer(buffer *metadata.VertexBuffer, vertices []metadata.Vertex) error {
	if len(vertices) == 0 {
		return fmt.Errorf("vertex buffer %s is empty", buffer.Name)
	}
	gb, err := b.createBuffer(buffer.Name, packVertices(vertices), gputypes.BufferUsageVertex|gputypes.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	buffer.InternalData = gb
	return nil
}

func (b *Backend) DestroyVertexBuffer(buffer *metadata.VertexBuffer) {
	if gb, ok := buffer.InternalData.(*gpuBuffer); ok {
		b.ctx.Device.DestroyBuffer(gb.buffer)
		buffer.InternalData = nil
	}
}

func (b *Backend) CreateIndexBuffer(buffer *metadata.IndexBuffer, indices []uint16) error {
	if len(indices) == 0 {
		return fmt.Errorf("index buffer %s is empty", buffer.Name)
	}
	gb, err := b.createBuffer(buffer.Name, packIndices(indices), gputypes.BufferUsageIndex|gputypes.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	buffer.InternalData = gb
	return nil
}

func (b *Backend) DestroyIndexBuffer(buffer *metadata.IndexBuffer) {
	if gb, ok := buffer.InternalData.(*gpuBuffer); ok {
		b.ctx.Device.DestroyBuffer(gb.buffer)
		buffer.InternalData = nil
	}
}

func (b *Backend) createBuffer(label string, data []byte, usage gputypes.BufferUsage) (*gpuBuffer, error) {
	buf, err := b.ctx.Device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(len(data)),
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create buffer %s: %w", label, err)
	}
	b.ctx.Queue.WriteBuffer(buf, 0, data)
	return &gpuBuffer{buffer: buf, size: uint64(len(data))}, nil
}

func packVertices(vertices []metadata.Vertex) []byte {
	data := make([]byte, 0, len(vertices)*metadata.VertexSize)
	for _, v := range vertices {
		data = appendFloats(data, v.Position[:]...)
		data = appendFloats(data, v.UV[:]...)
		data = appendFloats(data, v.Color[:]...)
	}
	return data
}

// packIndices pads to a multiple of 4 bytes, which buffer writes require.
func packIndices(indices []uint16) []byte {
	size := (len(indices)*2 + 3) &^ 3
	data := make([]byte, size)
	for i, idx := range indices {
		binary.LittleEndian.PutUint16(data[i*2:], idx)
	}
	return data
}

func appendFloats(dst []byte, values ...float32) []byte {
	for _, v := range values {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

// packParams fills the 64-byte post-process params block.
func packParams(params []float32) []byte {
	data := make([]byte, postParamsSize)
	for i := 0; i < len(params) && i*4 < postParamsSize; i++ {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(params[i]))
	}
	return data
}

// unitQuad spans [0, 1] in x and y with uv matching position.
var (
	unitQuadVertices = []metadata.Vertex{
		{Position: [3]float32{0, 0, 0}, UV: [2]float32{0, 0}, Color: [4]float32{1, 1, 1, 1}},
		{Position: [3]float32{1, 0, 0}, UV: [2]float32{1, 0}, Color: [4]float32{1, 1, 1, 1}},
		{Position: [3]float32{1, 1, 0}, UV: [2]float32{1, 1}, Color: [4]float32{1, 1, 1, 1}},
		{Position: [3]float32{0, 1, 0}, UV: [2]float32{0, 1}, Color: [4]float32{1, 1, 1, 1}},
	}
	unitQuadIndices = []uint16{0, 1, 2, 2, 3, 0}
)
