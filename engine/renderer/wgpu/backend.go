package wgpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/spaghettifunk/frameq/engine/core"
	"github.com/spaghettifunk/frameq/engine/renderer/metadata"
)

var errNoFrame = errors.New("no frame in progress")

// Backend records frames with the wgpu HAL. It implements both the
// renderer's backend and the asset manager's resource backend.
type Backend struct {
	ctx     *RenderContext
	surface Surface
	samples uint32

	mu            sync.Mutex
	layouts       *layouts
	pipelines     map[pipelineKey]hal.RenderPipeline
	postPipelines map[postPipelineKey]hal.RenderPipeline
	samplers      map[metadata.SamplerDescriptor]hal.Sampler

	quadVertices *gpuBuffer
	quadIndices  *gpuBuffer
	white        *gpuTexture

	screen     *attachments
	clearColor gputypes.Color

	frame *frameState
}

// frameState is the recording state between BeginFrame and EndFrame.
type frameState struct {
	encoder     hal.CommandEncoder
	surfaceTex  hal.Texture
	surfaceView hal.TextureView

	pass        hal.RenderPassEncoder
	passVP      mgl32.Mat4
	passFormat  gputypes.TextureFormat
	passSamples uint32
	passAttach  *attachments

	screenWritten bool

	buffers    []hal.Buffer
	bindGroups []hal.BindGroup
}

// NewBackend creates the shared GPU state and configures surface at
// width x height. A nil surface renders offscreen.
func NewBackend(ctx *RenderContext, surface Surface, cfg *core.RendererConfig, width, height uint32) (*Backend, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: nil render context", core.ErrInvalidConfig)
	}
	if cfg == nil {
		cfg = &core.DefaultConfig().Renderer
	}
	if surface == nil {
		surface = NewOffscreenSurface()
	}
	aa, err := metadata.ParseAntiAliasing(cfg.AntiAliasing)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidConfig, err)
	}
	if aa == metadata.AntiAliasingFXAA || aa == metadata.AntiAliasingSMAA {
		core.LogWarn("anti-aliasing %s is not supported by the wgpu backend, rendering without it", aa)
	}

	b := &Backend{
		ctx:           ctx,
		surface:       surface,
		samples:       aa.SampleCount(),
		pipelines:     make(map[pipelineKey]hal.RenderPipeline),
		postPipelines: make(map[postPipelineKey]hal.RenderPipeline),
		samplers:      make(map[metadata.SamplerDescriptor]hal.Sampler),
		clearColor: gputypes.Color{
			R: float64(cfg.ClearColor[0]),
			G: float64(cfg.ClearColor[1]),
			B: float64(cfg.ClearColor[2]),
			A: float64(cfg.ClearColor[3]),
		},
	}
	if err := b.init(width, height); err != nil {
		b.Shutdown()
		core.LogError("failed to create wgpu backend: %s", err)
		return nil, err
	}
	core.LogInfo("wgpu backend ready on %s (%dx%d, %d samples)", ctx.AdapterName, width, height, b.samples)
	return b, nil
}

func (b *Backend) init(width, height uint32) error {
	var err error
	if b.layouts, err = createLayouts(b.ctx.Device); err != nil {
		return err
	}
	if b.quadVertices, err = b.createBuffer("unit_quad_vertices", packVertices(unitQuadVertices), gputypes.BufferUsageVertex|gputypes.BufferUsageCopyDst); err != nil {
		return err
	}
	if b.quadIndices, err = b.createBuffer("unit_quad_indices", packIndices(unitQuadIndices), gputypes.BufferUsageIndex|gputypes.BufferUsageCopyDst); err != nil {
		return err
	}
	white := &metadata.Texture{Name: "default_white", Width: 1, Height: 1}
	if err := b.CreateTexture(white, []uint8{255, 255, 255, 255}); err != nil {
		return err
	}
	b.white = white.InternalData.(*gpuTexture)
	return b.configureScreen(width, height)
}

func (b *Backend) configureScreen(width, height uint32) error {
	if err := b.surface.Configure(b.ctx.Device, b.ctx.Queue, width, height); err != nil {
		return fmt.Errorf("configure surface: %w", err)
	}
	b.screen.destroy(b.ctx.Device)
	att, err := newAttachments(b.ctx.Device, "screen", width, height, b.samples, b.surface.Format())
	if err != nil {
		return err
	}
	b.screen = att
	return nil
}

// Surface returns the presentation surface.
func (b *Backend) Surface() Surface {
	return b.surface
}

func (b *Backend) SampleCount() uint32 {
	return b.samples
}

func (b *Backend) SurfaceSize() (uint32, uint32) {
	return b.surface.Size()
}

// Resize reconfigures the surface and the screen attachments.
func (b *Backend) Resize(width, height uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frame != nil {
		return fmt.Errorf("resize during a frame")
	}
	if err := b.configureScreen(width, height); err != nil {
		core.LogError("failed to resize surface to %dx%d: %s", width, height, err)
		return err
	}
	core.LogDebug("surface resized to %dx%d", width, height)
	return nil
}

func (b *Backend) BeginFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frame != nil {
		return fmt.Errorf("frame already in progress")
	}
	tex, view, err := b.surface.Acquire()
	if err != nil {
		return err
	}
	encoder, err := b.ctx.Device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "frame_encoder"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("frame"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	b.frame = &frameState{
		encoder:     encoder,
		surfaceTex:  tex,
		surfaceView: view,
	}
	return nil
}

// target returns the resolved view, attachments and format of a pass or
// post-process target.
func (b *Backend) target(key metadata.RenderTargetKey, texture *metadata.Texture) (hal.TextureView, *attachments, gputypes.TextureFormat, error) {
	if key.IsScreen() {
		return b.frame.surfaceView, b.screen, b.surface.Format(), nil
	}
	if texture == nil {
		return nil, nil, 0, fmt.Errorf("%w: %s has no texture", core.ErrUnknownRenderTarget, key)
	}
	gt, ok := texture.InternalData.(*gpuTexture)
	if !ok || gt.attach == nil {
		return nil, nil, 0, fmt.Errorf("%w: %s is not a render target", core.ErrUnknownRenderTarget, texture.Name)
	}
	return gt.view, gt.attach, gt.format, nil
}

func toColor(c mgl32.Vec4) gputypes.Color {
	return gputypes.Color{R: float64(c[0]), G: float64(c[1]), B: float64(c[2]), A: float64(c[3])}
}

func (b *Backend) BeginRenderPass(desc *metadata.PassDescriptor) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frame == nil {
		return errNoFrame
	}
	if b.frame.pass != nil {
		return fmt.Errorf("render pass %s started inside another pass", desc.Name)
	}
	view, att, format, err := b.target(desc.Target, desc.TargetTexture)
	if err != nil {
		return err
	}
	b.clearColor = toColor(desc.ClearColor)
	return b.beginPass(desc.Name, view, att, format, desc.Clear, b.clearColor, desc.ViewProjection)
}

// beginPass must be called with b.mu held.
func (b *Backend) beginPass(name string, view hal.TextureView, att *attachments, format gputypes.TextureFormat, clearTarget bool, clearColor gputypes.Color, vp mgl32.Mat4) error {
	samples := att.samples
	if samples > 1 && !clearTarget && !att.msaaCurrent {
		samples = 1
	}

	color := hal.RenderPassColorAttachment{
		View:       view,
		LoadOp:     gputypes.LoadOpLoad,
		StoreOp:    gputypes.StoreOpStore,
		ClearValue: clearColor,
	}
	if clearTarget {
		color.LoadOp = gputypes.LoadOpClear
	}
	if samples > 1 {
		color.View = att.msaaView
		color.ResolveTarget = view
	}
	depthView, err := att.depthView(b.ctx.Device, samples)
	if err != nil {
		return err
	}

	rp := b.frame.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label:            name,
		ColorAttachments: []hal.RenderPassColorAttachment{color},
		DepthStencilAttachment: &hal.RenderPassDepthStencilAttachment{
			View:              depthView,
			DepthLoadOp:       gputypes.LoadOpClear,
			DepthStoreOp:      gputypes.StoreOpDiscard,
			DepthClearValue:   1.0,
			StencilLoadOp:     gputypes.LoadOpClear,
			StencilStoreOp:    gputypes.StoreOpDiscard,
			StencilClearValue: 0,
		},
	})
	b.frame.pass = rp
	b.frame.passVP = vp
	b.frame.passFormat = format
	b.frame.passSamples = samples
	b.frame.passAttach = att
	if att == b.screen {
		b.frame.screenWritten = true
	}
	return nil
}

func (b *Backend) DrawBatch(batch *metadata.DrawBatch, depthWrite bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.frame
	if f == nil || f.pass == nil {
		return fmt.Errorf("draw outside of a render pass: %w", errNoFrame)
	}
	if batch.Shader == nil {
		return fmt.Errorf("%w: batch %s has no shader", core.ErrStaleHandle, batch.MaterialHandle)
	}
	shader, ok := batch.Shader.InternalData.(*gpuShader)
	if !ok {
		return fmt.Errorf("shader %s has no GPU module", batch.Shader.Name)
	}
	materialGroup, err := b.materialBindGroup(batch)
	if err != nil {
		return err
	}

	var bound hal.RenderPipeline
	for i := range batch.Items {
		item := &batch.Items[i]
		cull := batch.Material.CullMode
		if item.Mapping.Kind() == metadata.GeometryKindSprite {
			cull = metadata.FaceCullModeNone
		}
		pipeline, err := b.drawPipeline(pipelineKey{
			shader:     shader,
			blend:      batch.Material.BlendMode,
			cull:       cull,
			depthWrite: depthWrite,
			format:     f.passFormat,
			samples:    f.passSamples,
		})
		if err != nil {
			return err
		}
		if pipeline != bound {
			f.pass.SetPipeline(pipeline)
			f.pass.SetBindGroup(1, materialGroup, nil)
			bound = pipeline
		}
		if err := b.drawItem(item); err != nil {
			return err
		}
	}
	return nil
}

// materialBindGroup binds the batch textures in slot order. Slots without
// a texture read the white texture.
func (b *Backend) materialBindGroup(batch *metadata.DrawBatch) (hal.BindGroup, error) {
	sampler, err := b.sampler(metadata.SamplerDescriptor{
		Filter: batch.Material.FilterMode,
		WrapU:  batch.Material.WrapModes[0],
		WrapV:  batch.Material.WrapModes[1],
	})
	if err != nil {
		return nil, err
	}
	entries := make([]gputypes.BindGroupEntry, 0, metadata.MaxMaterialTextures+1)
	for slot := 0; slot < metadata.MaxMaterialTextures; slot++ {
		view := b.white.view
		if slot < len(batch.Textures) && batch.Textures[slot] != nil {
			if gt, ok := batch.Textures[slot].InternalData.(*gpuTexture); ok {
				view = gt.view
			}
		}
		entries = append(entries, textureEntry(uint32(slot), view))
	}
	entries = append(entries, samplerEntry(metadata.MaxMaterialTextures, sampler))
	group, err := b.ctx.Device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "material_bind_group",
		Layout:  b.layouts.material,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("create material bind group: %w", err)
	}
	b.frame.bindGroups = append(b.frame.bindGroups, group)
	return group, nil
}

func textureEntry(binding uint32, view hal.TextureView) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding:  binding,
		Resource: gputypes.TextureViewBinding{TextureView: nativeHandle(view)},
	}
}

func samplerEntry(binding uint32, sampler hal.Sampler) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding:  binding,
		Resource: gputypes.SamplerBinding{Sampler: nativeHandle(sampler)},
	}
}

// nativeHandle returns the backend handle bind group entries refer to.
func nativeHandle(resource any) uintptr {
	if h, ok := resource.(interface{ NativeHandle() uintptr }); ok {
		return h.NativeHandle()
	}
	return 0
}

func (b *Backend) drawItem(item *metadata.DrawItem) error {
	f := b.frame
	uvRect := metadata.FullUV
	if sprite, ok := item.Mapping.(metadata.SpriteMapping); ok {
		uvRect = sprite.UVRect
	}
	data := metadata.PackUniforms(f.passVP, item.Model, uvRect, item.Uniforms)
	ub, err := b.ctx.Device.CreateBuffer(&hal.BufferDescriptor{
		Label: "draw_uniforms",
		Size:  uint64(len(data)),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create draw uniforms: %w", err)
	}
	f.buffers = append(f.buffers, ub)
	b.ctx.Queue.WriteBuffer(ub, 0, data)

	group, err := b.ctx.Device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "draw_bind_group",
		Layout: b.layouts.draw,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: ub.NativeHandle(), Offset: 0, Size: uint64(len(data))}},
		},
	})
	if err != nil {
		return fmt.Errorf("create draw bind group: %w", err)
	}
	f.bindGroups = append(f.bindGroups, group)
	f.pass.SetBindGroup(0, group, nil)

	switch m := item.Mapping.(type) {
	case metadata.SpriteMapping:
		f.pass.SetVertexBuffer(0, b.quadVertices.buffer, 0)
		f.pass.SetIndexBuffer(b.quadIndices.buffer, gputypes.IndexFormatUint16, 0)
		f.pass.DrawIndexed(uint32(len(unitQuadIndices)), 1, 0, 0, 0)
	case metadata.MeshMapping:
		vb, ok := bufferOf(item.VertexBuffer)
		if !ok {
			return fmt.Errorf("%w: mesh vertex buffer", core.ErrStaleHandle)
		}
		f.pass.SetVertexBuffer(0, vb.buffer, 0)
		ib, ok := indexBufferOf(item.IndexBuffer)
		if !ok {
			count := m.VertexCount
			if count == 0 && item.VertexBuffer != nil {
				count = item.VertexBuffer.Count
			}
			f.pass.Draw(count, 1, 0, 0)
			return nil
		}
		count := m.IndexCount
		if count == 0 {
			count = item.IndexBuffer.Count
		}
		f.pass.SetIndexBuffer(ib.buffer, gputypes.IndexFormatUint16, 0)
		f.pass.DrawIndexed(count, 1, 0, 0, 0)
	}
	return nil
}

func bufferOf(vb *metadata.VertexBuffer) (*gpuBuffer, bool) {
	if vb == nil {
		return nil, false
	}
	gb, ok := vb.InternalData.(*gpuBuffer)
	return gb, ok
}

func indexBufferOf(ib *metadata.IndexBuffer) (*gpuBuffer, bool) {
	if ib == nil {
		return nil, false
	}
	gb, ok := ib.InternalData.(*gpuBuffer)
	return gb, ok
}

func (b *Backend) EndRenderPass() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frame == nil || b.frame.pass == nil {
		return fmt.Errorf("end render pass: %w", errNoFrame)
	}
	b.endPass()
	return nil
}

// endPass must be called with b.mu held.
func (b *Backend) endPass() {
	f := b.frame
	f.pass.End()
	f.passAttach.msaaCurrent = f.passSamples > 1
	f.pass = nil
	f.passAttach = nil
}

// PostProcess draws a full-screen triangle into the target sampling the
// subject texture.
func (b *Backend) PostProcess(desc *metadata.PostProcessDescriptor) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.frame
	if f == nil {
		return errNoFrame
	}
	if f.pass != nil {
		return fmt.Errorf("post-process %s inside a render pass", desc.SubjectName)
	}
	if desc.Subject == nil || desc.Shader == nil {
		return fmt.Errorf("%w: post-process %s", core.ErrStaleHandle, desc.SubjectName)
	}
	subject, ok := desc.Subject.InternalData.(*gpuTexture)
	if !ok {
		return fmt.Errorf("post-process subject %s has no GPU texture", desc.SubjectName)
	}
	shader, ok := desc.Shader.InternalData.(*gpuShader)
	if !ok {
		return fmt.Errorf("shader %s has no GPU module", desc.Shader.Name)
	}
	view, att, format, err := b.target(desc.Target, desc.TargetTexture)
	if err != nil {
		return err
	}
	if view == subject.view {
		return fmt.Errorf("%w: post-process %s reads and writes the same texture", core.ErrInvalidSchedule, desc.SubjectName)
	}

	pipeline, err := b.postPipeline(postPipelineKey{shader: shader, format: format})
	if err != nil {
		return err
	}
	sampler, err := b.sampler(desc.Sampler)
	if err != nil {
		return err
	}
	params := packParams(desc.Params)
	pb, err := b.ctx.Device.CreateBuffer(&hal.BufferDescriptor{
		Label: "post_process_params",
		Size:  postParamsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create post-process params: %w", err)
	}
	f.buffers = append(f.buffers, pb)
	b.ctx.Queue.WriteBuffer(pb, 0, params)

	group, err := b.ctx.Device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "post_process_bind_group",
		Layout: b.layouts.post,
		Entries: []gputypes.BindGroupEntry{
			textureEntry(0, subject.view),
			samplerEntry(1, sampler),
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: pb.NativeHandle(), Offset: 0, Size: postParamsSize}},
		},
	})
	if err != nil {
		return fmt.Errorf("create post-process bind group: %w", err)
	}
	f.bindGroups = append(f.bindGroups, group)

	f.encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: subject.texture,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageTextureBinding,
		},
	}})

	loadOp := gputypes.LoadOpLoad
	if desc.Clear {
		loadOp = gputypes.LoadOpClear
	}
	rp := f.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "post_process_" + desc.SubjectName,
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     loadOp,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: b.clearColor,
		}},
	})
	rp.SetPipeline(pipeline)
	rp.SetBindGroup(0, group, nil)
	rp.Draw(3, 1, 0, 0)
	rp.End()

	f.encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: subject.texture,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageTextureBinding,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})

	att.msaaCurrent = false
	if att == b.screen {
		f.screenWritten = true
	}
	return nil
}

// EndFrame submits the recorded commands, waits for them and presents.
// A frame that never wrote the screen presents the clear color.
func (b *Backend) EndFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.frame
	if f == nil {
		return errNoFrame
	}
	defer b.releaseFrame()

	if f.pass != nil {
		core.LogWarn("frame ended inside a render pass, closing it")
		b.endPass()
	}
	if !f.screenWritten {
		if err := b.beginPass("screen_clear", f.surfaceView, b.screen, b.surface.Format(), true, b.clearColor, mgl32.Ident4()); err != nil {
			f.encoder.DiscardEncoding()
			return err
		}
		b.endPass()
	}

	cmdBuf, err := f.encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer b.ctx.Device.FreeCommandBuffer(cmdBuf)
	if err := submitAndWait(b.ctx.Device, b.ctx.Queue, cmdBuf); err != nil {
		return err
	}
	return b.surface.Present()
}

// releaseFrame destroys the per-frame buffers and bind groups. Must be
// called with b.mu held.
func (b *Backend) releaseFrame() {
	f := b.frame
	for _, g := range f.bindGroups {
		b.ctx.Device.DestroyBindGroup(g)
	}
	for _, buf := range f.buffers {
		b.ctx.Device.DestroyBuffer(buf)
	}
	b.frame = nil
}

// Shutdown frees everything the backend created. Resources owned by the
// asset manager are freed through it.
func (b *Backend) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	device := b.ctx.Device
	if b.frame != nil {
		if b.frame.pass != nil {
			b.frame.pass.End()
		}
		b.frame.encoder.DiscardEncoding()
		b.releaseFrame()
	}
	for key, p := range b.pipelines {
		device.DestroyRenderPipeline(p)
		delete(b.pipelines, key)
	}
	for key, p := range b.postPipelines {
		device.DestroyRenderPipeline(p)
		delete(b.postPipelines, key)
	}
	for key, s := range b.samplers {
		device.DestroySampler(s)
		delete(b.samplers, key)
	}
	if b.white != nil {
		device.DestroyTextureView(b.white.view)
		device.DestroyTexture(b.white.texture)
		b.white = nil
	}
	for _, gb := range []*gpuBuffer{b.quadVertices, b.quadIndices} {
		if gb != nil {
			device.DestroyBuffer(gb.buffer)
		}
	}
	b.quadVertices, b.quadIndices = nil, nil
	b.screen.destroy(device)
	b.screen = nil
	if b.layouts != nil {
		b.layouts.destroy(device)
		b.layouts = nil
	}
	b.surface.Destroy()
	return nil
}
