package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/spaghettifunk/frameq/engine/core"
	"github.com/spaghettifunk/frameq/engine/renderer/metadata"
)

const (
	depthFormat = gputypes.TextureFormatDepth24PlusStencil8
	// postParamsSize is the size of the params block post-process shaders
	// read at group 0 binding 2.
	postParamsSize = 64
)

type pipelineKey struct {
	shader     *gpuShader
	blend      metadata.BlendMode
	cull       metadata.FaceCullMode
	depthWrite bool
	format     gputypes.TextureFormat
	samples    uint32
}

type postPipelineKey struct {
	shader *gpuShader
	format gputypes.TextureFormat
}

// layouts are the bind group and pipeline layouts every pipeline shares.
type layouts struct {
	draw     hal.BindGroupLayout
	material hal.BindGroupLayout
	post     hal.BindGroupLayout

	drawPipeline hal.PipelineLayout
	postPipeline hal.PipelineLayout
}

func createLayouts(device hal.Device) (*layouts, error) {
	l := &layouts{}
	var err error

	l.draw, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "draw_uniforms_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create draw layout: %w", err)
	}

	materialEntries := make([]gputypes.BindGroupLayoutEntry, 0, metadata.MaxMaterialTextures+1)
	for i := 0; i < metadata.MaxMaterialTextures; i++ {
		materialEntries = append(materialEntries, textureLayoutEntry(uint32(i)))
	}
	materialEntries = append(materialEntries, samplerLayoutEntry(metadata.MaxMaterialTextures))
	l.material, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "material_layout",
		Entries: materialEntries,
	})
	if err != nil {
		l.destroy(device)
		return nil, fmt.Errorf("create material layout: %w", err)
	}

	l.post, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "post_process_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			textureLayoutEntry(0),
			samplerLayoutEntry(1),
			{
				Binding:    2,
				Visibility: gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		l.destroy(device)
		return nil, fmt.Errorf("create post-process layout: %w", err)
	}

	l.drawPipeline, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "draw_pipeline_layout",
		BindGroupLayouts: []hal.BindGroupLayout{l.draw, l.material},
	})
	if err != nil {
		l.destroy(device)
		return nil, fmt.Errorf("create draw pipeline layout: %w", err)
	}
	l.postPipeline, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "post_process_pipeline_layout",
		BindGroupLayouts: []hal.BindGroupLayout{l.post},
	})
	if err != nil {
		l.destroy(device)
		return nil, fmt.Errorf("create post-process pipeline layout: %w", err)
	}
	return l, nil
}

func (l *layouts) destroy(device hal.Device) {
	if l.postPipeline != nil {
		device.DestroyPipelineLayout(l.postPipeline)
	}
	if l.drawPipeline != nil {
		device.DestroyPipelineLayout(l.drawPipeline)
	}
	for _, bgl := range []hal.BindGroupLayout{l.post, l.material, l.draw} {
		if bgl != nil {
			device.DestroyBindGroupLayout(bgl)
		}
	}
}

func textureLayoutEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageFragment,
		Texture: &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		},
	}
}

func samplerLayoutEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageFragment,
		Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
	}
}

var vertexLayout = []gputypes.VertexBufferLayout{
	{
		ArrayStride: metadata.VertexSize,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes: []gputypes.VertexAttribute{
			{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
			{Format: gputypes.VertexFormatFloat32x2, Offset: 12, ShaderLocation: 1},
			{Format: gputypes.VertexFormatFloat32x4, Offset: 20, ShaderLocation: 2},
		},
	},
}

// blendState maps a material blend mode onto the fixed-function blend
// equation. nil replaces the destination.
func blendState(mode metadata.BlendMode) *gputypes.BlendState {
	var bs gputypes.BlendState
	switch mode {
	case metadata.BlendModeNone:
		return nil
	case metadata.BlendModePremultiplied:
		bs = gputypes.BlendStatePremultiplied()
	case metadata.BlendModeAlphaBlend:
		bs = gputypes.BlendState{
			Color: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorSrcAlpha,
				DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
				Operation: gputypes.BlendOperationAdd,
			},
			Alpha: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorOne,
				DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
				Operation: gputypes.BlendOperationAdd,
			},
		}
	case metadata.BlendModeAdditive:
		bs = gputypes.BlendState{
			Color: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorSrcAlpha,
				DstFactor: gputypes.BlendFactorOne,
				Operation: gputypes.BlendOperationAdd,
			},
			Alpha: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorOne,
				DstFactor: gputypes.BlendFactorOne,
				Operation: gputypes.BlendOperationAdd,
			},
		}
	case metadata.BlendModeMultiply:
		bs = gputypes.BlendState{
			Color: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorDst,
				DstFactor: gputypes.BlendFactorZero,
				Operation: gputypes.BlendOperationAdd,
			},
			Alpha: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorZero,
				DstFactor: gputypes.BlendFactorOne,
				Operation: gputypes.BlendOperationAdd,
			},
		}
	case metadata.BlendModeSubtract:
		bs = gputypes.BlendState{
			Color: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorSrcAlpha,
				DstFactor: gputypes.BlendFactorOne,
				Operation: gputypes.BlendOperationReverseSubtract,
			},
			Alpha: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorZero,
				DstFactor: gputypes.BlendFactorOne,
				Operation: gputypes.BlendOperationAdd,
			},
		}
	default:
		core.LogWarn("unknown blend mode %s, drawing without blending", mode)
		return nil
	}
	return &bs
}

func cullMode(mode metadata.FaceCullMode) gputypes.CullMode {
	switch mode {
	case metadata.FaceCullModeBack:
		return gputypes.CullModeBack
	case metadata.FaceCullModeFront:
		return gputypes.CullModeFront
	default:
		return gputypes.CullModeNone
	}
}

func filterMode(mode metadata.FilterMode) gputypes.FilterMode {
	if mode == metadata.FilterModeNearest {
		return gputypes.FilterModeNearest
	}
	return gputypes.FilterModeLinear
}

func addressMode(mode metadata.WrapMode) gputypes.AddressMode {
	switch mode {
	case metadata.WrapModeClamp:
		return gputypes.AddressModeClampToEdge
	case metadata.WrapModeMirroredRepeat:
		return gputypes.AddressModeMirrorRepeat
	default:
		return gputypes.AddressModeRepeat
	}
}

// drawPipeline returns the cached pipeline for key, creating it on first
// use. Must be called with b.mu held.
func (b *Backend) drawPipeline(key pipelineKey) (hal.RenderPipeline, error) {
	if p, ok := b.pipelines[key]; ok {
		return p, nil
	}
	pipeline, err := b.ctx.Device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "draw_pipeline",
		Layout: b.layouts.drawPipeline,
		Vertex: hal.VertexState{
			Module:     key.shader.module,
			EntryPoint: metadata.ShaderVertexEntryPoint,
			Buffers:    vertexLayout,
		},
		Fragment: &hal.FragmentState{
			Module:     key.shader.module,
			EntryPoint: metadata.ShaderFragmentEntryPoint,
			Targets: []gputypes.ColorTargetState{
				{
					Format:    key.format,
					Blend:     blendState(key.blend),
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		DepthStencil: &hal.DepthStencilState{
			Format:            depthFormat,
			DepthWriteEnabled: key.depthWrite,
			DepthCompare:      gputypes.CompareFunctionLessEqual,
			StencilFront:      keepStencil,
			StencilBack:       keepStencil,
			StencilReadMask:   0xFF,
			StencilWriteMask:  0,
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  gputypes.PrimitiveTopologyTriangleList,
			FrontFace: gputypes.FrontFaceCCW,
			CullMode:  cullMode(key.cull),
		},
		Multisample: gputypes.MultisampleState{
			Count: key.samples,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create draw pipeline: %w", err)
	}
	b.pipelines[key] = pipeline
	core.LogDebug("created draw pipeline (blend=%s cull=%s depthWrite=%v samples=%d)", key.blend, key.cull, key.depthWrite, key.samples)
	return pipeline, nil
}

// postPipeline returns the cached full-screen pipeline for key. Must be
// called with b.mu held.
func (b *Backend) postPipeline(key postPipelineKey) (hal.RenderPipeline, error) {
	if p, ok := b.postPipelines[key]; ok {
		return p, nil
	}
	pipeline, err := b.ctx.Device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "post_process_pipeline",
		Layout: b.layouts.postPipeline,
		Vertex: hal.VertexState{
			Module:     key.shader.module,
			EntryPoint: metadata.ShaderVertexEntryPoint,
		},
		Fragment: &hal.FragmentState{
			Module:     key.shader.module,
			EntryPoint: metadata.ShaderFragmentEntryPoint,
			Targets: []gputypes.ColorTargetState{
				{Format: key.format, WriteMask: gputypes.ColorWriteMaskAll},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	})
	if err != nil {
		return nil, fmt.Errorf("create post-process pipeline: %w", err)
	}
	b.postPipelines[key] = pipeline
	return pipeline, nil
}

var keepStencil = hal.StencilFaceState{
	Compare:     gputypes.CompareFunctionAlways,
	FailOp:      hal.StencilOperationKeep,
	DepthFailOp: hal.StencilOperationKeep,
	PassOp:      hal.StencilOperationKeep,
}

// evictShader drops every cached pipeline built from s. Must be called
// with b.mu held.
func (b *Backend) evictShader(s *gpuShader) {
	for key, p := range b.pipelines {
		if key.shader == s {
			b.ctx.Device.DestroyRenderPipeline(p)
			delete(b.pipelines, key)
		}
	}
	for key, p := range b.postPipelines {
		if key.shader == s {
			b.ctx.Device.DestroyRenderPipeline(p)
			delete(b.postPipelines, key)
		}
	}
}

// sampler returns the cached sampler for desc. Must be called with b.mu
// held.
func (b *Backend) sampler(desc metadata.SamplerDescriptor) (hal.Sampler, error) {
	if s, ok := b.samplers[desc]; ok {
		return s, nil
	}
	filter := filterMode(desc.Filter)
	s, err := b.ctx.Device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "material_sampler",
		AddressModeU: addressMode(desc.WrapU),
		AddressModeV: addressMode(desc.WrapV),
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    filter,
		MinFilter:    filter,
		MipmapFilter: filter,
	})
	if err != nil {
		return nil, fmt.Errorf("create sampler: %w", err)
	}
	b.samplers[desc] = s
	return s, nil
}
