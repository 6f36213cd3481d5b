package metadata

import "github.com/go-gl/mathgl/mgl32"

// PassDescriptor opens a render pass on a target.
type PassDescriptor struct {
	Name   string
	Target RenderTargetKey
	// nil for the screen
	TargetTexture *Texture
	// Clear is set on the first use of the target in a frame; later passes
	// load the existing contents.
	Clear          bool
	ClearColor     mgl32.Vec4
	ViewProjection mgl32.Mat4
}

// DrawItem is one resolved submission.
type DrawItem struct {
	Mapping      Mapping
	Model        mgl32.Mat4
	Uniforms     MaterialUniforms
	Depth        float32
	QueueDepth   float32
	VertexBuffer *VertexBuffer
	IndexBuffer  *IndexBuffer
}

// DrawBatch groups consecutive items that share a material.
type DrawBatch struct {
	MaterialHandle MaterialHandle
	Material       Material
	Shader         *Shader
	Textures       []*Texture
	Transparent    bool
	Items          []DrawItem
}

type SamplerDescriptor struct {
	Filter FilterMode
	WrapU  WrapMode
	WrapV  WrapMode
}

// DefaultPostProcessSampler is the sampler every post-process step reads
// its subject with.
var DefaultPostProcessSampler = SamplerDescriptor{
	Filter: FilterModeLinear,
	WrapU:  WrapModeClamp,
	WrapV:  WrapModeClamp,
}

// PostProcessDescriptor runs a full-screen shader reading Subject and
// writing Target.
type PostProcessDescriptor struct {
	SubjectName   string
	Subject       *Texture
	Shader        *Shader
	Target        RenderTargetKey
	TargetTexture *Texture
	Clear         bool
	Sampler       SamplerDescriptor
	Params        []float32
}
