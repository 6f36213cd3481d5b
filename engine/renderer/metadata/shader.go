package metadata

// Entry points every WGSL shader used by the renderer must declare.
const (
	ShaderVertexEntryPoint   = "vs_main"
	ShaderFragmentEntryPoint = "fs_main"
)

/**
 * @brief A WGSL shader. Draw shaders take the per-draw uniform block at
 * group 0 binding 0 and material textures at group 1. Post-process shaders
 * take the subject texture and sampler at group 0 bindings 0 and 1 and the
 * params block at binding 2.
 */
type Shader struct {
	Name   string
	Path   string
	Source string
	/** @brief Incremented every time the source is reloaded. */
	Generation   uint32
	InternalData interface{}
}
