package wgpu

import (
	_ "embed"
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga"
)

var (
	//go:embed shaders/sprite.wgsl
	spriteWGSL string
	//go:embed shaders/fullscreen.wgsl
	fullscreenWGSL string
	//go:embed shaders/fog.wgsl
	fogFragmentWGSL string
	//go:embed shaders/passthrough.wgsl
	passthroughFragmentWGSL string
)

// Built-in shader sources. Post-process sources are the full-screen
// triangle followed by the effect's fragment stage.
var (
	SpriteShaderSource      = spriteWGSL
	FogShaderSource         = PostProcessSource(fogFragmentWGSL)
	PassthroughShaderSource = PostProcessSource(passthroughFragmentWGSL)
)

// PostProcessSource prepends the full-screen triangle vertex stage and the
// subject bindings to a fragment-only effect.
func PostProcessSource(fragment string) string {
	return fullscreenWGSL + "\n" + fragment
}

// compileWGSL turns WGSL into SPIR-V words for CreateShaderModule.
func compileWGSL(source string) ([]uint32, error) {
	spirv, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("compile WGSL: %w", err)
	}
	if len(spirv)%4 != 0 {
		return nil, fmt.Errorf("compile WGSL: SPIR-V length %d is not a multiple of 4", len(spirv))
	}
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirv[i*4:])
	}
	return words, nil
}
