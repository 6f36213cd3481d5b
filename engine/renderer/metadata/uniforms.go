package metadata

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// MaxUniformParams bounds the shader-specific parameters uploaded per draw.
const MaxUniformParams = 16

// UniformBlockSize is the size in bytes of the per-draw uniform block:
// view-projection, model, tint, uv rect, params.
const UniformBlockSize = 64 + 64 + 16 + 16 + MaxUniformParams*4

// MaterialUniforms are per-submission shader inputs. They are copied on
// every Queue call and never shared between submissions.
type MaterialUniforms struct {
	Tint   mgl32.Vec4
	Params []float32
}

func DefaultUniforms() MaterialUniforms {
	return MaterialUniforms{Tint: mgl32.Vec4{1, 1, 1, 1}}
}

func (u MaterialUniforms) Clone() MaterialUniforms {
	c := u
	c.Params = append([]float32(nil), u.Params...)
	return c
}

// PackUniforms writes the per-draw uniform block in the layout the built-in
// shaders declare. Params beyond MaxUniformParams are dropped.
func PackUniforms(viewProjection, model mgl32.Mat4, uvRect mgl32.Vec4, u MaterialUniforms) []byte {
	buf := make([]byte, UniformBlockSize)
	off := 0
	put := func(v float32) {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
		off += 4
	}
	for _, v := range viewProjection {
		put(v)
	}
	for _, v := range model {
		put(v)
	}
	for _, v := range u.Tint {
		put(v)
	}
	for _, v := range uvRect {
		put(v)
	}
	for i := 0; i < MaxUniformParams && i < len(u.Params); i++ {
		put(u.Params[i])
	}
	return buf
}
