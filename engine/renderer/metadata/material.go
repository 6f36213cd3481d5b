package metadata

import (
	"fmt"
	"strings"
)

/** @brief The name of the default material. */
const DefaultMaterialName string = "default"

/** @brief Texture slots a material exposes to its shader. Unused slots read a white texel. */
const MaxMaterialTextures = 4

/** @brief How a material's fragments are combined with the target. */
type BlendMode uint8

const (
	BlendModeNone BlendMode = iota
	BlendModePremultiplied
	BlendModeAlphaBlend
	BlendModeAdditive
	BlendModeMultiply
	BlendModeSubtract
)

type FaceCullMode uint8

const (
	FaceCullModeNone FaceCullMode = iota
	FaceCullModeBack
	FaceCullModeFront
)

type FilterMode uint8

const (
	FilterModeNearest FilterMode = iota
	FilterModeLinear
)

type WrapMode uint8

const (
	WrapModeRepeat WrapMode = iota
	WrapModeMirroredRepeat
	WrapModeClamp
)

/** @brief Anti-aliasing applied by the backend to every render target. */
type AntiAliasing uint8

const (
	AntiAliasingNone AntiAliasing = iota
	AntiAliasingMSAA2x
	AntiAliasingMSAA4x
	AntiAliasingMSAA8x
	AntiAliasingFXAA
	AntiAliasingSMAA
)

var (
	blendModeNames    = []string{"none", "premultiplied", "alpha_blend", "additive", "multiply", "subtract"}
	faceCullModeNames = []string{"none", "back", "front"}
	filterModeNames   = []string{"nearest", "linear"}
	wrapModeNames     = []string{"repeat", "mirrored_repeat", "clamp"}
	antiAliasingNames = []string{"none", "msaa2x", "msaa4x", "msaa8x", "fxaa", "smaa"}
)

func enumName(names []string, v uint8) string {
	if int(v) < len(names) {
		return names[v]
	}
	return fmt.Sprintf("unknown(%d)", v)
}

func parseEnum(kind string, names []string, s string) (uint8, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range names {
		if n == s {
			return uint8(i), nil
		}
	}
	return 0, fmt.Errorf("invalid %s %q, expected one of %v", kind, s, names)
}

func (m BlendMode) String() string    { return enumName(blendModeNames, uint8(m)) }
func (m FaceCullMode) String() string { return enumName(faceCullModeNames, uint8(m)) }
func (m FilterMode) String() string   { return enumName(filterModeNames, uint8(m)) }
func (m WrapMode) String() string     { return enumName(wrapModeNames, uint8(m)) }
func (a AntiAliasing) String() string { return enumName(antiAliasingNames, uint8(a)) }

func ParseBlendMode(s string) (BlendMode, error) {
	v, err := parseEnum("blend mode", blendModeNames, s)
	return BlendMode(v), err
}

func ParseFaceCullMode(s string) (FaceCullMode, error) {
	v, err := parseEnum("cull mode", faceCullModeNames, s)
	return FaceCullMode(v), err
}

func ParseFilterMode(s string) (FilterMode, error) {
	v, err := parseEnum("filter mode", filterModeNames, s)
	return FilterMode(v), err
}

func ParseWrapMode(s string) (WrapMode, error) {
	v, err := parseEnum("wrap mode", wrapModeNames, s)
	return WrapMode(v), err
}

// ParseAntiAliasing accepts an empty string as none.
func ParseAntiAliasing(s string) (AntiAliasing, error) {
	if strings.TrimSpace(s) == "" {
		return AntiAliasingNone, nil
	}
	v, err := parseEnum("anti-aliasing", antiAliasingNames, s)
	return AntiAliasing(v), err
}

// SampleCount is the multisample count for MSAA modes and 1 otherwise.
func (a AntiAliasing) SampleCount() uint32 {
	switch a {
	case AntiAliasingMSAA2x:
		return 2
	case AntiAliasingMSAA4x:
		return 4
	case AntiAliasingMSAA8x:
		return 8
	default:
		return 1
	}
}

/**
 * @brief A material describes how a drawable is shaded: which shader runs,
 * which textures it samples and how the result is blended into the target.
 * Materials are immutable once handed to the asset manager and are shared by
 * every submission that references their handle.
 */
type Material struct {
	/** @brief Textures bound in order to group 1 bindings 0..MaxMaterialTextures-1. */
	Textures []TextureHandle
	Shader   ShaderHandle

	BlendMode  BlendMode
	CullMode   FaceCullMode
	FilterMode FilterMode
	/** @brief Horizontal and vertical wrap modes. */
	WrapModes [2]WrapMode
}

// Clone returns a deep copy so callers can't mutate a stored material.
func (m Material) Clone() Material {
	c := m
	c.Textures = append([]TextureHandle(nil), m.Textures...)
	return c
}

/**
 * @brief Material configuration loaded from a TOML material file.
 */
type MaterialConfig struct {
	Name     string   `toml:"name"`
	Shader   string   `toml:"shader"`
	Textures []string `toml:"textures"`
	Blend    string   `toml:"blend"`
	Cull     string   `toml:"cull"`
	Filter   string   `toml:"filter"`
	WrapU    string   `toml:"wrap_u"`
	WrapV    string   `toml:"wrap_v"`
}
