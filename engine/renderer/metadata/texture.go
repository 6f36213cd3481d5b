package metadata

type TextureFormat uint8

const (
	TextureFormatRGBA8 TextureFormat = iota
	TextureFormatBGRA8
)

/**
 * @brief Represents a texture.
 */
type Texture struct {
	/** @brief The texture name, a file path for loaded textures. */
	Name   string
	Width  uint32
	Height uint32
	Format TextureFormat
	/** @brief Indicates if the texture can be rendered to. */
	IsRenderTarget bool
	/** @brief Incremented every time the texture data is reloaded. */
	Generation uint32
	/** @brief Backend specific data. */
	InternalData interface{}
}

/** @brief Decoded pixel data produced by the image loader. */
type ImageResourceData struct {
	Width  uint32
	Height uint32
	/** @brief Tightly packed RGBA8 pixels. */
	Pixels []uint8
}

type ImageResourceParams struct {
	/** @brief Flip the image vertically on load. */
	FlipY bool
}
