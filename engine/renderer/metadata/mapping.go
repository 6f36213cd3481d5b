package metadata

import "github.com/go-gl/mathgl/mgl32"

// GeometryKind tags the variant of a Mapping or Transform.
type GeometryKind uint8

const (
	GeometryKindSprite GeometryKind = iota
	GeometryKindMesh
)

func (k GeometryKind) String() string {
	if k == GeometryKindMesh {
		return "mesh"
	}
	return "sprite"
}

// Mapping describes what geometry a submission draws. It is either a
// SpriteMapping or a MeshMapping.
type Mapping interface {
	Kind() GeometryKind
	isMapping()
}

// SpriteMapping draws a textured unit quad sampling UVRect (x, y, w, h).
type SpriteMapping struct {
	UVRect mgl32.Vec4
}

// FullUV covers the whole texture.
var FullUV = mgl32.Vec4{0, 0, 1, 1}

func (SpriteMapping) Kind() GeometryKind { return GeometryKindSprite }
func (SpriteMapping) isMapping()         {}

// MeshMapping draws indexed geometry from buffers owned by the asset manager.
type MeshMapping struct {
	VertexBuffer VertexBufferHandle
	IndexBuffer  IndexBufferHandle
	VertexCount  uint32
	IndexCount   uint32
}

func (MeshMapping) Kind() GeometryKind { return GeometryKindMesh }
func (MeshMapping) isMapping()         {}
