package metadata

import "github.com/go-gl/mathgl/mgl32"

// VertexSize is the stride of Vertex in a vertex buffer.
const VertexSize = (3 + 2 + 4) * 4

type Vertex struct {
	Position mgl32.Vec3
	UV       mgl32.Vec2
	Color    mgl32.Vec4
}

type VertexBuffer struct {
	Name         string
	Count        uint32
	InternalData interface{}
}

type IndexBuffer struct {
	Name         string
	Count        uint32
	InternalData interface{}
}

/**
 * @brief Mesh description loaded from a TOML mesh file.
 */
type MeshConfig struct {
	Name string `toml:"name"`
	// Flat list of x, y, z, u, v, r, g, b, a per vertex.
	Vertices []float32 `toml:"vertices"`
	Indices  []uint16  `toml:"indices"`
}

// MeshData is decoded mesh geometry ready for upload.
type MeshData struct {
	Name     string
	Vertices []Vertex
	Indices  []uint16
}
