package loaders

import (
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/frameq/engine/renderer/metadata"
)

const floatsPerVertex = 9

type MeshLoader struct{}

func (ml *MeshLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg metadata.MeshConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid mesh file %s: %w", path, err)
	}
	mesh, err := MeshFromConfig(&cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid mesh file %s: %w", path, err)
	}
	return &metadata.Resource{
		Name:     cfg.Name,
		FullPath: path,
		DataSize: uint64(len(mesh.Vertices)*metadata.VertexSize + len(mesh.Indices)*2),
		Data:     mesh,
	}, nil
}

func MeshFromConfig(cfg *metadata.MeshConfig) (*metadata.MeshData, error) {
	if len(cfg.Vertices) == 0 || len(cfg.Vertices)%floatsPerVertex != 0 {
		return nil, fmt.Errorf("vertices must be a non-empty multiple of %d floats, got %d", floatsPerVertex, len(cfg.Vertices))
	}
	if len(cfg.Indices) == 0 || len(cfg.Indices)%3 != 0 {
		return nil, fmt.Errorf("indices must be a non-empty multiple of 3, got %d", len(cfg.Indices))
	}
	count := len(cfg.Vertices) / floatsPerVertex
	vertices := make([]metadata.Vertex, count)
	for i := range vertices {
		f := cfg.Vertices[i*floatsPerVertex:]
		vertices[i] = metadata.Vertex{
			Position: mgl32.Vec3{f[0], f[1], f[2]},
			UV:       mgl32.Vec2{f[3], f[4]},
			Color:    mgl32.Vec4{f[5], f[6], f[7], f[8]},
		}
	}
	for _, idx := range cfg.Indices {
		if int(idx) >= count {
			return nil, fmt.Errorf("index %d out of range for %d vertices", idx, count)
		}
	}
	return &metadata.MeshData{
		Name:     cfg.Name,
		Vertices: vertices,
		Indices:  append([]uint16(nil), cfg.Indices...),
	}, nil
}

func (ml *MeshLoader) Unload(*metadata.Resource) error {
	return nil
}
