package loaders

import (
	"fmt"
	"os"
	"strings"

	"github.com/spaghettifunk/frameq/engine/renderer/metadata"
)

type ShaderLoader struct{}

// Load reads WGSL source. Compilation happens in the GPU backend; the
// loader only checks that the entry points the renderer calls exist.
func (sl *ShaderLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	source := string(data)
	for _, entry := range []string{metadata.ShaderVertexEntryPoint, metadata.ShaderFragmentEntryPoint} {
		if !strings.Contains(source, "fn "+entry) {
			return nil, fmt.Errorf("shader %s has no %s entry point", path, entry)
		}
	}
	return &metadata.Resource{
		Name:     "shader",
		FullPath: path,
		DataSize: uint64(len(data)),
		Data:     source,
	}, nil
}

func (sl *ShaderLoader) Unload(*metadata.Resource) error {
	return nil
}
