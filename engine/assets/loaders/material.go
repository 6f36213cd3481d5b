package loaders

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/frameq/engine/core"
	"github.com/spaghettifunk/frameq/engine/renderer/metadata"
)

type MaterialLoader struct{}

func (ml *MaterialLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	mCfg, err := parseMaterialFile(path)
	if err != nil {
		return nil, err
	}
	return &metadata.Resource{
		Name:     mCfg.Name,
		FullPath: path,
		Data:     mCfg,
	}, nil
}

func parseMaterialFile(filename string) (*metadata.MaterialConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	materialConfig := &metadata.MaterialConfig{}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(materialConfig); err != nil {
		return nil, fmt.Errorf("invalid material file %s: %w", filename, err)
	}
	// Perform validation
	if err := validateMaterial(materialConfig); err != nil {
		return nil, err
	}
	return materialConfig, nil
}

func validateMaterial(material *metadata.MaterialConfig) error {
	if material.Name == "" {
		return fmt.Errorf("material name is required")
	}
	if material.Shader == "" {
		return fmt.Errorf("shader name is required")
	}
	for _, t := range material.Textures {
		if t == "" {
			return fmt.Errorf("material %s has an empty texture name", material.Name)
		}
	}
	_, err := MaterialFromConfig(material)
	return err
}

// MaterialFromConfig converts the enum fields of cfg. Handles for the shader
// and textures are left for the caller to resolve.
func MaterialFromConfig(cfg *metadata.MaterialConfig) (metadata.Material, error) {
	var (
		m   metadata.Material
		err error
	)
	if cfg.Blend != "" {
		if m.BlendMode, err = metadata.ParseBlendMode(cfg.Blend); err != nil {
			return m, err
		}
	}
	if cfg.Cull != "" {
		if m.CullMode, err = metadata.ParseFaceCullMode(cfg.Cull); err != nil {
			return m, err
		}
	}
	m.FilterMode = metadata.FilterModeLinear
	if cfg.Filter != "" {
		if m.FilterMode, err = metadata.ParseFilterMode(cfg.Filter); err != nil {
			return m, err
		}
	}
	m.WrapModes = [2]metadata.WrapMode{metadata.WrapModeClamp, metadata.WrapModeClamp}
	if cfg.WrapU != "" {
		if m.WrapModes[0], err = metadata.ParseWrapMode(cfg.WrapU); err != nil {
			return m, err
		}
	}
	if cfg.WrapV != "" {
		if m.WrapModes[1], err = metadata.ParseWrapMode(cfg.WrapV); err != nil {
			return m, err
		}
	}
	if len(cfg.Textures) > metadata.MaxMaterialTextures {
		core.LogWarn("material %s binds %d textures, shaders only see the first %d", cfg.Name, len(cfg.Textures), metadata.MaxMaterialTextures)
	}
	return m, nil
}

func (ml *MaterialLoader) Unload(*metadata.Resource) error {
	return nil
}
