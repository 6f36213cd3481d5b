//go:build mage

package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/naga"
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const (
	shaderDir    = "assets/shaders"
	shaderOutDir = "build/shaders"
)

// Compiles every WGSL shader under assets/shaders to SPIR-V in build/shaders.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the testbed binary into build/.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", "build/frameq", "."), withStream())
	return err
}

func buildShaders() error {
	sources, err := filepath.Glob(filepath.Join(shaderDir, "*.wgsl"))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(shaderOutDir, 0o755); err != nil {
		return err
	}
	for _, src := range sources {
		data, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		spirv, err := naga.Compile(string(data))
		if err != nil {
			return fmt.Errorf("failed to compile %s: %w", src, err)
		}
		if len(spirv)%4 != 0 || len(spirv) < 4 || binary.LittleEndian.Uint32(spirv) != 0x07230203 {
			return fmt.Errorf("failed to compile %s: output is not SPIR-V", src)
		}
		out := filepath.Join(shaderOutDir, strings.TrimSuffix(filepath.Base(src), ".wgsl")+".spv")
		if err := os.WriteFile(out, spirv, 0o644); err != nil {
			return err
		}
		fmt.Printf("%s -> %s (%d bytes)\n", src, out, len(spirv))
	}
	return nil
}
