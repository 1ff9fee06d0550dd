// Package shaders holds the WGSL sources of the fluid passes. A program is a
// (vertex, fragment) path pair; the fragment file declares the Uniforms
// struct and the texture bindings that both stages use.
package shaders

import (
	"embed"
	"fmt"

	"github.com/gekko3d/fluid/fluidrt/rt/gpu"
)

//go:embed wgsl/*.wgsl
var files embed.FS

var (
	Plane         = gpu.ProgramSource{Vertex: "fullscreen.vert", Fragment: "plane.frag"}
	Cloth         = gpu.ProgramSource{Vertex: "cloth.vert", Fragment: "cloth.frag"}
	Depth         = gpu.ProgramSource{Vertex: "sprite.vert", Fragment: "depth.frag"}
	Blur          = gpu.ProgramSource{Vertex: "fullscreen.vert", Fragment: "blur.frag"}
	Thickness     = gpu.ProgramSource{Vertex: "sprite.vert", Fragment: "thickness.frag"}
	FluidFinal    = gpu.ProgramSource{Vertex: "fullscreen.vert", Fragment: "fluidFinal.frag"}
	FoamDepth     = gpu.ProgramSource{Vertex: "sprite.vert", Fragment: "foamDepth.frag"}
	FoamThickness = gpu.ProgramSource{Vertex: "sprite.vert", Fragment: "foamThickness.frag"}
	FoamIntensity = gpu.ProgramSource{Vertex: "fullscreen.vert", Fragment: "foamIntensity.frag"}
	Radiance      = gpu.ProgramSource{Vertex: "fullscreen.vert", Fragment: "radiance.frag"}
	Final         = gpu.ProgramSource{Vertex: "fullscreen.vert", Fragment: "final.frag"}
)

// All lists every program the renderer builds.
func All() []gpu.ProgramSource {
	return []gpu.ProgramSource{
		Plane, Cloth, Depth, Blur, Thickness, FluidFinal,
		FoamDepth, FoamThickness, FoamIntensity, Radiance, Final,
	}
}

// Read returns one stage source by path.
func Read(path string) (string, error) {
	b, err := files.ReadFile("wgsl/" + path + ".wgsl")
	if err != nil {
		return "", fmt.Errorf("%w: %s", gpu.ErrProgramNotFound, path)
	}
	return string(b), nil
}

// Load returns the module source of a program: the vertex stage followed by
// the fragment stage.
func Load(src gpu.ProgramSource) (string, error) {
	vs, err := Read(src.Vertex)
	if err != nil {
		return "", err
	}
	fs, err := Read(src.Fragment)
	if err != nil {
		return "", err
	}
	return vs + "\n" + fs, nil
}
