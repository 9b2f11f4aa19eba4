//go:build !nogpu

package wgpu

import (
	_ "embed"

	"github.com/gogpu/gputypes"
)

//go:embed shaders/filter.wgsl
var filterShaderWGSL string

//go:embed shaders/scale.wgsl
var scaleShaderWGSL string

//go:embed shaders/fill.wgsl
var fillShaderWGSL string

//go:embed shaders/mask.wgsl
var maskShaderWGSL string

// workgroupSize matches @workgroup_size in every shader.
const workgroupSize = 64

// maxGroupsX is the per-dimension dispatch limit; larger dispatches wrap
// into the y dimension.
const maxGroupsX = 65535

type shaderSpec struct {
	label    string
	source   string
	bindings []gputypes.BufferBindingLayout
}

func uniform() gputypes.BufferBindingLayout {
	return gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
}

func readOnly() gputypes.BufferBindingLayout {
	return gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}
}

func readWrite() gputypes.BufferBindingLayout {
	return gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
}

// shaderSpecs lists the pipelines created per device, in binding order:
// params, then inputs, then the output.
func shaderSpecs() map[string]shaderSpec {
	return map[string]shaderSpec{
		"filter": {"lightfield_filter", filterShaderWGSL, []gputypes.BufferBindingLayout{uniform(), readOnly(), readOnly(), readWrite()}},
		"scale":  {"lightfield_scale", scaleShaderWGSL, []gputypes.BufferBindingLayout{uniform(), readOnly(), readWrite()}},
		"fill":   {"lightfield_fill", fillShaderWGSL, []gputypes.BufferBindingLayout{uniform(), readWrite()}},
		"mask":   {"lightfield_mask", maskShaderWGSL, []gputypes.BufferBindingLayout{uniform(), readOnly(), readOnly(), readWrite()}},
	}
}

// dispatchSize returns workgroup counts covering n invocations.
func dispatchSize(n int) (x, y uint32) {
	groups := (n + workgroupSize - 1) / workgroupSize
	if groups == 0 {
		return 0, 0
	}
	gx := min(groups, maxGroupsX)
	gy := (groups + gx - 1) / gx
	return uint32(gx), uint32(gy) //nolint:gosec // bounded by maxGroupsX and buffer size
}
