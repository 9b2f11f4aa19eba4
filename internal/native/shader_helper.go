// Package native holds the low-level wgpu/hal helpers shared by GPU compute
// backends: WGSL compilation and compute pipeline construction.
package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// CompileShaderToSPIRV compiles WGSL source to SPIR-V words.
func CompileShaderToSPIRV(wgslSource string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgslSource)
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader: %w", err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("spir-v length %d is not word aligned", len(spirvBytes))
	}

	// SPIR-V is little-endian 32-bit words.
	spirvCode := make([]uint32, len(spirvBytes)/4)
	for i := range spirvCode {
		spirvCode[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return spirvCode, nil
}

// Pipeline is a compute pipeline with a single bind group.
type Pipeline struct {
	Label      string
	Bindings   []gputypes.BufferBindingLayout
	Shader     hal.ShaderModule
	BindLayout hal.BindGroupLayout
	PipeLayout hal.PipelineLayout
	Pipeline   hal.ComputePipeline
}

// NewPipeline compiles wgsl through naga and builds a compute pipeline
// whose entry point is "main". Bindings are numbered from 0 in slice order.
// Partially created resources are released on failure.
func NewPipeline(device hal.Device, label, wgsl string, bindings []gputypes.BufferBindingLayout) (*Pipeline, error) {
	spirv, err := CompileShaderToSPIRV(wgsl)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	p := &Pipeline{Label: label, Bindings: bindings}

	p.Shader, err = device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return nil, fmt.Errorf("create %s shader module: %w", label, err)
	}

	entries := make([]gputypes.BindGroupLayoutEntry, len(bindings))
	for i := range bindings {
		entries[i] = gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i), //nolint:gosec // binding count is tiny
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &bindings[i],
		}
	}
	p.BindLayout, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   label + "_bind_layout",
		Entries: entries,
	})
	if err != nil {
		p.Destroy(device)
		return nil, fmt.Errorf("create %s bind group layout: %w", label, err)
	}

	p.PipeLayout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label + "_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.BindLayout},
	})
	if err != nil {
		p.Destroy(device)
		return nil, fmt.Errorf("create %s pipeline layout: %w", label, err)
	}

	p.Pipeline, err = device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   label + "_pipeline",
		Layout:  p.PipeLayout,
		Compute: hal.ComputeState{Module: p.Shader, EntryPoint: "main"},
	})
	if err != nil {
		p.Destroy(device)
		return nil, fmt.Errorf("create %s compute pipeline: %w", label, err)
	}
	return p, nil
}

// Destroy releases the pipeline resources in reverse creation order.
func (p *Pipeline) Destroy(device hal.Device) {
	if p == nil || device == nil {
		return
	}
	if p.Pipeline != nil {
		device.DestroyComputePipeline(p.Pipeline)
		p.Pipeline = nil
	}
	if p.PipeLayout != nil {
		device.DestroyPipelineLayout(p.PipeLayout)
		p.PipeLayout = nil
	}
	if p.BindLayout != nil {
		device.DestroyBindGroupLayout(p.BindLayout)
		p.BindLayout = nil
	}
	if p.Shader != nil {
		device.DestroyShaderModule(p.Shader)
		p.Shader = nil
	}
}
