// Package wgpu implements a [compute.Device] on gogpu/wgpu HAL compute
// pipelines.
//
// All HAL calls happen on a single worker goroutine that executes commands
// in submission order: for each command it waits for the command's
// dependencies, records and submits one command buffer, and waits for the
// submission fence before completing the command's event. Dependencies on
// events of other devices are therefore honored as well.
//
// Importing the package registers the "wgpu" backend with a higher priority
// than the CPU backend.
//
// Building with the nogpu tag leaves the package empty.
package wgpu
