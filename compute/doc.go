// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package compute defines the asynchronous compute device used by the
// lightfield transport operators.
//
// A [Device] owns a single logical command queue. Every operation that reads
// or writes device memory is enqueued and returns an [*Event] instead of
// blocking. Ordering between operations is expressed only through the
// waitFor lists passed to each call:
//
//	up, _ := dev.Upload(buf, data, nil)
//	run, _ := dev.Run(launch, []*compute.Event{up})
//	down, _ := dev.Download(out, host, []*compute.Event{run})
//	if err := down.Wait(); err != nil { ... }
//
// Leaving an event out of a waitFor list is not detected: the dependent
// operation may observe stale data.
//
// # Buffers
//
// [Buffer] is a mutable handle owned by one component. [ConstBuffer] is a
// read-only view that may be shared freely across concurrent operations.
// Kernel inputs accept any [Readable]; kernel outputs accept only [*Buffer].
//
// # Kernels
//
// Devices execute two kernels, [KernelFilter] and [KernelScale], plus the
// built-in fill operation. Kernel parameters are packed according to the
// versioned binary layout in layout.go, which is shared by the WGSL shaders
// and the host reference kernels.
//
// # Backends
//
// Backends register themselves with [Register] from an init function:
//
//	import _ "github.com/gogpu/lightfield/compute/cpu"
//	import _ "github.com/gogpu/lightfield/compute/wgpu"
//
//	dev, err := compute.OpenDefault()
package compute
