// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package kernels contains the host reference implementations of the
// compute kernels. Each function mirrors one WGSL entry point in
// compute/wgpu/shaders and consumes the same packed parameters, so the CPU
// device and the GPU device produce the same results up to float32 rounding.
//
// All functions process a half-open range [lo, hi) of output elements so
// callers can split work across goroutines.
package kernels
