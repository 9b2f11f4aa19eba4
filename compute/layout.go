// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compute

import (
	"encoding/binary"
	"fmt"
	"math"
)

// LayoutVersion identifies the binary parameter layout shared by the host
// packers below and the WGSL shaders. Bump it together with the shaders
// whenever a field is added, removed or reordered.
//
// Rules:
//   - scalars are little-endian 32-bit values in declaration order
//   - a 3-component vector occupies 16 bytes: three components followed by
//     one zero pad word (WGSL vec3 alignment)
//   - every parameter block is a multiple of 16 bytes (uniform buffer rule)
const LayoutVersion uint32 = 2

// Axis selects the grid axis a filter pass resamples.
type Axis uint32

const (
	AxisS Axis = 0
	AxisT Axis = 1

	// AxisZ resamples across slices: the pass writes slice OutSlice of the
	// output from the whole input volume.
	AxisZ Axis = 2
)

func (a Axis) String() string {
	switch a {
	case AxisS:
		return "s"
	case AxisT:
		return "t"
	case AxisZ:
		return "z"
	}
	return fmt.Sprintf("Axis(%d)", uint32(a))
}

// TableKind is the spline-kernel variant stored in a kernel table.
type TableKind uint32

const (
	TableRect      TableKind = 0
	TableTrapezoid TableKind = 1
	TableQuad      TableKind = 2
)

// Breakpoints returns the number of breakpoints of the variant.
func (k TableKind) Breakpoints() int {
	switch k {
	case TableRect:
		return 2
	case TableTrapezoid:
		return 4
	case TableQuad:
		return 8
	}
	return 0
}

// Stride returns the number of float32 words per table entry:
// height, magnification and the breakpoints.
func (k TableKind) Stride() int { return 2 + k.Breakpoints() }

func (k TableKind) String() string {
	switch k {
	case TableRect:
		return "rect"
	case TableTrapezoid:
		return "trapezoid"
	case TableQuad:
		return "quad"
	}
	return fmt.Sprintf("TableKind(%d)", uint32(k))
}

// FilterFlags control how a filter pass writes its output.
type FilterFlags uint32

const (
	// FilterOverwrite replaces the output instead of accumulating into it.
	FilterOverwrite FilterFlags = 1 << 0

	// FilterConservative assigns footprint mass that falls outside the input
	// range to the nearest edge sample instead of dropping it.
	FilterConservative FilterFlags = 1 << 1

	// FilterPerLine gives every line of the pass its own table entry:
	// KernelIndex plus the line number, where a line is one t row (s
	// pass), one s column (t pass) or one (s, t) column of the slice
	// (z pass, numbered t*ns+s).
	FilterPerLine FilterFlags = 1 << 2
)

// ScaleFlags control how the scale kernel writes its output.
type ScaleFlags uint32

// ScaleOverwrite replaces the output instead of accumulating into it.
const ScaleOverwrite ScaleFlags = 1 << 0

// MaskFlags control how the mask kernel writes its output.
type MaskFlags uint32

// MaskOverwrite replaces the output instead of accumulating into it.
const MaskOverwrite MaskFlags = 1 << 0

// FilterParams are the parameters of one separable filter pass.
//
// Grids are stored with s varying fastest: element (is, it) of slice iz of a
// grid with shape (ns, nt, nz) is at index (iz*nt+it)*ns+is. The pass maps an
// input grid to an output grid that agrees with it on the axes that are not
// filtered.
//
// OutOrigin and OutExtent select the (s, t) rectangle of the output slice
// that is written; InRange is the half-open range of input samples read
// along the filtered axis. Kernel breakpoints are always measured in
// indices of the whole grids. Zero values select everything.
//
// Matches the WGSL struct in filter.wgsl:
//
//	struct FilterParams {
//	    in_shape:     vec3<i32>, // offset 0
//	    _pad0:        i32,       // offset 12
//	    out_shape:    vec3<i32>, // offset 16
//	    _pad1:        i32,       // offset 28
//	    in_slice:     i32,       // offset 32
//	    out_slice:    i32,       // offset 36
//	    axis:         u32,       // offset 40
//	    kind:         u32,       // offset 44
//	    kernel_index: u32,       // offset 48
//	    flags:        u32,       // offset 52
//	    scale:        f32,       // offset 56
//	    _pad2:        u32,       // offset 60
//	    out_origin:   vec2<i32>, // offset 64
//	    out_extent:   vec2<i32>, // offset 72
//	    in_range:     vec2<i32>, // offset 80
//	    _pad3:        vec2<i32>, // offset 88
//	}
type FilterParams struct {
	InShape     [3]int32
	OutShape    [3]int32
	InSlice     int32
	OutSlice    int32
	Axis        Axis
	Kind        TableKind
	KernelIndex uint32
	Flags       FilterFlags
	Scale       float32
	OutOrigin   [2]int32
	OutExtent   [2]int32
	InRange     [2]int32
}

// FilterParamsSize is the packed size of FilterParams in bytes.
const FilterParamsSize = 96

// Resolved returns p with zero windows replaced by the whole grids.
func (p FilterParams) Resolved() FilterParams {
	if p.OutExtent == [2]int32{} {
		p.OutExtent = [2]int32{p.OutShape[0] - p.OutOrigin[0], p.OutShape[1] - p.OutOrigin[1]}
	}
	if p.InRange == [2]int32{} && p.Axis <= AxisZ {
		p.InRange = [2]int32{0, p.InShape[p.Axis]}
	}
	return p
}

// Bytes packs p, with its windows resolved, into its device layout.
func (p FilterParams) Bytes() []byte {
	p = p.Resolved()
	w := newLayoutWriter(FilterParamsSize)
	w.vec3i(p.InShape)
	w.vec3i(p.OutShape)
	w.i32(p.InSlice)
	w.i32(p.OutSlice)
	w.u32(uint32(p.Axis))
	w.u32(uint32(p.Kind))
	w.u32(p.KernelIndex)
	w.u32(uint32(p.Flags))
	w.f32(p.Scale)
	w.pad()
	w.vec2i(p.OutOrigin)
	w.vec2i(p.OutExtent)
	w.vec2i(p.InRange)
	w.pad()
	w.pad()
	return w.bytes()
}

// DecodeFilterParams unpacks a FilterParams block.
func DecodeFilterParams(b []byte) (FilterParams, error) {
	var p FilterParams
	r := layoutReader{buf: b}
	if len(b) != FilterParamsSize {
		return p, fmt.Errorf("compute: filter params: got %d bytes, want %d", len(b), FilterParamsSize)
	}
	p.InShape = r.vec3i()
	p.OutShape = r.vec3i()
	p.InSlice = r.i32()
	p.OutSlice = r.i32()
	p.Axis = Axis(r.u32())
	p.Kind = TableKind(r.u32())
	p.KernelIndex = r.u32()
	p.Flags = FilterFlags(r.u32())
	p.Scale = r.f32()
	r.u32()
	p.OutOrigin = r.vec2i()
	p.OutExtent = r.vec2i()
	p.InRange = r.vec2i()
	return p, nil
}

// OutLen returns the number of output elements one pass writes.
func (p FilterParams) OutLen() int {
	p = p.Resolved()
	return int(p.OutExtent[0]) * int(p.OutExtent[1])
}

// Lines returns the number of table entries a FilterPerLine pass reads
// beyond KernelIndex.
func (p FilterParams) Lines() int {
	p = p.Resolved()
	lastS := int(p.OutOrigin[0] + p.OutExtent[0])
	lastT := int(p.OutOrigin[1] + p.OutExtent[1])
	switch p.Axis {
	case AxisS:
		return lastT
	case AxisT:
		return lastS
	}
	return (lastT-1)*int(p.OutShape[0]) + lastS
}

// Validate checks p against the lengths of the bound buffers.
func (p FilterParams) Validate(tableLen, inLen, outLen int) error {
	p = p.Resolved()
	for i := range 3 {
		if p.InShape[i] <= 0 || p.OutShape[i] <= 0 {
			return fmt.Errorf("%w: filter shapes %v -> %v", ErrBufferSize, p.InShape, p.OutShape)
		}
	}
	switch p.Axis {
	case AxisS:
		if p.InShape[1] != p.OutShape[1] {
			return fmt.Errorf("%w: s pass needs matching nt (%d != %d)", ErrBufferSize, p.InShape[1], p.OutShape[1])
		}
	case AxisT:
		if p.InShape[0] != p.OutShape[0] {
			return fmt.Errorf("%w: t pass needs matching ns (%d != %d)", ErrBufferSize, p.InShape[0], p.OutShape[0])
		}
	case AxisZ:
		if p.InShape[0] != p.OutShape[0] || p.InShape[1] != p.OutShape[1] {
			return fmt.Errorf("%w: z pass needs matching slices (%v != %v)", ErrBufferSize, p.InShape, p.OutShape)
		}
		if p.InSlice != 0 {
			return fmt.Errorf("compute: z pass reads every slice, got in slice %d", p.InSlice)
		}
	default:
		return fmt.Errorf("compute: invalid axis %d", p.Axis)
	}
	if p.Kind.Breakpoints() == 0 {
		return fmt.Errorf("compute: invalid table kind %d", p.Kind)
	}
	if p.InSlice < 0 || p.InSlice >= p.InShape[2] || p.OutSlice < 0 || p.OutSlice >= p.OutShape[2] {
		return fmt.Errorf("%w: slice %d/%d out of range", ErrBufferSize, p.InSlice, p.OutSlice)
	}
	for i := range 2 {
		if p.OutOrigin[i] < 0 || p.OutExtent[i] <= 0 || p.OutOrigin[i]+p.OutExtent[i] > p.OutShape[i] {
			return fmt.Errorf("%w: output window %v+%v outside %v", ErrBufferSize, p.OutOrigin, p.OutExtent, p.OutShape)
		}
	}
	if p.InRange[0] < 0 || p.InRange[0] >= p.InRange[1] || p.InRange[1] > p.InShape[p.Axis] {
		return fmt.Errorf("%w: input range %v outside %d samples", ErrBufferSize, p.InRange, p.InShape[p.Axis])
	}
	if need := volume(p.InShape); inLen < need {
		return fmt.Errorf("%w: input has %d elements, need %d", ErrBufferSize, inLen, need)
	}
	if need := volume(p.OutShape); outLen < need {
		return fmt.Errorf("%w: output has %d elements, need %d", ErrBufferSize, outLen, need)
	}
	entries := 1
	if p.Flags&FilterPerLine != 0 {
		entries = p.Lines()
	}
	if end := (int(p.KernelIndex) + entries) * p.Kind.Stride(); tableLen < end {
		return fmt.Errorf("%w: kernels %d..%d beyond table of %d words", ErrBufferSize, p.KernelIndex, int(p.KernelIndex)+entries-1, tableLen)
	}
	return nil
}

func volume(shape [3]int32) int {
	return int(shape[0]) * int(shape[1]) * int(shape[2])
}

// ScaleParams are the parameters of the scale kernel:
// out[i] = factor*in[i] (overwrite) or out[i] += factor*in[i].
//
//	struct ScaleParams {
//	    len:    u32, // offset 0
//	    flags:  u32, // offset 4
//	    factor: f32, // offset 8
//	    _pad:   u32, // offset 12
//	}
type ScaleParams struct {
	Len    uint32
	Flags  ScaleFlags
	Factor float32
}

// ScaleParamsSize is the packed size of ScaleParams in bytes.
const ScaleParamsSize = 16

// Bytes packs p into its device layout.
func (p ScaleParams) Bytes() []byte {
	w := newLayoutWriter(ScaleParamsSize)
	w.u32(p.Len)
	w.u32(uint32(p.Flags))
	w.f32(p.Factor)
	w.pad()
	return w.bytes()
}

// DecodeScaleParams unpacks a ScaleParams block.
func DecodeScaleParams(b []byte) (ScaleParams, error) {
	var p ScaleParams
	if len(b) != ScaleParamsSize {
		return p, fmt.Errorf("compute: scale params: got %d bytes, want %d", len(b), ScaleParamsSize)
	}
	r := layoutReader{buf: b}
	p.Len = r.u32()
	p.Flags = ScaleFlags(r.u32())
	p.Factor = r.f32()
	return p, nil
}

// MaskParams are the parameters of the mask kernel:
// out[i] = mask[i]*in[i] (overwrite) or out[i] += mask[i]*in[i].
//
//	struct MaskParams {
//	    len:   u32, // offset 0
//	    flags: u32, // offset 4
//	    _pad0: u32,
//	    _pad1: u32,
//	}
type MaskParams struct {
	Len   uint32
	Flags MaskFlags
}

// MaskParamsSize is the packed size of MaskParams in bytes.
const MaskParamsSize = 16

// Bytes packs p into its device layout.
func (p MaskParams) Bytes() []byte {
	w := newLayoutWriter(MaskParamsSize)
	w.u32(p.Len)
	w.u32(uint32(p.Flags))
	w.pad()
	w.pad()
	return w.bytes()
}

// DecodeMaskParams unpacks a MaskParams block.
func DecodeMaskParams(b []byte) (MaskParams, error) {
	var p MaskParams
	if len(b) != MaskParamsSize {
		return p, fmt.Errorf("compute: mask params: got %d bytes, want %d", len(b), MaskParamsSize)
	}
	r := layoutReader{buf: b}
	p.Len = r.u32()
	p.Flags = MaskFlags(r.u32())
	return p, nil
}

// FillParams are the parameters of the fill operation.
//
//	struct FillParams {
//	    len:   u32, // offset 0
//	    value: f32, // offset 4
//	    _pad0: u32,
//	    _pad1: u32,
//	}
type FillParams struct {
	Len   uint32
	Value float32
}

// FillParamsSize is the packed size of FillParams in bytes.
const FillParamsSize = 16

// Bytes packs p into its device layout.
func (p FillParams) Bytes() []byte {
	w := newLayoutWriter(FillParamsSize)
	w.u32(p.Len)
	w.f32(p.Value)
	w.pad()
	w.pad()
	return w.bytes()
}

// Float32Bytes converts values to little-endian bytes for upload.
func Float32Bytes(values []float32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

// BytesFloat32 decodes little-endian bytes into out. It returns the number
// of values decoded.
func BytesFloat32(b []byte, out []float32) int {
	n := min(len(b)/4, len(out))
	for i := range n {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return n
}

type layoutWriter struct {
	buf []byte
}

func newLayoutWriter(size int) *layoutWriter {
	return &layoutWriter{buf: make([]byte, 0, size)}
}

func (w *layoutWriter) u32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *layoutWriter) i32(v int32) { w.u32(uint32(v)) } //nolint:gosec // two's complement bit pattern

func (w *layoutWriter) f32(v float32) { w.u32(math.Float32bits(v)) }

func (w *layoutWriter) pad() { w.u32(0) }

func (w *layoutWriter) vec3i(v [3]int32) {
	w.i32(v[0])
	w.i32(v[1])
	w.i32(v[2])
	w.pad()
}

func (w *layoutWriter) vec2i(v [2]int32) {
	w.i32(v[0])
	w.i32(v[1])
}

func (w *layoutWriter) bytes() []byte { return w.buf }

type layoutReader struct {
	buf []byte
	off int
}

func (r *layoutReader) u32() uint32 {
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *layoutReader) i32() int32 { return int32(r.u32()) } //nolint:gosec // two's complement bit pattern

func (r *layoutReader) f32() float32 { return math.Float32frombits(r.u32()) }

func (r *layoutReader) vec3i() [3]int32 {
	v := [3]int32{r.i32(), r.i32(), r.i32()}
	r.off += 4
	return v
}

func (r *layoutReader) vec2i() [2]int32 {
	return [2]int32{r.i32(), r.i32()}
}
