// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernels

import (
	"math"

	"github.com/gogpu/lightfield/compute"
)

// maxBreakpoints is the breakpoint count of the largest table variant.
const maxBreakpoints = 8

// Filter computes output elements [lo, hi) of one separable filter pass,
// counted over the output window in s-fastest order.
//
// For output sample i along the filtered axis the kernel entry describes a
// footprint on the input axis with breakpoints τ + i*mag, measured in
// continuous input index units where input sample j covers [j, j+1]. The
// output is scale*height times the footprint-weighted sum of the input
// samples inside the input range.
//
// p must have been validated against the slice lengths.
func Filter(p compute.FilterParams, table, in, out []float32, lo, hi int) {
	p = p.Resolved()
	nb := p.Kind.Breakpoints()
	stride := p.Kind.Stride()
	perLine := p.Flags&compute.FilterPerLine != 0
	overwrite := p.Flags&compute.FilterOverwrite != 0
	conservative := p.Flags&compute.FilterConservative != 0

	nsIn, ntIn := int(p.InShape[0]), int(p.InShape[1])
	nsOut, ntOut := int(p.OutShape[0]), int(p.OutShape[1])
	inBase := int(p.InSlice) * nsIn * ntIn
	outBase := int(p.OutSlice) * nsOut * ntOut
	jLo, jHi := float64(p.InRange[0]), float64(p.InRange[1])
	ew := int(p.OutExtent[0])

	var taus [maxBreakpoints]float64
	for g := lo; g < hi; g++ {
		is := int(p.OutOrigin[0]) + g%ew
		it := int(p.OutOrigin[1]) + g/ew

		// i indexes the filtered axis of the output; input sample j along
		// that axis lives at base + j*step.
		var i, base, step, line int
		switch p.Axis {
		case compute.AxisS:
			i, base, step, line = is, inBase+it*nsIn, 1, it
		case compute.AxisT:
			i, base, step, line = it, inBase+is, nsIn, is
		default:
			i, base, step, line = int(p.OutSlice), it*nsIn+is, nsIn*ntIn, it*nsOut+is
		}
		k := int(p.KernelIndex)
		if perLine {
			k += line
		}
		entry := table[k*stride : (k+1)*stride]

		shift := float64(i) * float64(entry[1])
		for m := range nb {
			taus[m] = float64(entry[2+m]) + shift
		}
		first, last := taus[0], taus[nb-1]

		var acc float64
		if finite(first) && finite(last) {
			j0 := int(clamp(math.Floor(first), jLo, jHi))
			j1 := int(clamp(math.Ceil(last), jLo, jHi))
			for j := j0; j < j1; j++ {
				w := Integral(p.Kind, taus[:nb], float64(j), float64(j+1))
				acc += w * float64(in[base+j*step])
			}
			if conservative {
				if first < jLo {
					acc += Integral(p.Kind, taus[:nb], first, math.Min(jLo, last)) * float64(in[base+int(jLo)*step])
				}
				if last > jHi {
					acc += Integral(p.Kind, taus[:nb], math.Max(jHi, first), last) * float64(in[base+(int(jHi)-1)*step])
				}
			}
		}

		v := float32(float64(p.Scale) * float64(entry[0]) * acc)
		o := outBase + it*nsOut + is
		if overwrite {
			out[o] = v
		} else {
			out[o] += v
		}
	}
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

// Scale computes output elements [lo, hi) of the scale kernel.
func Scale(p compute.ScaleParams, in, out []float32, lo, hi int) {
	f := p.Factor
	if p.Flags&compute.ScaleOverwrite != 0 {
		for i := lo; i < hi; i++ {
			out[i] = f * in[i]
		}
		return
	}
	for i := lo; i < hi; i++ {
		out[i] += f * in[i]
	}
}

// Mask computes output elements [lo, hi) of the mask kernel.
func Mask(p compute.MaskParams, mask, in, out []float32, lo, hi int) {
	if p.Flags&compute.MaskOverwrite != 0 {
		for i := lo; i < hi; i++ {
			out[i] = mask[i] * in[i]
		}
		return
	}
	for i := lo; i < hi; i++ {
		out[i] += mask[i] * in[i]
	}
}

// Fill sets out[lo:hi] to value.
func Fill(out []float32, value float32, lo, hi int) {
	for i := lo; i < hi; i++ {
		out[i] = value
	}
}
