// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernels

import (
	"math"

	"github.com/gogpu/lightfield/compute"
)

// Integral returns the integral over [a, b] of the unit-height spline
// profile with ascending breakpoints taus. The profile is
//
//	rect:      1 on [τ0, τ1]
//	trapezoid: 0→1 on [τ0, τ1], 1 on [τ1, τ2], 1→0 on [τ2, τ3]
//	quad:      a box swept along two more boxes, see [Quad]
//
// Degenerate ramps (zero width) contribute nothing.
func Integral(kind compute.TableKind, taus []float64, a, b float64) float64 {
	if !(b > a) {
		return 0
	}
	switch kind {
	case compute.TableRect:
		return clamp(b, taus[0], taus[1]) - clamp(a, taus[0], taus[1])
	case compute.TableTrapezoid:
		return trapezoid(taus[0], taus[1], taus[2], taus[3], a, b)
	case compute.TableQuad:
		q := NewQuad(taus)
		return q.area(b) - q.area(a)
	}
	return 0
}

// Profile returns the value at x of the unit-height spline profile with
// ascending breakpoints taus.
func Profile(kind compute.TableKind, taus []float64, x float64) float64 {
	switch kind {
	case compute.TableRect:
		if x >= taus[0] && x <= taus[1] {
			return 1
		}
		return 0
	case compute.TableTrapezoid:
		return trapezoidAt(taus[0], taus[1], taus[2], taus[3], x)
	case compute.TableQuad:
		return NewQuad(taus).at(x)
	}
	return 0
}

// Quad is the footprint of a box of width W0 whose position is spread
// uniformly over two further boxes of widths W1 >= W2: the convolution of
// the three boxes divided by W1*W2. Its eight breakpoints are
// C ± (W0 ± W1 ± W2)/2. When W0 is the largest width the profile has unit
// height, and it reduces to the trapezoid (W2 = 0) or the rect (W1 = 0).
type Quad struct {
	C        float64 // center
	H        float64 // half width of the swept box
	Min, Mid float64 // widths of the two spreading boxes
}

// NewQuad recovers a Quad from its ascending breakpoints. The widest of
// the three boxes is taken as the swept one.
func NewQuad(taus []float64) Quad {
	wMin := taus[1] - taus[0]
	wMid := taus[2] - taus[0]
	return Quad{
		C:   0.5 * (taus[0] + taus[7]),
		H:   0.5 * (taus[7] - taus[0] - wMid - wMin),
		Min: wMin,
		Mid: wMid,
	}
}

// QuadBreakpoints returns the ascending breakpoints of the footprint of a
// box of width w0 centered at c spread over boxes of widths w1 and w2.
func QuadBreakpoints(c, w0, w1, w2 float64) [8]float64 {
	var taus [8]float64
	m := 0
	for _, s0 := range [2]float64{-0.5, 0.5} {
		for _, s1 := range [2]float64{-0.5, 0.5} {
			for _, s2 := range [2]float64{-0.5, 0.5} {
				taus[m] = c + s0*math.Abs(w0) + s1*math.Abs(w1) + s2*math.Abs(w2)
				m++
			}
		}
	}
	sortSmall(taus[:])
	return taus
}

func sortSmall(v []float64) {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j] < v[j-1]; j-- {
			v[j], v[j-1] = v[j-1], v[j]
		}
	}
}

// at returns the profile at x.
func (q Quad) at(x float64) float64 {
	y := x - q.C
	return q.cdf(y+q.H) - q.cdf(y-q.H)
}

// area returns the integral of the profile over (-∞, x].
func (q Quad) area(x float64) float64 {
	y := x - q.C
	return q.cdf2(y+q.H) - q.cdf2(y-q.H)
}

// cdf is the distribution function of the unit-area trapezoid spanned by
// the two spreading boxes, centered at 0.
func (q Quad) cdf(y float64) float64 {
	if y > 0 {
		return 1 - q.lowerCDF(-y)
	}
	return q.lowerCDF(y)
}

func (q Quad) lowerCDF(y float64) float64 {
	if q.Mid <= 0 {
		return 0
	}
	p, r := 0.5*(q.Mid+q.Min), q.Min
	qq := p - r
	h := 1 / q.Mid
	switch {
	case y <= -p:
		return 0
	case y < -qq:
		return h * (y + p) * (y + p) / (2 * r)
	}
	return h*r/2 + h*(y+qq)
}

// cdf2 is the integral of cdf over (-∞, y].
func (q Quad) cdf2(y float64) float64 {
	if y > 0 {
		return y + q.lowerCDF2(-y)
	}
	return q.lowerCDF2(y)
}

func (q Quad) lowerCDF2(y float64) float64 {
	if q.Mid <= 0 {
		return 0
	}
	p, r := 0.5*(q.Mid+q.Min), q.Min
	qq := p - r
	h := 1 / q.Mid
	switch {
	case y <= -p:
		return 0
	case y < -qq:
		d := y + p
		return h * d * d * d / (6 * r)
	}
	d := y + qq
	return h*r*r/6 + h*r*d/2 + h*d*d/2
}

func trapezoidAt(t0, t1, t2, t3, x float64) float64 {
	switch {
	case x < t0 || x > t3:
		return 0
	case x < t1:
		return (x - t0) / (t1 - t0)
	case x <= t2:
		return 1
	default:
		return (t3 - x) / (t3 - t2)
	}
}

func trapezoid(t0, t1, t2, t3, a, b float64) float64 {
	var acc float64
	if t1 > t0 {
		l := clamp(a, t0, t1)
		r := clamp(b, t0, t1)
		acc += ((r-t0)*(r-t0) - (l-t0)*(l-t0)) / (2 * (t1 - t0))
	}
	acc += clamp(b, t1, t2) - clamp(a, t1, t2)
	if t3 > t2 {
		l := clamp(a, t2, t3)
		r := clamp(b, t2, t3)
		acc += ((t3-l)*(t3-l) - (t3-r)*(t3-r)) / (2 * (t3 - t2))
	}
	return acc
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
