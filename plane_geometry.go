package lightfield

import (
	"fmt"
	"math"

	"github.com/gogpu/lightfield/compute"
)

// SampledPlane is a regular ns x nt pixel grid with pitches ds, dt.
//
// Offsets are unitless and measured in pixels: with zero offsets the grid is
// centered on the origin. Pixel 0 sits at the most negative coordinate. On
// the continuous index axis pixel j covers [j, j+1) and its center is j+0.5.
type SampledPlane struct {
	Ns, Nt           int
	Ds, Dt           float64
	OffsetS, OffsetT float64
}

// Validate reports ErrInvalidGeometry for non-positive sizes or pitches.
func (g SampledPlane) Validate() error {
	if g.Ns <= 0 || g.Nt <= 0 {
		return fmt.Errorf("%w: plane size %dx%d", ErrInvalidGeometry, g.Ns, g.Nt)
	}
	if !(g.Ds > 0) || !(g.Dt > 0) || math.IsInf(g.Ds, 0) || math.IsInf(g.Dt, 0) {
		return fmt.Errorf("%w: plane pitch (%v, %v)", ErrInvalidGeometry, g.Ds, g.Dt)
	}
	return nil
}

// Len returns the number of pixels.
func (g SampledPlane) Len() int { return g.Ns * g.Nt }

// Ws returns the index of the pixel centered on s = 0.
func (g SampledPlane) Ws() float64 { return float64(g.Ns-1)/2 + g.OffsetS }

// Wt returns the index of the pixel centered on t = 0.
func (g SampledPlane) Wt() float64 { return float64(g.Nt-1)/2 + g.OffsetT }

// IsToS returns the s coordinate of the center of pixel column is.
func (g SampledPlane) IsToS(is float64) float64 { return g.axis(compute.AxisS).center(is) }

// ItToT returns the t coordinate of the center of pixel row it.
func (g SampledPlane) ItToT(it float64) float64 { return g.axis(compute.AxisT).center(it) }

// SToIs returns the continuous index of s. floor(SToIs(s)) is the pixel
// containing s.
func (g SampledPlane) SToIs(s float64) float64 { return g.axis(compute.AxisS).index(s) }

// TToIt returns the continuous index of t.
func (g SampledPlane) TToIt(t float64) float64 { return g.axis(compute.AxisT).index(t) }

// PixelCenter returns the center of pixel (is, it).
func (g SampledPlane) PixelCenter(is, it int) (s, t float64) {
	return g.IsToS(float64(is)), g.ItToT(float64(it))
}

// PixelBounds returns the bounds of pixel (is, it).
func (g SampledPlane) PixelBounds(is, it int) (s0, s1, t0, t1 float64) {
	s, t := g.PixelCenter(is, it)
	return s - g.Ds/2, s + g.Ds/2, t - g.Dt/2, t + g.Dt/2
}

// SpatialBounds returns the outer edges of the grid.
func (g SampledPlane) SpatialBounds() (s0, s1, t0, t1 float64) {
	s0, _, t0, _ = g.PixelBounds(0, 0)
	_, s1, _, t1 = g.PixelBounds(g.Ns-1, g.Nt-1)
	return s0, s1, t0, t1
}

// RegionPixels returns the pixels that overlap [s0, s1] x [t0, t1],
// clipped to the grid. The region is empty when the box misses the grid.
func (g SampledPlane) RegionPixels(s0, s1, t0, t1 float64) PixelRegion {
	pix := func(x float64, n int) int {
		return int(math.Max(0, math.Min(x, float64(n))))
	}
	return PixelRegion{
		S0: pix(math.Floor(g.SToIs(s0)), g.Ns), S1: pix(math.Ceil(g.SToIs(s1)), g.Ns),
		T0: pix(math.Floor(g.TToIt(t0)), g.Nt), T1: pix(math.Ceil(g.TToIt(t1)), g.Nt),
	}
}

// FullRegion returns the region covering every pixel.
func (g SampledPlane) FullRegion() PixelRegion {
	return PixelRegion{S1: g.Ns, T1: g.Nt}
}

// Index returns the linear index of pixel (is, it); s varies fastest.
func (g SampledPlane) Index(is, it int) int { return it*g.Ns + is }

func (g SampledPlane) axis(a compute.Axis) sampledAxis {
	if a == compute.AxisT {
		return sampledAxis{n: g.Nt, d: g.Dt, w: g.Wt()}
	}
	return sampledAxis{n: g.Ns, d: g.Ds, w: g.Ws()}
}

// PixelRegion is the half-open pixel rectangle [S0, S1) x [T0, T1).
type PixelRegion struct {
	S0, S1, T0, T1 int
}

// Empty reports whether the region holds no pixel.
func (r PixelRegion) Empty() bool { return r.S1 <= r.S0 || r.T1 <= r.T0 }

// Len returns the number of pixels in the region.
func (r PixelRegion) Len() int {
	if r.Empty() {
		return 0
	}
	return (r.S1 - r.S0) * (r.T1 - r.T0)
}

// Contains reports whether pixel (is, it) lies in the region.
func (r PixelRegion) Contains(is, it int) bool {
	return is >= r.S0 && is < r.S1 && it >= r.T0 && it < r.T1
}

func (r PixelRegion) within(g SampledPlane) error {
	if r.Empty() || r.S0 < 0 || r.T0 < 0 || r.S1 > g.Ns || r.T1 > g.Nt {
		return fmt.Errorf("%w: region %+v of a %dx%d plane", ErrInvalidGeometry, r, g.Ns, g.Nt)
	}
	return nil
}

// sampledAxis is one axis of a SampledPlane or LightVolume.
type sampledAxis struct {
	n int
	d float64
	w float64
}

func (a sampledAxis) center(i float64) float64 { return (i - a.w) * a.d }

func (a sampledAxis) index(x float64) float64 { return x/a.d + a.w + 0.5 }
