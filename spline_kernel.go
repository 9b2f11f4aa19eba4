package lightfield

import (
	"fmt"
	"slices"

	"github.com/gogpu/lightfield/compute"
	"github.com/gogpu/lightfield/internal/kernels"
)

// SplineKernel is the analytic footprint of one row of a resampling
// operator: Height times a unit-height piecewise-linear profile with
// ascending breakpoints Taus.
//
// Breakpoints are in continuous input index units for output sample 0; for
// output sample i they shift by i*Mag.
type SplineKernel struct {
	Kind   compute.TableKind
	Height float64
	Mag    float64
	Taus   []float64
}

// NewRect returns a box footprint on [τ0, τ1].
func NewRect(height, mag, t0, t1 float64) SplineKernel {
	return newSplineKernel(compute.TableRect, height, mag, []float64{t0, t1})
}

// NewTrapezoid returns a trapezoidal footprint.
func NewTrapezoid(height, mag float64, taus [4]float64) SplineKernel {
	return newSplineKernel(compute.TableTrapezoid, height, mag, taus[:])
}

// NewQuad returns the footprint of a box of width w0 centered at center
// whose position spreads uniformly over two further boxes of widths w1 and
// w2, the footprint of a voxel under a shear. The profile is the
// convolution of the three boxes divided by the product of the two smaller
// widths, so it has unit height and total area max(w0, w1, w2).
func NewQuad(height, mag, center, w0, w1, w2 float64) SplineKernel {
	taus := kernels.QuadBreakpoints(center, w0, w1, w2)
	return SplineKernel{Kind: compute.TableQuad, Height: height, Mag: mag, Taus: taus[:]}
}

func newSplineKernel(kind compute.TableKind, height, mag float64, taus []float64) SplineKernel {
	sorted := slices.Clone(taus)
	slices.Sort(sorted)
	return SplineKernel{Kind: kind, Height: height, Mag: mag, Taus: sorted}
}

// Evaluate returns the footprint of output sample 0 at x.
func (k SplineKernel) Evaluate(x float64) float64 {
	return k.Height * kernels.Profile(k.Kind, k.Taus, x)
}

// Integral returns the weight of input interval [a, b] for output sample 0.
func (k SplineKernel) Integral(a, b float64) float64 {
	return k.Height * kernels.Integral(k.Kind, k.Taus, a, b)
}

// Shift returns the kernel of output sample i.
func (k SplineKernel) Shift(i int) SplineKernel {
	taus := make([]float64, len(k.Taus))
	for m, tau := range k.Taus {
		taus[m] = tau + float64(i)*k.Mag
	}
	return SplineKernel{Kind: k.Kind, Height: k.Height, Mag: k.Mag, Taus: taus}
}

// Support returns the first and last breakpoints.
func (k SplineKernel) Support() (lo, hi float64) {
	return k.Taus[0], k.Taus[len(k.Taus)-1]
}

// appendTo appends the table entry of k: height, magnification, breakpoints.
func (k SplineKernel) appendTo(table []float32) []float32 {
	table = append(table, float32(k.Height), float32(k.Mag))
	for _, tau := range k.Taus {
		table = append(table, float32(tau))
	}
	return table
}

func (k SplineKernel) String() string {
	return fmt.Sprintf("%v(h=%g, mag=%g, τ=%v)", k.Kind, k.Height, k.Mag, k.Taus)
}
