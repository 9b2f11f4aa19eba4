package lightfield

import (
	"fmt"
	"math"

	"github.com/gogpu/lightfield/compute"
)

// basis is the per-basis part of the transport math.
type basis interface {
	// table is the kernel variant the basis produces.
	table() compute.TableKind

	// weight maps the unoccluded fraction of an angular cell to its weight.
	weight(open float64) float64

	// kernel returns the gather footprint of one axis.
	kernel(m axisMap) SplineKernel

	// pixelVolume returns the squared norm factor of one axis for a plane
	// with optics o, pixel pitch dp and angular pitch du.
	pixelVolume(o Optics1d, dp, du float64) float64
}

func (b AngularBasis) strategy() (basis, error) {
	switch b {
	case Dirac:
		return diracBasis{}, nil
	case Pillbox:
		return pillboxBasis{}, nil
	}
	return nil, fmt.Errorf("%w: unknown angular basis %d", ErrInvalidGeometry, int(b))
}

// axisMap describes, along one axis and for one angular sample u, how a
// source pixel maps onto a destination plane:
//
//	q = alpha*p + beta + gamma*(u' - u)
//
// for a ray leaving source position p through aperture position u'.
type axisMap struct {
	alpha, beta, gamma float64

	// gain converts (p, u) measure to root phase-space measure.
	gain float64

	src, dst sampledAxis
	du       float64
}

// newAxisMap derives the map from source optics rp and destination optics
// rq, both relative to the root plane.
func newAxisMap(rp, rq Optics1d, u, du float64, src, dst sampledAxis) (axisMap, error) {
	if rp.PA == 0 {
		return axisMap{}, fmt.Errorf("%w: source plane is conjugate to the root plane", ErrInvalidGeometry)
	}
	rqInv, err := rq.Invert()
	if err != nil {
		return axisMap{}, err
	}
	rqp := rqInv.Compose(rp)
	m := axisMap{
		alpha: rqp.PP - rp.PP*rqp.PA/rp.PA,
		beta:  rqp.CP + rqp.PA*(u-rp.CP)/rp.PA,
		gamma: rqp.PA / rp.PA,
		gain:  math.Abs(rp.Determinant() / rp.PA),
		src:   src,
		dst:   dst,
		du:    du,
	}
	if m.alpha == 0 || math.IsNaN(m.alpha) || math.IsInf(m.alpha, 0) {
		return axisMap{}, fmt.Errorf("%w: destination plane is conjugate to the root plane", ErrInvalidGeometry)
	}
	return m, nil
}

// center returns the source continuous index of the center of destination
// pixel 0.
func (m axisMap) center() float64 {
	q := m.dst.center(0)
	return m.src.index((q - m.beta) / m.alpha)
}

// mag is the shift in source index per destination pixel.
func (m axisMap) mag() float64 {
	return m.dst.d / (m.alpha * m.src.d)
}

// halfWidth is half the destination pixel in source index units.
func (m axisMap) halfWidth() float64 {
	return m.dst.d / (2 * math.Abs(m.alpha) * m.src.d)
}

type diracBasis struct{}

func (diracBasis) table() compute.TableKind { return compute.TableRect }

func (diracBasis) weight(float64) float64 { return 1 }

func (diracBasis) kernel(m axisMap) SplineKernel {
	c, a := m.center(), m.halfWidth()
	return NewRect(m.du*m.src.d*m.gain, m.mag(), c-a, c+a)
}

func (diracBasis) pixelVolume(o Optics1d, dp, du float64) float64 {
	return du / math.Abs(o.PA) * math.Abs(o.Determinant()) * dp
}

type pillboxBasis struct{}

func (pillboxBasis) table() compute.TableKind { return compute.TableTrapezoid }

func (pillboxBasis) weight(open float64) float64 { return open }

func (pillboxBasis) kernel(m axisMap) SplineKernel {
	c, a := m.center(), m.halfWidth()
	b := math.Abs(m.gamma) * m.du / (2 * math.Abs(m.alpha) * m.src.d)
	plateau := m.du
	if m.gamma != 0 {
		plateau = math.Min(m.du, m.dst.d/math.Abs(m.gamma))
	}
	inner := math.Abs(a - b)
	return NewTrapezoid(m.gain*m.src.d*plateau, m.mag(), [4]float64{c - (a + b), c - inner, c + inner, c + a + b})
}

func (pillboxBasis) pixelVolume(o Optics1d, dp, du float64) float64 {
	pa, pp := math.Abs(o.PA), math.Abs(o.PP)
	envelope := math.Max(du/(2*pa), dp*pp/(2*pa))
	h := dp
	if pp != 0 {
		h = math.Min(dp, du/pp)
	}
	return math.Abs(o.Determinant()) * 2 * envelope * h
}
