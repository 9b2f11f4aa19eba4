package lightfield

import (
	"fmt"
	"math"

	"github.com/gogpu/lightfield/compute"
)

// Optics1d is an affine map of one phase-space axis:
//
//	[p']   [PP PA] [p]   [CP]
//	[a'] = [AP AA] [a] + [CA]
//
// where p is a position and a an angle (slope).
type Optics1d struct {
	PP, PA float64
	AP, AA float64
	CP, CA float64
}

// Identity1d returns the identity map.
func Identity1d() Optics1d {
	return Optics1d{PP: 1, AA: 1}
}

// Translation1d returns free-space propagation over distance d.
func Translation1d(d float64) Optics1d {
	return Optics1d{PP: 1, PA: d, AA: 1}
}

// Refraction1d returns a thin lens of focal length f centered at center.
func Refraction1d(f, center float64) Optics1d {
	return Optics1d{PP: 1, AP: -1 / f, AA: 1, CA: center / f}
}

// Compose returns o∘rhs: rhs is applied first.
func (o Optics1d) Compose(rhs Optics1d) Optics1d {
	return Optics1d{
		PP: o.PP*rhs.PP + o.PA*rhs.AP,
		PA: o.PP*rhs.PA + o.PA*rhs.AA,
		AP: o.AP*rhs.PP + o.AA*rhs.AP,
		AA: o.AP*rhs.PA + o.AA*rhs.AA,
		CP: o.PP*rhs.CP + o.PA*rhs.CA + o.CP,
		CA: o.AP*rhs.CP + o.AA*rhs.CA + o.CA,
	}
}

// Then returns outer∘o: o is applied first.
func (o Optics1d) Then(outer Optics1d) Optics1d {
	return outer.Compose(o)
}

// Determinant returns the determinant of the 2x2 block.
func (o Optics1d) Determinant() float64 {
	return o.PP*o.AA - o.PA*o.AP
}

// Invert returns the inverse map, or ErrSingularOptics.
func (o Optics1d) Invert() (Optics1d, error) {
	det := o.Determinant()
	if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return Optics1d{}, fmt.Errorf("%w: determinant %v", ErrSingularOptics, det)
	}
	inv := Optics1d{
		PP: o.AA / det,
		PA: -o.PA / det,
		AP: -o.AP / det,
		AA: o.PP / det,
	}
	inv.CP = -(inv.PP*o.CP + inv.PA*o.CA)
	inv.CA = -(inv.AP*o.CP + inv.AA*o.CA)
	return inv, nil
}

// MustInvert is like Invert but panics on a singular map.
func (o Optics1d) MustInvert() Optics1d {
	inv, err := o.Invert()
	if err != nil {
		panic(err)
	}
	return inv
}

// Apply maps the ray (p, a).
func (o Optics1d) Apply(p, a float64) (float64, float64) {
	return o.PP*p + o.PA*a + o.CP, o.AP*p + o.AA*a + o.CA
}

// FocusedDistance returns the propagation distance after o at which rays
// leaving a common point meet again: the d for which o.Then(Translation1d(d))
// has a zero PA coefficient.
func (o Optics1d) FocusedDistance() float64 {
	return -o.PA / o.AA
}

// Optics2d is a separable pair of Optics1d for the s and t axes.
type Optics2d struct {
	S, T Optics1d
}

// Identity returns the identity map on both axes.
func Identity() Optics2d {
	return Optics2d{S: Identity1d(), T: Identity1d()}
}

// Translation returns free-space propagation over distance d.
func Translation(d float64) Optics2d {
	return Optics2d{S: Translation1d(d), T: Translation1d(d)}
}

// Refraction returns an anisotropic thin lens.
func Refraction(fs, ft, centerS, centerT float64) Optics2d {
	return Optics2d{S: Refraction1d(fs, centerS), T: Refraction1d(ft, centerT)}
}

// Compose returns o∘rhs on both axes.
func (o Optics2d) Compose(rhs Optics2d) Optics2d {
	return Optics2d{S: o.S.Compose(rhs.S), T: o.T.Compose(rhs.T)}
}

// Then returns outer∘o on both axes.
func (o Optics2d) Then(outer Optics2d) Optics2d {
	return outer.Compose(o)
}

// Invert inverts both axes.
func (o Optics2d) Invert() (Optics2d, error) {
	s, err := o.S.Invert()
	if err != nil {
		return Optics2d{}, fmt.Errorf("s axis: %w", err)
	}
	t, err := o.T.Invert()
	if err != nil {
		return Optics2d{}, fmt.Errorf("t axis: %w", err)
	}
	return Optics2d{S: s, T: t}, nil
}

// MustInvert is like Invert but panics on a singular map.
func (o Optics2d) MustInvert() Optics2d {
	inv, err := o.Invert()
	if err != nil {
		panic(err)
	}
	return inv
}

// Axis returns the map of one axis.
func (o Optics2d) Axis(a compute.Axis) Optics1d {
	if a == compute.AxisT {
		return o.T
	}
	return o.S
}
