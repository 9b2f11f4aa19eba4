package lightfield

import (
	"fmt"
	"math"
)

// AngularBasis selects how angular samples are represented.
type AngularBasis int

const (
	// Dirac samples are points. Each carries weight 1; its quadrature
	// weight ds*dt enters through the kernel height.
	Dirac AngularBasis = iota

	// Pillbox samples are boxes of one angular pitch, weighted by their
	// unoccluded area fraction.
	Pillbox
)

// String returns the basis name.
func (b AngularBasis) String() string {
	switch b {
	case Dirac:
		return "dirac"
	case Pillbox:
		return "pillbox"
	}
	return fmt.Sprintf("AngularBasis(%d)", int(b))
}

// AngularSample is one angular sample: a position on the aperture and its
// weight.
type AngularSample struct {
	S, T float64
	W    float64
}

// AngularPlane is the ordered set of angular samples of an aperture.
// Samples are ordered row-major by (it, is) of the rasterization grid.
type AngularPlane struct {
	Basis   AngularBasis
	Ds, Dt  float64
	Samples []AngularSample
}

// NewAngularPlane rasterizes a onto a discretization x discretization grid
// spanning its extent and keeps every cell that is not fully occluded.
func NewAngularPlane(a Aperture, basis AngularBasis, discretization int) (AngularPlane, error) {
	strategy, err := basis.strategy()
	if err != nil {
		return AngularPlane{}, err
	}
	if discretization <= 0 {
		return AngularPlane{}, fmt.Errorf("%w: discretization %d", ErrInvalidGeometry, discretization)
	}
	ext := a.Extent()
	if !(ext.RadiusS > 0) || !(ext.RadiusT > 0) {
		return AngularPlane{}, fmt.Errorf("%w: aperture radius (%v, %v)", ErrInvalidGeometry, ext.RadiusS, ext.RadiusT)
	}

	n := discretization
	grid := SampledPlane{Ns: n, Nt: n, Ds: 2 * ext.RadiusS / float64(n), Dt: 2 * ext.RadiusT / float64(n)}
	grid.OffsetS = -ext.CenterS / grid.Ds
	grid.OffsetT = -ext.CenterT / grid.Dt

	plane := AngularPlane{Basis: basis, Ds: grid.Ds, Dt: grid.Dt}
	for it := range n {
		for is := range n {
			s0, s1, t0, t1 := grid.PixelBounds(is, it)
			open := 1 - Rasterize(a, s0, s1, t0, t1, superSample)
			if open <= 0 {
				continue
			}
			s, t := grid.PixelCenter(is, it)
			plane.Samples = append(plane.Samples, AngularSample{S: s, T: t, W: strategy.weight(open)})
		}
	}
	return plane, nil
}

// Na returns the number of angular samples.
func (p AngularPlane) Na() int { return len(p.Samples) }

// Sample returns sample ia, or ErrAngleOutOfRange.
func (p AngularPlane) Sample(ia int) (AngularSample, error) {
	if ia < 0 || ia >= len(p.Samples) {
		return AngularSample{}, fmt.Errorf("%w: %d not in [0, %d)", ErrAngleOutOfRange, ia, len(p.Samples))
	}
	return p.Samples[ia], nil
}

// SubsetsStrided partitions the angle indices into k round-robin groups:
// group i holds i, i+k, i+2k, ... Groups are empty when k exceeds Na.
func (p AngularPlane) SubsetsStrided(k int) ([][]int, error) {
	if k <= 0 {
		return nil, fmt.Errorf("lightfield: subsets: k must be positive, got %d", k)
	}
	subsets := make([][]int, k)
	for i := range subsets {
		subsets[i] = make([]int, 0, (len(p.Samples)+k-1)/k)
	}
	for ia := range p.Samples {
		subsets[ia%k] = append(subsets[ia%k], ia)
	}
	return subsets, nil
}

// compatible reports whether transports between planes with p and q are
// well defined.
func (p AngularPlane) compatible(q AngularPlane) error {
	if p.Basis != q.Basis {
		return fmt.Errorf("%w: %v and %v", ErrBasisMismatch, p.Basis, q.Basis)
	}
	if p.Na() != q.Na() || p.Ds != q.Ds || p.Dt != q.Dt {
		return fmt.Errorf("%w: angular planes differ (%d vs %d samples)", ErrInvalidGeometry, p.Na(), q.Na())
	}
	return nil
}

func (p AngularPlane) validate() error {
	if _, err := p.Basis.strategy(); err != nil {
		return err
	}
	if len(p.Samples) == 0 {
		return fmt.Errorf("%w: empty angular plane", ErrInvalidGeometry)
	}
	if !(p.Ds > 0) || !(p.Dt > 0) || math.IsInf(p.Ds, 0) || math.IsInf(p.Dt, 0) {
		return fmt.Errorf("%w: angular pitch (%v, %v)", ErrInvalidGeometry, p.Ds, p.Dt)
	}
	return nil
}
