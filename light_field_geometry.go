package lightfield

import (
	"fmt"

	"github.com/gogpu/lightfield/compute"
)

// LightFieldGeometry is a sampled plane seen through an angular plane.
// ToPlane carries the plane's local (position, angle) coordinates to the
// root plane, where the angular samples live.
type LightFieldGeometry struct {
	Geom    SampledPlane
	Plane   AngularPlane
	ToPlane Optics2d
}

// NewLightFieldGeometry validates and returns a geometry.
func NewLightFieldGeometry(geom SampledPlane, plane AngularPlane, toPlane Optics2d) (LightFieldGeometry, error) {
	g := LightFieldGeometry{Geom: geom, Plane: plane, ToPlane: toPlane}
	if err := g.Validate(); err != nil {
		return LightFieldGeometry{}, err
	}
	return g, nil
}

// Validate checks the plane, the angular plane and the optics. A plane that
// is conjugate to the root plane (zero PA) has no angular parametrization.
func (g LightFieldGeometry) Validate() error {
	if err := g.Geom.Validate(); err != nil {
		return err
	}
	if err := g.Plane.validate(); err != nil {
		return err
	}
	for _, a := range []compute.Axis{compute.AxisS, compute.AxisT} {
		o := g.ToPlane.Axis(a)
		if o.PA == 0 || o.Determinant() == 0 {
			return fmt.Errorf("%w: %v axis optics %+v", ErrInvalidGeometry, a, o)
		}
	}
	return nil
}

// Na returns the number of angular samples.
func (g LightFieldGeometry) Na() int { return g.Plane.Na() }

// PixelVolume returns the squared norm of a pixel's basis function in root
// phase-space measure.
func (g LightFieldGeometry) PixelVolume() float64 {
	b, err := g.Plane.Basis.strategy()
	if err != nil {
		return 0
	}
	return b.pixelVolume(g.ToPlane.S, g.Geom.Ds, g.Plane.Ds) *
		b.pixelVolume(g.ToPlane.T, g.Geom.Dt, g.Plane.Dt)
}

// TransportTo returns the s and t kernels that gather this geometry's
// pixels onto the pixels of dst through angular sample ia.
func (g LightFieldGeometry) TransportTo(dst LightFieldGeometry, ia int) (s, t SplineKernel, err error) {
	if g.Plane.Basis != dst.Plane.Basis {
		return s, t, fmt.Errorf("%w: %v to %v", ErrBasisMismatch, g.Plane.Basis, dst.Plane.Basis)
	}
	b, err := g.Plane.Basis.strategy()
	if err != nil {
		return s, t, err
	}
	sample, err := g.Plane.Sample(ia)
	if err != nil {
		return s, t, err
	}
	ms, err := g.axisMap(dst, compute.AxisS, sample.S)
	if err != nil {
		return s, t, fmt.Errorf("s axis: %w", err)
	}
	mt, err := g.axisMap(dst, compute.AxisT, sample.T)
	if err != nil {
		return s, t, fmt.Errorf("t axis: %w", err)
	}
	return b.kernel(ms), b.kernel(mt), nil
}

func (g LightFieldGeometry) axisMap(dst LightFieldGeometry, a compute.Axis, u float64) (axisMap, error) {
	du := g.Plane.Ds
	if a == compute.AxisT {
		du = g.Plane.Dt
	}
	return newAxisMap(g.ToPlane.Axis(a), dst.ToPlane.Axis(a), u, du, g.Geom.axis(a), dst.Geom.axis(a))
}
