package lightfield

import (
	"fmt"

	"github.com/gogpu/lightfield/compute"
)

// LensArray projects the light field on a microlens array plane onto a
// detector behind it, and back.
//
// The array is the last element before the detector. Light that misses
// every lens is blocked by the mask; light through a lens reaches only the
// detector pixels behind that lens.
//
// Calls into one LensArray share its scratch buffers and must be ordered
// through their events.
type LensArray struct {
	dev       compute.Device
	array     LightFieldGeometry
	detector  SampledPlane
	overwrite bool
	mask      *Mask
	lenses    []*Transport
	tmp       *compute.Buffer
	scratch   *compute.Buffer
}

var _ Projector = (*LensArray)(nil)

// NewLensArray builds the per-lens transports from the array plane to the
// detector at distance behind it.
//
// The transports accumulate, weight each angle for a detector and are not
// conservative unless opts say otherwise. WithOverwrite(true) makes
// ForwAngle clear the detector first and BackAngle replace the array view.
// Lenses that miss the array plane are skipped.
func NewLensArray(dev compute.Device, array LightFieldGeometry, detector SampledPlane, distance float64,
	lenses []Lens, opts ...TransportOption,
) (*LensArray, error) {
	wrap := func(err error) error { return fmt.Errorf("lightfield: new lens array: %w", err) }
	o := transportOptions{ontoDetector: true}
	for _, opt := range opts {
		opt(&o)
	}
	if err := array.Validate(); err != nil {
		return nil, wrap(err)
	}
	if err := detector.Validate(); err != nil {
		return nil, wrap(fmt.Errorf("detector: %w", err))
	}

	la := &LensArray{dev: dev, array: array, detector: detector, overwrite: o.overwrite}
	var err error
	la.tmp, err = dev.NewBuffer("lens_array_tmp", transportScratchLen(array.Geom, detector))
	if err != nil {
		return nil, wrap(err)
	}
	la.scratch, err = dev.NewBuffer("lens_array_scratch", array.Geom.Len())
	if err != nil {
		la.Release()
		return nil, wrap(err)
	}

	openings := make([]Occluder, 0, len(lenses))
	for i, lens := range lenses {
		ext := lens.Extent()
		s0, s1 := ext.CenterS-ext.RadiusS, ext.CenterS+ext.RadiusS
		t0, t1 := ext.CenterT-ext.RadiusT, ext.CenterT+ext.RadiusT
		src := array.Geom.RegionPixels(s0, s1, t0, t1)
		dst := detector.RegionPixels(s0, s1, t0, t1)
		if src.Empty() || dst.Empty() {
			Logger().Debug("lightfield: lens misses the array", "lens", i, "center", [2]float64{lens.CenterS, lens.CenterT})
			continue
		}
		det := LightFieldGeometry{
			Geom:    detector,
			Plane:   array.Plane,
			ToPlane: Translation(distance).Then(lens.Optics()).Then(array.ToPlane),
		}
		lensOpts := []TransportOption{
			WithOntoDetector(o.ontoDetector),
			WithConservative(o.conservative),
			WithOverwrite(false),
			WithSourceRegion(src),
			WithDestinationRegion(dst),
		}
		tr, err := newTransport(dev, array, det, la.tmp, lensOpts...)
		if err != nil {
			la.Release()
			return nil, wrap(fmt.Errorf("lens %d: %w", i, err))
		}
		la.lenses = append(la.lenses, tr)
		openings = append(openings, lens)
	}
	if len(la.lenses) == 0 {
		la.Release()
		return nil, wrap(fmt.Errorf("%w: no lens covers the array plane", ErrInvalidGeometry))
	}

	la.mask, err = NewMask(dev, array.Geom, OccluderMask(array.Geom, openings...))
	if err != nil {
		la.Release()
		return nil, wrap(err)
	}
	Logger().Info("lightfield: lens array ready",
		"device", dev.Name(), "lenses", len(la.lenses), "skipped", len(lenses)-len(la.lenses),
		"array", [2]int{array.Geom.Ns, array.Geom.Nt}, "detector", [2]int{detector.Ns, detector.Nt})
	return la, nil
}

// Na returns the number of angular samples.
func (la *LensArray) Na() int { return la.array.Na() }

// Lenses returns the number of lenses that cover the array plane.
func (la *LensArray) Lenses() int { return len(la.lenses) }

// Mask returns the array-plane mask.
func (la *LensArray) Mask() *Mask { return la.mask }

// ForwAngle masks view and projects it through every lens onto det.
func (la *LensArray) ForwAngle(view compute.Readable, det *compute.Buffer, ia int, waitFor []*compute.Event) (*compute.Event, error) {
	if err := la.checkAngle(ia); err != nil {
		return nil, err
	}
	wrap := func(err error) error {
		return fmt.Errorf("lightfield: lens array forw angle %d: %w", ia, err)
	}
	masked, err := la.mask.Apply(view, la.scratch, waitFor)
	if err != nil {
		return nil, wrap(err)
	}
	last := masked
	if la.overwrite {
		cleared, err := la.dev.Fill(det, 0, waitFor)
		if err != nil {
			return nil, wrap(err)
		}
		last = compute.Join("lens array forw", compute.Deps(masked, cleared))
	}
	for i, tr := range la.lenses {
		if last, err = tr.ForwAngle(la.scratch.Const(), det, ia, compute.Deps(last)); err != nil {
			return nil, wrap(fmt.Errorf("lens %d: %w", i, err))
		}
	}
	Logger().Debug("lightfield: lens array forw", "angle", ia, "lenses", len(la.lenses))
	return last, nil
}

// BackAngle backprojects det through every lens and masks the result into
// view. It is the adjoint of ForwAngle.
func (la *LensArray) BackAngle(det compute.Readable, view *compute.Buffer, ia int, waitFor []*compute.Event) (*compute.Event, error) {
	if err := la.checkAngle(ia); err != nil {
		return nil, err
	}
	wrap := func(err error) error {
		return fmt.Errorf("lightfield: lens array back angle %d: %w", ia, err)
	}
	last, err := la.dev.Fill(la.scratch, 0, waitFor)
	if err != nil {
		return nil, wrap(err)
	}
	for i, tr := range la.lenses {
		if last, err = tr.BackAngle(det, la.scratch, ia, compute.Deps(last)); err != nil {
			return nil, wrap(fmt.Errorf("lens %d: %w", i, err))
		}
	}
	Logger().Debug("lightfield: lens array back", "angle", ia, "lenses", len(la.lenses))
	if la.overwrite {
		last, err = la.mask.Apply(la.scratch.Const(), view, compute.Deps(last))
	} else {
		last, err = la.mask.Accumulate(la.scratch.Const(), view, compute.Deps(last))
	}
	if err != nil {
		return nil, wrap(err)
	}
	return last, nil
}

// Release frees the transports, the mask and the scratch buffers.
func (la *LensArray) Release() {
	for _, tr := range la.lenses {
		tr.Release()
	}
	la.lenses = nil
	if la.mask != nil {
		la.mask.Release()
	}
	if la.tmp != nil {
		la.tmp.Release()
	}
	if la.scratch != nil {
		la.scratch.Release()
	}
}

func (la *LensArray) checkAngle(ia int) error {
	if ia < 0 || ia >= la.Na() {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrAngleOutOfRange, ia, la.Na())
	}
	return nil
}

// TessellateQuad covers geom with copies of lens on a square grid of pitch
// twice its radii. The first lens touches the lower bounds of geom.
func TessellateQuad(geom SampledPlane, lens Lens) []Lens {
	return tessellate(geom, lens.RadiusS, lens.RadiusT, func(int, int) Lens { return lens })
}

// TessellateQuad2 is like TessellateQuad with a and b alternating in a
// checkerboard, a at the first lens. The lenses must share their radii.
func TessellateQuad2(geom SampledPlane, a, b Lens) ([]Lens, error) {
	if a.RadiusS != b.RadiusS || a.RadiusT != b.RadiusT {
		return nil, fmt.Errorf("%w: lens radii (%v, %v) and (%v, %v) differ",
			ErrInvalidGeometry, a.RadiusS, a.RadiusT, b.RadiusS, b.RadiusT)
	}
	return tessellate(geom, a.RadiusS, a.RadiusT, func(is, it int) Lens {
		if (is+it)%2 == 0 {
			return a
		}
		return b
	}), nil
}

func tessellate(geom SampledPlane, rs, rt float64, pick func(is, it int) Lens) []Lens {
	if !(rs > 0) || !(rt > 0) {
		return nil
	}
	s0, s1, t0, t1 := geom.SpatialBounds()
	var out []Lens
	for it := 0; t0+2*rt*float64(it) < t1; it++ {
		for is := 0; s0+2*rs*float64(is) < s1; is++ {
			l := pick(is, it)
			l.CenterS = s0 + rs + 2*rs*float64(is)
			l.CenterT = t0 + rt + 2*rt*float64(it)
			out = append(out, l)
		}
	}
	return out
}
