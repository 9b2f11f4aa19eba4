package lightfield

// Occluder is a 2-D shape that reports whether light through a point is
// blocked.
type Occluder interface {
	Occluded(s, t float64) bool
}

// Extent is an axis-aligned box given by its center and half-sizes.
type Extent struct {
	CenterS, CenterT float64
	RadiusS, RadiusT float64
}

// BoundingGeometry exposes the bounding box of a shape.
type BoundingGeometry interface {
	Extent() Extent
}

// Aperture is a bounded occluder, the input of NewAngularPlane.
type Aperture interface {
	Occluder
	BoundingGeometry
}

// superSample is the per-axis sample count of Rasterize in NewAngularPlane.
const superSample = 10

// Rasterize returns the occluded fraction of the box [s0, s1] x [t0, t1],
// estimated on an n x n lattice that includes the box edges.
func Rasterize(o Occluder, s0, s1, t0, t1 float64, n int) float64 {
	if n < 2 {
		if o.Occluded((s0+s1)/2, (t0+t1)/2) {
			return 1
		}
		return 0
	}
	occluded := 0
	for j := range n {
		t := t0 + (t1-t0)*float64(j)/float64(n-1)
		for i := range n {
			s := s0 + (s1-s0)*float64(i)/float64(n-1)
			if o.Occluded(s, t) {
				occluded++
			}
		}
	}
	return float64(occluded) / float64(n*n)
}

// Lens is a thin lens with an elliptical aperture.
type Lens struct {
	CenterS, CenterT float64
	RadiusS, RadiusT float64
	FocalS, FocalT   float64
}

// Occluded reports whether (s, t) lies on or outside the aperture ellipse.
func (l Lens) Occluded(s, t float64) bool {
	ds := (s - l.CenterS) / l.RadiusS
	dt := (t - l.CenterT) / l.RadiusT
	return ds*ds+dt*dt >= 1
}

// Extent returns the bounding box of the aperture.
func (l Lens) Extent() Extent {
	return Extent{CenterS: l.CenterS, CenterT: l.CenterT, RadiusS: l.RadiusS, RadiusT: l.RadiusT}
}

// Optics returns the refraction of the lens.
func (l Lens) Optics() Optics2d {
	return Refraction(l.FocalS, l.FocalT, l.CenterS, l.CenterT)
}

// RectAperture is an axis-aligned rectangular opening.
type RectAperture struct {
	CenterS, CenterT float64
	RadiusS, RadiusT float64
}

// Occluded reports whether (s, t) lies outside the open rectangle.
func (r RectAperture) Occluded(s, t float64) bool {
	return s <= r.CenterS-r.RadiusS || s >= r.CenterS+r.RadiusS ||
		t <= r.CenterT-r.RadiusT || t >= r.CenterT+r.RadiusT
}

// Extent returns the rectangle.
func (r RectAperture) Extent() Extent {
	return Extent{CenterS: r.CenterS, CenterT: r.CenterT, RadiusS: r.RadiusS, RadiusT: r.RadiusT}
}
