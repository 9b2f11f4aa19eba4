package lightfield

import (
	"fmt"

	"github.com/gogpu/lightfield/compute"
)

// Mask multiplies images on one plane by fixed per-pixel weights.
type Mask struct {
	dev     compute.Device
	geom    SampledPlane
	weights *compute.ConstBuffer
}

// NewMask uploads weights, one per pixel of geom in storage order.
func NewMask(dev compute.Device, geom SampledPlane, weights []float32) (*Mask, error) {
	if err := geom.Validate(); err != nil {
		return nil, fmt.Errorf("lightfield: new mask: %w", err)
	}
	if len(weights) != geom.Len() {
		return nil, fmt.Errorf("lightfield: new mask: %w: %d weights for %d pixels", compute.ErrBufferSize, len(weights), geom.Len())
	}
	buf, err := dev.NewConstBuffer("mask_weights", weights)
	if err != nil {
		return nil, fmt.Errorf("lightfield: new mask: %w", err)
	}
	return &Mask{dev: dev, geom: geom, weights: buf}, nil
}

// OccluderMask returns the open fraction of every pixel of geom for the
// union of openings: the largest open fraction among them.
func OccluderMask(geom SampledPlane, openings ...Occluder) []float32 {
	w := make([]float32, geom.Len())
	for it := range geom.Nt {
		for is := range geom.Ns {
			s0, s1, t0, t1 := geom.PixelBounds(is, it)
			i := geom.Index(is, it)
			for _, o := range openings {
				w[i] = max(w[i], float32(1-Rasterize(o, s0, s1, t0, t1, superSample)))
			}
		}
	}
	return w
}

// Geometry returns the plane the mask lives on.
func (m *Mask) Geometry() SampledPlane { return m.geom }

// Apply writes weights*in to out.
func (m *Mask) Apply(in compute.Readable, out *compute.Buffer, waitFor []*compute.Event) (*compute.Event, error) {
	return m.run(in, out, compute.MaskOverwrite, waitFor)
}

// Accumulate adds weights*in to out.
func (m *Mask) Accumulate(in compute.Readable, out *compute.Buffer, waitFor []*compute.Event) (*compute.Event, error) {
	return m.run(in, out, 0, waitFor)
}

func (m *Mask) run(in compute.Readable, out *compute.Buffer, flags compute.MaskFlags, waitFor []*compute.Event) (*compute.Event, error) {
	p := compute.MaskParams{Len: uint32(m.geom.Len()), Flags: flags} //nolint:gosec // validated plane size
	ev, err := m.dev.Run(compute.MaskLaunch(p, m.weights, in, out), waitFor)
	if err != nil {
		return nil, fmt.Errorf("lightfield: mask: %w", err)
	}
	return ev, nil
}

// Release frees the weights.
func (m *Mask) Release() { m.weights.Release() }
