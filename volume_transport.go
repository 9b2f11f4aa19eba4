package lightfield

import (
	"fmt"

	"github.com/gogpu/lightfield/compute"
)

// VolumeTransport projects a LightVolume onto a plane slice by slice and
// backprojects the plane into the volume.
//
// Every slice is a LightFieldGeometry of its own whose optics first
// propagate to the z = 0 plane of the volume. Kernels for all (slice, angle)
// pairs are derived once and stored at index iz*Na+ia.
//
// Calls into one VolumeTransport share its scratch buffers and must be
// ordered through their events.
type VolumeTransport struct {
	dev    compute.Device
	volume LightVolume
	slices []LightFieldGeometry
	dst    LightFieldGeometry
	opts   volumeOptions
	na     int
	tables kernelTables
	// scales are the final per-angle factors: dz*w or dz/pv.
	scales  []float32
	tmp     *compute.Buffer
	scratch *compute.Buffer
}

var _ Projector = (*VolumeTransport)(nil)

// NewVolumeTransport builds the transport between volume, seen through plane
// with optics toPlaneFromZ0 from its z = 0 plane to the root plane, and dst.
func NewVolumeTransport(dev compute.Device, volume LightVolume, plane AngularPlane, toPlaneFromZ0 Optics2d,
	dst LightFieldGeometry, opts ...VolumeOption,
) (*VolumeTransport, error) {
	o := defaultVolumeOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := volume.Validate(); err != nil {
		return nil, fmt.Errorf("lightfield: new volume transport: %w", err)
	}
	if err := dst.Validate(); err != nil {
		return nil, fmt.Errorf("lightfield: new volume transport: destination: %w", err)
	}
	if err := plane.compatible(dst.Plane); err != nil {
		return nil, fmt.Errorf("lightfield: new volume transport: %w", err)
	}
	b, _ := plane.Basis.strategy()

	na := plane.Na()
	slices := make([]LightFieldGeometry, volume.Nz)
	builder := newKernelTableBuilder(b.table(), volume.Nz*na)
	for iz := range volume.Nz {
		toPlane := toPlaneFromZ0.Compose(volume.OpticsToZ0(iz))
		g, err := NewLightFieldGeometry(volume.SliceGeometry(), plane, toPlane)
		if err != nil {
			return nil, fmt.Errorf("lightfield: new volume transport: slice %d: %w", iz, err)
		}
		slices[iz] = g
		for ia := range na {
			if err := builder.add(g, dst, ia); err != nil {
				return nil, fmt.Errorf("lightfield: new volume transport: slice %d: %w", iz, err)
			}
		}
	}

	scales := make([]float32, na)
	pv := dst.PixelVolume()
	for ia := range na {
		scales[ia] = float32(volume.Dz / pv)
		if o.ontoDetector {
			scales[ia] = float32(volume.Dz * plane.Samples[ia].W)
		}
	}

	tables, err := builder.upload(dev, "volume_transport")
	if err != nil {
		return nil, fmt.Errorf("lightfield: new volume transport: %w", err)
	}
	tmp, err := dev.NewBuffer("volume_transport_tmp", max(volume.Nx, dst.Geom.Ns)*max(volume.Ny, dst.Geom.Nt))
	if err != nil {
		tables.release()
		return nil, fmt.Errorf("lightfield: new volume transport: %w", err)
	}
	scratch, err := dev.NewBuffer("volume_transport_scratch", dst.Geom.Len())
	if err != nil {
		tables.release()
		tmp.Release()
		return nil, fmt.Errorf("lightfield: new volume transport: %w", err)
	}

	Logger().Info("lightfield: volume transport ready",
		"device", dev.Name(), "basis", plane.Basis, "angles", na,
		"volume", [3]int{volume.Nx, volume.Ny, volume.Nz}, "dst", [2]int{dst.Geom.Ns, dst.Geom.Nt})
	return &VolumeTransport{
		dev: dev, volume: volume, slices: slices, dst: dst, opts: o, na: na,
		tables: tables, scales: scales, tmp: tmp, scratch: scratch,
	}, nil
}

// Na returns the number of angular samples.
func (vt *VolumeTransport) Na() int { return vt.na }

// Volume returns the volume geometry.
func (vt *VolumeTransport) Volume() LightVolume { return vt.volume }

// Slice returns the geometry of slice iz, or ErrInvalidGeometry when iz is
// not a slice of the volume.
func (vt *VolumeTransport) Slice(iz int) (LightFieldGeometry, error) {
	if iz < 0 || iz >= len(vt.slices) {
		return LightFieldGeometry{}, fmt.Errorf("%w: slice %d not in [0, %d)", ErrInvalidGeometry, iz, len(vt.slices))
	}
	return vt.slices[iz], nil
}

// Destination returns the destination geometry.
func (vt *VolumeTransport) Destination() LightFieldGeometry { return vt.dst }

// ForwAngle projects volume onto dst through angle ia.
func (vt *VolumeTransport) ForwAngle(volume compute.Readable, dst *compute.Buffer, ia int, waitFor []*compute.Event) (*compute.Event, error) {
	if err := vt.checkAngle(ia); err != nil {
		return nil, err
	}
	wrap := func(err error) error {
		return fmt.Errorf("lightfield: volume transport forw angle %d: %w", ia, err)
	}

	last, err := vt.dev.Fill(vt.scratch, 0, waitFor)
	if err != nil {
		return nil, wrap(err)
	}
	volShape := vt.volumeShape()
	sliceRegion := vt.volume.SliceGeometry().FullRegion()
	for iz := range vt.volume.Nz {
		last, err = separablePass{
			sTable: vt.tables.forwS, tTable: vt.tables.forwT, kind: vt.tables.kind, kernel: vt.kernelIndex(iz, ia),
			in: volume, inShape: volShape, inSlice: int32(iz), inRegion: sliceRegion, //nolint:gosec // iz < Nz
			tmp: vt.tmp,
			out: vt.scratch, outShape: planeShape(vt.dst.Geom), outRegion: vt.dst.Geom.FullRegion(),
			scale: 1, waitFor: compute.Deps(last),
		}.enqueue(vt.dev)
		if err != nil {
			return nil, wrap(err)
		}
	}

	scale := compute.ScaleParams{Len: uint32(vt.dst.Geom.Len()), Factor: vt.scales[ia]} //nolint:gosec // validated plane size
	if vt.opts.overwriteForw {
		scale.Flags = compute.ScaleOverwrite
	}
	Logger().Debug("lightfield: volume transport forw", "angle", ia, "slices", vt.volume.Nz, "scale", vt.scales[ia])
	ev, err := vt.dev.Run(compute.ScaleLaunch(scale, vt.scratch.Const(), dst), compute.Deps(last))
	if err != nil {
		return nil, wrap(err)
	}
	return ev, nil
}

// BackAngle backprojects dst into volume through angle ia. It is the adjoint
// of ForwAngle.
func (vt *VolumeTransport) BackAngle(dst compute.Readable, volume *compute.Buffer, ia int, waitFor []*compute.Event) (*compute.Event, error) {
	if err := vt.checkAngle(ia); err != nil {
		return nil, err
	}
	wrap := func(err error) error {
		return fmt.Errorf("lightfield: volume transport back angle %d: %w", ia, err)
	}

	scale := compute.ScaleParams{
		Len:    uint32(vt.dst.Geom.Len()), //nolint:gosec // validated plane size
		Flags:  compute.ScaleOverwrite,
		Factor: vt.scales[ia],
	}
	last, err := vt.dev.Run(compute.ScaleLaunch(scale, dst, vt.scratch), waitFor)
	if err != nil {
		return nil, wrap(err)
	}
	var sFlags compute.FilterFlags
	if vt.opts.overwriteBack {
		sFlags = compute.FilterOverwrite
	}
	volShape := vt.volumeShape()
	sliceRegion := vt.volume.SliceGeometry().FullRegion()
	for iz := range vt.volume.Nz {
		last, err = separablePass{
			sTable: vt.tables.backS, tTable: vt.tables.backT, kind: vt.tables.kind, kernel: vt.kernelIndex(iz, ia),
			in: vt.scratch.Const(), inShape: planeShape(vt.dst.Geom), inRegion: vt.dst.Geom.FullRegion(),
			tmp: vt.tmp,
			out: volume, outShape: volShape, outSlice: int32(iz), outRegion: sliceRegion, //nolint:gosec // iz < Nz
			scale: 1, sFlags: sFlags, waitFor: compute.Deps(last),
		}.enqueue(vt.dev)
		if err != nil {
			return nil, wrap(err)
		}
	}
	Logger().Debug("lightfield: volume transport back", "angle", ia, "slices", vt.volume.Nz, "scale", vt.scales[ia])
	return last, nil
}

// Release frees the kernel tables and scratch buffers.
func (vt *VolumeTransport) Release() {
	vt.tables.release()
	vt.tmp.Release()
	vt.scratch.Release()
}

func (vt *VolumeTransport) volumeShape() [3]int32 {
	return [3]int32{int32(vt.volume.Nx), int32(vt.volume.Ny), int32(vt.volume.Nz)} //nolint:gosec // validated volume size
}

func (vt *VolumeTransport) kernelIndex(iz, ia int) uint32 {
	return uint32(iz*vt.na + ia) //nolint:gosec // bounded by the table size
}

func (vt *VolumeTransport) checkAngle(ia int) error {
	if ia < 0 || ia >= vt.na {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrAngleOutOfRange, ia, vt.na)
	}
	return nil
}
