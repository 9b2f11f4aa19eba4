package lightfield

import (
	"fmt"
	"math"

	"github.com/gogpu/lightfield/compute"
)

// Rotation is a 3x3 rotation matrix acting on (x, y, z) column vectors.
type Rotation [3][3]float64

// IdentityRotation returns the identity.
func IdentityRotation() Rotation {
	return Rotation{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// RotationX returns the rotation by angle radians about the x axis.
func RotationX(angle float64) Rotation {
	s, c := math.Sincos(angle)
	return Rotation{{1, 0, 0}, {0, c, -s}, {0, s, c}}
}

// RotationY returns the rotation by angle radians about the y axis.
func RotationY(angle float64) Rotation {
	s, c := math.Sincos(angle)
	return Rotation{{c, 0, s}, {0, 1, 0}, {-s, 0, c}}
}

// RotationZ returns the rotation by angle radians about the z axis.
func RotationZ(angle float64) Rotation {
	s, c := math.Sincos(angle)
	return Rotation{{c, -s, 0}, {s, c, 0}, {0, 0, 1}}
}

// EulerRotation returns RotationZ(c) * RotationY(b) * RotationX(a).
func EulerRotation(a, b, c float64) Rotation {
	return RotationZ(c).Mul(RotationY(b)).Mul(RotationX(a))
}

// Mul returns r * o, the rotation that applies o first.
func (r Rotation) Mul(o Rotation) Rotation {
	var m Rotation
	for i := range 3 {
		for j := range 3 {
			for k := range 3 {
				m[i][j] += r[i][k] * o[k][j]
			}
		}
	}
	return m
}

// Apply returns r * p.
func (r Rotation) Apply(p [3]float64) [3]float64 {
	var q [3]float64
	for i := range 3 {
		q[i] = r[i][0]*p[0] + r[i][1]*p[1] + r[i][2]*p[2]
	}
	return q
}

// ShearDecomposition factors a matrix into X * Y * Z * diag(Sx, Sy, Sz):
// a scaling followed by one shear along each axis.
//
//	Z: z += ZX*x + ZY*y
//	Y: y += YX*x + YZ*z
//	X: x += XY*y + XZ*z
type ShearDecomposition struct {
	Sx, Sy, Sz float64
	ZX, ZY     float64
	YX, YZ     float64
	XY, XZ     float64
}

// NewShearDecomposition factors r. It reports ErrInvalidGeometry when one
// of the scalings is not positive; such rotations flip or collapse an axis
// and must be split into a coarse flip and a residual rotation first.
func NewShearDecomposition(r Rotation) (ShearDecomposition, error) {
	var d ShearDecomposition
	d.Sz = r[2][2]
	if !(d.Sz > 0) {
		return d, fmt.Errorf("%w: rotation z scaling %v", ErrInvalidGeometry, d.Sz)
	}
	d.YZ = r[1][2] / d.Sz
	d.Sy = r[1][1] - d.YZ*r[2][1]
	if !(d.Sy > 0) {
		return d, fmt.Errorf("%w: rotation y scaling %v", ErrInvalidGeometry, d.Sy)
	}
	d.XY = (r[0][1] - r[0][2]*r[2][1]/r[2][2]) / d.Sy
	d.XZ = r[0][2]/d.Sz - d.XY*d.YZ
	d.Sx = r[0][0] - d.XY*r[1][0] - d.XZ*r[2][0]
	if !(d.Sx > 0) {
		return d, fmt.Errorf("%w: rotation x scaling %v", ErrInvalidGeometry, d.Sx)
	}
	d.ZX = r[2][0] / d.Sx
	d.ZY = r[2][1] / d.Sy
	d.YX = (r[1][0] - d.YZ*r[2][0]) / d.Sx
	return d, nil
}

// Matrix multiplies the factors back together.
func (d ShearDecomposition) Matrix() Rotation {
	x := Rotation{{1, d.XY, d.XZ}, {0, 1, 0}, {0, 0, 1}}
	y := Rotation{{1, 0, 0}, {d.YX, 1, d.YZ}, {0, 0, 1}}
	z := Rotation{{1, 0, 0}, {0, 1, 0}, {d.ZX, d.ZY, 1}}
	s := Rotation{{d.Sx, 0, 0}, {0, d.Sy, 0}, {0, 0, d.Sz}}
	return x.Mul(y).Mul(z).Mul(s)
}

// Scale returns v with its pitches multiplied by (sx, sy, sz). Index
// offsets are kept, so voxel centers scale with the pitches.
func (v LightVolume) Scale(sx, sy, sz float64) LightVolume {
	v.Dx *= sx
	v.Dy *= sy
	v.Dz *= sz
	return v
}

// VoxelCenter returns the center of voxel (ix, iy, iz).
func (v LightVolume) VoxelCenter(ix, iy, iz int) [3]float64 {
	s, t := v.SliceGeometry().PixelCenter(ix, iy)
	return [3]float64{s, t, v.SliceZ(iz)}
}

// rotationTables are the per-line Quad tables of the three shear passes.
// Z entries are indexed by column iy*nx+ix, Y entries by iz*nx+ix and X
// entries by iz*ny+iy.
type rotationTables struct {
	forwZ, forwY, forwX *compute.ConstBuffer
	backZ, backY, backX *compute.ConstBuffer
}

func (t rotationTables) release() {
	for _, b := range []*compute.ConstBuffer{t.forwZ, t.forwY, t.forwX, t.backZ, t.backY, t.backX} {
		if b != nil {
			b.Release()
		}
	}
}

// VolumeRotation resamples a LightVolume into a rotated copy of itself.
//
// The rotation is applied as a scaling, absorbed into the pitches of the
// destination grid, followed by z, y and x shears. Each shear is one filter
// pass whose voxel footprint is a Quad kernel: the unit box of the voxel
// spread over the shear offsets inside the voxel. Mass is conserved up to
// what leaves the grid.
//
// Calls into one VolumeRotation share its scratch buffer and must be
// ordered through their events.
type VolumeRotation struct {
	dev    compute.Device
	src    LightVolume
	dst    LightVolume
	shear  ShearDecomposition
	tables rotationTables
	tmp    *compute.Buffer
}

// NewVolumeRotation builds the rotation r of src and uploads its kernels.
func NewVolumeRotation(dev compute.Device, r Rotation, src LightVolume) (*VolumeRotation, error) {
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("lightfield: new volume rotation: %w", err)
	}
	shear, err := NewShearDecomposition(r)
	if err != nil {
		return nil, fmt.Errorf("lightfield: new volume rotation: %w", err)
	}
	dst := src.Scale(shear.Sx, shear.Sy, shear.Sz)

	tables, err := rotationKernels(shear, dst).upload(dev)
	if err != nil {
		return nil, fmt.Errorf("lightfield: new volume rotation: %w", err)
	}
	tmp, err := dev.NewBuffer("volume_rotation_tmp", src.Len())
	if err != nil {
		tables.release()
		return nil, fmt.Errorf("lightfield: new volume rotation: %w", err)
	}
	Logger().Info("lightfield: volume rotation ready",
		"device", dev.Name(), "volume", [3]int{src.Nx, src.Ny, src.Nz},
		"scale", [3]float64{shear.Sx, shear.Sy, shear.Sz})
	return &VolumeRotation{dev: dev, src: src, dst: dst, shear: shear, tables: tables, tmp: tmp}, nil
}

// Source returns the geometry of the input volume.
func (vr *VolumeRotation) Source() LightVolume { return vr.src }

// Destination returns the geometry of the rotated volume. It has the
// voxel counts of the source and pitches scaled by the decomposition.
func (vr *VolumeRotation) Destination() LightVolume { return vr.dst }

// Shear returns the decomposition the passes are built from.
func (vr *VolumeRotation) Shear() ShearDecomposition { return vr.shear }

// Forw writes the rotation of in to out. in and out must be different
// buffers.
func (vr *VolumeRotation) Forw(in compute.Readable, out *compute.Buffer, waitFor []*compute.Event) (*compute.Event, error) {
	wrap := func(err error) error { return fmt.Errorf("lightfield: volume rotation forw: %w", err) }
	if err := vr.checkLen(in.Len(), out.Len()); err != nil {
		return nil, wrap(err)
	}
	last, err := vr.zPass(vr.tables.forwZ, in, out, waitFor)
	if err != nil {
		return nil, wrap(err)
	}
	if last, err = vr.slicePass(compute.AxisT, vr.tables.forwY, out.Const(), vr.tmp, compute.Deps(last)); err != nil {
		return nil, wrap(err)
	}
	if last, err = vr.slicePass(compute.AxisS, vr.tables.forwX, vr.tmp.Const(), out, compute.Deps(last)); err != nil {
		return nil, wrap(err)
	}
	Logger().Debug("lightfield: volume rotation forw", "slices", vr.src.Nz)
	return last, nil
}

// Back writes the adjoint of Forw applied to in to out. in and out must be
// different buffers.
func (vr *VolumeRotation) Back(in compute.Readable, out *compute.Buffer, waitFor []*compute.Event) (*compute.Event, error) {
	wrap := func(err error) error { return fmt.Errorf("lightfield: volume rotation back: %w", err) }
	if err := vr.checkLen(in.Len(), out.Len()); err != nil {
		return nil, wrap(err)
	}
	last, err := vr.slicePass(compute.AxisS, vr.tables.backX, in, out, waitFor)
	if err != nil {
		return nil, wrap(err)
	}
	if last, err = vr.slicePass(compute.AxisT, vr.tables.backY, out.Const(), vr.tmp, compute.Deps(last)); err != nil {
		return nil, wrap(err)
	}
	if last, err = vr.zPass(vr.tables.backZ, vr.tmp.Const(), out, compute.Deps(last)); err != nil {
		return nil, wrap(err)
	}
	Logger().Debug("lightfield: volume rotation back", "slices", vr.src.Nz)
	return last, nil
}

// Release frees the kernel tables and the scratch buffer.
func (vr *VolumeRotation) Release() {
	vr.tables.release()
	vr.tmp.Release()
}

func (vr *VolumeRotation) checkLen(in, out int) error {
	if n := vr.src.Len(); in != n || out != n {
		return fmt.Errorf("%w: volumes of %d and %d voxels, want %d", compute.ErrBufferSize, in, out, n)
	}
	return nil
}

func (vr *VolumeRotation) shape() [3]int32 {
	return [3]int32{int32(vr.src.Nx), int32(vr.src.Ny), int32(vr.src.Nz)} //nolint:gosec // validated volume size
}

// zPass shears every column of in along z into out, one launch per output
// slice.
func (vr *VolumeRotation) zPass(table *compute.ConstBuffer, in compute.Readable, out *compute.Buffer, waitFor []*compute.Event) (*compute.Event, error) {
	shape := vr.shape()
	var last *compute.Event
	deps := waitFor
	for iz := range vr.src.Nz {
		p := compute.FilterParams{
			InShape: shape, OutShape: shape, OutSlice: int32(iz), //nolint:gosec // iz < Nz
			Axis: compute.AxisZ, Kind: compute.TableQuad,
			Flags: compute.FilterOverwrite | compute.FilterPerLine, Scale: 1,
		}
		ev, err := vr.dev.Run(compute.FilterLaunch(p, table, in, out), deps)
		if err != nil {
			return nil, fmt.Errorf("z pass slice %d: %w", iz, err)
		}
		last, deps = ev, compute.Deps(ev)
	}
	return last, nil
}

// slicePass shears every slice of in within its plane along axis into out.
func (vr *VolumeRotation) slicePass(axis compute.Axis, table *compute.ConstBuffer, in compute.Readable, out *compute.Buffer, waitFor []*compute.Event) (*compute.Event, error) {
	shape := vr.shape()
	lines := vr.src.Ny
	if axis == compute.AxisT {
		lines = vr.src.Nx
	}
	var last *compute.Event
	deps := waitFor
	for iz := range vr.src.Nz {
		p := compute.FilterParams{
			InShape: shape, OutShape: shape, InSlice: int32(iz), OutSlice: int32(iz), //nolint:gosec // iz < Nz
			Axis: axis, Kind: compute.TableQuad, KernelIndex: uint32(iz * lines), //nolint:gosec // bounded by the table size
			Flags: compute.FilterOverwrite | compute.FilterPerLine, Scale: 1,
		}
		ev, err := vr.dev.Run(compute.FilterLaunch(p, table, in, out), deps)
		if err != nil {
			return nil, fmt.Errorf("%v pass slice %d: %w", axis, iz, err)
		}
		last, deps = ev, compute.Deps(ev)
	}
	return last, nil
}

// rotationTableBuilder collects the shear kernels on the host.
type rotationTableBuilder struct {
	forwZ, forwY, forwX []float32
	backZ, backY, backX []float32
}

// shearKernels returns the forward and backward footprints of a voxel whose
// center moves by shift input samples and whose offsets inside the voxel
// spread over w1 and w2 samples.
func shearKernels(shift, w1, w2 float64) (forw, back SplineKernel) {
	h := 1 / math.Max(1, math.Max(math.Abs(w1), math.Abs(w2)))
	return NewQuad(h, 1, 0.5-shift, 1, w1, w2), NewQuad(h, 1, 0.5+shift, 1, w1, w2)
}

// rotationKernels derives the tables of the three shears on the grid g.
// Every shear maps g onto itself, so shifts and spreads are in units of
// the sheared axis pitch of g.
func rotationKernels(d ShearDecomposition, g LightVolume) *rotationTableBuilder {
	stride := compute.TableQuad.Stride()
	b := &rotationTableBuilder{
		forwZ: make([]float32, 0, g.Nx*g.Ny*stride),
		forwY: make([]float32, 0, g.Nz*g.Nx*stride),
		forwX: make([]float32, 0, g.Nz*g.Ny*stride),
	}
	b.backZ = make([]float32, 0, cap(b.forwZ))
	b.backY = make([]float32, 0, cap(b.forwY))
	b.backX = make([]float32, 0, cap(b.forwX))

	plane := g.SliceGeometry()
	xs := make([]float64, g.Nx)
	for ix := range xs {
		xs[ix] = plane.IsToS(float64(ix))
	}
	ys := make([]float64, g.Ny)
	for iy := range ys {
		ys[iy] = plane.ItToT(float64(iy))
	}

	zw1, zw2 := d.ZX*g.Dx/g.Dz, d.ZY*g.Dy/g.Dz
	for _, y := range ys {
		for _, x := range xs {
			f, k := shearKernels((d.ZX*x+d.ZY*y)/g.Dz, zw1, zw2)
			b.forwZ, b.backZ = f.appendTo(b.forwZ), k.appendTo(b.backZ)
		}
	}
	yw1, yw2 := d.YX*g.Dx/g.Dy, d.YZ*g.Dz/g.Dy
	xw1, xw2 := d.XY*g.Dy/g.Dx, d.XZ*g.Dz/g.Dx
	for iz := range g.Nz {
		z := g.SliceZ(iz)
		for _, x := range xs {
			f, k := shearKernels((d.YX*x+d.YZ*z)/g.Dy, yw1, yw2)
			b.forwY, b.backY = f.appendTo(b.forwY), k.appendTo(b.backY)
		}
		for _, y := range ys {
			f, k := shearKernels((d.XY*y+d.XZ*z)/g.Dx, xw1, xw2)
			b.forwX, b.backX = f.appendTo(b.forwX), k.appendTo(b.backX)
		}
	}
	return b
}

func (b *rotationTableBuilder) upload(dev compute.Device) (rotationTables, error) {
	var t rotationTables
	for _, e := range []struct {
		dst  **compute.ConstBuffer
		name string
		data []float32
	}{
		{&t.forwZ, "forw_z", b.forwZ}, {&t.forwY, "forw_y", b.forwY}, {&t.forwX, "forw_x", b.forwX},
		{&t.backZ, "back_z", b.backZ}, {&t.backY, "back_y", b.backY}, {&t.backX, "back_x", b.backX},
	} {
		buf, err := dev.NewConstBuffer("volume_rotation_"+e.name, e.data)
		if err != nil {
			t.release()
			return t, err
		}
		*e.dst = buf
	}
	return t, nil
}
