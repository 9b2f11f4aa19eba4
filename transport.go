package lightfield

import (
	"fmt"

	"github.com/gogpu/lightfield/compute"
)

// kernelTables holds the four kernel tables of a transport. Entry k of
// every table belongs to the same (slice, angle) pair.
type kernelTables struct {
	kind                       compute.TableKind
	forwS, forwT, backS, backT *compute.ConstBuffer
}

// kernelTableBuilder collects kernels on the host before upload.
type kernelTableBuilder struct {
	kind                       compute.TableKind
	forwS, forwT, backS, backT []float32
}

func newKernelTableBuilder(kind compute.TableKind, entries int) *kernelTableBuilder {
	n := entries * kind.Stride()
	return &kernelTableBuilder{
		kind:  kind,
		forwS: make([]float32, 0, n),
		forwT: make([]float32, 0, n),
		backS: make([]float32, 0, n),
		backT: make([]float32, 0, n),
	}
}

// add appends the kernels between src and dst for angle ia.
func (b *kernelTableBuilder) add(src, dst LightFieldGeometry, ia int) error {
	fs, ft, err := src.TransportTo(dst, ia)
	if err != nil {
		return fmt.Errorf("forward kernels of angle %d: %w", ia, err)
	}
	bs, bt, err := dst.TransportTo(src, ia)
	if err != nil {
		return fmt.Errorf("backward kernels of angle %d: %w", ia, err)
	}
	b.forwS = fs.appendTo(b.forwS)
	b.forwT = ft.appendTo(b.forwT)
	b.backS = bs.appendTo(b.backS)
	b.backT = bt.appendTo(b.backT)
	return nil
}

func (b *kernelTableBuilder) upload(dev compute.Device, label string) (kernelTables, error) {
	t := kernelTables{kind: b.kind}
	var err error
	if t.forwS, err = dev.NewConstBuffer(label+"_forw_s", b.forwS); err != nil {
		return t, err
	}
	if t.forwT, err = dev.NewConstBuffer(label+"_forw_t", b.forwT); err != nil {
		t.release()
		return t, err
	}
	if t.backS, err = dev.NewConstBuffer(label+"_back_s", b.backS); err != nil {
		t.release()
		return t, err
	}
	if t.backT, err = dev.NewConstBuffer(label+"_back_t", b.backT); err != nil {
		t.release()
		return t, err
	}
	return t, nil
}

func (t kernelTables) release() {
	for _, b := range []*compute.ConstBuffer{t.forwS, t.forwT, t.backS, t.backT} {
		if b != nil {
			b.Release()
		}
	}
}

// separablePass describes one t-then-s filter pair from an input grid to
// an output grid through a scratch buffer. Only input pixels inside
// inRegion are read and only output pixels inside outRegion are written.
type separablePass struct {
	sTable, tTable *compute.ConstBuffer
	kind           compute.TableKind
	kernel         uint32

	in       compute.Readable
	inShape  [3]int32
	inSlice  int32
	inRegion PixelRegion

	tmp *compute.Buffer

	out       *compute.Buffer
	outShape  [3]int32
	outSlice  int32
	outRegion PixelRegion

	scale   float32
	sFlags  compute.FilterFlags
	waitFor []*compute.Event
}

// enqueue runs the t pass into tmp and then the s pass into out.
func (p separablePass) enqueue(dev compute.Device) (*compute.Event, error) {
	in, out := p.inRegion, p.outRegion
	tPass := compute.FilterParams{
		InShape:     p.inShape,
		OutShape:    [3]int32{p.inShape[0], p.outShape[1], 1},
		InSlice:     p.inSlice,
		Axis:        compute.AxisT,
		Kind:        p.kind,
		KernelIndex: p.kernel,
		Flags:       compute.FilterOverwrite,
		Scale:       p.scale,
		OutOrigin:   [2]int32{int32(in.S0), int32(out.T0)},                   //nolint:gosec // regions lie inside validated planes
		OutExtent:   [2]int32{int32(in.S1 - in.S0), int32(out.T1 - out.T0)}, //nolint:gosec // regions lie inside validated planes
		InRange:     [2]int32{int32(in.T0), int32(in.T1)},                   //nolint:gosec // regions lie inside validated planes
	}
	tDone, err := dev.Run(compute.FilterLaunch(tPass, p.tTable, p.in, p.tmp), p.waitFor)
	if err != nil {
		return nil, err
	}
	sPass := compute.FilterParams{
		InShape:     tPass.OutShape,
		OutShape:    p.outShape,
		OutSlice:    p.outSlice,
		Axis:        compute.AxisS,
		Kind:        p.kind,
		KernelIndex: p.kernel,
		Flags:       p.sFlags,
		Scale:       1,
		OutOrigin:   [2]int32{int32(out.S0), int32(out.T0)},                   //nolint:gosec // regions lie inside validated planes
		OutExtent:   [2]int32{int32(out.S1 - out.S0), int32(out.T1 - out.T0)}, //nolint:gosec // regions lie inside validated planes
		InRange:     [2]int32{int32(in.S0), int32(in.S1)},                     //nolint:gosec // regions lie inside validated planes
	}
	return dev.Run(compute.FilterLaunch(sPass, p.sTable, p.tmp.Const(), p.out), compute.Deps(tDone))
}

func planeShape(g SampledPlane) [3]int32 {
	return [3]int32{int32(g.Ns), int32(g.Nt), 1} //nolint:gosec // validated plane sizes
}

// Transport is the separable plane-to-plane projection between two light
// field geometries and its adjoint.
//
// Calls into one Transport share its scratch buffer and must be ordered
// through their events.
type Transport struct {
	dev    compute.Device
	src    LightFieldGeometry
	dst    LightFieldGeometry
	srcReg PixelRegion
	dstReg PixelRegion
	opts   transportOptions
	tables kernelTables
	scales []float32
	tmp    *compute.Buffer
	ownTmp bool
}

var _ Projector = (*Transport)(nil)

// NewTransport derives the kernels of every angle and uploads them to dev.
// The geometries must share their angular plane.
func NewTransport(dev compute.Device, src, dst LightFieldGeometry, opts ...TransportOption) (*Transport, error) {
	tr, err := newTransport(dev, src, dst, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("lightfield: new transport: %w", err)
	}
	return tr, nil
}

// transportScratchLen is the scratch length a transport between src and
// dst needs.
func transportScratchLen(src, dst SampledPlane) int {
	return max(src.Ns, dst.Ns) * max(src.Nt, dst.Nt)
}

// newTransport builds a transport that uses tmp as its scratch buffer, or
// allocates its own when tmp is nil.
func newTransport(dev compute.Device, src, dst LightFieldGeometry, tmp *compute.Buffer, opts ...TransportOption) (*Transport, error) {
	o := defaultTransportOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	if err := dst.Validate(); err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}
	if err := src.Plane.compatible(dst.Plane); err != nil {
		return nil, err
	}
	srcReg, dstReg := src.Geom.FullRegion(), dst.Geom.FullRegion()
	if o.srcRegion != nil {
		srcReg = *o.srcRegion
	}
	if o.dstRegion != nil {
		dstReg = *o.dstRegion
	}
	if err := srcReg.within(src.Geom); err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	if err := dstReg.within(dst.Geom); err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}
	tmpLen := transportScratchLen(src.Geom, dst.Geom)
	if tmp != nil && tmp.Len() < tmpLen {
		return nil, fmt.Errorf("%w: scratch of %d elements, need %d", compute.ErrBufferSize, tmp.Len(), tmpLen)
	}
	b, _ := src.Plane.Basis.strategy()

	na := src.Na()
	builder := newKernelTableBuilder(b.table(), na)
	scales := make([]float32, na)
	pv := dst.PixelVolume()
	for ia := range na {
		if err := builder.add(src, dst, ia); err != nil {
			return nil, err
		}
		scales[ia] = float32(1 / pv)
		if o.ontoDetector {
			scales[ia] = float32(src.Plane.Samples[ia].W)
		}
	}

	tables, err := builder.upload(dev, "transport")
	if err != nil {
		return nil, err
	}
	ownTmp := tmp == nil
	if ownTmp {
		if tmp, err = dev.NewBuffer("transport_tmp", tmpLen); err != nil {
			tables.release()
			return nil, err
		}
	}

	Logger().Info("lightfield: transport ready",
		"device", dev.Name(), "basis", src.Plane.Basis, "angles", na,
		"src", [2]int{src.Geom.Ns, src.Geom.Nt}, "dst", [2]int{dst.Geom.Ns, dst.Geom.Nt},
		"src_region", srcReg, "dst_region", dstReg)
	return &Transport{
		dev: dev, src: src, dst: dst, srcReg: srcReg, dstReg: dstReg, opts: o,
		tables: tables, scales: scales, tmp: tmp, ownTmp: ownTmp,
	}, nil
}

// Na returns the number of angular samples.
func (tr *Transport) Na() int { return len(tr.scales) }

// Source returns the source geometry.
func (tr *Transport) Source() LightFieldGeometry { return tr.src }

// Destination returns the destination geometry.
func (tr *Transport) Destination() LightFieldGeometry { return tr.dst }

// ForwAngle projects src onto dst through angle ia.
func (tr *Transport) ForwAngle(src compute.Readable, dst *compute.Buffer, ia int, waitFor []*compute.Event) (*compute.Event, error) {
	if err := tr.checkAngle(ia); err != nil {
		return nil, err
	}
	Logger().Debug("lightfield: transport forw", "angle", ia, "scale", tr.scales[ia])
	ev, err := separablePass{
		sTable: tr.tables.forwS, tTable: tr.tables.forwT, kind: tr.tables.kind, kernel: uint32(ia), //nolint:gosec // ia < Na
		in: src, inShape: planeShape(tr.src.Geom), inRegion: tr.srcReg,
		tmp: tr.tmp,
		out: dst, outShape: planeShape(tr.dst.Geom), outRegion: tr.dstReg,
		scale: tr.scales[ia], sFlags: tr.sFlags(), waitFor: waitFor,
	}.enqueue(tr.dev)
	if err != nil {
		return nil, fmt.Errorf("lightfield: transport forw angle %d: %w", ia, err)
	}
	return ev, nil
}

// BackAngle backprojects dst onto src through angle ia. It is the adjoint
// of ForwAngle.
func (tr *Transport) BackAngle(dst compute.Readable, src *compute.Buffer, ia int, waitFor []*compute.Event) (*compute.Event, error) {
	if err := tr.checkAngle(ia); err != nil {
		return nil, err
	}
	Logger().Debug("lightfield: transport back", "angle", ia, "scale", tr.scales[ia])
	ev, err := separablePass{
		sTable: tr.tables.backS, tTable: tr.tables.backT, kind: tr.tables.kind, kernel: uint32(ia), //nolint:gosec // ia < Na
		in: dst, inShape: planeShape(tr.dst.Geom), inRegion: tr.dstReg,
		tmp: tr.tmp,
		out: src, outShape: planeShape(tr.src.Geom), outRegion: tr.srcReg,
		scale: tr.scales[ia], sFlags: tr.sFlags(), waitFor: waitFor,
	}.enqueue(tr.dev)
	if err != nil {
		return nil, fmt.Errorf("lightfield: transport back angle %d: %w", ia, err)
	}
	return ev, nil
}

// Release frees the kernel tables and the scratch buffer.
func (tr *Transport) Release() {
	tr.tables.release()
	if tr.ownTmp {
		tr.tmp.Release()
	}
}

func (tr *Transport) sFlags() compute.FilterFlags {
	var f compute.FilterFlags
	if tr.opts.overwrite {
		f |= compute.FilterOverwrite
	}
	if tr.opts.conservative {
		f |= compute.FilterConservative
	}
	return f
}

func (tr *Transport) checkAngle(ia int) error {
	if ia < 0 || ia >= len(tr.scales) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrAngleOutOfRange, ia, len(tr.scales))
	}
	return nil
}
