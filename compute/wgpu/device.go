//go:build !nogpu

package wgpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/lightfield/compute"
	"github.com/gogpu/lightfield/internal/native"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// Name is the registry name of the backend.
const Name = "wgpu"

const defaultFenceTimeout = 10 * time.Second

func init() {
	compute.Register(Name, 10, func() (compute.Device, error) {
		return New()
	})
}

// Option configures a Device.
type Option func(*options)

type options struct {
	provider gpucontext.DeviceProvider
	timeout  time.Duration
	queueLen int
}

// WithDeviceProvider makes the device share the GPU of a host application.
// The provider must also expose HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue. A shared device is not destroyed by Close.
func WithDeviceProvider(p gpucontext.DeviceProvider) Option {
	return func(o *options) { o.provider = p }
}

// WithFenceTimeout bounds the wait for a single submission.
func WithFenceTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithQueueLength sets how many commands may be pending before enqueue
// calls block.
func WithQueueLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueLen = n
		}
	}
}

// Device is a GPU compute device.
type Device struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	external bool
	adapter  string
	timeout  time.Duration

	pipelines map[string]*native.Pipeline

	liveMu sync.Mutex
	live   map[hal.Buffer]struct{}

	// qmu serializes queue writes, submissions and reads between the
	// worker and allocating callers.
	qmu sync.Mutex

	// mu guards closed. Holders of the read lock may use the HAL device.
	mu     sync.RWMutex
	closed bool
	ops    chan command
	exited chan struct{}
}

var _ compute.Device = (*Device)(nil)

type command struct {
	label   string
	waitFor []*compute.Event
	event   *compute.Event
	exec    func() error
}

// gpuBuffer is the native allocation of a GPU buffer.
type gpuBuffer struct {
	buf  hal.Buffer
	size uint64
}

// New opens a GPU device, either its own Vulkan device or the shared device
// of a provider, and builds the compute pipelines.
func New(opts ...Option) (*Device, error) {
	o := options{timeout: defaultFenceTimeout, queueLen: 256}
	for _, opt := range opts {
		opt(&o)
	}
	d := &Device{
		timeout:   o.timeout,
		pipelines: make(map[string]*native.Pipeline),
		live:      make(map[hal.Buffer]struct{}),
		ops:       make(chan command, o.queueLen),
		exited:    make(chan struct{}),
	}

	var err error
	if o.provider != nil {
		err = d.useProvider(o.provider)
	} else {
		err = d.openOwnDevice()
	}
	if err != nil {
		d.destroy()
		return nil, compute.Wrap(Name, "open", err)
	}
	if err := d.createPipelines(); err != nil {
		d.destroy()
		return nil, compute.Wrap(Name, "create pipelines", err)
	}

	go d.worker()
	slogger().Info("wgpu: device ready", "adapter", d.adapter, "shared", d.external)
	return d, nil
}

func (d *Device) openOwnDevice() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	d.instance = instance

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return fmt.Errorf("no GPU adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	d.device = openDev.Device
	d.queue = openDev.Queue
	d.adapter = selected.Info.Name
	return nil
}

func (d *Device) useProvider(provider gpucontext.DeviceProvider) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("provider HalQueue is not hal.Queue")
	}
	d.device = device
	d.queue = queue
	d.external = true
	d.adapter = "shared"
	return nil
}

func (d *Device) createPipelines() error {
	for name, spec := range shaderSpecs() {
		p, err := native.NewPipeline(d.device, spec.label, spec.source, spec.bindings)
		if err != nil {
			return err
		}
		d.pipelines[name] = p
	}
	return nil
}

// Name implements compute.Device.
func (d *Device) Name() string { return Name }

// Adapter returns the name of the selected adapter, or "shared".
func (d *Device) Adapter() string { return d.adapter }

// NewBuffer implements compute.Device. The buffer is zeroed before the call
// returns.
func (d *Device) NewBuffer(label string, n int) (*compute.Buffer, error) {
	if n < 0 {
		return nil, compute.Wrap(Name, "new buffer", fmt.Errorf("%w: negative length %d", compute.ErrBufferSize, n))
	}
	gb, err := d.allocate(label, n, nil)
	if err != nil {
		return nil, err
	}
	return compute.NewBuffer(d, label, n, gb, d.releaser(gb)), nil
}

// NewConstBuffer implements compute.Device.
func (d *Device) NewConstBuffer(label string, data []float32) (*compute.ConstBuffer, error) {
	gb, err := d.allocate(label, len(data), data)
	if err != nil {
		return nil, err
	}
	return compute.NewConstBuffer(d, label, len(data), gb, d.releaser(gb)), nil
}

// allocate creates a storage buffer on the calling goroutine and
// initializes it with data, or zeros when data is nil. It does not wait for
// queued commands.
func (d *Device) allocate(label string, n int, data []float32) (*gpuBuffer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, compute.Wrap(Name, "allocate "+label, compute.ErrDeviceClosed)
	}
	size := uint64(max(n, 1)) * 4 //nolint:gosec // n is non-negative
	init := make([]byte, size)
	if data != nil {
		copy(init, compute.Float32Bytes(data))
	}
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label, Size: size,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, compute.Wrap(Name, "allocate "+label, err)
	}
	d.qmu.Lock()
	d.queue.WriteBuffer(buf, 0, init)
	d.qmu.Unlock()

	d.liveMu.Lock()
	d.live[buf] = struct{}{}
	d.liveMu.Unlock()
	return &gpuBuffer{buf: buf, size: size}, nil
}

// releaser destroys the buffer on the calling goroutine. Buffers still live
// at Close are destroyed there.
func (d *Device) releaser(gb *gpuBuffer) func() {
	return func() {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			slogger().Debug("wgpu: release after close", "size", gb.size)
			return
		}
		d.liveMu.Lock()
		_, ok := d.live[gb.buf]
		delete(d.live, gb.buf)
		d.liveMu.Unlock()
		if ok {
			d.device.DestroyBuffer(gb.buf)
		}
	}
}

// Upload implements compute.Device.
func (d *Device) Upload(dst *compute.Buffer, data []float32, waitFor []*compute.Event) (*compute.Event, error) {
	gb, err := d.writable(dst)
	if err != nil {
		return nil, compute.Wrap(Name, "upload", err)
	}
	if len(data) > dst.Len() {
		return nil, compute.Wrap(Name, "upload", fmt.Errorf("%w: %d values into %q of %d", compute.ErrBufferSize, len(data), dst.Label(), dst.Len()))
	}
	bytes := compute.Float32Bytes(data)
	return d.enqueue("upload "+dst.Label(), waitFor, func() error {
		d.qmu.Lock()
		defer d.qmu.Unlock()
		d.queue.WriteBuffer(gb.buf, 0, bytes)
		return nil
	})
}

// Download implements compute.Device.
func (d *Device) Download(src compute.Readable, out []float32, waitFor []*compute.Event) (*compute.Event, error) {
	gb, err := d.readable(src)
	if err != nil {
		return nil, compute.Wrap(Name, "download", err)
	}
	if len(out) > src.Len() {
		return nil, compute.Wrap(Name, "download", fmt.Errorf("%w: %d values from %q of %d", compute.ErrBufferSize, len(out), src.Label(), src.Len()))
	}
	return d.enqueue("download "+src.Label(), waitFor, func() error {
		if len(out) == 0 {
			return nil
		}
		return d.readback(gb, out)
	})
}

func (d *Device) readback(gb *gpuBuffer, out []float32) error {
	size := uint64(len(out)) * 4
	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "lightfield_staging", Size: size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create staging buffer: %w", err)
	}
	defer d.device.DestroyBuffer(staging)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "lightfield_readback"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("lightfield_readback"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(gb.buf, staging, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: size},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		encoder.DiscardEncoding()
		return fmt.Errorf("end encoding: %w", err)
	}
	if err := d.submitAndWait(cmdBuf); err != nil {
		return err
	}

	raw := make([]byte, size)
	d.qmu.Lock()
	err = d.queue.ReadBuffer(staging, 0, raw)
	d.qmu.Unlock()
	if err != nil {
		return fmt.Errorf("readback: %w", err)
	}
	compute.BytesFloat32(raw, out)
	return nil
}

// Fill implements compute.Device.
func (d *Device) Fill(dst *compute.Buffer, value float32, waitFor []*compute.Event) (*compute.Event, error) {
	gb, err := d.writable(dst)
	if err != nil {
		return nil, compute.Wrap(Name, "fill", err)
	}
	p := compute.FillParams{Len: uint32(dst.Len()), Value: value} //nolint:gosec // buffer lengths fit uint32
	return d.enqueue("fill "+dst.Label(), waitFor, func() error {
		return d.dispatch(d.pipelines["fill"], p.Bytes(), []*gpuBuffer{gb}, dst.Len())
	})
}

// Run implements compute.Device.
func (d *Device) Run(l compute.Launch, waitFor []*compute.Event) (*compute.Event, error) {
	op := "run " + l.Kernel.String()
	if err := l.Validate(); err != nil {
		return nil, compute.Wrap(Name, op, err)
	}
	in, err := d.readable(l.Input)
	if err != nil {
		return nil, compute.Wrap(Name, op, err)
	}
	out, err := d.writable(l.Output)
	if err != nil {
		return nil, compute.Wrap(Name, op, err)
	}

	switch l.Kernel {
	case compute.KernelFilter:
		table, err := d.readable(l.Table)
		if err != nil {
			return nil, compute.Wrap(Name, op, err)
		}
		p, _ := compute.DecodeFilterParams(l.Params)
		params := l.Params
		return d.enqueue(op, waitFor, func() error {
			return d.dispatch(d.pipelines["filter"], params, []*gpuBuffer{table, in, out}, p.OutLen())
		})
	case compute.KernelScale:
		p, _ := compute.DecodeScaleParams(l.Params)
		params := l.Params
		return d.enqueue(op, waitFor, func() error {
			return d.dispatch(d.pipelines["scale"], params, []*gpuBuffer{in, out}, int(p.Len))
		})
	case compute.KernelMask:
		mask, err := d.readable(l.Table)
		if err != nil {
			return nil, compute.Wrap(Name, op, err)
		}
		p, _ := compute.DecodeMaskParams(l.Params)
		params := l.Params
		return d.enqueue(op, waitFor, func() error {
			return d.dispatch(d.pipelines["mask"], params, []*gpuBuffer{mask, in, out}, int(p.Len))
		})
	}
	return nil, compute.Wrap(Name, op, compute.ErrUnknownKernel)
}

// dispatch records one compute pass over n invocations and waits for it.
// Binding 0 is a fresh uniform buffer holding params; buffers follow in
// order.
func (d *Device) dispatch(p *native.Pipeline, params []byte, buffers []*gpuBuffer, n int) error {
	if n == 0 {
		return nil
	}
	paramSize := uint64(len(params))
	ub, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: p.Label + "_params", Size: paramSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create uniform buffer: %w", err)
	}
	defer d.device.DestroyBuffer(ub)
	d.qmu.Lock()
	d.queue.WriteBuffer(ub, 0, params)
	d.qmu.Unlock()

	entries := make([]gputypes.BindGroupEntry, 0, len(buffers)+1)
	entries = append(entries, gputypes.BindGroupEntry{
		Binding: 0, Resource: gputypes.BufferBinding{Buffer: ub.NativeHandle(), Offset: 0, Size: paramSize},
	})
	for i, b := range buffers {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(i + 1), //nolint:gosec // binding count is tiny
			Resource: gputypes.BufferBinding{Buffer: b.buf.NativeHandle(), Offset: 0, Size: b.size},
		})
	}
	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: p.Label + "_bind", Layout: p.BindLayout, Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("create bind group: %w", err)
	}
	defer d.device.DestroyBindGroup(bg)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: p.Label})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(p.Label); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	x, y := dispatchSize(n)
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: p.Label})
	pass.SetPipeline(p.Pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(x, y, 1)
	pass.End()
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		encoder.DiscardEncoding()
		return fmt.Errorf("end encoding: %w", err)
	}
	slogger().Debug("wgpu: dispatch", "pipeline", p.Label, "invocations", n, "groups", [2]uint32{x, y})
	return d.submitAndWait(cmdBuf)
}

func (d *Device) submitAndWait(cmdBuf hal.CommandBuffer) error {
	defer d.device.FreeCommandBuffer(cmdBuf)
	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)
	d.qmu.Lock()
	err = d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1)
	d.qmu.Unlock()
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	ok, err := d.device.Wait(fence, 1, d.timeout)
	if err != nil {
		return fmt.Errorf("wait for GPU: %w", err)
	}
	if !ok {
		return fmt.Errorf("wait for GPU: timed out after %v", d.timeout)
	}
	return nil
}

// Close drains the queue, destroys remaining buffers and pipelines and,
// unless the device is shared, the HAL device and instance.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.ops)
	d.mu.Unlock()

	<-d.exited
	d.liveMu.Lock()
	for buf := range d.live {
		d.device.DestroyBuffer(buf)
	}
	d.live = nil
	d.liveMu.Unlock()
	d.destroy()
	slogger().Info("wgpu: device closed")
	return nil
}

func (d *Device) destroy() {
	for name, p := range d.pipelines {
		p.Destroy(d.device)
		delete(d.pipelines, name)
	}
	if !d.external {
		if d.device != nil {
			d.device.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device = nil
	d.queue = nil
	d.instance = nil
}

func (d *Device) enqueue(label string, waitFor []*compute.Event, exec func() error) (*compute.Event, error) {
	c := command{
		label:   label,
		waitFor: append([]*compute.Event(nil), waitFor...),
		event:   compute.NewEvent(label),
		exec:    exec,
	}
	// Close takes the write lock before closing ops.
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, compute.Wrap(Name, label, compute.ErrDeviceClosed)
	}
	d.ops <- c
	return c.event, nil
}

func (d *Device) worker() {
	defer close(d.exited)
	for c := range d.ops {
		if err := compute.WaitAll(c.waitFor); err != nil {
			c.event.Complete(err)
			continue
		}
		c.event.Complete(compute.Wrap(Name, c.label, c.exec()))
	}
}

func (d *Device) readable(r compute.Readable) (*gpuBuffer, error) {
	native, ok := compute.Native(d, r)
	return asGPUBuffer(native, ok)
}

func (d *Device) writable(b *compute.Buffer) (*gpuBuffer, error) {
	native, ok := compute.NativeBuffer(d, b)
	return asGPUBuffer(native, ok)
}

func asGPUBuffer(native any, ok bool) (*gpuBuffer, error) {
	if !ok {
		return nil, compute.ErrForeignBuffer
	}
	gb, ok := native.(*gpuBuffer)
	if !ok || gb.buf == nil {
		return nil, compute.ErrForeignBuffer
	}
	return gb, nil
}
