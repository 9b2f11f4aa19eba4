// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package cpu implements a host [compute.Device].
//
// Commands run as soon as every event in their waitFor list has completed,
// in no particular order relative to other ready commands, so missing
// dependencies show up as real races rather than being hidden by an
// in-order queue. Kernel ranges execute on a work-stealing worker pool.
//
// Importing the package registers the "cpu" backend.
package cpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/lightfield/compute"
	"github.com/gogpu/lightfield/internal/kernels"
	"github.com/gogpu/lightfield/internal/parallel"
)

// Name is the registry name of the backend.
const Name = "cpu"

// defaultGrain is the minimum number of output elements per pool task.
const defaultGrain = 2048

func init() {
	compute.Register(Name, 0, func() (compute.Device, error) {
		return New(), nil
	})
}

// Option configures a Device.
type Option func(*options)

type options struct {
	workers int
	grain   int
}

// WithWorkers sets the number of pool workers. Zero or negative selects
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithGrain sets the minimum number of output elements per pool task.
func WithGrain(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.grain = n
		}
	}
}

// Device is a host compute device.
type Device struct {
	pool  *parallel.WorkerPool
	grain int

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

var _ compute.Device = (*Device)(nil)

// storage is the native allocation of a CPU buffer.
type storage struct {
	data []float32
}

// New creates a host device.
func New(opts ...Option) *Device {
	o := options{grain: defaultGrain}
	for _, opt := range opts {
		opt(&o)
	}
	d := &Device{
		pool:  parallel.NewWorkerPool(o.workers),
		grain: o.grain,
	}
	compute.Logger().Info("cpu: device created", "workers", d.pool.Workers())
	return d
}

// Name implements compute.Device.
func (d *Device) Name() string { return Name }

// Workers returns the number of pool workers.
func (d *Device) Workers() int { return d.pool.Workers() }

// NewBuffer implements compute.Device.
func (d *Device) NewBuffer(label string, n int) (*compute.Buffer, error) {
	if err := d.checkOpen("new buffer"); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, d.fail("new buffer", fmt.Errorf("%w: negative length %d", compute.ErrBufferSize, n))
	}
	return compute.NewBuffer(d, label, n, &storage{data: make([]float32, n)}, nil), nil
}

// NewConstBuffer implements compute.Device.
func (d *Device) NewConstBuffer(label string, data []float32) (*compute.ConstBuffer, error) {
	if err := d.checkOpen("new const buffer"); err != nil {
		return nil, err
	}
	s := &storage{data: append([]float32(nil), data...)}
	return compute.NewConstBuffer(d, label, len(data), s, nil), nil
}

// Upload implements compute.Device.
func (d *Device) Upload(dst *compute.Buffer, data []float32, waitFor []*compute.Event) (*compute.Event, error) {
	s, err := d.writable(dst)
	if err != nil {
		return nil, d.fail("upload", err)
	}
	if len(data) > len(s.data) {
		return nil, d.fail("upload", fmt.Errorf("%w: %d values into %q of %d", compute.ErrBufferSize, len(data), dst.Label(), len(s.data)))
	}
	host := append([]float32(nil), data...)
	return d.enqueue("upload "+dst.Label(), waitFor, func() error {
		copy(s.data, host)
		return nil
	})
}

// Download implements compute.Device.
func (d *Device) Download(src compute.Readable, out []float32, waitFor []*compute.Event) (*compute.Event, error) {
	s, err := d.readable(src)
	if err != nil {
		return nil, d.fail("download", err)
	}
	if len(out) > len(s.data) {
		return nil, d.fail("download", fmt.Errorf("%w: %d values from %q of %d", compute.ErrBufferSize, len(out), src.Label(), len(s.data)))
	}
	return d.enqueue("download "+src.Label(), waitFor, func() error {
		copy(out, s.data)
		return nil
	})
}

// Fill implements compute.Device.
func (d *Device) Fill(dst *compute.Buffer, value float32, waitFor []*compute.Event) (*compute.Event, error) {
	s, err := d.writable(dst)
	if err != nil {
		return nil, d.fail("fill", err)
	}
	return d.enqueue("fill "+dst.Label(), waitFor, func() error {
		return d.parallel(len(s.data), func(lo, hi int) {
			kernels.Fill(s.data, value, lo, hi)
		})
	})
}

// Run implements compute.Device.
func (d *Device) Run(l compute.Launch, waitFor []*compute.Event) (*compute.Event, error) {
	op := "run " + l.Kernel.String()
	if err := l.Validate(); err != nil {
		return nil, d.fail(op, err)
	}
	in, err := d.readable(l.Input)
	if err != nil {
		return nil, d.fail(op, err)
	}
	out, err := d.writable(l.Output)
	if err != nil {
		return nil, d.fail(op, err)
	}

	switch l.Kernel {
	case compute.KernelFilter:
		table, err := d.readable(l.Table)
		if err != nil {
			return nil, d.fail(op, err)
		}
		p, _ := compute.DecodeFilterParams(l.Params)
		compute.Logger().Debug("cpu: enqueue filter",
			"axis", p.Axis, "kind", p.Kind, "kernel", p.KernelIndex,
			"in", p.InShape, "out", p.OutShape, "deps", len(waitFor))
		return d.enqueue(op, waitFor, func() error {
			return d.parallel(p.OutLen(), func(lo, hi int) {
				kernels.Filter(p, table.data, in.data, out.data, lo, hi)
			})
		})
	case compute.KernelScale:
		p, _ := compute.DecodeScaleParams(l.Params)
		return d.enqueue(op, waitFor, func() error {
			return d.parallel(int(p.Len), func(lo, hi int) {
				kernels.Scale(p, in.data, out.data, lo, hi)
			})
		})
	case compute.KernelMask:
		mask, err := d.readable(l.Table)
		if err != nil {
			return nil, d.fail(op, err)
		}
		p, _ := compute.DecodeMaskParams(l.Params)
		return d.enqueue(op, waitFor, func() error {
			return d.parallel(int(p.Len), func(lo, hi int) {
				kernels.Mask(p, mask.data, in.data, out.data, lo, hi)
			})
		})
	}
	return nil, d.fail(op, compute.ErrUnknownKernel)
}

// Close waits for all enqueued commands and stops the worker pool.
// Further calls fail with compute.ErrDeviceClosed.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.inflight.Wait()
	d.pool.Close()
	compute.Logger().Info("cpu: device closed")
	return nil
}

// enqueue starts a command that runs work once waitFor has completed.
func (d *Device) enqueue(label string, waitFor []*compute.Event, work func() error) (*compute.Event, error) {
	deps := append([]*compute.Event(nil), waitFor...)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, d.fail(label, compute.ErrDeviceClosed)
	}
	d.inflight.Add(1)
	d.mu.Unlock()

	ev := compute.NewEvent(label)
	go func() {
		defer d.inflight.Done()
		if err := compute.WaitAll(deps); err != nil {
			ev.Complete(err)
			return
		}
		ev.Complete(compute.Wrap(Name, label, work()))
	}()
	return ev, nil
}

func (d *Device) parallel(n int, fn func(lo, hi int)) error {
	if !d.pool.For(n, d.grain, fn) {
		return compute.ErrDeviceClosed
	}
	return nil
}

func (d *Device) checkOpen(op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return d.fail(op, compute.ErrDeviceClosed)
	}
	return nil
}

func (d *Device) readable(r compute.Readable) (*storage, error) {
	native, ok := compute.Native(d, r)
	if !ok {
		return nil, compute.ErrForeignBuffer
	}
	s, ok := native.(*storage)
	if !ok {
		return nil, compute.ErrForeignBuffer
	}
	return s, nil
}

func (d *Device) writable(b *compute.Buffer) (*storage, error) {
	native, ok := compute.NativeBuffer(d, b)
	if !ok {
		return nil, compute.ErrForeignBuffer
	}
	s, ok := native.(*storage)
	if !ok {
		return nil, compute.ErrForeignBuffer
	}
	return s, nil
}

func (d *Device) fail(op string, err error) error {
	return compute.Wrap(Name, op, err)
}
