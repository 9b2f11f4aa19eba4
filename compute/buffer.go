package compute

import "sync"

// memory is the backend allocation shared by a Buffer and its const views.
type memory struct {
	owner   Device
	label   string
	n       int
	native  any
	release func()
	once    sync.Once
}

// Readable is implemented by [*Buffer] and [*ConstBuffer]: anything a kernel
// may read from. The interface is sealed to this package.
type Readable interface {
	Len() int
	Label() string
	memory() *memory
}

// Buffer is a mutable device array of float32 values.
//
// A Buffer is owned by exactly one component at a time; only the owner
// enqueues writes to it. Read-only views are obtained with [Buffer.Const].
type Buffer struct {
	m *memory
}

// ConstBuffer is a read-only view of device memory. Kernel parameter tables
// are created as ConstBuffers and shared across concurrent operations.
type ConstBuffer struct {
	m *memory
}

// NewBuffer wraps a backend allocation. It is called by device
// implementations; release is invoked once by [Buffer.Release].
func NewBuffer(owner Device, label string, n int, native any, release func()) *Buffer {
	return &Buffer{m: &memory{owner: owner, label: label, n: n, native: native, release: release}}
}

// NewConstBuffer wraps a backend allocation as a read-only buffer.
func NewConstBuffer(owner Device, label string, n int, native any, release func()) *ConstBuffer {
	return &ConstBuffer{m: &memory{owner: owner, label: label, n: n, native: native, release: release}}
}

// Len returns the number of float32 elements.
func (b *Buffer) Len() int { return b.m.n }

// Label returns the debug label.
func (b *Buffer) Label() string { return b.m.label }

// Const returns a read-only view of b. The view stays valid until b is
// released.
func (b *Buffer) Const() *ConstBuffer { return &ConstBuffer{m: b.m} }

// Release frees the device memory. Pending operations that use the buffer
// must have completed. Release is idempotent.
func (b *Buffer) Release() { b.m.free() }

func (b *Buffer) memory() *memory {
	if b == nil {
		return nil
	}
	return b.m
}

// Len returns the number of float32 elements.
func (c *ConstBuffer) Len() int { return c.m.n }

// Label returns the debug label.
func (c *ConstBuffer) Label() string { return c.m.label }

// Release frees the device memory behind the view.
func (c *ConstBuffer) Release() { c.m.free() }

func (c *ConstBuffer) memory() *memory {
	if c == nil {
		return nil
	}
	return c.m
}

func (m *memory) free() {
	m.once.Do(func() {
		if m.release != nil {
			m.release()
		}
	})
}

// Native returns the backend allocation behind r and whether it was
// allocated by dev. Device implementations use it to resolve their own
// storage.
func Native(dev Device, r Readable) (any, bool) {
	if r == nil {
		return nil, false
	}
	m := r.memory()
	if m == nil {
		return nil, false
	}
	return m.native, m.owner == dev
}

// NativeBuffer is the writable counterpart of [Native].
func NativeBuffer(dev Device, b *Buffer) (any, bool) {
	if b == nil || b.m == nil {
		return nil, false
	}
	return b.m.native, b.m.owner == dev
}
