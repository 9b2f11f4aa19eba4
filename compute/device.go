package compute

import "fmt"

// Kernel identifies a device kernel.
type Kernel uint32

const (
	// KernelFilter resamples a grid along one axis with a spline kernel
	// table. Parameters: [FilterParams].
	KernelFilter Kernel = iota + 1

	// KernelScale multiplies a buffer by a scalar. Parameters: [ScaleParams].
	KernelScale

	// KernelMask multiplies a buffer elementwise by the weights bound as
	// the table. Parameters: [MaskParams].
	KernelMask
)

func (k Kernel) String() string {
	switch k {
	case KernelFilter:
		return "filter"
	case KernelScale:
		return "scale"
	case KernelMask:
		return "mask"
	}
	return fmt.Sprintf("Kernel(%d)", uint32(k))
}

// Launch describes one kernel dispatch.
type Launch struct {
	Kernel Kernel
	Params []byte   // packed parameter block, see layout.go
	Table  Readable // spline-kernel table or mask weights
	Input  Readable
	Output *Buffer
}

// FilterLaunch builds a [KernelFilter] launch.
func FilterLaunch(p FilterParams, table, in Readable, out *Buffer) Launch {
	return Launch{Kernel: KernelFilter, Params: p.Bytes(), Table: table, Input: in, Output: out}
}

// ScaleLaunch builds a [KernelScale] launch.
func ScaleLaunch(p ScaleParams, in Readable, out *Buffer) Launch {
	return Launch{Kernel: KernelScale, Params: p.Bytes(), Input: in, Output: out}
}

// MaskLaunch builds a [KernelMask] launch.
func MaskLaunch(p MaskParams, mask, in Readable, out *Buffer) Launch {
	return Launch{Kernel: KernelMask, Params: p.Bytes(), Table: mask, Input: in, Output: out}
}

// Validate checks buffer presence, aliasing and sizes of the launch.
func (l Launch) Validate() error {
	if l.Input == nil || l.Input.memory() == nil || l.Output.memory() == nil {
		return fmt.Errorf("compute: %s launch without input or output", l.Kernel)
	}
	if l.Input.memory() == l.Output.memory() {
		return fmt.Errorf("compute: %s launch reads and writes %q", l.Kernel, l.Output.Label())
	}
	switch l.Kernel {
	case KernelFilter:
		if l.Table == nil || l.Table.memory() == nil {
			return fmt.Errorf("compute: filter launch without kernel table")
		}
		p, err := DecodeFilterParams(l.Params)
		if err != nil {
			return err
		}
		return p.Validate(l.Table.Len(), l.Input.Len(), l.Output.Len())
	case KernelScale:
		p, err := DecodeScaleParams(l.Params)
		if err != nil {
			return err
		}
		if int(p.Len) > l.Input.Len() || int(p.Len) > l.Output.Len() {
			return fmt.Errorf("%w: scale of %d elements", ErrBufferSize, p.Len)
		}
		return nil
	case KernelMask:
		if l.Table == nil || l.Table.memory() == nil {
			return fmt.Errorf("compute: mask launch without weights")
		}
		if l.Table.memory() == l.Output.memory() {
			return fmt.Errorf("compute: mask launch reads and writes %q", l.Output.Label())
		}
		p, err := DecodeMaskParams(l.Params)
		if err != nil {
			return err
		}
		if n := int(p.Len); n > l.Table.Len() || n > l.Input.Len() || n > l.Output.Len() {
			return fmt.Errorf("%w: mask of %d elements", ErrBufferSize, p.Len)
		}
		return nil
	}
	return fmt.Errorf("%w: %d", ErrUnknownKernel, uint32(l.Kernel))
}

// Device is an asynchronous compute device with a single logical queue.
//
// Every method that touches buffer contents takes a waitFor list and returns
// an [*Event]. The operation starts only after every event in waitFor has
// completed; if any of them failed, the operation is skipped and its event
// completes with that error. Host slices passed to Upload are copied before
// the call returns. The out slice of Download is written when its event
// completes and must not be read before.
//
// Implementations must be safe for concurrent use.
type Device interface {
	// Name returns the backend name, e.g. "cpu" or "wgpu".
	Name() string

	// NewBuffer allocates a zero-initialized mutable buffer of n float32s.
	NewBuffer(label string, n int) (*Buffer, error)

	// NewConstBuffer allocates an immutable buffer holding data. It
	// completes synchronously; the returned buffer is ready for use.
	NewConstBuffer(label string, data []float32) (*ConstBuffer, error)

	// Upload copies data into dst.
	Upload(dst *Buffer, data []float32, waitFor []*Event) (*Event, error)

	// Download copies src into out.
	Download(src Readable, out []float32, waitFor []*Event) (*Event, error)

	// Fill sets every element of dst to value.
	Fill(dst *Buffer, value float32, waitFor []*Event) (*Event, error)

	// Run enqueues a kernel launch.
	Run(l Launch, waitFor []*Event) (*Event, error)

	// Close waits for queued work and releases the device.
	Close() error
}
