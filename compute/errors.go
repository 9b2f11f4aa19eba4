package compute

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendNotAvailable is returned when a requested backend is not
	// registered or cannot open a device.
	ErrBackendNotAvailable = errors.New("compute: backend not available")

	// ErrDeviceClosed is returned by operations on a closed device.
	ErrDeviceClosed = errors.New("compute: device closed")

	// ErrBufferSize is returned when a host slice or launch shape does not
	// match the size of a device buffer.
	ErrBufferSize = errors.New("compute: buffer size mismatch")

	// ErrForeignBuffer is returned when a buffer is passed to a device that
	// did not allocate it.
	ErrForeignBuffer = errors.New("compute: buffer belongs to another device")

	// ErrUnknownKernel is returned for a launch with an unsupported kernel.
	ErrUnknownKernel = errors.New("compute: unknown kernel")
)

// DeviceError is the single error type reported for failed device work:
// allocation, shader or pipeline creation, enqueue and execution failures.
// Events that depend on a failed event complete with the same DeviceError.
type DeviceError struct {
	Device string // backend name
	Op     string // operation that failed, e.g. "run filter"
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("compute: %s: %s: %v", e.Device, e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Wrap returns err as a *DeviceError unless it already is one.
func Wrap(device, op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DeviceError
	if errors.As(err, &de) {
		return err
	}
	return &DeviceError{Device: device, Op: op, Err: err}
}
