package lightfield

import "errors"

// Sentinel errors returned by geometry and transport construction.
var (
	// ErrBasisMismatch is returned when two geometries with different
	// angular bases are connected by a transport.
	ErrBasisMismatch = errors.New("lightfield: angular basis mismatch")

	// ErrSingularOptics is returned when inverting an optics transform whose
	// 2x2 block is singular.
	ErrSingularOptics = errors.New("lightfield: singular optics transform")

	// ErrInvalidGeometry is returned for non-positive sizes or pitches,
	// empty angular planes and degenerate plane-to-plane maps.
	ErrInvalidGeometry = errors.New("lightfield: invalid geometry")

	// ErrAngleOutOfRange is returned when an angle index is not in [0, Na).
	ErrAngleOutOfRange = errors.New("lightfield: angle index out of range")
)
