package lightfield

import (
	"fmt"
	"math"
)

// LightVolume is a regular nx x ny x nz voxel grid. Slices are
// perpendicular to z; voxel (ix, iy, iz) is stored at (iz*ny+iy)*nx+ix.
type LightVolume struct {
	Nx, Ny, Nz                int
	Dx, Dy, Dz                float64
	OffsetX, OffsetY, OffsetZ float64
}

// Validate reports ErrInvalidGeometry for non-positive sizes or pitches.
func (v LightVolume) Validate() error {
	if v.Nz <= 0 {
		return fmt.Errorf("%w: volume depth %d", ErrInvalidGeometry, v.Nz)
	}
	if !(v.Dz > 0) || math.IsInf(v.Dz, 0) {
		return fmt.Errorf("%w: slice pitch %v", ErrInvalidGeometry, v.Dz)
	}
	return v.SliceGeometry().Validate()
}

// Len returns the number of voxels.
func (v LightVolume) Len() int { return v.Nx * v.Ny * v.Nz }

// SliceGeometry returns the transaxial plane of one slice.
func (v LightVolume) SliceGeometry() SampledPlane {
	return SampledPlane{Ns: v.Nx, Nt: v.Ny, Ds: v.Dx, Dt: v.Dy, OffsetS: v.OffsetX, OffsetT: v.OffsetY}
}

// Wz returns the index of the slice centered on z = 0.
func (v LightVolume) Wz() float64 { return float64(v.Nz-1)/2 + v.OffsetZ }

// SliceZ returns the z coordinate of slice iz.
func (v LightVolume) SliceZ(iz int) float64 { return (float64(iz) - v.Wz()) * v.Dz }

// OpticsToZ0 returns the propagation from slice iz to the z = 0 plane.
func (v LightVolume) OpticsToZ0(iz int) Optics2d {
	return Translation(-v.SliceZ(iz))
}
