// Package lightfield simulates and inverts light transport between parallel
// optical planes for plenoptic imaging and tomographic reconstruction.
//
// # Overview
//
// A light field is a 4-D radiance function over two spatial and two angular
// coordinates. lightfield samples it on planes (detectors, microlens arrays,
// intermediate planes) and in volumes, and moves it between them with
// separable resampling operators whose forward and backward directions are
// exact transposes of each other.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/lightfield"
//	    "github.com/gogpu/lightfield/compute"
//	    _ "github.com/gogpu/lightfield/compute/cpu"
//	)
//
//	lens := lightfield.Lens{RadiusS: 20, RadiusT: 15, FocalS: 30, FocalT: 35}
//	plane, _ := lightfield.NewAngularPlane(lens, lightfield.Dirac, 20)
//	src, _ := lightfield.NewLightFieldGeometry(
//	    lightfield.SampledPlane{Ns: 100, Nt: 200, Ds: 1, Dt: 1.1},
//	    plane, lens.Optics().Then(lightfield.Translation(500)).MustInvert())
//	dst, _ := lightfield.NewLightFieldGeometry(
//	    lightfield.SampledPlane{Ns: 1024, Nt: 2048, Ds: 0.05, Dt: 0.03},
//	    plane, lightfield.Translation(40))
//
//	dev, _ := compute.OpenDefault()
//	tr, _ := lightfield.NewTransport(dev, src, dst)
//	done, _ := tr.ForwAngle(object, view, 50, nil)
//	err := done.Wait()
//
// # Architecture
//
// The package is organized into:
//   - Optics: Optics1d, Optics2d (affine phase-space maps, one per axis)
//   - Sampling: SampledPlane, PixelRegion, LightVolume, AngularPlane, occluders, Mask
//   - Kernels: LightFieldGeometry.TransportTo derives SplineKernel footprints
//   - Operators: Transport, VolumeTransport, LensArray, VolumeRotation, the
//     Projector helpers
//   - Devices: the compute package and its cpu and wgpu backends
//
// # Coordinate System
//
// Pixel 0 of every axis sits at the most negative coordinate. Each plane
// carries optics that map its local (position, angle) coordinates to a
// shared root plane, on which the angular samples are defined. The s and t
// axes never mix.
//
// # Concurrency
//
// Operators enqueue device work and return events. Calls into one operator
// instance share scratch buffers and must be chained through their events;
// independent instances may run concurrently.
package lightfield
