package lightfield

// TransportOption configures a Transport during creation.
//
// Example:
//
//	// Accumulate every angle of a subset onto a detector:
//	tr, err := lightfield.NewTransport(dev, src, dst,
//	    lightfield.WithOverwrite(false),
//	    lightfield.WithOntoDetector(true))
type TransportOption func(*transportOptions)

type transportOptions struct {
	overwrite    bool
	ontoDetector bool
	conservative bool
	srcRegion    *PixelRegion
	dstRegion    *PixelRegion
}

func defaultTransportOptions() transportOptions {
	return transportOptions{overwrite: true}
}

// WithOverwrite selects whether passes replace their output (the default)
// or accumulate into it.
func WithOverwrite(overwrite bool) TransportOption {
	return func(o *transportOptions) {
		o.overwrite = overwrite
	}
}

// WithOntoDetector weights each angle by its angular sample weight instead
// of normalizing by the destination pixel volume.
func WithOntoDetector(onto bool) TransportOption {
	return func(o *transportOptions) {
		o.ontoDetector = onto
	}
}

// WithConservative keeps footprint mass that leaves the input grid by
// assigning it to the edge pixels. The resulting operators are no longer
// exact adjoints of each other.
func WithConservative(conservative bool) TransportOption {
	return func(o *transportOptions) {
		o.conservative = conservative
	}
}

// WithSourceRegion restricts the transport to source pixels inside r. The
// backprojection writes only inside r.
func WithSourceRegion(r PixelRegion) TransportOption {
	return func(o *transportOptions) {
		o.srcRegion = &r
	}
}

// WithDestinationRegion restricts the transport to destination pixels
// inside r. The forward projection writes only inside r.
func WithDestinationRegion(r PixelRegion) TransportOption {
	return func(o *transportOptions) {
		o.dstRegion = &r
	}
}

// VolumeOption configures a VolumeTransport during creation.
type VolumeOption func(*volumeOptions)

type volumeOptions struct {
	overwriteForw bool
	overwriteBack bool
	ontoDetector  bool
}

func defaultVolumeOptions() volumeOptions {
	return volumeOptions{overwriteForw: true, overwriteBack: true}
}

// WithOverwriteForw selects whether the forward projection replaces the
// detector contents (the default) or accumulates into them.
func WithOverwriteForw(overwrite bool) VolumeOption {
	return func(o *volumeOptions) {
		o.overwriteForw = overwrite
	}
}

// WithOverwriteBack selects whether the backprojection replaces the volume
// contents (the default) or accumulates into them.
func WithOverwriteBack(overwrite bool) VolumeOption {
	return func(o *volumeOptions) {
		o.overwriteBack = overwrite
	}
}

// WithVolumeOntoDetector weights each angle by its angular sample weight
// instead of normalizing by the detector pixel volume.
func WithVolumeOntoDetector(onto bool) VolumeOption {
	return func(o *volumeOptions) {
		o.ontoDetector = onto
	}
}
