package lightfield

import "testing"

func TestTransportOptions(t *testing.T) {
	tests := []struct {
		name string
		opts []TransportOption
		want transportOptions
	}{
		{"defaults", nil, transportOptions{overwrite: true}},
		{"accumulate", []TransportOption{WithOverwrite(false)}, transportOptions{}},
		{"detector", []TransportOption{WithOverwrite(false), WithOntoDetector(true)}, transportOptions{ontoDetector: true}},
		{"conservative", []TransportOption{WithConservative(true)}, transportOptions{overwrite: true, conservative: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := defaultTransportOptions()
			for _, opt := range tt.opts {
				opt(&got)
			}
			if got != tt.want {
				t.Errorf("options = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestVolumeOptions(t *testing.T) {
	tests := []struct {
		name string
		opts []VolumeOption
		want volumeOptions
	}{
		{"defaults", nil, volumeOptions{overwriteForw: true, overwriteBack: true}},
		{"imager", []VolumeOption{WithOverwriteForw(false), WithOverwriteBack(false), WithVolumeOntoDetector(true)}, volumeOptions{ontoDetector: true}},
		{"back only", []VolumeOption{WithOverwriteBack(false)}, volumeOptions{overwriteForw: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := defaultVolumeOptions()
			for _, opt := range tt.opts {
				opt(&got)
			}
			if got != tt.want {
				t.Errorf("options = %+v, want %+v", got, tt.want)
			}
		})
	}
}
