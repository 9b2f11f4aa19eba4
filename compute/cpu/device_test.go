package cpu

import (
	"errors"
	"testing"
	"time"

	"github.com/gogpu/lightfield/compute"
)

func newTestDevice(t *testing.T) *Device {
	t.Helper()
	d := New(WithWorkers(4), WithGrain(16))
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func mustWait(t *testing.T, ev *compute.Event, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := ev.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestDevice_UploadDownload(t *testing.T) {
	d := newTestDevice(t)
	buf, err := d.NewBuffer("data", 5)
	if err != nil {
		t.Fatal(err)
	}
	host := []float32{1, 2, 3, 4, 5}
	up, err := d.Upload(buf, host, nil)
	if err != nil {
		t.Fatal(err)
	}
	host[0] = 100 // Upload copies at call time.

	out := make([]float32, 5)
	ev, err := d.Download(buf, out, []*compute.Event{up})
	mustWait(t, ev, err)
	for i, want := range []float32{1, 2, 3, 4, 5} {
		if out[i] != want {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want)
		}
	}
}

func TestDevice_SizeErrors(t *testing.T) {
	d := newTestDevice(t)
	buf, _ := d.NewBuffer("small", 2)
	if _, err := d.Upload(buf, make([]float32, 3), nil); !errors.Is(err, compute.ErrBufferSize) {
		t.Errorf("oversized upload: %v, want ErrBufferSize", err)
	}
	if _, err := d.Download(buf, make([]float32, 3), nil); !errors.Is(err, compute.ErrBufferSize) {
		t.Errorf("oversized download: %v, want ErrBufferSize", err)
	}
	if _, err := d.NewBuffer("neg", -1); !errors.Is(err, compute.ErrBufferSize) {
		t.Errorf("negative buffer: %v, want ErrBufferSize", err)
	}
}

func TestDevice_FillScaleChain(t *testing.T) {
	d := newTestDevice(t)
	a, _ := d.NewBuffer("a", 1000)
	b, _ := d.NewBuffer("b", 1000)

	fa, err := d.Fill(a, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	fb, err := d.Fill(b, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	sc, err := d.Run(compute.ScaleLaunch(compute.ScaleParams{Len: 1000, Factor: 2}, a.Const(), b), compute.Deps(fa, fb))
	if err != nil {
		t.Fatal(err)
	}
	out := make([]float32, 1000)
	ev, err := d.Download(b, out, []*compute.Event{sc})
	mustWait(t, ev, err)
	for i, v := range out {
		if v != 7 {
			t.Fatalf("out[%d] = %v, want 7", i, v)
		}
	}
}

func TestDevice_WaitsForDependencies(t *testing.T) {
	d := newTestDevice(t)
	buf, _ := d.NewBuffer("gated", 1)
	gate := compute.NewEvent("gate")

	up, err := d.Upload(buf, []float32{42}, []*compute.Event{gate})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-up.Done():
		t.Fatal("upload ran before its dependency completed")
	case <-time.After(10 * time.Millisecond):
	}

	gate.Complete(nil)
	out := make([]float32, 1)
	ev, err := d.Download(buf, out, []*compute.Event{up})
	mustWait(t, ev, err)
	if out[0] != 42 {
		t.Errorf("out = %v, want 42", out[0])
	}
}

func TestDevice_ErrorPropagates(t *testing.T) {
	d := newTestDevice(t)
	buf, _ := d.NewBuffer("skip", 1)
	cause := compute.Wrap("test", "upstream", errors.New("boom"))
	failed := compute.Completed("failed", cause)

	up, err := d.Upload(buf, []float32{9}, []*compute.Event{failed})
	if err != nil {
		t.Fatal(err)
	}
	if err := up.Wait(); !errors.Is(err, cause) {
		t.Fatalf("dependent event error = %v, want %v", err, cause)
	}

	out := []float32{-1}
	ev, err := d.Download(buf, out, nil)
	mustWait(t, ev, err)
	if out[0] != 0 {
		t.Errorf("skipped upload still wrote %v", out[0])
	}
}

func TestDevice_FilterMatchesReference(t *testing.T) {
	d := newTestDevice(t)
	p := compute.FilterParams{
		InShape: [3]int32{3, 2, 1}, OutShape: [3]int32{3, 4, 1},
		Axis: compute.AxisT, Kind: compute.TableRect,
		Flags: compute.FilterOverwrite, Scale: 1,
	}
	// Each output row averages over half an input row.
	table, err := d.NewConstBuffer("table", []float32{2, 0.5, 0, 0.5})
	if err != nil {
		t.Fatal(err)
	}
	in, _ := d.NewBuffer("in", 6)
	out, _ := d.NewBuffer("out", 12)
	up, _ := d.Upload(in, []float32{1, 2, 3, 4, 5, 6}, nil)
	run, err := d.Run(compute.FilterLaunch(p, table, in, out), []*compute.Event{up})
	if err != nil {
		t.Fatal(err)
	}
	host := make([]float32, 12)
	ev, err := d.Download(out, host, []*compute.Event{run})
	mustWait(t, ev, err)
	want := []float32{1, 2, 3, 1, 2, 3, 4, 5, 6, 4, 5, 6}
	for i := range want {
		if host[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, host[i], want[i])
		}
	}
}

func TestDevice_Mask(t *testing.T) {
	d := newTestDevice(t)
	mask, err := d.NewConstBuffer("mask", []float32{0, 0.5, 1, 2})
	if err != nil {
		t.Fatal(err)
	}
	in, _ := d.NewBuffer("in", 4)
	out, _ := d.NewBuffer("out", 4)
	up, _ := d.Upload(in, []float32{3, 4, 5, 6}, nil)
	fill, _ := d.Fill(out, 1, nil)
	run, err := d.Run(compute.MaskLaunch(compute.MaskParams{Len: 4}, mask, in, out), compute.Deps(up, fill))
	if err != nil {
		t.Fatal(err)
	}
	host := make([]float32, 4)
	ev, err := d.Download(out, host, []*compute.Event{run})
	mustWait(t, ev, err)
	want := []float32{1, 3, 6, 13}
	for i := range want {
		if host[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, host[i], want[i])
		}
	}
}

func TestDevice_RejectsInvalidLaunch(t *testing.T) {
	d := newTestDevice(t)
	a, _ := d.NewBuffer("a", 4)
	_, err := d.Run(compute.ScaleLaunch(compute.ScaleParams{Len: 4}, a.Const(), a), nil)
	var de *compute.DeviceError
	if !errors.As(err, &de) {
		t.Errorf("aliased launch error = %v, want *DeviceError", err)
	}
}

func TestDevice_ForeignBuffer(t *testing.T) {
	d := newTestDevice(t)
	other := newTestDevice(t)
	buf, _ := other.NewBuffer("theirs", 1)
	if _, err := d.Upload(buf, []float32{1}, nil); !errors.Is(err, compute.ErrForeignBuffer) {
		t.Errorf("foreign upload: %v, want ErrForeignBuffer", err)
	}
}

func TestDevice_Closed(t *testing.T) {
	d := New(WithWorkers(1))
	buf, _ := d.NewBuffer("b", 1)
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if _, err := d.Fill(buf, 1, nil); !errors.Is(err, compute.ErrDeviceClosed) {
		t.Errorf("Fill after close: %v, want ErrDeviceClosed", err)
	}
	if _, err := d.NewBuffer("late", 1); !errors.Is(err, compute.ErrDeviceClosed) {
		t.Errorf("NewBuffer after close: %v, want ErrDeviceClosed", err)
	}
}

func TestRegistered(t *testing.T) {
	dev, err := compute.Open(Name)
	if err != nil {
		t.Fatalf("Open(%q): %v", Name, err)
	}
	defer dev.Close()
	if dev.Name() != Name {
		t.Errorf("Name() = %q", dev.Name())
	}
}
