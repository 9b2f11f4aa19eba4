package lightfield

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/gogpu/lightfield/compute"
)

func TestForwSubset_SumsAngles(t *testing.T) {
	dev := newTestDevice(t)
	src, dst := smallPlanes(t, Pillbox)
	acc, err := NewTransport(dev, src, dst, WithOverwrite(false), WithOntoDetector(true))
	if err != nil {
		t.Fatal(err)
	}
	defer acc.Release()
	single, err := NewTransport(dev, src, dst, WithOntoDetector(true))
	if err != nil {
		t.Fatal(err)
	}
	defer single.Release()

	x := randomVector(rand.New(rand.NewSource(8)), src.Geom.Len())
	in := upload(t, dev, "x", x)
	angles := []int{1, 4, 9}

	// view starts zeroed, so the subset sum lands there.
	view := newBuffer(t, dev, "view", dst.Geom.Len())
	ev, err := ForwSubset(acc, in.Const(), view, angles, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := download(t, dev, view, ev)

	want := make([]float64, dst.Geom.Len())
	part := newBuffer(t, dev, "part", dst.Geom.Len())
	for _, ia := range angles {
		e, err := single.ForwAngle(in.Const(), part, ia, nil)
		if err != nil {
			t.Fatal(err)
		}
		for i, v := range download(t, dev, part, e) {
			want[i] += float64(v)
		}
	}
	for i := range want {
		if math.Abs(float64(got[i])-want[i]) > 1e-5*math.Max(1, math.Abs(want[i])) {
			t.Fatalf("view[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestBack_AllAngles(t *testing.T) {
	dev := newTestDevice(t)
	src, dst := smallPlanes(t, Dirac)
	tr, err := NewTransport(dev, src, dst, WithOverwrite(false))
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Release()

	rng := rand.New(rand.NewSource(2))
	x := randomVector(rng, src.Geom.Len())
	y := randomVector(rng, dst.Geom.Len())
	xb, yb := upload(t, dev, "x", x), upload(t, dev, "y", y)
	fx := newBuffer(t, dev, "forw", dst.Geom.Len())
	by := newBuffer(t, dev, "back", src.Geom.Len())

	fe, err := Forw(tr, xb.Const(), fx, nil)
	if err != nil {
		t.Fatal(err)
	}
	be, err := Back(tr, yb.Const(), by, compute.Deps(fe))
	if err != nil {
		t.Fatal(err)
	}
	a := dot(download(t, dev, fx, fe), y)
	b := dot(x, download(t, dev, by, be))
	if e := relErr(a, b); e > 1e-4 {
		t.Errorf("summed over angles: <Ax,y> = %v, <x,A'y> = %v, relative error %v", a, b, e)
	}
}

func TestSubset_Empty(t *testing.T) {
	dev := newTestDevice(t)
	src, dst := smallPlanes(t, Dirac)
	tr, err := NewTransport(dev, src, dst)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Release()
	x := newBuffer(t, dev, "x", src.Geom.Len())
	y := newBuffer(t, dev, "y", dst.Geom.Len())

	ev, err := ForwSubset(tr, x.Const(), y, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !ev.IsDone() {
		t.Error("empty subset without dependencies is not complete")
	}

	upstream := errors.New("upstream failed")
	failed := compute.Completed("failed", upstream)
	ev, err = BackSubset(tr, y.Const(), x, []int{}, []*compute.Event{failed})
	if err != nil {
		t.Fatal(err)
	}
	if err := ev.Wait(); !errors.Is(err, upstream) {
		t.Errorf("empty subset event = %v, want the dependency error", err)
	}
}

func TestSubset_OutOfRange(t *testing.T) {
	dev := newTestDevice(t)
	src, dst := smallPlanes(t, Dirac)
	tr, err := NewTransport(dev, src, dst)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Release()
	x := newBuffer(t, dev, "x", src.Geom.Len())
	y := newBuffer(t, dev, "y", dst.Geom.Len())

	if _, err := ForwSubset(tr, x.Const(), y, []int{0, tr.Na()}, nil); !errors.Is(err, ErrAngleOutOfRange) {
		t.Errorf("ForwSubset = %v, want ErrAngleOutOfRange", err)
	}
	if got := AllAngles(tr); len(got) != tr.Na() || got[len(got)-1] != tr.Na()-1 {
		t.Errorf("AllAngles() = %v", got)
	}
}
