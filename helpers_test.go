package lightfield

import (
	"math"
	"math/rand"
	"testing"

	"github.com/gogpu/lightfield/compute"
	"github.com/gogpu/lightfield/compute/cpu"
)

func newTestDevice(t testing.TB) compute.Device {
	t.Helper()
	dev := cpu.New(cpu.WithWorkers(4))
	t.Cleanup(func() { _ = dev.Close() })
	return dev
}

// smallLens is the aperture used by the small plane fixtures.
var smallLens = Lens{RadiusS: 10, RadiusT: 8, FocalS: 40, FocalT: 45}

// smallPlanes returns a source plane imaged through smallLens and a
// destination plane behind it.
func smallPlanes(t testing.TB, basis AngularBasis) (src, dst LightFieldGeometry) {
	t.Helper()
	plane, err := NewAngularPlane(smallLens, basis, 8)
	if err != nil {
		t.Fatal(err)
	}
	src, err = NewLightFieldGeometry(
		SampledPlane{Ns: 40, Nt: 30, Ds: 1, Dt: 1},
		plane, smallLens.Optics().Then(Translation(200)).MustInvert())
	if err != nil {
		t.Fatal(err)
	}
	dst, err = NewLightFieldGeometry(
		SampledPlane{Ns: 64, Nt: 48, Ds: 0.5, Dt: 0.5, OffsetS: 0.5},
		plane, Translation(60))
	if err != nil {
		t.Fatal(err)
	}
	return src, dst
}

func randomVector(rng *rand.Rand, n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = rng.Float32()
	}
	return v
}

func dot(a, b []float32) float64 {
	var acc float64
	for i := range a {
		acc += float64(a[i]) * float64(b[i])
	}
	return acc
}

func relErr(a, b float64) float64 {
	return math.Abs(a-b) / math.Max(math.Abs(a), math.Abs(b))
}

// upload creates a buffer holding data and waits for it.
func upload(t testing.TB, dev compute.Device, label string, data []float32) *compute.Buffer {
	t.Helper()
	buf, err := dev.NewBuffer(label, len(data))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(buf.Release)
	ev, err := dev.Upload(buf, data, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := ev.Wait(); err != nil {
		t.Fatal(err)
	}
	return buf
}

func download(t testing.TB, dev compute.Device, buf compute.Readable, after *compute.Event) []float32 {
	t.Helper()
	out := make([]float32, buf.Len())
	ev, err := dev.Download(buf, out, compute.Deps(after))
	if err != nil {
		t.Fatal(err)
	}
	if err := ev.Wait(); err != nil {
		t.Fatal(err)
	}
	return out
}

func newBuffer(t testing.TB, dev compute.Device, label string, n int) *compute.Buffer {
	t.Helper()
	buf, err := dev.NewBuffer(label, n)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(buf.Release)
	return buf
}

// adjointPair runs one forward and one backward projection of random
// vectors and returns <forw(x), y> and <x, back(y)>.
func adjointPair(t testing.TB, dev compute.Device, p Projector, nx, ny, ia int, seed int64) (fy, xb float64) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	x := randomVector(rng, nx)
	y := randomVector(rng, ny)

	xBuf := upload(t, dev, "x", x)
	yBuf := upload(t, dev, "y", y)
	fxBuf := newBuffer(t, dev, "forw_x", ny)
	byBuf := newBuffer(t, dev, "back_y", nx)

	fw, err := p.ForwAngle(xBuf.Const(), fxBuf, ia, nil)
	if err != nil {
		t.Fatal(err)
	}
	bk, err := p.BackAngle(yBuf.Const(), byBuf, ia, compute.Deps(fw))
	if err != nil {
		t.Fatal(err)
	}
	fx := download(t, dev, fxBuf, fw)
	by := download(t, dev, byBuf, bk)
	return dot(fx, y), dot(x, by)
}
