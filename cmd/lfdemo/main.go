// Command lfdemo projects a test pattern through a thin lens onto a sensor
// plane, checks that the backprojection is the adjoint of the projection and
// writes a PNG preview of the sensor image.
package main

import (
	"flag"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/lightfield"
	"github.com/gogpu/lightfield/compute"
	_ "github.com/gogpu/lightfield/compute/cpu"
	_ "github.com/gogpu/lightfield/compute/wgpu"
)

func main() {
	var (
		backend = flag.String("backend", "", "compute backend (default: best available)")
		basis   = flag.String("basis", "dirac", "angular basis: dirac or pillbox")
		disc    = flag.Int("discretization", 20, "angular samples per lens axis")
		angle   = flag.Int("angle", 50, "angle index for the adjoint check")
		subsets = flag.Int("subsets", 8, "render the first of this many strided angle subsets")
		output  = flag.String("output", "lfdemo.png", "output file")
		width   = flag.Int("width", 512, "preview width")
		verbose = flag.Bool("v", false, "log device and transport activity")
	)
	flag.Parse()

	if *verbose {
		lightfield.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	b, err := parseBasis(*basis)
	if err != nil {
		log.Fatal(err)
	}
	dev, err := openDevice(*backend)
	if err != nil {
		log.Fatalf("Failed to open device: %v", err)
	}
	defer func() { _ = dev.Close() }()

	sc, err := newScene(b, *disc)
	if err != nil {
		log.Fatalf("Failed to build scene: %v", err)
	}

	p := message.NewPrinter(language.English)
	p.Printf("device %s, %s basis, %d angles\n", dev.Name(), b, sc.plane.Na())
	p.Printf("source %d x %d (%d pixels), sensor %d x %d (%d pixels)\n",
		sc.src.Geom.Ns, sc.src.Geom.Nt, sc.src.Geom.Len(),
		sc.dst.Geom.Ns, sc.dst.Geom.Nt, sc.dst.Geom.Len())

	start := time.Now()
	fy, xb, err := adjointCheck(dev, sc, *angle)
	if err != nil {
		log.Fatalf("Adjoint check failed: %v", err)
	}
	p.Printf("angle %d: <Ax,y> = %.6g, <x,A'y> = %.6g, relative error %.2e (%v)\n",
		*angle, fy, xb, relErr(fy, xb), time.Since(start).Round(time.Millisecond))

	start = time.Now()
	img, angles, err := render(dev, sc, *subsets)
	if err != nil {
		log.Fatalf("Render failed: %v", err)
	}
	caption := p.Sprintf("%s, %d of %d angles", b, angles, sc.plane.Na())
	if err := savePreview(*output, img, sc.dst.Geom.Ns, sc.dst.Geom.Nt, *width, caption); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}
	log.Printf("Preview saved to %s (%d angles, %v)\n", *output, angles, time.Since(start).Round(time.Millisecond))
}

func openDevice(name string) (compute.Device, error) {
	if name == "" {
		return compute.OpenDefault()
	}
	return compute.Open(name)
}

func parseBasis(s string) (lightfield.AngularBasis, error) {
	switch s {
	case "dirac":
		return lightfield.Dirac, nil
	case "pillbox":
		return lightfield.Pillbox, nil
	}
	return 0, errUnknownBasis(s)
}

type errUnknownBasis string

func (e errUnknownBasis) Error() string { return "unknown basis " + string(e) }

// scene is a thin lens 500 in front of a source plane and 40 before a
// sensor.
type scene struct {
	lens  lightfield.Lens
	plane lightfield.AngularPlane
	src   lightfield.LightFieldGeometry
	dst   lightfield.LightFieldGeometry
}

func newScene(b lightfield.AngularBasis, discretization int) (*scene, error) {
	lens := lightfield.Lens{RadiusS: 20, RadiusT: 15, FocalS: 30, FocalT: 35}
	plane, err := lightfield.NewAngularPlane(lens, b, discretization)
	if err != nil {
		return nil, err
	}
	toLens, err := lens.Optics().Then(lightfield.Translation(500)).Invert()
	if err != nil {
		return nil, err
	}
	src, err := lightfield.NewLightFieldGeometry(
		lightfield.SampledPlane{Ns: 100, Nt: 200, Ds: 1.0, Dt: 1.1}, plane, toLens)
	if err != nil {
		return nil, err
	}
	dst, err := lightfield.NewLightFieldGeometry(
		lightfield.SampledPlane{Ns: 1024, Nt: 2048, Ds: 0.05, Dt: 0.03}, plane, lightfield.Translation(40))
	if err != nil {
		return nil, err
	}
	return &scene{lens: lens, plane: plane, src: src, dst: dst}, nil
}

// adjointCheck returns <forw(x), y> and <x, back(y)> for random x and y.
func adjointCheck(dev compute.Device, sc *scene, angle int) (fy, xb float64, err error) {
	tr, err := lightfield.NewTransport(dev, sc.src, sc.dst)
	if err != nil {
		return 0, 0, err
	}
	defer tr.Release()

	rng := rand.New(rand.NewSource(1))
	x := randomVector(rng, sc.src.Geom.Len())
	y := randomVector(rng, sc.dst.Geom.Len())

	xBuf, xUp, err := uploadNew(dev, "x", x)
	if err != nil {
		return 0, 0, err
	}
	defer xBuf.Release()
	yBuf, yUp, err := uploadNew(dev, "y", y)
	if err != nil {
		return 0, 0, err
	}
	defer yBuf.Release()
	fx, err := dev.NewBuffer("forw_x", len(y))
	if err != nil {
		return 0, 0, err
	}
	defer fx.Release()
	by, err := dev.NewBuffer("back_y", len(x))
	if err != nil {
		return 0, 0, err
	}
	defer by.Release()

	fw, err := tr.ForwAngle(xBuf.Const(), fx, angle, compute.Deps(xUp))
	if err != nil {
		return 0, 0, err
	}
	bk, err := tr.BackAngle(yBuf.Const(), by, angle, compute.Deps(fw, yUp))
	if err != nil {
		return 0, 0, err
	}
	fxHost := make([]float32, len(y))
	byHost := make([]float32, len(x))
	d1, err := dev.Download(fx, fxHost, compute.Deps(fw))
	if err != nil {
		return 0, 0, err
	}
	d2, err := dev.Download(by, byHost, compute.Deps(bk))
	if err != nil {
		return 0, 0, err
	}
	if err := compute.WaitAll([]*compute.Event{d1, d2}); err != nil {
		return 0, 0, err
	}
	return dot(fxHost, y), dot(x, byHost), nil
}

// render projects a checkerboard through the first strided subset of the
// angles and returns the accumulated sensor image.
func render(dev compute.Device, sc *scene, subsets int) ([]float32, int, error) {
	tr, err := lightfield.NewTransport(dev, sc.src, sc.dst,
		lightfield.WithOverwrite(false), lightfield.WithOntoDetector(true))
	if err != nil {
		return nil, 0, err
	}
	defer tr.Release()

	groups, err := sc.plane.SubsetsStrided(subsets)
	if err != nil {
		return nil, 0, err
	}
	angles := groups[0]

	pattern := checkerboard(sc.src.Geom, 10)
	obj, up, err := uploadNew(dev, "pattern", pattern)
	if err != nil {
		return nil, 0, err
	}
	defer obj.Release()
	view, err := dev.NewBuffer("sensor", sc.dst.Geom.Len())
	if err != nil {
		return nil, 0, err
	}
	defer view.Release()

	done, err := lightfield.ForwSubset(tr, obj.Const(), view, angles, compute.Deps(up))
	if err != nil {
		return nil, 0, err
	}
	img := make([]float32, sc.dst.Geom.Len())
	down, err := dev.Download(view, img, compute.Deps(done))
	if err != nil {
		return nil, 0, err
	}
	if err := down.Wait(); err != nil {
		return nil, 0, err
	}
	return img, len(angles), nil
}

func uploadNew(dev compute.Device, label string, data []float32) (*compute.Buffer, *compute.Event, error) {
	buf, err := dev.NewBuffer(label, len(data))
	if err != nil {
		return nil, nil, err
	}
	ev, err := dev.Upload(buf, data, nil)
	if err != nil {
		buf.Release()
		return nil, nil, err
	}
	return buf, ev, nil
}

func checkerboard(g lightfield.SampledPlane, period int) []float32 {
	out := make([]float32, g.Len())
	for it := range g.Nt {
		for is := range g.Ns {
			if (is/period+it/period)%2 == 0 {
				out[g.Index(is, it)] = 1
			}
		}
	}
	return out
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
	d := max(abs(a), abs(b))
	if d == 0 {
		return 0
	}
	return abs(a-b) / d
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
