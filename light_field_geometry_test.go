package lightfield

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/gogpu/lightfield/compute"
)

func TestSplineKernel_SortedBreakpoints(t *testing.T) {
	k := NewTrapezoid(1, 1, [4]float64{3, 1, 2, 0})
	want := []float64{0, 1, 2, 3}
	for i := range want {
		if k.Taus[i] != want[i] {
			t.Fatalf("Taus = %v, want %v", k.Taus, want)
		}
	}
	q := NewQuad(1, 1, 3.5, 1, 4, 2)
	for i := 1; i < len(q.Taus); i++ {
		if q.Taus[i] < q.Taus[i-1] {
			t.Fatalf("quad Taus = %v not ascending", q.Taus)
		}
	}
	if lo, hi := q.Support(); lo != 0 || hi != 7 {
		t.Errorf("Support() = (%v, %v), want (0, 7)", lo, hi)
	}
	if got := q.Integral(-10, 10); math.Abs(got-4) > 1e-12 {
		t.Errorf("quad Integral() = %v, want the widest box width 4", got)
	}
	if got := q.Evaluate(3.5); math.Abs(got-1) > 1e-12 {
		t.Errorf("quad Evaluate(center) = %v, want 1", got)
	}
}

func TestSplineKernel_EvaluateIntegral(t *testing.T) {
	k := NewTrapezoid(2, 0.5, [4]float64{0, 1, 3, 4})
	if got := k.Evaluate(2); got != 2 {
		t.Errorf("Evaluate(2) = %v, want 2", got)
	}
	if got := k.Integral(-10, 10); math.Abs(got-6) > 1e-12 {
		t.Errorf("Integral() = %v, want 6", got)
	}
	shifted := k.Shift(4)
	if lo, hi := shifted.Support(); lo != 2 || hi != 6 {
		t.Errorf("Shift(4).Support() = (%v, %v), want (2, 6)", lo, hi)
	}
	table := k.appendTo(nil)
	if len(table) != compute.TableTrapezoid.Stride() || table[0] != 2 || table[1] != 0.5 || table[5] != 4 {
		t.Errorf("appendTo() = %v", table)
	}
}

// kernelFixtures returns geometry pairs with varied magnification and sign.
func kernelFixtures(t *testing.T, basis AngularBasis) [][2]LightFieldGeometry {
	t.Helper()
	src, dst := smallPlanes(t, basis)
	lens := Lens{CenterS: 2, CenterT: -1, RadiusS: 12, RadiusT: 9, FocalS: 50, FocalT: -70}
	plane, err := NewAngularPlane(lens, basis, 6)
	if err != nil {
		t.Fatal(err)
	}
	far, err := NewLightFieldGeometry(SampledPlane{Ns: 30, Nt: 20, Ds: 2, Dt: 1.5}, plane, Translation(-300))
	if err != nil {
		t.Fatal(err)
	}
	near, err := NewLightFieldGeometry(SampledPlane{Ns: 50, Nt: 60, Ds: 0.2, Dt: 0.25, OffsetT: 3},
		plane, lens.Optics().Then(Translation(35)).MustInvert())
	if err != nil {
		t.Fatal(err)
	}
	return [][2]LightFieldGeometry{{src, dst}, {dst, src}, {far, near}, {near, far}}
}

func TestTransportTo_Breakpoints(t *testing.T) {
	for _, basis := range []AngularBasis{Dirac, Pillbox} {
		t.Run(basis.String(), func(t *testing.T) {
			for f, pair := range kernelFixtures(t, basis) {
				for ia := range pair[0].Na() {
					ks, kt, err := pair[0].TransportTo(pair[1], ia)
					if err != nil {
						t.Fatalf("fixture %d angle %d: %v", f, ia, err)
					}
					for _, k := range []SplineKernel{ks, kt} {
						if k.Kind != basisTable(basis) {
							t.Fatalf("fixture %d angle %d: kind %v", f, ia, k.Kind)
						}
						for i := 1; i < len(k.Taus); i++ {
							if k.Taus[i] < k.Taus[i-1] {
								t.Fatalf("fixture %d angle %d: breakpoints %v decrease", f, ia, k.Taus)
							}
						}
						if !(k.Height > 0) {
							t.Fatalf("fixture %d angle %d: height %v", f, ia, k.Height)
						}
					}
				}
			}
		})
	}
}

func basisTable(b AngularBasis) compute.TableKind {
	if b == Pillbox {
		return compute.TableTrapezoid
	}
	return compute.TableRect
}

func TestTransportTo_SameMassAcrossBases(t *testing.T) {
	// The pillbox footprint spreads the dirac footprint over the angular
	// cell without changing its total.
	srcD, dstD := smallPlanes(t, Dirac)
	srcP, dstP := smallPlanes(t, Pillbox)
	for ia := range srcD.Na() {
		ds, dt, err := srcD.TransportTo(dstD, ia)
		if err != nil {
			t.Fatal(err)
		}
		ps, pt, err := srcP.TransportTo(dstP, ia)
		if err != nil {
			t.Fatal(err)
		}
		for _, pair := range [][2]SplineKernel{{ds, ps}, {dt, pt}} {
			md := pair[0].Integral(math.Inf(-1), math.Inf(1))
			mp := pair[1].Integral(math.Inf(-1), math.Inf(1))
			if relErr(md, mp) > 1e-9 {
				t.Fatalf("angle %d: dirac mass %v, pillbox mass %v", ia, md, mp)
			}
		}
	}
}

func TestTransportTo_Identity(t *testing.T) {
	for _, basis := range []AngularBasis{Dirac, Pillbox} {
		src, _ := smallPlanes(t, basis)
		src.ToPlane = Translation(25)
		ks, kt, err := src.TransportTo(src, 3)
		if err != nil {
			t.Fatal(err)
		}
		if ks.Mag != 1 || kt.Mag != 1 {
			t.Errorf("%v: mag = (%v, %v), want 1", basis, ks.Mag, kt.Mag)
		}
		if lo, hi := ks.Support(); math.Abs(lo) > 1e-12 || math.Abs(hi-1) > 1e-12 {
			t.Errorf("%v: s support [%v, %v], want [0, 1]", basis, lo, hi)
		}
		if got, want := ks.Height*kt.Height, src.PixelVolume(); relErr(got, want) > 1e-12 {
			t.Errorf("%v: height product %v, pixel volume %v", basis, got, want)
		}
	}
}

func TestTransportTo_Errors(t *testing.T) {
	src, dst := smallPlanes(t, Dirac)
	_, pdst := smallPlanes(t, Pillbox)
	if _, _, err := src.TransportTo(pdst, 0); !errors.Is(err, ErrBasisMismatch) {
		t.Errorf("mixed bases: %v, want ErrBasisMismatch", err)
	}
	if _, _, err := src.TransportTo(dst, src.Na()); !errors.Is(err, ErrAngleOutOfRange) {
		t.Errorf("angle Na: %v, want ErrAngleOutOfRange", err)
	}

	// Every ray of one angular sample crosses the root plane at the same
	// point, so a destination on the root plane collapses the source.
	onRoot := dst
	onRoot.ToPlane = Identity()
	_, _, err := src.TransportTo(onRoot, 0)
	if !errors.Is(err, ErrInvalidGeometry) {
		t.Errorf("destination on root plane: %v, want ErrInvalidGeometry", err)
	}
	if err != nil && !strings.Contains(err.Error(), "destination plane is conjugate to the root plane") {
		t.Errorf("destination on root plane: message %q does not name the root plane", err)
	}
}

func TestLightFieldGeometry_Validate(t *testing.T) {
	src, _ := smallPlanes(t, Dirac)
	bad := src
	bad.ToPlane = Identity()
	if err := bad.Validate(); !errors.Is(err, ErrInvalidGeometry) {
		t.Errorf("conjugate to root: %v, want ErrInvalidGeometry", err)
	}
	empty := src
	empty.Plane.Samples = nil
	if err := empty.Validate(); !errors.Is(err, ErrInvalidGeometry) {
		t.Errorf("empty angular plane: %v, want ErrInvalidGeometry", err)
	}
}

func TestPixelVolume(t *testing.T) {
	tests := []struct {
		name   string
		o      Optics1d
		dp, du float64
	}{
		{"translation", Translation1d(40), 0.5, 2},
		{"wide angular cell", Translation1d(40).Then(Refraction1d(30, 0)), 0.05, 2},
		{"wide pixel", Refraction1d(30, 0).Then(Translation1d(-500)), 3, 0.1},
		{"zero pp", Optics1d{PA: 10, AP: -0.1, AA: 1}, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := math.Abs(tt.o.Determinant()) * tt.dp * tt.du / math.Abs(tt.o.PA)
			d := diracBasis{}.pixelVolume(tt.o, tt.dp, tt.du)
			p := pillboxBasis{}.pixelVolume(tt.o, tt.dp, tt.du)
			if relErr(d, want) > 1e-12 || relErr(p, want) > 1e-12 {
				t.Errorf("pixel volume dirac %v, pillbox %v, want %v", d, p, want)
			}
		})
	}
}
