package kernels

import (
	"math"
	"math/rand"
	"testing"

	"github.com/gogpu/lightfield/compute"
)

const eps = 1e-6

func TestIntegral_Totals(t *testing.T) {
	tests := []struct {
		name string
		kind compute.TableKind
		taus []float64
		want float64
	}{
		{"rect", compute.TableRect, []float64{1, 3}, 2},
		{"trapezoid", compute.TableTrapezoid, []float64{0, 1, 3, 4}, 3},
		{"triangle", compute.TableTrapezoid, []float64{0, 1, 1, 2}, 1},
		{"box as trapezoid", compute.TableTrapezoid, []float64{0, 0, 2, 2}, 2},
		{"quad", compute.TableQuad, []float64{0, 1, 2, 3, 4, 5, 6, 7}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Integral(tt.kind, tt.taus, -100, 100)
			if math.Abs(got-tt.want) > eps {
				t.Errorf("Integral() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIntegral_Additive(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	taus := []float64{-0.3, 0.4, 0.9, 2.2}
	for range 100 {
		a := rng.Float64()*4 - 1
		b := a + rng.Float64()
		c := b + rng.Float64()
		whole := Integral(compute.TableTrapezoid, taus, a, c)
		parts := Integral(compute.TableTrapezoid, taus, a, b) + Integral(compute.TableTrapezoid, taus, b, c)
		if math.Abs(whole-parts) > 1e-12 {
			t.Fatalf("[%v,%v]+[%v,%v]: %v != %v", a, b, b, c, parts, whole)
		}
	}
}

func TestIntegral_EmptyInterval(t *testing.T) {
	if got := Integral(compute.TableRect, []float64{0, 1}, 0.5, 0.5); got != 0 {
		t.Errorf("Integral over empty interval = %v", got)
	}
	if got := Integral(compute.TableRect, []float64{0, 1}, 0.7, 0.2); got != 0 {
		t.Errorf("Integral over reversed interval = %v", got)
	}
}

// grid builds an ns x nt x nz grid with distinct values.
func grid(ns, nt, nz int) []float32 {
	g := make([]float32, ns*nt*nz)
	for i := range g {
		g[i] = float32(i%17) + 0.5*float32(i%5)
	}
	return g
}

func run(p compute.FilterParams, table, in []float32) []float32 {
	out := make([]float32, p.OutShape[0]*p.OutShape[1]*p.OutShape[2])
	Filter(p, table, in, out, 0, p.OutLen())
	return out
}

func TestProfile(t *testing.T) {
	trap := []float64{0, 1, 3, 4}
	tests := []struct {
		kind compute.TableKind
		taus []float64
		x    float64
		want float64
	}{
		{compute.TableRect, []float64{1, 3}, 2, 1},
		{compute.TableRect, []float64{1, 3}, 3.5, 0},
		{compute.TableTrapezoid, trap, 0.5, 0.5},
		{compute.TableTrapezoid, trap, 2, 1},
		{compute.TableTrapezoid, trap, 3.5, 0.5},
		{compute.TableTrapezoid, trap, -1, 0},
		{compute.TableQuad, []float64{0, 1, 2, 3, 4, 5, 6, 7}, 2.5, 0.9375},
		{compute.TableQuad, []float64{0, 1, 2, 3, 4, 5, 6, 7}, 3.5, 1},
	}
	for _, tt := range tests {
		if got := Profile(tt.kind, tt.taus, tt.x); math.Abs(got-tt.want) > eps {
			t.Errorf("Profile(%v, %v, %v) = %v, want %v", tt.kind, tt.taus, tt.x, got, tt.want)
		}
	}
}

func TestQuad_Degenerate(t *testing.T) {
	// Without the second spreading box the footprint is a trapezoid.
	q := QuadBreakpoints(0.3, 2, 0.5, 0)
	trap := []float64{q[0], q[2], q[4], q[6]}
	for x := -2.0; x <= 2; x += 0.125 {
		got := Integral(compute.TableQuad, q[:], -5, x)
		want := Integral(compute.TableTrapezoid, trap, -5, x)
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("x=%v: quad %v, trapezoid %v", x, got, want)
		}
	}

	// Without either spreading box it is a box.
	b := QuadBreakpoints(1, 2, 0, 0)
	if got := Integral(compute.TableQuad, b[:], 0, 1); math.Abs(got-1) > 1e-9 {
		t.Errorf("box integral over [0,1] = %v, want 1", got)
	}
}

func TestQuad_Shape(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for range 50 {
		w := []float64{1, rng.Float64(), rng.Float64()}
		c := rng.Float64()*4 - 2
		taus := QuadBreakpoints(c, w[0], w[1], w[2])
		// The widest box is swept, so the total is its width.
		wmax := math.Max(w[0], math.Max(w[1], w[2]))
		if got := Integral(compute.TableQuad, taus[:], -10, 10); math.Abs(got-wmax) > 1e-9 {
			t.Fatalf("widths %v: total %v, want %v", w, got, wmax)
		}
		if got := Profile(compute.TableQuad, taus[:], c); math.Abs(got-1) > 1e-9 && w[1]+w[2] <= 1 {
			t.Fatalf("widths %v: peak %v, want 1", w, got)
		}
		// Symmetric about the center.
		for _, d := range []float64{0.1, 0.4, 0.9} {
			l := Profile(compute.TableQuad, taus[:], c-d)
			r := Profile(compute.TableQuad, taus[:], c+d)
			if math.Abs(l-r) > 1e-9 {
				t.Fatalf("widths %v: profile(c-%v)=%v, profile(c+%v)=%v", w, d, l, d, r)
			}
		}
	}
}

func TestFilter_Identity(t *testing.T) {
	in := grid(3, 4, 1)
	table := []float32{1, 1, 0, 1}
	for _, axis := range []compute.Axis{compute.AxisS, compute.AxisT} {
		t.Run(axis.String(), func(t *testing.T) {
			p := compute.FilterParams{
				InShape: [3]int32{3, 4, 1}, OutShape: [3]int32{3, 4, 1},
				Axis: axis, Kind: compute.TableRect, Flags: compute.FilterOverwrite, Scale: 1,
			}
			out := run(p, table, in)
			for i := range in {
				if math.Abs(float64(out[i]-in[i])) > eps {
					t.Fatalf("out[%d] = %v, want %v", i, out[i], in[i])
				}
			}
		})
	}
}

func TestFilter_Downsample(t *testing.T) {
	in := []float32{1, 3, 5, 7, 2, 4, 6, 8}
	// Output sample i averages input samples 2i and 2i+1.
	table := []float32{0.5, 2, 0, 2}
	p := compute.FilterParams{
		InShape: [3]int32{4, 2, 1}, OutShape: [3]int32{2, 2, 1},
		Axis: compute.AxisS, Kind: compute.TableRect, Flags: compute.FilterOverwrite, Scale: 1,
	}
	out := run(p, table, in)
	want := []float32{2, 6, 3, 7}
	for i := range want {
		if math.Abs(float64(out[i]-want[i])) > eps {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestFilter_Accumulate(t *testing.T) {
	in := grid(2, 3, 1)
	table := []float32{1, 1, 0, 1}
	p := compute.FilterParams{
		InShape: [3]int32{2, 3, 1}, OutShape: [3]int32{2, 3, 1},
		Axis: compute.AxisT, Kind: compute.TableRect, Scale: 2,
	}
	out := make([]float32, len(in))
	Filter(p, table, in, out, 0, len(out))
	Filter(p, table, in, out, 0, len(out))
	for i := range in {
		if math.Abs(float64(out[i]-4*in[i])) > eps {
			t.Fatalf("out[%d] = %v, want %v", i, out[i], 4*in[i])
		}
	}
}

func TestFilter_Conservative(t *testing.T) {
	in := []float32{1, 1, 1}
	// Footprint of width 2 centered half a sample left of each output.
	table := []float32{1, 1, -1.5, 0.5}
	base := compute.FilterParams{
		InShape: [3]int32{3, 1, 1}, OutShape: [3]int32{3, 1, 1},
		Axis: compute.AxisS, Kind: compute.TableRect, Flags: compute.FilterOverwrite, Scale: 1,
	}

	clamped := run(base, table, in)
	if math.Abs(float64(clamped[0])-0.5) > eps {
		t.Errorf("clamped out[0] = %v, want 0.5", clamped[0])
	}

	cons := base
	cons.Flags |= compute.FilterConservative
	saturated := run(cons, table, in)
	for i, v := range saturated {
		if math.Abs(float64(v)-2) > eps {
			t.Errorf("conservative out[%d] = %v, want 2", i, v)
		}
	}
}

func TestFilter_Slices(t *testing.T) {
	in := grid(2, 2, 3)
	table := []float32{1, 1, 0, 1}
	p := compute.FilterParams{
		InShape: [3]int32{2, 2, 3}, OutShape: [3]int32{2, 2, 2},
		InSlice: 1, OutSlice: 1,
		Axis: compute.AxisT, Kind: compute.TableRect, Flags: compute.FilterOverwrite, Scale: 1,
	}
	out := make([]float32, 8)
	Filter(p, table, in, out, 0, p.OutLen())
	for i := range 4 {
		if out[i] != 0 {
			t.Errorf("slice 0 touched: out[%d] = %v", i, out[i])
		}
		if math.Abs(float64(out[4+i]-in[4+i])) > eps {
			t.Errorf("out[%d] = %v, want %v", 4+i, out[4+i], in[4+i])
		}
	}
}

func TestFilter_KernelIndex(t *testing.T) {
	in := []float32{1, 2, 3, 4}
	table := []float32{
		1, 1, 0, 1,
		2, 1, 1, 2, // shifts by one sample and doubles
	}
	p := compute.FilterParams{
		InShape: [3]int32{4, 1, 1}, OutShape: [3]int32{4, 1, 1},
		Axis: compute.AxisS, Kind: compute.TableRect, KernelIndex: 1,
		Flags: compute.FilterOverwrite, Scale: 1,
	}
	out := run(p, table, in)
	want := []float32{4, 6, 8, 0}
	for i := range want {
		if math.Abs(float64(out[i]-want[i])) > eps {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestFilter_NonFiniteBreakpoints(t *testing.T) {
	in := []float32{1, 1}
	table := []float32{1, 1, float32(math.Inf(-1)), float32(math.NaN())}
	p := compute.FilterParams{
		InShape: [3]int32{2, 1, 1}, OutShape: [3]int32{2, 1, 1},
		Axis: compute.AxisS, Kind: compute.TableRect, Flags: compute.FilterOverwrite, Scale: 1,
	}
	out := run(p, table, in)
	for i, v := range out {
		if v != 0 {
			t.Errorf("out[%d] = %v, want 0", i, v)
		}
	}
}

func TestFilter_Window(t *testing.T) {
	in := grid(5, 4, 1)
	table := []float32{1, 0.8, -0.7, -0.2, 0.6, 1.3}
	full := compute.FilterParams{
		InShape: [3]int32{5, 4, 1}, OutShape: [3]int32{5, 4, 1},
		Axis: compute.AxisS, Kind: compute.TableTrapezoid, Flags: compute.FilterOverwrite, Scale: 1,
	}
	want := run(full, table, in)

	win := full
	win.OutOrigin = [2]int32{1, 2}
	win.OutExtent = [2]int32{3, 2}
	got := run(win, table, in)
	for it := range 4 {
		for is := range 5 {
			i := it*5 + is
			inside := is >= 1 && is < 4 && it >= 2
			switch {
			case inside && math.Abs(float64(got[i]-want[i])) > eps:
				t.Errorf("(%d,%d) = %v, want %v", is, it, got[i], want[i])
			case !inside && got[i] != 0:
				t.Errorf("(%d,%d) outside the window = %v", is, it, got[i])
			}
		}
	}
}

func TestFilter_InRange(t *testing.T) {
	in := []float32{1, 3, 5, 7}
	table := []float32{0.5, 2, 0, 2}
	p := compute.FilterParams{
		InShape: [3]int32{4, 1, 1}, OutShape: [3]int32{2, 1, 1},
		Axis: compute.AxisS, Kind: compute.TableRect, Flags: compute.FilterOverwrite, Scale: 1,
		InRange: [2]int32{1, 3},
	}
	out := run(p, table, in)
	if math.Abs(float64(out[0])-1.5) > eps || math.Abs(float64(out[1])-2.5) > eps {
		t.Errorf("restricted = %v, want [1.5 2.5]", out)
	}

	p.Flags |= compute.FilterConservative
	out = run(p, table, in)
	// Mass outside the range lands on the nearest sample inside it.
	if math.Abs(float64(out[0])-3) > eps || math.Abs(float64(out[1])-5) > eps {
		t.Errorf("conservative = %v, want [3 5]", out)
	}
}

func TestFilter_AxisZ(t *testing.T) {
	in := grid(2, 3, 3)
	// Output slice k averages input slices k and k+1.
	table := []float32{0.5, 1, 0, 2}
	p := compute.FilterParams{
		InShape: [3]int32{2, 3, 3}, OutShape: [3]int32{2, 3, 2},
		OutSlice: 1,
		Axis: compute.AxisZ, Kind: compute.TableRect, Flags: compute.FilterOverwrite, Scale: 1,
	}
	out := make([]float32, 12)
	Filter(p, table, in, out, 0, p.OutLen())
	for i := range 6 {
		if out[i] != 0 {
			t.Errorf("slice 0 touched: out[%d] = %v", i, out[i])
		}
		want := 0.5 * (in[6+i] + in[12+i])
		if math.Abs(float64(out[6+i]-want)) > eps {
			t.Errorf("out[%d] = %v, want %v", 6+i, out[6+i], want)
		}
	}
}

func TestFilter_PerLine(t *testing.T) {
	in := []float32{1, 2, 3, 4, 5, 6}
	table := []float32{
		9, 9, 0, 9, // skipped by KernelIndex
		1, 1, 0, 1, // row 0: identity
		2, 1, 1, 2, // row 1: shift by one and double
	}
	p := compute.FilterParams{
		InShape: [3]int32{3, 2, 1}, OutShape: [3]int32{3, 2, 1},
		Axis: compute.AxisS, Kind: compute.TableRect, KernelIndex: 1,
		Flags: compute.FilterOverwrite | compute.FilterPerLine, Scale: 1,
	}
	out := run(p, table, in)
	want := []float32{1, 2, 3, 10, 12, 0}
	for i := range want {
		if math.Abs(float64(out[i]-want[i])) > eps {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestMask(t *testing.T) {
	mask := []float32{0, 0.5, 1}
	in := []float32{4, 4, 4}
	out := []float32{1, 1, 1}
	Mask(compute.MaskParams{Len: 3}, mask, in, out, 0, 3)
	if out[0] != 1 || out[1] != 3 || out[2] != 5 {
		t.Errorf("accumulate = %v", out)
	}
	Mask(compute.MaskParams{Len: 3, Flags: compute.MaskOverwrite}, mask, in, out, 1, 3)
	if out[0] != 1 || out[1] != 2 || out[2] != 4 {
		t.Errorf("overwrite range = %v", out)
	}
}

func TestScaleAndFill(t *testing.T) {
	in := []float32{1, 2, 3}
	out := []float32{10, 10, 10}
	Scale(compute.ScaleParams{Len: 3, Factor: 2}, in, out, 0, 3)
	want := []float32{12, 14, 16}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("accumulate out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
	Scale(compute.ScaleParams{Len: 3, Factor: -1, Flags: compute.ScaleOverwrite}, in, out, 1, 3)
	if out[0] != 12 || out[1] != -2 || out[2] != -3 {
		t.Errorf("overwrite range = %v", out)
	}
	Fill(out, 7, 0, 2)
	if out[0] != 7 || out[1] != 7 || out[2] != -3 {
		t.Errorf("Fill = %v", out)
	}
}

func BenchmarkFilter_Trapezoid(b *testing.B) {
	in := grid(256, 256, 1)
	table := []float32{1, 0.8, -1.2, -0.4, 0.4, 1.2}
	p := compute.FilterParams{
		InShape: [3]int32{256, 256, 1}, OutShape: [3]int32{256, 320, 1},
		Axis: compute.AxisT, Kind: compute.TableTrapezoid, Flags: compute.FilterOverwrite, Scale: 1,
	}
	out := make([]float32, p.OutLen())
	b.ResetTimer()
	for range b.N {
		Filter(p, table, in, out, 0, len(out))
	}
}
