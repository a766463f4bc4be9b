package families

import (
	"math"
	"testing"

	"github.com/sawpanic/amm-discovery/internal/candidate"
	"github.com/sawpanic/amm-discovery/internal/rng"
)

func TestAll_ThreeBuiltins(t *testing.T) {
	fams := All()
	if len(fams) != 3 {
		t.Fatalf("got %d families, want 3", len(fams))
	}
	seen := map[candidate.FamilyID]bool{}
	for _, f := range fams {
		seen[f.ID()] = true
	}
	for _, id := range []candidate.FamilyID{candidate.FamilyPiecewiseBands, candidate.FamilyAmplifiedHybrid, candidate.FamilyTailShielded} {
		if !seen[id] {
			t.Fatalf("missing builtin family %s", id)
		}
	}
}

func TestGet_UnknownReturnsNil(t *testing.T) {
	if Get(candidate.FamilyCustom) != nil {
		t.Fatalf("custom has no builtin generator, want nil")
	}
}

func TestSampleParams_WithinRange(t *testing.T) {
	src := rng.New(1)
	for _, f := range All() {
		p := f.SampleParams(src)
		for name, r := range f.ParamRanges() {
			v, ok := p[name]
			if !ok {
				t.Fatalf("%s: missing param %s", f.ID(), name)
			}
			if v < r.Min || v > r.Max {
				t.Fatalf("%s: param %s=%f out of range [%f,%f]", f.ID(), name, v, r.Min, r.Max)
			}
		}
	}
}

func TestMutateParams_StaysInRange(t *testing.T) {
	src := rng.New(2)
	for _, f := range All() {
		p := f.SampleParams(src)
		for i := 0; i < 50; i++ {
			p = f.MutateParams(src, p)
			for name, r := range f.ParamRanges() {
				v := p[name]
				if v < r.Min-1e-9 || v > r.Max+1e-9 {
					t.Fatalf("%s: mutated param %s=%f out of range [%f,%f]", f.ID(), name, v, r.Min, r.Max)
				}
			}
		}
	}
}

func TestGenerateBins_NormalizedAndValid(t *testing.T) {
	src := rng.New(3)
	for _, f := range All() {
		p := f.SampleParams(src)
		bins := f.GenerateBins(p)
		if len(bins) != candidate.NumBins {
			t.Fatalf("%s: got %d bins, want %d", f.ID(), len(bins), candidate.NumBins)
		}
		sum := 0.0
		for _, b := range bins {
			if b < 0 || math.IsNaN(b) || math.IsInf(b, 0) {
				t.Fatalf("%s: invalid bin value %f", f.ID(), b)
			}
			sum += b
		}
		if math.Abs(sum-candidate.TotalLiquidity) > 1e-6 {
			t.Fatalf("%s: sum=%f, want %f", f.ID(), sum, candidate.TotalLiquidity)
		}
		if !Validate(f, p, bins) {
			t.Fatalf("%s: generated candidate failed Validate", f.ID())
		}
	}
}

func TestCustomFamily_DefaultsToUniformWhenNoGenerator(t *testing.T) {
	cf := CustomFamily{Name: "empty", Ranges: map[string]candidate.ParamRange{}}
	bins := cf.GenerateBins(nil)
	want := candidate.TotalLiquidity / float64(candidate.NumBins)
	for _, b := range bins {
		if math.Abs(b-want) > 1e-9 {
			t.Fatalf("got %f, want %f", b, want)
		}
	}
}

func TestCustomFamily_RoundTripsGenerator(t *testing.T) {
	cf := CustomFamily{
		Name:   "spike",
		Ranges: map[string]candidate.ParamRange{"height": {Min: 0, Max: 10}},
		Generate: func(p map[string]float64) []float64 {
			bins := make([]float64, candidate.NumBins)
			bins[0] = p["height"]
			for i := 1; i < len(bins); i++ {
				bins[i] = 1
			}
			return bins
		},
	}
	bins := cf.GenerateBins(map[string]float64{"height": 5})
	sum := 0.0
	for _, b := range bins {
		sum += b
	}
	if math.Abs(sum-candidate.TotalLiquidity) > 1e-6 {
		t.Fatalf("sum=%f, want %f", sum, candidate.TotalLiquidity)
	}
}

func TestReflectClamp_StaysInBounds(t *testing.T) {
	cases := []struct{ v, lo, hi, want float64 }{
		{5, 0, 10, 5},
		{-2, 0, 10, 2},
		{12, 0, 10, 8},
		{25, 0, 10, 5},
	}
	for _, c := range cases {
		got := reflectClamp(c.v, c.lo, c.hi)
		if got < c.lo || got > c.hi {
			t.Fatalf("reflectClamp(%f,%f,%f) = %f, out of bounds", c.v, c.lo, c.hi, got)
		}
	}
}
