package transport

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func pairCost(t *testing.T, src, tgt PixelSet, pairs []Pair) float64 {
	t.Helper()
	var total float64
	for _, p := range pairs {
		s, g := src[p.Source], tgt[p.Target]
		total += math.Sqrt((s[0]-g[0])*(s[0]-g[0]) + (s[1]-g[1])*(s[1]-g[1]) + (s[2]-g[2])*(s[2]-g[2]))
	}
	return total
}

func checkInjective(t *testing.T, pairs []Pair) {
	t.Helper()
	seenSrc := make(map[int]bool)
	seenTgt := make(map[int]bool)
	for _, p := range pairs {
		if seenSrc[p.Source] {
			t.Errorf("Source index %d used twice", p.Source)
		}
		if seenTgt[p.Target] {
			t.Errorf("Target index %d used twice", p.Target)
		}
		seenSrc[p.Source] = true
		seenTgt[p.Target] = true
	}
}

func TestAssignInjective(t *testing.T) {
	src := randomPixels(30, 7)
	tgt := randomPixels(30, 8)

	pairs, err := Assign(src, tgt, 0)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if len(pairs) != 30 {
		t.Fatalf("Expected 30 pairs, got %d", len(pairs))
	}
	checkInjective(t, pairs)
}

func TestAssignNotWorseThanIdentity(t *testing.T) {
	byLuma := func(set PixelSet) {
		sort.Slice(set, func(i, j int) bool {
			return set[i][0]+set[i][1]+set[i][2] < set[j][0]+set[j][1]+set[j][2]
		})
	}

	src := randomPixels(25, 11)
	tgt := randomPixels(25, 12)
	byLuma(src)
	byLuma(tgt)

	identity := make([]Pair, len(src))
	for i := range identity {
		identity[i] = Pair{Source: i, Target: i}
	}

	pairs, err := Assign(src, tgt, 0)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	got := pairCost(t, src, tgt, pairs)
	want := pairCost(t, src, tgt, identity)
	if got > want+1e-6 {
		t.Errorf("Assignment cost %f exceeds identity pairing cost %f", got, want)
	}
}

func TestAssignIdenticalSetsCostZero(t *testing.T) {
	src := randomPixels(16, 21)

	pairs, err := Assign(src, src, 0)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if cost := pairCost(t, src, src, pairs); cost != 0 {
		t.Errorf("Expected zero cost when matching a set to itself, got %f", cost)
	}
}

func TestAssignSubsamplesLargerSide(t *testing.T) {
	src := randomPixels(10, 31)
	tgt := randomPixels(4, 32)

	pairs, err := Assign(src, tgt, 0)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if len(pairs) != 4 {
		t.Fatalf("Expected 4 pairs, got %d", len(pairs))
	}
	checkInjective(t, pairs)

	// Only the evenly spaced sample {0, 3, 6, 9} may appear on the source side
	allowed := map[int]bool{0: true, 3: true, 6: true, 9: true}
	for _, p := range pairs {
		if !allowed[p.Source] {
			t.Errorf("Source index %d is not part of the sample", p.Source)
		}
	}
}

func TestAssignSampleCap(t *testing.T) {
	src := randomPixels(12, 41)
	tgt := randomPixels(12, 42)

	pairs, err := Assign(src, tgt, 5)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if len(pairs) != 5 {
		t.Errorf("Expected 5 pairs under a sample cap of 5, got %d", len(pairs))
	}
	checkInjective(t, pairs)
}

func TestAssignEmpty(t *testing.T) {
	if _, err := Assign(PixelSet{}, randomPixels(2, 1), 0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestSampleIndices(t *testing.T) {
	tests := []struct {
		total, n int
		want     []int
	}{
		{5, 5, []int{0, 1, 2, 3, 4}},
		{3, 10, []int{0, 1, 2}},
		{10, 4, []int{0, 3, 6, 9}},
		{10, 1, []int{0}},
		{7, 3, []int{0, 3, 6}},
		{100, 3, []int{0, 49, 99}},
	}

	for _, tt := range tests {
		got := SampleIndices(tt.total, tt.n)
		if len(got) != len(tt.want) {
			t.Errorf("SampleIndices(%d, %d) = %v, want %v", tt.total, tt.n, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("SampleIndices(%d, %d) = %v, want %v", tt.total, tt.n, got, tt.want)
				break
			}
		}
	}
}

// bruteForce returns the minimum total cost over all permutations.
func bruteForce(cost *mat.Dense) float64 {
	n, _ := cost.Dims()
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	best := math.Inf(1)
	var walk func(k int)
	walk = func(k int) {
		if k == n {
			var total float64
			for i, j := range perm {
				total += cost.At(i, j)
			}
			best = math.Min(best, total)
			return
		}
		for i := k; i < n; i++ {
			perm[k], perm[i] = perm[i], perm[k]
			walk(k + 1)
			perm[k], perm[i] = perm[i], perm[k]
		}
	}
	walk(0)
	return best
}

func TestMinCostMatchingOptimal(t *testing.T) {
	rng := rand.New(rand.NewSource(99))

	for trial := 0; trial < 20; trial++ {
		n := 1 + rng.Intn(6)
		data := make([]float64, n*n)
		for i := range data {
			data[i] = rng.Float64()
		}
		cost := mat.NewDense(n, n, data)

		cols, err := MinCostMatching(cost)
		if err != nil {
			t.Fatalf("MinCostMatching failed: %v", err)
		}

		used := make(map[int]bool)
		var total float64
		for row, col := range cols {
			if used[col] {
				t.Fatalf("Column %d assigned twice", col)
			}
			used[col] = true
			total += cost.At(row, col)
		}

		if want := bruteForce(cost); math.Abs(total-want) > 1e-9 {
			t.Errorf("Trial %d (n=%d): cost %f, optimum %f", trial, n, total, want)
		}
	}
}

func TestMinCostMatchingNotSquare(t *testing.T) {
	_, err := MinCostMatching(mat.NewDense(2, 3, nil))
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}
