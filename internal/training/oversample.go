package training

import (
	"math/rand"
	"sort"

	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/models"
	"gonum.org/v1/gonum/floats"
)

const smoteNeighbors = 5

// Oversample raises every class present in y to the majority class count
// and returns new slices; the inputs are not modified. Synthetic rows are
// appended after the originals, class by class in index order.
//
// With OversampleSMOTE each synthetic row lies on the segment between a
// random member of the class and one of its nearest same-class neighbours.
// Classes with a single member, and every class under OversampleRandom,
// are grown by duplicating random members.
func Oversample(X [][]float64, y []int, nClasses int, method string, seed int64) ([][]float64, []int) {
	counts := models.ClassCounts(y, nClasses)
	majority := 0
	for _, c := range counts {
		majority = max(majority, c)
	}

	members := make([][]int, nClasses)
	for i, label := range y {
		members[label] = append(members[label], i)
	}

	outX := make([][]float64, len(X), len(X)+nClasses*majority)
	for i, row := range X {
		outX[i] = append([]float64(nil), row...)
	}
	outY := append([]int(nil), y...)

	rng := rand.New(rand.NewSource(seed))

	for class, idx := range members {
		need := majority - len(idx)
		if len(idx) == 0 || need <= 0 {
			continue
		}

		if method == OversampleRandom || len(idx) == 1 {
			for s := 0; s < need; s++ {
				src := X[idx[rng.Intn(len(idx))]]
				outX = append(outX, append([]float64(nil), src...))
				outY = append(outY, class)
			}
			continue
		}

		neighbors := nearestWithinClass(X, idx, min(smoteNeighbors, len(idx)-1))
		for s := 0; s < need; s++ {
			m := rng.Intn(len(idx))
			base := X[idx[m]]
			other := X[neighbors[m][rng.Intn(len(neighbors[m]))]]
			gap := rng.Float64()

			synthetic := make([]float64, len(base))
			floats.SubTo(synthetic, other, base)
			floats.Scale(gap, synthetic)
			floats.Add(synthetic, base)

			outX = append(outX, synthetic)
			outY = append(outY, class)
		}
	}

	return outX, outY
}

// nearestWithinClass returns, for each member, the k closest other members
// by Euclidean distance, ties broken by row index.
func nearestWithinClass(X [][]float64, idx []int, k int) [][]int {
	type candidate struct {
		row      int
		distance float64
	}

	out := make([][]int, len(idx))
	candidates := make([]candidate, 0, len(idx)-1)

	for m, i := range idx {
		candidates = candidates[:0]
		for _, j := range idx {
			if j != i {
				candidates = append(candidates, candidate{row: j, distance: floats.Distance(X[i], X[j], 2)})
			}
		}
		sort.Slice(candidates, func(a, b int) bool {
			if candidates[a].distance != candidates[b].distance {
				return candidates[a].distance < candidates[b].distance
			}
			return candidates[a].row < candidates[b].row
		})

		out[m] = make([]int, k)
		for n := 0; n < k; n++ {
			out[m][n] = candidates[n].row
		}
	}

	return out
}
