package evaluation

import (
	"math"
	"math/rand"

	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/mlerr"
)

// TrainTestSplitter produces reproducible train/test index partitions.
type TrainTestSplitter struct {
	TestFraction float64
	Seed         int64
}

func NewTrainTestSplitter(testFraction float64, seed int64) *TrainTestSplitter {
	return &TrainTestSplitter{
		TestFraction: testFraction,
		Seed:         seed,
	}
}

func (tts *TrainTestSplitter) validate(n int) error {
	if !(tts.TestFraction > 0 && tts.TestFraction < 1) {
		return mlerr.Errorf(mlerr.ErrInvalidConfig, "test fraction must be in (0, 1), got %g", tts.TestFraction)
	}
	if n < 2 {
		return mlerr.Errorf(mlerr.ErrInvalidConfig, "need at least 2 rows to split, got %d", n)
	}
	return nil
}

// trainCount is round(n*(1-TestFraction)), kept within [1, n-1].
func (tts *TrainTestSplitter) trainCount(n int) int {
	count := int(math.Round(float64(n) * (1 - tts.TestFraction)))
	if count < 1 {
		count = 1
	}
	if count > n-1 {
		count = n - 1
	}
	return count
}

// Indices permutes 0..n-1 with a generator seeded by Seed and cuts the
// permutation into a train prefix and a test suffix.
func (tts *TrainTestSplitter) Indices(n int) (train, test []int, err error) {
	if err := tts.validate(n); err != nil {
		return nil, nil, err
	}

	rng := rand.New(rand.NewSource(tts.Seed))
	indices := rng.Perm(n)

	cut := tts.trainCount(n)
	return indices[:cut], indices[cut:], nil
}

// StratifiedIndices splits every class separately so the train and test
// partitions keep the class proportions of y. Classes are visited in order
// of first appearance. Singleton classes stay in the training partition.
// When rounding leaves either side empty the plain permutation is used.
func (tts *TrainTestSplitter) StratifiedIndices(y []int) (train, test []int, err error) {
	n := len(y)
	if err := tts.validate(n); err != nil {
		return nil, nil, err
	}

	var order []int
	classIndices := make(map[int][]int)
	for i, label := range y {
		if _, seen := classIndices[label]; !seen {
			order = append(order, label)
		}
		classIndices[label] = append(classIndices[label], i)
	}

	rng := rand.New(rand.NewSource(tts.Seed))
	for _, label := range order {
		indices := classIndices[label]
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})

		testCount := 0
		if len(indices) > 1 {
			testCount = int(math.Round(float64(len(indices)) * tts.TestFraction))
			if testCount > len(indices)-1 {
				testCount = len(indices) - 1
			}
		}

		trainCount := len(indices) - testCount
		train = append(train, indices[:trainCount]...)
		test = append(test, indices[trainCount:]...)
	}

	if len(train) == 0 || len(test) == 0 {
		return tts.Indices(n)
	}

	rng.Shuffle(len(train), func(i, j int) {
		train[i], train[j] = train[j], train[i]
	})
	rng.Shuffle(len(test), func(i, j int) {
		test[i], test[j] = test[j], test[i]
	})

	return train, test, nil
}

// Split partitions X and y with a seeded permutation. Rows are copied so
// the caller's slices are never shared with the result.
func Split[L any](X [][]float64, y []L, testFraction float64, seed int64) (XTrain, XTest [][]float64, yTrain, yTest []L, err error) {
	if len(X) != len(y) {
		return nil, nil, nil, nil, mlerr.Errorf(mlerr.ErrDimensionMismatch, "X has %d rows but y has %d labels", len(X), len(y))
	}

	train, test, err := NewTrainTestSplitter(testFraction, seed).Indices(len(X))
	if err != nil {
		return nil, nil, nil, nil, err
	}

	XTrain, yTrain = Take(X, y, train)
	XTest, yTest = Take(X, y, test)
	return XTrain, XTest, yTrain, yTest, nil
}

// StratifiedSplit is Split with per-class proportions preserved.
func StratifiedSplit[L comparable](X [][]float64, y []L, testFraction float64, seed int64) (XTrain, XTest [][]float64, yTrain, yTest []L, err error) {
	if len(X) != len(y) {
		return nil, nil, nil, nil, mlerr.Errorf(mlerr.ErrDimensionMismatch, "X has %d rows but y has %d labels", len(X), len(y))
	}

	train, test, err := NewTrainTestSplitter(testFraction, seed).StratifiedIndices(codes(y))
	if err != nil {
		return nil, nil, nil, nil, err
	}

	XTrain, yTrain = Take(X, y, train)
	XTest, yTest = Take(X, y, test)
	return XTrain, XTest, yTrain, yTest, nil
}

// Take copies the rows named by indices, in that order.
func Take[L any](X [][]float64, y []L, indices []int) ([][]float64, []L) {
	XOut := make([][]float64, len(indices))
	yOut := make([]L, len(indices))

	for i, idx := range indices {
		XOut[i] = make([]float64, len(X[idx]))
		copy(XOut[i], X[idx])
		yOut[i] = y[idx]
	}

	return XOut, yOut
}

// codes numbers the distinct values of y by first appearance.
func codes[L comparable](y []L) []int {
	seen := make(map[L]int)
	out := make([]int, len(y))
	for i, label := range y {
		code, ok := seen[label]
		if !ok {
			code = len(seen)
			seen[label] = code
		}
		out[i] = code
	}
	return out
}

// KFoldIndices returns the test indices of k folds over a seeded
// permutation of 0..n-1. The first n%k folds hold one extra row.
func KFoldIndices(n, k int, seed int64) ([][]int, error) {
	if k < 2 || k > n {
		return nil, mlerr.Errorf(mlerr.ErrInvalidConfig, "number of folds must be between 2 and %d, got %d", n, k)
	}

	indices := rand.New(rand.NewSource(seed)).Perm(n)

	folds := make([][]int, k)
	start := 0
	for fold := 0; fold < k; fold++ {
		size := n / k
		if fold < n%k {
			size++
		}
		folds[fold] = indices[start : start+size]
		start += size
	}

	return folds, nil
}

// StratifiedKFoldIndices deals the shuffled members of every class round
// robin across k folds, continuing where the previous class stopped.
func StratifiedKFoldIndices(y []int, k int, seed int64) ([][]int, error) {
	n := len(y)
	if k < 2 || k > n {
		return nil, mlerr.Errorf(mlerr.ErrInvalidConfig, "number of folds must be between 2 and %d, got %d", n, k)
	}

	var order []int
	classIndices := make(map[int][]int)
	for i, label := range y {
		if _, seen := classIndices[label]; !seen {
			order = append(order, label)
		}
		classIndices[label] = append(classIndices[label], i)
	}

	rng := rand.New(rand.NewSource(seed))
	folds := make([][]int, k)
	next := 0
	for _, label := range order {
		indices := classIndices[label]
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
		for _, idx := range indices {
			folds[next] = append(folds[next], idx)
			next = (next + 1) % k
		}
	}

	return folds, nil
}
