package models

import (
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/mlerr"
	"gonum.org/v1/gonum/floats"
)

// Classifier is the capability every algorithm strategy implements. Labels
// are class indices in [0, GetClasses()).
type Classifier interface {
	Fit(X [][]float64, y []int) error
	Predict(X [][]float64) []int
	PredictProba(X [][]float64) ([][]float64, error)
	GetName() string
	GetParams() Hyperparameters
	GetClasses() int
}

// FeatureImportancer is implemented by models that can attribute their
// decisions to input features. The vector sums to 1, or is nil when the
// model made no use of any feature.
type FeatureImportancer interface {
	FeatureImportances() []float64
}

type BaseModel struct {
	Name      string          `json:"-"`
	Params    Hyperparameters `json:"-"`
	NClasses  int             `json:"n_classes"`
	NFeatures int             `json:"n_features"`
}

func (bm *BaseModel) GetName() string {
	return bm.Name
}

func (bm *BaseModel) GetParams() Hyperparameters {
	return bm.Params
}

func (bm *BaseModel) GetClasses() int {
	return bm.NClasses
}

// checkTrainingSet enforces the preconditions shared by every strategy and
// records the feature count.
func (bm *BaseModel) checkTrainingSet(X [][]float64, y []int) error {
	if len(X) != len(y) {
		return mlerr.Errorf(mlerr.ErrDimensionMismatch, "X has %d rows but y has %d labels", len(X), len(y))
	}
	if len(X) < 2 {
		return mlerr.Errorf(mlerr.ErrInsufficientData, "need at least 2 training samples, got %d", len(X))
	}

	nFeatures := len(X[0])
	if nFeatures == 0 {
		return mlerr.Errorf(mlerr.ErrDimensionMismatch, "feature vectors are empty")
	}
	for i, row := range X {
		if len(row) != nFeatures {
			return mlerr.Errorf(mlerr.ErrDimensionMismatch, "row %d has %d features, expected %d", i, len(row), nFeatures)
		}
	}

	distinct := make(map[int]bool)
	for i, label := range y {
		if label < 0 || label >= bm.NClasses {
			return mlerr.Errorf(mlerr.ErrInvalidConfig, "label %d at row %d outside [0,%d)", label, i, bm.NClasses)
		}
		distinct[label] = true
	}
	if len(distinct) < 2 {
		return mlerr.Errorf(mlerr.ErrInsufficientData, "need at least 2 distinct classes in training labels, found %d", len(distinct))
	}

	bm.NFeatures = nFeatures
	return nil
}

// ClassCounts tallies labels into a slice of length nClasses.
func ClassCounts(y []int, nClasses int) []int {
	counts := make([]int, nClasses)
	for _, label := range y {
		counts[label]++
	}
	return counts
}

// argmaxInt returns the index of the largest count, preferring the lowest
// index on ties.
func argmaxInt(counts []int) int {
	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	return best
}

func normalize(v []float64) []float64 {
	total := floats.Sum(v)
	if total <= 0 {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	floats.Scale(1/total, out)
	return out
}
