package data

import (
	"math"

	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/mlerr"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type DataValidator struct{}

func NewDataValidator() *DataValidator {
	return &DataValidator{}
}

// ValidateDataset checks the shape of X against nLabels and that every value
// is finite. It returns the feature count on success.
func (dv *DataValidator) ValidateDataset(X [][]float64, nLabels int) (int, error) {
	if len(X) != nLabels {
		return 0, mlerr.Errorf(mlerr.ErrDimensionMismatch, "feature matrix and labels have different lengths: %d vs %d", len(X), nLabels)
	}

	if len(X) == 0 {
		return 0, mlerr.Errorf(mlerr.ErrInsufficientData, "dataset is empty")
	}

	nFeatures := len(X[0])
	if nFeatures == 0 {
		return 0, mlerr.Errorf(mlerr.ErrDimensionMismatch, "features cannot be empty")
	}

	for i, sample := range X {
		if len(sample) != nFeatures {
			return 0, mlerr.Errorf(mlerr.ErrDimensionMismatch, "inconsistent feature count at sample %d: expected %d, got %d", i, nFeatures, len(sample))
		}
		for j, value := range sample {
			if math.IsNaN(value) || math.IsInf(value, 0) {
				return 0, mlerr.Errorf(mlerr.ErrInvalidValue, "non-finite value at sample %d, feature %d", i, j)
			}
		}
	}

	return nFeatures, nil
}

// ValidateLabels requires at least two distinct classes.
func (dv *DataValidator) ValidateLabels(y []int) error {
	if len(y) < 2 {
		return mlerr.Errorf(mlerr.ErrInsufficientData, "need at least 2 samples, got %d", len(y))
	}

	classCount := make(map[int]int)
	for _, label := range y {
		classCount[label]++
	}

	if len(classCount) < 2 {
		return mlerr.Errorf(mlerr.ErrInsufficientData, "dataset must have at least 2 classes, found %d", len(classCount))
	}

	return nil
}

type FeatureStats struct {
	Name string  `json:"name"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

type DatasetStats struct {
	Samples           int            `json:"samples"`
	Features          int            `json:"features"`
	Classes           int            `json:"classes"`
	ClassDistribution map[string]int `json:"class_distribution"`
	FeatureStats      []FeatureStats `json:"feature_stats"`
}

func (dv *DataValidator) GetDatasetStats(ds *Dataset) DatasetStats {
	stats := DatasetStats{
		Samples:           ds.Len(),
		Features:          ds.NumFeatures(),
		ClassDistribution: make(map[string]int),
	}

	for _, label := range ds.Labels {
		stats.ClassDistribution[label]++
	}
	stats.Classes = len(stats.ClassDistribution)

	if ds.Len() == 0 {
		return stats
	}

	values := make([]float64, ds.Len())
	for j, name := range ds.FeatureNames {
		for i := range ds.X {
			values[i] = ds.X[i][j]
		}
		stats.FeatureStats = append(stats.FeatureStats, FeatureStats{
			Name: name,
			Min:  floats.Min(values),
			Max:  floats.Max(values),
			Mean: stat.Mean(values, nil),
		})
	}

	return stats
}
