package preprocessing

import (
	"math"

	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/mlerr"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	ScaleNone     = "none"
	ScaleMinMax   = "minmax"
	ScaleStandard = "standard"
)

// Scaler rescales feature columns. It is fitted on the training split only
// and stored with the artifact so predictions see the same transform.
type Scaler struct {
	ScaleType   string    `json:"scale_type"`
	FeatureMin  []float64 `json:"feature_min,omitempty"`
	FeatureMax  []float64 `json:"feature_max,omitempty"`
	FeatureMean []float64 `json:"feature_mean,omitempty"`
	FeatureStd  []float64 `json:"feature_std,omitempty"`
	IsFitted    bool      `json:"is_fitted"`
}

// ValidScaleType reports whether scaleType names a known transform. The empty
// string means no scaling.
func ValidScaleType(scaleType string) bool {
	switch scaleType {
	case "", ScaleNone, ScaleMinMax, ScaleStandard:
		return true
	}
	return false
}

func NewScaler(scaleType string) *Scaler {
	if scaleType == "" {
		scaleType = ScaleNone
	}
	return &Scaler{ScaleType: scaleType}
}

func (s *Scaler) Fit(X [][]float64) error {
	if len(X) == 0 {
		return mlerr.Errorf(mlerr.ErrInsufficientData, "cannot fit scaler on an empty dataset")
	}
	if !ValidScaleType(s.ScaleType) {
		return mlerr.Errorf(mlerr.ErrInvalidConfig, "unknown scale type: %s", s.ScaleType)
	}

	nFeatures := len(X[0])
	column := make([]float64, len(X))

	switch s.ScaleType {
	case ScaleMinMax:
		s.FeatureMin = make([]float64, nFeatures)
		s.FeatureMax = make([]float64, nFeatures)
		for j := 0; j < nFeatures; j++ {
			fillColumn(column, X, j)
			s.FeatureMin[j] = floats.Min(column)
			s.FeatureMax[j] = floats.Max(column)
		}
	case ScaleStandard:
		s.FeatureMean = make([]float64, nFeatures)
		s.FeatureStd = make([]float64, nFeatures)
		for j := 0; j < nFeatures; j++ {
			fillColumn(column, X, j)
			mean, variance := stat.PopMeanVariance(column, nil)
			s.FeatureMean[j] = mean
			s.FeatureStd[j] = math.Sqrt(variance)
			if s.FeatureStd[j] == 0 {
				s.FeatureStd[j] = 1
			}
		}
	}

	s.IsFitted = true
	return nil
}

// Transform returns a rescaled copy of X; the input is never modified.
func (s *Scaler) Transform(X [][]float64) ([][]float64, error) {
	if !s.IsFitted {
		return nil, mlerr.Errorf(mlerr.ErrInvalidConfig, "scaler must be fitted before transform")
	}

	result := make([][]float64, len(X))
	for i := range X {
		result[i] = make([]float64, len(X[i]))
		copy(result[i], X[i])
		if s.ScaleType == ScaleNone {
			continue
		}
		if want := s.width(); len(X[i]) != want {
			return nil, mlerr.Errorf(mlerr.ErrDimensionMismatch, "row %d has %d features, scaler was fitted on %d", i, len(X[i]), want)
		}
		for j := range result[i] {
			switch s.ScaleType {
			case ScaleMinMax:
				result[i][j] = s.transformMinMax(X[i][j], j)
			case ScaleStandard:
				result[i][j] = (X[i][j] - s.FeatureMean[j]) / s.FeatureStd[j]
			}
		}
	}

	return result, nil
}

func (s *Scaler) FitTransform(X [][]float64) ([][]float64, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

func (s *Scaler) width() int {
	if s.ScaleType == ScaleMinMax {
		return len(s.FeatureMin)
	}
	return len(s.FeatureMean)
}

func (s *Scaler) transformMinMax(value float64, featureIndex int) float64 {
	span := s.FeatureMax[featureIndex] - s.FeatureMin[featureIndex]
	if span == 0 {
		return 0
	}
	return (value - s.FeatureMin[featureIndex]) / span
}

func fillColumn(dst []float64, X [][]float64, j int) {
	for i := range X {
		dst[i] = X[i][j]
	}
}
