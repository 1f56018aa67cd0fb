package models

import (
	"math"
	"sort"

	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/mlerr"
)

const (
	AlgorithmDecisionTree = "decision_tree"
	AlgorithmRandomForest = "random_forest"
	AlgorithmSVM          = "svm"
	AlgorithmKNN          = "knn"
	AlgorithmNaiveBayes   = "naive_bayes"
)

const (
	CriterionGini    = "gini"
	CriterionEntropy = "entropy"

	KernelLinear  = "linear"
	KernelPoly    = "poly"
	KernelRBF     = "rbf"
	KernelSigmoid = "sigmoid"
)

// Hyperparameters carries every option any strategy recognises. Only the
// fields relevant to the chosen algorithm are validated and used.
type Hyperparameters struct {
	MaxDepth        int     `json:"max_depth,omitempty" yaml:"max_depth,omitempty"`
	MinSamplesSplit int     `json:"min_samples_split,omitempty" yaml:"min_samples_split,omitempty"`
	Criterion       string  `json:"criterion,omitempty" yaml:"criterion,omitempty"`
	NEstimators     int     `json:"n_estimators,omitempty" yaml:"n_estimators,omitempty"`
	MaxWorkers      int     `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
	C               float64 `json:"C,omitempty" yaml:"C,omitempty"`
	Kernel          string  `json:"kernel,omitempty" yaml:"kernel,omitempty"`
	Gamma           float64 `json:"gamma,omitempty" yaml:"gamma,omitempty"`
	Degree          int     `json:"degree,omitempty" yaml:"degree,omitempty"`
	Coef0           float64 `json:"coef0,omitempty" yaml:"coef0,omitempty"`
	Tol             float64 `json:"tol,omitempty" yaml:"tol,omitempty"`
	MaxIter         int     `json:"max_iter,omitempty" yaml:"max_iter,omitempty"`
	NNeighbors      int     `json:"n_neighbors,omitempty" yaml:"n_neighbors,omitempty"`
	VarSmoothing    float64 `json:"var_smoothing,omitempty" yaml:"var_smoothing,omitempty"`
}

// DefaultHyperparameters returns the documented defaults for algorithm. They
// are only applied where a caller asks for them explicitly.
func DefaultHyperparameters(algorithm string) Hyperparameters {
	switch algorithm {
	case AlgorithmDecisionTree:
		return Hyperparameters{MaxDepth: 5, MinSamplesSplit: 2, Criterion: CriterionGini}
	case AlgorithmRandomForest:
		return Hyperparameters{NEstimators: 100, MaxDepth: 5, MinSamplesSplit: 2, Criterion: CriterionGini}
	case AlgorithmSVM:
		return Hyperparameters{C: 1.0, Kernel: KernelRBF}
	case AlgorithmKNN:
		return Hyperparameters{NNeighbors: 5}
	case AlgorithmNaiveBayes:
		return Hyperparameters{VarSmoothing: 1e-9}
	}
	return Hyperparameters{}
}

// Validate range-checks the options used by algorithm.
func (h Hyperparameters) Validate(algorithm string) error {
	switch algorithm {
	case AlgorithmDecisionTree:
		if err := h.validateTree(); err != nil {
			return err
		}
		if h.MinSamplesSplit < 2 {
			return invalid("min_samples_split must be >= 2, got %d", h.MinSamplesSplit)
		}
	case AlgorithmRandomForest:
		if h.NEstimators < 1 {
			return invalid("n_estimators must be >= 1, got %d", h.NEstimators)
		}
		if err := h.validateTree(); err != nil {
			return err
		}
		if h.MinSamplesSplit != 0 && h.MinSamplesSplit < 2 {
			return invalid("min_samples_split must be >= 2, got %d", h.MinSamplesSplit)
		}
		if h.MaxWorkers < 0 {
			return invalid("max_workers must be >= 0, got %d", h.MaxWorkers)
		}
	case AlgorithmSVM:
		if err := finite(map[string]float64{"C": h.C, "gamma": h.Gamma, "coef0": h.Coef0, "tol": h.Tol}); err != nil {
			return err
		}
		if !(h.C > 0) {
			return invalid("C must be > 0, got %g", h.C)
		}
		switch h.Kernel {
		case KernelLinear, KernelPoly, KernelRBF, KernelSigmoid:
		default:
			return invalid("kernel must be one of linear, poly, rbf, sigmoid, got %q", h.Kernel)
		}
		if h.Gamma < 0 {
			return invalid("gamma must be >= 0, got %g", h.Gamma)
		}
		if h.Degree < 0 {
			return invalid("degree must be >= 1, got %d", h.Degree)
		}
		if h.Tol < 0 {
			return invalid("tol must be >= 0, got %g", h.Tol)
		}
		if h.MaxIter < 0 {
			return invalid("max_iter must be >= 0, got %d", h.MaxIter)
		}
	case AlgorithmKNN:
		if h.NNeighbors < 1 {
			return invalid("n_neighbors must be >= 1, got %d", h.NNeighbors)
		}
	case AlgorithmNaiveBayes:
		if err := finite(map[string]float64{"var_smoothing": h.VarSmoothing}); err != nil {
			return err
		}
		if h.VarSmoothing < 0 {
			return invalid("var_smoothing must be >= 0, got %g", h.VarSmoothing)
		}
	default:
		return mlerr.Errorf(mlerr.ErrUnknownAlgorithm, "%q", algorithm)
	}
	return nil
}

func (h Hyperparameters) validateTree() error {
	if h.MaxDepth < 1 {
		return invalid("max_depth must be >= 1, got %d", h.MaxDepth)
	}
	switch h.Criterion {
	case "", CriterionGini, CriterionEntropy:
	default:
		return invalid("criterion must be gini or entropy, got %q", h.Criterion)
	}
	return nil
}

// finite rejects NaN and infinite values, reporting names in sorted order.
func finite(values map[string]float64) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if v := values[name]; math.IsNaN(v) || math.IsInf(v, 0) {
			return invalid("%s must be finite, got %g", name, v)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return mlerr.Errorf(mlerr.ErrInvalidConfig, format, args...)
}
