package models

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/mlerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blobs returns nClasses well separated square clusters of perClass points.
func blobs(perClass, nClasses int) ([][]float64, []int) {
	var X [][]float64
	var y []int
	for c := 0; c < nClasses; c++ {
		for i := 0; i < perClass; i++ {
			X = append(X, []float64{
				float64(c*10) + float64(i%5)*0.3,
				float64(c*10) + float64(i/5)*0.3,
			})
			y = append(y, c)
		}
	}
	return X, y
}

func accuracy(pred, y []int) float64 {
	correct := 0
	for i := range y {
		if pred[i] == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(y))
}

func newModel(t *testing.T, algorithm string, params Hyperparameters, nClasses int) Classifier {
	t.Helper()
	model, err := CreateModel(ModelConfig{Algorithm: algorithm, Params: params, NClasses: nClasses, Seed: 7})
	require.NoError(t, err)
	return model
}

func TestEveryAlgorithmSeparatesBlobs(t *testing.T) {
	X, y := blobs(10, 3)

	for _, algorithm := range Algorithms() {
		t.Run(algorithm, func(t *testing.T) {
			params := DefaultHyperparameters(algorithm)
			if algorithm == AlgorithmRandomForest {
				params.NEstimators = 15
			}
			model := newModel(t, algorithm, params, 3)

			require.NoError(t, model.Fit(X, y))
			assert.Equal(t, 1.0, accuracy(model.Predict(X), y))
			assert.Equal(t, algorithm, model.GetName())
			assert.Equal(t, 3, model.GetClasses())
		})
	}
}

func TestPredictProbaRowsSumToOne(t *testing.T) {
	X, y := blobs(10, 3)

	for _, algorithm := range []string{AlgorithmDecisionTree, AlgorithmRandomForest, AlgorithmKNN, AlgorithmNaiveBayes} {
		t.Run(algorithm, func(t *testing.T) {
			params := DefaultHyperparameters(algorithm)
			if algorithm == AlgorithmRandomForest {
				params.NEstimators = 10
			}
			model := newModel(t, algorithm, params, 3)
			require.NoError(t, model.Fit(X, y))

			proba, err := model.PredictProba(X)
			require.NoError(t, err)
			require.Len(t, proba, len(X))
			for _, row := range proba {
				require.Len(t, row, 3)
				sum := 0.0
				for _, p := range row {
					assert.GreaterOrEqual(t, p, 0.0)
					sum += p
				}
				assert.InDelta(t, 1.0, sum, 1e-9)
			}
		})
	}
}

func TestCreateModelValidation(t *testing.T) {
	tests := []struct {
		name      string
		algorithm string
		params    Hyperparameters
		nClasses  int
		want      error
	}{
		{"unknown algorithm", "xgboost", Hyperparameters{}, 2, mlerr.ErrUnknownAlgorithm},
		{"tree max_depth 0", AlgorithmDecisionTree, Hyperparameters{MaxDepth: 0, MinSamplesSplit: 2}, 2, mlerr.ErrInvalidConfig},
		{"tree min_samples_split 1", AlgorithmDecisionTree, Hyperparameters{MaxDepth: 3, MinSamplesSplit: 1}, 2, mlerr.ErrInvalidConfig},
		{"tree bad criterion", AlgorithmDecisionTree, Hyperparameters{MaxDepth: 3, MinSamplesSplit: 2, Criterion: "mse"}, 2, mlerr.ErrInvalidConfig},
		{"forest no trees", AlgorithmRandomForest, Hyperparameters{MaxDepth: 3}, 2, mlerr.ErrInvalidConfig},
		{"svm C 0", AlgorithmSVM, Hyperparameters{Kernel: KernelRBF}, 2, mlerr.ErrInvalidConfig},
		{"svm bad kernel", AlgorithmSVM, Hyperparameters{C: 1, Kernel: "cubic"}, 2, mlerr.ErrInvalidConfig},
		{"knn zero neighbours", AlgorithmKNN, Hyperparameters{}, 2, mlerr.ErrInvalidConfig},
		{"bayes negative smoothing", AlgorithmNaiveBayes, Hyperparameters{VarSmoothing: -1}, 2, mlerr.ErrInvalidConfig},
		{"svm infinite C", AlgorithmSVM, Hyperparameters{C: math.Inf(1), Kernel: KernelRBF}, 2, mlerr.ErrInvalidConfig},
		{"svm infinite gamma", AlgorithmSVM, Hyperparameters{C: 1, Kernel: KernelRBF, Gamma: math.Inf(1)}, 2, mlerr.ErrInvalidConfig},
		{"svm NaN gamma", AlgorithmSVM, Hyperparameters{C: 1, Kernel: KernelRBF, Gamma: math.NaN()}, 2, mlerr.ErrInvalidConfig},
		{"svm NaN coef0", AlgorithmSVM, Hyperparameters{C: 1, Kernel: KernelSigmoid, Coef0: math.NaN()}, 2, mlerr.ErrInvalidConfig},
		{"svm NaN tol", AlgorithmSVM, Hyperparameters{C: 1, Kernel: KernelLinear, Tol: math.NaN()}, 2, mlerr.ErrInvalidConfig},
		{"bayes infinite smoothing", AlgorithmNaiveBayes, Hyperparameters{VarSmoothing: math.Inf(1)}, 2, mlerr.ErrInvalidConfig},
		{"bayes NaN smoothing", AlgorithmNaiveBayes, Hyperparameters{VarSmoothing: math.NaN()}, 2, mlerr.ErrInvalidConfig},
		{"single class", AlgorithmKNN, Hyperparameters{NNeighbors: 1}, 1, mlerr.ErrInsufficientData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateModel(ModelConfig{Algorithm: tt.algorithm, Params: tt.params, NClasses: tt.nClasses})
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestFitRejectsBadTrainingSets(t *testing.T) {
	for _, algorithm := range Algorithms() {
		t.Run(algorithm, func(t *testing.T) {
			model := newModel(t, algorithm, DefaultHyperparameters(algorithm), 2)

			err := model.Fit([][]float64{{1}, {2}, {3}}, []int{0, 0, 0})
			assert.True(t, errors.Is(err, mlerr.ErrInsufficientData), "single class: %v", err)

			err = model.Fit([][]float64{{1}}, []int{0})
			assert.True(t, errors.Is(err, mlerr.ErrInsufficientData), "single row: %v", err)

			err = model.Fit([][]float64{{1}, {2, 3}}, []int{0, 1})
			assert.True(t, errors.Is(err, mlerr.ErrDimensionMismatch), "ragged rows: %v", err)

			err = model.Fit([][]float64{{1}, {2}}, []int{0})
			assert.True(t, errors.Is(err, mlerr.ErrDimensionMismatch), "length mismatch: %v", err)
		})
	}
}

func TestDecisionTreeSplitAndImportance(t *testing.T) {
	X := [][]float64{{1, 7}, {2, 7}, {3, 7}, {4, 7}}
	y := []int{0, 0, 1, 1}

	tree := NewDecisionTree(Hyperparameters{MaxDepth: 3, MinSamplesSplit: 2}, 2)
	require.NoError(t, tree.Fit(X, y))

	assert.False(t, tree.Root.IsLeaf)
	assert.Equal(t, 0, tree.Root.Feature)
	assert.Equal(t, 2.5, tree.Root.Threshold)
	assert.Equal(t, 1, tree.Depth())
	assert.Equal(t, []float64{1, 0}, tree.FeatureImportances())
	assert.Equal(t, []int{0, 1}, tree.Predict([][]float64{{2.5, 0}, {2.6, 0}}))
}

func TestDecisionTreeRespectsLimits(t *testing.T) {
	X, y := blobs(10, 3)

	shallow := NewDecisionTree(Hyperparameters{MaxDepth: 1, MinSamplesSplit: 2}, 3)
	require.NoError(t, shallow.Fit(X, y))
	assert.Equal(t, 1, shallow.Depth())

	stubborn := NewDecisionTree(Hyperparameters{MaxDepth: 5, MinSamplesSplit: 100}, 3)
	require.NoError(t, stubborn.Fit(X, y))
	assert.True(t, stubborn.Root.IsLeaf)
	assert.Nil(t, stubborn.FeatureImportances())
}

func TestDecisionTreeEntropyCriterion(t *testing.T) {
	X, y := blobs(10, 2)

	tree := NewDecisionTree(Hyperparameters{MaxDepth: 4, MinSamplesSplit: 2, Criterion: CriterionEntropy}, 2)
	require.NoError(t, tree.Fit(X, y))
	assert.InDelta(t, 1.0, tree.Root.Impurity, 1e-12)
	assert.Equal(t, 1.0, accuracy(tree.Predict(X), y))
}

func TestImportancesSumToOne(t *testing.T) {
	X, y := blobs(10, 3)

	for _, algorithm := range []string{AlgorithmDecisionTree, AlgorithmRandomForest} {
		params := DefaultHyperparameters(algorithm)
		params.NEstimators = 10
		model := newModel(t, algorithm, params, 3)
		require.NoError(t, model.Fit(X, y))

		imp := model.(FeatureImportancer).FeatureImportances()
		require.Len(t, imp, 2)
		assert.InDelta(t, 1.0, imp[0]+imp[1], 1e-9, algorithm)
		for _, v := range imp {
			assert.GreaterOrEqual(t, v, 0.0)
		}
	}
}

func TestRandomForestDeterministicAcrossWorkers(t *testing.T) {
	X, y := blobs(10, 3)

	fit := func(workers int) []byte {
		rf := NewRandomForest(Hyperparameters{NEstimators: 12, MaxDepth: 4, MaxWorkers: workers}, 3, 42)
		require.NoError(t, rf.Fit(X, y))
		b, err := json.Marshal(rf)
		require.NoError(t, err)
		return b
	}

	assert.Equal(t, fit(1), fit(4))
}

func TestRandomForestReportsProgressPerTree(t *testing.T) {
	X, y := blobs(5, 2)

	var calls [][2]int
	model, err := CreateModel(ModelConfig{
		Algorithm:  AlgorithmRandomForest,
		Params:     Hyperparameters{NEstimators: 5, MaxDepth: 2},
		NClasses:   2,
		OnProgress: func(done, total int) { calls = append(calls, [2]int{done, total}) },
	})
	require.NoError(t, err)
	require.NoError(t, model.Fit(X, y))

	require.Len(t, calls, 5)
	assert.Equal(t, [2]int{5, 5}, calls[4])
}

func TestKNNTieBreaking(t *testing.T) {
	knn := NewKNN(Hyperparameters{NNeighbors: 2}, 2)
	require.NoError(t, knn.Fit([][]float64{{0}, {2}}, []int{1, 0}))

	// equal votes, equal distances: lowest class index
	assert.Equal(t, []int{0}, knn.Predict([][]float64{{1}}))
	// equal votes: smaller total distance
	assert.Equal(t, []int{1}, knn.Predict([][]float64{{0.6}}))

	proba, err := knn.PredictProba([][]float64{{1}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.5, 0.5}}, proba)
}

func TestKNNMoreNeighboursThanRows(t *testing.T) {
	knn := NewKNN(Hyperparameters{NNeighbors: 10}, 2)
	require.NoError(t, knn.Fit([][]float64{{0}, {1}, {5}}, []int{0, 0, 1}))
	assert.Equal(t, []int{0}, knn.Predict([][]float64{{5}}))
}

func TestNaiveBayesAbsentClass(t *testing.T) {
	X, y := blobs(10, 2)
	nb := NewNaiveBayes(Hyperparameters{}, 3)
	require.NoError(t, nb.Fit(X, y))

	proba, err := nb.PredictProba([][]float64{{20, 20}})
	require.NoError(t, err)
	assert.Equal(t, 0.0, proba[0][2])
	assert.NotEqual(t, 2, nb.Predict([][]float64{{20, 20}})[0])
}

func TestSVMKernels(t *testing.T) {
	X := [][]float64{{0}, {1}, {2}, {3}, {10}, {11}, {12}, {13}}
	y := []int{0, 0, 0, 0, 1, 1, 1, 1}

	for _, kernel := range []string{KernelLinear, KernelRBF, KernelPoly} {
		t.Run(kernel, func(t *testing.T) {
			params := Hyperparameters{C: 10, Kernel: kernel}
			if kernel != KernelLinear {
				params.Gamma = 0.1
			}
			svm := NewSVM(params, 2)
			require.NoError(t, svm.Fit(X, y))
			assert.Equal(t, y, svm.Predict(X))
		})
	}
}

func TestSVMLinearImportancesAndProba(t *testing.T) {
	X := [][]float64{{0, 5}, {1, 5}, {10, 5}, {11, 5}}
	y := []int{0, 0, 1, 1}

	svm := NewSVM(Hyperparameters{C: 1, Kernel: KernelLinear}, 2)
	require.NoError(t, svm.Fit(X, y))

	imp := svm.FeatureImportances()
	require.Len(t, imp, 2)
	assert.Greater(t, imp[0], imp[1])
	assert.InDelta(t, 1.0, imp[0]+imp[1], 1e-9)

	_, err := svm.PredictProba(X)
	assert.True(t, errors.Is(err, mlerr.ErrNotSupported))
}

func TestSVMSkipsAbsentClass(t *testing.T) {
	X, y := blobs(10, 2)
	svm := NewSVM(Hyperparameters{C: 1, Kernel: KernelRBF}, 3)
	require.NoError(t, svm.Fit(X, y))

	assert.True(t, svm.Machines[2].Skip)
	for _, p := range svm.Predict(X) {
		assert.NotEqual(t, 2, p)
	}
}

func TestJSONStateRoundTrip(t *testing.T) {
	X, y := blobs(10, 3)

	for _, algorithm := range Algorithms() {
		t.Run(algorithm, func(t *testing.T) {
			params := DefaultHyperparameters(algorithm)
			params.NEstimators = 8
			model := newModel(t, algorithm, params, 3)
			require.NoError(t, model.Fit(X, y))

			state, err := json.Marshal(model)
			require.NoError(t, err)

			restored := newModel(t, algorithm, params, 3)
			require.NoError(t, json.Unmarshal(state, restored))

			probe := [][]float64{{0.5, 0.5}, {9, 11}, {21, 19}, {5, 5}, {15, 14}}
			assert.Equal(t, model.Predict(probe), restored.Predict(probe))
		})
	}
}
