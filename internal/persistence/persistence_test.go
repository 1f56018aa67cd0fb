package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/evaluation"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/mlerr"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/models"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/preprocessing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	trainX = [][]float64{{1, 200}, {2, 180}, {3, 220}, {10, 900}, {11, 950}, {12, 880}}
	trainY = []string{"cat", "cat", "cat", "dog", "dog", "dog"}
	probe  = [][]float64{{0, 190}, {2.5, 300}, {9, 870}, {13, 1000}, {6, 500}}
)

func fitArtifact(t *testing.T, algorithm string, params models.Hyperparameters) *ModelArtifact {
	t.Helper()

	labels := preprocessing.NewClassLabelMap(trainY)
	y, err := labels.Encode(trainY)
	require.NoError(t, err)

	scaler := preprocessing.NewScaler(preprocessing.ScaleStandard)
	X, err := scaler.FitTransform(trainX)
	require.NoError(t, err)

	model, err := models.CreateModel(models.ModelConfig{
		Algorithm: algorithm,
		Params:    params,
		NClasses:  labels.Len(),
		Seed:      3,
	})
	require.NoError(t, err)
	require.NoError(t, model.Fit(X, y))

	artifact, err := NewModelArtifact(model, labels, []string{"weight", "height"}, scaler, 2)
	require.NoError(t, err)
	return artifact
}

func TestArtifactJSONRoundTrip(t *testing.T) {
	for _, algorithm := range models.Algorithms() {
		t.Run(algorithm, func(t *testing.T) {
			params := models.DefaultHyperparameters(algorithm)
			params.NEstimators = 10
			params.NNeighbors = 3
			original := fitArtifact(t, algorithm, params)

			encoded, err := Marshal(original)
			require.NoError(t, err)
			restored, err := Unmarshal(encoded)
			require.NoError(t, err)

			want, err := original.PredictLabels(probe)
			require.NoError(t, err)
			got, err := restored.PredictLabels(probe)
			require.NoError(t, err)
			assert.Equal(t, want, got)

			again, err := Marshal(restored)
			require.NoError(t, err)
			assert.Equal(t, string(encoded), string(again))
		})
	}
}

func TestArtifactPredict(t *testing.T) {
	artifact := fitArtifact(t, models.AlgorithmKNN, models.Hyperparameters{NNeighbors: 1})

	label, err := artifact.Predict([]float64{11, 920})
	require.NoError(t, err)
	assert.Equal(t, "dog", label)

	proba, err := artifact.PredictProba([][]float64{{1, 200}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 0}}, proba)

	_, err = artifact.Predict([]float64{1})
	assert.True(t, errors.Is(err, mlerr.ErrDimensionMismatch))

	assert.Equal(t, []string{"cat", "dog"}, artifact.LabelMap().Classes())
	assert.Equal(t, 2, artifact.NumFeatures())
}

func TestArtifactImportancesAndProbaSupport(t *testing.T) {
	tree := fitArtifact(t, models.AlgorithmDecisionTree, models.DefaultHyperparameters(models.AlgorithmDecisionTree))
	require.Len(t, tree.FeatureImportances, 2)
	assert.InDelta(t, 1.0, tree.FeatureImportances[0]+tree.FeatureImportances[1], 1e-9)

	svm := fitArtifact(t, models.AlgorithmSVM, models.Hyperparameters{C: 1, Kernel: models.KernelRBF})
	assert.Nil(t, svm.FeatureImportances)
	_, err := svm.PredictProba(probe)
	assert.True(t, errors.Is(err, mlerr.ErrNotSupported))
}

func TestNewModelArtifactDefaultsFeatureNames(t *testing.T) {
	labels := preprocessing.NewClassLabelMap([]string{"a", "b"})
	model := models.NewKNN(models.Hyperparameters{NNeighbors: 1}, 2)
	require.NoError(t, model.Fit([][]float64{{0, 0, 0}, {1, 1, 1}}, []int{0, 1}))

	artifact, err := NewModelArtifact(model, labels, nil, nil, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"feature_0", "feature_1", "feature_2"}, artifact.FeatureNames)

	_, err = NewModelArtifact(model, labels, []string{"only"}, nil, 3)
	assert.True(t, errors.Is(err, mlerr.ErrDimensionMismatch))
}

func TestUnmarshalRejectsUnknownAlgorithm(t *testing.T) {
	_, err := Unmarshal([]byte(`{"algorithm":"perceptron","classes":["a","b"],"params":{}}`))
	assert.True(t, errors.Is(err, mlerr.ErrUnknownAlgorithm))
}

func TestSaveAndLoadArtifact(t *testing.T) {
	artifact := fitArtifact(t, models.AlgorithmNaiveBayes, models.Hyperparameters{})
	want, err := artifact.PredictLabels(probe)
	require.NoError(t, err)

	for _, name := range []string{"model.json", "model.json.xz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, SaveArtifact(path, artifact))

			loaded, err := LoadArtifact(path)
			require.NoError(t, err)
			got, err := loaded.PredictLabels(probe)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoadArtifactMissingFile(t *testing.T) {
	_, err := LoadArtifact(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	reg, err := OpenRegistry(filepath.Join(t.TempDir(), "models.db"))
	require.NoError(t, err)
	defer reg.Close()

	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	reg.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	knn := fitArtifact(t, models.AlgorithmKNN, models.Hyperparameters{NNeighbors: 1})
	nb := fitArtifact(t, models.AlgorithmNaiveBayes, models.Hyperparameters{})

	good, err := evaluation.CalculateMetrics([]int{0, 1, 1}, []int{0, 1, 1}, []string{"cat", "dog"})
	require.NoError(t, err)
	worse, err := evaluation.CalculateMetrics([]int{0, 1, 1}, []int{0, 0, 1}, []string{"cat", "dog"})
	require.NoError(t, err)

	nbID, err := reg.Register(ctx, "bayes", "pets.csv", nb, worse)
	require.NoError(t, err)
	knnID, err := reg.Register(ctx, "neighbours", "pets.csv", knn, good)
	require.NoError(t, err)
	assert.NotEqual(t, nbID, knnID)

	entries, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, knnID, entries[0].ID)
	assert.Equal(t, "bayes", entries[1].Name)
	assert.Nil(t, entries[0].Artifact)

	entry, err := reg.Get(ctx, nbID)
	require.NoError(t, err)
	assert.Equal(t, models.AlgorithmNaiveBayes, entry.Algorithm)
	assert.Equal(t, "pets.csv", entry.Dataset)
	assert.InDelta(t, worse.Accuracy, entry.Accuracy, 1e-12)
	assert.Equal(t, worse.ConfusionMatrix, entry.Report.ConfusionMatrix)
	labels, err := entry.Artifact.PredictLabels(probe)
	require.NoError(t, err)
	want, err := nb.PredictLabels(probe)
	require.NoError(t, err)
	assert.Equal(t, want, labels)

	best, err := reg.Best(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, knnID, best.ID)

	best, err = reg.Best(ctx, models.AlgorithmNaiveBayes)
	require.NoError(t, err)
	assert.Equal(t, nbID, best.ID)

	_, err = reg.Best(ctx, models.AlgorithmSVM)
	assert.True(t, errors.Is(err, ErrModelNotFound))

	require.NoError(t, reg.Delete(ctx, knnID))
	_, err = reg.Get(ctx, knnID)
	assert.True(t, errors.Is(err, ErrModelNotFound))
	assert.True(t, errors.Is(reg.Delete(ctx, knnID), ErrModelNotFound))
}
