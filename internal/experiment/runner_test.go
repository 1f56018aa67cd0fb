package experiment

import (
	"context"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/data"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gridYAML = `
experiment:
  seed: 7
  test_fractions: [0.25]
  scaling: [none, minmax]
  stratify: true
  cross_validation:
    folds: 2
  algorithms:
    decision_tree:
      max_depth: [0, 3]
    knn:
      n_neighbors: [1, 3]
    naive_bayes: {}
`

func writeConfig(t *testing.T) *Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(gridYAML), 0o644))
	config, err := LoadConfig(path)
	require.NoError(t, err)
	return config
}

func blobs() *data.Dataset {
	ds := &data.Dataset{FeatureNames: []string{"a", "b"}, Target: "class"}
	for i := 0; i < 12; i++ {
		ds.X = append(ds.X, []float64{float64(i % 4), float64(i % 3)})
		ds.Labels = append(ds.Labels, "left")
		ds.X = append(ds.X, []float64{20 + float64(i%4), 20 + float64(i%3)})
		ds.Labels = append(ds.Labels, "right")
	}
	return ds
}

func TestTrialsExpandGrid(t *testing.T) {
	trials := writeConfig(t).Trials()

	// (2 tree + 2 knn + 1 bayes) per scaling
	require.Len(t, trials, 10)

	first := trials[0]
	assert.Equal(t, models.AlgorithmDecisionTree, first.Algorithm)
	assert.Equal(t, models.Hyperparameters{MaxDepth: 0, MinSamplesSplit: 2, Criterion: "gini"}, first.Hyperparameters)
	assert.Equal(t, "none", first.Scaling)
	assert.Equal(t, 0.25, first.TestFraction)

	assert.Equal(t, models.AlgorithmNaiveBayes, trials[4].Algorithm)
	assert.Equal(t, 1e-9, trials[4].Hyperparameters.VarSmoothing)
	assert.Equal(t, "minmax", trials[5].Scaling)
}

func TestRunRecordsFailuresAndContinues(t *testing.T) {
	config := writeConfig(t)
	results, err := NewRunner(config, nil).Run(context.Background(), blobs(), "blobs.csv")
	require.NoError(t, err)
	require.Len(t, results, 10)

	failed := 0
	for _, r := range results {
		assert.Equal(t, "blobs.csv", r.Dataset)
		if r.Error != "" {
			failed++
			assert.Contains(t, r.Error, "max_depth")
			continue
		}
		assert.Equal(t, 1.0, r.Accuracy, r.Algorithm)
		assert.Equal(t, 1.0, r.CVMean, r.Algorithm)
	}
	assert.Equal(t, 2, failed)

	ranked := Rank(results)
	assert.Empty(t, ranked[0].Error)
	assert.NotEmpty(t, ranked[len(ranked)-1].Error)
	assert.NotEmpty(t, results[0].Error, "Rank must not reorder its input")
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := NewRunner(writeConfig(t), nil).Run(ctx, blobs(), "blobs.csv")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}

func TestRunWithoutAlgorithms(t *testing.T) {
	_, err := NewRunner(&Config{}, nil).Run(context.Background(), blobs(), "x")
	assert.Error(t, err)
}

func TestRunRecordsUnencodableParameters(t *testing.T) {
	config := &Config{}
	config.Experiment.Seed = 3
	config.Experiment.Algorithms.NaiveBayes = &BayesGrid{VarSmoothing: []float64{math.NaN(), 1e-9}}

	results, err := NewRunner(config, nil).Run(context.Background(), blobs(), "blobs.csv")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Contains(t, results[0].Error, "cannot encode hyperparameters")
	assert.Empty(t, results[0].Parameters)
	assert.Empty(t, results[1].Error)
	assert.Equal(t, 1.0, results[1].Accuracy)
}

func TestExportResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	results := []Result{
		{Dataset: "d", Algorithm: "knn", Parameters: `{"n_neighbors":3}`, Scaling: "none", TestFraction: 0.2,
			Accuracy: 2.0 / 3.0, MacroF1: 0.5, TrainingTimeMs: 12},
	}
	require.NoError(t, ExportResults(results, path))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Accuracy", rows[0][5])
	assert.Equal(t, []string{"d", "knn", `{"n_neighbors":3}`, "none", "0.2",
		"0.6667", "0.0000", "0.0000", "0.5000", "0.0000", "0.0000", "0.0000", "12", ""}, rows[1])
}
