package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/models"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/persistence"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/training"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func savedModel(t *testing.T, dir string) string {
	t.Helper()
	var X [][]float64
	var y []string
	for i := 0; i < 10; i++ {
		X = append(X, []float64{float64(i % 3)}, []float64{float64(40 + i%3)})
		y = append(y, "cold", "hot")
	}

	result, err := training.NewTrainer().Train(context.Background(), X, y, training.Config{
		Algorithm:       models.AlgorithmNaiveBayes,
		Hyperparameters: models.DefaultHyperparameters(models.AlgorithmNaiveBayes),
		TestFraction:    0.2,
		Seed:            1,
	})
	require.NoError(t, err)

	path := filepath.Join(dir, "bayes.json")
	require.NoError(t, persistence.SaveArtifact(path, result.Artifact))
	return path
}

func TestRunPredictsFromFile(t *testing.T) {
	dir := t.TempDir()
	model := savedModel(t, dir)

	input := filepath.Join(dir, "readings.csv")
	require.NoError(t, os.WriteFile(input, []byte("feature_0\n1\n41\n"), 0o644))

	var out bytes.Buffer
	require.NoError(t, run([]string{"-model", model, "-data", input, "-proba"}, &out))

	rows, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"row", "prediction", "p_cold", "p_hot"}, rows[0])
	assert.Equal(t, "cold", rows[1][1])
	assert.Equal(t, "hot", rows[2][1])
}

func TestRunReturnsErrors(t *testing.T) {
	dir := t.TempDir()
	model := savedModel(t, dir)

	assert.True(t, errors.Is(run(nil, &bytes.Buffer{}), errUsage))

	input := filepath.Join(dir, "wrong.csv")
	require.NoError(t, os.WriteFile(input, []byte("other\n1\n"), 0o644))
	err := run([]string{"-model", model, "-data", input}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "missing column")

	err = run([]string{"-list"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "-list needs -registry")
}
