package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/data"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/evaluation"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/persistence"
	"github.com/fatih/color"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	cyan  = color.New(color.FgCyan).SprintFunc()
)

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errUsage) && !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, red(err.Error()))
		}
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)

	modelFile := fs.String("model", "", "Path to a saved model (.json or .json.xz)")
	registryPath := fs.String("registry", "", "Load the model from this sqlite registry instead")
	modelID := fs.String("id", "", "Registry id of the model")
	best := fs.String("best", "", "Use the most accurate registered model of this algorithm")
	dataFile := fs.String("data", "", "CSV file with the feature columns the model was trained on")
	target := fs.String("target", "", "Target column; when present the predictions are scored")
	proba := fs.Bool("proba", false, "Also output class probabilities")
	output := fs.String("output", "", "Write predictions to this CSV file (default: stdout)")
	list := fs.Bool("list", false, "List the models in the registry and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()

	if *list {
		return listModels(ctx, stdout, *registryPath)
	}

	if *dataFile == "" || (*modelFile == "" && *registryPath == "") {
		fmt.Println("Usage:")
		fmt.Println("  predict -model models/knn_iris.json -data data/new.csv")
		fmt.Println("  predict -registry models.db -best svm -data data/iris.csv -target species")
		fmt.Println("  predict -registry models.db -list")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
		return errUsage
	}

	artifact, err := loadModel(ctx, *modelFile, *registryPath, *modelID, *best)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Loaded %s model with %d classes and features %v\n",
		cyan(artifact.Algorithm), artifact.Classes.Len(), artifact.FeatureNames)

	reader, err := data.NewCSVReader(*dataFile)
	if err != nil {
		return fmt.Errorf("failed to open data: %w", err)
	}
	records, headers, err := reader.LoadRecords()
	if err != nil {
		return fmt.Errorf("failed to load data: %w", err)
	}

	X, labels, err := buildMatrix(records, headers, artifact.FeatureNames, *target)
	if err != nil {
		return fmt.Errorf("invalid data: %w", err)
	}

	predictions, err := artifact.PredictLabels(X)
	if err != nil {
		return fmt.Errorf("prediction failed: %w", err)
	}

	var probabilities [][]float64
	if *proba {
		if probabilities, err = artifact.PredictProba(X); err != nil {
			return fmt.Errorf("probabilities unavailable: %w", err)
		}
	}

	out := stdout
	if *output != "" {
		file, err := os.Create(*output)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer file.Close()
		out = file
	}
	if err := writePredictions(out, artifact.Classes.Classes(), predictions, probabilities); err != nil {
		return fmt.Errorf("failed to write predictions: %w", err)
	}
	if *output != "" {
		fmt.Fprintf(os.Stderr, "Predictions saved to: %s\n", green(*output))
	}

	if labels != nil {
		report, err := evaluation.Evaluate(artifact, X, labels)
		if err != nil {
			return fmt.Errorf("scoring failed: %w", err)
		}
		fmt.Fprint(os.Stderr, "\n"+report.FormatMetrics())
	}
	return nil
}

func loadModel(ctx context.Context, modelFile, registryPath, id, algorithm string) (*persistence.ModelArtifact, error) {
	if modelFile != "" {
		return persistence.LoadArtifact(modelFile)
	}

	registry, err := persistence.OpenRegistry(registryPath)
	if err != nil {
		return nil, err
	}
	defer registry.Close()

	var entry *persistence.Entry
	switch {
	case id != "":
		entry, err = registry.Get(ctx, id)
	case algorithm != "":
		entry, err = registry.Best(ctx, algorithm)
	default:
		return nil, errors.New("-registry needs -id or -best")
	}
	if err != nil {
		return nil, err
	}
	return entry.Artifact, nil
}

// buildMatrix pulls the named feature columns out of records in order. When
// target is a column of the file its values are returned as labels.
func buildMatrix(records []data.Record, headers, features []string, target string) ([][]float64, []string, error) {
	hasTarget := false
	for _, h := range headers {
		if target != "" && h == target {
			hasTarget = true
		}
	}
	if hasTarget {
		ds, err := data.FromRecords(records, target, features)
		if err != nil {
			return nil, nil, err
		}
		return ds.X, ds.Labels, nil
	}

	X := make([][]float64, len(records))
	for i, record := range records {
		row := make([]float64, len(features))
		for j, name := range features {
			v, ok := record[name]
			if !ok {
				return nil, nil, fmt.Errorf("row %d: missing column %q", i+1, name)
			}
			f, err := data.ToFloat(v)
			if err != nil {
				return nil, nil, fmt.Errorf("row %d, column %q: %w", i+1, name, err)
			}
			row[j] = f
		}
		X[i] = row
	}
	return X, nil, nil
}

func writePredictions(w io.Writer, classes, predictions []string, probabilities [][]float64) error {
	writer := csv.NewWriter(w)

	header := []string{"row", "prediction"}
	if probabilities != nil {
		for _, class := range classes {
			header = append(header, "p_"+class)
		}
	}
	writer.Write(header)

	for i, label := range predictions {
		row := []string{strconv.Itoa(i + 1), label}
		if probabilities != nil {
			for _, p := range probabilities[i] {
				row = append(row, strconv.FormatFloat(p, 'f', 4, 64))
			}
		}
		writer.Write(row)
	}

	writer.Flush()
	return writer.Error()
}

func listModels(ctx context.Context, w io.Writer, registryPath string) error {
	if registryPath == "" {
		return errors.New("-list needs -registry")
	}
	registry, err := persistence.OpenRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to open registry: %w", err)
	}
	defer registry.Close()

	entries, err := registry.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No models registered")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %-14s acc %.4f  f1 %.4f  %s  %s\n",
			cyan(e.ID), e.Algorithm, e.Accuracy, e.MacroF1, e.CreatedAt.Format("2006-01-02 15:04"), e.Name)
	}
	return nil
}
