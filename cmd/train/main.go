package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/data"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/evaluation"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/experiment"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/jobs"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/models"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/persistence"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/training"
	"github.com/fatih/color"
	"go.uber.org/zap"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
)

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:]); err != nil {
		if !errors.Is(err, errUsage) && !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, red(err.Error()))
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)

	dataFile := fs.String("data", "", "Path to training data CSV file")
	target := fs.String("target", "", "Target column (default: last column)")
	features := fs.String("features", "", "Comma separated feature columns (default: every column except the target)")
	algorithm := fs.String("algorithm", models.AlgorithmKNN, "Algorithm to use ("+strings.Join(models.Algorithms(), "|")+")")
	configFile := fs.String("config", "", "Training config YAML/JSON; replaces the training flags below")
	experimentFile := fs.String("experiment", "", "Run the experiment grid described by this YAML file")
	outputDir := fs.String("output", "models", "Output directory for trained models and experiment results")
	compress := fs.Bool("xz", false, "Compress the saved model with xz")
	registryPath := fs.String("registry", "", "Also register the model in this sqlite registry")
	verbose := fs.Bool("v", false, "Verbose logging")

	testSize := fs.Float64("test-size", 0.2, "Test set fraction, in (0, 1)")
	seed := fs.Int64("seed", 42, "Random seed for splitting, oversampling and forests")
	oversample := fs.Bool("oversample", false, "Oversample minority classes in the training split")
	oversampleMethod := fs.String("oversample-method", training.OversampleSMOTE, "Oversampling method (smote|random)")
	scaling := fs.String("scaling", "none", "Feature scaling (none|minmax|standard)")
	stratify := fs.Bool("stratify", false, "Keep class proportions when splitting")
	cvFolds := fs.Int("cv-folds", 0, "Number of cross-validation folds (0 disables)")

	maxDepth := fs.Int("max-depth", 0, "Max depth for decision tree/forest")
	minSplit := fs.Int("min-samples-split", 0, "Min samples to split a node")
	criterion := fs.String("criterion", "", "Split criterion (gini|entropy)")
	nTrees := fs.Int("n-trees", 0, "Number of trees for random forest")
	workers := fs.Int("workers", 0, "Worker goroutines for random forest")
	c := fs.Float64("C", 0, "SVM regularisation")
	kernel := fs.String("kernel", "", "SVM kernel (linear|poly|rbf|sigmoid)")
	gamma := fs.Float64("gamma", 0, "SVM kernel coefficient (0: 1/n_features)")
	k := fs.Int("k", 0, "K value for KNN")
	varSmoothing := fs.Float64("var-smoothing", 0, "Naive Bayes variance smoothing")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *dataFile == "" {
		fmt.Println("Usage:")
		fmt.Println("  Simple training: train -data data/iris.csv -algorithm knn -k 3")
		fmt.Println("  From config:     train -data data/iris.csv -config train.yaml")
		fmt.Println("  Full experiment: train -data data/iris.csv -experiment grid.yaml")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
		return errUsage
	}

	logger := newLogger(*verbose)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ds, err := loadDataset(*dataFile, *target, *features)
	if err != nil {
		return fmt.Errorf("failed to load data: %w", err)
	}
	printDataInfo(ds)

	if *experimentFile != "" {
		return runExperiment(ctx, logger, *experimentFile, *dataFile, *outputDir, ds)
	}

	var cfg training.Config
	if *configFile != "" {
		if cfg, err = training.LoadConfig(*configFile); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	} else {
		set := map[string]bool{}
		fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

		params := models.DefaultHyperparameters(*algorithm)
		if set["max-depth"] {
			params.MaxDepth = *maxDepth
		}
		if set["min-samples-split"] {
			params.MinSamplesSplit = *minSplit
		}
		if set["criterion"] {
			params.Criterion = *criterion
		}
		if set["n-trees"] {
			params.NEstimators = *nTrees
		}
		if set["workers"] {
			params.MaxWorkers = *workers
		}
		if set["C"] {
			params.C = *c
		}
		if set["kernel"] {
			params.Kernel = *kernel
		}
		if set["gamma"] {
			params.Gamma = *gamma
		}
		if set["k"] {
			params.NNeighbors = *k
		}
		if set["var-smoothing"] {
			params.VarSmoothing = *varSmoothing
		}

		cfg = training.Config{
			Algorithm:          *algorithm,
			Hyperparameters:    params,
			TestFraction:       *testSize,
			Seed:               *seed,
			UseOversampling:    *oversample,
			OversamplingMethod: *oversampleMethod,
			Scaling:            *scaling,
			Stratify:           *stratify,
			CVFolds:            *cvFolds,
		}
	}

	return runSingleTraining(ctx, logger, cfg, ds, *dataFile, *outputDir, *compress, *registryPath)
}

func newLogger(verbose bool) *zap.SugaredLogger {
	var logger *zap.Logger
	var err error
	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		logger, err = cfg.Build()
	}
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

func loadDataset(dataFile, target, features string) (*data.Dataset, error) {
	reader, err := data.NewCSVReader(dataFile)
	if err != nil {
		return nil, err
	}
	records, headers, err := reader.LoadRecords()
	if err != nil {
		return nil, err
	}

	if target == "" {
		target = headers[len(headers)-1]
	}
	columns := data.FeatureColumns(headers, target)
	if features != "" {
		columns = nil
		for _, f := range strings.Split(features, ",") {
			columns = append(columns, strings.TrimSpace(f))
		}
	}

	return data.FromRecords(records, target, columns)
}

func printDataInfo(ds *data.Dataset) {
	stats := data.NewDataValidator().GetDatasetStats(ds)
	fmt.Printf("Loaded %s samples with %s features and %s classes (target %q)\n",
		cyan(stats.Samples), cyan(stats.Features), cyan(stats.Classes), ds.Target)
	labels := make([]string, 0, len(stats.ClassDistribution))
	for label := range stats.ClassDistribution {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		fmt.Printf("  %-20s %d\n", label, stats.ClassDistribution[label])
	}
}

func runSingleTraining(ctx context.Context, logger *zap.SugaredLogger, cfg training.Config, ds *data.Dataset, dataFile, outputDir string, compress bool, registryPath string) error {
	fmt.Printf("Training %s model on %s...\n", cyan(cfg.Algorithm), dataFile)

	manager := jobs.NewManager(logger)
	defer manager.Close()

	job, err := manager.SubmitTraining(ctx, ds, cfg)
	if err != nil {
		return fmt.Errorf("failed to start training: %w", err)
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	lastStage := training.Stage("")
	showStage := func() {
		if stage := job.GetStage(); stage != lastStage {
			lastStage = stage
			fmt.Printf("  [%3.0f%%] %s\n", job.GetProgress()*100, stage)
		}
	}
wait:
	for {
		select {
		case <-job.Done():
			showStage()
			break wait
		case <-ticker.C:
			showStage()
		}
	}

	result, err := job.Wait(context.Background())
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	printReport(result)

	fmt.Println("Saving model...")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(dataFile), filepath.Ext(dataFile))
	filename := fmt.Sprintf("%s_%s_%s.json", cfg.Algorithm, base, time.Now().Format("20060102_150405"))
	if compress {
		filename += ".xz"
	}
	modelPath := filepath.Join(outputDir, filename)

	if err := persistence.SaveArtifact(modelPath, result.Artifact); err != nil {
		return fmt.Errorf("failed to save model: %w", err)
	}
	fmt.Printf("Model saved to: %s\n", green(modelPath))

	if registryPath != "" {
		registry, err := persistence.OpenRegistry(registryPath)
		if err != nil {
			return fmt.Errorf("failed to open registry: %w", err)
		}
		defer registry.Close()

		id, err := registry.Register(ctx, filename, dataFile, result.Artifact, result.Report)
		if err != nil {
			return fmt.Errorf("failed to register model: %w", err)
		}
		fmt.Printf("Model registered as: %s\n", green(id))
	}

	fmt.Println(green("\nTraining completed successfully!"))
	return nil
}

func printReport(result *training.Result) {
	report := result.Report

	fmt.Printf("\nTraining Results (%s):\n", result.Duration.Round(time.Millisecond))
	fmt.Printf("Split: %d train / %d test\n", result.Split.TrainSize, result.Split.TestSize)
	if result.Split.Oversampled != nil {
		fmt.Printf("Oversampled training split: %v\n", result.Split.Oversampled)
	}
	fmt.Print(report.FormatMetrics())

	fmt.Println("\nPer class:")
	for _, c := range report.PerClass {
		fmt.Printf("  %-20s precision %.4f  recall %.4f  f1 %.4f  support %d\n",
			c.Label, c.Precision, c.Recall, c.F1Score, c.Support)
	}

	fmt.Println("\nConfusion matrix (rows: true, columns: predicted):")
	printMatrix(report)

	if imp := result.Artifact.FeatureImportances; imp != nil {
		fmt.Println("\nFeature importances:")
		for i, name := range result.Artifact.FeatureNames {
			fmt.Printf("  %-20s %.4f\n", name, imp[i])
		}
	}

	if result.CV != nil {
		fmt.Printf("\nCV accuracy: %.4f ± %.4f over %d folds\n", result.CV.Mean, result.CV.Std, len(result.CV.Scores))
	}
}

func printMatrix(report *evaluation.Report) {
	fmt.Printf("  %12s", "")
	for _, class := range report.Classes {
		fmt.Printf(" %8.8s", class)
	}
	fmt.Println()
	for i, row := range report.ConfusionMatrix {
		fmt.Printf("  %12.12s", report.Classes[i])
		for j, v := range row {
			cell := fmt.Sprintf(" %8d", v)
			if i == j {
				cell = green(cell)
			} else if v > 0 {
				cell = yellow(cell)
			}
			fmt.Print(cell)
		}
		fmt.Println()
	}
}

func runExperiment(ctx context.Context, logger *zap.SugaredLogger, experimentFile, dataFile, outputDir string, ds *data.Dataset) error {
	fmt.Println("Running full experiment...")

	config, err := experiment.LoadConfig(experimentFile)
	if err != nil {
		return fmt.Errorf("failed to load experiment: %w", err)
	}

	runner := experiment.NewRunner(config, logger)
	results, err := runner.Run(ctx, ds, dataFile)
	if err != nil {
		return fmt.Errorf("experiment failed: %w", err)
	}

	expDir := filepath.Join(outputDir, fmt.Sprintf("experiment_%s", time.Now().Format("20060102_150405")))
	if err := os.MkdirAll(expDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	resultsFile := filepath.Join(expDir, "experiment_results.csv")
	if err := experiment.ExportResults(results, resultsFile); err != nil {
		fmt.Println(red(fmt.Sprintf("Failed to export results: %v", err)))
	} else {
		fmt.Printf("Experiment results saved to: %s\n", green(resultsFile))
	}

	fmt.Printf("\nExperiment Summary:\n")
	fmt.Printf("Total experiments: %d\n", len(results))

	ranked := experiment.Rank(results)
	if len(ranked) > 0 && ranked[0].Error == "" {
		best := ranked[0]
		fmt.Printf("Best accuracy: %s (%s %s, %s scaling)\n",
			green(fmt.Sprintf("%.4f", best.Accuracy)), best.Algorithm, best.Parameters, best.Scaling)
	}
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	if failed > 0 {
		fmt.Println(yellow(fmt.Sprintf("%d trials failed; see the Error column", failed)))
	}
	return nil
}
