// Package experiment runs a grid of algorithms, hyperparameters, scalings
// and test fractions over one dataset and exports the scores.
package experiment

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/data"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/mlerr"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/models"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/training"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type TreeGrid struct {
	MaxDepth        []int    `yaml:"max_depth"`
	MinSamplesSplit []int    `yaml:"min_samples_split"`
	Criterion       []string `yaml:"criterion"`
}

type ForestGrid struct {
	NEstimators []int `yaml:"n_estimators"`
	MaxDepth    []int `yaml:"max_depth"`
}

type SVMGrid struct {
	C      []float64 `yaml:"C"`
	Kernel []string  `yaml:"kernel"`
}

type KNNGrid struct {
	NNeighbors []int `yaml:"n_neighbors"`
}

type BayesGrid struct {
	VarSmoothing []float64 `yaml:"var_smoothing"`
}

// Config is the YAML experiment description. Only algorithms present in
// the file are run; a missing value list falls back to the default for
// that hyperparameter.
type Config struct {
	Experiment struct {
		Seed            int64     `yaml:"seed"`
		TestFractions   []float64 `yaml:"test_fractions"`
		Scaling         []string  `yaml:"scaling"`
		Stratify        bool      `yaml:"stratify"`
		UseOversampling bool      `yaml:"use_oversampling"`
		CrossValidation struct {
			Folds int `yaml:"folds"`
		} `yaml:"cross_validation"`
		Algorithms struct {
			DecisionTree *TreeGrid   `yaml:"decision_tree"`
			RandomForest *ForestGrid `yaml:"random_forest"`
			SVM          *SVMGrid    `yaml:"svm"`
			KNN          *KNNGrid    `yaml:"knn"`
			NaiveBayes   *BayesGrid  `yaml:"naive_bayes"`
		} `yaml:"algorithms"`
	} `yaml:"experiment"`
}

func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read experiment config: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(raw, config); err != nil {
		return nil, mlerr.Errorf(mlerr.ErrInvalidConfig, "cannot parse %s: %v", path, err)
	}
	return config, nil
}

// Trial is one point of the grid.
type Trial struct {
	Algorithm       string
	Hyperparameters models.Hyperparameters
	Scaling         string
	TestFraction    float64
}

func orDefault[T any](values []T, fallback T) []T {
	if len(values) == 0 {
		return []T{fallback}
	}
	return values
}

// Trials expands the grid. The order is scaling, then test fraction, then
// algorithm in the order decision_tree, random_forest, svm, knn,
// naive_bayes, then hyperparameters in file order.
func (c *Config) Trials() []Trial {
	exp := c.Experiment
	var params []Trial

	if g := exp.Algorithms.DecisionTree; g != nil {
		def := models.DefaultHyperparameters(models.AlgorithmDecisionTree)
		for _, depth := range orDefault(g.MaxDepth, def.MaxDepth) {
			for _, split := range orDefault(g.MinSamplesSplit, def.MinSamplesSplit) {
				for _, criterion := range orDefault(g.Criterion, def.Criterion) {
					params = append(params, Trial{Algorithm: models.AlgorithmDecisionTree, Hyperparameters: models.Hyperparameters{
						MaxDepth: depth, MinSamplesSplit: split, Criterion: criterion,
					}})
				}
			}
		}
	}
	if g := exp.Algorithms.RandomForest; g != nil {
		def := models.DefaultHyperparameters(models.AlgorithmRandomForest)
		for _, n := range orDefault(g.NEstimators, def.NEstimators) {
			for _, depth := range orDefault(g.MaxDepth, def.MaxDepth) {
				params = append(params, Trial{Algorithm: models.AlgorithmRandomForest, Hyperparameters: models.Hyperparameters{
					NEstimators: n, MaxDepth: depth, MinSamplesSplit: def.MinSamplesSplit, Criterion: def.Criterion,
				}})
			}
		}
	}
	if g := exp.Algorithms.SVM; g != nil {
		def := models.DefaultHyperparameters(models.AlgorithmSVM)
		for _, C := range orDefault(g.C, def.C) {
			for _, kernel := range orDefault(g.Kernel, def.Kernel) {
				params = append(params, Trial{Algorithm: models.AlgorithmSVM, Hyperparameters: models.Hyperparameters{
					C: C, Kernel: kernel,
				}})
			}
		}
	}
	if g := exp.Algorithms.KNN; g != nil {
		def := models.DefaultHyperparameters(models.AlgorithmKNN)
		for _, k := range orDefault(g.NNeighbors, def.NNeighbors) {
			params = append(params, Trial{Algorithm: models.AlgorithmKNN, Hyperparameters: models.Hyperparameters{NNeighbors: k}})
		}
	}
	if g := exp.Algorithms.NaiveBayes; g != nil {
		def := models.DefaultHyperparameters(models.AlgorithmNaiveBayes)
		for _, smoothing := range orDefault(g.VarSmoothing, def.VarSmoothing) {
			params = append(params, Trial{Algorithm: models.AlgorithmNaiveBayes, Hyperparameters: models.Hyperparameters{VarSmoothing: smoothing}})
		}
	}

	var trials []Trial
	for _, scaling := range orDefault(exp.Scaling, "none") {
		for _, fraction := range orDefault(exp.TestFractions, 0.2) {
			for _, p := range params {
				p.Scaling = scaling
				p.TestFraction = fraction
				trials = append(trials, p)
			}
		}
	}
	return trials
}

type Result struct {
	Dataset        string
	Algorithm      string
	Parameters     string
	Scaling        string
	TestFraction   float64
	Accuracy       float64
	MacroPrecision float64
	MacroRecall    float64
	MacroF1        float64
	WeightedF1     float64
	CVMean         float64
	CVStd          float64
	TrainingTimeMs int64
	Error          string
}

type Runner struct {
	Config *Config
	logger *zap.SugaredLogger
}

func NewRunner(config *Config, logger *zap.SugaredLogger) *Runner {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Runner{Config: config, logger: logger}
}

// Run trains every trial on ds. A trial that fails is recorded with its
// error and the run continues; only cancellation stops it early.
func (r *Runner) Run(ctx context.Context, ds *data.Dataset, datasetName string) ([]Result, error) {
	trials := r.Config.Trials()
	if len(trials) == 0 {
		return nil, mlerr.Errorf(mlerr.ErrInvalidConfig, "experiment defines no algorithms")
	}

	exp := r.Config.Experiment
	trainer := training.NewTrainer(training.WithLogger(r.logger.Desugar().WithOptions(zap.IncreaseLevel(zap.WarnLevel)).Sugar()))

	results := make([]Result, 0, len(trials))
	for i, trial := range trials {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result := Result{
			Dataset:      datasetName,
			Algorithm:    trial.Algorithm,
			Scaling:      trial.Scaling,
			TestFraction: trial.TestFraction,
		}

		paramsJSON, err := json.Marshal(trial.Hyperparameters)
		if err != nil {
			result.Error = fmt.Sprintf("cannot encode hyperparameters: %v", err)
			r.logger.Warnw("Trial skipped", "trial", i+1, "algorithm", trial.Algorithm, "error", err)
			results = append(results, result)
			continue
		}
		result.Parameters = string(paramsJSON)

		out, err := trainer.TrainDataset(ctx, ds, training.Config{
			Algorithm:       trial.Algorithm,
			Hyperparameters: trial.Hyperparameters,
			TestFraction:    trial.TestFraction,
			Seed:            exp.Seed,
			UseOversampling: exp.UseOversampling,
			Scaling:         trial.Scaling,
			Stratify:        exp.Stratify,
			CVFolds:         exp.CrossValidation.Folds,
		})
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			result.Error = err.Error()
			r.logger.Warnw("Trial failed", "trial", i+1, "algorithm", trial.Algorithm, "error", err)
		} else {
			result.Accuracy = out.Report.Accuracy
			result.MacroPrecision = out.Report.MacroPrecision
			result.MacroRecall = out.Report.MacroRecall
			result.MacroF1 = out.Report.MacroF1
			result.WeightedF1 = out.Report.WeightedF1
			result.TrainingTimeMs = out.Duration.Milliseconds()
			if out.CV != nil {
				result.CVMean = out.CV.Mean
				result.CVStd = out.CV.Std
			}
			r.logger.Infow("Trial finished", "trial", i+1, "of", len(trials),
				"algorithm", trial.Algorithm, "params", result.Parameters, "accuracy", result.Accuracy)
		}

		results = append(results, result)
	}

	return results, nil
}

// Rank orders successful results by accuracy, then macro F1, best first.
// Failed trials go last. The input slice is not modified.
func Rank(results []Result) []Result {
	ranked := append([]Result(nil), results...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if (a.Error == "") != (b.Error == "") {
			return a.Error == ""
		}
		if a.Accuracy != b.Accuracy {
			return a.Accuracy > b.Accuracy
		}
		return a.MacroF1 > b.MacroF1
	})
	return ranked
}

func round4(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(4)
}

func ExportResults(results []Result, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	writer.Write([]string{
		"Dataset", "Algorithm", "Parameters", "Scaling", "TestFraction",
		"Accuracy", "MacroPrecision", "MacroRecall", "MacroF1", "WeightedF1",
		"CVMean", "CVStd", "TrainingTimeMs", "Error",
	})

	for _, result := range results {
		writer.Write([]string{
			result.Dataset,
			result.Algorithm,
			result.Parameters,
			result.Scaling,
			decimal.NewFromFloat(result.TestFraction).String(),
			round4(result.Accuracy),
			round4(result.MacroPrecision),
			round4(result.MacroRecall),
			round4(result.MacroF1),
			round4(result.WeightedF1),
			round4(result.CVMean),
			round4(result.CVStd),
			strconv.FormatInt(result.TrainingTimeMs, 10),
			result.Error,
		})
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}
