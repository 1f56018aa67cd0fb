// Package training runs a full train-and-evaluate cycle: validation,
// splitting, optional scaling and oversampling of the training split,
// fitting, and evaluation on the untouched test split.
package training

import (
	"context"
	"time"

	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/data"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/evaluation"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/mlerr"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/models"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/persistence"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/preprocessing"
	"go.uber.org/zap"
)

type Stage string

const (
	StageValidate      Stage = "validate"
	StageSplit         Stage = "split"
	StageScale         Stage = "scale"
	StageOversample    Stage = "oversample"
	StageFit           Stage = "fit"
	StageEvaluate      Stage = "evaluate"
	StageCrossValidate Stage = "cross_validate"
	StageDone          Stage = "done"
)

var stageOrder = []Stage{StageValidate, StageSplit, StageScale, StageOversample, StageFit, StageEvaluate, StageCrossValidate}

// Progress is reported at stage boundaries and, inside the fit and
// cross-validation stages, after every tree, machine or fold.
type Progress struct {
	Stage Stage
	Done  int
	Total int
}

// Fraction maps the progress onto [0, 1] by giving every stage an equal
// share.
func (p Progress) Fraction() float64 {
	if p.Stage == StageDone {
		return 1
	}
	for i, s := range stageOrder {
		if s == p.Stage {
			within := 0.0
			if p.Total > 0 {
				within = float64(p.Done) / float64(p.Total)
			}
			return (float64(i) + within) / float64(len(stageOrder))
		}
	}
	return 0
}

// SplitSummary records the class counts of each partition. Oversampled is
// nil when oversampling was not requested.
type SplitSummary struct {
	TrainSize   int            `json:"train_size"`
	TestSize    int            `json:"test_size"`
	Train       map[string]int `json:"train"`
	Oversampled map[string]int `json:"oversampled,omitempty"`
	Test        map[string]int `json:"test"`
}

type Result struct {
	Artifact *persistence.ModelArtifact `json:"artifact"`
	Report   *evaluation.Report         `json:"report"`
	Split    SplitSummary               `json:"split"`
	CV       *evaluation.CVResult       `json:"cv,omitempty"`
	Duration time.Duration              `json:"duration"`
}

type Option func(*Trainer)

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(t *Trainer) {
		t.logger = logger
	}
}

// WithProgress installs a callback. It is always called from the goroutine
// running Train.
func WithProgress(fn func(Progress)) Option {
	return func(t *Trainer) {
		t.progress = fn
	}
}

type Trainer struct {
	logger    *zap.SugaredLogger
	progress  func(Progress)
	validator *data.DataValidator
}

func NewTrainer(opts ...Option) *Trainer {
	t := &Trainer{
		logger:    zap.NewNop().Sugar(),
		validator: data.NewDataValidator(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Trainer) emit(stage Stage, done, total int) {
	if t.progress != nil {
		t.progress(Progress{Stage: stage, Done: done, Total: total})
	}
}

// Train fits cfg.Algorithm on a split of X and y and evaluates it on the
// held-out rows. Columns are named feature_0, feature_1, ... in the
// artifact; use TrainDataset to carry real names.
func (t *Trainer) Train(ctx context.Context, X [][]float64, y []string, cfg Config) (*Result, error) {
	return t.train(ctx, X, y, nil, cfg)
}

func (t *Trainer) TrainDataset(ctx context.Context, ds *data.Dataset, cfg Config) (*Result, error) {
	return t.train(ctx, ds.X, ds.Labels, ds.FeatureNames, cfg)
}

func (t *Trainer) train(ctx context.Context, X [][]float64, y []string, featureNames []string, cfg Config) (*Result, error) {
	start := time.Now()
	log := t.logger.With("algorithm", cfg.Algorithm, "seed", cfg.Seed)

	t.emit(StageValidate, 0, 1)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	nFeatures, err := t.validator.ValidateDataset(X, len(y))
	if err != nil {
		return nil, err
	}
	if featureNames != nil && len(featureNames) != nFeatures {
		return nil, mlerr.Errorf(mlerr.ErrDimensionMismatch, "%d feature names for %d features", len(featureNames), nFeatures)
	}

	labels := preprocessing.NewClassLabelMap(y)
	encoded, err := labels.Encode(y)
	if err != nil {
		return nil, err
	}
	if err := t.validator.ValidateLabels(encoded); err != nil {
		return nil, err
	}
	log.Infow("Training started", "rows", len(X), "features", nFeatures, "classes", labels.Len())

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.emit(StageSplit, 0, 1)

	var XTrain, XTest [][]float64
	var yTrain, yTest []int
	if cfg.Stratify {
		XTrain, XTest, yTrain, yTest, err = evaluation.StratifiedSplit(X, encoded, cfg.TestFraction, cfg.Seed)
	} else {
		XTrain, XTest, yTrain, yTest, err = evaluation.Split(X, encoded, cfg.TestFraction, cfg.Seed)
	}
	if err != nil {
		return nil, err
	}

	summary := SplitSummary{
		TrainSize: len(yTrain),
		TestSize:  len(yTest),
		Train:     labelCounts(yTrain, labels),
		Test:      labelCounts(yTest, labels),
	}
	log.Debugw("Data split", "train", summary.TrainSize, "test", summary.TestSize)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.emit(StageScale, 0, 1)

	var scaler *preprocessing.Scaler
	if cfg.Scaling != "" && cfg.Scaling != preprocessing.ScaleNone {
		scaler = preprocessing.NewScaler(cfg.Scaling)
		if XTrain, err = scaler.FitTransform(XTrain); err != nil {
			return nil, err
		}
	}

	t.emit(StageOversample, 0, 1)
	if cfg.UseOversampling {
		XTrain, yTrain = Oversample(XTrain, yTrain, labels.Len(), cfg.oversamplingMethod(), cfg.Seed)
		summary.Oversampled = labelCounts(yTrain, labels)
		log.Infow("Training split oversampled", "method", cfg.oversamplingMethod(), "rows", len(yTrain))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.emit(StageFit, 0, 1)

	model, err := models.CreateModel(t.modelConfig(cfg, labels.Len(), true))
	if err != nil {
		return nil, err
	}
	fitStart := time.Now()
	if err := model.Fit(XTrain, yTrain); err != nil {
		return nil, err
	}
	log.Infow("Model fitted", "took", time.Since(fitStart))

	artifact, err := persistence.NewModelArtifact(model, labels, featureNames, scaler, nFeatures)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.emit(StageEvaluate, 0, 1)

	testLabels, err := labels.Decode(yTest)
	if err != nil {
		return nil, err
	}
	report, err := evaluation.Evaluate(artifact, XTest, testLabels)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Artifact: artifact,
		Report:   report,
		Split:    summary,
	}

	if cfg.CVFolds >= 2 {
		t.emit(StageCrossValidate, 0, cfg.CVFolds)
		if result.CV, err = t.crossValidate(ctx, X, encoded, labels, cfg); err != nil {
			return nil, err
		}
		log.Infow("Cross-validation finished", "folds", cfg.CVFolds, "mean", result.CV.Mean, "std", result.CV.Std)
	}

	result.Duration = time.Since(start)
	t.emit(StageDone, 1, 1)
	log.Infow("Training finished", "accuracy", report.Accuracy, "macro_f1", report.MacroF1, "took", result.Duration)

	return result, nil
}

func (t *Trainer) modelConfig(cfg Config, nClasses int, reportProgress bool) models.ModelConfig {
	mc := models.ModelConfig{
		Algorithm: cfg.Algorithm,
		Params:    cfg.Hyperparameters,
		NClasses:  nClasses,
		Seed:      cfg.Seed,
	}
	if reportProgress {
		mc.OnProgress = func(done, total int) {
			t.emit(StageFit, done, total)
		}
	}
	return mc
}

func (t *Trainer) crossValidate(ctx context.Context, X [][]float64, y []int, labels *preprocessing.ClassLabelMap, cfg Config) (*evaluation.CVResult, error) {
	cv := evaluation.NewCrossValidator(cfg.CVFolds, cfg.Stratify, cfg.Seed)
	cv.OnFold = func(done, total int) {
		t.emit(StageCrossValidate, done, total)
	}
	if cfg.Scaling != "" && cfg.Scaling != preprocessing.ScaleNone {
		cv.Prepare = func(XTrain, XTest [][]float64) ([][]float64, [][]float64, error) {
			scaler := preprocessing.NewScaler(cfg.Scaling)
			trainScaled, err := scaler.FitTransform(XTrain)
			if err != nil {
				return nil, nil, err
			}
			testScaled, err := scaler.Transform(XTest)
			if err != nil {
				return nil, nil, err
			}
			return trainScaled, testScaled, nil
		}
	}

	return cv.CrossValidate(ctx, X, y, labels.Classes(), func() (models.Classifier, error) {
		return models.CreateModel(t.modelConfig(cfg, labels.Len(), false))
	})
}

func labelCounts(y []int, labels *preprocessing.ClassLabelMap) map[string]int {
	counts := make(map[string]int)
	for _, idx := range y {
		label, _ := labels.Label(idx)
		counts[label]++
	}
	return counts
}
