package evaluation

import (
	"context"
	"fmt"
	"sync"

	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/models"
	"gonum.org/v1/gonum/stat"
)

const defaultCVWorkers = 4

// ModelFactory returns a fresh, unfitted model for one fold.
type ModelFactory func() (models.Classifier, error)

// PrepareFunc turns one fold's raw rows into model inputs, e.g. by fitting
// a scaler on XTrain and applying it to both sides.
type PrepareFunc func(XTrain, XTest [][]float64) ([][]float64, [][]float64, error)

type CrossValidator struct {
	NFolds     int
	Stratified bool
	Seed       int64
	MaxWorkers int
	Prepare    PrepareFunc
	// OnFold is called from the calling goroutine after every finished fold.
	OnFold func(done, total int)
}

type CVResult struct {
	Scores  []float64 `json:"scores"`
	Mean    float64   `json:"mean"`
	Std     float64   `json:"std"`
	Reports []*Report `json:"-"`
}

func NewCrossValidator(nFolds int, stratified bool, seed int64) *CrossValidator {
	return &CrossValidator{
		NFolds:     nFolds,
		Stratified: stratified,
		Seed:       seed,
		MaxWorkers: defaultCVWorkers,
	}
}

// Folds returns the test indices of every fold.
func (cv *CrossValidator) Folds(y []int) ([][]int, error) {
	if cv.Stratified {
		return StratifiedKFoldIndices(y, cv.NFolds, cv.Seed)
	}
	return KFoldIndices(len(y), cv.NFolds, cv.Seed)
}

// CrossValidate trains one model per fold in parallel and scores it on the
// held-out fold. Scores are fold accuracies; Std is the sample standard
// deviation. Fold assignment depends only on Seed, so the result does not
// depend on worker scheduling.
func (cv *CrossValidator) CrossValidate(ctx context.Context, X [][]float64, y []int, classes []string, newModel ModelFactory) (*CVResult, error) {
	folds, err := cv.Folds(y)
	if err != nil {
		return nil, err
	}

	reports := make([]*Report, len(folds))
	errs := make([]error, len(folds))

	workers := cv.MaxWorkers
	if workers <= 0 {
		workers = defaultCVWorkers
	}
	if workers > len(folds) {
		workers = len(folds)
	}

	jobs := make(chan int, len(folds))
	finished := make(chan int, len(folds))
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for fold := range jobs {
				if err := ctx.Err(); err != nil {
					errs[fold] = err
				} else {
					reports[fold], errs[fold] = cv.evaluateFold(X, y, classes, folds[fold], newModel)
				}
				finished <- fold
			}
		}()
	}

	for fold := range folds {
		jobs <- fold
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(finished)
	}()

	done := 0
	for range finished {
		done++
		if cv.OnFold != nil {
			cv.OnFold(done, len(folds))
		}
	}

	for fold, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("fold %d failed: %w", fold, err)
		}
	}

	scores := make([]float64, len(reports))
	for i, report := range reports {
		scores[i] = report.Accuracy
	}
	mean, std := stat.MeanStdDev(scores, nil)

	return &CVResult{
		Scores:  scores,
		Mean:    mean,
		Std:     std,
		Reports: reports,
	}, nil
}

func (cv *CrossValidator) evaluateFold(X [][]float64, y []int, classes []string, testIndices []int, newModel ModelFactory) (*Report, error) {
	inTest := make(map[int]bool, len(testIndices))
	for _, idx := range testIndices {
		inTest[idx] = true
	}

	trainIndices := make([]int, 0, len(X)-len(testIndices))
	for i := range X {
		if !inTest[i] {
			trainIndices = append(trainIndices, i)
		}
	}

	XTrain, yTrain := Take(X, y, trainIndices)
	XTest, yTest := Take(X, y, testIndices)

	if cv.Prepare != nil {
		var err error
		if XTrain, XTest, err = cv.Prepare(XTrain, XTest); err != nil {
			return nil, err
		}
	}

	model, err := newModel()
	if err != nil {
		return nil, err
	}
	if err := model.Fit(XTrain, yTrain); err != nil {
		return nil, err
	}

	return CalculateMetrics(yTest, model.Predict(XTest), classes)
}
