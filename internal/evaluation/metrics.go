package evaluation

import (
	"fmt"
	"math"
	"strings"

	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/mlerr"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/preprocessing"
	"github.com/shopspring/decimal"
)

// Report is the result of one evaluation. ConfusionMatrix[i][j] counts
// samples of class Classes[i] predicted as Classes[j].
type Report struct {
	Accuracy          float64        `json:"accuracy"`
	BalancedAccuracy  float64        `json:"balanced_accuracy"`
	MacroPrecision    float64        `json:"macro_precision"`
	MacroRecall       float64        `json:"macro_recall"`
	MacroF1           float64        `json:"macro_f1"`
	WeightedPrecision float64        `json:"weighted_precision"`
	WeightedRecall    float64        `json:"weighted_recall"`
	WeightedF1        float64        `json:"weighted_f1"`
	PerClass          []ClassMetrics `json:"per_class"`
	ConfusionMatrix   [][]int        `json:"confusion_matrix"`
	Classes           []string       `json:"classes"`
	NumSamples        int            `json:"num_samples"`
}

type ClassMetrics struct {
	Label       string  `json:"label"`
	Precision   float64 `json:"precision"`
	Recall      float64 `json:"recall"`
	F1Score     float64 `json:"f1_score"`
	Specificity float64 `json:"specificity"`
	Support     int     `json:"support"`
}

// Predictor is what Evaluate needs from a trained model.
type Predictor interface {
	PredictIndices(X [][]float64) ([]int, error)
	LabelMap() *preprocessing.ClassLabelMap
}

// Evaluate predicts X with model and scores the predictions against the
// true labels y.
func Evaluate(model Predictor, X [][]float64, y []string) (*Report, error) {
	if len(X) == 0 {
		return nil, mlerr.Errorf(mlerr.ErrEmptyTestSet, "nothing to evaluate")
	}
	if len(X) != len(y) {
		return nil, mlerr.Errorf(mlerr.ErrDimensionMismatch, "X has %d rows but y has %d labels", len(X), len(y))
	}

	labels := model.LabelMap()
	yTrue, err := labels.Encode(y)
	if err != nil {
		return nil, err
	}

	yPred, err := model.PredictIndices(X)
	if err != nil {
		return nil, err
	}

	return CalculateMetrics(yTrue, yPred, labels.Classes())
}

// CalculateMetrics scores class indices against each other. Both slices
// must have the same length and hold indices into classes. Ratios with an
// empty denominator are 0.
func CalculateMetrics(yTrue, yPred []int, classes []string) (*Report, error) {
	numClasses := len(classes)
	matrix, err := buildConfusionMatrix(yTrue, yPred, numClasses)
	if err != nil {
		return nil, err
	}

	total := 0
	trace := 0
	rowSums := make([]int, numClasses)
	colSums := make([]int, numClasses)
	for i := range matrix {
		for j, count := range matrix[i] {
			rowSums[i] += count
			colSums[j] += count
			total += count
		}
		trace += matrix[i][i]
	}

	report := &Report{
		Accuracy:        safeDivide(float64(trace), float64(total)),
		PerClass:        make([]ClassMetrics, numClasses),
		ConfusionMatrix: matrix,
		Classes:         append([]string(nil), classes...),
		NumSamples:      total,
	}

	presentClasses := 0
	for i, class := range classes {
		tp := matrix[i][i]
		fp := colSums[i] - tp
		fn := rowSums[i] - tp
		tn := total - tp - fp - fn

		precision := safeDivide(float64(tp), float64(tp+fp))
		recall := safeDivide(float64(tp), float64(tp+fn))
		f1 := safeDivide(2*precision*recall, precision+recall)

		report.PerClass[i] = ClassMetrics{
			Label:       class,
			Precision:   precision,
			Recall:      recall,
			F1Score:     f1,
			Specificity: safeDivide(float64(tn), float64(tn+fp)),
			Support:     rowSums[i],
		}

		report.MacroPrecision += precision
		report.MacroRecall += recall
		report.MacroF1 += f1

		support := float64(rowSums[i])
		report.WeightedPrecision += precision * support
		report.WeightedRecall += recall * support
		report.WeightedF1 += f1 * support

		if rowSums[i] > 0 {
			report.BalancedAccuracy += recall
			presentClasses++
		}
	}

	report.MacroPrecision = safeDivide(report.MacroPrecision, float64(numClasses))
	report.MacroRecall = safeDivide(report.MacroRecall, float64(numClasses))
	report.MacroF1 = safeDivide(report.MacroF1, float64(numClasses))

	report.WeightedPrecision = safeDivide(report.WeightedPrecision, float64(total))
	report.WeightedRecall = safeDivide(report.WeightedRecall, float64(total))
	report.WeightedF1 = safeDivide(report.WeightedF1, float64(total))

	report.BalancedAccuracy = safeDivide(report.BalancedAccuracy, float64(presentClasses))

	return report, nil
}

func buildConfusionMatrix(yTrue, yPred []int, numClasses int) ([][]int, error) {
	if len(yTrue) != len(yPred) {
		return nil, mlerr.Errorf(mlerr.ErrDimensionMismatch, "%d true labels but %d predictions", len(yTrue), len(yPred))
	}

	matrix := make([][]int, numClasses)
	for i := range matrix {
		matrix[i] = make([]int, numClasses)
	}

	for i := range yTrue {
		t, p := yTrue[i], yPred[i]
		if t < 0 || t >= numClasses {
			return nil, mlerr.Errorf(mlerr.ErrUnknownLabel, "true label index %d at row %d is outside [0, %d)", t, i, numClasses)
		}
		if p < 0 || p >= numClasses {
			return nil, mlerr.Errorf(mlerr.ErrUnknownLabel, "predicted index %d at row %d is outside [0, %d)", p, i, numClasses)
		}
		matrix[t][p]++
	}

	return matrix, nil
}

func safeDivide(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0.0
	}
	result := numerator / denominator
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0.0
	}
	return result
}

// Summary holds the headline numbers rounded for display.
type Summary struct {
	Accuracy          decimal.Decimal `json:"accuracy"`
	BalancedAccuracy  decimal.Decimal `json:"balanced_accuracy"`
	MacroPrecision    decimal.Decimal `json:"macro_precision"`
	MacroRecall       decimal.Decimal `json:"macro_recall"`
	MacroF1           decimal.Decimal `json:"macro_f1"`
	WeightedPrecision decimal.Decimal `json:"weighted_precision"`
	WeightedRecall    decimal.Decimal `json:"weighted_recall"`
	WeightedF1        decimal.Decimal `json:"weighted_f1"`
}

func (r *Report) Summary(places int32) Summary {
	round := func(v float64) decimal.Decimal {
		return decimal.NewFromFloat(v).Round(places)
	}

	return Summary{
		Accuracy:          round(r.Accuracy),
		BalancedAccuracy:  round(r.BalancedAccuracy),
		MacroPrecision:    round(r.MacroPrecision),
		MacroRecall:       round(r.MacroRecall),
		MacroF1:           round(r.MacroF1),
		WeightedPrecision: round(r.WeightedPrecision),
		WeightedRecall:    round(r.WeightedRecall),
		WeightedF1:        round(r.WeightedF1),
	}
}

func (r *Report) FormatMetrics() string {
	s := r.Summary(4)

	var b strings.Builder
	fmt.Fprintf(&b, "Accuracy: %s\n", s.Accuracy.StringFixed(4))
	fmt.Fprintf(&b, "Balanced Accuracy: %s\n", s.BalancedAccuracy.StringFixed(4))
	fmt.Fprintf(&b, "Macro Avg - Precision: %s, Recall: %s, F1: %s\n",
		s.MacroPrecision.StringFixed(4), s.MacroRecall.StringFixed(4), s.MacroF1.StringFixed(4))
	fmt.Fprintf(&b, "Weighted Avg - Precision: %s, Recall: %s, F1: %s\n",
		s.WeightedPrecision.StringFixed(4), s.WeightedRecall.StringFixed(4), s.WeightedF1.StringFixed(4))
	return b.String()
}
