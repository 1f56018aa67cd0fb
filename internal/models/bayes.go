package models

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const defaultVarSmoothing = 1e-9

// NaiveBayes is a Gaussian naive Bayes classifier. Classes with no training
// samples keep a zero prior and are never predicted.
type NaiveBayes struct {
	BaseModel
	ClassCount []int       `json:"class_count"`
	ClassPrior []float64   `json:"class_prior"`
	Means      [][]float64 `json:"means"`
	Vars       [][]float64 `json:"vars"`
	Epsilon    float64     `json:"epsilon"`

	VarSmoothing float64 `json:"-"`
}

func NewNaiveBayes(params Hyperparameters, nClasses int) *NaiveBayes {
	smoothing := params.VarSmoothing
	if smoothing == 0 {
		smoothing = defaultVarSmoothing
	}

	return &NaiveBayes{
		VarSmoothing: smoothing,
		BaseModel: BaseModel{
			Name:     AlgorithmNaiveBayes,
			Params:   params,
			NClasses: nClasses,
		},
	}
}

func (nb *NaiveBayes) Fit(X [][]float64, y []int) error {
	if err := nb.checkTrainingSet(X, y); err != nil {
		return err
	}

	column := make([]float64, len(X))
	maxVar := 0.0
	for j := 0; j < nb.NFeatures; j++ {
		for i := range X {
			column[i] = X[i][j]
		}
		if v := stat.PopVariance(column, nil); v > maxVar {
			maxVar = v
		}
	}
	nb.Epsilon = nb.VarSmoothing * maxVar
	if nb.Epsilon == 0 {
		nb.Epsilon = nb.VarSmoothing
	}

	nb.ClassCount = ClassCounts(y, nb.NClasses)
	nb.ClassPrior = make([]float64, nb.NClasses)
	nb.Means = make([][]float64, nb.NClasses)
	nb.Vars = make([][]float64, nb.NClasses)

	for class := 0; class < nb.NClasses; class++ {
		if nb.ClassCount[class] == 0 {
			continue
		}
		nb.ClassPrior[class] = float64(nb.ClassCount[class]) / float64(len(y))
		nb.Means[class] = make([]float64, nb.NFeatures)
		nb.Vars[class] = make([]float64, nb.NFeatures)

		values := make([]float64, 0, nb.ClassCount[class])
		for j := 0; j < nb.NFeatures; j++ {
			values = values[:0]
			for i, label := range y {
				if label == class {
					values = append(values, X[i][j])
				}
			}
			mean, variance := stat.PopMeanVariance(values, nil)
			nb.Means[class][j] = mean
			nb.Vars[class][j] = variance + nb.Epsilon
		}
	}

	return nil
}

// jointLogLikelihood returns log P(c) + sum_j log N(x_j; mean_cj, var_cj)
// for every class.
func (nb *NaiveBayes) jointLogLikelihood(sample []float64) []float64 {
	jll := make([]float64, nb.NClasses)

	for class := range jll {
		if nb.ClassPrior[class] == 0 {
			jll[class] = math.Inf(-1)
			continue
		}
		logProb := math.Log(nb.ClassPrior[class])
		for j, x := range sample {
			variance := nb.Vars[class][j]
			diff := x - nb.Means[class][j]
			logProb += -0.5*math.Log(2*math.Pi*variance) - (diff*diff)/(2*variance)
		}
		jll[class] = logProb
	}

	return jll
}

func (nb *NaiveBayes) Predict(X [][]float64) []int {
	predictions := make([]int, len(X))
	for i, sample := range X {
		predictions[i] = floats.MaxIdx(nb.jointLogLikelihood(sample))
	}
	return predictions
}

func (nb *NaiveBayes) PredictProba(X [][]float64) ([][]float64, error) {
	proba := make([][]float64, len(X))

	for i, sample := range X {
		jll := nb.jointLogLikelihood(sample)
		norm := floats.LogSumExp(jll)
		proba[i] = make([]float64, nb.NClasses)
		for c, lp := range jll {
			proba[i][c] = math.Exp(lp - norm)
		}
	}

	return proba, nil
}
