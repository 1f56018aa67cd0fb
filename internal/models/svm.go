package models

import (
	"math"

	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/mlerr"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	defaultSVMDegree = 3
	defaultSVMTol    = 1e-3
	// tau replaces a non-positive curvature in the SMO step (libsvm's TAU).
	tau = 1e-12
)

// BinaryMachine is one class-versus-rest decision function
// f(x) = sum_i Coef[i]*K(SupportVectors[i], x) + Bias.
type BinaryMachine struct {
	Class          int         `json:"class"`
	SupportVectors [][]float64 `json:"support_vectors,omitempty"`
	Coef           []float64   `json:"coef,omitempty"`
	Bias           float64     `json:"bias"`
	Skip           bool        `json:"skip,omitempty"`
}

// SVM is a kernel support vector classifier. Multiclass problems are
// decomposed one-vs-rest and each binary dual is solved with SMO using
// maximal violating pair selection.
type SVM struct {
	BaseModel
	Machines    []BinaryMachine `json:"machines"`
	Gamma       float64         `json:"gamma"`
	Importances []float64       `json:"importances,omitempty"`

	C       float64 `json:"-"`
	Kernel  string  `json:"-"`
	Degree  int     `json:"-"`
	Coef0   float64 `json:"-"`
	Tol     float64 `json:"-"`
	MaxIter int     `json:"-"`

	onProgress ProgressFunc
}

func NewSVM(params Hyperparameters, nClasses int) *SVM {
	degree := params.Degree
	if degree == 0 {
		degree = defaultSVMDegree
	}
	tol := params.Tol
	if tol == 0 {
		tol = defaultSVMTol
	}

	return &SVM{
		C:       params.C,
		Kernel:  params.Kernel,
		Gamma:   params.Gamma,
		Degree:  degree,
		Coef0:   params.Coef0,
		Tol:     tol,
		MaxIter: params.MaxIter,
		BaseModel: BaseModel{
			Name:     AlgorithmSVM,
			Params:   params,
			NClasses: nClasses,
		},
	}
}

func (s *SVM) kernel(a, b []float64) float64 {
	switch s.Kernel {
	case KernelLinear:
		return floats.Dot(a, b)
	case KernelPoly:
		return math.Pow(s.Gamma*floats.Dot(a, b)+s.Coef0, float64(s.Degree))
	case KernelSigmoid:
		return math.Tanh(s.Gamma*floats.Dot(a, b) + s.Coef0)
	default:
		d := floats.Distance(a, b, 2)
		return math.Exp(-s.Gamma * d * d)
	}
}

func (s *SVM) Fit(X [][]float64, y []int) error {
	if err := s.checkTrainingSet(X, y); err != nil {
		return err
	}
	if s.Params.Gamma == 0 {
		s.Gamma = 1 / float64(s.NFeatures)
	}

	n := len(X)
	K := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			K.SetSym(i, j, s.kernel(X[i], X[j]))
		}
	}

	counts := ClassCounts(y, s.NClasses)
	s.Machines = make([]BinaryMachine, s.NClasses)
	targets := make([]float64, n)

	for class := 0; class < s.NClasses; class++ {
		machine := BinaryMachine{Class: class}
		if counts[class] == 0 {
			machine.Skip = true
		} else {
			for i, label := range y {
				if label == class {
					targets[i] = 1
				} else {
					targets[i] = -1
				}
			}
			alpha, rho := s.solve(K, targets)
			for i, a := range alpha {
				if a > 0 {
					sv := make([]float64, len(X[i]))
					copy(sv, X[i])
					machine.SupportVectors = append(machine.SupportVectors, sv)
					machine.Coef = append(machine.Coef, a*targets[i])
				}
			}
			machine.Bias = -rho
		}
		s.Machines[class] = machine

		if s.onProgress != nil {
			s.onProgress(class+1, s.NClasses)
		}
	}

	if s.Kernel == KernelLinear {
		s.Importances = s.linearImportances()
	}
	return nil
}

// solve runs SMO on the dual
//
//	min 1/2 a'Qa - e'a  s.t.  0 <= a <= C, y'a = 0,  Q_ij = y_i y_j K_ij
//
// and returns the multipliers and the offset rho.
func (s *SVM) solve(K *mat.SymDense, y []float64) ([]float64, float64) {
	n := len(y)
	C := s.C
	alpha := make([]float64, n)
	grad := make([]float64, n)
	for i := range grad {
		grad[i] = -1
	}

	maxIter := s.MaxIter
	if maxIter == 0 {
		maxIter = max(100000, 100*n)
	}

	q := func(i, j int) float64 { return y[i] * y[j] * K.At(i, j) }

	for iter := 0; iter < maxIter; iter++ {
		i, j := -1, -1
		gmax, gmin := math.Inf(-1), math.Inf(1)
		for t := 0; t < n; t++ {
			v := -y[t] * grad[t]
			inUp := (y[t] > 0 && alpha[t] < C) || (y[t] < 0 && alpha[t] > 0)
			inLow := (y[t] < 0 && alpha[t] < C) || (y[t] > 0 && alpha[t] > 0)
			if inUp && v > gmax {
				gmax, i = v, t
			}
			if inLow && v < gmin {
				gmin, j = v, t
			}
		}
		if i < 0 || j < 0 || gmax-gmin < s.Tol {
			break
		}

		oldI, oldJ := alpha[i], alpha[j]
		if y[i] != y[j] {
			quad := q(i, i) + q(j, j) + 2*q(i, j)
			if quad <= 0 {
				quad = tau
			}
			delta := (-grad[i] - grad[j]) / quad
			diff := alpha[i] - alpha[j]
			alpha[i] += delta
			alpha[j] += delta
			if diff > 0 {
				if alpha[j] < 0 {
					alpha[j] = 0
					alpha[i] = diff
				}
			} else if alpha[i] < 0 {
				alpha[i] = 0
				alpha[j] = -diff
			}
			if diff > 0 {
				if alpha[i] > C {
					alpha[i] = C
					alpha[j] = C - diff
				}
			} else if alpha[j] > C {
				alpha[j] = C
				alpha[i] = C + diff
			}
		} else {
			quad := q(i, i) + q(j, j) - 2*q(i, j)
			if quad <= 0 {
				quad = tau
			}
			delta := (grad[i] - grad[j]) / quad
			sum := alpha[i] + alpha[j]
			alpha[i] -= delta
			alpha[j] += delta
			if sum > C {
				if alpha[i] > C {
					alpha[i] = C
					alpha[j] = sum - C
				}
			} else if alpha[j] < 0 {
				alpha[j] = 0
				alpha[i] = sum
			}
			if sum > C {
				if alpha[j] > C {
					alpha[j] = C
					alpha[i] = sum - C
				}
			} else if alpha[i] < 0 {
				alpha[i] = 0
				alpha[j] = sum
			}
		}

		dI, dJ := alpha[i]-oldI, alpha[j]-oldJ
		for t := 0; t < n; t++ {
			grad[t] += q(t, i)*dI + q(t, j)*dJ
		}
	}

	return alpha, s.rho(alpha, grad, y)
}

func (s *SVM) rho(alpha, grad, y []float64) float64 {
	ub, lb := math.Inf(1), math.Inf(-1)
	sumFree, nFree := 0.0, 0

	for t := range alpha {
		yG := y[t] * grad[t]
		switch {
		case alpha[t] >= s.C:
			if y[t] < 0 {
				ub = math.Min(ub, yG)
			} else {
				lb = math.Max(lb, yG)
			}
		case alpha[t] <= 0:
			if y[t] > 0 {
				ub = math.Min(ub, yG)
			} else {
				lb = math.Max(lb, yG)
			}
		default:
			nFree++
			sumFree += yG
		}
	}

	if nFree > 0 {
		return sumFree / float64(nFree)
	}
	return (ub + lb) / 2
}

func (s *SVM) decision(m BinaryMachine, sample []float64) float64 {
	if m.Skip {
		return math.Inf(-1)
	}
	f := m.Bias
	for i, sv := range m.SupportVectors {
		f += m.Coef[i] * s.kernel(sv, sample)
	}
	return f
}

// DecisionFunction returns the one-vs-rest decision value of every class.
func (s *SVM) DecisionFunction(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, sample := range X {
		out[i] = make([]float64, len(s.Machines))
		for c, m := range s.Machines {
			out[i][c] = s.decision(m, sample)
		}
	}
	return out
}

func (s *SVM) Predict(X [][]float64) []int {
	predictions := make([]int, len(X))
	for i, scores := range s.DecisionFunction(X) {
		predictions[i] = floats.MaxIdx(scores)
	}
	return predictions
}

func (s *SVM) PredictProba(X [][]float64) ([][]float64, error) {
	return nil, mlerr.Errorf(mlerr.ErrNotSupported, "svm does not produce calibrated probabilities")
}

// linearImportances averages |w| over the trained machines, where
// w = sum_i Coef[i]*SupportVectors[i] is the primal weight vector.
func (s *SVM) linearImportances() []float64 {
	total := make([]float64, s.NFeatures)
	w := make([]float64, s.NFeatures)

	for _, m := range s.Machines {
		if m.Skip {
			continue
		}
		for j := range w {
			w[j] = 0
		}
		for i, sv := range m.SupportVectors {
			floats.AddScaled(w, m.Coef[i], sv)
		}
		for j, v := range w {
			total[j] += math.Abs(v)
		}
	}

	return normalize(total)
}

func (s *SVM) FeatureImportances() []float64 {
	if s.Importances == nil {
		return nil
	}
	out := make([]float64, len(s.Importances))
	copy(out, s.Importances)
	return out
}
