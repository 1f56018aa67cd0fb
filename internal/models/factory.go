package models

import (
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/mlerr"
)

// ProgressFunc is told how many units of a fit (trees, one-vs-rest
// machines) are finished.
type ProgressFunc func(done, total int)

type ModelConfig struct {
	Algorithm  string
	Params     Hyperparameters
	NClasses   int
	Seed       int64
	OnProgress ProgressFunc
}

// Algorithms lists the strategy names CreateModel accepts.
func Algorithms() []string {
	return []string{
		AlgorithmDecisionTree,
		AlgorithmRandomForest,
		AlgorithmSVM,
		AlgorithmKNN,
		AlgorithmNaiveBayes,
	}
}

func IsKnownAlgorithm(algorithm string) bool {
	for _, a := range Algorithms() {
		if a == algorithm {
			return true
		}
	}
	return false
}

// CreateModel validates the hyperparameters and returns an unfitted
// strategy for config.Algorithm.
func CreateModel(config ModelConfig) (Classifier, error) {
	if !IsKnownAlgorithm(config.Algorithm) {
		return nil, mlerr.Errorf(mlerr.ErrUnknownAlgorithm, "%q (known: decision_tree, random_forest, svm, knn, naive_bayes)", config.Algorithm)
	}
	if err := config.Params.Validate(config.Algorithm); err != nil {
		return nil, err
	}
	if config.NClasses < 2 {
		return nil, mlerr.Errorf(mlerr.ErrInsufficientData, "classification needs at least 2 classes, got %d", config.NClasses)
	}

	switch config.Algorithm {
	case AlgorithmDecisionTree:
		return NewDecisionTree(config.Params, config.NClasses), nil
	case AlgorithmRandomForest:
		rf := NewRandomForest(config.Params, config.NClasses, config.Seed)
		rf.onProgress = config.OnProgress
		return rf, nil
	case AlgorithmSVM:
		svm := NewSVM(config.Params, config.NClasses)
		svm.onProgress = config.OnProgress
		return svm, nil
	case AlgorithmKNN:
		return NewKNN(config.Params, config.NClasses), nil
	default:
		return NewNaiveBayes(config.Params, config.NClasses), nil
	}
}
