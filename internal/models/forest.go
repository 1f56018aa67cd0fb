package models

import (
	"math"
	"math/rand"
	"sync"
)

const defaultForestWorkers = 4

type RandomForest struct {
	BaseModel
	Trees       []*DecisionTree `json:"trees"`
	Importances []float64       `json:"importances,omitempty"`

	NTrees     int   `json:"-"`
	Seed       int64 `json:"-"`
	MaxWorkers int   `json:"-"`

	onProgress ProgressFunc
}

func NewRandomForest(params Hyperparameters, nClasses int, seed int64) *RandomForest {
	workers := params.MaxWorkers
	if workers <= 0 {
		workers = defaultForestWorkers
	}

	return &RandomForest{
		NTrees:     params.NEstimators,
		Seed:       seed,
		MaxWorkers: workers,
		BaseModel: BaseModel{
			Name:     AlgorithmRandomForest,
			Params:   params,
			NClasses: nClasses,
		},
	}
}

// Fit grows NTrees trees on bootstrap samples. Tree i draws its sample and
// its per-node feature subsets from a generator seeded with Seed+i, so the
// forest is the same no matter how the workers are scheduled.
func (rf *RandomForest) Fit(X [][]float64, y []int) error {
	if err := rf.checkTrainingSet(X, y); err != nil {
		return err
	}

	maxFeatures := int(math.Sqrt(float64(rf.NFeatures)))
	if maxFeatures < 1 {
		maxFeatures = 1
	}

	rf.Trees = make([]*DecisionTree, rf.NTrees)

	workers := rf.MaxWorkers
	if workers > rf.NTrees {
		workers = rf.NTrees
	}

	jobs := make(chan int, rf.NTrees)
	finished := make(chan int, rf.NTrees)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rf.Trees[i] = rf.trainSingleTree(X, y, i, maxFeatures)
				finished <- i
			}
		}()
	}

	for i := 0; i < rf.NTrees; i++ {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(finished)
	}()

	done := 0
	for range finished {
		done++
		if rf.onProgress != nil {
			rf.onProgress(done, rf.NTrees)
		}
	}

	rf.Importances = rf.meanImportances()
	return nil
}

func (rf *RandomForest) trainSingleTree(X [][]float64, y []int, i, maxFeatures int) *DecisionTree {
	r := rand.New(rand.NewSource(rf.Seed + int64(i)))

	n := len(X)
	boot := make([]int, n)
	for k := range boot {
		boot[k] = r.Intn(n)
	}

	tree := NewDecisionTree(rf.Params, rf.NClasses)
	tree.maxFeatures = maxFeatures
	tree.rng = r
	tree.fitIndices(X, y, boot)
	tree.rng = nil

	return tree
}

func (rf *RandomForest) meanImportances() []float64 {
	sum := make([]float64, rf.NFeatures)
	for _, tree := range rf.Trees {
		for j, v := range tree.Importances {
			sum[j] += v
		}
	}
	return normalize(sum)
}

func (rf *RandomForest) Predict(X [][]float64) []int {
	predictions := make([]int, len(X))

	for i, sample := range X {
		votes := make([]int, rf.NClasses)
		for _, tree := range rf.Trees {
			votes[argmaxInt(tree.leaf(sample).Counts)]++
		}
		predictions[i] = argmaxInt(votes)
	}

	return predictions
}

func (rf *RandomForest) PredictProba(X [][]float64) ([][]float64, error) {
	proba := make([][]float64, len(X))
	nTrees := float64(len(rf.Trees))

	for i, sample := range X {
		proba[i] = make([]float64, rf.NClasses)
		for _, tree := range rf.Trees {
			for c, p := range leafFrequencies(tree.leaf(sample), rf.NClasses) {
				proba[i][c] += p
			}
		}
		for c := range proba[i] {
			proba[i][c] /= nTrees
		}
	}

	return proba, nil
}

func (rf *RandomForest) FeatureImportances() []float64 {
	if rf.Importances == nil {
		return nil
	}
	out := make([]float64, len(rf.Importances))
	copy(out, rf.Importances)
	return out
}
