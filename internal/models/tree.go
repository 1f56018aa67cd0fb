package models

import (
	"math"
	"math/rand"
	"sort"
)

// minImpurityDecrease keeps floating point noise from producing splits that
// do not separate anything.
const minImpurityDecrease = 1e-12

type TreeNode struct {
	IsLeaf    bool      `json:"leaf,omitempty"`
	Feature   int       `json:"feature,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	Counts    []int     `json:"counts,omitempty"`
	Left      *TreeNode `json:"left,omitempty"`
	Right     *TreeNode `json:"right,omitempty"`
	Samples   int       `json:"samples"`
	Impurity  float64   `json:"impurity"`
}

type DecisionTree struct {
	BaseModel
	Root        *TreeNode `json:"root"`
	Importances []float64 `json:"importances,omitempty"`

	MaxDepth        int    `json:"-"`
	MinSamplesSplit int    `json:"-"`
	Criterion       string `json:"-"`

	// set by RandomForest for per-node feature subsampling
	maxFeatures int
	rng         *rand.Rand
	decrease    []float64
}

func NewDecisionTree(params Hyperparameters, nClasses int) *DecisionTree {
	criterion := params.Criterion
	if criterion == "" {
		criterion = CriterionGini
	}
	minSplit := params.MinSamplesSplit
	if minSplit == 0 {
		minSplit = 2
	}

	return &DecisionTree{
		MaxDepth:        params.MaxDepth,
		MinSamplesSplit: minSplit,
		Criterion:       criterion,
		BaseModel: BaseModel{
			Name:     AlgorithmDecisionTree,
			Params:   params,
			NClasses: nClasses,
		},
	}
}

func (dt *DecisionTree) Fit(X [][]float64, y []int) error {
	if err := dt.checkTrainingSet(X, y); err != nil {
		return err
	}

	indices := make([]int, len(X))
	for i := range indices {
		indices[i] = i
	}
	dt.fitIndices(X, y, indices)
	return nil
}

// fitIndices grows the tree over the rows named by indices. Indices may
// repeat, which is how bootstrap samples are passed in.
func (dt *DecisionTree) fitIndices(X [][]float64, y []int, indices []int) {
	dt.NFeatures = len(X[0])
	dt.decrease = make([]float64, dt.NFeatures)
	dt.Root = dt.buildTree(X, y, indices, 0)
	dt.Importances = normalize(dt.decrease)
	dt.decrease = nil
}

func (dt *DecisionTree) buildTree(X [][]float64, y []int, indices []int, depth int) *TreeNode {
	counts := make([]int, dt.NClasses)
	for _, idx := range indices {
		counts[y[idx]]++
	}

	node := &TreeNode{
		Samples:  len(indices),
		Impurity: dt.impurity(counts, len(indices)),
	}

	if depth >= dt.MaxDepth ||
		len(indices) < dt.MinSamplesSplit ||
		isPure(counts) {
		node.IsLeaf = true
		node.Counts = counts
		return node
	}

	feature, threshold, gain, ok := dt.findBestSplit(X, y, indices, node.Impurity)
	if !ok {
		node.IsLeaf = true
		node.Counts = counts
		return node
	}

	var left, right []int
	for _, idx := range indices {
		if X[idx][feature] <= threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}

	dt.decrease[feature] += float64(len(indices)) * gain

	node.Feature = feature
	node.Threshold = threshold
	node.Left = dt.buildTree(X, y, left, depth+1)
	node.Right = dt.buildTree(X, y, right, depth+1)

	return node
}

// findBestSplit scans every candidate feature for the midpoint threshold
// with the largest impurity decrease. Earlier features and lower thresholds
// win ties.
func (dt *DecisionTree) findBestSplit(X [][]float64, y []int, indices []int, parentImpurity float64) (int, float64, float64, bool) {
	bestFeature := -1
	bestThreshold := 0.0
	bestGain := minImpurityDecrease

	n := len(indices)
	sorted := make([]int, n)
	leftCounts := make([]int, dt.NClasses)
	rightCounts := make([]int, dt.NClasses)

	for _, feature := range dt.candidateFeatures() {
		copy(sorted, indices)
		sort.SliceStable(sorted, func(a, b int) bool {
			return X[sorted[a]][feature] < X[sorted[b]][feature]
		})

		for c := range leftCounts {
			leftCounts[c] = 0
			rightCounts[c] = 0
		}
		for _, idx := range sorted {
			rightCounts[y[idx]]++
		}

		for s := 1; s < n; s++ {
			moved := y[sorted[s-1]]
			leftCounts[moved]++
			rightCounts[moved]--

			lo := X[sorted[s-1]][feature]
			hi := X[sorted[s]][feature]
			if lo == hi {
				continue
			}

			weighted := (float64(s)/float64(n))*dt.impurity(leftCounts, s) +
				(float64(n-s)/float64(n))*dt.impurity(rightCounts, n-s)
			gain := parentImpurity - weighted

			if gain > bestGain {
				threshold := lo + (hi-lo)/2
				if threshold >= hi {
					threshold = lo
				}
				bestGain = gain
				bestFeature = feature
				bestThreshold = threshold
			}
		}
	}

	if bestFeature < 0 {
		return 0, 0, 0, false
	}
	return bestFeature, bestThreshold, bestGain, true
}

func (dt *DecisionTree) candidateFeatures() []int {
	features := make([]int, dt.NFeatures)
	for i := range features {
		features[i] = i
	}

	if dt.rng == nil || dt.maxFeatures <= 0 || dt.maxFeatures >= dt.NFeatures {
		return features
	}

	for i := 0; i < dt.maxFeatures; i++ {
		j := i + dt.rng.Intn(dt.NFeatures-i)
		features[i], features[j] = features[j], features[i]
	}
	selected := features[:dt.maxFeatures]
	sort.Ints(selected)
	return selected
}

func (dt *DecisionTree) impurity(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	if dt.Criterion == CriterionEntropy {
		return entropy(counts, n)
	}
	return gini(counts, n)
}

func gini(counts []int, n int) float64 {
	impurity := 1.0
	for _, count := range counts {
		p := float64(count) / float64(n)
		impurity -= p * p
	}
	return impurity
}

func entropy(counts []int, n int) float64 {
	h := 0.0
	for _, count := range counts {
		if count == 0 {
			continue
		}
		p := float64(count) / float64(n)
		h -= p * math.Log2(p)
	}
	return h
}

func isPure(counts []int) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func (dt *DecisionTree) Predict(X [][]float64) []int {
	predictions := make([]int, len(X))
	for i, sample := range X {
		predictions[i] = argmaxInt(dt.leaf(sample).Counts)
	}
	return predictions
}

func (dt *DecisionTree) PredictProba(X [][]float64) ([][]float64, error) {
	proba := make([][]float64, len(X))
	for i, sample := range X {
		proba[i] = leafFrequencies(dt.leaf(sample), dt.NClasses)
	}
	return proba, nil
}

func (dt *DecisionTree) leaf(sample []float64) *TreeNode {
	node := dt.Root
	for !node.IsLeaf {
		if sample[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node
}

func leafFrequencies(leaf *TreeNode, nClasses int) []float64 {
	out := make([]float64, nClasses)
	if leaf.Samples == 0 {
		return out
	}
	for c, count := range leaf.Counts {
		out[c] = float64(count) / float64(leaf.Samples)
	}
	return out
}

func (dt *DecisionTree) FeatureImportances() []float64 {
	if dt.Importances == nil {
		return nil
	}
	out := make([]float64, len(dt.Importances))
	copy(out, dt.Importances)
	return out
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (dt *DecisionTree) Depth() int {
	return nodeDepth(dt.Root)
}

func nodeDepth(node *TreeNode) int {
	if node == nil || node.IsLeaf {
		return 0
	}
	return 1 + max(nodeDepth(node.Left), nodeDepth(node.Right))
}
