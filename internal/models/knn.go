package models

import (
	"sort"

	"gonum.org/v1/gonum/floats"
)

type KNN struct {
	BaseModel
	K      int         `json:"-"`
	XTrain [][]float64 `json:"x_train"`
	YTrain []int       `json:"y_train"`
}

func NewKNN(params Hyperparameters, nClasses int) *KNN {
	return &KNN{
		K: params.NNeighbors,
		BaseModel: BaseModel{
			Name:     AlgorithmKNN,
			Params:   params,
			NClasses: nClasses,
		},
	}
}

func (knn *KNN) Fit(X [][]float64, y []int) error {
	if err := knn.checkTrainingSet(X, y); err != nil {
		return err
	}

	knn.XTrain = make([][]float64, len(X))
	for i := range X {
		knn.XTrain[i] = make([]float64, len(X[i]))
		copy(knn.XTrain[i], X[i])
	}

	knn.YTrain = make([]int, len(y))
	copy(knn.YTrain, y)

	return nil
}

type neighbor struct {
	index    int
	distance float64
}

// findNeighbors returns the k closest training points by Euclidean distance,
// ordered by distance and then by training index. When K exceeds the
// training set size every point is a neighbour.
func (knn *KNN) findNeighbors(sample []float64) []neighbor {
	neighbors := make([]neighbor, len(knn.XTrain))
	for i, trainSample := range knn.XTrain {
		neighbors[i] = neighbor{index: i, distance: floats.Distance(sample, trainSample, 2)}
	}

	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].distance != neighbors[j].distance {
			return neighbors[i].distance < neighbors[j].distance
		}
		return neighbors[i].index < neighbors[j].index
	})

	k := knn.K
	if k > len(neighbors) {
		k = len(neighbors)
	}
	return neighbors[:k]
}

func (knn *KNN) Predict(X [][]float64) []int {
	predictions := make([]int, len(X))
	for i, sample := range X {
		predictions[i] = knn.majorityVote(knn.findNeighbors(sample))
	}
	return predictions
}

// majorityVote picks the most frequent class; ties go to the class whose
// neighbours are closer in total, then to the lowest class index.
func (knn *KNN) majorityVote(neighbors []neighbor) int {
	votes := make([]int, knn.NClasses)
	distances := make([]float64, knn.NClasses)

	for _, nb := range neighbors {
		class := knn.YTrain[nb.index]
		votes[class]++
		distances[class] += nb.distance
	}

	best := -1
	for class := range votes {
		if votes[class] == 0 {
			continue
		}
		if best < 0 ||
			votes[class] > votes[best] ||
			(votes[class] == votes[best] && distances[class] < distances[best]) {
			best = class
		}
	}

	return best
}

func (knn *KNN) PredictProba(X [][]float64) ([][]float64, error) {
	proba := make([][]float64, len(X))

	for i, sample := range X {
		neighbors := knn.findNeighbors(sample)
		proba[i] = make([]float64, knn.NClasses)
		for _, nb := range neighbors {
			proba[i][knn.YTrain[nb.index]]++
		}
		floats.Scale(1/float64(len(neighbors)), proba[i])
	}

	return proba, nil
}
