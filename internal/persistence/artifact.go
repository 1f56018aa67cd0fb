package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/mlerr"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/models"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/preprocessing"
)

// ModelArtifact is a trained model together with everything needed to use
// it on raw feature rows. It holds no timestamps or ids, so two identical
// training runs serialise to identical bytes.
type ModelArtifact struct {
	Algorithm          string                       `json:"algorithm"`
	Hyperparameters    models.Hyperparameters       `json:"hyperparameters"`
	FeatureNames       []string                     `json:"feature_names"`
	Classes            *preprocessing.ClassLabelMap `json:"classes"`
	FeatureImportances []float64                    `json:"feature_importances,omitempty"`
	Scaler             *preprocessing.Scaler        `json:"scaler,omitempty"`
	Params             json.RawMessage              `json:"params"`

	model models.Classifier
}

// NewModelArtifact wraps a fitted model. featureNames may be nil, in which
// case columns are named feature_0, feature_1, ...
func NewModelArtifact(model models.Classifier, labels *preprocessing.ClassLabelMap, featureNames []string, scaler *preprocessing.Scaler, nFeatures int) (*ModelArtifact, error) {
	if labels.Len() != model.GetClasses() {
		return nil, mlerr.Errorf(mlerr.ErrDimensionMismatch, "model knows %d classes but label map has %d", model.GetClasses(), labels.Len())
	}

	if featureNames == nil {
		featureNames = make([]string, nFeatures)
		for i := range featureNames {
			featureNames[i] = fmt.Sprintf("feature_%d", i)
		}
	} else if len(featureNames) != nFeatures {
		return nil, mlerr.Errorf(mlerr.ErrDimensionMismatch, "%d feature names for %d features", len(featureNames), nFeatures)
	}

	params, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s state: %w", model.GetName(), err)
	}

	artifact := &ModelArtifact{
		Algorithm:       model.GetName(),
		Hyperparameters: model.GetParams(),
		FeatureNames:    append([]string(nil), featureNames...),
		Classes:         labels,
		Scaler:          scaler,
		Params:          params,
		model:           model,
	}

	if fi, ok := model.(models.FeatureImportancer); ok {
		artifact.FeatureImportances = fi.FeatureImportances()
	}

	return artifact, nil
}

func (a *ModelArtifact) UnmarshalJSON(b []byte) error {
	type plain ModelArtifact
	var decoded plain
	if err := json.Unmarshal(b, &decoded); err != nil {
		return err
	}
	if decoded.Classes == nil {
		return mlerr.Errorf(mlerr.ErrInvalidConfig, "artifact has no classes")
	}

	model, err := models.CreateModel(models.ModelConfig{
		Algorithm: decoded.Algorithm,
		Params:    decoded.Hyperparameters,
		NClasses:  decoded.Classes.Len(),
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(decoded.Params, model); err != nil {
		return fmt.Errorf("failed to decode %s state: %w", decoded.Algorithm, err)
	}

	*a = ModelArtifact(decoded)
	a.model = model
	return nil
}

func (a *ModelArtifact) LabelMap() *preprocessing.ClassLabelMap {
	return a.Classes
}

func (a *ModelArtifact) NumFeatures() int {
	return len(a.FeatureNames)
}

func (a *ModelArtifact) prepare(X [][]float64) ([][]float64, error) {
	for i, row := range X {
		if len(row) != a.NumFeatures() {
			return nil, mlerr.Errorf(mlerr.ErrDimensionMismatch, "row %d has %d features, model expects %d", i, len(row), a.NumFeatures())
		}
	}
	if a.Scaler == nil {
		return X, nil
	}
	return a.Scaler.Transform(X)
}

// PredictIndices returns class indices for raw, unscaled rows.
func (a *ModelArtifact) PredictIndices(X [][]float64) ([]int, error) {
	prepared, err := a.prepare(X)
	if err != nil {
		return nil, err
	}
	return a.model.Predict(prepared), nil
}

func (a *ModelArtifact) PredictLabels(X [][]float64) ([]string, error) {
	indices, err := a.PredictIndices(X)
	if err != nil {
		return nil, err
	}
	return a.Classes.Decode(indices)
}

// Predict classifies a single sample.
func (a *ModelArtifact) Predict(sample []float64) (string, error) {
	labels, err := a.PredictLabels([][]float64{sample})
	if err != nil {
		return "", err
	}
	return labels[0], nil
}

// PredictProba returns one probability row per sample, ordered like
// Classes. Models without probability estimates return ErrNotSupported.
func (a *ModelArtifact) PredictProba(X [][]float64) ([][]float64, error) {
	prepared, err := a.prepare(X)
	if err != nil {
		return nil, err
	}
	return a.model.PredictProba(prepared)
}
