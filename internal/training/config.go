package training

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/mlerr"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/models"
	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/preprocessing"
	"gopkg.in/yaml.v3"
)

const (
	OversampleSMOTE  = "smote"
	OversampleRandom = "random"
)

// Config describes one training run.
type Config struct {
	Algorithm          string                 `json:"algorithm" yaml:"algorithm"`
	Hyperparameters    models.Hyperparameters `json:"hyperparameters" yaml:"hyperparameters"`
	TestFraction       float64                `json:"test_fraction" yaml:"test_fraction"`
	Seed               int64                  `json:"seed" yaml:"seed"`
	UseOversampling    bool                   `json:"use_oversampling" yaml:"use_oversampling"`
	OversamplingMethod string                 `json:"oversampling_method,omitempty" yaml:"oversampling_method,omitempty"`
	Scaling            string                 `json:"scaling,omitempty" yaml:"scaling,omitempty"`
	Stratify           bool                   `json:"stratify,omitempty" yaml:"stratify,omitempty"`
	CVFolds            int                    `json:"cv_folds,omitempty" yaml:"cv_folds,omitempty"`
}

// Validate checks everything that can be checked without data. The
// algorithm is resolved first so an unknown name is reported as such.
func (c Config) Validate() error {
	if !models.IsKnownAlgorithm(c.Algorithm) {
		return mlerr.Errorf(mlerr.ErrUnknownAlgorithm, "%q", c.Algorithm)
	}
	if err := c.Hyperparameters.Validate(c.Algorithm); err != nil {
		return err
	}
	if !(c.TestFraction > 0 && c.TestFraction < 1) {
		return mlerr.Errorf(mlerr.ErrInvalidConfig, "test fraction must be in (0, 1), got %g", c.TestFraction)
	}
	switch c.OversamplingMethod {
	case "", OversampleSMOTE, OversampleRandom:
	default:
		return mlerr.Errorf(mlerr.ErrInvalidConfig, "oversampling method must be smote or random, got %q", c.OversamplingMethod)
	}
	if !preprocessing.ValidScaleType(c.Scaling) {
		return mlerr.Errorf(mlerr.ErrInvalidConfig, "scaling must be none, minmax or standard, got %q", c.Scaling)
	}
	if c.CVFolds == 1 || c.CVFolds < 0 {
		return mlerr.Errorf(mlerr.ErrInvalidConfig, "cv_folds must be 0 (off) or >= 2, got %d", c.CVFolds)
	}
	return nil
}

func (c Config) oversamplingMethod() string {
	if c.OversamplingMethod == "" {
		return OversampleSMOTE
	}
	return c.OversamplingMethod
}

// LoadConfig reads a Config from a YAML or JSON file, chosen by extension.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(raw, &cfg)
	default:
		err = yaml.Unmarshal(raw, &cfg)
	}
	if err != nil {
		return cfg, mlerr.Errorf(mlerr.ErrInvalidConfig, "cannot parse %s: %v", path, err)
	}

	return cfg, nil
}
