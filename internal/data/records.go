// Package data turns loosely typed rows into a validated, fixed-schema
// Dataset that the training core can consume.
package data

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/mlerr"
	"github.com/shopspring/decimal"
)

// Record is one row as produced by an ingestion layer: column name to scalar.
type Record map[string]any

// Dataset is the resolved schema plus the numeric feature matrix. Column order
// is fixed by FeatureNames and never changes after construction.
type Dataset struct {
	FeatureNames []string
	Target       string
	X            [][]float64
	Labels       []string
}

func (d *Dataset) Len() int {
	return len(d.X)
}

func (d *Dataset) NumFeatures() int {
	return len(d.FeatureNames)
}

// FromRecords resolves records against the target column and the ordered
// feature list. Every record must carry the same set of keys, every feature
// must coerce to a finite number and every target value must be present.
func FromRecords(records []Record, target string, features []string) (*Dataset, error) {
	if len(features) == 0 {
		return nil, mlerr.Errorf(mlerr.ErrInvalidConfig, "at least one feature column is required")
	}
	if target == "" {
		return nil, mlerr.Errorf(mlerr.ErrInvalidConfig, "target column is required")
	}

	seen := make(map[string]bool, len(features))
	for _, name := range features {
		if name == target {
			return nil, mlerr.Errorf(mlerr.ErrInvalidConfig, "target column %q cannot also be a feature", target)
		}
		if seen[name] {
			return nil, mlerr.Errorf(mlerr.ErrInvalidConfig, "duplicate feature column %q", name)
		}
		seen[name] = true
	}

	ds := &Dataset{
		FeatureNames: append([]string(nil), features...),
		Target:       target,
		X:            make([][]float64, len(records)),
		Labels:       make([]string, len(records)),
	}

	for i, record := range records {
		if i > 0 && !sameKeys(records[0], record) {
			return nil, mlerr.Errorf(mlerr.ErrDimensionMismatch, "record %d has a different set of columns than record 0", i)
		}

		row := make([]float64, len(features))
		for j, name := range features {
			raw, ok := record[name]
			if !ok {
				return nil, mlerr.Errorf(mlerr.ErrDimensionMismatch, "record %d is missing feature column %q", i, name)
			}
			v, err := ToFloat(raw)
			if err != nil {
				return nil, mlerr.Errorf(mlerr.ErrInvalidValue, "record %d column %q: %v", i, name, err)
			}
			row[j] = v
		}

		raw, ok := record[target]
		if !ok {
			return nil, mlerr.Errorf(mlerr.ErrDimensionMismatch, "record %d is missing target column %q", i, target)
		}
		label, err := ToLabel(raw)
		if err != nil {
			return nil, mlerr.Errorf(mlerr.ErrInvalidValue, "record %d target %q: %v", i, target, err)
		}

		ds.X[i] = row
		ds.Labels[i] = label
	}

	return ds, nil
}

func sameKeys(a, b Record) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// ToFloat coerces a scalar to a finite float64. Strings are parsed as
// decimals so values such as "1,5" or "NaN" are rejected instead of guessed.
func ToFloat(v any) (float64, error) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int8:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint8:
		f = float64(x)
	case uint16:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case decimal.Decimal:
		f = x.InexactFloat64()
	case json.Number:
		d, err := decimal.NewFromString(string(x))
		if err != nil {
			return 0, err
		}
		f = d.InexactFloat64()
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		if err != nil {
			return 0, err
		}
		f = d.InexactFloat64()
	case nil:
		return 0, coerceError("missing value")
	default:
		return 0, coerceError("unsupported type")
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, coerceError("non-finite value")
	}
	return f, nil
}

// ToLabel renders a target value as a class label; 1, int64(1) and "1" all
// map to the same class.
func ToLabel(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case json.Number:
		return x.String(), nil
	case decimal.Decimal:
		return x.String(), nil
	case nil:
		return "", coerceError("missing label")
	default:
		return "", coerceError("unsupported label type")
	}
}

type coerceError string

func (e coerceError) Error() string {
	return string(e)
}
