package preprocessing

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"

	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/mlerr"
)

// ClassLabelMap is a bijection between raw class labels and the contiguous
// indices 0..k-1 used by the classifiers.
//
// Labels are kept in sorted order: numerically when every label parses as a
// number, lexicographically otherwise. The order therefore does not depend on
// how the rows were shuffled.
type ClassLabelMap struct {
	classes []string
	index   map[string]int
}

// NewClassLabelMap builds the map from every distinct value in labels.
func NewClassLabelMap(labels []string) *ClassLabelMap {
	seen := make(map[string]bool)
	classes := make([]string, 0)
	for _, label := range labels {
		if !seen[label] {
			seen[label] = true
			classes = append(classes, label)
		}
	}

	sortLabels(classes)
	return newFromOrdered(classes)
}

// ClassLabelMapFromClasses restores a map from an already ordered class
// list, e.g. one read back from a stored artifact.
func ClassLabelMapFromClasses(classes []string) (*ClassLabelMap, error) {
	seen := make(map[string]bool, len(classes))
	for _, class := range classes {
		if seen[class] {
			return nil, mlerr.Errorf(mlerr.ErrInvalidConfig, "duplicate class label %q", class)
		}
		seen[class] = true
	}

	ordered := make([]string, len(classes))
	copy(ordered, classes)
	return newFromOrdered(ordered), nil
}

func newFromOrdered(classes []string) *ClassLabelMap {
	index := make(map[string]int, len(classes))
	for i, class := range classes {
		index[class] = i
	}
	return &ClassLabelMap{classes: classes, index: index}
}

func sortLabels(labels []string) {
	numbers := make(map[string]float64, len(labels))
	numeric := true
	for _, label := range labels {
		v, err := strconv.ParseFloat(label, 64)
		if err != nil || math.IsNaN(v) {
			numeric = false
			break
		}
		numbers[label] = v
	}

	if !numeric {
		sort.Strings(labels)
		return
	}

	sort.Slice(labels, func(i, j int) bool {
		a, b := numbers[labels[i]], numbers[labels[j]]
		if a != b {
			return a < b
		}
		return labels[i] < labels[j]
	})
}

func (m *ClassLabelMap) Len() int {
	return len(m.classes)
}

// Classes returns a copy of the labels in index order.
func (m *ClassLabelMap) Classes() []string {
	classes := make([]string, len(m.classes))
	copy(classes, m.classes)
	return classes
}

func (m *ClassLabelMap) Index(label string) (int, bool) {
	idx, ok := m.index[label]
	return idx, ok
}

func (m *ClassLabelMap) Label(idx int) (string, bool) {
	if idx < 0 || idx >= len(m.classes) {
		return "", false
	}
	return m.classes[idx], true
}

func (m *ClassLabelMap) Encode(labels []string) ([]int, error) {
	result := make([]int, len(labels))
	for i, label := range labels {
		idx, ok := m.index[label]
		if !ok {
			return nil, mlerr.Errorf(mlerr.ErrUnknownLabel, "label %q at row %d is not a known class", label, i)
		}
		result[i] = idx
	}
	return result, nil
}

func (m *ClassLabelMap) Decode(encoded []int) ([]string, error) {
	result := make([]string, len(encoded))
	for i, idx := range encoded {
		label, ok := m.Label(idx)
		if !ok {
			return nil, mlerr.Errorf(mlerr.ErrUnknownLabel, "class index %d out of range [0,%d)", idx, len(m.classes))
		}
		result[i] = label
	}
	return result, nil
}

func (m *ClassLabelMap) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.classes)
}

func (m *ClassLabelMap) UnmarshalJSON(b []byte) error {
	var classes []string
	if err := json.Unmarshal(b, &classes); err != nil {
		return err
	}
	restored, err := ClassLabelMapFromClasses(classes)
	if err != nil {
		return err
	}
	*m = *restored
	return nil
}
