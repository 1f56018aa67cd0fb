package preprocessing

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/HanMade-Dev/Machine-Learning-Training-Data-Tools/internal/mlerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassLabelMapOrdering(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		want   []string
	}{
		{"strings sort lexicographically", []string{"setosa", "virginica", "setosa", "versicolor"}, []string{"setosa", "versicolor", "virginica"}},
		{"numbers sort numerically", []string{"10", "2", "1", "2"}, []string{"1", "2", "10"}},
		{"mixed falls back to strings", []string{"b", "10", "2"}, []string{"10", "2", "b"}},
		{"NaN is not a number", []string{"2", "NaN", "10"}, []string{"10", "2", "NaN"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewClassLabelMap(tt.labels)
			assert.Equal(t, tt.want, m.Classes())
		})
	}
}

func TestClassLabelMapIndependentOfRowOrder(t *testing.T) {
	a := NewClassLabelMap([]string{"yes", "no", "maybe"})
	b := NewClassLabelMap([]string{"maybe", "yes", "no", "no"})
	assert.Equal(t, a.Classes(), b.Classes())

	c := NewClassLabelMap([]string{"NaN", "3", "1"})
	d := NewClassLabelMap([]string{"1", "3", "NaN"})
	assert.Equal(t, c.Classes(), d.Classes())
}

func TestClassLabelMapEncodeDecode(t *testing.T) {
	m := NewClassLabelMap([]string{"cat", "dog"})

	encoded, err := m.Encode([]string{"dog", "cat", "dog"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 1}, encoded)

	decoded, err := m.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, []string{"dog", "cat", "dog"}, decoded)

	_, err = m.Encode([]string{"bird"})
	assert.True(t, errors.Is(err, mlerr.ErrUnknownLabel))

	_, err = m.Decode([]int{2})
	assert.True(t, errors.Is(err, mlerr.ErrUnknownLabel))
}

func TestClassLabelMapJSON(t *testing.T) {
	m := NewClassLabelMap([]string{"3", "1", "2"})

	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `["1","2","3"]`, string(b))

	var restored ClassLabelMap
	require.NoError(t, json.Unmarshal(b, &restored))
	idx, ok := restored.Index("3")
	assert.True(t, ok)
	assert.Equal(t, 2, idx)

	err = json.Unmarshal([]byte(`["a","a"]`), &restored)
	assert.True(t, errors.Is(err, mlerr.ErrInvalidConfig))
}

func TestScalerMinMax(t *testing.T) {
	X := [][]float64{{0, 5}, {10, 5}, {5, 5}}
	s := NewScaler(ScaleMinMax)

	out, err := s.FitTransform(X)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 0}, {1, 0}, {0.5, 0}}, out)
	assert.Equal(t, 0.0, X[0][0], "input must not be modified")
}

func TestScalerStandard(t *testing.T) {
	X := [][]float64{{1}, {3}}
	s := NewScaler(ScaleStandard)

	out, err := s.FitTransform(X)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, out[0][0], 1e-12)
	assert.InDelta(t, 1.0, out[1][0], 1e-12)

	_, err = s.Transform([][]float64{{1, 2}})
	assert.True(t, errors.Is(err, mlerr.ErrDimensionMismatch))
}

func TestScalerRejectsUnknownType(t *testing.T) {
	err := NewScaler("log").Fit([][]float64{{1}})
	assert.True(t, errors.Is(err, mlerr.ErrInvalidConfig))

	_, err = NewScaler(ScaleNone).Transform([][]float64{{1}})
	assert.True(t, errors.Is(err, mlerr.ErrInvalidConfig))
}
