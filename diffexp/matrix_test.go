package diffexp

import (
	"errors"
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestNewCountMatrix(t *testing.T) {
	m, err := NewCountMatrix(
		[]string{"g1", "g2"},
		[]string{"s1", "s2", "s3"},
		[][]float64{{1, 2, 3}, {4, 5, 6}})
	expect.NoError(t, err)
	expect.EQ(t, m.NGenes(), 2)
	expect.EQ(t, m.NSamples(), 3)
	expect.EQ(t, m.LibSizes(), []float64{5, 7, 9})
}

func TestNewCountMatrixErrors(t *testing.T) {
	tests := []struct {
		name    string
		genes   []string
		samples []string
		counts  [][]float64
	}{
		{"no genes", nil, []string{"s1"}, nil},
		{"no samples", []string{"g1"}, nil, [][]float64{{}}},
		{"dup gene", []string{"g1", "g1"}, []string{"s1"}, [][]float64{{1}, {2}}},
		{"dup sample", []string{"g1"}, []string{"s1", "s1"}, [][]float64{{1, 2}}},
		{"empty gene", []string{""}, []string{"s1"}, [][]float64{{1}}},
		{"ragged", []string{"g1"}, []string{"s1", "s2"}, [][]float64{{1}}},
		{"negative", []string{"g1"}, []string{"s1"}, [][]float64{{-1}}},
		{"row count", []string{"g1", "g2"}, []string{"s1"}, [][]float64{{1}}},
	}
	for _, test := range tests {
		_, err := NewCountMatrix(test.genes, test.samples, test.counts)
		var de *DataError
		expect.True(t, errors.As(err, &de), "case %s: got %v", test.name, err)
	}
}

func TestClassLabelsAlign(t *testing.T) {
	l, err := NewClassLabels([]string{"s2", "s1", "s3"}, []string{"B", "A", "B"})
	expect.NoError(t, err)
	aligned, err := l.Align([]string{"s1", "s2", "s3"})
	expect.NoError(t, err)
	expect.EQ(t, aligned.Samples, []string{"s1", "s2", "s3"})
	expect.EQ(t, aligned.Classes, []string{"A", "B", "B"})

	_, err = l.Align([]string{"s1", "s2", "s4"})
	var de *DataError
	expect.True(t, errors.As(err, &de), "got %v", err)
	_, err = l.Align([]string{"s1", "s2"})
	expect.True(t, errors.As(err, &de), "got %v", err)
}

func TestClassLabelsLevels(t *testing.T) {
	l, err := NewClassLabels(
		[]string{"s1", "s2", "s3", "s4"},
		[]string{"normal", "tumor", "normal", "tumor"})
	expect.NoError(t, err)
	expect.EQ(t, l.Levels(), []string{"normal", "tumor"})

	levels, members := l.groups()
	expect.EQ(t, levels, []string{"normal", "tumor"})
	expect.EQ(t, members, [][]int{{0, 2}, {1, 3}})
}

func TestClassLabelsErrors(t *testing.T) {
	var de *DataError
	_, err := NewClassLabels(nil, nil)
	expect.True(t, errors.As(err, &de), "got %v", err)
	_, err = NewClassLabels([]string{"s1"}, []string{"A", "B"})
	expect.True(t, errors.As(err, &de), "got %v", err)
	_, err = NewClassLabels([]string{"s1", "s1"}, []string{"A", "B"})
	expect.True(t, errors.As(err, &de), "got %v", err)
	_, err = NewClassLabels([]string{"s1"}, []string{""})
	expect.True(t, errors.As(err, &de), "got %v", err)
}
