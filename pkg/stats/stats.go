// pkg/stats/stats.go
package stats

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrNoValues is returned when a statistic is requested over an empty sample
var ErrNoValues = errors.New("no values")

// IQRMultiplier is the Tukey fence width
const IQRMultiplier = 1.5

// Fence is a closed interval [Lower, Upper]
type Fence struct {
	Lower float64
	Upper float64
}

// Contains reports whether v lies inside the fence, bounds included
func (f Fence) Contains(v float64) bool {
	return v >= f.Lower && v <= f.Upper
}

// Present drops NaN entries and returns a fresh slice
func Present(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

func sortedCopy(xs []float64) []float64 {
	s := Present(xs)
	sort.Float64s(s)
	return s
}

// Quantile returns the p-quantile of xs using linear interpolation between
// order statistics (h = (n-1)p). NaN values are ignored.
func Quantile(xs []float64, p float64) (float64, error) {
	if p < 0 || p > 1 || math.IsNaN(p) {
		return math.NaN(), errors.New("quantile out of range [0,1]")
	}
	s := sortedCopy(xs)
	if len(s) == 0 {
		return math.NaN(), ErrNoValues
	}
	return quantileSorted(s, p), nil
}

func quantileSorted(s []float64, p float64) float64 {
	if len(s) == 1 {
		return s[0]
	}
	h := float64(len(s)-1) * p
	lo := math.Floor(h)
	i := int(lo)
	if i >= len(s)-1 {
		return s[len(s)-1]
	}
	return s[i] + (h-lo)*(s[i+1]-s[i])
}

// Median returns the 0.5 quantile of the non-NaN values
func Median(xs []float64) (float64, error) {
	return Quantile(xs, 0.5)
}

// Quartiles returns Q1 and Q3 of the non-NaN values
func Quartiles(xs []float64) (q1, q3 float64, err error) {
	s := sortedCopy(xs)
	if len(s) == 0 {
		return math.NaN(), math.NaN(), ErrNoValues
	}
	return quantileSorted(s, 0.25), quantileSorted(s, 0.75), nil
}

// IQRFence returns [Q1 - 1.5*IQR, Q3 + 1.5*IQR]
func IQRFence(xs []float64) (Fence, error) {
	q1, q3, err := Quartiles(xs)
	if err != nil {
		return Fence{}, err
	}
	iqr := q3 - q1
	return Fence{
		Lower: q1 - IQRMultiplier*iqr,
		Upper: q3 + IQRMultiplier*iqr,
	}, nil
}

// MeanStd returns the mean and population standard deviation of the non-NaN values
func MeanStd(xs []float64) (mean, std float64, err error) {
	p := Present(xs)
	if len(p) == 0 {
		return math.NaN(), math.NaN(), ErrNoValues
	}
	mean, std = stat.PopMeanStdDev(p, nil)
	return mean, std, nil
}

// Standardize rewrites xs in place as z-scores. NaN entries stay NaN and are
// excluded from the fit. A zero-variance sample maps every present value to 0.
// An all-NaN or empty sample is left untouched.
func Standardize(xs []float64) {
	mean, std, err := MeanStd(xs)
	if err != nil {
		return
	}

	idx := make([]int, 0, len(xs))
	vals := make([]float64, 0, len(xs))
	for i, x := range xs {
		if !math.IsNaN(x) {
			idx = append(idx, i)
			vals = append(vals, x)
		}
	}

	if std == 0 || math.IsNaN(std) {
		for _, i := range idx {
			xs[i] = 0
		}
		return
	}

	floats.AddConst(-mean, vals)
	floats.Scale(1/std, vals)
	for j, i := range idx {
		xs[i] = vals[j]
	}
}
