package features

import (
	"encoding/json"
	"fmt"
	"io"

	"gonum.org/v1/gonum/floats"
)

// ScalerFormat is the format tag of a serialized scaler.
const ScalerFormat = "walltime-scaler"

// A Scaler standardizes each feature with a fitted mean and scale.
type Scaler struct {
	mean  []float64
	scale []float64
}

type scalerFile struct {
	Format  string    `json:"format"`
	Version int       `json:"version"`
	Mean    []float64 `json:"mean"`
	Scale   []float64 `json:"scale"`
}

// NewScaler creates a scaler. A zero scale leaves that feature unscaled.
func NewScaler(mean, scale []float64) (*Scaler, error) {
	if len(mean) != Dimension || len(scale) != Dimension {
		return nil, fmt.Errorf("scaler needs %d means and scales, got %d and %d",
			Dimension, len(mean), len(scale))
	}

	s := &Scaler{
		mean:  make([]float64, Dimension),
		scale: make([]float64, Dimension),
	}
	copy(s.mean, mean)
	copy(s.scale, scale)

	for i, v := range s.scale {
		if v == 0 {
			s.scale[i] = 1
		}
	}

	return s, nil
}

// LoadScaler reads a serialized scaler.
func LoadScaler(r io.Reader) (*Scaler, error) {
	var f scalerFile

	err := json.NewDecoder(r).Decode(&f)
	if err != nil {
		return nil, err
	}

	if f.Format != ScalerFormat {
		return nil, fmt.Errorf("unrecognized scaler format %q", f.Format)
	}

	return NewScaler(f.Mean, f.Scale)
}

// Transform returns (v - mean) / scale without modifying v.
func (s *Scaler) Transform(v []float64) ([]float64, error) {
	if len(v) != len(s.mean) {
		return nil, fmt.Errorf("scaler expects %d features, got %d",
			len(s.mean), len(v))
	}

	out := make([]float64, len(v))
	copy(out, v)
	floats.Sub(out, s.mean)
	floats.Div(out, s.scale)

	return out, nil
}
