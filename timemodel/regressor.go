package timemodel

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ArtifactFormat is the format tag of a serialized regression artifact.
const ArtifactFormat = "walltime-mlp"

// A ModelLoadError is returned when a regression artifact or its scaler
// cannot be loaded.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("cannot load model artifact %q: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// ErrClosed is returned when a closed Regressor is asked for an estimate.
var ErrClosed = errors.New("regressor is closed")

type artifactFile struct {
	Format  string          `json:"format"`
	Version int             `json:"version"`
	Inputs  int             `json:"inputs"`
	Unit    string          `json:"unit"`
	Layers  []artifactLayer `json:"layers"`
}

type artifactLayer struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation"`
}

type denseLayer struct {
	weights    *mat.Dense
	bias       *mat.VecDense
	activation func(float64) float64
}

// A Regressor is a pretrained feed-forward network that maps a normalized
// feature vector to an execution time in milliseconds. It is inference only.
type Regressor struct {
	path   string
	inputs int
	layers []denseLayer
	closed bool
}

// LoadRegressor reads a serialized artifact. The path only names the
// artifact in errors.
func LoadRegressor(path string, r io.Reader) (*Regressor, error) {
	var f artifactFile

	err := json.NewDecoder(r).Decode(&f)
	if err != nil {
		return nil, &ModelLoadError{Path: path, Err: err}
	}

	if f.Format != ArtifactFormat {
		return nil, &ModelLoadError{
			Path: path,
			Err:  fmt.Errorf("unrecognized artifact format %q", f.Format),
		}
	}

	reg, err := buildRegressor(path, f)
	if err != nil {
		return nil, &ModelLoadError{Path: path, Err: err}
	}

	return reg, nil
}

func buildRegressor(path string, f artifactFile) (*Regressor, error) {
	if f.Inputs <= 0 {
		return nil, fmt.Errorf("inputs must be positive, got %d", f.Inputs)
	}

	if len(f.Layers) == 0 {
		return nil, errors.New("artifact has no layers")
	}

	reg := &Regressor{path: path, inputs: f.Inputs}
	width := f.Inputs

	for i, l := range f.Layers {
		layer, err := buildLayer(l, width)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}

		reg.layers = append(reg.layers, layer)
		width, _ = layer.weights.Dims()
	}

	if width != 1 {
		return nil, fmt.Errorf("last layer must have one output, got %d", width)
	}

	return reg, nil
}

func buildLayer(l artifactLayer, width int) (denseLayer, error) {
	rows := len(l.Weights)
	if rows == 0 {
		return denseLayer{}, errors.New("no weights")
	}

	if len(l.Bias) != rows {
		return denseLayer{}, fmt.Errorf("%d biases for %d outputs",
			len(l.Bias), rows)
	}

	data := make([]float64, 0, rows*width)
	for r, row := range l.Weights {
		if len(row) != width {
			return denseLayer{}, fmt.Errorf("weight row %d has %d columns, "+
				"want %d", r, len(row), width)
		}

		data = append(data, row...)
	}

	act, err := activationOf(l.Activation)
	if err != nil {
		return denseLayer{}, err
	}

	return denseLayer{
		weights:    mat.NewDense(rows, width, data),
		bias:       mat.NewVecDense(rows, append([]float64(nil), l.Bias...)),
		activation: act,
	}, nil
}

func activationOf(name string) (func(float64) float64, error) {
	switch strings.ToLower(name) {
	case "", "linear", "identity":
		return func(x float64) float64 { return x }, nil
	case "relu":
		return func(x float64) float64 { return math.Max(0, x) }, nil
	case "tanh":
		return math.Tanh, nil
	case "sigmoid":
		return func(x float64) float64 { return 1 / (1 + math.Exp(-x)) }, nil
	}

	return nil, fmt.Errorf("unknown activation %q", name)
}

// Inputs returns the length of the feature vectors the regressor accepts.
func (r *Regressor) Inputs() int {
	return r.inputs
}

// Predict returns the execution time in milliseconds for one feature
// vector. Negative outputs are clamped to 0.
func (r *Regressor) Predict(features []float64) (float64, error) {
	if r.closed {
		return 0, ErrClosed
	}

	if len(features) != r.inputs {
		return 0, fmt.Errorf("regressor %q expects %d features, got %d",
			r.path, r.inputs, len(features))
	}

	x := mat.NewVecDense(len(features), append([]float64(nil), features...))

	for _, l := range r.layers {
		rows, _ := l.weights.Dims()
		y := mat.NewVecDense(rows, nil)
		y.MulVec(l.weights, x)
		y.AddVec(y, l.bias)

		for i := 0; i < rows; i++ {
			y.SetVec(i, l.activation(y.AtVec(i)))
		}

		x = y
	}

	out := x.AtVec(0)
	if math.IsNaN(out) {
		return 0, fmt.Errorf("regressor %q produced NaN", r.path)
	}

	return math.Max(0, out), nil
}

// Estimate estimates the execution time of a layer from its features.
func (r *Regressor) Estimate(
	input TimeEstimatorInput,
) (TimeEstimatorOutput, error) {
	t, err := r.Predict(input.Features)
	if err != nil {
		return TimeEstimatorOutput{}, err
	}

	return TimeEstimatorOutput{TimeInMs: t}, nil
}

// Close releases the weights. Closing twice is allowed.
func (r *Regressor) Close() error {
	r.closed = true
	r.layers = nil

	return nil
}
