// Package prediction predicts the execution time of an architecture on a GPU
// with a pretrained runtime regressor.
package prediction

import (
	"bytes"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/sarchlab/walltime"
	"github.com/sarchlab/walltime/features"
	"github.com/sarchlab/walltime/resources"
	"github.com/sarchlab/walltime/timemodel"
)

// Options configures a prediction.
type Options struct {
	Optimizer string
	BatchSize int
	// Model and Scaler identify the regression artifact and its feature
	// scaler. They resolve like any other resource identifier.
	Model  string
	Scaler string
}

// DefaultOptions predicts a batch of one trained with SGD, using the bundled
// all-GPU artifact.
func DefaultOptions() Options {
	return Options{
		Optimizer: "sgd",
		BatchSize: 1,
		Model:     resources.DefaultModel,
		Scaler:    resources.DefaultScaler,
	}
}

// LayerPrediction is the prediction for one layer.
type LayerPrediction struct {
	Index  int
	Name   string
	TimeMs float64
	Costs  features.Costs
}

// Result is the outcome of a prediction. Only convolution layers are
// predicted; other layers have no entry and contribute no time.
type Result struct {
	TotalTimeMs  float64
	LayerNames   []string
	LayerTimesMs []float64
	Layers       []LayerPrediction
}

func (r *Result) add(p LayerPrediction) {
	r.Layers = append(r.Layers, p)
	r.LayerNames = append(r.LayerNames, p.Name)
	r.LayerTimesMs = append(r.LayerTimesMs, p.TimeMs)
	r.TotalTimeMs += p.TimeMs
}

func newResult() Result {
	return Result{
		LayerNames:   []string{},
		LayerTimesMs: []float64{},
		Layers:       []LayerPrediction{},
	}
}

// A Pipeline loads the regression artifact for every prediction and runs it
// over the layers of an architecture.
type Pipeline struct {
	loader *walltime.Loader
	log    logr.Logger
}

// NewPipeline creates a pipeline that resolves identifiers with the loader.
// A nil loader uses the default resolution.
func NewPipeline(loader *walltime.Loader) *Pipeline {
	if loader == nil {
		loader = walltime.NewLoader(nil)
	}

	return &Pipeline{
		loader: loader,
		log:    logr.Discard(),
	}
}

// SetLogger sets the logger of the pipeline.
func (p *Pipeline) SetLogger(log logr.Logger) {
	p.log = log
}

// PredictNamed loads the architecture and the GPU profile by identifier and
// predicts.
func (p *Pipeline) PredictNamed(archID, gpuID string, opts Options) (Result, error) {
	arch, err := p.loader.LoadArchitecture(archID)
	if err != nil {
		return Result{}, err
	}

	gpu, err := p.loader.LoadGPU(gpuID)
	if err != nil {
		return Result{}, err
	}

	return p.Predict(arch, gpu, opts)
}

// Predict predicts the execution time of the architecture on the GPU. The
// artifact is loaded at the start of the call and released before it
// returns. An empty Model or Scaler selects the bundled default.
func (p *Pipeline) Predict(
	arch *walltime.Architecture,
	gpu walltime.GPUProfile,
	opts Options,
) (Result, error) {
	opts = withDefaultArtifact(opts)

	art, err := p.open(opts)
	if err != nil {
		return Result{}, err
	}

	p.log.V(1).Info("artifact loaded", "model", opts.Model, "scaler", opts.Scaler)

	return p.predictWith(art, arch, gpu, opts)
}

func withDefaultArtifact(opts Options) Options {
	if opts.Model == "" {
		opts.Model = resources.DefaultModel
	}

	if opts.Scaler == "" {
		opts.Scaler = resources.DefaultScaler
	}

	return opts
}

// predictWith runs an opened artifact and closes it on every path.
func (p *Pipeline) predictWith(
	art *artifact,
	arch *walltime.Architecture,
	gpu walltime.GPUProfile,
	opts Options,
) (Result, error) {
	defer art.Close()

	result, err := Run(arch, gpu, opts, features.NewEncoder(art.scaler), art.regressor)
	if err != nil {
		return Result{}, err
	}

	p.log.V(1).Info("prediction done",
		"layers", len(result.Layers), "totalTimeMs", result.TotalTimeMs)

	return result, nil
}

// Run predicts every convolution layer of the architecture in index order
// with an already loaded encoder and estimator.
func Run(
	arch *walltime.Architecture,
	gpu walltime.GPUProfile,
	opts Options,
	encoder *features.Encoder,
	estimator timemodel.TimeEstimator,
) (Result, error) {
	result := newResult()
	ctx := features.Context{
		BatchSize: opts.BatchSize,
		Optimizer: opts.Optimizer,
		GPU:       gpu,
	}

	for _, layer := range arch.Layers() {
		if layer.Type != walltime.Convolution {
			continue
		}

		vector, err := encoder.Encode(layer, ctx)
		if err != nil {
			return Result{}, err
		}

		out, err := estimator.Estimate(timemodel.TimeEstimatorInput{
			Name:     layer.Name,
			Features: vector,
		})
		if err != nil {
			return Result{}, fmt.Errorf("layer %q: %w", layer.Name, err)
		}

		costs, err := features.LayerCosts(layer, opts.BatchSize)
		if err != nil {
			return Result{}, err
		}

		result.add(LayerPrediction{
			Index:  layer.Index,
			Name:   layer.Name,
			TimeMs: out.TimeInMs,
			Costs:  costs,
		})
	}

	return result, nil
}

// artifact is a loaded regressor together with its feature scaler.
type artifact struct {
	regressor *timemodel.Regressor
	scaler    *features.Scaler
}

func (a *artifact) Close() error {
	return a.regressor.Close()
}

func (p *Pipeline) open(opts Options) (*artifact, error) {
	res, err := p.loader.Resolve(walltime.ModelResource, opts.Model)
	if err != nil {
		return nil, &timemodel.ModelLoadError{Path: opts.Model, Err: err}
	}

	reg, err := timemodel.LoadRegressor(res.Path, bytes.NewReader(res.Data))
	if err != nil {
		return nil, err
	}

	if reg.Inputs() != features.Dimension {
		reg.Close()

		return nil, &timemodel.ModelLoadError{
			Path: res.Path,
			Err: fmt.Errorf("artifact takes %d features, encoder produces %d",
				reg.Inputs(), features.Dimension),
		}
	}

	scaler, err := p.loadScaler(opts.Scaler)
	if err != nil {
		reg.Close()
		return nil, err
	}

	return &artifact{regressor: reg, scaler: scaler}, nil
}

func (p *Pipeline) loadScaler(id string) (*features.Scaler, error) {
	res, err := p.loader.Resolve(walltime.ModelResource, id)
	if err != nil {
		return nil, &timemodel.ModelLoadError{Path: id, Err: err}
	}

	scaler, err := features.LoadScaler(bytes.NewReader(res.Data))
	if err != nil {
		return nil, &timemodel.ModelLoadError{Path: res.Path, Err: err}
	}

	return scaler, nil
}
