// Package features turns a convolution layer and its execution context into
// the fixed-order feature vector consumed by the runtime regressor.
package features

import (
	"fmt"
	"math"
	"strings"

	"github.com/sarchlab/walltime"
)

// Dimension is the length of every feature vector.
const Dimension = 20

// Optimizers lists the optimizers of the one-hot block, in vector order.
var Optimizers = []string{
	"sgd", "adadelta", "adagrad", "momentum", "adam", "rmsprop",
}

// Activations lists the activations of the one-hot block, in vector order.
var Activations = []string{"relu", "tanh", "sigmoid"}

// Slot positions inside the vector.
const (
	SlotBatchSize = iota
	SlotMatSize
	SlotKernelSize
	SlotChannelsIn
	SlotChannelsOut
	SlotPaddingSame
	SlotStrides
	SlotUseBias
	SlotOptimizer
	SlotActivation = SlotOptimizer + 6
	SlotBandwidth  = SlotActivation + 3
	SlotCores      = SlotBandwidth + 1
	SlotClock      = SlotCores + 1
)

// A FeatureEncodingError is returned when a layer cannot be encoded.
type FeatureEncodingError struct {
	Layer  string
	Reason string
}

func (e *FeatureEncodingError) Error() string {
	return fmt.Sprintf("cannot encode layer %q: %s", e.Layer, e.Reason)
}

// Context is what the prediction knows beyond the layer itself.
type Context struct {
	BatchSize int
	Optimizer string
	GPU       walltime.GPUProfile
}

// Encode builds the raw, unnormalized feature vector of a convolution layer.
func Encode(layer walltime.Layer, ctx Context) ([]float64, error) {
	conv, err := convOf(layer)
	if err != nil {
		return nil, err
	}

	if ctx.BatchSize <= 0 {
		return nil, &FeatureEncodingError{
			Layer:  layer.Name,
			Reason: fmt.Sprintf("batch size must be positive, got %d", ctx.BatchSize),
		}
	}

	v := make([]float64, Dimension)
	v[SlotBatchSize] = float64(ctx.BatchSize)
	v[SlotMatSize] = square(conv.MatSize)
	v[SlotKernelSize] = square(conv.KernelSize)
	v[SlotChannelsIn] = float64(conv.ChannelsIn)
	v[SlotChannelsOut] = float64(conv.ChannelsOut)
	v[SlotPaddingSame] = indicator(conv.Padding.IsSameMode())
	v[SlotStrides] = float64(conv.Strides)
	v[SlotUseBias] = indicator(conv.UseBias)
	oneHot(v[SlotOptimizer:SlotOptimizer+len(Optimizers)], Optimizers, ctx.Optimizer)
	oneHot(v[SlotActivation:SlotActivation+len(Activations)], Activations, conv.Activation)
	v[SlotBandwidth] = ctx.GPU.Bandwidth
	v[SlotCores] = ctx.GPU.Cores
	v[SlotClock] = ctx.GPU.Clock

	return v, nil
}

func convOf(layer walltime.Layer) (*walltime.ConvLayer, error) {
	if layer.Type != walltime.Convolution || layer.Conv == nil {
		return nil, &FeatureEncodingError{
			Layer:  layer.Name,
			Reason: fmt.Sprintf("only Convolution layers are supported, got %s", layer.Type),
		}
	}

	if !layer.Conv.Padding.Known() {
		return nil, &FeatureEncodingError{
			Layer:  layer.Name,
			Reason: fmt.Sprintf("malformed padding %q", layer.Conv.Padding),
		}
	}

	if layer.Conv.Strides <= 0 {
		return nil, &FeatureEncodingError{
			Layer:  layer.Name,
			Reason: fmt.Sprintf("strides must be positive, got %d", layer.Conv.Strides),
		}
	}

	return layer.Conv, nil
}

// oneHot sets at most one slot of block to 1, the one whose category
// matches value case-insensitively. An unknown value leaves all slots 0.
func oneHot(block []float64, categories []string, value string) {
	for i, c := range categories {
		if strings.EqualFold(c, strings.TrimSpace(value)) {
			block[i] = 1
			return
		}
	}
}

func indicator(b bool) float64 {
	if b {
		return 1
	}

	return 0
}

func square(v int) float64 {
	return math.Pow(float64(v), 2)
}

// Costs are the operation and memory element counts of a convolution layer.
// They are diagnostics only and never enter the feature vector.
type Costs struct {
	Ops            float64
	WeightElements float64
	InputElements  float64
	OutputElements float64
}

// LayerCosts computes the costs of a convolution layer for a batch. The
// output element count is real-valued, without flooring the output size.
func LayerCosts(layer walltime.Layer, batchSize int) (Costs, error) {
	conv, err := convOf(layer)
	if err != nil {
		return Costs{}, err
	}

	reduction := 0
	if conv.Padding.IsValidMode() {
		reduction = conv.KernelSize - 1
	}

	batch := float64(batchSize)
	kernel := square(conv.KernelSize)
	in := float64(conv.ChannelsIn)
	out := float64(conv.ChannelsOut)
	elementsOutput := math.Pow(
		float64(conv.MatSize-reduction)/float64(conv.Strides), 2)

	return Costs{
		Ops:            batch * elementsOutput * kernel * in * out,
		WeightElements: kernel*in*out + indicator(conv.UseBias)*out,
		InputElements:  batch * square(conv.MatSize) * in,
		OutputElements: batch * elementsOutput * out,
	}, nil
}

// An Encoder builds normalized feature vectors.
type Encoder struct {
	scaler *Scaler
}

// NewEncoder creates an encoder that normalizes with the given scaler.
func NewEncoder(scaler *Scaler) *Encoder {
	return &Encoder{scaler: scaler}
}

// Encode builds the feature vector of a convolution layer and normalizes it.
func (e *Encoder) Encode(layer walltime.Layer, ctx Context) ([]float64, error) {
	v, err := Encode(layer, ctx)
	if err != nil {
		return nil, err
	}

	return e.scaler.Transform(v)
}
