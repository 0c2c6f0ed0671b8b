package walltime

import (
	"fmt"
	"strings"

	"github.com/go-logr/logr"
)

// Input is the declared input shape of a network: the number of channels
// (dimension) and the spatial size of the square input image.
type Input struct {
	Dimension int
	Size      int
}

// An Architecture is an ordered, linear chain of layers fed by a declared
// input. Every appended layer derives its input shape from the previous
// layer, or from the input for the first layer.
type Architecture struct {
	input  Input
	layers []*Layer
	log    logr.Logger
}

// NewArchitecture creates an architecture without layers.
func NewArchitecture(dimension, size int) (*Architecture, error) {
	if dimension < 0 {
		return nil, &InvalidInputError{Field: "dimension", Value: dimension}
	}

	if size < 0 {
		return nil, &InvalidInputError{Field: "size", Value: size}
	}

	return &Architecture{
		input: Input{Dimension: dimension, Size: size},
		log:   logr.Discard(),
	}, nil
}

// SetLogger sets the logger that receives a shape summary for every
// appended layer.
func (a *Architecture) SetLogger(log logr.Logger) {
	a.log = log
}

// Input returns the declared input shape.
func (a *Architecture) Input() Input {
	return a.input
}

// Len returns the number of layers.
func (a *Architecture) Len() int {
	return len(a.layers)
}

// Layer returns a copy of the layer at the 1-based index i.
func (a *Architecture) Layer(i int) (Layer, bool) {
	if i < 1 || i > len(a.layers) {
		return Layer{}, false
	}

	return *a.layers[i-1].clone(), true
}

// Layers returns a copy of all layers in index order.
func (a *Architecture) Layers() []Layer {
	layers := make([]Layer, len(a.layers))
	for i, l := range a.layers {
		layers[i] = *l.clone()
	}

	return layers
}

// currentShape returns the size and channel count that the next appended
// layer consumes.
func (a *Architecture) currentShape() (size, channels int) {
	if len(a.layers) == 0 {
		return a.input.Size, a.input.Dimension
	}

	last := a.layers[len(a.layers)-1]

	return last.OutputSize(), last.ChannelsOut()
}

// AppendLayer appends a layer given its descriptor type name. The params
// must match the type.
func (a *Architecture) AppendLayer(
	typeName string,
	name string,
	params LayerParams,
) (Layer, error) {
	t, err := ParseLayerType(typeName)
	if err != nil {
		return Layer{}, err
	}

	if params == nil {
		if t != FullyConnected {
			return Layer{}, &InvalidLayerParamsError{
				Layer:  name,
				Param:  "params",
				Reason: "missing parameters for " + t.String(),
			}
		}

		params = FullyConnectedSpec{}
	}

	if params.layerType() != t {
		return Layer{}, &InvalidLayerParamsError{
			Layer: name,
			Param: "params",
			Reason: fmt.Sprintf("%s parameters given for a %s layer",
				params.layerType(), t),
		}
	}

	switch p := params.(type) {
	case ConvSpec:
		return a.AppendConvolution(name, p)
	case PoolSpec:
		return a.AppendMaxPool(name, p)
	default:
		return a.AppendFullyConnected(name)
	}
}

// AppendConvolution appends a convolution layer.
func (a *Architecture) AppendConvolution(
	name string,
	spec ConvSpec,
) (Layer, error) {
	inputSize, channelsIn := a.currentShape()

	err := checkWindow(name, "kernelsize", spec.KernelSize,
		spec.Strides, spec.Padding, inputSize)
	if err != nil {
		return Layer{}, err
	}

	if spec.ChannelsOut <= 0 {
		return Layer{}, &InvalidLayerParamsError{
			Layer: name, Param: "channels_out", Reason: "must be positive",
		}
	}

	if strings.TrimSpace(spec.Activation) == "" {
		return Layer{}, &InvalidLayerParamsError{
			Layer: name, Param: "activation", Reason: "is required",
		}
	}

	layer := &Layer{
		Index: len(a.layers) + 1,
		Name:  name,
		Type:  Convolution,
		Conv: &ConvLayer{
			MatSize:     inputSize,
			KernelSize:  spec.KernelSize,
			ChannelsIn:  channelsIn,
			ChannelsOut: spec.ChannelsOut,
			Padding:     spec.Padding,
			Strides:     spec.Strides,
			UseBias:     spec.UseBias,
			Activation:  spec.Activation,
			OutputSize: OutputSize(inputSize, spec.KernelSize,
				spec.Strides, spec.Padding),
		},
	}

	return a.push(layer), nil
}

// AppendMaxPool appends a max pooling layer. Pooling keeps the channel count
// of the previous layer.
func (a *Architecture) AppendMaxPool(
	name string,
	spec PoolSpec,
) (Layer, error) {
	inputSize, channelsIn := a.currentShape()

	err := checkWindow(name, "pool_size", spec.PoolSize,
		spec.Strides, spec.Padding, inputSize)
	if err != nil {
		return Layer{}, err
	}

	layer := &Layer{
		Index: len(a.layers) + 1,
		Name:  name,
		Type:  MaxPool,
		Pool: &PoolLayer{
			PoolSize: spec.PoolSize,
			Strides:  spec.Strides,
			Padding:  spec.Padding,
			OutputSize: OutputSize(inputSize, spec.PoolSize,
				spec.Strides, spec.Padding),
			ChannelsOut: channelsIn,
		},
	}

	return a.push(layer), nil
}

// AppendFullyConnected appends a fully connected layer. It does not change
// the shape seen by the next layer.
func (a *Architecture) AppendFullyConnected(name string) (Layer, error) {
	size, channels := a.currentShape()

	layer := &Layer{
		Index:        len(a.layers) + 1,
		Name:         name,
		Type:         FullyConnected,
		passSize:     size,
		passChannels: channels,
	}

	return a.push(layer), nil
}

func (a *Architecture) push(layer *Layer) Layer {
	a.layers = append(a.layers, layer)

	a.log.Info("layer appended",
		"index", layer.Index,
		"name", layer.Name,
		"type", layer.Type.String(),
		"outputSize", layer.OutputSize(),
		"channelsOut", layer.ChannelsOut(),
	)

	return *layer.clone()
}

func checkWindow(
	layer, param string,
	window, strides int,
	padding Padding,
	inputSize int,
) error {
	if window <= 0 {
		return &InvalidLayerParamsError{
			Layer: layer, Param: param, Reason: "must be positive",
		}
	}

	if strides <= 0 {
		return &InvalidLayerParamsError{
			Layer: layer, Param: "strides", Reason: "must be positive",
		}
	}

	if !padding.Known() {
		return &InvalidLayerParamsError{
			Layer:  layer,
			Param:  "padding",
			Reason: fmt.Sprintf("must be valid or same, got %q", padding),
		}
	}

	if inputSize-padding.reduction(window) < 0 {
		return &InvalidLayerParamsError{
			Layer: layer,
			Param: param,
			Reason: fmt.Sprintf("window %d does not fit input of size %d",
				window, inputSize),
		}
	}

	return nil
}

// RemoveLastLayer removes the highest-indexed layer. It does nothing if the
// architecture has no layers.
func (a *Architecture) RemoveLastLayer() {
	if len(a.layers) == 0 {
		return
	}

	a.layers[len(a.layers)-1] = nil
	a.layers = a.layers[:len(a.layers)-1]
}

// Describe returns a human-readable summary of the network.
func (a *Architecture) Describe() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%d layer network\n\n", len(a.layers))
	fmt.Fprintf(&b, "Input size %dx%dx%d\n\n",
		a.input.Size, a.input.Size, a.input.Dimension)

	for _, l := range a.layers {
		fmt.Fprintf(&b, "%s (%s), now %dx%d with %d channels\n",
			l.Name, l.Type, l.OutputSize(), l.OutputSize(), l.ChannelsOut())
	}

	return b.String()
}
