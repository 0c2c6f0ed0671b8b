// Package walltime models the layer sequence of a convolutional neural
// network and the GPU it runs on, so that its execution time can be
// predicted before any hardware is bought.
package walltime

import "strings"

// LayerType identifies the kind of a layer.
type LayerType int

// LayerType constants
const (
	Convolution LayerType = iota
	MaxPool
	FullyConnected
)

// String returns the name used for the layer type in descriptors.
func (t LayerType) String() string {
	switch t {
	case Convolution:
		return "Convolution"
	case MaxPool:
		return "Max_pool"
	case FullyConnected:
		return "Fully_connected"
	default:
		return "Unknown"
	}
}

// ParseLayerType converts a descriptor type name into a LayerType. Matching
// is case-insensitive and ignores underscores, so "Max_pool" and "maxpool"
// are the same.
func ParseLayerType(name string) (LayerType, error) {
	key := strings.ReplaceAll(strings.ToLower(name), "_", "")

	switch key {
	case "convolution", "conv":
		return Convolution, nil
	case "maxpool":
		return MaxPool, nil
	case "fullyconnected":
		return FullyConnected, nil
	}

	return 0, &UnknownLayerTypeError{Type: name}
}

// Padding is the padding mode of a convolution or pooling window.
type Padding string

// Padding constants
const (
	PaddingValid Padding = "valid"
	PaddingSame  Padding = "same"
)

// IsValidMode reports whether the padding is the "valid" mode, which adds
// no padding. Matching is case-insensitive.
func (p Padding) IsValidMode() bool {
	return strings.EqualFold(string(p), string(PaddingValid))
}

// IsSameMode reports whether the padding is the "same" mode. Matching is
// case-insensitive.
func (p Padding) IsSameMode() bool {
	return strings.EqualFold(string(p), string(PaddingSame))
}

// Known reports whether the padding is one of the supported modes.
func (p Padding) Known() bool {
	return p.IsValidMode() || p.IsSameMode()
}

// reduction returns how much a window of the given size shrinks the input
// under this padding mode.
func (p Padding) reduction(window int) int {
	if p.IsValidMode() {
		return window - 1
	}

	return 0
}

// OutputSize returns the spatial size after applying a window of the given
// size with the padding mode and strides. The result is floored.
func OutputSize(inputSize, window, strides int, padding Padding) int {
	return (inputSize - padding.reduction(window)) / strides
}

// LayerParams is implemented by the type-specific parameter sets that can be
// passed to Architecture.AppendLayer.
type LayerParams interface {
	layerType() LayerType
}

// ConvSpec holds the caller-supplied parameters of a convolution layer.
type ConvSpec struct {
	KernelSize  int
	ChannelsOut int
	Padding     Padding
	Strides     int
	UseBias     bool
	Activation  string
}

func (ConvSpec) layerType() LayerType { return Convolution }

// PoolSpec holds the caller-supplied parameters of a max pooling layer.
type PoolSpec struct {
	PoolSize int
	Strides  int
	Padding  Padding
}

func (PoolSpec) layerType() LayerType { return MaxPool }

// FullyConnectedSpec holds the parameters of a fully connected layer. It
// carries no shape fields yet.
type FullyConnectedSpec struct{}

func (FullyConnectedSpec) layerType() LayerType { return FullyConnected }

// ConvLayer is the derived record of a convolution layer.
type ConvLayer struct {
	MatSize     int
	KernelSize  int
	ChannelsIn  int
	ChannelsOut int
	Padding     Padding
	Strides     int
	UseBias     bool
	Activation  string
	OutputSize  int
}

// PoolLayer is the derived record of a max pooling layer.
type PoolLayer struct {
	PoolSize    int
	Strides     int
	Padding     Padding
	OutputSize  int
	ChannelsOut int
}

// A Layer is one stage of the network. Exactly one of Conv and Pool is set
// for Convolution and MaxPool layers; neither is set for FullyConnected.
type Layer struct {
	// Index is the 1-based position of the layer in its architecture.
	Index int
	Name  string
	Type  LayerType

	Conv *ConvLayer
	Pool *PoolLayer

	// Shape that a fully connected layer passes through unchanged.
	passSize     int
	passChannels int
}

// OutputSize returns the spatial size of the layer output.
func (l *Layer) OutputSize() int {
	switch l.Type {
	case Convolution:
		return l.Conv.OutputSize
	case MaxPool:
		return l.Pool.OutputSize
	default:
		return l.passSize
	}
}

// ChannelsOut returns the number of channels of the layer output.
func (l *Layer) ChannelsOut() int {
	switch l.Type {
	case Convolution:
		return l.Conv.ChannelsOut
	case MaxPool:
		return l.Pool.ChannelsOut
	default:
		return l.passChannels
	}
}

func (l *Layer) clone() *Layer {
	c := *l

	if l.Conv != nil {
		conv := *l.Conv
		c.Conv = &conv
	}

	if l.Pool != nil {
		pool := *l.Pool
		c.Pool = &pool
	}

	return &c
}
