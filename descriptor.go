package walltime

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is the encoding of a descriptor file.
type Format int

// Format constants
const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatOf guesses the descriptor format from a file name. Anything that is
// not a .yaml or .yml file is treated as JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Descriptor is the persisted form of an architecture. Layers are keyed by
// their 1-based index written as a decimal string.
type Descriptor struct {
	Input  InputDescriptor            `json:"input" yaml:"input"`
	Layers map[string]LayerDescriptor `json:"layers" yaml:"layers"`
}

// InputDescriptor is the persisted form of the network input.
type InputDescriptor struct {
	Dimension *float64 `json:"dimension" yaml:"dimension"`
	Size      *float64 `json:"size" yaml:"size"`
}

// LayerDescriptor is the persisted form of a layer. Only the fields of the
// layer's type are present.
type LayerDescriptor struct {
	Name        *string  `json:"name" yaml:"name"`
	Type        *string  `json:"type" yaml:"type"`
	MatSize     *float64 `json:"matsize,omitempty" yaml:"matsize,omitempty"`
	KernelSize  *float64 `json:"kernelsize,omitempty" yaml:"kernelsize,omitempty"`
	PoolSize    *float64 `json:"pool_size,omitempty" yaml:"pool_size,omitempty"`
	ChannelsIn  *float64 `json:"channels_in,omitempty" yaml:"channels_in,omitempty"`
	ChannelsOut *float64 `json:"channels_out,omitempty" yaml:"channels_out,omitempty"`
	Padding     *string  `json:"padding,omitempty" yaml:"padding,omitempty"`
	Strides     *float64 `json:"strides,omitempty" yaml:"strides,omitempty"`
	UseBias     *bool    `json:"use_bias,omitempty" yaml:"use_bias,omitempty"`
	Activation  *string  `json:"activation,omitempty" yaml:"activation,omitempty"`
	OutputSize  *float64 `json:"output_size,omitempty" yaml:"output_size,omitempty"`
}

// Serialize converts the architecture into its descriptor.
func (a *Architecture) Serialize() Descriptor {
	d := Descriptor{
		Input: InputDescriptor{
			Dimension: num(a.input.Dimension),
			Size:      num(a.input.Size),
		},
		Layers: make(map[string]LayerDescriptor, len(a.layers)),
	}

	for _, l := range a.layers {
		d.Layers[strconv.Itoa(l.Index)] = serializeLayer(l)
	}

	return d
}

func serializeLayer(l *Layer) LayerDescriptor {
	ld := LayerDescriptor{
		Name: str(l.Name),
		Type: str(l.Type.String()),
	}

	switch l.Type {
	case Convolution:
		c := l.Conv
		useBias := c.UseBias
		ld.MatSize = num(c.MatSize)
		ld.KernelSize = num(c.KernelSize)
		ld.ChannelsIn = num(c.ChannelsIn)
		ld.ChannelsOut = num(c.ChannelsOut)
		ld.Padding = str(string(c.Padding))
		ld.Strides = num(c.Strides)
		ld.UseBias = &useBias
		ld.Activation = str(c.Activation)
		ld.OutputSize = num(c.OutputSize)
	case MaxPool:
		p := l.Pool
		ld.PoolSize = num(p.PoolSize)
		ld.Strides = num(p.Strides)
		ld.Padding = str(string(p.Padding))
		ld.OutputSize = num(p.OutputSize)
		ld.ChannelsOut = num(p.ChannelsOut)
	}

	return ld
}

// Deserialize rebuilds an architecture from a descriptor. The id names the
// descriptor in errors. Layer indices must be contiguous from 1 and the
// stored shapes must agree with the shapes derived from the chain.
func Deserialize(id string, d Descriptor) (*Architecture, error) {
	dimension, err := intField(id, "input.dimension", d.Input.Dimension)
	if err != nil {
		return nil, err
	}

	size, err := intField(id, "input.size", d.Input.Size)
	if err != nil {
		return nil, err
	}

	a, err := NewArchitecture(dimension, size)
	if err != nil {
		return nil, &DescriptorFormatError{ID: id, Key: "input", Err: err}
	}

	if d.Layers == nil {
		return nil, missing(id, "layers")
	}

	keys, err := layerKeys(id, d.Layers)
	if err != nil {
		return nil, err
	}

	for _, key := range keys {
		err = a.appendDescriptor(id, key, d.Layers[key])
		if err != nil {
			return nil, err
		}
	}

	return a, nil
}

// layerKeys returns the layer keys in index order, checking that they form
// the sequence 1..N.
func layerKeys(id string, layers map[string]LayerDescriptor) ([]string, error) {
	indices := make([]int, 0, len(layers))
	byIndex := make(map[int]string, len(layers))

	for key := range layers {
		i, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return nil, &DescriptorFormatError{
				ID: id, Key: "layers." + key,
				Err: errors.New("layer key is not an integer index"),
			}
		}

		if _, dup := byIndex[i]; dup {
			return nil, &DescriptorFormatError{
				ID: id, Key: "layers." + key,
				Err: fmt.Errorf("duplicated layer index %d", i),
			}
		}

		byIndex[i] = key
		indices = append(indices, i)
	}

	sort.Ints(indices)

	keys := make([]string, len(indices))
	for n, i := range indices {
		if i != n+1 {
			return nil, &DescriptorFormatError{
				ID: id, Key: "layers",
				Err: fmt.Errorf("layer indices must be contiguous from 1, "+
					"missing %d", n+1),
			}
		}

		keys[n] = byIndex[i]
	}

	return keys, nil
}

func (a *Architecture) appendDescriptor(
	id, key string,
	ld LayerDescriptor,
) error {
	prefix := "layers." + key + "."

	if ld.Name == nil {
		return missing(id, prefix+"name")
	}

	if ld.Type == nil {
		return missing(id, prefix+"type")
	}

	t, err := ParseLayerType(*ld.Type)
	if err != nil {
		return &DescriptorFormatError{ID: id, Key: prefix + "type", Err: err}
	}

	var params LayerParams
	switch t {
	case Convolution:
		params, err = convSpecOf(id, prefix, ld)
	case MaxPool:
		params, err = poolSpecOf(id, prefix, ld)
	default:
		params = FullyConnectedSpec{}
		err = checkNoShape(id, prefix, ld)
	}

	if err != nil {
		return err
	}

	layer, err := a.AppendLayer(t.String(), *ld.Name, params)
	if err != nil {
		badKey := prefix + "type"

		var paramErr *InvalidLayerParamsError
		if errors.As(err, &paramErr) {
			badKey = prefix + paramErr.Param
		}

		return &DescriptorFormatError{ID: id, Key: badKey, Err: err}
	}

	return checkDerived(id, prefix, ld, layer)
}

func convSpecOf(id, prefix string, ld LayerDescriptor) (ConvSpec, error) {
	var (
		spec ConvSpec
		err  error
	)

	if spec.KernelSize, err = intField(id, prefix+"kernelsize", ld.KernelSize); err != nil {
		return spec, err
	}

	if spec.ChannelsOut, err = intField(id, prefix+"channels_out", ld.ChannelsOut); err != nil {
		return spec, err
	}

	if spec.Strides, err = intField(id, prefix+"strides", ld.Strides); err != nil {
		return spec, err
	}

	if ld.Padding == nil {
		return spec, missing(id, prefix+"padding")
	}

	if ld.UseBias == nil {
		return spec, missing(id, prefix+"use_bias")
	}

	if ld.Activation == nil {
		return spec, missing(id, prefix+"activation")
	}

	spec.Padding = Padding(*ld.Padding)
	spec.UseBias = *ld.UseBias
	spec.Activation = *ld.Activation

	return spec, nil
}

func poolSpecOf(id, prefix string, ld LayerDescriptor) (PoolSpec, error) {
	var (
		spec PoolSpec
		err  error
	)

	if spec.PoolSize, err = intField(id, prefix+"pool_size", ld.PoolSize); err != nil {
		return spec, err
	}

	if spec.Strides, err = intField(id, prefix+"strides", ld.Strides); err != nil {
		return spec, err
	}

	if ld.Padding == nil {
		return spec, missing(id, prefix+"padding")
	}

	spec.Padding = Padding(*ld.Padding)

	return spec, nil
}

// checkNoShape rejects shape fields on a fully connected layer, which only
// carries a name and a type.
func checkNoShape(id, prefix string, ld LayerDescriptor) error {
	fields := []struct {
		key string
		set bool
	}{
		{"matsize", ld.MatSize != nil},
		{"kernelsize", ld.KernelSize != nil},
		{"pool_size", ld.PoolSize != nil},
		{"channels_in", ld.ChannelsIn != nil},
		{"channels_out", ld.ChannelsOut != nil},
		{"padding", ld.Padding != nil},
		{"strides", ld.Strides != nil},
		{"use_bias", ld.UseBias != nil},
		{"activation", ld.Activation != nil},
		{"output_size", ld.OutputSize != nil},
	}

	for _, f := range fields {
		if f.set {
			return &DescriptorFormatError{
				ID: id, Key: prefix + f.key,
				Err: errors.New("fully connected layers take only name and type"),
			}
		}
	}

	return nil
}

// checkDerived compares the stored shape fields with the ones derived while
// appending the layer.
func checkDerived(id, prefix string, ld LayerDescriptor, layer Layer) error {
	type derived struct {
		key    string
		stored *float64
		want   int
	}

	var fields []derived

	switch layer.Type {
	case Convolution:
		fields = []derived{
			{"matsize", ld.MatSize, layer.Conv.MatSize},
			{"channels_in", ld.ChannelsIn, layer.Conv.ChannelsIn},
			{"output_size", ld.OutputSize, layer.Conv.OutputSize},
		}
	case MaxPool:
		fields = []derived{
			{"output_size", ld.OutputSize, layer.Pool.OutputSize},
			{"channels_out", ld.ChannelsOut, layer.Pool.ChannelsOut},
		}
	}

	for _, f := range fields {
		got, err := intField(id, prefix+f.key, f.stored)
		if err != nil {
			return err
		}

		if got != f.want {
			return &DescriptorFormatError{
				ID: id, Key: prefix + f.key,
				Err: fmt.Errorf("stored value %d does not match derived "+
					"value %d", got, f.want),
			}
		}
	}

	return nil
}

// ParseDescriptor decodes descriptor bytes in the given format.
func ParseDescriptor(id string, data []byte, format Format) (Descriptor, error) {
	var d Descriptor

	err := decode(id, data, format, &d)
	if err != nil {
		return Descriptor{}, err
	}

	return d, nil
}

// ParseArchitecture decodes descriptor bytes and rebuilds the architecture.
func ParseArchitecture(id string, data []byte, format Format) (*Architecture, error) {
	d, err := ParseDescriptor(id, data, format)
	if err != nil {
		return nil, err
	}

	return Deserialize(id, d)
}

// Marshal encodes the architecture descriptor in the given format.
func (a *Architecture) Marshal(format Format) ([]byte, error) {
	d := a.Serialize()

	if format == FormatYAML {
		return yaml.Marshal(d)
	}

	return json.MarshalIndent(d, "", "    ")
}

// Save writes the architecture descriptor to path, creating the parent
// directory when it does not exist. The format follows the file extension.
func (a *Architecture) Save(path string) error {
	data, err := a.Marshal(FormatOf(path))
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

func decode(id string, data []byte, format Format, v interface{}) error {
	var err error

	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, v)
	default:
		err = json.Unmarshal(data, v)
	}

	if err == nil {
		return nil
	}

	key := ""
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		key = typeErr.Field
	}

	return &DescriptorFormatError{ID: id, Key: key, Err: err}
}

// maxDescriptorInt bounds integer fields so they convert to int on every
// platform.
const maxDescriptorInt = math.MaxInt32

func intField(id, key string, v *float64) (int, error) {
	if v == nil {
		return 0, missing(id, key)
	}

	if math.IsNaN(*v) || math.IsInf(*v, 0) || *v != math.Trunc(*v) {
		return 0, &DescriptorFormatError{
			ID: id, Key: key,
			Err: fmt.Errorf("value %v is not an integer", *v),
		}
	}

	if math.Abs(*v) > maxDescriptorInt {
		return 0, &DescriptorFormatError{
			ID: id, Key: key,
			Err: fmt.Errorf("value %v is out of range", *v),
		}
	}

	return int(*v), nil
}

func missing(id, key string) error {
	return &DescriptorFormatError{
		ID: id, Key: key, Err: errors.New("required key is missing"),
	}
}

func num(v int) *float64 {
	f := float64(v)
	return &f
}

func str(s string) *string {
	return &s
}
