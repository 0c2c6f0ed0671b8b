package walltime

import (
	"errors"
	"fmt"
)

// A GPUProfile describes the hardware a network is predicted on.
type GPUProfile struct {
	// Bandwidth is the memory bandwidth in GB/s.
	Bandwidth float64
	// Cores is the number of GPU cores.
	Cores float64
	// Clock is the core clock frequency in MHz.
	Clock float64
}

// NewGPUProfile creates a profile. All values must be positive.
func NewGPUProfile(bandwidth, cores, clock float64) (GPUProfile, error) {
	return gpuProfile("", bandwidth, cores, clock)
}

func gpuProfile(id string, bandwidth, cores, clock float64) (GPUProfile, error) {
	values := []struct {
		key string
		v   float64
	}{
		{"bandwidth", bandwidth},
		{"cores", cores},
		{"clock", clock},
	}

	for _, item := range values {
		if !(item.v > 0) {
			return GPUProfile{}, &DescriptorFormatError{
				ID:  id,
				Key: item.key,
				Err: fmt.Errorf("must be positive, got %v", item.v),
			}
		}
	}

	return GPUProfile{Bandwidth: bandwidth, Cores: cores, Clock: clock}, nil
}

// GPUDescriptor is the persisted form of a GPU profile.
type GPUDescriptor struct {
	Bandwidth *float64 `json:"bandwidth" yaml:"bandwidth"`
	Cores     *float64 `json:"cores" yaml:"cores"`
	Clock     *float64 `json:"clock" yaml:"clock"`
}

// Profile validates the descriptor and converts it into a GPUProfile.
func (d GPUDescriptor) Profile(id string) (GPUProfile, error) {
	if d.Bandwidth == nil {
		return GPUProfile{}, missingGPUKey(id, "bandwidth")
	}

	if d.Cores == nil {
		return GPUProfile{}, missingGPUKey(id, "cores")
	}

	if d.Clock == nil {
		return GPUProfile{}, missingGPUKey(id, "clock")
	}

	return gpuProfile(id, *d.Bandwidth, *d.Cores, *d.Clock)
}

// Descriptor returns the persisted form of the profile.
func (p GPUProfile) Descriptor() GPUDescriptor {
	bandwidth, cores, clock := p.Bandwidth, p.Cores, p.Clock

	return GPUDescriptor{Bandwidth: &bandwidth, Cores: &cores, Clock: &clock}
}

// ParseGPU decodes a GPU descriptor. The keys bandwidth, cores, and clock
// are all required.
func ParseGPU(id string, data []byte, format Format) (GPUProfile, error) {
	var d GPUDescriptor

	err := decode(id, data, format, &d)
	if err != nil {
		return GPUProfile{}, err
	}

	return d.Profile(id)
}

func missingGPUKey(id, key string) error {
	return &DescriptorFormatError{
		ID:  id,
		Key: key,
		Err: errors.New(`keys "bandwidth", "cores", and "clock" are required`),
	}
}
