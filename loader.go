package walltime

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"

	"github.com/go-logr/logr"
	"github.com/sarchlab/walltime/resources"
)

// ResourceKind is the kind of a named resource.
type ResourceKind int

// ResourceKind constants
const (
	ArchitectureResource ResourceKind = iota
	GPUResource
	ModelResource
)

func (k ResourceKind) String() string {
	switch k {
	case ArchitectureResource:
		return "architecture"
	case GPUResource:
		return "gpu"
	case ModelResource:
		return "model"
	default:
		return "unknown"
	}
}

// dir returns the directory that holds bundled resources of the kind.
func (k ResourceKind) dir() string {
	switch k {
	case ArchitectureResource:
		return "architectures"
	case GPUResource:
		return "gpus"
	default:
		return "model"
	}
}

// A Resource is the raw content of a resolved identifier.
type Resource struct {
	// Path is where the content was found, used to pick the format and to
	// name the resource in errors.
	Path string
	Data []byte
}

// A Resolver finds the content behind an identifier. A Resolver that does
// not know the identifier returns an error matching fs.ErrNotExist.
type Resolver interface {
	Resolve(kind ResourceKind, id string) (Resource, error)
}

// FileResolver treats identifiers as local file paths.
type FileResolver struct{}

// Resolve reads the identifier as a regular file.
func (FileResolver) Resolve(kind ResourceKind, id string) (Resource, error) {
	info, err := os.Stat(id)
	if err != nil || !info.Mode().IsRegular() {
		return Resource{}, fmt.Errorf("%s %q: %w", kind, id, fs.ErrNotExist)
	}

	data, err := os.ReadFile(id)
	if err != nil {
		return Resource{}, err
	}

	return Resource{Path: id, Data: data}, nil
}

// FSResolver looks identifiers up as named resources in a file system, under
// a directory per resource kind. The name may omit the .json, .yaml, or .yml
// extension.
type FSResolver struct {
	FS fs.FS
}

// Resolve finds the named resource.
func (r FSResolver) Resolve(kind ResourceKind, id string) (Resource, error) {
	candidates := []string{id, id + ".json", id + ".yaml", id + ".yml"}

	for _, name := range candidates {
		p := path.Join(kind.dir(), name)
		if !fs.ValidPath(p) {
			continue
		}

		data, err := fs.ReadFile(r.FS, p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err != nil {
			if info, statErr := fs.Stat(r.FS, p); statErr == nil && info.IsDir() {
				continue
			}

			return Resource{}, err
		}

		return Resource{Path: p, Data: data}, nil
	}

	return Resource{}, fmt.Errorf("%s %q: %w", kind, id, fs.ErrNotExist)
}

// ChainResolver tries its resolvers in order and returns the first hit.
type ChainResolver []Resolver

// Resolve asks each resolver in turn.
func (c ChainResolver) Resolve(kind ResourceKind, id string) (Resource, error) {
	for _, r := range c {
		res, err := r.Resolve(kind, id)
		if err == nil {
			return res, nil
		}

		if !errors.Is(err, fs.ErrNotExist) {
			return Resource{}, err
		}
	}

	return Resource{}, &DescriptorNotFoundError{Kind: kind, ID: id}
}

// DefaultResolver tries identifiers as local files first and then as
// bundled resources.
func DefaultResolver() Resolver {
	return ChainResolver{
		FileResolver{},
		FSResolver{FS: resources.FS},
	}
}

// A Loader turns identifiers into architectures and GPU profiles.
type Loader struct {
	resolver Resolver
	log      logr.Logger
}

// NewLoader creates a loader. A nil resolver means DefaultResolver.
func NewLoader(resolver Resolver) *Loader {
	if resolver == nil {
		resolver = DefaultResolver()
	}

	return &Loader{
		resolver: resolver,
		log:      logr.Discard(),
	}
}

// SetLogger sets the logger that reports where identifiers resolve to.
func (l *Loader) SetLogger(log logr.Logger) {
	l.log = log
}

// Resolve finds the content of an identifier. Identifiers that no resolver
// knows produce a DescriptorNotFoundError.
func (l *Loader) Resolve(kind ResourceKind, id string) (Resource, error) {
	res, err := l.resolver.Resolve(kind, id)
	if err != nil {
		var notFound *DescriptorNotFoundError
		if errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return Resource{}, &DescriptorNotFoundError{Kind: kind, ID: id}
		}

		return Resource{}, err
	}

	l.log.V(1).Info("resource resolved",
		"kind", kind.String(), "id", id, "path", res.Path)

	return res, nil
}

// LoadArchitecture loads an architecture descriptor.
func (l *Loader) LoadArchitecture(id string) (*Architecture, error) {
	res, err := l.Resolve(ArchitectureResource, id)
	if err != nil {
		return nil, err
	}

	return ParseArchitecture(res.Path, res.Data, FormatOf(res.Path))
}

// LoadGPU loads a GPU profile.
func (l *Loader) LoadGPU(id string) (GPUProfile, error) {
	res, err := l.Resolve(GPUResource, id)
	if err != nil {
		return GPUProfile{}, err
	}

	return ParseGPU(res.Path, res.Data, FormatOf(res.Path))
}
