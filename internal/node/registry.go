package node

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

const (
	SupportedSchemaVersion = 1
	SupportedCodecVersion  = 1

	// MaxFanIn bounds variadic transforms.
	MaxFanIn = 8
)

var (
	ErrTransformExists   = errors.New("transform already registered")
	ErrTransformNotFound = errors.New("transform not found")
	ErrTransformVersion  = errors.New("transform version mismatch")
)

type TransformFunc func(inputs []float64) float64

type TransformSpec struct {
	Name          string
	Func          TransformFunc
	MinInputs     int
	MaxInputs     int
	SchemaVersion int
	CodecVersion  int
}

// Transform is a resolved registry entry.
type Transform struct {
	Name      string
	Func      TransformFunc
	MinInputs int
	MaxInputs int
}

var transformRegistry = struct {
	mu sync.RWMutex
	m  map[string]TransformSpec
}{
	m: make(map[string]TransformSpec),
}

func init() {
	initializeBuiltInTransforms()
}

func initializeBuiltInTransforms() {
	MustRegisterTransform("identity", 1, 1, func(in []float64) float64 { return in[0] })
	MustRegisterTransform("negate", 1, 1, func(in []float64) float64 { return -in[0] })
	MustRegisterTransform("tanh", 1, 1, func(in []float64) float64 { return math.Tanh(in[0]) })
	MustRegisterTransform("sigmoid", 1, 1, func(in []float64) float64 {
		return 1.0 / (1.0 + math.Exp(-in[0]))
	})
	MustRegisterTransform("relu", 1, 1, func(in []float64) float64 {
		if in[0] < 0 {
			return 0
		}
		return in[0]
	})
	MustRegisterTransform("sum", 1, MaxFanIn, func(in []float64) float64 {
		total := 0.0
		for _, v := range in {
			total += v
		}
		return total
	})
	MustRegisterTransform("product", 1, MaxFanIn, func(in []float64) float64 {
		total := 1.0
		for _, v := range in {
			total *= v
		}
		return total
	})
	MustRegisterTransform("max", 1, MaxFanIn, func(in []float64) float64 {
		best := in[0]
		for _, v := range in[1:] {
			best = math.Max(best, v)
		}
		return best
	})
	MustRegisterTransform("min", 1, MaxFanIn, func(in []float64) float64 {
		best := in[0]
		for _, v := range in[1:] {
			best = math.Min(best, v)
		}
		return best
	})
	MustRegisterTransform("mean", 1, MaxFanIn, func(in []float64) float64 {
		total := 0.0
		for _, v := range in {
			total += v
		}
		return total / float64(len(in))
	})
	MustRegisterTransform("sub", 2, 2, func(in []float64) float64 { return in[0] - in[1] })
	// gate passes the first input while the second is positive.
	MustRegisterTransform("gate", 2, 2, func(in []float64) float64 {
		if in[1] > 0 {
			return in[0]
		}
		return 0
	})
}

func RegisterTransform(name string, minInputs, maxInputs int, fn TransformFunc) error {
	return RegisterTransformWithSpec(TransformSpec{
		Name:          name,
		Func:          fn,
		MinInputs:     minInputs,
		MaxInputs:     maxInputs,
		SchemaVersion: SupportedSchemaVersion,
		CodecVersion:  SupportedCodecVersion,
	})
}

func MustRegisterTransform(name string, minInputs, maxInputs int, fn TransformFunc) {
	if err := RegisterTransform(name, minInputs, maxInputs, fn); err != nil {
		panic(err)
	}
}

func RegisterTransformWithSpec(spec TransformSpec) error {
	if spec.Name == "" {
		return errors.New("transform name is required")
	}
	if spec.Func == nil {
		return errors.New("transform function is required")
	}
	if spec.MinInputs < 1 || spec.MaxInputs < spec.MinInputs {
		return fmt.Errorf("%w: transform %s arity [%d,%d]", ErrArity, spec.Name, spec.MinInputs, spec.MaxInputs)
	}
	if spec.SchemaVersion != SupportedSchemaVersion || spec.CodecVersion != SupportedCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrTransformVersion, spec.SchemaVersion, spec.CodecVersion)
	}

	transformRegistry.mu.Lock()
	defer transformRegistry.mu.Unlock()

	if _, exists := transformRegistry.m[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrTransformExists, spec.Name)
	}
	transformRegistry.m[spec.Name] = spec
	return nil
}

func GetTransform(name string) (Transform, error) {
	transformRegistry.mu.RLock()
	spec, ok := transformRegistry.m[name]
	transformRegistry.mu.RUnlock()
	if !ok {
		return Transform{}, fmt.Errorf("%w: %s", ErrTransformNotFound, name)
	}
	if spec.SchemaVersion != SupportedSchemaVersion || spec.CodecVersion != SupportedCodecVersion {
		return Transform{}, fmt.Errorf("%w: %s", ErrTransformVersion, name)
	}
	return Transform{
		Name:      spec.Name,
		Func:      spec.Func,
		MinInputs: spec.MinInputs,
		MaxInputs: spec.MaxInputs,
	}, nil
}

func ListTransforms() []string {
	transformRegistry.mu.RLock()
	defer transformRegistry.mu.RUnlock()

	names := make([]string, 0, len(transformRegistry.m))
	for name := range transformRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TransformsAccepting lists transforms whose arity admits n inputs.
func TransformsAccepting(n int) []string {
	transformRegistry.mu.RLock()
	defer transformRegistry.mu.RUnlock()

	names := make([]string, 0, len(transformRegistry.m))
	for name, spec := range transformRegistry.m {
		if n >= spec.MinInputs && n <= spec.MaxInputs {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func resetTransformRegistryForTests() {
	transformRegistry.mu.Lock()
	transformRegistry.m = make(map[string]TransformSpec)
	transformRegistry.mu.Unlock()
	initializeBuiltInTransforms()
}

const defaultSaturationLimit = 1000.0

// Saturation clamps values to [-1000, 1000] and maps NaN to zero.
func Saturation(value float64) float64 {
	if math.IsNaN(value) {
		return 0
	}
	if value > defaultSaturationLimit {
		return defaultSaturationLimit
	}
	if value < -defaultSaturationLimit {
		return -defaultSaturationLimit
	}
	return value
}
