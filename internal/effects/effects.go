// Package effects holds the catalogue of clip effects the renderer knows how
// to apply, the pixel filters behind them, and the transition blend math.
package effects

import (
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/ivlev/nlecore/internal/timeline"
)

// Param describes one numeric effect parameter.
type Param struct {
	Default float64 `json:"default"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// Definition describes an effect kind and its parameter namespace.
type Definition struct {
	Kind        string           `json:"kind"`
	Description string           `json:"description"`
	Params      map[string]Param `json:"params"`
}

const (
	KindBrightness = "brightness"
	KindContrast   = "contrast"
	KindSaturation = "saturation"
	KindGrayscale  = "grayscale"
	KindTint       = "tint"
	KindBlur       = "blur"
	KindEdges      = "edges"
)

var catalogue = map[string]Definition{
	KindBrightness: {
		Kind:        KindBrightness,
		Description: "adds amount to every channel",
		Params:      map[string]Param{"amount": {Default: 0, Min: -1, Max: 1}},
	},
	KindContrast: {
		Kind:        KindContrast,
		Description: "scales channels about mid grey",
		Params:      map[string]Param{"amount": {Default: 1, Min: 0, Max: 4}},
	},
	KindSaturation: {
		Kind:        KindSaturation,
		Description: "scales chroma about luma",
		Params:      map[string]Param{"amount": {Default: 1, Min: 0, Max: 4}},
	},
	KindGrayscale: {
		Kind:        KindGrayscale,
		Description: "mixes towards luma",
		Params:      map[string]Param{"amount": {Default: 1, Min: 0, Max: 1}},
	},
	KindTint: {
		Kind:        KindTint,
		Description: "mixes towards a solid colour",
		Params: map[string]Param{
			"r":      {Default: 1, Min: 0, Max: 1},
			"g":      {Default: 0.5, Min: 0, Max: 1},
			"b":      {Default: 0, Min: 0, Max: 1},
			"amount": {Default: 0.3, Min: 0, Max: 1},
		},
	},
	KindBlur: {
		Kind:        KindBlur,
		Description: "box blur",
		Params:      map[string]Param{"radius": {Default: 2, Min: 0, Max: 32}},
	},
	KindEdges: {
		Kind:        KindEdges,
		Description: "Sobel edge mask",
		Params:      map[string]Param{"threshold": {Default: 30, Min: 0, Max: 1442}},
	},
}

// Lookup returns the definition for kind.
func Lookup(kind string) (Definition, error) {
	def, ok := catalogue[kind]
	if !ok {
		return Definition{}, fmt.Errorf("unknown effect kind %q: %w", kind, timeline.ErrInvalidValue)
	}
	return def, nil
}

// Kinds lists the known effect kinds in name order.
func Kinds() []string {
	return slices.Sorted(maps.Keys(catalogue))
}

// New builds an enabled effect of the given kind with default parameters,
// overridden by params. Unknown parameters and out-of-range values are
// rejected.
func New(kind string, params map[string]float64) (timeline.Effect, error) {
	def, err := Lookup(kind)
	if err != nil {
		return timeline.Effect{}, err
	}
	out := make(map[string]float64, len(def.Params))
	for name, p := range def.Params {
		out[name] = p.Default
	}
	for name, v := range params {
		if err := def.Check(name, v); err != nil {
			return timeline.Effect{}, err
		}
		out[name] = v
	}
	return timeline.Effect{
		ID:      uuid.NewString(),
		Kind:    kind,
		Enabled: true,
		Params:  out,
	}, nil
}

// Check validates a single parameter value against the definition.
func (d Definition) Check(name string, v float64) error {
	p, ok := d.Params[name]
	if !ok {
		return fmt.Errorf("effect %s has no parameter %q: %w", d.Kind, name, timeline.ErrInvalidValue)
	}
	if v < p.Min || v > p.Max {
		return fmt.Errorf("effect %s parameter %s=%v outside [%v, %v]: %w",
			d.Kind, name, v, p.Min, p.Max, timeline.ErrInvalidValue)
	}
	return nil
}

// Param returns params[name], falling back to the catalogue default when the
// parameter is absent.
func (d Definition) Param(params map[string]float64, name string) float64 {
	if v, ok := params[name]; ok {
		return v
	}
	return d.Params[name].Default
}
