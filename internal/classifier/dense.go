package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"adswap/internal/features"
)

type Activation string

const (
	ActivationReLU    Activation = "relu"
	ActivationSigmoid Activation = "sigmoid"
	ActivationLinear  Activation = "linear"
)

// Layer is a fully connected layer. Weights[i][j] connects input j to output i.
type Layer struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Activation Activation  `json:"activation"`
}

// DenseModel evaluates a feed-forward network exported by an external trainer.
// It is read-only after construction and safe for concurrent use.
type DenseModel struct {
	Layers []Layer `json:"layers"`
}

// SeedModel is a hand-set network used when no weights file is configured.
// Its hidden units detect "larger than a badge" and "close to full screen";
// mid-sized boxes score high, tiny and page-sized boxes score low.
func SeedModel() *DenseModel {
	return &DenseModel{Layers: []Layer{
		{
			Weights: [][]float64{
				{1, 1, 0, 0},
				{1, 1, 0, 0},
			},
			Bias:       []float64{-0.35, -1.2},
			Activation: ActivationReLU,
		},
		{
			Weights:    [][]float64{{20, -60}},
			Bias:       []float64{-1.5},
			Activation: ActivationSigmoid,
		},
	}}
}

// LoadDenseModel reads a JSON weights file.
func LoadDenseModel(path string) (*DenseModel, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path is from application config
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var m DenseModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that layer shapes chain from a features.Size input to one output.
func (m *DenseModel) Validate() error {
	if len(m.Layers) == 0 {
		return fmt.Errorf("model has no layers")
	}
	in := features.Size
	for i, l := range m.Layers {
		if len(l.Weights) == 0 || len(l.Weights) != len(l.Bias) {
			return fmt.Errorf("layer %d: %d weight rows for %d biases", i, len(l.Weights), len(l.Bias))
		}
		for _, row := range l.Weights {
			if len(row) != in {
				return fmt.Errorf("layer %d: expected %d inputs, got %d", i, in, len(row))
			}
		}
		switch l.Activation {
		case ActivationReLU, ActivationSigmoid, ActivationLinear:
		default:
			return fmt.Errorf("layer %d: unknown activation %q", i, l.Activation)
		}
		in = len(l.Weights)
	}
	if in != 1 {
		return fmt.Errorf("model output has %d units, want 1", in)
	}
	return nil
}

func (m *DenseModel) Score(ctx context.Context, v features.Vector) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	x := v[:]
	for _, l := range m.Layers {
		out := make([]float64, len(l.Weights))
		for i, row := range l.Weights {
			sum := l.Bias[i]
			for j, w := range row {
				sum += w * x[j]
			}
			out[i] = activate(l.Activation, sum)
		}
		x = out
	}
	return x[0], nil
}

func activate(a Activation, z float64) float64 {
	switch a {
	case ActivationReLU:
		return math.Max(0, z)
	case ActivationSigmoid:
		return 1 / (1 + math.Exp(-z))
	}
	return z
}

// ModelLoader returns a Loader for the weights file at path, or for the seed
// network when path is empty.
func ModelLoader(path string) Loader {
	return func(ctx context.Context) (Scorer, error) {
		if path == "" {
			return SeedModel(), nil
		}
		return LoadDenseModel(path)
	}
}
