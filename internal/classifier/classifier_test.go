package classifier_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adswap/internal/classifier"
	"adswap/internal/features"
)

type scorerFunc func(ctx context.Context, v features.Vector) (float64, error)

func (f scorerFunc) Score(ctx context.Context, v features.Vector) (float64, error) { return f(ctx, v) }

func constLoader(s classifier.Scorer) classifier.Loader {
	return func(ctx context.Context) (classifier.Scorer, error) { return s, nil }
}

func TestScore_NotReadyIsUnavailable(t *testing.T) {
	c := classifier.New(constLoader(scorerFunc(func(ctx context.Context, v features.Vector) (float64, error) {
		return 0.99, nil
	})))

	res := c.Score(context.Background(), features.Vector{})
	assert.False(t, res.Available)
	assert.ErrorIs(t, res.Reason, classifier.ErrNotReady)
	assert.Nil(t, res.ConfidencePtr())
}

func TestScore_FailedIsUnavailable(t *testing.T) {
	c := classifier.New(func(ctx context.Context) (classifier.Scorer, error) {
		return nil, errors.New("weights missing")
	})

	err := c.Initialize(context.Background())
	assert.Error(t, err)
	assert.Equal(t, classifier.StateFailed, c.State())

	res := c.Score(context.Background(), features.Vector{})
	assert.False(t, res.Available)
	assert.ErrorIs(t, res.Reason, classifier.ErrNotReady)
}

func TestScore_Ready(t *testing.T) {
	c := classifier.New(constLoader(scorerFunc(func(ctx context.Context, v features.Vector) (float64, error) {
		return v[0], nil
	})))
	require.NoError(t, c.Initialize(context.Background()))
	assert.ErrorIs(t, c.Initialize(context.Background()), classifier.ErrAlreadyStarted)

	res := c.Score(context.Background(), features.Vector{0.42})
	assert.True(t, res.Available)
	assert.Equal(t, 0.42, res.Confidence)
	require.NotNil(t, res.ConfidencePtr())
	assert.Equal(t, 0.42, *res.ConfidencePtr())
}

func TestScore_InternalErrorsAreUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		scorer scorerFunc
	}{
		{"error", func(ctx context.Context, v features.Vector) (float64, error) { return 0, errors.New("boom") }},
		{"nan", func(ctx context.Context, v features.Vector) (float64, error) { return math.NaN(), nil }},
		{"above one", func(ctx context.Context, v features.Vector) (float64, error) { return 1.2, nil }},
		{"negative", func(ctx context.Context, v features.Vector) (float64, error) { return -0.1, nil }},
		{"panic", func(ctx context.Context, v features.Vector) (float64, error) { panic("tensor shape") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := classifier.New(constLoader(tt.scorer))
			require.NoError(t, c.Initialize(context.Background()))

			res := c.Score(context.Background(), features.Vector{})
			assert.False(t, res.Available)
			assert.Error(t, res.Reason)
			assert.Zero(t, res.Confidence)
		})
	}
}

func TestScore_TimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	c := classifier.New(constLoader(scorerFunc(func(ctx context.Context, v features.Vector) (float64, error) {
		<-release
		return 0.9, nil
	})))
	require.NoError(t, c.Initialize(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := c.Score(ctx, features.Vector{})
	assert.False(t, res.Available)
	assert.ErrorIs(t, res.Reason, context.DeadlineExceeded)
}

func TestSeedModel(t *testing.T) {
	m := classifier.SeedModel()
	require.NoError(t, m.Validate())

	score := func(v features.Vector) float64 {
		s, err := m.Score(context.Background(), v)
		require.NoError(t, err)
		return s
	}

	assert.Greater(t, score(features.Vector{0.8, 0.2, 0.9, 0.1}), 0.7, "top banner")
	assert.Greater(t, score(features.Vector{0.3, 0.4, 0.5, 0.5}), 0.7, "in-content")
	assert.Less(t, score(features.Vector{0.1, 0.1, 0.2, 0.2}), 0.7, "small element")
	assert.Less(t, score(features.Vector{0.9, 0.9, 0.5, 0.5}), 0.7, "page-sized element")
}

func TestLoadDenseModel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	weights := `{"layers":[{"weights":[[0,0,0,0]],"bias":[0],"activation":"sigmoid"}]}`
	require.NoError(t, os.WriteFile(path, []byte(weights), 0o600))

	m, err := classifier.LoadDenseModel(path)
	require.NoError(t, err)
	s, err := m.Score(context.Background(), features.Vector{1, 1, 1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, s, 1e-9)
}

func TestLoadDenseModel_RejectsBadShapes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"layers":[{"weights":[[1,2]],"bias":[0],"activation":"relu"}]}`), 0o600))

	_, err := classifier.LoadDenseModel(path)
	assert.Error(t, err)

	c := classifier.New(classifier.ModelLoader(path))
	assert.Error(t, c.Initialize(context.Background()))
	assert.Equal(t, classifier.StateFailed, c.State())
}
