package agents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rsharda/pharmagenie/internal/cache"
	"github.com/rsharda/pharmagenie/internal/models"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func TestFetchEnvelope(t *testing.T) {
	ctx := context.Background()

	t.Run("success caches the payload", func(t *testing.T) {
		store := cache.New[Payload](time.Minute)
		calls := 0
		lookup := func(context.Context) (Payload, error) {
			calls++
			return Payload{"n": 1}, nil
		}

		res := fetch(ctx, "src", store, testLogger(), "metformin", nil, lookup)
		require.Equal(t, models.StatusSuccess, res.Status)
		assert.Equal(t, Payload{"n": 1}, res.Payload)
		assert.Equal(t, "src", res.SourceID)
		assert.False(t, res.FetchedAt.IsZero())

		res = fetch(ctx, "src", store, testLogger(), "metformin", nil, lookup)
		require.Equal(t, models.StatusSuccess, res.Status)
		assert.Equal(t, 1, calls, "second fetch must come from cache")
	})

	t.Run("no data maps to empty and is not cached", func(t *testing.T) {
		store := cache.New[Payload](time.Minute)
		calls := 0
		lookup := func(context.Context) (Payload, error) {
			calls++
			return nil, models.ErrNoData
		}

		res := fetch(ctx, "src", store, testLogger(), "obscurodrug", nil, lookup)
		assert.Equal(t, models.StatusEmpty, res.Status)
		assert.Empty(t, res.ErrorMessage)

		fetch(ctx, "src", store, testLogger(), "obscurodrug", nil, lookup)
		assert.Equal(t, 2, calls)
	})

	t.Run("provider error maps to error", func(t *testing.T) {
		store := cache.New[Payload](time.Minute)
		res := fetch(ctx, "src", store, testLogger(), "metformin", nil, func(context.Context) (Payload, error) {
			return nil, errors.New("upstream exploded")
		})
		assert.Equal(t, models.StatusError, res.Status)
		assert.Contains(t, res.ErrorMessage, "upstream exploded")
	})

	t.Run("deadline maps to timeout", func(t *testing.T) {
		store := cache.New[Payload](time.Minute)
		res := fetch(ctx, "src", store, testLogger(), "metformin", nil, func(context.Context) (Payload, error) {
			return nil, context.DeadlineExceeded
		})
		assert.Equal(t, models.StatusTimeout, res.Status)
	})

	t.Run("panicking lookup becomes an error result", func(t *testing.T) {
		store := cache.New[Payload](time.Minute)
		res := fetch(ctx, "src", store, testLogger(), "metformin", nil, func(context.Context) (Payload, error) {
			panic("nil map write in parser")
		})
		assert.Equal(t, models.StatusError, res.Status)
		assert.Contains(t, res.ErrorMessage, "internal fault")
		assert.Nil(t, res.Payload)
	})

	t.Run("agents sharing a store keep separate namespaces", func(t *testing.T) {
		store := cache.New[Payload](time.Minute)

		res := fetch(ctx, "patent_landscape", store, testLogger(), "metformin", nil, func(context.Context) (Payload, error) {
			return Payload{"active_patents": 4}, nil
		})
		require.Equal(t, models.StatusSuccess, res.Status)

		litCalls := 0
		res = fetch(ctx, "literature", store, testLogger(), "metformin", nil, func(context.Context) (Payload, error) {
			litCalls++
			return Payload{"articles": []string{"x"}}, nil
		})
		require.Equal(t, models.StatusSuccess, res.Status)
		assert.Equal(t, 1, litCalls, "one agent's cached payload must not satisfy another's lookup")
		assert.NotContains(t, res.Payload, "active_patents")

		// Each agent still hits its own entry on repeat.
		fetch(ctx, "literature", store, testLogger(), "metformin", nil, func(context.Context) (Payload, error) {
			litCalls++
			return nil, nil
		})
		assert.Equal(t, 1, litCalls)
	})

	t.Run("context distinguishes cache entries", func(t *testing.T) {
		store := cache.New[Payload](time.Minute)
		calls := 0
		lookup := func(context.Context) (Payload, error) {
			calls++
			return Payload{"n": calls}, nil
		}

		fetch(ctx, "src", store, testLogger(), "metformin", map[string]string{ContextTherapeuticArea: "diabetes"}, lookup)
		fetch(ctx, "src", store, testLogger(), "metformin", map[string]string{ContextTherapeuticArea: "oncology"}, lookup)
		assert.Equal(t, 2, calls, "different context must not share cache entries")
	})
}
