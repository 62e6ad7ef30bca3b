package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"tracekeeper/internal/trace/models"
	"tracekeeper/internal/trace/ports"
	"tracekeeper/internal/trace/store/storetest"
)

func TestMemoryStoreConformance(t *testing.T) {
	suite.Run(t, &storetest.Suite{NewStore: func() ports.TraceStore { return New() }})
}

func TestMemoryStore_CopiesOnReadAndWrite(t *testing.T) {
	store := New()
	ctx := context.Background()

	attrs := models.Attributes{"trade_id": "T-1", "nested": map[string]any{"k": "v"}}
	id, err := store.Insert(ctx, &models.TraceRecord{Attributes: attrs, StoreTime: time.Now()})
	require.NoError(t, err)

	attrs["trade_id"] = "mutated"
	attrs["nested"].(map[string]any)["k"] = "mutated"

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "T-1", got.Attributes["trade_id"])

	got.Attributes["trade_id"] = "mutated again"
	again, err := store.Get(ctx, id)
	require.NoError(t, err)
	v, _ := again.Attributes.Lookup("nested.k")
	assert.Equal(t, "v", v)
	assert.Equal(t, "T-1", again.Attributes["trade_id"])
}

func TestMemoryStore_ConcurrentInsert(t *testing.T) {
	store := New()
	ctx := context.Background()

	const goroutines = 50
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			_, err := store.Insert(ctx, &models.TraceRecord{Attributes: models.Attributes{"trade_id": "T"}})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines, store.Len())
}

func TestMemoryStore_DuplicateIDConflicts(t *testing.T) {
	store := New()
	ctx := context.Background()

	_, err := store.Insert(ctx, &models.TraceRecord{ID: "fixed"})
	require.NoError(t, err)
	_, err = store.Insert(ctx, &models.TraceRecord{ID: "fixed"})
	assert.Error(t, err)
}
