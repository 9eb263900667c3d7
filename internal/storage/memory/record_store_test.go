package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

func TestRecordStoreReadWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRecordStore()
	key := crawler.ModelKey{Make: "audi", Model: "a4"}

	got, err := store.Read(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)

	rec := crawler.ModelRecord{Make: "audi", Model: "a4", Years: map[string]crawler.YearRecord{
		"2024": {MainImages: []string{"a.jpg"}},
	}}
	require.NoError(t, store.Write(ctx, rec))
	rec.Years["2024"].MainImages[0] = "mutated"

	got, err = store.Read(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"a.jpg"}, got.Years["2024"].MainImages)
	assert.Equal(t, 1, store.Writes())
	assert.Equal(t, []crawler.ModelKey{key}, store.Keys())
}

func TestRecordStoreFailWrites(t *testing.T) {
	t.Parallel()

	store := NewRecordStore()
	key := crawler.ModelKey{Make: "bmw", Model: "x5"}
	boom := errors.New("disk full")
	store.FailWrites(key, boom)

	err := store.Write(context.Background(), crawler.ModelRecord{Make: "bmw", Model: "x5"})
	require.ErrorIs(t, err, boom)
	assert.Zero(t, store.Writes())
}
