package sqlstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/lazurite/pkg/metastore/models"
)

// drainExtents collects every chunk store id until the iterator reports an
// empty batch.
func drainExtents(t *testing.T, store *SQLStore, pageSize int) []string {
	t.Helper()
	it := store.IterateExtents(pageSize)
	var ids []string
	for {
		batch, err := it.Next(context.Background())
		require.NoError(t, err)
		if len(batch) == 0 {
			return ids
		}
		for _, chunk := range batch {
			ids = append(ids, chunk.StoreID)
		}
	}
}

func TestIterateExtents_CoversBlobsAndStagedBlocks(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	mustCreateContainer(t, store, "pics")

	// Single-shot blob referencing one extent.
	mustCreateBlob(t, store, "pics", "single.txt")

	// Block blob built from two staged extents.
	mustStageBlock(t, store, "pics", "big.bin", "block-1", 100)
	mustStageBlock(t, store, "pics", "big.bin", "block-2", 50)
	_, err := store.CommitBlockList(ctx, req(), &models.Blob{
		AccountName:   testAccount,
		ContainerName: "pics",
		BlobName:      "big.bin",
	}, []models.BlockListEntry{
		{Name: "block-1", CommitType: models.CommitLatest},
		{Name: "block-2", CommitType: models.CommitLatest},
	}, "")
	require.NoError(t, err)

	// A staged-but-uncommitted extent is still referenced.
	mustStageBlock(t, store, "pics", "pending.bin", "block-3", 10)

	ids := drainExtents(t, store, 0)
	assert.ElementsMatch(t, []string{
		"extent-single.txt",
		"extent-block-1",
		"extent-block-2",
		"extent-block-3",
	}, ids)
}

func TestIterateExtents_SkipsTombstonedRows(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	mustCreateContainer(t, store, "pics")
	mustCreateBlob(t, store, "pics", "keep.txt")
	mustCreateBlob(t, store, "pics", "drop.txt")
	mustStageBlock(t, store, "pics", "drop.txt", "block-1", 10)

	require.NoError(t, store.DeleteBlob(ctx, req(), testAccount, "pics", "drop.txt", "", nil, ""))

	ids := drainExtents(t, store, 0)
	assert.ElementsMatch(t, []string{"extent-keep.txt"}, ids)
}

func TestIterateExtents_SmallPagesSeeEverything(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	mustCreateContainer(t, store, "pics")
	want := make([]string, 0, 5)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		mustCreateBlob(t, store, "pics", name)
		want = append(want, "extent-"+name)
	}

	ids := drainExtents(t, store, 2)
	assert.ElementsMatch(t, want, ids)
}

func TestIterateExtents_SkipsChunklessBlobPages(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	mustCreateContainer(t, store, "pics")

	// Zero-length blobs reference no extents; with a page size of one they
	// fill whole pages, and the scan must keep going past them.
	for _, name := range []string{"empty1.txt", "empty2.txt"} {
		_, err := store.CreateBlob(ctx, req(), &models.Blob{
			AccountName:   testAccount,
			ContainerName: "pics",
			BlobName:      name,
			BlobType:      models.BlobTypeBlock,
			IsCommitted:   true,
		}, "")
		require.NoError(t, err)
	}
	mustCreateBlob(t, store, "pics", "real.txt")
	mustStageBlock(t, store, "pics", "pending.bin", "block-1", 10)

	ids := drainExtents(t, store, 1)
	assert.ElementsMatch(t, []string{"extent-real.txt", "extent-block-1"}, ids)
}

func TestIterateExtents_ClosedStore(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	it := store.IterateExtents(0)
	require.NoError(t, store.Close())

	_, err := it.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestIterateExtents_EmptyStore(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	batch, err := store.IterateExtents(0).Next(context.Background())
	require.NoError(t, err)
	assert.Empty(t, batch)
}
