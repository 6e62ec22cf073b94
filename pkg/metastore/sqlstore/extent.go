package sqlstore

import (
	"context"

	"github.com/marmos91/lazurite/pkg/metastore"
	"github.com/marmos91/lazurite/pkg/metastore/models"
)

// defaultExtentPageSize is the row page size used when the caller does not
// specify one.
const defaultExtentPageSize = 2000

// extentIterator walks every persistency chunk referenced by live metadata:
// first the committed blobs (single-shot persistency plus the committed
// block list), then the staged block rows. Pagination rides the surrogate
// ids, so concurrent inserts behind the cursor are simply not seen; the
// external collector must cross-check liveness before deleting anything.
type extentIterator struct {
	store    *SQLStore
	pageSize int

	blobsDone bool
	marker    uint64
}

var _ metastore.ExtentIterator = (*extentIterator)(nil)

// IterateExtents returns an iterator over every persistency chunk referenced
// by metadata. pageSize <= 0 selects the default page size.
func (s *SQLStore) IterateExtents(pageSize int) metastore.ExtentIterator {
	if pageSize <= 0 {
		pageSize = defaultExtentPageSize
	}
	return &extentIterator{store: s, pageSize: pageSize}
}

// Next returns the next batch of referenced chunks, or an empty batch once
// the scan is complete. A batch covers at least one page of rows, so it may
// hold more chunks than the page size when blobs carry long block lists.
// Pages whose rows reference no chunks (zero-length blobs) are skipped, so
// an empty batch is only ever the end of the scan.
func (it *extentIterator) Next(ctx context.Context) ([]models.Chunk, error) {
	if it.store.closed.Load() {
		return nil, ErrClosed
	}
	for !it.blobsDone {
		chunks, err := it.nextBlobPage(ctx)
		if err != nil {
			return nil, err
		}
		if len(chunks) > 0 {
			return chunks, nil
		}
	}
	for {
		chunks, done, err := it.nextBlockPage(ctx)
		if err != nil {
			return nil, err
		}
		if len(chunks) > 0 || done {
			return chunks, nil
		}
	}
}

func (it *extentIterator) nextBlobPage(ctx context.Context) ([]models.Chunk, error) {
	var blobs []models.Blob
	err := it.store.db.WithContext(ctx).
		Where("blob_id > ? AND deleting = 0 AND is_committed = ?", it.marker, true).
		Order("blob_id").
		Limit(it.pageSize).
		Find(&blobs).Error
	if err != nil {
		return nil, err
	}
	if len(blobs) < it.pageSize {
		it.blobsDone = true
		it.marker = 0
	}

	var chunks []models.Chunk
	for _, blob := range blobs {
		if !it.blobsDone {
			it.marker = blob.BlobID
		}
		if blob.Persistency != nil {
			chunks = append(chunks, *blob.Persistency)
		}
		for _, block := range blob.CommittedBlocksInOrder {
			chunks = append(chunks, block.Persistency)
		}
	}
	return chunks, nil
}

func (it *extentIterator) nextBlockPage(ctx context.Context) ([]models.Chunk, bool, error) {
	var blocks []models.Block
	err := it.store.db.WithContext(ctx).
		Where("id > ? AND deleting = 0", it.marker).
		Order("id").
		Limit(it.pageSize).
		Find(&blocks).Error
	if err != nil {
		return nil, false, err
	}

	chunks := make([]models.Chunk, 0, len(blocks))
	for _, block := range blocks {
		it.marker = block.ID
		chunks = append(chunks, block.Persistency)
	}
	return chunks, len(blocks) < it.pageSize, nil
}
