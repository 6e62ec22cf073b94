package sqlstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/marmos91/lazurite/pkg/metastore"
	"github.com/marmos91/lazurite/pkg/metastore/lease"
	"github.com/marmos91/lazurite/pkg/metastore/meterrors"
	"github.com/marmos91/lazurite/pkg/metastore/models"
)

// StageBlock upserts a staged block by name. Staging against a blob that
// currently exists is gated by the blob's write lease; the block itself
// carries no lease state.
func (s *SQLStore) StageBlock(ctx context.Context, mc metastore.Context, block *models.Block, leaseID string) error {
	started := time.Now()
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := requireContainer(tx, block.AccountName, block.ContainerName, mc.RequestID); err != nil {
			return err
		}

		live, err := getBlob(tx, block.AccountName, block.ContainerName, block.BlobName, "", mc.RequestID)
		if err != nil && !meterrors.IsCode(err, meterrors.ErrBlobNotFound) {
			return err
		}
		if live != nil {
			projected := live.Lease.Lease().Project(mc.StartTime)
			if err := projected.ValidateWrite(lease.ScopeBlob, leaseID, mc.RequestID); err != nil {
				return err
			}
		}

		var existing models.Block
		err = tx.Where(
			"account_name = ? AND container_name = ? AND blob_name = ? AND block_name = ? AND deleting = 0",
			block.AccountName, block.ContainerName, block.BlobName, block.BlockName,
		).First(&existing).Error
		switch {
		case err == nil:
			block.ID = existing.ID
		case errors.Is(err, gorm.ErrRecordNotFound):
			block.ID = 0
		default:
			return err
		}
		return tx.Save(block).Error
	})
	s.observe("StageBlock", started, err)
	return err
}

// GetBlockList returns the committed and/or staged blocks of a blob. The
// committed set comes from the live blob's committed block list; the staged
// set from the blob's live block rows in insertion order.
func (s *SQLStore) GetBlockList(ctx context.Context, mc metastore.Context, account, container, blob string, filter models.BlockListFilter, leaseID string) (*models.BlockList, error) {
	started := time.Now()
	var list *models.BlockList
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := requireContainer(tx, account, container, mc.RequestID); err != nil {
			return err
		}

		live, err := getBlob(tx, account, container, blob, "", mc.RequestID)
		if err != nil && !meterrors.IsCode(err, meterrors.ErrBlobNotFound) {
			return err
		}
		if live != nil {
			projected := live.Lease.Lease().Project(mc.StartTime)
			if err := projected.ValidateRead(lease.ScopeBlob, leaseID, mc.RequestID); err != nil {
				return err
			}
		}

		var staged []models.Block
		err = tx.Where(
			"account_name = ? AND container_name = ? AND blob_name = ? AND deleting = 0",
			account, container, blob,
		).Order("id").Find(&staged).Error
		if err != nil {
			return err
		}

		if live == nil && len(staged) == 0 {
			return meterrors.NewBlobNotFound(mc.RequestID)
		}

		result := &models.BlockList{}
		if filter != models.BlockListUncommitted && live != nil {
			result.CommittedBlocks = live.CommittedBlocksInOrder
		}
		if filter != models.BlockListCommitted {
			for _, b := range staged {
				result.UncommittedBlocks = append(result.UncommittedBlocks, models.CommittedBlock{
					Name:        b.BlockName,
					Size:        b.Size,
					Persistency: b.Persistency,
				})
			}
		}
		list = result
		return nil
	})
	s.observe("GetBlockList", started, err)
	if err != nil {
		return nil, err
	}
	return list, nil
}

// CommitBlockList builds the blob's committed block sequence from staged and
// previously committed blocks, upserts the live blob row, and tombstones
// every staged row of the blob.
func (s *SQLStore) CommitBlockList(ctx context.Context, mc metastore.Context, blob *models.Blob, entries []models.BlockListEntry, leaseID string) (*models.Blob, error) {
	started := time.Now()
	var tombstoned int64
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := requireContainer(tx, blob.AccountName, blob.ContainerName, mc.RequestID); err != nil {
			return err
		}

		committed := map[string]models.CommittedBlock{}
		live, err := getBlob(tx, blob.AccountName, blob.ContainerName, blob.BlobName, "", mc.RequestID)
		if err != nil && !meterrors.IsCode(err, meterrors.ErrBlobNotFound) {
			return err
		}
		if live != nil {
			projected := live.Lease.Lease().Project(mc.StartTime)
			if err := projected.ValidateWrite(lease.ScopeBlob, leaseID, mc.RequestID); err != nil {
				return err
			}
			for _, b := range live.CommittedBlocksInOrder {
				committed[b.Name] = b
			}
			blob.BlobID = live.BlobID
			blob.Lease = models.NewLeaseRecord(projected.CollapseAfterWrite())
		}

		// Staged rows in id order; a restaged block name overwrites the
		// earlier entry, so the latest upload wins.
		var staged []models.Block
		err = tx.Where(
			"account_name = ? AND container_name = ? AND blob_name = ? AND deleting = 0",
			blob.AccountName, blob.ContainerName, blob.BlobName,
		).Order("id").Find(&staged).Error
		if err != nil {
			return err
		}
		uncommitted := map[string]models.CommittedBlock{}
		for _, b := range staged {
			uncommitted[b.BlockName] = models.CommittedBlock{
				Name:        b.BlockName,
				Size:        b.Size,
				Persistency: b.Persistency,
			}
		}

		selected := make([]models.CommittedBlock, 0, len(entries))
		var contentLength uint64
		for _, entry := range entries {
			var block models.CommittedBlock
			var ok bool
			switch entry.CommitType {
			case models.CommitUncommitted:
				block, ok = uncommitted[entry.Name]
			case models.CommitCommitted:
				block, ok = committed[entry.Name]
			case models.CommitLatest:
				if block, ok = uncommitted[entry.Name]; !ok {
					block, ok = committed[entry.Name]
				}
			default:
				return meterrors.NewInvalidOperation(mc.RequestID, "unknown block commit type "+string(entry.CommitType))
			}
			if !ok {
				return meterrors.NewInvalidOperation(mc.RequestID, "block "+entry.Name+" not found in "+string(entry.CommitType)+" list")
			}
			selected = append(selected, block)
			contentLength += block.Size
		}

		blob.BlobType = models.BlobTypeBlock
		blob.IsCommitted = true
		blob.CommittedBlocksInOrder = selected
		blob.Persistency = nil
		blob.ContentProperties.ContentLength = contentLength
		if blob.CreationTime == nil {
			creation := mc.StartTime
			blob.CreationTime = &creation
		}
		if blob.LastModified.IsZero() {
			blob.LastModified = mc.StartTime
		}
		blob.Etag = newEtag()
		if err := tx.Save(blob).Error; err != nil {
			return err
		}

		res := tx.Model(&models.Block{}).
			Where("account_name = ? AND container_name = ? AND blob_name = ? AND deleting = 0",
				blob.AccountName, blob.ContainerName, blob.BlobName).
			Update("deleting", gorm.Expr("deleting + 1"))
		if res.Error != nil {
			return res.Error
		}
		tombstoned = res.RowsAffected
		return nil
	})
	s.metrics.addTombstones(tombstoned)
	s.observe("CommitBlockList", started, err)
	if err != nil {
		return nil, err
	}
	return blob, nil
}
