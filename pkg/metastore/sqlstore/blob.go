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

// getBlob fetches the live (deleting = 0) blob row for the exact
// (account, container, name, snapshot) quadruple, translating a missing row
// to BlobNotFound.
func getBlob(tx *gorm.DB, account, container, blob, snapshot, requestID string) (*models.Blob, error) {
	var row models.Blob
	err := tx.Where(
		"account_name = ? AND container_name = ? AND blob_name = ? AND snapshot = ? AND deleting = 0",
		account, container, blob, snapshot,
	).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, meterrors.NewBlobNotFound(requestID)
		}
		return nil, err
	}
	return &row, nil
}

// requireContainer verifies the parent container exists inside tx.
func requireContainer(tx *gorm.DB, account, container, requestID string) error {
	_, err := getContainer(tx, account, container, requestID)
	return err
}

// CreateBlob upserts the live blob row for a single-shot upload. When a live
// row already exists its write lease is validated, archived blobs are
// rejected, and the surrogate id is preserved so the row is replaced in
// place.
func (s *SQLStore) CreateBlob(ctx context.Context, mc metastore.Context, blob *models.Blob, leaseID string) (*models.Blob, error) {
	started := time.Now()
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := requireContainer(tx, blob.AccountName, blob.ContainerName, mc.RequestID); err != nil {
			return err
		}

		existing, err := getBlob(tx, blob.AccountName, blob.ContainerName, blob.BlobName, blob.Snapshot, mc.RequestID)
		if err != nil && !meterrors.IsCode(err, meterrors.ErrBlobNotFound) {
			return err
		}
		if existing != nil {
			projected := existing.Lease.Lease().Project(mc.StartTime)
			if err := projected.ValidateWrite(lease.ScopeBlob, leaseID, mc.RequestID); err != nil {
				return err
			}
			if existing.AccessTier != nil && *existing.AccessTier == models.AccessTierArchive {
				return meterrors.NewBlobArchived(mc.RequestID)
			}
			blob.BlobID = existing.BlobID
			blob.Lease = models.NewLeaseRecord(projected.CollapseAfterWrite())
		}

		if blob.CreationTime == nil {
			creation := mc.StartTime
			blob.CreationTime = &creation
		}
		if blob.LastModified.IsZero() {
			blob.LastModified = mc.StartTime
		}
		if blob.Etag == "" {
			blob.Etag = newEtag()
		}
		return tx.Save(blob).Error
	})
	s.observe("CreateBlob", started, err)
	if err != nil {
		return nil, err
	}
	return blob, nil
}

// DownloadBlob returns the full committed blob record with its lease
// projected to the request time.
func (s *SQLStore) DownloadBlob(ctx context.Context, mc metastore.Context, account, container, blob, snapshot, leaseID string) (*models.Blob, error) {
	started := time.Now()
	row, err := s.readBlob(ctx, mc, account, container, blob, snapshot, leaseID)
	s.observe("DownloadBlob", started, err)
	return row, err
}

// GetBlobProperties returns the committed blob record with its lease
// projected to the request time.
func (s *SQLStore) GetBlobProperties(ctx context.Context, mc metastore.Context, account, container, blob, snapshot, leaseID string) (*models.Blob, error) {
	started := time.Now()
	row, err := s.readBlob(ctx, mc, account, container, blob, snapshot, leaseID)
	s.observe("GetBlobProperties", started, err)
	return row, err
}

func (s *SQLStore) readBlob(ctx context.Context, mc metastore.Context, account, container, blob, snapshot, leaseID string) (*models.Blob, error) {
	var row *models.Blob
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := requireContainer(tx, account, container, mc.RequestID); err != nil {
			return err
		}
		found, err := getBlob(tx, account, container, blob, snapshot, mc.RequestID)
		if err != nil {
			return err
		}
		if !found.IsCommitted {
			return meterrors.NewBlobNotFound(mc.RequestID)
		}
		projected := found.Lease.Lease().Project(mc.StartTime)
		if err := projected.ValidateRead(lease.ScopeBlob, leaseID, mc.RequestID); err != nil {
			return err
		}
		found.Lease = models.NewLeaseRecord(projected)
		row = found
		return nil
	})
	return row, err
}

// ListBlobs pages through a container's committed live blobs by name prefix,
// ordered by blob name. The returned marker is the last blob name when more
// results exist, detected by over-fetching a single extra row.
//
// The cursor is name-valued, so when a listing with snapshots cuts a page
// boundary inside one blob's snapshot run, the continuation resumes after
// that blob name and the remaining snapshots of it are not returned.
func (s *SQLStore) ListBlobs(ctx context.Context, mc metastore.Context, account, container, prefix, marker string, maxResults int, includeSnapshots bool) ([]*models.Blob, string, error) {
	started := time.Now()
	var blobs []*models.Blob
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := requireContainer(tx, account, container, mc.RequestID); err != nil {
			return err
		}

		query := tx.Where(
			"account_name = ? AND container_name = ? AND deleting = 0 AND is_committed = ?",
			account, container, true,
		)
		if prefix != "" {
			query = query.Where("blob_name LIKE ?", prefix+"%")
		}
		if marker != "" {
			query = query.Where("blob_name > ?", marker)
		}
		if !includeSnapshots {
			query = query.Where("snapshot = ''")
		}
		return query.Order("blob_name").Order("snapshot").
			Limit(maxResults + 1).
			Find(&blobs).Error
	})
	s.observe("ListBlobs", started, err)
	if err != nil {
		return nil, "", err
	}

	var nextMarker string
	if maxResults > 0 && len(blobs) > maxResults {
		blobs = blobs[:maxResults]
		nextMarker = blobs[maxResults-1].BlobName
	}
	return blobs, nextMarker, nil
}

// ListAllBlobs pages through every committed live blob across accounts and
// containers, ordered by the surrogate blob id. The returned marker is the
// last blob id, or zero when exhausted.
func (s *SQLStore) ListAllBlobs(ctx context.Context, mc metastore.Context, maxResults int, marker uint64, includeSnapshots bool) ([]*models.Blob, uint64, error) {
	started := time.Now()
	var blobs []*models.Blob
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		query := tx.Where("blob_id > ? AND deleting = 0 AND is_committed = ?", marker, true)
		if !includeSnapshots {
			query = query.Where("snapshot = ''")
		}
		return query.Order("blob_id").Limit(maxResults).Find(&blobs).Error
	})
	s.observe("ListAllBlobs", started, err)
	if err != nil {
		return nil, 0, err
	}

	var nextMarker uint64
	if maxResults > 0 && len(blobs) == maxResults {
		nextMarker = blobs[len(blobs)-1].BlobID
	}
	return blobs, nextMarker, nil
}

// SetBlobHTTPHeaders replaces the live blob's content properties, keeping
// the stored content length, and refreshes etag and last-modified.
func (s *SQLStore) SetBlobHTTPHeaders(ctx context.Context, mc metastore.Context, account, container, blob string, props models.ContentProperties, leaseID string) (*models.Blob, error) {
	started := time.Now()
	row, err := s.updateBlob(ctx, mc, account, container, blob, leaseID, func(b *models.Blob) {
		props.ContentLength = b.ContentProperties.ContentLength
		b.ContentProperties = props
	})
	s.observe("SetBlobHTTPHeaders", started, err)
	return row, err
}

// SetBlobMetadata replaces the live blob's user metadata. A lease that
// expired or finished breaking during the write collapses to available.
func (s *SQLStore) SetBlobMetadata(ctx context.Context, mc metastore.Context, account, container, blob string, metadata map[string]string, leaseID string) (*models.Blob, error) {
	started := time.Now()
	row, err := s.updateBlob(ctx, mc, account, container, blob, leaseID, func(b *models.Blob) {
		b.Metadata = metadata
	})
	s.observe("SetBlobMetadata", started, err)
	return row, err
}

func (s *SQLStore) updateBlob(ctx context.Context, mc metastore.Context, account, container, blob, leaseID string, mutate func(*models.Blob)) (*models.Blob, error) {
	var row *models.Blob
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := requireContainer(tx, account, container, mc.RequestID); err != nil {
			return err
		}
		found, err := getBlob(tx, account, container, blob, "", mc.RequestID)
		if err != nil {
			return err
		}
		projected := found.Lease.Lease().Project(mc.StartTime)
		if err := projected.ValidateWrite(lease.ScopeBlob, leaseID, mc.RequestID); err != nil {
			return err
		}

		mutate(found)
		found.LastModified = mc.StartTime
		found.Etag = newEtag()
		found.Lease = models.NewLeaseRecord(projected.CollapseAfterWrite())
		if err := tx.Save(found).Error; err != nil {
			return err
		}
		row = found
		return nil
	})
	return row, err
}

// CreateSnapshot clones the live blob into an immutable snapshot row with
// cleared lease fields and returns the snapshot identifier. A nil metadata
// carries the base blob's metadata into the snapshot.
func (s *SQLStore) CreateSnapshot(ctx context.Context, mc metastore.Context, account, container, blob string, metadata map[string]string, leaseID string) (string, error) {
	started := time.Now()
	var snapshot string
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := requireContainer(tx, account, container, mc.RequestID); err != nil {
			return err
		}
		found, err := getBlob(tx, account, container, blob, "", mc.RequestID)
		if err != nil {
			return err
		}
		projected := found.Lease.Lease().Project(mc.StartTime)
		if err := projected.ValidateRead(lease.ScopeBlob, leaseID, mc.RequestID); err != nil {
			return err
		}

		clone := *found
		clone.BlobID = 0
		clone.Snapshot = models.FormatSnapshot(mc.StartTime)
		clone.Lease = models.LeaseRecord{}
		if metadata != nil {
			clone.Metadata = metadata
		}
		if err := tx.Create(&clone).Error; err != nil {
			return err
		}
		snapshot = clone.Snapshot
		return nil
	})
	s.observe("CreateSnapshot", started, err)
	if err != nil {
		return "", err
	}
	return snapshot, nil
}

// DeleteBlob tombstones the target blob row. For a base blob the snapshot
// disposition selects whether snapshots and staged block rows are
// tombstoned alongside; a snapshot target accepts no disposition.
func (s *SQLStore) DeleteBlob(ctx context.Context, mc metastore.Context, account, container, blob, snapshot string, deleteSnapshots *models.DeleteSnapshotsOption, leaseID string) error {
	started := time.Now()
	var tombstoned int64
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := requireContainer(tx, account, container, mc.RequestID); err != nil {
			return err
		}
		found, err := getBlob(tx, account, container, blob, snapshot, mc.RequestID)
		if err != nil {
			return err
		}

		if snapshot != "" {
			if deleteSnapshots != nil {
				return meterrors.NewInvalidOperation(mc.RequestID, "delete-snapshots option is not applicable to a snapshot")
			}
			res := tx.Model(&models.Blob{}).
				Where("blob_id = ?", found.BlobID).
				Update("deleting", gorm.Expr("deleting + 1"))
			tombstoned = res.RowsAffected
			return res.Error
		}

		projected := found.Lease.Lease().Project(mc.StartTime)
		if err := projected.ValidateWrite(lease.ScopeBlob, leaseID, mc.RequestID); err != nil {
			return err
		}

		var snapshots int64
		err = tx.Model(&models.Blob{}).
			Where("account_name = ? AND container_name = ? AND blob_name = ? AND snapshot <> '' AND deleting = 0",
				account, container, blob).
			Count(&snapshots).Error
		if err != nil {
			return err
		}

		option := ""
		if deleteSnapshots != nil {
			option = string(*deleteSnapshots)
		}
		switch models.DeleteSnapshotsOption(option) {
		case "":
			if snapshots > 0 {
				return meterrors.NewSnapshotsPresent(mc.RequestID)
			}
			return s.tombstoneBlob(tx, account, container, blob, false, &tombstoned)
		case models.DeleteSnapshotsInclude:
			return s.tombstoneBlob(tx, account, container, blob, false, &tombstoned)
		case models.DeleteSnapshotsOnly:
			return s.tombstoneBlob(tx, account, container, blob, true, &tombstoned)
		default:
			return meterrors.NewInvalidOperation(mc.RequestID, "unknown delete-snapshots option "+option)
		}
	})
	s.metrics.addTombstones(tombstoned)
	s.observe("DeleteBlob", started, err)
	return err
}

// tombstoneBlob bumps the deleting generation on the blob's rows. With
// snapshotsOnly it touches only snapshot rows; otherwise it covers the base
// row, every snapshot and the blob's staged block rows.
func (s *SQLStore) tombstoneBlob(tx *gorm.DB, account, container, blob string, snapshotsOnly bool, tombstoned *int64) error {
	rows := tx.Model(&models.Blob{}).
		Where("account_name = ? AND container_name = ? AND blob_name = ? AND deleting = 0", account, container, blob)
	if snapshotsOnly {
		rows = rows.Where("snapshot <> ''")
	}
	res := rows.Update("deleting", gorm.Expr("deleting + 1"))
	if res.Error != nil {
		return res.Error
	}
	*tombstoned += res.RowsAffected

	if snapshotsOnly {
		return nil
	}
	blocks := tx.Model(&models.Block{}).
		Where("account_name = ? AND container_name = ? AND blob_name = ?", account, container, blob).
		Update("deleting", gorm.Expr("deleting + 1"))
	if blocks.Error != nil {
		return blocks.Error
	}
	*tombstoned += blocks.RowsAffected
	return nil
}

// SetTier changes a block blob's access tier. Rehydrating out of the archive
// tier is asynchronous on the real service, so those transitions report 202;
// every other accepted transition reports 200.
func (s *SQLStore) SetTier(ctx context.Context, mc metastore.Context, account, container, blob, snapshot, tier, leaseID string) (int, error) {
	started := time.Now()
	status := 0
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := requireContainer(tx, account, container, mc.RequestID); err != nil {
			return err
		}
		if snapshot != "" {
			return meterrors.NewBlobSnapshotsPresent(mc.RequestID)
		}
		found, err := getBlob(tx, account, container, blob, "", mc.RequestID)
		if err != nil {
			return err
		}
		projected := found.Lease.Lease().Project(mc.StartTime)
		if err := projected.ValidateWrite(lease.ScopeBlob, leaseID, mc.RequestID); err != nil {
			return err
		}
		if found.BlobType != models.BlobTypeBlock {
			return meterrors.NewInvalidBlobType(mc.RequestID)
		}

		switch tier {
		case models.AccessTierHot, models.AccessTierCool, models.AccessTierArchive:
		default:
			return meterrors.NewInvalidOperation(mc.RequestID, "unsupported access tier "+tier)
		}

		status = 200
		if found.AccessTier != nil && *found.AccessTier == models.AccessTierArchive && tier != models.AccessTierArchive {
			status = 202
		}

		changeTime := mc.StartTime
		found.AccessTier = &tier
		found.AccessTierInferred = false
		found.AccessTierChangeTime = &changeTime
		found.Lease = models.NewLeaseRecord(projected.CollapseAfterWrite())
		return tx.Save(found).Error
	})
	s.observe("SetTier", started, err)
	if err != nil {
		return 0, err
	}
	return status, nil
}

// GetBlobType returns the blob's type and commit state without lease gating.
func (s *SQLStore) GetBlobType(ctx context.Context, mc metastore.Context, account, container, blob, snapshot string) (string, bool, error) {
	started := time.Now()
	var blobType string
	var isCommitted bool
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := requireContainer(tx, account, container, mc.RequestID); err != nil {
			return err
		}
		found, err := getBlob(tx, account, container, blob, snapshot, mc.RequestID)
		if err != nil {
			return err
		}
		blobType = found.BlobType
		isCommitted = found.IsCommitted
		return nil
	})
	s.observe("GetBlobType", started, err)
	if err != nil {
		return "", false, err
	}
	return blobType, isCommitted, nil
}

// ============================================================================
// Blob lease operations
// ============================================================================

// AcquireBlobLease grants a new lease on the live blob or idempotently
// refreshes a held one. Snapshots cannot be leased.
func (s *SQLStore) AcquireBlobLease(ctx context.Context, mc metastore.Context, account, container, blob, snapshot string, duration int32, proposedID string) (*models.Blob, error) {
	started := time.Now()
	if snapshot != "" {
		err := meterrors.NewBlobSnapshotsPresent(mc.RequestID)
		s.observe("AcquireBlobLease", started, err)
		return nil, err
	}
	row, _, err := s.blobLeaseOp(ctx, mc, account, container, blob, func(l lease.Lease) (lease.Lease, int32, error) {
		next, err := l.Acquire(mc.StartTime, duration, proposedID, mc.RequestID)
		return next, 0, err
	})
	s.observe("AcquireBlobLease", started, err)
	return row, err
}

// ReleaseBlobLease frees the blob lease.
func (s *SQLStore) ReleaseBlobLease(ctx context.Context, mc metastore.Context, account, container, blob, leaseID string) (*models.Blob, error) {
	started := time.Now()
	row, _, err := s.blobLeaseOp(ctx, mc, account, container, blob, func(l lease.Lease) (lease.Lease, int32, error) {
		next, err := l.Release(leaseID, mc.RequestID)
		return next, 0, err
	})
	s.observe("ReleaseBlobLease", started, err)
	return row, err
}

// RenewBlobLease extends the blob lease.
func (s *SQLStore) RenewBlobLease(ctx context.Context, mc metastore.Context, account, container, blob, leaseID string) (*models.Blob, error) {
	started := time.Now()
	row, _, err := s.blobLeaseOp(ctx, mc, account, container, blob, func(l lease.Lease) (lease.Lease, int32, error) {
		next, err := l.Renew(mc.StartTime, leaseID, mc.RequestID)
		return next, 0, err
	})
	s.observe("RenewBlobLease", started, err)
	return row, err
}

// BreakBlobLease starts or shortens the termination of the blob lease and
// returns the seconds remaining until the break completes.
func (s *SQLStore) BreakBlobLease(ctx context.Context, mc metastore.Context, account, container, blob string, breakPeriod *int32) (*models.Blob, int32, error) {
	started := time.Now()
	row, leaseTime, err := s.blobLeaseOp(ctx, mc, account, container, blob, func(l lease.Lease) (lease.Lease, int32, error) {
		return l.Break(mc.StartTime, breakPeriod, mc.RequestID)
	})
	s.observe("BreakBlobLease", started, err)
	return row, leaseTime, err
}

// ChangeBlobLease replaces the blob lease id.
func (s *SQLStore) ChangeBlobLease(ctx context.Context, mc metastore.Context, account, container, blob, leaseID, proposedID string) (*models.Blob, error) {
	started := time.Now()
	row, _, err := s.blobLeaseOp(ctx, mc, account, container, blob, func(l lease.Lease) (lease.Lease, int32, error) {
		next, err := l.Change(leaseID, proposedID, mc.RequestID)
		return next, 0, err
	})
	s.observe("ChangeBlobLease", started, err)
	return row, err
}

func (s *SQLStore) blobLeaseOp(ctx context.Context, mc metastore.Context, account, container, blob string, fn func(lease.Lease) (lease.Lease, int32, error)) (*models.Blob, int32, error) {
	var row *models.Blob
	var leaseTime int32
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := requireContainer(tx, account, container, mc.RequestID); err != nil {
			return err
		}
		found, err := getBlob(tx, account, container, blob, "", mc.RequestID)
		if err != nil {
			return err
		}
		projected := found.Lease.Lease().Project(mc.StartTime)
		next, lt, err := fn(projected)
		if err != nil {
			return err
		}

		found.Lease = models.NewLeaseRecord(next)
		if err := tx.Save(found).Error; err != nil {
			return err
		}
		row = found
		leaseTime = lt
		return nil
	})
	return row, leaseTime, err
}
