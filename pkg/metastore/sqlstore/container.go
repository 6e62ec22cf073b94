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

// maxContainerNameLength bounds container names per the service contract.
const maxContainerNameLength = 63

// getContainer fetches a container row inside tx, translating a missing row
// to ContainerNotFound.
func getContainer(tx *gorm.DB, account, name, requestID string) (*models.Container, error) {
	var container models.Container
	err := tx.Where("account_name = ? AND container_name = ?", account, name).First(&container).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, meterrors.NewContainerNotFound(requestID)
		}
		return nil, err
	}
	return &container, nil
}

// ListContainers pages through an account's containers filtered by name
// prefix, ordered by the surrogate container id. The returned marker is the
// id of the last returned container, or zero when the listing is exhausted.
func (s *SQLStore) ListContainers(ctx context.Context, mc metastore.Context, account, prefix string, maxResults int, marker uint64) ([]*models.Container, uint64, error) {
	started := time.Now()
	var containers []*models.Container
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		query := tx.Where("account_name = ?", account)
		if prefix != "" {
			query = query.Where("container_name LIKE ?", prefix+"%")
		}
		return query.Where("container_id > ?", marker).
			Order("container_id").
			Limit(maxResults).
			Find(&containers).Error
	})
	s.observe("ListContainers", started, err)
	if err != nil {
		return nil, 0, err
	}

	var nextMarker uint64
	if len(containers) == maxResults && maxResults > 0 {
		nextMarker = containers[len(containers)-1].ContainerID
	}
	return containers, nextMarker, nil
}

// CreateContainer inserts a new container row.
func (s *SQLStore) CreateContainer(ctx context.Context, mc metastore.Context, container *models.Container) (*models.Container, error) {
	started := time.Now()
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if container.ContainerName == "" || len(container.ContainerName) > maxContainerNameLength {
			return meterrors.NewInvalidOperation(mc.RequestID, "container name must be between 1 and 63 characters")
		}
		if container.LastModified.IsZero() {
			container.LastModified = mc.StartTime
		}
		if container.Etag == "" {
			container.Etag = newEtag()
		}
		if err := tx.Create(container).Error; err != nil {
			if isUniqueConstraintError(err) {
				return meterrors.NewContainerAlreadyExists(mc.RequestID)
			}
			return err
		}
		return nil
	})
	s.observe("CreateContainer", started, err)
	if err != nil {
		return nil, err
	}
	return container, nil
}

// GetContainerProperties returns the container with its lease projected to
// the request time.
func (s *SQLStore) GetContainerProperties(ctx context.Context, mc metastore.Context, account, container, leaseID string) (*models.Container, error) {
	started := time.Now()
	row, err := s.readContainer(ctx, mc, account, container, leaseID)
	s.observe("GetContainerProperties", started, err)
	return row, err
}

// GetContainerACL returns the container including its signed-access policy
// list, lease projected to the request time.
func (s *SQLStore) GetContainerACL(ctx context.Context, mc metastore.Context, account, container, leaseID string) (*models.Container, error) {
	started := time.Now()
	row, err := s.readContainer(ctx, mc, account, container, leaseID)
	s.observe("GetContainerACL", started, err)
	return row, err
}

func (s *SQLStore) readContainer(ctx context.Context, mc metastore.Context, account, container, leaseID string) (*models.Container, error) {
	var row *models.Container
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		found, err := getContainer(tx, account, container, mc.RequestID)
		if err != nil {
			return err
		}
		projected := found.Lease.Lease().Project(mc.StartTime)
		if err := projected.ValidateRead(lease.ScopeContainer, leaseID, mc.RequestID); err != nil {
			return err
		}
		found.Lease = models.NewLeaseRecord(projected)
		row = found
		return nil
	})
	return row, err
}

// SetContainerMetadata replaces the container's user metadata, bumping the
// etag and last-modified time.
func (s *SQLStore) SetContainerMetadata(ctx context.Context, mc metastore.Context, account, container string, metadata map[string]string, leaseID string) (*models.Container, error) {
	started := time.Now()
	row, err := s.updateContainer(ctx, mc, account, container, leaseID, func(c *models.Container) {
		c.Metadata = metadata
	})
	s.observe("SetContainerMetadata", started, err)
	return row, err
}

// SetContainerACL atomically replaces the signed-access policy list and the
// public-access mode.
func (s *SQLStore) SetContainerACL(ctx context.Context, mc metastore.Context, account, container string, acl models.SignedIdentifiers, publicAccess *string, leaseID string) (*models.Container, error) {
	started := time.Now()
	row, err := s.updateContainer(ctx, mc, account, container, leaseID, func(c *models.Container) {
		c.ContainerACL = acl
		c.PublicAccess = publicAccess
	})
	s.observe("SetContainerACL", started, err)
	return row, err
}

func (s *SQLStore) updateContainer(ctx context.Context, mc metastore.Context, account, container, leaseID string, mutate func(*models.Container)) (*models.Container, error) {
	var row *models.Container
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		found, err := getContainer(tx, account, container, mc.RequestID)
		if err != nil {
			return err
		}
		projected := found.Lease.Lease().Project(mc.StartTime)
		if err := projected.ValidateWrite(lease.ScopeContainer, leaseID, mc.RequestID); err != nil {
			return err
		}

		mutate(found)
		found.LastModified = mc.StartTime
		found.Etag = newEtag()
		found.Lease = models.NewLeaseRecord(projected)
		if err := tx.Save(found).Error; err != nil {
			return err
		}
		row = found
		return nil
	})
	return row, err
}

// DeleteContainer removes the container row and tombstones every child blob
// and block row by bumping their deleting generation. Physical removal of
// the tombstoned rows is the external sweeper's job.
func (s *SQLStore) DeleteContainer(ctx context.Context, mc metastore.Context, account, container, leaseID string) error {
	started := time.Now()
	var tombstoned int64
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		found, err := getContainer(tx, account, container, mc.RequestID)
		if err != nil {
			return err
		}
		projected := found.Lease.Lease().Project(mc.StartTime)
		if err := projected.ValidateWrite(lease.ScopeContainer, leaseID, mc.RequestID); err != nil {
			return err
		}

		if err := tx.Delete(&models.Container{}, "container_id = ?", found.ContainerID).Error; err != nil {
			return err
		}

		blobs := tx.Model(&models.Blob{}).
			Where("account_name = ? AND container_name = ?", account, container).
			Update("deleting", gorm.Expr("deleting + 1"))
		if blobs.Error != nil {
			return blobs.Error
		}
		blocks := tx.Model(&models.Block{}).
			Where("account_name = ? AND container_name = ?", account, container).
			Update("deleting", gorm.Expr("deleting + 1"))
		if blocks.Error != nil {
			return blocks.Error
		}
		tombstoned = blobs.RowsAffected + blocks.RowsAffected
		return nil
	})
	s.metrics.addTombstones(tombstoned)
	s.observe("DeleteContainer", started, err)
	return err
}

// CheckContainerExist probes for the container, returning ContainerNotFound
// on a miss.
func (s *SQLStore) CheckContainerExist(ctx context.Context, mc metastore.Context, account, container string) error {
	started := time.Now()
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		_, err := getContainer(tx, account, container, mc.RequestID)
		return err
	})
	s.observe("CheckContainerExist", started, err)
	return err
}

// ============================================================================
// Container lease operations
// ============================================================================

// AcquireContainerLease grants a new container lease or idempotently
// refreshes a held one.
func (s *SQLStore) AcquireContainerLease(ctx context.Context, mc metastore.Context, account, container string, duration int32, proposedID string) (*models.Container, error) {
	started := time.Now()
	row, _, err := s.containerLeaseOp(ctx, mc, account, container, func(l lease.Lease) (lease.Lease, int32, error) {
		next, err := l.Acquire(mc.StartTime, duration, proposedID, mc.RequestID)
		return next, 0, err
	})
	s.observe("AcquireContainerLease", started, err)
	return row, err
}

// ReleaseContainerLease frees the container lease.
func (s *SQLStore) ReleaseContainerLease(ctx context.Context, mc metastore.Context, account, container, leaseID string) (*models.Container, error) {
	started := time.Now()
	row, _, err := s.containerLeaseOp(ctx, mc, account, container, func(l lease.Lease) (lease.Lease, int32, error) {
		next, err := l.Release(leaseID, mc.RequestID)
		return next, 0, err
	})
	s.observe("ReleaseContainerLease", started, err)
	return row, err
}

// RenewContainerLease extends the container lease.
func (s *SQLStore) RenewContainerLease(ctx context.Context, mc metastore.Context, account, container, leaseID string) (*models.Container, error) {
	started := time.Now()
	row, _, err := s.containerLeaseOp(ctx, mc, account, container, func(l lease.Lease) (lease.Lease, int32, error) {
		next, err := l.Renew(mc.StartTime, leaseID, mc.RequestID)
		return next, 0, err
	})
	s.observe("RenewContainerLease", started, err)
	return row, err
}

// BreakContainerLease starts or shortens the termination of the container
// lease and returns the seconds remaining until the break completes.
func (s *SQLStore) BreakContainerLease(ctx context.Context, mc metastore.Context, account, container string, breakPeriod *int32) (*models.Container, int32, error) {
	started := time.Now()
	row, leaseTime, err := s.containerLeaseOp(ctx, mc, account, container, func(l lease.Lease) (lease.Lease, int32, error) {
		return l.Break(mc.StartTime, breakPeriod, mc.RequestID)
	})
	s.observe("BreakContainerLease", started, err)
	return row, leaseTime, err
}

// ChangeContainerLease replaces the container lease id.
func (s *SQLStore) ChangeContainerLease(ctx context.Context, mc metastore.Context, account, container, leaseID, proposedID string) (*models.Container, error) {
	started := time.Now()
	row, _, err := s.containerLeaseOp(ctx, mc, account, container, func(l lease.Lease) (lease.Lease, int32, error) {
		next, err := l.Change(leaseID, proposedID, mc.RequestID)
		return next, 0, err
	})
	s.observe("ChangeContainerLease", started, err)
	return row, err
}

func (s *SQLStore) containerLeaseOp(ctx context.Context, mc metastore.Context, account, container string, fn func(lease.Lease) (lease.Lease, int32, error)) (*models.Container, int32, error) {
	var row *models.Container
	var leaseTime int32
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		found, err := getContainer(tx, account, container, mc.RequestID)
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
