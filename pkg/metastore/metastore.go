// Package metastore defines the interface of the blob metadata store: the
// persistence and concurrency-control core behind the REST handlers of the
// emulator. Implementations live in subpackages (sqlstore for the
// SQL-backed store).
//
// Every operation takes a Context value carrying the request's start time
// and correlation id. The start time is the logical clock for all lease
// math: time-driven lease transitions are projected from it, never from the
// wall clock, so expiry is deterministic per request.
package metastore

import (
	"context"
	"time"

	"github.com/marmos91/lazurite/pkg/metastore/models"
)

// Context carries the per-request values every store operation needs.
type Context struct {
	// StartTime is the request's logical clock.
	StartTime time.Time

	// RequestID correlates errors and logs with the originating request.
	RequestID string
}

// ExtentIterator enumerates the persistency chunks referenced by live
// metadata in batches, for consumption by an external garbage collector.
// Next returns the next batch, or an empty batch once the scan is complete.
// Concurrent mutations are not prevented; the collector must cross-check
// liveness before deleting any chunk.
type ExtentIterator interface {
	Next(ctx context.Context) ([]models.Chunk, error)
}

// Store is the authoritative metadata store for accounts' service
// properties, containers, blobs (including snapshots) and blocks.
//
// Mutating operations run inside a single backing-store transaction and
// observe either the full effect or none. Domain objects returned from reads
// are value copies with no shared identity with persisted state.
type Store interface {
	// Close drains connections and marks the store closed. Subsequent
	// operations and Close calls fail.
	Close() error

	// GetServiceProperties returns the account's service properties, or nil
	// when none were ever set.
	GetServiceProperties(ctx context.Context, mc Context, account string) (*models.Service, error)

	// SetServiceProperties creates or replaces the account's service
	// properties.
	SetServiceProperties(ctx context.Context, mc Context, service *models.Service) (*models.Service, error)

	// ListContainers pages through an account's containers by name prefix.
	// The returned marker continues the listing; zero means exhausted.
	ListContainers(ctx context.Context, mc Context, account, prefix string, maxResults int, marker uint64) ([]*models.Container, uint64, error)

	// CreateContainer inserts a new container.
	CreateContainer(ctx context.Context, mc Context, container *models.Container) (*models.Container, error)

	// GetContainerProperties returns the container with its lease projected
	// to the request time.
	GetContainerProperties(ctx context.Context, mc Context, account, container, leaseID string) (*models.Container, error)

	// GetContainerACL returns the container including its access policy list.
	GetContainerACL(ctx context.Context, mc Context, account, container, leaseID string) (*models.Container, error)

	// SetContainerACL replaces the access policy list and public-access mode.
	SetContainerACL(ctx context.Context, mc Context, account, container string, acl models.SignedIdentifiers, publicAccess *string, leaseID string) (*models.Container, error)

	// SetContainerMetadata replaces the container's user metadata.
	SetContainerMetadata(ctx context.Context, mc Context, account, container string, metadata map[string]string, leaseID string) (*models.Container, error)

	// DeleteContainer removes the container row and tombstones all child
	// blob and block rows. Physical removal is an external concern.
	DeleteContainer(ctx context.Context, mc Context, account, container, leaseID string) error

	// CheckContainerExist probes for the container's existence.
	CheckContainerExist(ctx context.Context, mc Context, account, container string) error

	// AcquireContainerLease grants or refreshes the container lease.
	AcquireContainerLease(ctx context.Context, mc Context, account, container string, duration int32, proposedID string) (*models.Container, error)

	// ReleaseContainerLease frees the container lease.
	ReleaseContainerLease(ctx context.Context, mc Context, account, container, leaseID string) (*models.Container, error)

	// RenewContainerLease extends the container lease.
	RenewContainerLease(ctx context.Context, mc Context, account, container, leaseID string) (*models.Container, error)

	// BreakContainerLease starts or shortens lease termination and returns
	// the seconds remaining until the break completes.
	BreakContainerLease(ctx context.Context, mc Context, account, container string, breakPeriod *int32) (*models.Container, int32, error)

	// ChangeContainerLease replaces the container lease id.
	ChangeContainerLease(ctx context.Context, mc Context, account, container, leaseID, proposedID string) (*models.Container, error)

	// CreateBlob upserts the live blob row for a single-shot upload.
	CreateBlob(ctx context.Context, mc Context, blob *models.Blob, leaseID string) (*models.Blob, error)

	// DownloadBlob returns the full committed blob record.
	DownloadBlob(ctx context.Context, mc Context, account, container, blob, snapshot, leaseID string) (*models.Blob, error)

	// GetBlobProperties returns the committed blob record with its lease
	// projected to the request time.
	GetBlobProperties(ctx context.Context, mc Context, account, container, blob, snapshot, leaseID string) (*models.Blob, error)

	// ListBlobs pages through a container's committed blobs by name prefix.
	// The returned marker continues the listing; empty means exhausted.
	ListBlobs(ctx context.Context, mc Context, account, container, prefix, marker string, maxResults int, includeSnapshots bool) ([]*models.Blob, string, error)

	// ListAllBlobs pages through every account's blobs by surrogate id.
	ListAllBlobs(ctx context.Context, mc Context, maxResults int, marker uint64, includeSnapshots bool) ([]*models.Blob, uint64, error)

	// SetBlobHTTPHeaders replaces the blob's content properties, keeping the
	// content length.
	SetBlobHTTPHeaders(ctx context.Context, mc Context, account, container, blob string, props models.ContentProperties, leaseID string) (*models.Blob, error)

	// SetBlobMetadata replaces the blob's user metadata.
	SetBlobMetadata(ctx context.Context, mc Context, account, container, blob string, metadata map[string]string, leaseID string) (*models.Blob, error)

	// CreateSnapshot clones the live blob into an immutable snapshot row and
	// returns the snapshot identifier. A nil metadata copies the base
	// blob's metadata.
	CreateSnapshot(ctx context.Context, mc Context, account, container, blob string, metadata map[string]string, leaseID string) (string, error)

	// DeleteBlob tombstones the target blob, and depending on the snapshot
	// disposition, its snapshots and staged blocks.
	DeleteBlob(ctx context.Context, mc Context, account, container, blob, snapshot string, deleteSnapshots *models.DeleteSnapshotsOption, leaseID string) error

	// SetTier changes a block blob's access tier. The returned status is 202
	// for rehydration from archive, 200 otherwise.
	SetTier(ctx context.Context, mc Context, account, container, blob, snapshot, tier, leaseID string) (int, error)

	// GetBlobType returns the blob's type and commit state.
	GetBlobType(ctx context.Context, mc Context, account, container, blob, snapshot string) (string, bool, error)

	// AcquireBlobLease grants or refreshes the lease on the live blob.
	// Snapshots cannot be leased.
	AcquireBlobLease(ctx context.Context, mc Context, account, container, blob, snapshot string, duration int32, proposedID string) (*models.Blob, error)

	// ReleaseBlobLease frees the blob lease.
	ReleaseBlobLease(ctx context.Context, mc Context, account, container, blob, leaseID string) (*models.Blob, error)

	// RenewBlobLease extends the blob lease.
	RenewBlobLease(ctx context.Context, mc Context, account, container, blob, leaseID string) (*models.Blob, error)

	// BreakBlobLease starts or shortens lease termination and returns the
	// seconds remaining until the break completes.
	BreakBlobLease(ctx context.Context, mc Context, account, container, blob string, breakPeriod *int32) (*models.Blob, int32, error)

	// ChangeBlobLease replaces the blob lease id.
	ChangeBlobLease(ctx context.Context, mc Context, account, container, blob, leaseID, proposedID string) (*models.Blob, error)

	// StageBlock upserts a staged block by name.
	StageBlock(ctx context.Context, mc Context, block *models.Block, leaseID string) error

	// GetBlockList returns the committed and/or staged blocks of a blob.
	GetBlockList(ctx context.Context, mc Context, account, container, blob string, filter models.BlockListFilter, leaseID string) (*models.BlockList, error)

	// CommitBlockList builds the blob's committed block sequence from staged
	// and previously committed blocks and tombstones the staged rows.
	CommitBlockList(ctx context.Context, mc Context, blob *models.Blob, entries []models.BlockListEntry, leaseID string) (*models.Blob, error)

	// IterateExtents returns an iterator over every persistency chunk
	// referenced by metadata. pageSize <= 0 selects the default page size.
	IterateExtents(pageSize int) ExtentIterator

	// Declared but unimplemented operations. They return a NotImplemented
	// error and perform no state mutation.

	UndeleteBlob(ctx context.Context, mc Context, account, container, blob string) error
	StartCopyFromURL(ctx context.Context, mc Context, source, account, container, blob string) error
	AbortCopyFromURL(ctx context.Context, mc Context, account, container, blob, copyID string) error
	UploadPages(ctx context.Context, mc Context, account, container, blob string, start, end uint64) error
	ClearPages(ctx context.Context, mc Context, account, container, blob string, start, end uint64) error
	GetPageRanges(ctx context.Context, mc Context, account, container, blob, snapshot string) error
	ResizePageBlob(ctx context.Context, mc Context, account, container, blob string, size uint64) error
	UpdateSequenceNumber(ctx context.Context, mc Context, account, container, blob string, action string, number int64) error
	AppendBlock(ctx context.Context, mc Context, account, container, blob string) error
}
