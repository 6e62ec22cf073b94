package models

import (
	"time"

	"github.com/marmos91/lazurite/pkg/metastore/lease"
)

// Chunk references payload bytes held by the external extent store. The
// metadata store never dereferences it.
type Chunk struct {
	StoreID string `json:"storeId"`
	Offset  uint64 `json:"offset"`
	Length  uint64 `json:"length"`
}

// CommittedBlock is one entry of a block blob's committed block list.
type CommittedBlock struct {
	Name        string `json:"name"`
	Size        uint64 `json:"size"`
	Persistency Chunk  `json:"persistency"`
}

// ContentProperties holds the HTTP content attributes of a blob.
type ContentProperties struct {
	ContentLength      uint64 `json:"contentLength,omitempty"`
	ContentType        string `json:"contentType,omitempty"`
	ContentEncoding    string `json:"contentEncoding,omitempty"`
	ContentLanguage    string `json:"contentLanguage,omitempty"`
	ContentMD5         Binary `json:"contentMD5,omitempty"`
	ContentDisposition string `json:"contentDisposition,omitempty"`
	CacheControl       string `json:"cacheControl,omitempty"`
}

// SignedIdentifier is one entry of a container's access policy list.
type SignedIdentifier struct {
	ID           string       `json:"id"`
	AccessPolicy AccessPolicy `json:"accessPolicy"`
}

// AccessPolicy is the policy window of a signed identifier. Start and expiry
// are kept in their REST string form.
type AccessPolicy struct {
	Start      string `json:"start,omitempty"`
	Expiry     string `json:"expiry,omitempty"`
	Permission string `json:"permission"`
}

// SignedIdentifiers is a container ACL.
type SignedIdentifiers []SignedIdentifier

// LoggingProperties configures storage analytics logging.
type LoggingProperties struct {
	Version         string           `json:"version"`
	Delete          bool             `json:"deleteProperty"`
	Read            bool             `json:"read"`
	Write           bool             `json:"write"`
	RetentionPolicy *RetentionPolicy `json:"retentionPolicy,omitempty"`
}

// MetricsProperties configures hourly or minute metrics aggregation.
type MetricsProperties struct {
	Version         string           `json:"version,omitempty"`
	Enabled         bool             `json:"enabled"`
	IncludeAPIs     *bool            `json:"includeAPIs,omitempty"`
	RetentionPolicy *RetentionPolicy `json:"retentionPolicy,omitempty"`
}

// StaticWebsiteProperties configures static-website hosting for the account.
type StaticWebsiteProperties struct {
	Enabled              bool    `json:"enabled"`
	IndexDocument        *string `json:"indexDocument,omitempty"`
	ErrorDocument404Path *string `json:"errorDocument404Path,omitempty"`
}

// RetentionPolicy bounds how long analytics data or deleted blobs are kept.
type RetentionPolicy struct {
	Enabled bool   `json:"enabled"`
	Days    *int32 `json:"days,omitempty"`
}

// DeleteSnapshotsOption selects how DeleteBlob treats snapshots of the
// target. A nil option on a base blob with snapshots is an error.
type DeleteSnapshotsOption string

const (
	// DeleteSnapshotsInclude deletes the base blob and all its snapshots.
	DeleteSnapshotsInclude DeleteSnapshotsOption = "include"

	// DeleteSnapshotsOnly deletes only the snapshots, keeping the base blob.
	DeleteSnapshotsOnly DeleteSnapshotsOption = "only"
)

// BlockCommitType selects the source list a block list entry is resolved
// from during a commit.
type BlockCommitType string

const (
	// CommitUncommitted resolves the block from the staged (uncommitted) set.
	CommitUncommitted BlockCommitType = "uncommitted"

	// CommitCommitted resolves the block from the current committed list.
	CommitCommitted BlockCommitType = "committed"

	// CommitLatest prefers the staged block, falling back to the committed one.
	CommitLatest BlockCommitType = "latest"
)

// BlockListEntry is one caller-supplied entry of a commit block list.
type BlockListEntry struct {
	Name       string
	CommitType BlockCommitType
}

// BlockListFilter selects which block sets GetBlockList returns.
type BlockListFilter string

const (
	// BlockListCommitted returns only committed blocks.
	BlockListCommitted BlockListFilter = "committed"

	// BlockListUncommitted returns only staged blocks.
	BlockListUncommitted BlockListFilter = "uncommitted"

	// BlockListAll returns both sets.
	BlockListAll BlockListFilter = "all"
)

// BlockList is the result of GetBlockList.
type BlockList struct {
	CommittedBlocks   []CommittedBlock
	UncommittedBlocks []CommittedBlock
}

// LeaseRecord is the embedded, persisted form of a lease. Field names match
// the JSON layout used by existing databases.
type LeaseRecord struct {
	LeaseID              string     `json:"leaseId,omitempty"`
	LeaseStatus          string     `json:"leaseStatus,omitempty"`
	LeaseState           string     `json:"leaseState,omitempty"`
	LeaseDurationType    string     `json:"leaseDurationType,omitempty"`
	LeaseDurationSeconds int32      `json:"leaseDurationSeconds,omitempty"`
	LeaseExpireTime      *time.Time `json:"leaseExpireTime,omitempty"`
	LeaseBreakTime       *time.Time `json:"leaseBreakTime,omitempty"`
}

// NewLeaseRecord converts a lease value to its persisted form.
func NewLeaseRecord(l lease.Lease) LeaseRecord {
	return LeaseRecord{
		LeaseID:              l.ID,
		LeaseStatus:          l.Status().String(),
		LeaseState:           l.State.String(),
		LeaseDurationType:    l.DurationType.String(),
		LeaseDurationSeconds: l.DurationSeconds,
		LeaseExpireTime:      l.ExpireTime,
		LeaseBreakTime:       l.BreakTime,
	}
}

// Lease materializes the persisted record as a lease value.
func (r LeaseRecord) Lease() lease.Lease {
	return lease.Lease{
		ID:              r.LeaseID,
		State:           lease.ParseState(r.LeaseState),
		DurationType:    lease.ParseDurationType(r.LeaseDurationType),
		DurationSeconds: r.LeaseDurationSeconds,
		ExpireTime:      r.LeaseExpireTime,
		BreakTime:       r.LeaseBreakTime,
	}
}
