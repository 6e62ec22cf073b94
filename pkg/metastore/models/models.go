// Package models defines the persisted entities of the blob metadata store
// and the value serialization for their nested structures.
//
// Four tables back the store: Services, Containers, Blobs and Blocks. Nested
// attributes (metadata, ACLs, CORS rules, content properties, the embedded
// lease record, persistency chunks and the committed block list) are stored
// as JSON text columns so the schema stays compatible with databases written
// by earlier versions of the emulator.
package models

import (
	"time"

	"github.com/marmos91/lazurite/pkg/metastore/cors"
)

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&Service{},
		&Container{},
		&Blob{},
		&Block{},
	}
}

// Blob type values.
const (
	BlobTypeBlock  = "BlockBlob"
	BlobTypePage   = "PageBlob"
	BlobTypeAppend = "AppendBlob"
)

// Access tier values accepted by block blobs.
const (
	AccessTierHot     = "Hot"
	AccessTierCool    = "Cool"
	AccessTierArchive = "Archive"
)

// Public access modes for containers.
const (
	PublicAccessContainer = "container"
	PublicAccessBlob      = "blob"
)

// Service holds the per-account service properties. One row per account,
// created on first set and updated in place; never deleted by the store.
type Service struct {
	AccountName           string                   `gorm:"primaryKey;size:255"`
	DefaultServiceVersion *string                  `gorm:"size:64"`
	Cors                  []cors.Rule              `gorm:"serializer:json;type:text"`
	Logging               *LoggingProperties       `gorm:"serializer:json;type:text"`
	HourMetrics           *MetricsProperties       `gorm:"serializer:json;type:text"`
	MinuteMetrics         *MetricsProperties       `gorm:"serializer:json;type:text"`
	StaticWebsite         *StaticWebsiteProperties `gorm:"serializer:json;type:text"`
	DeleteRetentionPolicy *RetentionPolicy         `gorm:"serializer:json;type:text"`
}

// TableName returns the table name for Service.
func (Service) TableName() string { return "services" }

// Container is a named collection of blobs inside an account. The surrogate
// ContainerID doubles as the list-continuation cursor.
type Container struct {
	ContainerID           uint64            `gorm:"primaryKey;autoIncrement"`
	AccountName           string            `gorm:"size:255;uniqueIndex:idx_containers_identity,priority:1"`
	ContainerName         string            `gorm:"size:63;uniqueIndex:idx_containers_identity,priority:2"`
	LastModified          time.Time         `gorm:"not null"`
	Etag                  string            `gorm:"size:64;not null"`
	Metadata              map[string]string `gorm:"serializer:json;type:text"`
	ContainerACL          SignedIdentifiers `gorm:"serializer:json;type:text"`
	PublicAccess          *string           `gorm:"size:32"`
	HasImmutabilityPolicy bool              `gorm:"default:false"`
	HasLegalHold          bool              `gorm:"default:false"`
	Lease                 LeaseRecord       `gorm:"serializer:json;type:text"`
}

// TableName returns the table name for Container.
func (Container) TableName() string { return "containers" }

// Blob is a named object or one of its snapshots. Snapshot is "" for the
// live blob, otherwise the snapshot's creation time in ISO-8601 form.
// Deleting is the tombstone generation: 0 is live, each logical delete bumps
// it so that deleted generations coexist under the unique index until an
// external sweep removes them.
type Blob struct {
	BlobID        uint64 `gorm:"primaryKey;autoIncrement"`
	AccountName   string `gorm:"size:255;uniqueIndex:idx_blobs_identity,priority:1"`
	ContainerName string `gorm:"size:63;uniqueIndex:idx_blobs_identity,priority:2"`
	BlobName      string `gorm:"size:1024;uniqueIndex:idx_blobs_identity,priority:3"`
	Snapshot      string `gorm:"size:64;uniqueIndex:idx_blobs_identity,priority:4"`
	Deleting      uint   `gorm:"default:0;uniqueIndex:idx_blobs_identity,priority:5"`

	BlobType     string `gorm:"size:32;not null"`
	IsCommitted  bool   `gorm:"default:false"`
	CreationTime *time.Time
	LastModified time.Time `gorm:"not null"`
	Etag         string    `gorm:"size:64;not null"`

	AccessTier           *string `gorm:"size:32"`
	AccessTierInferred   bool    `gorm:"default:false"`
	AccessTierChangeTime *time.Time

	BlobSequenceNumber int64 `gorm:"default:0"`

	ContentProperties ContentProperties `gorm:"serializer:json;type:text"`
	Lease             LeaseRecord       `gorm:"serializer:json;type:text"`
	Metadata          map[string]string `gorm:"serializer:json;type:text"`

	// Persistency references the payload of a single-shot upload; block
	// blobs built from a block list leave it nil.
	Persistency *Chunk `gorm:"serializer:json;type:text"`

	// CommittedBlocksInOrder can grow large (tens of thousands of blocks);
	// it needs a wide text column.
	CommittedBlocksInOrder []CommittedBlock `gorm:"serializer:json;type:text"`
}

// TableName returns the table name for Blob.
func (Blob) TableName() string { return "blobs" }

// Block is a staged, uncommitted chunk of a block blob. The explicit ID
// primary key preserves insertion order for deterministic uncommitted block
// listings.
type Block struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	AccountName   string `gorm:"size:255;index:idx_blocks_lookup,priority:1"`
	ContainerName string `gorm:"size:63;index:idx_blocks_lookup,priority:2"`
	BlobName      string `gorm:"size:1024;index:idx_blocks_lookup,priority:3"`
	BlockName     string `gorm:"size:128;index:idx_blocks_lookup,priority:4"`
	Deleting      uint   `gorm:"default:0"`
	Size          uint64 `gorm:"not null"`
	Persistency   Chunk  `gorm:"serializer:json;type:text"`
}

// TableName returns the table name for Block.
func (Block) TableName() string { return "blocks" }

// FormatSnapshot renders a snapshot identifier from the request's start time,
// millisecond precision in UTC, matching the REST snapshot format.
func FormatSnapshot(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
