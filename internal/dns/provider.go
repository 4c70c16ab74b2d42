package dns

import (
	"context"
	"errors"
)

// RecordType is the type of a DNS record set. Only A and CNAME are ever
// written, but listing a zone can return any type (SOA, TXT, ...).
type RecordType string

const (
	TypeA     RecordType = "A"
	TypeCNAME RecordType = "CNAME"
)

const (
	// DefaultTTL is the TTL, in seconds, of every record set written.
	DefaultTTL int64 = 300

	// OwnerMetadataKey is the record set metadata key holding the owner tag.
	OwnerMetadataKey = "managedBy"
)

var (
	// ErrInvalidRecord marks a desired record that must not be sent to the zone.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrPreconditionFailed is returned by a Zone when a guarded write lost
	// against a concurrent writer. Retrying the whole pass is safe.
	ErrPreconditionFailed = errors.New("precondition failed")
)

// Record is the desired state of a record set.
type Record struct {
	Name    string     // relative to the zone, e.g. "dev-app"
	Type    RecordType // A or CNAME
	Targets []string   // IPv4 addresses for A, exactly one host for CNAME
	Owner   string     // "<kind>/<namespace>/<name>"
	TTL     int64
}

// ExistingRecord is a record set as read from the zone.
type ExistingRecord struct {
	Name    string
	Type    RecordType
	Targets []string
	Owner   string // empty when the record set carries no owner tag
	ETag    string
}

// Precondition guards a write against concurrent modification of the record set.
type Precondition struct {
	IfMatch     string // write only while the record set still has this ETag
	IfNoneMatch bool   // write only if the record set does not exist
}

// Zone is the interface that DNS zone providers must implement.
//
// List must return every record set of the zone, draining all pages.
// CreateOrUpdate replaces the whole record set (targets, owner, TTL) keyed by
// name and type; calling it twice with the same record has no further effect.
type Zone interface {
	Name() string
	List(ctx context.Context) ([]ExistingRecord, error)
	CreateOrUpdate(ctx context.Context, record Record, pre Precondition) error
	Delete(ctx context.Context, name string, recordType RecordType, pre Precondition) error
}
