// Package lease implements the container/blob lease protocol as an immutable
// value type plus pure transition functions.
//
// All time-dependent behavior consumes the caller-supplied instant (the
// per-request logical clock), never the wall clock, so lease expiry is
// deterministic per request and replayable in tests. A Lease value never
// shares state with persisted rows; store implementations convert between
// Lease and their persisted representation at transaction boundaries.
//
// Import graph: meterrors <- lease <- models <- store implementations
package lease

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/lazurite/pkg/metastore/meterrors"
)

// State represents the lease state of a container or blob.
type State int

const (
	// StateAvailable means no lease is held and one can be acquired.
	StateAvailable State = iota

	// StateLeased means a lease is held and unexpired.
	StateLeased

	// StateExpired means a fixed-duration lease has run out.
	StateExpired

	// StateBreaking means a break was requested and the break period has not
	// elapsed yet.
	StateBreaking

	// StateBroken means the break period has elapsed.
	StateBroken
)

// String returns the REST representation of the lease state.
func (s State) String() string {
	switch s {
	case StateAvailable:
		return "available"
	case StateLeased:
		return "leased"
	case StateExpired:
		return "expired"
	case StateBreaking:
		return "breaking"
	case StateBroken:
		return "broken"
	default:
		return "unknown"
	}
}

// ParseState parses the REST representation of a lease state. Unknown values
// parse as StateAvailable, matching the zero lease.
func ParseState(s string) State {
	switch s {
	case "leased":
		return StateLeased
	case "expired":
		return StateExpired
	case "breaking":
		return StateBreaking
	case "broken":
		return StateBroken
	default:
		return StateAvailable
	}
}

// Status represents the lock status derived from the lease state.
type Status int

const (
	// StatusUnlocked means mutations do not require a lease id.
	StatusUnlocked Status = iota

	// StatusLocked means mutations must present the held lease id.
	StatusLocked
)

// String returns the REST representation of the lease status.
func (s Status) String() string {
	if s == StatusLocked {
		return "locked"
	}
	return "unlocked"
}

// DurationType distinguishes fixed-duration from infinite leases.
type DurationType int

const (
	// DurationNone means no duration applies (no active lease).
	DurationNone DurationType = iota

	// DurationFixed means the lease expires after a fixed number of seconds.
	DurationFixed

	// DurationInfinite means the lease never expires on its own.
	DurationInfinite
)

// String returns the REST representation of the duration type.
func (d DurationType) String() string {
	switch d {
	case DurationFixed:
		return "fixed"
	case DurationInfinite:
		return "infinite"
	default:
		return ""
	}
}

// ParseDurationType parses the REST representation of a duration type.
func ParseDurationType(s string) DurationType {
	switch s {
	case "fixed":
		return DurationFixed
	case "infinite":
		return DurationInfinite
	default:
		return DurationNone
	}
}

// InfiniteDuration is the acquire duration requesting an infinite lease.
const InfiniteDuration int32 = -1

// Acquire durations other than InfiniteDuration must fall in this range.
const (
	MinDurationSeconds int32 = 15
	MaxDurationSeconds int32 = 60
)

// MaxBreakPeriodSeconds bounds the break period of a Break call.
const MaxBreakPeriodSeconds int32 = 60

// Scope selects the error codes emitted by the read/write gates, which differ
// between blob and container operations.
type Scope int

const (
	// ScopeBlob gates blob operations.
	ScopeBlob Scope = iota

	// ScopeContainer gates container operations.
	ScopeContainer
)

// Lease is an immutable lease value. The zero value is an available lease.
//
// DurationSeconds survives expiry projection so that a later Renew can
// restore the original fixed duration.
type Lease struct {
	ID              string
	State           State
	DurationType    DurationType
	DurationSeconds int32
	ExpireTime      *time.Time
	BreakTime       *time.Time
}

// Status derives the lock status from the lease state. The state/status pair
// is always one of (available, unlocked), (leased, locked), (expired,
// unlocked), (breaking, locked), (broken, unlocked).
func (l Lease) Status() Status {
	switch l.State {
	case StateLeased, StateBreaking:
		return StatusLocked
	default:
		return StatusUnlocked
	}
}

// Project applies the time-driven transitions against the request clock:
// a fixed lease past its expiry becomes expired, a breaking lease past its
// break time becomes broken. Projection is idempotent for a given now.
func (l Lease) Project(now time.Time) Lease {
	switch {
	case l.State == StateLeased && l.DurationType == DurationFixed &&
		l.ExpireTime != nil && now.After(*l.ExpireTime):
		l.State = StateExpired
		l.DurationType = DurationNone
		l.ExpireTime = nil
		l.BreakTime = nil

	case l.State == StateBreaking && l.BreakTime != nil && now.After(*l.BreakTime):
		l.State = StateBroken
		l.DurationType = DurationNone
		l.ExpireTime = nil
		l.BreakTime = nil
	}
	return l
}

// Acquire grants a new lease or idempotently refreshes a held one.
//
// duration must be InfiniteDuration or within [15, 60] seconds. proposedID
// may be empty, in which case a fresh UUID is assigned.
func (l Lease) Acquire(now time.Time, duration int32, proposedID, requestID string) (Lease, error) {
	if l.State == StateBreaking {
		return l, meterrors.NewLeaseAlreadyPresent(requestID)
	}
	if l.State == StateLeased && !strings.EqualFold(l.ID, proposedID) {
		return l, meterrors.NewLeaseAlreadyPresent(requestID)
	}

	var durationType DurationType
	var expire *time.Time
	switch {
	case duration == InfiniteDuration:
		durationType = DurationInfinite
	case duration >= MinDurationSeconds && duration <= MaxDurationSeconds:
		durationType = DurationFixed
		t := now.Add(time.Duration(duration) * time.Second)
		expire = &t
	default:
		return l, meterrors.NewInvalidLeaseDuration(requestID)
	}

	id := proposedID
	if id == "" {
		id = uuid.NewString()
	}

	return Lease{
		ID:              id,
		State:           StateLeased,
		DurationType:    durationType,
		DurationSeconds: duration,
		ExpireTime:      expire,
	}, nil
}

// Renew extends a held or expired lease identified by leaseID, restoring the
// originally acquired duration.
func (l Lease) Renew(now time.Time, leaseID, requestID string) (Lease, error) {
	switch l.State {
	case StateAvailable:
		return l, meterrors.NewLeaseIdMismatchWithLeaseOperation(requestID)
	case StateBreaking, StateBroken:
		return l, meterrors.NewLeaseIsBrokenAndCannotBeRenewed(requestID)
	}
	if !strings.EqualFold(l.ID, leaseID) {
		return l, meterrors.NewLeaseIdMismatchWithLeaseOperation(requestID)
	}

	l.State = StateLeased
	l.BreakTime = nil
	if l.DurationSeconds >= MinDurationSeconds && l.DurationSeconds <= MaxDurationSeconds {
		l.DurationType = DurationFixed
		t := now.Add(time.Duration(l.DurationSeconds) * time.Second)
		l.ExpireTime = &t
	} else {
		l.DurationType = DurationInfinite
		l.ExpireTime = nil
	}
	return l, nil
}

// Change replaces the id of a held lease. currentID must match either the
// held id or proposedID (the latter makes retries idempotent).
func (l Lease) Change(currentID, proposedID, requestID string) (Lease, error) {
	switch l.State {
	case StateAvailable, StateExpired, StateBroken:
		return l, meterrors.NewLeaseNotPresent(requestID)
	case StateBreaking:
		return l, meterrors.NewLeaseIsBreakingAndCannotBeChanged(requestID)
	}
	if !strings.EqualFold(l.ID, currentID) && !strings.EqualFold(l.ID, proposedID) {
		return l, meterrors.NewLeaseIdMismatchWithLeaseOperation(requestID)
	}

	l.ID = proposedID
	return l, nil
}

// Release frees the lease identified by leaseID. The result is the zero
// (available) lease.
func (l Lease) Release(leaseID, requestID string) (Lease, error) {
	if l.State == StateAvailable {
		return l, meterrors.NewLeaseIdMismatchWithLeaseOperation(requestID)
	}
	if !strings.EqualFold(l.ID, leaseID) {
		return l, meterrors.NewLeaseIdMismatchWithLeaseOperation(requestID)
	}
	return Lease{}, nil
}

// Break starts or shortens the termination of a held lease. breakPeriod may
// be nil (immediate break). It returns the new lease and the number of
// seconds until the break completes.
func (l Lease) Break(now time.Time, breakPeriod *int32, requestID string) (Lease, int32, error) {
	if l.State == StateAvailable {
		return l, 0, meterrors.NewLeaseNotPresent(requestID)
	}
	if breakPeriod != nil && (*breakPeriod < 0 || *breakPeriod > MaxBreakPeriodSeconds) {
		return l, 0, meterrors.NewInvalidLeaseBreakPeriod(requestID)
	}

	if l.State == StateExpired || l.State == StateBroken ||
		breakPeriod == nil || *breakPeriod == 0 {
		l.State = StateBroken
		l.DurationType = DurationNone
		l.ExpireTime = nil
		l.BreakTime = nil
		return l, 0, nil
	}

	newBreakTime := now.Add(time.Duration(*breakPeriod) * time.Second)
	if l.DurationType != DurationInfinite && l.ExpireTime != nil && l.ExpireTime.Before(newBreakTime) {
		newBreakTime = *l.ExpireTime
	}
	if l.BreakTime != nil && l.BreakTime.Before(newBreakTime) {
		newBreakTime = *l.BreakTime
	}

	l.State = StateBreaking
	l.BreakTime = &newBreakTime
	leaseTime := int32(math.Round(newBreakTime.Sub(now).Seconds()))
	return l, leaseTime, nil
}

// ValidateWrite gates a mutating operation. A locked lease requires the
// matching lease id; an unlocked lease rejects any supplied lease id.
func (l Lease) ValidateWrite(scope Scope, leaseID, requestID string) error {
	if l.Status() == StatusLocked {
		if leaseID == "" {
			return meterrors.NewLeaseIdMissing(requestID)
		}
		if !strings.EqualFold(l.ID, leaseID) {
			return mismatchError(scope, requestID)
		}
		return nil
	}
	if leaseID != "" {
		return meterrors.NewLeaseLost(requestID)
	}
	return nil
}

// ValidateRead gates a read operation. Reads never require a lease id, but a
// supplied id must match a locked lease, and must not be supplied at all
// against an unlocked one.
func (l Lease) ValidateRead(scope Scope, leaseID, requestID string) error {
	if leaseID == "" {
		return nil
	}
	if l.Status() == StatusLocked {
		if !strings.EqualFold(l.ID, leaseID) {
			return mismatchError(scope, requestID)
		}
		return nil
	}
	return meterrors.NewLeaseLost(requestID)
}

// CollapseAfterWrite returns the lease as it must be persisted after a
// successful write: an expired or broken lease collapses back to available.
func (l Lease) CollapseAfterWrite() Lease {
	if l.State == StateExpired || l.State == StateBroken {
		return Lease{}
	}
	return l
}

func mismatchError(scope Scope, requestID string) error {
	if scope == ScopeContainer {
		return meterrors.NewLeaseIdMismatchWithContainerOperation(requestID)
	}
	return meterrors.NewLeaseIdMismatchWithBlobOperation(requestID)
}
