package lease

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/lazurite/pkg/metastore/meterrors"
)

var t0 = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func at(seconds int) time.Time {
	return t0.Add(time.Duration(seconds) * time.Second)
}

func int32p(v int32) *int32 { return &v }

// ============================================================================
// Acquire
// ============================================================================

func TestAcquire_FixedDuration(t *testing.T) {
	t.Parallel()

	l, err := Lease{}.Acquire(t0, 30, "L1", "req")
	require.NoError(t, err)

	assert.Equal(t, "L1", l.ID)
	assert.Equal(t, StateLeased, l.State)
	assert.Equal(t, StatusLocked, l.Status())
	assert.Equal(t, DurationFixed, l.DurationType)
	assert.Equal(t, int32(30), l.DurationSeconds)
	require.NotNil(t, l.ExpireTime)
	assert.Equal(t, at(30), *l.ExpireTime)
	assert.Nil(t, l.BreakTime)
}

func TestAcquire_Infinite(t *testing.T) {
	t.Parallel()

	l, err := Lease{}.Acquire(t0, InfiniteDuration, "", "req")
	require.NoError(t, err)

	assert.NotEmpty(t, l.ID, "a fresh id is generated when none is proposed")
	assert.Equal(t, DurationInfinite, l.DurationType)
	assert.Nil(t, l.ExpireTime)
}

func TestAcquire_InvalidDuration(t *testing.T) {
	t.Parallel()

	for _, duration := range []int32{0, 5, 14, 61, 120, -2} {
		_, err := Lease{}.Acquire(t0, duration, "L1", "req")
		assert.True(t, meterrors.IsCode(err, meterrors.ErrInvalidLeaseDuration), "duration %d", duration)
	}
}

func TestAcquire_IdempotentRefresh(t *testing.T) {
	t.Parallel()

	l, err := Lease{}.Acquire(t0, 15, "L1", "req")
	require.NoError(t, err)

	refreshed, err := l.Acquire(at(5), 60, "L1", "req")
	require.NoError(t, err)
	assert.Equal(t, "L1", refreshed.ID)
	require.NotNil(t, refreshed.ExpireTime)
	assert.Equal(t, at(65), *refreshed.ExpireTime)
}

func TestAcquire_HeldByOther(t *testing.T) {
	t.Parallel()

	l, err := Lease{}.Acquire(t0, 15, "L1", "req")
	require.NoError(t, err)

	_, err = l.Acquire(at(5), 15, "L2", "req")
	assert.True(t, meterrors.IsCode(err, meterrors.ErrLeaseAlreadyPresent))
}

func TestAcquire_AfterExpiry(t *testing.T) {
	t.Parallel()

	l, err := Lease{}.Acquire(t0, 15, "L1", "req")
	require.NoError(t, err)

	projected := l.Project(at(20))
	require.Equal(t, StateExpired, projected.State)

	reacquired, err := projected.Acquire(at(20), 15, "L2", "req")
	require.NoError(t, err)
	assert.Equal(t, "L2", reacquired.ID)
	assert.Equal(t, StateLeased, reacquired.State)
}

// ============================================================================
// Projection
// ============================================================================

func TestProject_FixedExpiry(t *testing.T) {
	t.Parallel()

	l, err := Lease{}.Acquire(t0, 15, "L1", "req")
	require.NoError(t, err)

	assert.Equal(t, StateLeased, l.Project(at(15)).State, "not expired at the boundary")

	expired := l.Project(at(16))
	assert.Equal(t, StateExpired, expired.State)
	assert.Equal(t, StatusUnlocked, expired.Status())
	assert.Equal(t, DurationNone, expired.DurationType)
	assert.Nil(t, expired.ExpireTime)
	assert.Equal(t, "L1", expired.ID, "the id survives expiry")
	assert.Equal(t, int32(15), expired.DurationSeconds, "the duration survives expiry for renew")
}

func TestProject_BreakElapsed(t *testing.T) {
	t.Parallel()

	l, err := Lease{}.Acquire(t0, InfiniteDuration, "L1", "req")
	require.NoError(t, err)
	l, _, err = l.Break(t0, int32p(30), "req")
	require.NoError(t, err)

	assert.Equal(t, StateBreaking, l.Project(at(29)).State)

	broken := l.Project(at(31))
	assert.Equal(t, StateBroken, broken.State)
	assert.Equal(t, StatusUnlocked, broken.Status())
	assert.Nil(t, broken.BreakTime)
}

func TestProject_Idempotent(t *testing.T) {
	t.Parallel()

	l, err := Lease{}.Acquire(t0, 15, "L1", "req")
	require.NoError(t, err)

	once := l.Project(at(100))
	twice := once.Project(at(100))
	assert.Equal(t, once, twice)
}

func TestProject_Infinite_NeverExpires(t *testing.T) {
	t.Parallel()

	l, err := Lease{}.Acquire(t0, InfiniteDuration, "L1", "req")
	require.NoError(t, err)

	assert.Equal(t, StateLeased, l.Project(at(1<<30)).State)
}

// ============================================================================
// Renew
// ============================================================================

func TestRenew_ExtendsFixed(t *testing.T) {
	t.Parallel()

	l, err := Lease{}.Acquire(t0, 30, "L1", "req")
	require.NoError(t, err)

	renewed, err := l.Renew(at(20), "L1", "req")
	require.NoError(t, err)
	require.NotNil(t, renewed.ExpireTime)
	assert.Equal(t, at(50), *renewed.ExpireTime)
	assert.Equal(t, DurationFixed, renewed.DurationType)
}

func TestRenew_ExpiredLease(t *testing.T) {
	t.Parallel()

	l, err := Lease{}.Acquire(t0, 15, "L1", "req")
	require.NoError(t, err)
	expired := l.Project(at(100))
	require.Equal(t, StateExpired, expired.State)

	renewed, err := expired.Renew(at(100), "L1", "req")
	require.NoError(t, err)
	assert.Equal(t, StateLeased, renewed.State)
	require.NotNil(t, renewed.ExpireTime)
	assert.Equal(t, at(115), *renewed.ExpireTime)
}

func TestRenew_Errors(t *testing.T) {
	t.Parallel()

	leased, err := Lease{}.Acquire(t0, 15, "L1", "req")
	require.NoError(t, err)
	breaking, _, err := leased.Break(t0, int32p(30), "req")
	require.NoError(t, err)

	tests := []struct {
		name    string
		lease   Lease
		leaseID string
		code    meterrors.ErrorCode
	}{
		{"available", Lease{}, "L1", meterrors.ErrLeaseIdMismatchWithLeaseOperation},
		{"wrong id", leased, "L2", meterrors.ErrLeaseIdMismatchWithLeaseOperation},
		{"breaking", breaking, "L1", meterrors.ErrLeaseIsBrokenAndCannotBeRenewed},
		{"broken", breaking.Project(at(31)), "L1", meterrors.ErrLeaseIsBrokenAndCannotBeRenewed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.lease.Renew(at(10), tc.leaseID, "req")
			assert.True(t, meterrors.IsCode(err, tc.code), "got %v", err)
		})
	}
}

// ============================================================================
// Change
// ============================================================================

func TestChange(t *testing.T) {
	t.Parallel()

	leased, err := Lease{}.Acquire(t0, InfiniteDuration, "L1", "req")
	require.NoError(t, err)

	changed, err := leased.Change("L1", "L2", "req")
	require.NoError(t, err)
	assert.Equal(t, "L2", changed.ID)
	assert.Equal(t, StateLeased, changed.State)

	// Retry after the id already changed: currentID matches proposedID.
	again, err := changed.Change("L1", "L2", "req")
	require.NoError(t, err)
	assert.Equal(t, "L2", again.ID)
}

func TestChange_Errors(t *testing.T) {
	t.Parallel()

	leased, err := Lease{}.Acquire(t0, 15, "L1", "req")
	require.NoError(t, err)
	breaking, _, err := leased.Break(t0, int32p(30), "req")
	require.NoError(t, err)

	tests := []struct {
		name      string
		lease     Lease
		currentID string
		code      meterrors.ErrorCode
	}{
		{"available", Lease{}, "L1", meterrors.ErrLeaseNotPresent},
		{"expired", leased.Project(at(100)), "L1", meterrors.ErrLeaseNotPresent},
		{"breaking", breaking, "L1", meterrors.ErrLeaseIsBreakingAndCannotBeChanged},
		{"wrong ids", leased, "L9", meterrors.ErrLeaseIdMismatchWithLeaseOperation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.lease.Change(tc.currentID, "L5", "req")
			assert.True(t, meterrors.IsCode(err, tc.code), "got %v", err)
		})
	}
}

// ============================================================================
// Release
// ============================================================================

func TestRelease(t *testing.T) {
	t.Parallel()

	leased, err := Lease{}.Acquire(t0, 30, "L1", "req")
	require.NoError(t, err)

	released, err := leased.Release("L1", "req")
	require.NoError(t, err)
	assert.Equal(t, Lease{}, released)
	assert.Equal(t, StateAvailable, released.State)
	assert.Empty(t, released.ID)
}

func TestRelease_Errors(t *testing.T) {
	t.Parallel()

	leased, err := Lease{}.Acquire(t0, 30, "L1", "req")
	require.NoError(t, err)

	_, err = Lease{}.Release("L1", "req")
	assert.True(t, meterrors.IsCode(err, meterrors.ErrLeaseIdMismatchWithLeaseOperation))

	_, err = leased.Release("L2", "req")
	assert.True(t, meterrors.IsCode(err, meterrors.ErrLeaseIdMismatchWithLeaseOperation))
}

// ============================================================================
// Break
// ============================================================================

func TestBreak_Immediate(t *testing.T) {
	t.Parallel()

	leased, err := Lease{}.Acquire(t0, InfiniteDuration, "L1", "req")
	require.NoError(t, err)

	for _, bp := range []*int32{nil, int32p(0)} {
		broken, leaseTime, err := leased.Break(t0, bp, "req")
		require.NoError(t, err)
		assert.Equal(t, StateBroken, broken.State)
		assert.Equal(t, StatusUnlocked, broken.Status())
		assert.Equal(t, int32(0), leaseTime)
		assert.Nil(t, broken.BreakTime)
	}
}

func TestBreak_InfiniteWithPeriod(t *testing.T) {
	t.Parallel()

	leased, err := Lease{}.Acquire(t0, InfiniteDuration, "L1", "req")
	require.NoError(t, err)

	breaking, leaseTime, err := leased.Break(at(10), int32p(30), "req")
	require.NoError(t, err)
	assert.Equal(t, StateBreaking, breaking.State)
	assert.Equal(t, StatusLocked, breaking.Status())
	assert.Equal(t, int32(30), leaseTime)
	require.NotNil(t, breaking.BreakTime)
	assert.Equal(t, at(40), *breaking.BreakTime)
}

func TestBreak_CappedByExpiry(t *testing.T) {
	t.Parallel()

	leased, err := Lease{}.Acquire(t0, 15, "L1", "req")
	require.NoError(t, err)

	// now+60 is past the lease expiry at t0+15; the break is capped there.
	breaking, leaseTime, err := leased.Break(at(5), int32p(60), "req")
	require.NoError(t, err)
	assert.Equal(t, int32(10), leaseTime)
	require.NotNil(t, breaking.BreakTime)
	assert.Equal(t, at(15), *breaking.BreakTime)
}

func TestBreak_KeepsEarlierBreakTime(t *testing.T) {
	t.Parallel()

	leased, err := Lease{}.Acquire(t0, InfiniteDuration, "L1", "req")
	require.NoError(t, err)
	breaking, _, err := leased.Break(t0, int32p(20), "req")
	require.NoError(t, err)

	again, leaseTime, err := breaking.Break(at(5), int32p(60), "req")
	require.NoError(t, err)
	require.NotNil(t, again.BreakTime)
	assert.Equal(t, at(20), *again.BreakTime, "the earlier break time wins")
	assert.Equal(t, int32(15), leaseTime)
}

func TestBreak_Errors(t *testing.T) {
	t.Parallel()

	_, _, err := Lease{}.Break(t0, nil, "req")
	assert.True(t, meterrors.IsCode(err, meterrors.ErrLeaseNotPresent))

	leased, err := Lease{}.Acquire(t0, InfiniteDuration, "L1", "req")
	require.NoError(t, err)
	for _, bp := range []int32{-1, 61} {
		_, _, err := leased.Break(t0, int32p(bp), "req")
		assert.True(t, meterrors.IsCode(err, meterrors.ErrInvalidLeaseBreakPeriod), "period %d", bp)
	}
}

func TestBreak_ExpiredBreaksImmediately(t *testing.T) {
	t.Parallel()

	leased, err := Lease{}.Acquire(t0, 15, "L1", "req")
	require.NoError(t, err)
	expired := leased.Project(at(100))

	broken, leaseTime, err := expired.Break(at(100), int32p(30), "req")
	require.NoError(t, err)
	assert.Equal(t, StateBroken, broken.State)
	assert.Equal(t, int32(0), leaseTime)
}

// ============================================================================
// Gates
// ============================================================================

func TestValidateWrite(t *testing.T) {
	t.Parallel()

	leased, err := Lease{}.Acquire(t0, InfiniteDuration, "L1", "req")
	require.NoError(t, err)

	tests := []struct {
		name    string
		lease   Lease
		leaseID string
		code    meterrors.ErrorCode // 0 = no error
	}{
		{"unlocked no id", Lease{}, "", 0},
		{"unlocked with id", Lease{}, "L1", meterrors.ErrLeaseLost},
		{"locked no id", leased, "", meterrors.ErrLeaseIdMissing},
		{"locked matching", leased, "L1", 0},
		{"locked matching case-insensitive", leased, "l1", 0},
		{"locked mismatch", leased, "L2", meterrors.ErrLeaseIdMismatchWithBlobOperation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.lease.ValidateWrite(ScopeBlob, tc.leaseID, "req")
			if tc.code == 0 {
				assert.NoError(t, err)
			} else {
				assert.True(t, meterrors.IsCode(err, tc.code), "got %v", err)
			}
		})
	}
}

func TestValidateWrite_ContainerScope(t *testing.T) {
	t.Parallel()

	leased, err := Lease{}.Acquire(t0, InfiniteDuration, "L1", "req")
	require.NoError(t, err)

	err = leased.ValidateWrite(ScopeContainer, "L2", "req")
	assert.True(t, meterrors.IsCode(err, meterrors.ErrLeaseIdMismatchWithContainerOperation))
}

func TestValidateRead(t *testing.T) {
	t.Parallel()

	leased, err := Lease{}.Acquire(t0, InfiniteDuration, "L1", "req")
	require.NoError(t, err)

	assert.NoError(t, leased.ValidateRead(ScopeBlob, "", "req"), "reads never require a lease id")
	assert.NoError(t, leased.ValidateRead(ScopeBlob, "L1", "req"))

	err = leased.ValidateRead(ScopeBlob, "L2", "req")
	assert.True(t, meterrors.IsCode(err, meterrors.ErrLeaseIdMismatchWithBlobOperation))

	err = Lease{}.ValidateRead(ScopeBlob, "L1", "req")
	assert.True(t, meterrors.IsCode(err, meterrors.ErrLeaseLost))
}

func TestCollapseAfterWrite(t *testing.T) {
	t.Parallel()

	leased, err := Lease{}.Acquire(t0, 15, "L1", "req")
	require.NoError(t, err)

	assert.Equal(t, leased, leased.CollapseAfterWrite(), "a held lease is untouched")

	expired := leased.Project(at(100))
	assert.Equal(t, Lease{}, expired.CollapseAfterWrite())

	breaking, _, err := leased.Break(t0, int32p(30), "req")
	require.NoError(t, err)
	broken := breaking.Project(at(100))
	assert.Equal(t, Lease{}, broken.CollapseAfterWrite())
}

// ============================================================================
// Invariants and end-to-end lease scenarios
// ============================================================================

// The state/status pairing must hold for every reachable lease value.
func TestStateStatusPairing(t *testing.T) {
	t.Parallel()

	want := map[State]Status{
		StateAvailable: StatusUnlocked,
		StateLeased:    StatusLocked,
		StateExpired:   StatusUnlocked,
		StateBreaking:  StatusLocked,
		StateBroken:    StatusUnlocked,
	}
	for state, status := range want {
		assert.Equal(t, status, Lease{State: state}.Status(), "state %v", state)
	}
}

// Acquire, renew, release of a fixed lease.
func TestScenario_AcquireRenewRelease(t *testing.T) {
	t.Parallel()

	l, err := Lease{}.Acquire(at(0), 30, "L1", "req")
	require.NoError(t, err)
	assert.Equal(t, "L1", l.ID)
	assert.Equal(t, StateLeased, l.State)

	l, err = l.Project(at(20)).Renew(at(20), "L1", "req")
	require.NoError(t, err)
	require.NotNil(t, l.ExpireTime)
	assert.Equal(t, at(50), *l.ExpireTime)

	l, err = l.Project(at(25)).Release("L1", "req")
	require.NoError(t, err)
	assert.Equal(t, StateAvailable, l.State)
	assert.Empty(t, l.ID)
}

// Break then acquire: the acquire fails while breaking and succeeds once the
// break period has elapsed.
func TestScenario_BreakThenAcquire(t *testing.T) {
	t.Parallel()

	l, err := Lease{}.Acquire(at(0), InfiniteDuration, "L1", "req")
	require.NoError(t, err)

	l, leaseTime, err := l.Project(at(10)).Break(at(10), int32p(30), "req")
	require.NoError(t, err)
	assert.Equal(t, StateBreaking, l.State)
	assert.Equal(t, int32(30), leaseTime)

	_, err = l.Project(at(20)).Acquire(at(20), 15, "L2", "req")
	assert.True(t, meterrors.IsCode(err, meterrors.ErrLeaseAlreadyPresent))

	projected := l.Project(at(45))
	assert.Equal(t, StateBroken, projected.State)

	acquired, err := projected.Acquire(at(45), 15, "L2", "req")
	require.NoError(t, err)
	assert.Equal(t, StateLeased, acquired.State)
	assert.Equal(t, "L2", acquired.ID)
}
