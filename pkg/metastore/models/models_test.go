package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/lazurite/pkg/metastore/lease"
)

func TestBinary_UnmarshalBufferForm(t *testing.T) {
	t.Parallel()

	var b Binary
	require.NoError(t, json.Unmarshal([]byte(`{"type":"Buffer","data":[104,105,33]}`), &b))
	assert.Equal(t, Binary("hi!"), b)
}

func TestBinary_UnmarshalNumericKeys(t *testing.T) {
	t.Parallel()

	var b Binary
	require.NoError(t, json.Unmarshal([]byte(`{"1":105,"0":104,"2":33}`), &b))
	assert.Equal(t, Binary("hi!"), b)
}

func TestBinary_UnmarshalBase64(t *testing.T) {
	t.Parallel()

	var b Binary
	require.NoError(t, json.Unmarshal([]byte(`"aGkh"`), &b))
	assert.Equal(t, Binary("hi!"), b)
}

func TestBinary_UnmarshalArray(t *testing.T) {
	t.Parallel()

	var b Binary
	require.NoError(t, json.Unmarshal([]byte(`[104,105,33]`), &b))
	assert.Equal(t, Binary("hi!"), b)
}

func TestBinary_RoundTrip(t *testing.T) {
	t.Parallel()

	original := Binary{0, 127, 255}
	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Buffer","data":[0,127,255]}`, string(data))

	var restored Binary
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, original, restored)
}

func TestBinary_UnmarshalNull(t *testing.T) {
	t.Parallel()

	b := Binary("existing")
	require.NoError(t, json.Unmarshal([]byte(`null`), &b))
	assert.Nil(t, b)
}

func TestBinary_UnmarshalInvalid(t *testing.T) {
	t.Parallel()

	var b Binary
	assert.Error(t, json.Unmarshal([]byte(`{"type":"Buffer"}`), &b))
	assert.Error(t, json.Unmarshal([]byte(`[300]`), &b))
	assert.Error(t, json.Unmarshal([]byte(`{"x":1}`), &b))
	assert.Error(t, json.Unmarshal([]byte(`12`), &b))
}

func TestLeaseRecord_RoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	held, err := lease.Lease{}.Acquire(now, 30, "L1", "req")
	require.NoError(t, err)

	record := NewLeaseRecord(held)
	assert.Equal(t, "leased", record.LeaseState)
	assert.Equal(t, "locked", record.LeaseStatus)
	assert.Equal(t, "fixed", record.LeaseDurationType)

	assert.Equal(t, held, record.Lease())
}

func TestLeaseRecord_ZeroValue(t *testing.T) {
	t.Parallel()

	var record LeaseRecord
	restored := record.Lease()
	assert.Equal(t, lease.StateAvailable, restored.State)
	assert.Equal(t, lease.StatusUnlocked, restored.Status())
	assert.Empty(t, restored.ID)
}

func TestFormatSnapshot(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 8, 1, 12, 30, 45, 123_000_000, time.FixedZone("CEST", 2*3600))
	assert.Equal(t, "2026-08-01T10:30:45.123Z", FormatSnapshot(ts))
}

func TestContentProperties_JSONLayout(t *testing.T) {
	t.Parallel()

	props := ContentProperties{
		ContentLength: 12,
		ContentType:   "text/plain",
		ContentMD5:    Binary{1, 2},
	}
	data, err := json.Marshal(props)
	require.NoError(t, err)

	var restored ContentProperties
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, props, restored)
}
