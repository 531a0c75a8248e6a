package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileValidate(t *testing.T) {
	id := uuid.New()
	expires := time.Now().Add(time.Hour)

	staging := func() *File {
		return &File{
			UUID:           id,
			Status:         StatusStaging,
			StorageLocator: FormatLocator(BucketStaging, StagingKey(id.String())),
		}
	}
	stored := func() *File {
		return &File{
			UUID:           id,
			Status:         StatusStored,
			StorageLocator: FormatLocator(BucketSecure, SecureKey(id.String())),
			IsSanitized:    true,
			ExpiresAt:      &expires,
		}
	}
	expired := func() *File {
		return &File{
			UUID:             id,
			Status:           StatusExpired,
			StorageLocator:   PurgedLocator,
			MetadataSnapshot: Tombstone(),
			ExpiresAt:        &expires,
		}
	}

	require.NoError(t, staging().Validate())
	require.NoError(t, stored().Validate())
	require.NoError(t, expired().Validate())

	tests := []struct {
		name string
		file func() *File
	}{
		{"staging with expiry", func() *File { f := staging(); f.ExpiresAt = &expires; return f }},
		{"staging sanitized", func() *File { f := staging(); f.IsSanitized = true; return f }},
		{"staging in secure bucket", func() *File { f := staging(); f.StorageLocator = "secure/files/x"; return f }},
		{"stored without expiry", func() *File { f := stored(); f.ExpiresAt = nil; return f }},
		{"stored in staging bucket", func() *File { f := stored(); f.StorageLocator = "staging/uploads/x"; return f }},
		{"expired with live locator", func() *File { f := expired(); f.StorageLocator = "secure/files/x"; return f }},
		{"expired with snapshot", func() *File { f := expired(); f.MetadataSnapshot = Metadata{"Author": "a"}; return f }},
		{"unknown status", func() *File { f := staging(); f.Status = "deleted"; return f }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.file().Validate())
		})
	}
}

func TestFileIsGone(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	assert.False(t, (&File{Status: StatusStaging}).IsGone(now))
	assert.False(t, (&File{Status: StatusStored, ExpiresAt: &future}).IsGone(now))
	assert.True(t, (&File{Status: StatusStored, ExpiresAt: &past}).IsGone(now))
	assert.True(t, (&File{Status: StatusStored, ExpiresAt: &now}).IsGone(now))
	assert.True(t, (&File{Status: StatusExpired}).IsGone(now))
}

func TestParseLocator(t *testing.T) {
	bucket, key, err := ParseLocator("secure/files/abc")
	require.NoError(t, err)
	assert.Equal(t, BucketSecure, bucket)
	assert.Equal(t, "files/abc", key)

	for _, bad := range []string{"", "purged", "secure/", "other/files/abc"} {
		_, _, err := ParseLocator(bad)
		assert.ErrorIs(t, err, ErrInvalidArgument, bad)
	}
	assert.False(t, LocatorInBucket(PurgedLocator, BucketSecure))
}

func TestMetadataValueScan(t *testing.T) {
	m := Metadata{"Author": "Alice", "PageCount": "3"}
	v, err := m.Value()
	require.NoError(t, err)
	require.IsType(t, "", v)

	var fromString Metadata
	require.NoError(t, fromString.Scan(v))
	assert.Equal(t, m, fromString)

	var fromBytes Metadata
	require.NoError(t, fromBytes.Scan([]byte(v.(string))))
	assert.Equal(t, m, fromBytes)

	var fromNil Metadata = Metadata{"x": "y"}
	require.NoError(t, fromNil.Scan(nil))
	assert.Nil(t, fromNil)

	nilValue, err := Metadata(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, nilValue)

	var bad Metadata
	assert.Error(t, bad.Scan(42))
}

func TestTombstone(t *testing.T) {
	assert.True(t, Tombstone().IsTombstone())
	assert.False(t, Metadata{KeyPurged: TombstoneValue, "Author": "a"}.IsTombstone())
	assert.False(t, Metadata(nil).IsTombstone())
}
