package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindCollections(t *testing.T) {
	tests := []struct {
		kind    Kind
		active  string
		deleted string
	}{
		{KindClip, "clips-active", "clips-deleted"},
		{KindFile, "files-active", "files-deleted"},
		{KindFilter, "filters", "filter-deleted"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.True(t, tt.kind.Valid())
			assert.Equal(t, tt.active, tt.kind.ActiveCollection())
			assert.Equal(t, tt.deleted, tt.kind.DeletedCollection())
		})
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("clip")
	require.NoError(t, err)
	assert.Equal(t, KindClip, k)

	_, err = ParseKind("folder")
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("push: %w", ErrNetworkUnavailable)))
	assert.True(t, IsRetryable(ErrRemoteRejected))
	assert.False(t, IsRetryable(ErrVersionConflict))
	assert.False(t, IsRetryable(errors.New("boom")))
	assert.False(t, IsRetryable(nil))
}
