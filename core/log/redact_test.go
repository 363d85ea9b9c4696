package log

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRedactionMode(t *testing.T) {
	tests := []struct {
		in   string
		want RedactionMode
	}{
		{"hash", RedactHash},
		{"Production", RedactHash},
		{"truncate", RedactTruncate},
		{"none", RedactNone},
		{"debug", RedactNone},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRedactionMode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseRedactionMode("shred")
	assert.Error(t, err)
}

func TestRedactPath(t *testing.T) {
	long := "/warehouse/tables/events/part-0001.parquet"

	assert.Equal(t, "", RedactHash.Path(""))
	assert.Equal(t, long, RedactNone.Path(long))
	assert.Equal(t, "/short", RedactTruncate.Path("/short"))
	assert.Equal(t, "/warehouse...parquet", RedactTruncate.Path(long))

	hashed := RedactHash.Path(long)
	assert.True(t, strings.HasPrefix(hashed, "hash:"))
	assert.NotContains(t, hashed, "warehouse")
	assert.Equal(t, hashed, RedactHash.Path(long))
}

func TestRedactUserID(t *testing.T) {
	assert.Equal(t, "bob", RedactTruncate.UserID("bob"))
	assert.Equal(t, "svc-****", RedactTruncate.UserID("svc-ingest-worker"))
	assert.Equal(t, "alice", RedactNone.UserID("alice"))
	assert.True(t, strings.HasPrefix(RedactHash.UserID("alice"), "user_hash:"))
}
