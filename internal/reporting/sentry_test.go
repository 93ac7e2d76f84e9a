package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeError(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain error",
			input:    "computation failed: upstream exploded",
			expected: "computation failed: upstream exploded",
		},
		{
			name:     "uuid removed",
			input:    "no result for 01234567-89ab-cdef-0123-456789abcdef",
			expected: "no result for <uuid>",
		},
		{
			name:     "undashed uuid removed",
			input:    "no result for 0123456789abcdef0123456789abcdef",
			expected: "no result for <uuid>",
		},
		{
			name:     "ipv6 host removed",
			input:    "dial tcp [::1]:5432: connect: connection refused",
			expected: "dial tcp <host>: connect: connection refused",
		},
		{
			name:     "upstream url path removed",
			input:    `failed to send request: Get "https://upstream.example.com/resources/user%20data": EOF`,
			expected: `failed to send request: Get "https://upstream.example.com/<key> EOF`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, sanitizeError(tc.input))
		})
	}
}

func TestMetaFromContextDefaults(t *testing.T) {
	t.Parallel()
	meta := MetaFromContext(context.Background())
	require.NotNil(t, meta.tags)
	require.NotNil(t, meta.extras)
	require.Empty(t, meta.userID)
}

func TestMetaContextIsCopied(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ctx = AddTagsToContext(ctx, map[string]string{"tag1": "value1"})
	ctx = AddExtrasToContext(ctx, map[string]string{"extra1": "value1"})
	ctx = SetUserIDInContext(ctx, "user-1")
	ctx = setStartedAtInContext(ctx, time.Now())

	meta := MetaFromContext(ctx)
	require.Equal(t, "value1", meta.tags["tag1"])
	require.Equal(t, "value1", meta.extras["extra1"])
	require.Equal(t, "user-1", meta.userID)
	require.False(t, meta.startedAt.IsZero())

	// Mutating the returned copy must not leak into the context
	meta.tags["tag1"] = "mutated"
	again := MetaFromContext(ctx)
	require.Equal(t, "value1", again.tags["tag1"])
}
