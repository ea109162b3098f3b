// AngelaMos | 2026
// denylist_test.go

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/templates/user-svc/internal/core"
)

func TestRedisDenylist_KeysUseStorePrefix(t *testing.T) {
	t.Parallel()

	d := NewRedisDenylist(&core.Redis{KeyPrefix: "accounts"})
	assert.Equal(t, "accounts:denylist:access:jti-1", d.key("jti-1"))

	bare := NewRedisDenylist(&core.Redis{})
	assert.Equal(t, "denylist:access:jti-1", bare.key("jti-1"))
}

func TestRedisDenylist_SkipsWithoutRoundTrip(t *testing.T) {
	t.Parallel()

	d := NewRedisDenylist(&core.Redis{KeyPrefix: "accounts"})
	ctx := context.Background()

	require.NoError(t, d.Revoke(ctx, "jti-1", time.Now().Add(-time.Minute)))
	require.NoError(t, d.Revoke(ctx, "", time.Now().Add(time.Hour)))

	revoked, err := d.IsRevoked(ctx, "")
	require.NoError(t, err)
	assert.False(t, revoked)
}
