package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"wolf-backend/internal/store/storetest"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStoreContract(t *testing.T) {
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "wolf.db"), zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	storetest.Run(t, s)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wolf.db")
	for i := 0; i < 2; i++ {
		s, err := Open(context.Background(), path, zap.NewNop().Sugar())
		require.NoError(t, err)
		require.NoError(t, s.Close())
	}
}
