package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	s, err := Open(filepath.Join(t.TempDir(), "nested", "layouts.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadReplace(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	_, err := s.LoadLayout(ctx, "scene.sensors")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveLayout(ctx, "scene.sensors", []byte(`[1]`)))
	require.NoError(t, s.SaveLayout(ctx, "scene.sensors", []byte(`[1,2]`)))
	require.NoError(t, s.SaveLayout(ctx, "other", []byte(`[]`)))

	l, err := s.LoadLayout(ctx, "scene.sensors")
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(l.Payload))
	assert.False(t, l.SavedAt.IsZero())

	names, err := s.Names(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"scene.sensors", "other"}, names)

	require.NoError(t, s.DeleteLayout(ctx, "other"))
	require.NoError(t, s.DeleteLayout(ctx, "missing"))
	names, err = s.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"scene.sensors"}, names)
}

func TestInMemoryStore(t *testing.T) {
	s, err := Open(":memory:", logrus.New())
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.SaveLayout(ctx, "a", []byte("x")))
	l, err := s.LoadLayout(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "x", string(l.Payload))
}
