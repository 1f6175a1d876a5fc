package reqid

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestContextRoundTrip(t *testing.T) {
	ctx, id := NewContext(context.Background())
	got, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, id, got)
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	_, ok = FromContext(context.Background())
	require.False(t, ok)
}

func TestWithIDKeepsValidIDs(t *testing.T) {
	const id = "9b2f3c1e-3d5a-4c8e-9a7b-2f1d0c6e8a41"
	got, _ := FromContext(WithID(context.Background(), id))
	require.Equal(t, id, got)

	got, _ = FromContext(WithID(context.Background(), "not-a-uuid"))
	require.NotEqual(t, "not-a-uuid", got)
	_, err := uuid.Parse(got)
	require.NoError(t, err)
}
