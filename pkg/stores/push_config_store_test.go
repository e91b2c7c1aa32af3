package stores

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/a2a-core/pkg/a2a"
)

func TestPushConfigStoreSaveGeneratesID(t *testing.T) {
	store := NewInMemoryPushConfigStore()
	ctx := context.Background()

	saved, err := store.Save(ctx, "t1", &a2a.PushNotificationConfig{URL: "https://hooks.example.com/a2a"})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	got, err := store.Get(ctx, "t1", saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/a2a", got.URL)
}

func TestPushConfigStoreSaveValidates(t *testing.T) {
	store := NewInMemoryPushConfigStore()

	_, err := store.Save(context.Background(), "", &a2a.PushNotificationConfig{URL: "https://x"})
	assert.Error(t, err)

	_, err = store.Save(context.Background(), "t1", &a2a.PushNotificationConfig{})
	assert.Error(t, err)
}

func TestPushConfigStoreSaveUpserts(t *testing.T) {
	store := NewInMemoryPushConfigStore()
	ctx := context.Background()

	_, err := store.Save(ctx, "t1", &a2a.PushNotificationConfig{ID: "cfg", URL: "https://old"})
	require.NoError(t, err)
	_, err = store.Save(ctx, "t1", &a2a.PushNotificationConfig{ID: "cfg", URL: "https://new"})
	require.NoError(t, err)

	configs, err := store.List(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "https://new", configs[0].URL)
}

func TestPushConfigStoreGetSoleConfigWithoutID(t *testing.T) {
	store := NewInMemoryPushConfigStore()
	ctx := context.Background()

	saved, err := store.Save(ctx, "t1", &a2a.PushNotificationConfig{URL: "https://only"})
	require.NoError(t, err)

	got, err := store.Get(ctx, "t1", "")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)

	// Ambiguous once a second config exists.
	_, err = store.Save(ctx, "t1", &a2a.PushNotificationConfig{URL: "https://second"})
	require.NoError(t, err)
	_, err = store.Get(ctx, "t1", "")
	assert.Error(t, err)
}

func TestPushConfigStoreListOrderAndDelete(t *testing.T) {
	store := NewInMemoryPushConfigStore()
	ctx := context.Background()

	for _, id := range []string{"c1", "c2", "c3"} {
		_, err := store.Save(ctx, "t1", &a2a.PushNotificationConfig{ID: id, URL: "https://" + id})
		require.NoError(t, err)
	}

	configs, err := store.List(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, configs, 3)
	assert.Equal(t, "c1", configs[0].ID)
	assert.Equal(t, "c3", configs[2].ID)

	require.NoError(t, store.Delete(ctx, "t1", "c2"))
	configs, err = store.List(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, "c3", configs[1].ID)

	assert.Error(t, store.Delete(ctx, "t1", "c2"))
	assert.Error(t, store.Delete(ctx, "t9", "c1"))
}

func TestPushConfigStoreListEmptyTask(t *testing.T) {
	store := NewInMemoryPushConfigStore()

	configs, err := store.List(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, configs)
}
