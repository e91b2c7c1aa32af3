package stores

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/a2a-core/pkg/a2a"
	"github.com/agentmesh/a2a-core/pkg/errors"
)

func TestTaskStoreSaveAndGet(t *testing.T) {
	store := NewInMemoryTaskStore()
	ctx := context.Background()

	task := a2a.NewTask("t1", "c1")
	require.NoError(t, store.Save(ctx, task))

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)
	assert.Equal(t, "c1", got.ContextID)

	// Mutating the returned task must not touch stored state.
	got.Status.State = a2a.TaskStateFailed
	again, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateSubmitted, again.Status.State)
}

func TestTaskStoreGetMissing(t *testing.T) {
	store := NewInMemoryTaskStore()

	_, err := store.Get(context.Background(), "nope")
	require.Error(t, err)
	rpcErr := errors.AsRpcError(err)
	assert.Equal(t, errors.ErrTaskNotFound.Code, rpcErr.Code)
}

func TestTaskStoreDelete(t *testing.T) {
	store := NewInMemoryTaskStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, a2a.NewTask("t1", "c1")))
	require.NoError(t, store.Delete(ctx, "t1"))

	_, err := store.Get(ctx, "t1")
	assert.Error(t, err)
	assert.Error(t, store.Delete(ctx, "t1"))
}

func TestTaskStoreListFilters(t *testing.T) {
	store := NewInMemoryTaskStore()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, spec := range []struct {
		id      string
		context string
		state   a2a.TaskState
	}{
		{"t1", "c1", a2a.TaskStateCompleted},
		{"t2", "c1", a2a.TaskStateWorking},
		{"t3", "c2", a2a.TaskStateCompleted},
	} {
		task := a2a.NewTask(spec.id, spec.context)
		ts := base.Add(time.Duration(i) * time.Minute)
		task.Status = a2a.TaskStatus{State: spec.state, Timestamp: &ts}
		require.NoError(t, store.Save(ctx, task))
	}

	byContext, err := store.List(ctx, a2a.TaskListParams{ContextID: "c1"})
	require.NoError(t, err)
	assert.Len(t, byContext.Tasks, 2)

	byState, err := store.List(ctx, a2a.TaskListParams{State: a2a.TaskStateCompleted})
	require.NoError(t, err)
	assert.Len(t, byState.Tasks, 2)

	after := base.Add(30 * time.Second)
	byTime, err := store.List(ctx, a2a.TaskListParams{StatusTimestampAfter: &after})
	require.NoError(t, err)
	assert.Len(t, byTime.Tasks, 2)
}

func TestTaskStoreListPagination(t *testing.T) {
	store := NewInMemoryTaskStore()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		task := a2a.NewTask("", "c1")
		ts := base.Add(time.Duration(i) * time.Second)
		task.Status.Timestamp = &ts
		require.NoError(t, store.Save(ctx, task))
	}

	first, err := store.List(ctx, a2a.TaskListParams{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.Tasks, 2)
	require.NotEmpty(t, first.NextPageToken)

	second, err := store.List(ctx, a2a.TaskListParams{PageSize: 2, PageToken: first.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second.Tasks, 2)
	assert.NotEqual(t, first.Tasks[0].ID, second.Tasks[0].ID)

	third, err := store.List(ctx, a2a.TaskListParams{PageSize: 2, PageToken: second.NextPageToken})
	require.NoError(t, err)
	assert.Len(t, third.Tasks, 1)
	assert.Empty(t, third.NextPageToken)

	_, err = store.List(ctx, a2a.TaskListParams{PageToken: "bogus"})
	assert.Error(t, err)
}

func TestTaskStoreListHistoryAndArtifacts(t *testing.T) {
	store := NewInMemoryTaskStore()
	ctx := context.Background()

	task := a2a.NewTask("t1", "c1")
	task.History = []a2a.Message{
		*a2a.AgentTextMessage("one"),
		*a2a.AgentTextMessage("two"),
		*a2a.AgentTextMessage("three"),
	}
	task.Artifacts = []a2a.Artifact{a2a.NewArtifact(a2a.TextPart("result"))}
	require.NoError(t, store.Save(ctx, task))

	capped := 1
	page, err := store.List(ctx, a2a.TaskListParams{HistoryLength: &capped})
	require.NoError(t, err)
	require.Len(t, page.Tasks, 1)
	require.Len(t, page.Tasks[0].History, 1)
	assert.Equal(t, "three", page.Tasks[0].History[0].TextContent())
	assert.Nil(t, page.Tasks[0].Artifacts)

	withArtifacts, err := store.List(ctx, a2a.TaskListParams{IncludeArtifacts: true})
	require.NoError(t, err)
	assert.Len(t, withArtifacts.Tasks[0].Artifacts, 1)
}
