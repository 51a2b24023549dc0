package txn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corepool/dbpool/pkg/xaresource"
)

func TestEnlistThenCommitRunsStartAndCommit(t *testing.T) {
	ctx := context.Background()
	scope := Begin()
	res := xaresource.NewFake("res-a")

	require.NoError(t, scope.Enlist(ctx, nil, res))
	require.NoError(t, scope.Commit(ctx))

	assert.Equal(t, []string{"start", "commit"}, res.Snapshot())
	assert.True(t, scope.Done())
}

func TestDuplicateEnlistIsIdempotent(t *testing.T) {
	ctx := context.Background()
	scope := Begin()
	first := xaresource.NewFake("res-a")
	second := xaresource.NewFake("res-a")

	require.NoError(t, scope.Enlist(ctx, nil, first))
	require.NoError(t, scope.Enlist(ctx, nil, second))

	assert.Equal(t, []string{"start"}, first.Snapshot())
	assert.Empty(t, second.Snapshot(), "re-enlisting an already-enlisted name must not start the new resource")

	require.NoError(t, scope.Commit(ctx))
	assert.Equal(t, []string{"start", "commit"}, first.Snapshot(), "the original enlisted resource finalizes the scope")
}

func TestRollbackAbortsAllEnlistedResources(t *testing.T) {
	ctx := context.Background()
	scope := Begin()
	a := xaresource.NewFake("a")
	b := xaresource.NewFake("b")

	require.NoError(t, scope.Enlist(ctx, nil, a))
	require.NoError(t, scope.Enlist(ctx, nil, b))
	require.NoError(t, scope.Rollback(ctx))

	assert.Equal(t, []string{"start", "rollback"}, a.Snapshot())
	assert.Equal(t, []string{"start", "rollback"}, b.Snapshot())
	assert.True(t, scope.Done())
}

func TestCommitAfterTerminalStateRejected(t *testing.T) {
	ctx := context.Background()
	scope := Begin()
	require.NoError(t, scope.Commit(ctx))
	assert.Error(t, scope.Commit(ctx))
}

func TestSuspendAndResumeReassociates(t *testing.T) {
	ctx := context.Background()
	scope := Begin()
	res := xaresource.NewFake("res-a")
	require.NoError(t, scope.Enlist(ctx, nil, res))

	require.NoError(t, scope.Suspend(ctx))
	require.NoError(t, scope.Resume(ctx))
	require.NoError(t, scope.Commit(ctx))

	assert.Equal(t, []string{"start", "end", "start", "commit"}, res.Snapshot())
}

func TestDelistEndsWithoutFinalizing(t *testing.T) {
	ctx := context.Background()
	scope := Begin()
	res := xaresource.NewFake("res-a")
	require.NoError(t, scope.Enlist(ctx, nil, res))

	require.NoError(t, scope.Delist(ctx, "res-a"))
	assert.Equal(t, []string{"start", "end"}, res.Snapshot())
	assert.False(t, scope.Done())
}
