package xaresource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeRecordsCallsInOrder(t *testing.T) {
	f := NewFake("orders-db")
	ctx := context.Background()

	require.NoError(t, f.Start(ctx))
	require.NoError(t, f.Commit(ctx))

	assert.Equal(t, []string{"start", "commit"}, f.Snapshot())
	assert.Equal(t, "orders-db", f.Name())
}

func TestFakeCanBeMadeToFail(t *testing.T) {
	f := NewFake("orders-db")
	f.FailStart = true

	err := f.Start(context.Background())
	assert.Error(t, err)
	assert.Equal(t, []string{"start"}, f.Snapshot())
}

func TestFakeFactoryNamesSequentially(t *testing.T) {
	factory := NewFakeFactory("demo")

	r1, err := factory.NewResource(nil)
	require.NoError(t, err)
	r2, err := factory.NewResource(nil)
	require.NoError(t, err)

	assert.Equal(t, "demo-1", r1.Name())
	assert.Equal(t, "demo-2", r2.Name())
	assert.Len(t, factory.Produced, 2)
}
