package qdrant

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsearch/internal/domain"
)

// startQdrant runs a disposable Qdrant container and returns its gRPC port.
func startQdrant(t *testing.T) int {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping qdrant integration test in short mode")
	}
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	pool.MaxWait = 90 * time.Second

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "qdrant/qdrant",
		Tag:        "v1.16.2",
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err)
	_ = resource.Expire(180)
	t.Cleanup(func() { _ = pool.Purge(resource) })

	port, err := strconv.Atoi(resource.GetPort("6334/tcp"))
	require.NoError(t, err)
	require.NoError(t, pool.Retry(func() error {
		s, err := NewStorage(Config{Port: port, Collection: "probe"})
		if err != nil {
			return err
		}
		defer s.Close()
		_, err = s.client.HealthCheck(context.Background())
		return err
	}))
	return port
}

func TestStorageRoundTrip(t *testing.T) {
	port := startQdrant(t)
	ctx := context.Background()

	s, err := NewStorage(Config{Port: port, Collection: "chunks_test"})
	require.NoError(t, err)
	defer s.Close()

	// searching before Init must not fail
	res, err := s.Search(ctx, []float32{1, 0}, 3, "a")
	require.NoError(t, err)
	assert.Empty(t, res)
	require.NoError(t, s.DeleteByDocument(ctx, "missing"))
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []domain.IndexedVector{
		{ID: uuid.NewString(), DocumentID: "a", Text: "east", Vector: []float32{1, 0}},
		{ID: uuid.NewString(), DocumentID: "a", Text: "north", Vector: []float32{0, 1}},
		{ID: uuid.NewString(), DocumentID: "b", Text: "also east", Vector: []float32{1, 0.05}},
	}))

	res, err = s.Search(ctx, []float32{1, 0}, 2, "a")
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "east", res[0].Text)
	assert.Equal(t, "a", res[0].DocumentID)
	assert.InDelta(t, 0, res[0].Distance, 1e-5)
	assert.Equal(t, "north", res[1].Text)

	res, err = s.Search(ctx, []float32{1, 0}, 5, "")
	require.NoError(t, err)
	assert.Len(t, res, 3)

	require.NoError(t, s.DeleteByDocument(ctx, "a"))
	res, err = s.Search(ctx, []float32{1, 0}, 5, "a")
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestNewStorageRequiresCollection(t *testing.T) {
	_, err := NewStorage(Config{})
	assert.Error(t, err)
}
