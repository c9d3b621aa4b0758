package localstorage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instalytics/internal/adapters/localstorage"
)

func TestLocalStorage_SavesArtifacts(t *testing.T) {
	dir := t.TempDir()
	s := localstorage.NewLocalStorage(dir)
	ctx := context.Background()

	require.NoError(t, s.InitJob(ctx, "run-1"))
	require.NoError(t, s.SaveInput(ctx, "run-1", []byte(`{"usernames":["natgeo"]}`)))
	require.NoError(t, s.SaveItems(ctx, "run-1", []byte(`[{"username":"natgeo"}]`)))

	jobDir := filepath.Join(dir, "jobs", "run-1")
	assert.Equal(t, jobDir, s.GetJobPath("run-1"))

	input, err := os.ReadFile(filepath.Join(jobDir, "input.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"usernames":["natgeo"]}`, string(input))

	items, err := os.ReadFile(filepath.Join(jobDir, "items_raw.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"username":"natgeo"}]`, string(items))

	_, err = os.Stat(filepath.Join(jobDir, "items_raw.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalStorage_SaveBeforeInitFails(t *testing.T) {
	s := localstorage.NewLocalStorage(t.TempDir())
	require.Error(t, s.SaveItems(context.Background(), "run-2", []byte(`[]`)))
}

func TestLocalStorage_RejectsTraversal(t *testing.T) {
	s := localstorage.NewLocalStorage(t.TempDir())

	for _, id := range []string{"", "..", "../escape", `a\b`} {
		assert.Error(t, s.InitJob(context.Background(), id), id)
	}
}

func TestLocalStorage_CanceledContext(t *testing.T) {
	s := localstorage.NewLocalStorage(t.TempDir())
	require.NoError(t, s.InitJob(context.Background(), "run-3"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.SaveInput(ctx, "run-3", []byte(`{}`)), context.Canceled)
}
