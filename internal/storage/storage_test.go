package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strudel-ai/strudel/pkg/types"
)

func TestStoragePutGet(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	type record struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	err := s.Put(ctx, []string{"session", "abc"}, record{Name: "test", Count: 3})
	require.NoError(t, err)

	var got record
	err = s.Get(ctx, []string{"session", "abc"}, &got)
	require.NoError(t, err)
	assert.Equal(t, "test", got.Name)
	assert.Equal(t, 3, got.Count)
}

func TestStorageGetNotFound(t *testing.T) {
	s := New(t.TempDir())

	var v map[string]any
	err := s.Get(context.Background(), []string{"missing"}, &v)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetRaw(context.Background(), []string{"missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorageDelete(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, []string{"x"}, map[string]string{"a": "b"}))
	assert.True(t, s.Exists(ctx, []string{"x"}))

	require.NoError(t, s.Delete(ctx, []string{"x"}))
	assert.False(t, s.Exists(ctx, []string{"x"}))

	// deleting again is not an error
	assert.NoError(t, s.Delete(ctx, []string{"x"}))
}

func TestStorageList(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, []string{"transcript", "s1"}, map[string]int{"v": 1}))
	require.NoError(t, s.Put(ctx, []string{"transcript", "s2"}, map[string]int{"v": 2}))

	items, err := s.List(ctx, []string{"transcript"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, items)

	empty, err := s.List(ctx, []string{"nope"})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStoragePutLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	require.NoError(t, s.Put(context.Background(), []string{"a"}, map[string]int{"v": 1}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.json", entries[0].Name())
}

func TestTranscriptStoreRoundTrip(t *testing.T) {
	ts := NewTranscriptStore(New(t.TempDir()))
	ctx := context.Background()

	errMsg := "pattern rejected"
	turns := []types.Turn{
		&types.UserTurn{ID: "t1", Type: "user", Text: "make a beat", Created: 100},
		&types.ToolCallTurn{ID: "t2", Type: "tool_call", CallID: "c1", Tool: "update_pattern", Created: 101},
		&types.ToolResultTurn{ID: "t3", Type: "tool_result", CallID: "c1", Error: &errMsg, Created: 102},
		&types.AssistantTurn{ID: "t4", Type: "assistant", Text: "done", Created: 103},
	}

	require.NoError(t, ts.Save(ctx, "sess-1", turns))

	got, err := ts.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "user", got[0].TurnType())
	assert.Equal(t, "tool_call", got[1].TurnType())
	result, ok := got[2].(*types.ToolResultTurn)
	require.True(t, ok)
	require.NotNil(t, result.Error)
	assert.Equal(t, "pattern rejected", *result.Error)
	assert.Equal(t, "t4", got[3].TurnID())
}

func TestTranscriptStoreInit(t *testing.T) {
	ts := NewTranscriptStore(New(t.TempDir()))
	ctx := context.Background()

	require.NoError(t, ts.Init(ctx, "sess-2"))
	got, err := ts.Load(ctx, "sess-2")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTranscriptStoreUnsupportedVersion(t *testing.T) {
	dir := t.TempDir()
	ts := NewTranscriptStore(New(dir))

	path := filepath.Join(dir, "transcript", "sess-3.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99, "turns": []}`), 0644))

	_, err := ts.Load(context.Background(), "sess-3")
	assert.ErrorContains(t, err, "unsupported version")
}

func TestTranscriptStoreMissing(t *testing.T) {
	ts := NewTranscriptStore(New(t.TempDir()))
	_, err := ts.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
