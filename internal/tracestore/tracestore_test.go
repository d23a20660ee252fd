package tracestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLastRun(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, Run{
		ID: "run-1", Graph: "vecadd", Status: "completed",
		InterleaveHash: "aaa", Report: []byte(`{"run_id":"run-1"}`),
		CreatedAt: base,
	}))
	require.NoError(t, s.Save(ctx, Run{
		ID: "run-2", Graph: "vecadd", Status: "completed",
		InterleaveHash: "bbb", Report: []byte(`{"run_id":"run-2"}`),
		CreatedAt: base.Add(time.Minute),
	}))

	last, err := s.LastRun(ctx, "vecadd")
	require.NoError(t, err)
	assert.Equal(t, "run-2", last.ID)
	assert.Equal(t, "bbb", last.InterleaveHash)
	assert.JSONEq(t, `{"run_id":"run-2"}`, string(last.Report))
}

func TestLastRun_NoBaseline(t *testing.T) {
	s := openTemp(t)
	_, err := s.LastRun(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNoRuns)
}

func TestSave_RejectsDuplicateID(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	r := Run{ID: "run-1", Graph: "g", Status: "completed", InterleaveHash: "aaa", Report: []byte("{}")}
	require.NoError(t, s.Save(ctx, r))
	assert.Error(t, s.Save(ctx, r))
}

func TestSave_RequiresIdentity(t *testing.T) {
	s := openTemp(t)
	assert.Error(t, s.Save(context.Background(), Run{Graph: "g"}))
	assert.Error(t, s.Save(context.Background(), Run{ID: "run-1"}))
}

func TestCheckDrift(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, Run{
		ID: "run-1", Graph: "vecadd", Status: "completed",
		InterleaveHash: "aaa", Report: []byte("{}"),
	}))

	assert.NoError(t, s.CheckDrift(ctx, "vecadd", "aaa"))

	err := s.CheckDrift(ctx, "vecadd", "bbb")
	var drift *DriftError
	require.ErrorAs(t, err, &drift)
	assert.Equal(t, "run-1", drift.PrevRun)
	assert.Equal(t, "aaa", drift.PrevHash)
	assert.Equal(t, "bbb", drift.Hash)

	assert.ErrorIs(t, s.CheckDrift(ctx, "ghost", "aaa"), ErrNoRuns)
}
