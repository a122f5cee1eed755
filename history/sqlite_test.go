package history

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	offerrors "github.com/wippyai/wasm-offload/errors"
	"github.com/wippyai/wasm-offload/host"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func makeRecord(id string, outcome string, started time.Time, d time.Duration) *Record {
	return &Record{
		ID:         id,
		Outcome:    outcome,
		Payload:    "Proof verified",
		StartedAt:  started,
		FinishedAt: started.Add(d),
		DurationMS: d.Milliseconds(),
	}
}

func TestInsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	started := time.Now().UTC().Truncate(time.Second)
	r := makeRecord("01J0000000000000000000000A", OutcomeSuccess, started, 1500*time.Millisecond)

	require.NoError(t, s.Insert(ctx, r))

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, OutcomeSuccess, got.Outcome)
	assert.Equal(t, "Proof verified", got.Payload)
	assert.Equal(t, int64(1500), got.DurationMS)
	assert.True(t, got.StartedAt.Equal(started), "started_at = %s, want %s", got.StartedAt, started)
	assert.True(t, got.FinishedAt.Equal(r.FinishedAt))
}

func TestInsertDuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := makeRecord("dup", OutcomeSuccess, time.Now().UTC(), time.Second)

	require.NoError(t, s.Insert(ctx, r))
	assert.Error(t, s.Insert(ctx, r))
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, offerrors.KindNotFound, offerrors.KindOf(err))
}

func TestListNewestFirstWithPaging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 5; i++ {
		r := makeRecord(fmt.Sprintf("run-%d", i), OutcomeSuccess, base.Add(time.Duration(i)*time.Minute), time.Second)
		require.NoError(t, s.Insert(ctx, r))
	}

	page, total, err := s.List(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "run-4", page[0].ID)
	assert.Equal(t, "run-3", page[1].ID)

	page, _, err = s.List(ctx, 10, 4)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "run-0", page[0].ID)
}

func TestListEmpty(t *testing.T) {
	s := newTestStore(t)

	page, total, err := s.List(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, page)
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Insert(ctx, makeRecord("a", OutcomeSuccess, now, 100*time.Millisecond)))
	require.NoError(t, s.Insert(ctx, makeRecord("b", OutcomeSuccess, now, 300*time.Millisecond)))
	require.NoError(t, s.Insert(ctx, makeRecord("c", OutcomeFailure, now, 200*time.Millisecond)))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 2, st.CountByOutcome[OutcomeSuccess])
	assert.Equal(t, 1, st.CountByOutcome[OutcomeFailure])
	assert.InDelta(t, 200.0, st.AvgDurationMS, 0.001)
}

func TestStatsEmpty(t *testing.T) {
	st, err := newTestStore(t).Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.Total)
	assert.Zero(t, st.AvgDurationMS)
	assert.Empty(t, st.CountByOutcome)
}

func TestFromOutcome(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name        string
		outcome     host.Outcome
		wantOutcome string
		wantPayload string
	}{
		{
			name:        "success",
			outcome:     host.Outcome{RequestID: "a", Result: "Proof verified"},
			wantOutcome: OutcomeSuccess,
			wantPayload: "Proof verified",
		},
		{
			name:        "run fault",
			outcome:     host.Outcome{RequestID: "b", Err: offerrors.RunFault("b", "RuntimeError - unreachable")},
			wantOutcome: OutcomeFailure,
			wantPayload: "RuntimeError - unreachable",
		},
		{
			name:        "disposed",
			outcome:     host.Outcome{RequestID: "c", Err: offerrors.ContextLost("c", "execution context terminated")},
			wantOutcome: OutcomeLost,
			wantPayload: "execution context terminated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.outcome.Started = start
			tt.outcome.Finished = start.Add(250 * time.Millisecond)

			r := FromOutcome(tt.outcome)
			assert.Equal(t, tt.outcome.RequestID, r.ID)
			assert.Equal(t, tt.wantOutcome, r.Outcome)
			assert.Equal(t, tt.wantPayload, r.Payload)
			assert.Equal(t, int64(250), r.DurationMS)
		})
	}
}

func TestRecorder(t *testing.T) {
	s := newTestStore(t)
	record := Recorder(s, zap.NewNop())

	now := time.Now()
	record(host.Outcome{RequestID: "r1", Result: "Proof verified", Started: now, Finished: now})

	got, err := s.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, got.Outcome)
}
