package store

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendUpdatesCounters(t *testing.T) {
	s := New()

	s.Append(json.RawMessage(`{"metrics":[1,2,3]}`), 3)
	s.Append(json.RawMessage(`{"metrics":[1,2]}`), 2)

	stats := s.Snapshot()
	assert.Equal(t, 2, stats.TotalBatches)
	assert.Equal(t, 5, stats.TotalMetrics)
	assert.Equal(t, 2, stats.StoredBatches)
	assert.False(t, stats.LastReceived.IsZero())
	assert.Equal(t, s.StartTime(), stats.StartTime)
}

func TestAppendKeepsBodyVerbatim(t *testing.T) {
	s := New()
	raw := json.RawMessage(`{"server_id":"srv_1","extra":{"b":2,"a":1},"metrics":[]}`)

	s.Append(raw, 0)

	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, []byte(raw), []byte(latest.Batch))
}

func TestLatestOnEmptyStore(t *testing.T) {
	s := New()

	_, ok := s.Latest()
	assert.False(t, ok)
}

func TestLatestReturnsNewest(t *testing.T) {
	s := New()
	for i := 0; i < 3; i++ {
		s.Append(json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)), 1)
	}

	latest, ok := s.Latest()
	require.True(t, ok)
	assert.JSONEq(t, `{"n":2}`, string(latest.Batch))
}

func TestAllReturnsOldestFirst(t *testing.T) {
	s := New()
	for i := 0; i < 4; i++ {
		s.Append(json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)), 1)
	}

	all := s.All()
	require.Len(t, all, 4)
	for i, entry := range all {
		assert.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i), string(entry.Batch))
	}
}

func TestAppendReturnsStoredTimestamp(t *testing.T) {
	s := New()

	received := s.Append(json.RawMessage(`{}`), 0)

	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, received, latest.ReceivedAt)
	assert.Equal(t, received, s.Snapshot().LastReceived)
}

func TestReset(t *testing.T) {
	s := New()
	start := s.StartTime()
	s.Append(json.RawMessage(`{"metrics":[1]}`), 1)

	s.Reset()

	stats := s.Snapshot()
	assert.Equal(t, 0, stats.TotalBatches)
	assert.Equal(t, 0, stats.TotalMetrics)
	assert.Equal(t, 0, stats.StoredBatches)
	assert.True(t, stats.LastReceived.IsZero())
	assert.Equal(t, start, stats.StartTime)

	_, ok := s.Latest()
	assert.False(t, ok)

	// resetting an already empty store is fine
	s.Reset()
	assert.Equal(t, 0, s.Snapshot().TotalBatches)
}

func TestStartTimeIsRecent(t *testing.T) {
	s := New()
	assert.WithinDuration(t, time.Now(), s.StartTime(), time.Second)
}
