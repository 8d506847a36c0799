package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordStage(t *testing.T) {
	c := NewCollector()
	c.RecordStage("fetch", 100*time.Millisecond, nil)
	c.RecordStage("fetch", 300*time.Millisecond, errors.New("404"))
	c.RecordStage("analyze", 2*time.Second, nil)

	snap := c.Snapshot()
	require.Len(t, snap.Stages, 2)

	analyze, fetch := snap.Stages[0], snap.Stages[1]
	assert.Equal(t, "analyze", analyze.Stage)
	assert.Equal(t, "fetch", fetch.Stage)

	assert.EqualValues(t, 2, fetch.Count)
	assert.EqualValues(t, 1, fetch.Failures)
	assert.EqualValues(t, 400, fetch.TotalTimeMs)
	assert.InDelta(t, 200, fetch.AvgTimeMs, 0.001)
	assert.EqualValues(t, 100, fetch.MinTimeMs)
	assert.EqualValues(t, 300, fetch.MaxTimeMs)
}

func TestRecordOutcome(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordOutcome(OutcomeCompleted)
		}()
	}
	wg.Wait()
	c.RecordOutcome(OutcomeDegraded)

	snap := c.Snapshot()
	assert.EqualValues(t, 10, snap.Outcomes[OutcomeCompleted])
	assert.EqualValues(t, 1, snap.Outcomes[OutcomeDegraded])
	assert.Zero(t, snap.Outcomes[OutcomeFailed])
}

func TestEmptySnapshot(t *testing.T) {
	snap := NewCollector().Snapshot()
	assert.Empty(t, snap.Stages)
	assert.Empty(t, snap.Outcomes)
	assert.GreaterOrEqual(t, snap.UptimeSeconds, 0.0)
}
