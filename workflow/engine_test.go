package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store for engine tests.
type memStore struct {
	mu      sync.Mutex
	records map[string]*StepRecord
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*StepRecord)}
}

func (s *memStore) Load(runID, name string) (*StepRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[runID+"/"+name]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *memStore) Save(rec *StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.RunID+"/"+rec.Name] = &cp
	return nil
}

func TestEngine_ExecutePersistsResult(t *testing.T) {
	store := newMemStore()
	eng := NewEngine("run-1", store)

	raw, err := eng.Execute(context.Background(), "generate-script", nil, func(ctx context.Context) (interface{}, error) {
		return map[string]string{"title": "Renewable Energy"}, nil
	})
	require.NoError(t, err)

	var out map[string]string
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "Renewable Energy", out["title"])

	rec, err := store.Load("run-1", "generate-script")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, StepStatusDone, rec.Status)
	assert.Equal(t, 1, rec.Attempts)
}

func TestEngine_ResumeSkipsCompletedSteps(t *testing.T) {
	store := newMemStore()

	calls := 0
	work := func(ctx context.Context) (interface{}, error) {
		calls++
		return "result", nil
	}

	eng := NewEngine("run-1", store)
	_, err := eng.Execute(context.Background(), "step-a", nil, work)
	require.NoError(t, err)

	// Simulate a crash and re-entry: a fresh engine with the same run id.
	resumed := NewEngine("run-1", store)
	raw, err := resumed.Execute(context.Background(), "step-a", nil, work)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "completed step must not re-execute")

	var s string
	require.NoError(t, json.Unmarshal(raw, &s))
	assert.Equal(t, "result", s)
}

func TestEngine_DistinctRunsDoNotShareResults(t *testing.T) {
	store := newMemStore()

	calls := 0
	work := func(ctx context.Context) (interface{}, error) {
		calls++
		return calls, nil
	}

	_, err := NewEngine("run-1", store).Execute(context.Background(), "step-a", nil, work)
	require.NoError(t, err)
	_, err = NewEngine("run-2", store).Execute(context.Background(), "step-a", nil, work)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestEngine_RetriesUntilSuccess(t *testing.T) {
	store := newMemStore()
	eng := NewEngine("run-1", store)

	calls := 0
	raw, err := eng.Execute(context.Background(), "flaky", &Policy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		Backoff:      BackoffExponential,
	}, func(ctx context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	var s string
	require.NoError(t, json.Unmarshal(raw, &s))
	assert.Equal(t, "ok", s)

	rec, _ := store.Load("run-1", "flaky")
	assert.Equal(t, 3, rec.Attempts)
}

func TestEngine_FailureAfterExhaustedAttempts(t *testing.T) {
	store := newMemStore()
	eng := NewEngine("run-1", store)

	calls := 0
	_, err := eng.Execute(context.Background(), "doomed", &Policy{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
	}, func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "doomed")
	assert.Contains(t, err.Error(), "boom")

	rec, _ := store.Load("run-1", "doomed")
	require.NotNil(t, rec)
	assert.Equal(t, StepStatusFailed, rec.Status)
	assert.Equal(t, "boom", rec.Error)
}

func TestEngine_FailedStepIsRetriedOnReentry(t *testing.T) {
	store := newMemStore()

	calls := 0
	work := func(ctx context.Context) (interface{}, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("boom")
		}
		return "recovered", nil
	}

	_, err := NewEngine("run-1", store).Execute(context.Background(), "step-a", nil, work)
	require.Error(t, err)

	// A failed record does not block re-execution within the same run id.
	raw, err := NewEngine("run-1", store).Execute(context.Background(), "step-a", nil, work)
	require.NoError(t, err)

	var s string
	require.NoError(t, json.Unmarshal(raw, &s))
	assert.Equal(t, "recovered", s)
}

func TestEngine_PerAttemptTimeout(t *testing.T) {
	store := newMemStore()
	eng := NewEngine("run-1", store)

	_, err := eng.Execute(context.Background(), "slow", &Policy{
		MaxAttempts: 1,
		Timeout:     20 * time.Millisecond,
	}, func(ctx context.Context) (interface{}, error) {
		select {
		case <-time.After(time.Second):
			return "never", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestEngine_CancelledContextStopsRetrying(t *testing.T) {
	store := newMemStore()
	eng := NewEngine("run-1", store)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := eng.Execute(ctx, "cancelled", &Policy{
		MaxAttempts:  10,
		InitialDelay: 50 * time.Millisecond,
		Backoff:      BackoffFixed,
	}, func(ctx context.Context) (interface{}, error) {
		calls++
		cancel()
		return nil, errors.New("transient")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "no retries after the run context is cancelled")
}

func TestRetryDelay_Exponential(t *testing.T) {
	p := &Policy{InitialDelay: time.Second, Backoff: BackoffExponential}
	assert.Equal(t, time.Second, retryDelay(p, 2))
	assert.Equal(t, 2*time.Second, retryDelay(p, 3))
	assert.Equal(t, 4*time.Second, retryDelay(p, 4))
}

func TestRetryDelay_Fixed(t *testing.T) {
	p := &Policy{InitialDelay: time.Second, Backoff: BackoffFixed}
	assert.Equal(t, time.Second, retryDelay(p, 2))
	assert.Equal(t, time.Second, retryDelay(p, 5))
}
