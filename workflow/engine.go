package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

// Step terminal states as recorded in the store.
const (
	StepStatusDone   = "done"
	StepStatusFailed = "failed"
)

// Backoff curves for retry delays between attempts.
const (
	BackoffNone        = "none"
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// Policy controls retries and the per-attempt timeout of a single step.
// The zero value means one attempt, no delay, no extra timeout.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Backoff      string
	Timeout      time.Duration
}

// StepRecord is the durable checkpoint of one step within one run.
type StepRecord struct {
	RunID    string
	Name     string
	Status   string
	Attempts int
	Result   json.RawMessage
	Error    string
}

// Store persists step checkpoints. Load returns (nil, nil) when the step has
// no record yet. Save must be an upsert on (runID, name) and must be durable
// before it returns: the engine relies on the write being visible to a
// re-entered run.
type Store interface {
	Load(runID, name string) (*StepRecord, error)
	Save(rec *StepRecord) error
}

// StepFunc is the unit of work of a step. Its result must be JSON-serializable.
// The function must tolerate re-invocation: a timed-out attempt may have
// partially executed before the engine retries it.
type StepFunc func(ctx context.Context) (interface{}, error)

// Engine executes named steps for one run, persisting each step's result
// before the next step begins. Re-entering the same sequence with the same
// run id skips steps that already completed and replays their stored results.
type Engine struct {
	runID string
	store Store
}

func NewEngine(runID string, store Store) *Engine {
	return &Engine{runID: runID, store: store}
}

func (e *Engine) RunID() string {
	return e.runID
}

// Execute runs the named step under the given policy and returns its
// JSON-encoded result. A step that previously completed in this run is not
// re-executed. A nil policy means a single attempt with no extra timeout.
func (e *Engine) Execute(ctx context.Context, name string, policy *Policy, fn StepFunc) (json.RawMessage, error) {
	if policy == nil {
		policy = &Policy{}
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	prev, err := e.store.Load(e.runID, name)
	if err != nil {
		return nil, fmt.Errorf("load step %q: %w", name, err)
	}
	if prev != nil && prev.Status == StepStatusDone {
		log.Printf("[Workflow] run %s: step %q already done, replaying result", e.runID, name)
		return prev.Result, nil
	}

	raw, attempts, runErr := e.attempt(ctx, name, policy, fn)
	if runErr != nil {
		if saveErr := e.store.Save(&StepRecord{
			RunID:    e.runID,
			Name:     name,
			Status:   StepStatusFailed,
			Attempts: attempts,
			Error:    runErr.Error(),
		}); saveErr != nil {
			log.Printf("[Workflow] run %s: persist failure of step %q: %v", e.runID, name, saveErr)
		}
		return nil, fmt.Errorf("step %q: %w", name, runErr)
	}

	if err := e.store.Save(&StepRecord{
		RunID:    e.runID,
		Name:     name,
		Status:   StepStatusDone,
		Attempts: attempts,
		Result:   raw,
	}); err != nil {
		return nil, fmt.Errorf("persist step %q: %w", name, err)
	}
	return raw, nil
}

// attempt loops the work function under the retry policy. It returns the
// marshaled result and the number of attempts consumed.
func (e *Engine) attempt(ctx context.Context, name string, policy *Policy, fn StepFunc) (json.RawMessage, int, error) {
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := retryDelay(policy, attempt)
			log.Printf("[Workflow] run %s: step %q attempt %d/%d after %s (previous: %v)",
				e.runID, name, attempt, policy.MaxAttempts, delay, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, attempt - 1, ctx.Err()
			}
		}

		result, err := e.runOnce(ctx, policy, fn)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, attempt, lastErr
			}
			continue
		}

		raw, err := json.Marshal(result)
		if err != nil {
			return nil, attempt, fmt.Errorf("marshal result: %w", err)
		}
		return raw, attempt, nil
	}
	return nil, policy.MaxAttempts, lastErr
}

func (e *Engine) runOnce(ctx context.Context, policy *Policy, fn StepFunc) (interface{}, error) {
	if policy.Timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, policy.Timeout)
	defer cancel()
	result, err := fn(attemptCtx)
	if err != nil && attemptCtx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("timed out after %s: %w", policy.Timeout, err)
	}
	return result, err
}

// retryDelay returns the sleep before the given attempt (attempt >= 2).
func retryDelay(policy *Policy, attempt int) time.Duration {
	if policy.InitialDelay <= 0 {
		return 0
	}
	switch policy.Backoff {
	case BackoffExponential:
		delay := policy.InitialDelay
		for i := 2; i < attempt; i++ {
			delay *= 2
		}
		return delay
	default:
		// fixed and none both fall back to the initial delay between attempts
		return policy.InitialDelay
	}
}
