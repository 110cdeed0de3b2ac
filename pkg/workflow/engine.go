package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/user/checkforge/pkg/llm"
	"github.com/user/checkforge/pkg/rag"
)

// RetryPolicy bounds how often a stage is re-invoked after a transient
// failure. Later stages carry more attempts since their failure throws away
// more completed work.
type RetryPolicy struct {
	Delay       time.Duration
	MaxAttempts int
}

// StageFunc handles one input event and produces follow-up events. A
// returned error is treated as transient and retried per the stage's policy;
// expected failures must be converted into a Result event instead.
type StageFunc func(ctx context.Context, run *Run, ev Event) ([]Event, error)

// JoinFunc handles the fan-in stage once both expected event kinds have
// arrived, keyed by kind.
type JoinFunc func(ctx context.Context, run *Run, events map[string]Event) ([]Event, error)

// Run is the per-run state shared across stages. One run owns it
// exclusively; the two parallel branches only write disjoint fields, which
// keeps the fan-out lock free.
type Run struct {
	ID        string
	Query     string
	Provider  string
	Service   string
	CheckPath string

	LLM   llm.Client
	Store *rag.VectorStore
}

type stage struct {
	name    string
	accepts map[string]bool
	retry   RetryPolicy
	fn      StageFunc
}

type joinStage struct {
	name  string
	kinds [2]string
	retry RetryPolicy
	fn    JoinFunc
}

type joinState struct {
	slots map[string]Event
}

// Engine routes events between registered stages. It is safe for concurrent
// runs; the join accumulator is keyed by run ID.
type Engine struct {
	stages  []*stage
	join    *joinStage
	timeout time.Duration

	mu    sync.Mutex
	joins map[string]*joinState
}

func NewEngine(timeout time.Duration) *Engine {
	return &Engine{
		timeout: timeout,
		joins:   make(map[string]*joinState),
	}
}

// AddStage registers a stage consuming the given event kinds.
func (e *Engine) AddStage(name string, retry RetryPolicy, fn StageFunc, accepts ...string) {
	accepted := make(map[string]bool, len(accepts))
	for _, kind := range accepts {
		accepted[kind] = true
	}
	e.stages = append(e.stages, &stage{name: name, accepts: accepted, retry: retry, fn: fn})
}

// SetJoin registers the fan-in stage. It runs once per run, after one event
// of each kind has been observed; whichever arrives first is held until its
// sibling shows up.
func (e *Engine) SetJoin(name string, retry RetryPolicy, fn JoinFunc, first, second string) {
	e.join = &joinStage{name: name, kinds: [2]string{first, second}, retry: retry, fn: fn}
}

// Execute drives one workflow run to its terminal result. The run carries a
// wall-clock timeout; stage panics and transient-retry exhaustion are both
// folded into a hard-error result, never surfaced as an escaping error.
func (e *Engine) Execute(ctx context.Context, run *Run, start Event) *Result {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	events := make(chan Event, 64)
	var pending sync.WaitGroup
	var resultMu sync.Mutex
	var final *Result

	emit := func(ev Event) {
		pending.Add(1)
		select {
		case events <- ev:
		case <-ctx.Done():
			pending.Done()
		}
	}

	// The channel closes once every queued event and running handler is
	// accounted for.
	pending.Add(1)
	go func() {
		pending.Wait()
		close(events)
	}()
	events <- start

	var handlers errgroup.Group

	spawn := func(name string, retry RetryPolicy, fn func(context.Context) ([]Event, error)) {
		pending.Add(1)
		handlers.Go(func() error {
			defer pending.Done()
			for _, out := range e.invoke(ctx, name, retry, fn) {
				emit(out)
			}
			return nil
		})
	}

	for ev := range events {
		if r, ok := ev.(*Result); ok {
			resultMu.Lock()
			if final == nil {
				final = r
			}
			resultMu.Unlock()
			cancel()
			pending.Done()
			continue
		}

		handled := false
		for _, st := range e.stages {
			if !st.accepts[ev.Kind()] {
				continue
			}
			handled = true
			st, ev := st, ev
			spawn(st.name, st.retry, func(c context.Context) ([]Event, error) {
				return st.fn(c, run, ev)
			})
		}

		if e.join != nil && (ev.Kind() == e.join.kinds[0] || ev.Kind() == e.join.kinds[1]) {
			handled = true
			if both := e.offerJoin(run.ID, ev); both != nil {
				spawn(e.join.name, e.join.retry, func(c context.Context) ([]Event, error) {
					return e.join.fn(c, run, both)
				})
			}
		}

		if !handled {
			llm.Debugf("run %s: no stage accepts event kind %s", run.ID, ev.Kind())
		}
		pending.Done()
	}
	_ = handlers.Wait()

	e.mu.Lock()
	delete(e.joins, run.ID)
	e.mu.Unlock()

	if final == nil {
		if ctx.Err() == context.DeadlineExceeded {
			return hardError("workflow run timed out")
		}
		return hardError("workflow run finished without producing a result")
	}
	if final.StatusCode == StatusHardError && final.ErrorMessage != "" {
		llm.Errorf("run %s: %s", run.ID, final.ErrorMessage)
	}
	return final
}

// invoke runs a stage with its retry policy. Exhausted retries collapse into
// a hard-error result so nothing escapes the engine.
func (e *Engine) invoke(ctx context.Context, name string, retry RetryPolicy, fn func(context.Context) ([]Event, error)) []Event {
	attempts := retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		outs, err := fn(ctx)
		if err == nil {
			return outs
		}
		lastErr = err
		llm.Debugf("stage %s attempt %d/%d failed: %v", name, attempt, attempts, err)
		if ctx.Err() != nil {
			break
		}
		if attempt < attempts {
			select {
			case <-time.After(retry.Delay):
			case <-ctx.Done():
			}
		}
	}
	return []Event{hardError(fmt.Sprintf("stage %s failed after retries: %v", name, lastErr))}
}

func (e *Engine) offerJoin(runID string, ev Event) map[string]Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	js := e.joins[runID]
	if js == nil {
		js = &joinState{slots: make(map[string]Event, 2)}
		e.joins[runID] = js
	}
	js.slots[ev.Kind()] = ev
	if len(js.slots) < 2 {
		return nil
	}
	delete(e.joins, runID)
	return js.slots
}
