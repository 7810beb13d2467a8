package host

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"go.uber.org/zap"
)

// EvalFunc runs expr in the given execution context.
type EvalFunc func(ctx context.Context, contextID runtime.ExecutionContextID, expr string) error

type evalJob struct {
	contextID runtime.ExecutionContextID
	expr      string
}

type navJob struct {
	key string
	evalJob
}

// evaluator serializes script evaluations on a single goroutine so the loop
// never waits on the browser. Scroll jobs are dropped when the queue is full;
// the next report repeats them. Navigation jobs are never dropped: they wait
// in a separate list, keyed so a newer one for the same key replaces an older
// one still pending, and run before any queued scroll.
type evaluator struct {
	logger  *zap.Logger
	exec    EvalFunc
	timeout time.Duration
	queue   chan evalJob

	mu   sync.Mutex
	navs []navJob
	wake chan struct{}
}

func newEvaluator(logger *zap.Logger, exec EvalFunc, size int, timeout time.Duration) *evaluator {
	if size <= 0 {
		size = 64
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &evaluator{
		logger:  logger.Named("evaluator"),
		exec:    exec,
		timeout: timeout,
		queue:   make(chan evalJob, size),
		wake:    make(chan struct{}, 1),
	}
}

// Enqueue schedules expr. It never blocks.
func (e *evaluator) Enqueue(contextID runtime.ExecutionContextID, expr string) bool {
	select {
	case e.queue <- evalJob{contextID: contextID, expr: expr}:
		return true
	default:
		e.logger.Warn("Evaluation queue full, dropping command.", zap.Int64("context_id", int64(contextID)))
		return false
	}
}

// EnqueueNav schedules a navigation expr. It never blocks and never drops;
// a pending job with the same key is replaced in place.
func (e *evaluator) EnqueueNav(contextID runtime.ExecutionContextID, key, expr string) {
	job := navJob{key: key, evalJob: evalJob{contextID: contextID, expr: expr}}
	e.mu.Lock()
	replaced := false
	for i := range e.navs {
		if e.navs[i].key == key {
			e.navs[i] = job
			replaced = true
			break
		}
	}
	if !replaced {
		e.navs = append(e.navs, job)
	}
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *evaluator) nextNav() (evalJob, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.navs) == 0 {
		return evalJob{}, false
	}
	job := e.navs[0].evalJob
	e.navs = e.navs[1:]
	return job, true
}

// Run processes jobs until ctx is done.
func (e *evaluator) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if job, ok := e.nextNav(); ok {
			e.run(ctx, job)
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-e.wake:
		case job := <-e.queue:
			e.run(ctx, job)
		}
	}
}

func (e *evaluator) run(ctx context.Context, job evalJob) {
	jobCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.exec(jobCtx, job.contextID, job.expr); err != nil {
		// Contexts vanish whenever a frame navigates; this is routine.
		e.logger.Debug("Script evaluation failed.",
			zap.Int64("context_id", int64(job.contextID)), zap.Error(err))
	}
}
