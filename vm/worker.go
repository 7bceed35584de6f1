package vm

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// DrainPolicy decides what termination does with requests that were
// accepted but have not started.
type DrainPolicy int

const (
	// DrainQueued runs every accepted request before the worker stops.
	DrainQueued DrainPolicy = iota
	// DiscardQueued cancels unstarted requests with ErrWorkerTerminated.
	// The request already executing still completes.
	DiscardQueued
)

func (p DrainPolicy) String() string {
	switch p {
	case DrainQueued:
		return "drain"
	case DiscardQueued:
		return "discard"
	default:
		return fmt.Sprintf("DrainPolicy(%d)", int(p))
	}
}

// ParseDrainPolicy converts "drain" or "discard" to a DrainPolicy.
func ParseDrainPolicy(s string) (DrainPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "drain", "":
		return DrainQueued, nil
	case "discard":
		return DiscardQueued, nil
	default:
		return 0, fmt.Errorf("unknown drain policy %q", s)
	}
}

// DefaultQueueSize is the request buffer of a worker started without
// WithQueueSize.
const DefaultQueueSize = 64

var workerLog = commonlog.GetLogger("isola.worker")

// request is a unit of work queued on a worker.
type request struct {
	future    *Future
	mode      TransferMode
	value     Value
	consumer  func(Value) (Value, error)
	terminate bool
}

// Worker runs requests one at a time, in submission order, on its own
// goroutine. Values reach it only through the transfer protocol.
type Worker struct {
	id       string
	name     string
	drain    DrainPolicy
	requests chan *request
	registry *Registry

	mu          sync.Mutex // orders submissions against termination
	termination *Future
	terminating atomic.Bool
	sending     sync.WaitGroup // accepted requests not yet queued

	stopped chan struct{}
}

// WorkerOption configures StartWorker.
type WorkerOption func(*Worker)

// WithQueueSize sets the request buffer. Schedule blocks while it is full.
func WithQueueSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.requests = make(chan *request, n)
		}
	}
}

// WithDrainPolicy sets the termination policy.
func WithDrainPolicy(p DrainPolicy) WorkerOption {
	return func(w *Worker) { w.drain = p }
}

// WithName labels the worker in logs.
func WithName(name string) WorkerOption {
	return func(w *Worker) { w.name = name }
}

// WithRegistry registers the worker in r instead of the default registry.
func WithRegistry(r *Registry) WorkerOption {
	return func(w *Worker) { w.registry = r }
}

// StartWorker creates a worker and starts its goroutine.
func StartWorker(opts ...WorkerOption) *Worker {
	w := &Worker{
		id:       uuid.New().String(),
		drain:    DrainQueued,
		requests: make(chan *request, DefaultQueueSize),
		registry: defaultRegistry,
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name == "" {
		w.name = w.id[:8]
	}
	w.registry.add(w)
	workerLog.Infof("worker %s started (drain=%s, queue=%d)", w.name, w.drain, cap(w.requests))
	go w.loop()
	return w
}

// ID returns the worker's unique identifier.
func (w *Worker) ID() string { return w.id }

// Name returns the worker's label.
func (w *Worker) Name() string { return w.name }

// Pending returns the number of queued requests.
func (w *Worker) Pending() int { return len(w.requests) }

// Stopped returns a channel closed when the worker goroutine exits.
func (w *Worker) Stopped() <-chan struct{} { return w.stopped }

// IsTerminating reports whether termination was requested.
func (w *Worker) IsTerminating() bool {
	return w.terminating.Load()
}

// Schedule materializes a value with producer on the calling goroutine,
// validates it under mode and queues consumer to run on the worker with
// the transferred value.
//
// A rejected transfer returns a *SharingError and the consumer never
// runs. Failures inside consumer are reported by the returned Future.
func (w *Worker) Schedule(mode TransferMode, producer func() Value, consumer func(Value) (Value, error)) (*Future, error) {
	if w.terminating.Load() {
		return nil, w.terminatedError()
	}

	f := newFuture(nextRequestID.Add(1))
	f.transition(RequestCreated, RequestValidating)
	v, err := transfer(mode, producer(), f.id)
	if err != nil {
		f.finish(RequestValidating, RequestRejected, Nil, err)
		return nil, err
	}

	w.mu.Lock()
	if w.termination != nil {
		w.mu.Unlock()
		err := w.terminatedError()
		f.finish(RequestValidating, RequestRejected, Nil, err)
		return nil, err
	}
	f.transition(RequestValidating, RequestAccepted)
	w.sending.Add(1)
	w.mu.Unlock()

	w.requests <- &request{future: f, mode: mode, value: v, consumer: consumer}
	w.sending.Done()
	return f, nil
}

// Schedule is the function form of (*Worker).Schedule.
func Schedule(w *Worker, mode TransferMode, producer func() Value, consumer func(Value) (Value, error)) (*Future, error) {
	return w.Schedule(mode, producer, consumer)
}

// RequestTermination asks the worker to stop according to its drain
// policy. The returned future completes once the worker goroutine is
// done with its queue. Later calls return the same future.
//
// It never blocks, so a consumer may call it on its own worker. The
// termination request is queued behind every request already accepted.
func (w *Worker) RequestTermination() *Future {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.termination != nil {
		return w.termination
	}
	f := newFuture(nextRequestID.Add(1))
	f.transition(RequestCreated, RequestAccepted)
	w.termination = f
	w.terminating.Store(true)
	workerLog.Infof("worker %s termination requested (drain=%s)", w.name, w.drain)
	go func() {
		w.sending.Wait()
		w.requests <- &request{future: f, terminate: true}
	}()
	return f
}

// loop processes requests sequentially until the termination request,
// which is always the last one queued.
func (w *Worker) loop() {
	defer close(w.stopped)
	for req := range w.requests {
		if req.terminate {
			w.registry.remove(w)
			req.future.transition(RequestAccepted, RequestExecuting)
			req.future.finish(RequestExecuting, RequestCompleted, Nil, nil)
			workerLog.Infof("worker %s terminated", w.name)
			return
		}
		if w.drain == DiscardQueued && w.terminating.Load() {
			req.future.finish(RequestAccepted, RequestCancelled, Nil,
				fmt.Errorf("request %d discarded by worker %s: %w", req.future.id, w.name, ErrWorkerTerminated))
			continue
		}
		w.run(req)
	}
}

func (w *Worker) terminatedError() error {
	return fmt.Errorf("schedule on worker %s: %w", w.name, ErrWorkerTerminated)
}

// run executes one request, recovering from consumer panics, and sends
// the result back under the request's transfer mode.
func (w *Worker) run(req *request) {
	f := req.future
	f.transition(RequestAccepted, RequestExecuting)

	v, err := w.execute(req)
	if err != nil {
		workerLog.Warningf("worker %s: request %d failed: %v", w.name, f.id, err)
		f.finish(RequestExecuting, RequestCompleted, Nil,
			&PropagatedFailure{RequestID: f.id, WorkerID: w.id, Cause: err})
		return
	}
	result, err := transfer(req.mode, v, f.id)
	if err != nil {
		f.finish(RequestExecuting, RequestCompleted, Nil, err)
		return
	}
	f.finish(RequestExecuting, RequestCompleted, result, nil)
}

func (w *Worker) execute(req *request) (v Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return req.consumer(req.value)
}
