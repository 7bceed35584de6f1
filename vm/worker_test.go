package vm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func startTestWorker(t *testing.T, opts ...WorkerOption) *Worker {
	t.Helper()
	w := StartWorker(append([]WorkerOption{WithRegistry(NewRegistry())}, opts...)...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := w.RequestTermination().ResultContext(ctx); err != nil {
			t.Errorf("termination: %v", err)
		}
	})
	return w
}

func mustSchedule(t *testing.T, w *Worker, producer func() Value, consumer func(Value) (Value, error)) *Future {
	t.Helper()
	f, err := w.Schedule(TransferChecked, producer, consumer)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	return f
}

func echo(v Value) (Value, error) { return v, nil }

func TestWorkerTransfersDefaultFrozenValues(t *testing.T) {
	w := StartWorker(WithRegistry(NewRegistry()), WithName("t"))

	var data Value = FromObject(Concat(NewText("Hello"), NewText(" "), NewText("world")))
	if !data.IsFrozen() {
		t.Fatal("text should be frozen")
	}
	var seen []string
	f, err := w.Schedule(TransferChecked, func() Value { return data }, func(input Value) (Value, error) {
		seen = append(seen, fmt.Sprintf("Worker 1: %v", input))
		return input, nil
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if _, err := f.Result(); err != nil {
		t.Fatalf("Result: %v", err)
	}

	for _, obj := range []Object{BoxInt(42), BoxFloat(239.0), BoxChar('a')} {
		data = FromObject(obj)
		if !data.IsFrozen() {
			t.Fatalf("%v should be frozen", data)
		}
		f, err := w.Schedule(TransferChecked, func() Value { return data }, echo)
		if err != nil {
			t.Fatalf("Schedule(%v): %v", data, err)
		}
		if got, err := f.Result(); err != nil || got.Object() != obj {
			t.Errorf("Result = %v, %v; want %v", got, err, data)
		}
	}

	if _, err := w.RequestTermination().Result(); err != nil {
		t.Fatalf("termination: %v", err)
	}
	if len(seen) != 1 || seen[0] != "Worker 1: Hello world" {
		t.Errorf("seen = %q", seen)
	}
	select {
	case <-w.Stopped():
	case <-time.After(time.Second):
		t.Error("worker goroutine did not stop")
	}
}

func TestWorkerDerivedValue(t *testing.T) {
	w := startTestWorker(t)
	f, err := w.Schedule(TransferChecked,
		func() Value { return FromObject(NewText("Hello world")) },
		func(in Value) (Value, error) {
			n := in.Object().(*Text).Len()
			return FromObject(BoxInt(int64(n))), nil
		})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	got, err := f.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if got.Object().(*Box[int64]).Value() != 11 {
		t.Errorf("derived = %v, want 11", got)
	}
	if f.State() != RequestCompleted {
		t.Errorf("state = %v, want completed", f.State())
	}
}

func TestWorkerResultIsIdempotent(t *testing.T) {
	w := startTestWorker(t)
	f := mustSchedule(t, w, func() Value { return FromSmallInt(7) }, echo)
	a, errA := f.Result()
	b, errB := f.Result()
	if a != b || errA != nil || errB != nil {
		t.Errorf("Result twice = (%v, %v) and (%v, %v)", a, errA, b, errB)
	}
	if !f.IsDone() {
		t.Error("IsDone should be true after Result")
	}
}

func TestWorkerFIFO(t *testing.T) {
	w := startTestWorker(t, WithQueueSize(4))
	var order []int64
	var last *Future
	for i := int64(0); i < 20; i++ {
		n := i
		f, err := w.Schedule(TransferChecked, func() Value { return FromSmallInt(n) }, func(v Value) (Value, error) {
			order = append(order, v.SmallInt())
			return Nil, nil
		})
		if err != nil {
			t.Fatalf("Schedule %d: %v", i, err)
		}
		last = f
	}
	if _, err := last.Result(); err != nil {
		t.Fatal(err)
	}
	for i, v := range order {
		if v != int64(i) {
			t.Fatalf("order = %v, want ascending", order)
		}
	}
}

func TestWorkerHandsOffMutableGraph(t *testing.T) {
	w := startTestWorker(t)
	data := NewClass("Data", "int")
	r := NewRecordWithFields(data, FromSmallInt(1))

	f, err := w.Schedule(TransferChecked, func() Value { return FromObject(r) }, func(v Value) (Value, error) {
		rec := v.Object().(*Record)
		if err := rec.UpdateField(0, func(x Value) Value { return FromSmallInt(x.SmallInt() + 1) }); err != nil {
			return Nil, err
		}
		FreezeObject(rec)
		return v, nil
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	got, err := f.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if got.Object().(*Record).Field(0).SmallInt() != 2 {
		t.Errorf("worker result = %v, want Data(int=2)", got)
	}
	if err := r.SetField(0, Nil); !errors.Is(err, ErrUseAfterTransfer) {
		t.Errorf("source store after transfer: got %v", err)
	}
}

func TestWorkerRejectsSharedMutable(t *testing.T) {
	w := startTestWorker(t)
	c := NewClass("Holder", "ref")
	inner := NewRecord(NewClass("Inner"))
	root := NewRecordWithFields(c, FromObject(inner))
	keep := NewRecordWithFields(c, FromObject(inner))

	ran := false
	f, err := w.Schedule(TransferChecked, func() Value { return FromObject(root) }, func(v Value) (Value, error) {
		ran = true
		return v, nil
	})
	if f != nil || !errors.Is(err, ErrIllegalSharing) {
		t.Fatalf("Schedule = %v, %v; want ErrIllegalSharing", f, err)
	}
	if _, err := w.RequestTermination().Result(); err != nil {
		t.Fatal(err)
	}
	if ran {
		t.Error("consumer ran for a rejected request")
	}
	if keep.Field(0).Object() != Object(inner) {
		t.Error("source graph modified by rejected transfer")
	}
}

func TestWorkerRejectsSharedMutableResult(t *testing.T) {
	w := startTestWorker(t)
	c := NewClass("Holder", "ref")
	inner := NewRecord(NewClass("Inner"))
	NewRecordWithFields(c, FromObject(inner))

	f, err := w.Schedule(TransferUnsafe, func() Value { return Nil }, func(Value) (Value, error) {
		return FromObject(inner), nil
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if _, err := f.Result(); err != nil {
		t.Errorf("unsafe result: %v", err)
	}

	f = mustSchedule(t, w, func() Value { return Nil }, func(Value) (Value, error) {
		return FromObject(inner), nil
	})
	if _, err := f.Result(); !errors.Is(err, ErrIllegalSharing) {
		t.Errorf("checked result: got %v, want ErrIllegalSharing", err)
	}
}

func TestWorkerPropagatesFailure(t *testing.T) {
	w := startTestWorker(t)
	boom := errors.New("boom")
	f := mustSchedule(t, w, func() Value { return Nil }, func(Value) (Value, error) {
		return Nil, boom
	})
	_, err := f.Result()
	var pf *PropagatedFailure
	if !errors.As(err, &pf) {
		t.Fatalf("Result: got %v, want *PropagatedFailure", err)
	}
	if !errors.Is(err, boom) || !errors.Is(err, ErrPropagatedFailure) {
		t.Errorf("error %v should match cause and ErrPropagatedFailure", err)
	}
	if pf.RequestID != f.ID() || pf.WorkerID != w.ID() {
		t.Errorf("failure = %+v, want request %d on %s", pf, f.ID(), w.ID())
	}
}

func TestWorkerRecoversPanic(t *testing.T) {
	w := startTestWorker(t)
	f := mustSchedule(t, w, func() Value { return Nil }, func(Value) (Value, error) {
		panic("kaboom")
	})
	_, err := f.Result()
	var pe *PanicError
	if !errors.As(err, &pe) || pe.Value != "kaboom" {
		t.Fatalf("Result: got %v, want panic error", err)
	}

	// The worker keeps serving requests after a panic.
	f = mustSchedule(t, w, func() Value { return FromSmallInt(1) }, echo)
	if v, err := f.Result(); err != nil || v.SmallInt() != 1 {
		t.Errorf("after panic: %v, %v", v, err)
	}
}

func TestWorkerScheduleAfterTermination(t *testing.T) {
	w := StartWorker(WithRegistry(NewRegistry()))
	term := w.RequestTermination()
	if again := w.RequestTermination(); again != term {
		t.Error("RequestTermination should return the same future")
	}
	if _, err := term.Result(); err != nil {
		t.Fatal(err)
	}
	produced := false
	_, err := w.Schedule(TransferChecked, func() Value { produced = true; return Nil }, echo)
	if !errors.Is(err, ErrWorkerTerminated) {
		t.Errorf("Schedule after termination: got %v", err)
	}
	if produced {
		t.Error("producer ran on a terminated worker")
	}
}

func TestWorkerDrainRunsQueued(t *testing.T) {
	w := StartWorker(WithRegistry(NewRegistry()), WithDrainPolicy(DrainQueued))
	gate := make(chan struct{})
	first := mustSchedule(t, w, func() Value { return Nil }, func(Value) (Value, error) {
		<-gate
		return Nil, nil
	})
	queued := mustSchedule(t, w, func() Value { return FromSmallInt(2) }, echo)
	term := w.RequestTermination()
	close(gate)

	if _, err := term.Result(); err != nil {
		t.Fatal(err)
	}
	if _, err := first.Result(); err != nil {
		t.Errorf("first: %v", err)
	}
	if v, err := queued.Result(); err != nil || v.SmallInt() != 2 {
		t.Errorf("queued = %v, %v; want 2", v, err)
	}
}

func TestWorkerDiscardCancelsQueued(t *testing.T) {
	w := StartWorker(WithRegistry(NewRegistry()), WithDrainPolicy(DiscardQueued))
	gate := make(chan struct{})
	started := make(chan struct{})
	first := mustSchedule(t, w, func() Value { return Nil }, func(Value) (Value, error) {
		close(started)
		<-gate
		return FromSmallInt(1), nil
	})
	<-started
	var queued []*Future
	for i := 0; i < 3; i++ {
		f, err := w.Schedule(TransferChecked, func() Value { return Nil }, echo)
		if err != nil {
			t.Fatal(err)
		}
		queued = append(queued, f)
	}
	term := w.RequestTermination()
	close(gate)

	if _, err := term.Result(); err != nil {
		t.Fatal(err)
	}
	if v, err := first.Result(); err != nil || v.SmallInt() != 1 {
		t.Errorf("executing request = %v, %v; want completed", v, err)
	}
	for i, f := range queued {
		if _, err := f.Result(); !errors.Is(err, ErrWorkerTerminated) {
			t.Errorf("queued %d: got %v, want ErrWorkerTerminated", i, err)
		}
		if f.State() != RequestCancelled {
			t.Errorf("queued %d state = %v, want cancelled", i, f.State())
		}
	}
}

func TestResultContextTimeout(t *testing.T) {
	w := startTestWorker(t)
	gate := make(chan struct{})
	f := mustSchedule(t, w, func() Value { return Nil }, func(Value) (Value, error) {
		<-gate
		return Nil, nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.ResultContext(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ResultContext: got %v, want deadline exceeded", err)
	}
	close(gate)
	if _, err := f.Result(); err != nil {
		t.Errorf("Result: %v", err)
	}
}

func TestRegistryTerminateAll(t *testing.T) {
	reg := NewRegistry()
	a := StartWorker(WithRegistry(reg), WithName("a"))
	b := StartWorker(WithRegistry(reg), WithName("b"))
	if reg.Count() != 2 || reg.Get(a.ID()) != a {
		t.Fatalf("registry count = %d", reg.Count())
	}
	if ws := reg.Workers(); ws[0] != a || ws[1] != b {
		t.Error("Workers should be ordered by name")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := reg.TerminateAll(ctx); err != nil {
		t.Fatal(err)
	}
	if reg.Count() != 0 {
		t.Errorf("count after TerminateAll = %d, want 0", reg.Count())
	}
	if !a.IsTerminating() || !b.IsTerminating() {
		t.Error("workers should be terminating")
	}
}

func TestParseDrainPolicy(t *testing.T) {
	if p, err := ParseDrainPolicy("discard"); err != nil || p != DiscardQueued {
		t.Errorf("ParseDrainPolicy(discard) = %v, %v", p, err)
	}
	if _, err := ParseDrainPolicy("later"); err == nil {
		t.Error("unknown policy should fail")
	}
}

func TestWorkerPanicWithErrorUnwraps(t *testing.T) {
	errBoom := errors.New("boom")
	w := startTestWorker(t)
	f := mustSchedule(t, w, func() Value { return Nil }, func(Value) (Value, error) {
		panic(errBoom)
	})
	_, err := f.Result()
	if !errors.Is(err, errBoom) {
		t.Errorf("Result: got %v, want the panicked error in the chain", err)
	}
	if !errors.Is(err, ErrPropagatedFailure) {
		t.Errorf("Result: got %v, want ErrPropagatedFailure", err)
	}
	if (&PanicError{Value: "text"}).Unwrap() != nil {
		t.Error("non-error panic value should not unwrap")
	}
}

func TestWorkerTerminatesItselfWithFullQueue(t *testing.T) {
	w := StartWorker(WithRegistry(NewRegistry()), WithQueueSize(1))
	gate := make(chan struct{})
	started := make(chan struct{})
	self := make(chan *Future, 1)
	first := mustSchedule(t, w, func() Value { return Nil }, func(Value) (Value, error) {
		close(started)
		<-gate
		self <- w.RequestTermination()
		return Nil, nil
	})
	<-started
	if _, err := w.Schedule(TransferChecked, func() Value { return Nil }, echo); err != nil {
		t.Fatal(err)
	}

	// The queue is full; this submission blocks until the worker drains it.
	blocked := make(chan error, 1)
	go func() {
		f, err := w.Schedule(TransferChecked, func() Value { return Nil }, echo)
		if err == nil {
			_, err = f.Result()
		}
		blocked <- err
	}()
	close(gate)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := first.ResultContext(ctx); err != nil {
		t.Fatalf("first request: %v", err)
	}
	term := <-self
	if _, err := term.ResultContext(ctx); err != nil {
		t.Fatalf("termination: %v", err)
	}
	select {
	case err := <-blocked:
		if err != nil && !errors.Is(err, ErrWorkerTerminated) {
			t.Errorf("blocked submission: %v", err)
		}
	case <-ctx.Done():
		t.Fatal("blocked submission never returned")
	}
}
