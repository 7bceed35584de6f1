package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/chazu/isola/config"
	"github.com/chazu/isola/vm"
	"github.com/chazu/isola/vm/snapshot"
)

// runFreezeScenario checks that frozen records and arrays of every
// element kind reject stores and keep their contents.
func runFreezeScenario(out io.Writer, dump bool) error {
	data := vm.NewClass("Data", "int")
	a0 := vm.NewRecordWithFields(data, vm.FromSmallInt(2))
	inc := func(v vm.Value) vm.Value { return vm.FromSmallInt(v.SmallInt() + 1) }

	if err := a0.UpdateField(0, inc); err != nil {
		return err
	}
	vm.FreezeObject(a0)
	if err := expectRejected("Data.int++", a0.UpdateField(0, inc)); err != nil {
		return err
	}
	if got := a0.Field(0).SmallInt(); got != 3 {
		return fmt.Errorf("Data.int = %d after rejected store, want 3", got)
	}
	if dump {
		if err := printFingerprint(out, "Data", a0); err != nil {
			return err
		}
	}

	checks := []struct {
		name string
		run  func() error
	}{
		{"ByteArray", func() error { return checkArray[int8](func(v int8) int8 { return v + 1 }) }},
		{"ShortArray", func() error { return checkArray[int16](func(v int16) int16 { return v + 1 }) }},
		{"IntArray", func() error { return checkArray[int32](func(v int32) int32 { return v + 1 }) }},
		{"LongArray", func() error { return checkArray[int64](func(v int64) int64 { return v + 1 }) }},
		{"BooleanArray", func() error { return checkArray[bool](func(v bool) bool { return !v }) }},
		{"CharArray", func() error { return checkArray[uint16](func(v uint16) uint16 { return v + 'a' }) }},
		{"FloatArray", func() error { return checkArray[float32](func(v float32) float32 { return v + 1 }) }},
		{"DoubleArray", func() error { return checkArray[float64](func(v float64) float64 { return v + 1 }) }},
	}
	for _, c := range checks {
		if err := c.run(); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	fmt.Fprintln(out, "freeze: records and arrays reject stores once frozen")
	return nil
}

func checkArray[T vm.Scalar](step func(T) T) error {
	a := vm.NewScalarArray[T](2)
	if err := a.Update(1, step); err != nil {
		return err
	}
	want := a.At(1)
	vm.FreezeObject(a)
	if err := expectRejected("a[1]", a.Update(1, step)); err != nil {
		return err
	}
	if got := a.At(1); got != want {
		return fmt.Errorf("a[1] = %v after rejected store, want %v", got, want)
	}
	return nil
}

func expectRejected(what string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: store on frozen object succeeded", what)
	}
	if !errors.Is(err, vm.ErrInvalidMutability) {
		return fmt.Errorf("%s: got %v, want %v", what, err, vm.ErrInvalidMutability)
	}
	return nil
}

func printFingerprint(out io.Writer, label string, obj vm.Object) error {
	fp, err := snapshot.Capture(obj).Fingerprint()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %x\n", label, fp[:8])
	return nil
}

// runTransferScenario sends default-frozen values to a worker, which
// echoes them back.
func runTransferScenario(out io.Writer, cfg *config.Config, mode vm.TransferMode) error {
	worker := vm.StartWorker(append(cfg.WorkerOptions(), vm.WithName("scenario"))...)

	values := []vm.Object{
		vm.Concat(vm.NewText("Hello"), vm.NewText(" "), vm.NewText("world")),
		vm.BoxInt(42),
		vm.BoxFloat(239.0),
		vm.BoxChar('a'),
	}
	for i, obj := range values {
		if !vm.IsFrozen(obj) {
			return fmt.Errorf("%v is not frozen at construction", vm.FromObject(obj))
		}
		n := i + 1
		data := vm.FromObject(obj)
		f, err := worker.Schedule(mode, func() vm.Value { return data }, func(input vm.Value) (vm.Value, error) {
			fmt.Fprintf(out, "Worker%d: %v\n", n, input)
			return input, nil
		})
		if err != nil {
			return err
		}
		if _, err := f.Result(); err != nil {
			return err
		}
	}

	_, err := worker.RequestTermination().Result()
	return err
}
