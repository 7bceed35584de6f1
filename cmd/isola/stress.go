package main

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/chazu/isola/vm"
	"github.com/chazu/isola/vm/snapshot"
)

// buildRing builds a cycle of depth records, each also pointing at a
// shared tail array, and returns the records.
func buildRing(depth int, shared *vm.RefArray) ([]*vm.Record, error) {
	node := vm.NewClass("Node", "value", "next", "shared")
	records := make([]*vm.Record, depth)
	for i := range records {
		records[i] = vm.NewRecordWithFields(node, vm.FromSmallInt(int64(i)), vm.Nil, vm.FromObject(shared))
	}
	for i, r := range records {
		if err := r.SetField(1, vm.FromObject(records[(i+1)%depth])); err != nil {
			return nil, fmt.Errorf("link record %d: %w", i, err)
		}
	}
	return records, nil
}

// runStress starts n goroutines that freeze overlapping graphs from
// different entry points, then checks that every object ended up frozen.
func runStress(ctx context.Context, n, depth int) error {
	if depth < 1 {
		depth = 1
	}
	shared := vm.NewRefArrayOf(vm.FromObject(vm.NewScalarArray[int64](8)), vm.Nil)
	var rings [][]*vm.Record
	for i := 0; i < 2; i++ {
		ring, err := buildRing(depth, shared)
		if err != nil {
			return err
		}
		rings = append(rings, ring)
	}
	if err := shared.Set(1, vm.FromObject(rings[1][0])); err != nil {
		return fmt.Errorf("link shared tail: %w", err)
	}

	g, _ := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		ring := rings[i%len(rings)]
		entry := ring[(i*7)%len(ring)]
		g.Go(func() error {
			vm.FreezeObject(entry)
			if !snapshot.Capture(entry).AllFrozen() {
				return fmt.Errorf("graph from record %d not fully frozen after Freeze returned", entry.Header().ID())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, ring := range rings {
		if !snapshot.Capture(ring[0]).AllFrozen() {
			return fmt.Errorf("ring rooted at %d left partially frozen", ring[0].Header().ID())
		}
	}
	fmt.Printf("stress: %d freezers over %d records\n", n, 2*depth)
	return nil
}
