// Copyright (c) 2023 BVK Chaitanya

package dydx

import (
	"context"
	"fmt"
	"testing"
)

func TestSequenceAdvancesOnAcceptOnly(t *testing.T) {
	ctx := context.Background()

	var fetches int
	fetch := func(ctx context.Context, address string) (uint64, error) {
		fetches++
		return 100, nil
	}
	m := NewSequenceManager("dydx1test", fetch)

	accept := func(seq uint64) (bool, error) {
		return true, nil
	}
	for i := 0; i < 5; i++ {
		ok, err := m.Do(ctx, accept)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("submission %d was not accepted", i)
		}
	}
	if v := m.Sequence(); v != 105 {
		t.Fatalf("want sequence 105 after 5 accepted submissions, got %d", v)
	}
	if fetches != 1 {
		t.Fatalf("want a single lazy fetch, got %d", fetches)
	}

	// Rejected submissions must not advance the sequence.
	reject := func(seq uint64) (bool, error) {
		return false, nil
	}
	if ok, err := m.Do(ctx, reject); err != nil || ok {
		t.Fatalf("want a clean rejection, got ok=%v err=%v", ok, err)
	}
	if v := m.Sequence(); v != 105 {
		t.Fatalf("want sequence unchanged after a rejection, got %d", v)
	}

	// A refresh resynchronizes with the chain value.
	if err := m.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if v := m.Sequence(); v != 100 {
		t.Fatalf("want chain sequence 100 after refresh, got %d", v)
	}
	if fetches != 2 {
		t.Fatalf("want 2 fetches after refresh, got %d", fetches)
	}
}

func TestSequenceFetchFailure(t *testing.T) {
	ctx := context.Background()

	failing := true
	fetch := func(ctx context.Context, address string) (uint64, error) {
		if failing {
			return 0, fmt.Errorf("node is unreachable")
		}
		return 7, nil
	}
	m := NewSequenceManager("dydx1test", fetch)

	calls := 0
	f := func(seq uint64) (bool, error) {
		calls++
		return true, nil
	}
	if _, err := m.Do(ctx, f); err == nil {
		t.Fatalf("want an error when the sequence fetch fails")
	}
	if calls != 0 {
		t.Fatalf("submission must not run without a sequence, got %d calls", calls)
	}

	failing = false
	if ok, err := m.Do(ctx, f); err != nil || !ok {
		t.Fatalf("want an accepted submission after recovery, got ok=%v err=%v", ok, err)
	}
	if v := m.Sequence(); v != 8 {
		t.Fatalf("want sequence 8, got %d", v)
	}
}
