// Copyright (c) 2023 BVK Chaitanya

package hub

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bvk/dexbot/exchange"
)

func TestSnapshotRoundTrip(t *testing.T) {
	file := filepath.Join(t.TempDir(), "snapshot.json")

	want := &Snapshot{
		Market:     "BTC-USD",
		OwnerPID:   os.Getpid(),
		UpdatedAt:  time.Now().Truncate(time.Millisecond),
		Bids:       []exchange.BookLevel{level("100", "1"), level("99", "2")},
		Asks:       []exchange.BookLevel{level("101", "1")},
		BuyVolume:  12345.5,
		SellVolume: 543.25,
		TradeCount: 42,
	}
	if err := WriteSnapshot(file, want); err != nil {
		t.Fatal(err)
	}

	got, err := ReadSnapshot(file)
	if err != nil {
		t.Fatal(err)
	}
	if got.Market != want.Market || got.OwnerPID != want.OwnerPID {
		t.Fatalf("want %s/%d, got %s/%d", want.Market, want.OwnerPID, got.Market, got.OwnerPID)
	}
	if !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Fatalf("want updated-at %s, got %s", want.UpdatedAt, got.UpdatedAt)
	}
	if len(got.Bids) != 2 || !got.Bids[0].Price.Equal(want.Bids[0].Price) {
		t.Fatalf("bids did not round trip: %v", got.Bids)
	}
	if got.BuyVolume != want.BuyVolume || got.TradeCount != want.TradeCount {
		t.Fatalf("volumes did not round trip: %v", got)
	}

	// Overwrites replace the snapshot in place.
	want.TradeCount = 43
	if err := WriteSnapshot(file, want); err != nil {
		t.Fatal(err)
	}
	if got, err := ReadSnapshot(file); err != nil || got.TradeCount != 43 {
		t.Fatalf("overwrite was not visible: %v %v", got, err)
	}
}

func TestSnapshotReadErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := ReadSnapshot(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatalf("want an error for a missing snapshot file")
	}

	garbage := filepath.Join(dir, "garbage.json")
	if err := os.WriteFile(garbage, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadSnapshot(garbage); err == nil {
		t.Fatalf("want an error for a corrupt snapshot file")
	}
}
