// Copyright (c) 2023 BVK Chaitanya

package internal

import (
	"encoding/json"
	"testing"
)

func TestBookLevelDecode(t *testing.T) {
	var obj struct {
		Bids []BookLevelData `json:"bids"`
	}

	// Snapshot encoding uses objects and the delta encoding uses pairs.
	// Both must decode to the same levels.
	snapshot := `{"bids": [{"price": "100.5", "size": "2"}, {"price": "100", "size": "0.25"}]}`
	if err := json.Unmarshal([]byte(snapshot), &obj); err != nil {
		t.Fatal(err)
	}
	if len(obj.Bids) != 2 {
		t.Fatalf("want 2 levels, got %d", len(obj.Bids))
	}
	if obj.Bids[0].Price.String() != "100.5" || obj.Bids[0].Size.String() != "2" {
		t.Fatalf("want level 100.5/2, got %s/%s", obj.Bids[0].Price, obj.Bids[0].Size)
	}

	delta := `{"bids": [["100.5", "2"], ["100", "0"]]}`
	var dobj struct {
		Bids []BookLevelData `json:"bids"`
	}
	if err := json.Unmarshal([]byte(delta), &dobj); err != nil {
		t.Fatal(err)
	}
	if len(dobj.Bids) != 2 {
		t.Fatalf("want 2 levels, got %d", len(dobj.Bids))
	}
	if !dobj.Bids[0].Price.Equal(obj.Bids[0].Price) || !dobj.Bids[0].Size.Equal(obj.Bids[0].Size) {
		t.Fatalf("pair and object encodings decoded differently: %v vs %v", dobj.Bids[0], obj.Bids[0])
	}
	if !dobj.Bids[1].Size.IsZero() {
		t.Fatalf("want zero size for a removed level, got %s", dobj.Bids[1].Size)
	}
}

func TestTxResultAccepted(t *testing.T) {
	var r TxResult
	if err := json.Unmarshal([]byte(`{"code": 0, "txhash": "AB"}`), &r); err != nil {
		t.Fatal(err)
	}
	if !r.Accepted() {
		t.Fatalf("code 0 must be accepted")
	}

	var missing TxResult
	if err := json.Unmarshal([]byte(`{"txhash": "AB"}`), &missing); err != nil {
		t.Fatal(err)
	}
	if !missing.Accepted() {
		t.Fatalf("a missing code field must be treated as accepted")
	}

	var failed TxResult
	if err := json.Unmarshal([]byte(`{"code": 32, "codespace": "sdk", "raw_log": "account sequence mismatch"}`), &failed); err != nil {
		t.Fatal(err)
	}
	if failed.Accepted() {
		t.Fatalf("a non-zero code must not be accepted")
	}
}
