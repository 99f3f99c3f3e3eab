// Copyright (c) 2023 BVK Chaitanya

package internal

import (
	"testing"
	"time"
)

func TestEscalateWait(t *testing.T) {
	max := 5 * time.Second

	wait := time.Second
	want := []time.Duration{2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if wait = escalateWait(wait, max); wait != w {
			t.Fatalf("step %d: want %s, got %s", i, w, wait)
		}
	}
}
