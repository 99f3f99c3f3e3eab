// Copyright (c) 2023 BVK Chaitanya

package dydx

import (
	"context"
	"log"
	"sync"
)

// SequenceManager owns the account sequence number. Every state changing
// transaction for the account must be serialized through a single manager,
// otherwise concurrent submissions race on the same sequence and the chain
// rejects all but one of them.
type SequenceManager struct {
	mu sync.Mutex

	address string

	fetch func(ctx context.Context, address string) (uint64, error)

	seq     uint64
	fetched bool
}

func NewSequenceManager(address string, fetch func(ctx context.Context, address string) (uint64, error)) *SequenceManager {
	return &SequenceManager{address: address, fetch: fetch}
}

// Do runs one submission under the sequence lock. The callback receives the
// sequence number to use; when it reports an accepted submission the local
// sequence advances by exactly one. Failed submissions leave the sequence
// untouched.
func (m *SequenceManager) Do(ctx context.Context, f func(seq uint64) (accepted bool, err error)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.fetched {
		if err := m.refreshLocked(ctx); err != nil {
			return false, err
		}
	}

	accepted, err := f(m.seq)
	if err != nil {
		return false, err
	}
	if accepted {
		m.seq++
	}
	return accepted, nil
}

// Refresh re-reads the sequence number from the chain. It must be called
// after a rejected submission because the local value may have drifted from
// the chain state.
func (m *SequenceManager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshLocked(ctx)
}

func (m *SequenceManager) refreshLocked(ctx context.Context) error {
	seq, err := m.fetch(ctx, m.address)
	if err != nil {
		m.fetched = false
		return err
	}
	if m.fetched && seq != m.seq {
		log.Printf("account sequence refreshed from %d to %d", m.seq, seq)
	}
	m.seq = seq
	m.fetched = true
	return nil
}

// Sequence returns the current local sequence value for diagnostics.
func (m *SequenceManager) Sequence() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq
}
