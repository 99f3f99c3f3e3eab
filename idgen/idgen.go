// Copyright (c) 2023 BVK Chaitanya

package idgen

import (
	"crypto/md5"
	"encoding/binary"
)

// Generator creates a deterministic sequence of numeric client order ids
// derived from a given seed string. Generators created with the same seed and
// offset produce the same sequence, so an order that must be resubmitted can
// reuse its client id by reverting the sequence.
type Generator struct {
	base [md5.Size]byte

	next uint64
}

func New(seed string, offset uint64) *Generator {
	return &Generator{base: md5.Sum([]byte(seed)), next: offset}
}

// Offset returns the sequence position of the next id. It can be saved and
// passed to New to continue the sequence after a restart.
func (v *Generator) Offset() uint64 {
	return v.next
}

// NextID returns the next client order id and advances the sequence.
func (v *Generator) NextID() uint32 {
	id := v.idAt(v.next)
	v.next++
	return id
}

// RevertID moves the sequence back by one position, so that the last id
// returned by NextID is returned once again.
func (v *Generator) RevertID() {
	if v.next > 0 {
		v.next--
	}
}

func (v *Generator) idAt(offset uint64) uint32 {
	var buf [md5.Size + 8]byte
	copy(buf[:md5.Size], v.base[:])
	binary.BigEndian.PutUint64(buf[md5.Size:], offset)
	checksum := md5.Sum(buf[:])
	id := binary.BigEndian.Uint32(checksum[:4])
	if id == 0 {
		// Zero is not a valid client order id.
		id = binary.BigEndian.Uint32(checksum[4:8]) | 1
	}
	return id
}
