// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package digest computes the 128-bit key digest a page file is built and
// read against, and derives the open-addressing probe sequence from it.
package digest

import (
	"github.com/spaolacci/murmur3"
)

// Sum hashes key with the 128-bit x64 variant of MurmurHash3, seed 0, and
// splits the result into the low 64 bits (pageWord, which selects a page)
// and the high 64 bits (slotWord, which seeds that page's open-addressing
// probe sequence). Builder and Reader must agree on this split; changing it
// changes the on-disk contract.
func Sum(key []byte) (pageWord, slotWord uint64) {
	pageWord, slotWord = murmur3.Sum128WithSeed(key, 0)
	return pageWord, slotWord
}

// PageIndex maps a pageWord onto one of pageCount pages.
func PageIndex(pageWord uint64, pageCount uint64) uint64 {
	return pageWord % pageCount
}

// Probes returns a function producing the i'th slot to probe, for i in
// [0, tableSlots), given the slotWord that seeded this key's lookup and a
// table of tableSlots entries. tableSlots must be a power of two: the
// initial probe is slotWord mod tableSlots, and the step between probes is
// forced odd, so every call with a distinct i in [0, tableSlots) yields a
// distinct slot -- a full permutation of the table.
func Probes(slotWord uint64, tableSlots uint32) func(i uint32) uint32 {
	mask := tableSlots - 1
	base := uint32(slotWord) & mask
	step := uint32(slotWord>>32) | 1
	return func(i uint32) uint32 {
		return (base + i*step) & mask
	}
}
