// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package pagekv builds and reads immutable key/value files optimized
// for random lookups over a handful of ranged reads -- an mmap'd local
// file, or a remote blob served over HTTP Range requests.
//
// A page file is a sequence of fixed-size pages, each independently
// readable with a single ranged read:
//
//	┌───────────────────────────────────────────┐
//	│ page 0                                     │
//	│  ┌───────────┬─────────────────────────┐   │
//	│  │ header(24)│ heap (variable entries) │   │
//	│  ├───────────┴─────────────────────────┤   │
//	│  │ table (TableSlots * 4 bytes)        │   │
//	│  └─────────────────────────────────────┘   │
//	├───────────────────────────────────────────┤
//	│ page 1 .. page PageCount-1                 │
//	│  ┌─────────────────────────────────────┐   │
//	│  │ heap                                │   │
//	│  ├─────────────────────────────────────┤   │
//	│  │ table                               │   │
//	│  └─────────────────────────────────────┘   │
//	├───────────────────────────────────────────┤
//	│ tail (internal-form records for keys that  │
//	│ didn't fit inline on their assigned page)  │
//	└───────────────────────────────────────────┘
//
// A key is looked up by hashing it to a 128-bit digest, splitting that
// into a page selector and a probe seed, reading that one page's heap
// and table, and walking the table's open-addressing probe sequence
// until the key is found or an empty slot is hit. A key whose record
// didn't fit in its page's heap is stored as a small stub pointing into
// the tail area, costing lookups a second ranged read.
//
// Building a file is a single in-memory pass: Builder.Put accumulates
// key/value pairs, and Builder.Finalize chooses a page geometry (page
// count, heap size, table size) that keeps emitted bytes and
// second-read lookups within the configured budgets, then atomically
// publishes the result.
package pagekv
