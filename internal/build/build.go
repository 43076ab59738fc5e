// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package build implements the two-phase construction algorithm: sizing
// (choosing page count, heap bytes, and table slots to fit the "one
// request" budget) followed by placement (packing each page's heap and
// filling its table via open addressing). It is pure -- it returns the
// finished byte stream and never touches a file itself; the root Builder
// owns the sink.
package build

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"sort"

	"pagekv/internal/digest"
	"pagekv/internal/pageformat"
)

var (
	// ErrDuplicateKey is returned when two input entries share a key.
	ErrDuplicateKey = errors.New("build: duplicate key")
	// ErrConfigurationInfeasible is returned when no page geometry within
	// maxPageCount satisfies the configured budgets.
	ErrConfigurationInfeasible = errors.New("build: no page geometry satisfies the configured budgets")
	// ErrPlacementFailed names a page whose open-addressing table could
	// not accommodate its assigned keys. Build does not return it: a
	// table overflow makes Build retry with a larger page count, and when
	// the retries run out the error is ErrConfigurationInfeasible.
	ErrPlacementFailed = errors.New("build: placement failed after sizing accepted this geometry")
)

// Entry is one key/value pair from the input set.
type Entry struct {
	Key   []byte
	Value []byte
}

// Config mirrors spec.md's Configuration record.
type Config struct {
	// SmallChangeBytes is the target combined page size (heap + table),
	// the "one ranged read" budget.
	SmallChangeBytes uint32
	// MaxWasteRatio bounds emitted bytes / raw payload bytes - 1.
	MaxWasteRatio float64
	// MaxExternalRatio bounds the fraction of keys resolved via a second
	// read.
	MaxExternalRatio float64
}

const (
	loadFactor     = 0.75
	heapWiggle     = 1.15
	maxPageCount   = 1 << 24
	maxGrowthTries = 40
)

// Build runs the sizing and placement phases over entries and returns the
// finished byte stream. Build is a pure function of (entries, cfg): given
// identical inputs it always produces byte-identical output.
func Build(entries []Entry, cfg Config) ([]byte, error) {
	indexed, err := indexEntries(entries)
	if err != nil {
		return nil, err
	}
	// Smallest-first schedule, shared by sizing and placement -- both
	// phases walk pages in this same order so they agree on what's
	// inline vs external.
	sort.SliceStable(indexed, func(i, j int) bool {
		return indexed[i].size() < indexed[j].size()
	})

	rawPayload := totalRawPayload(indexed)
	pageCount := initialPageCountGuess(len(indexed), rawPayload, cfg)

	var lastErr error
	for try := 0; try < maxGrowthTries; try++ {
		if pageCount > maxPageCount {
			break
		}
		tableSlots := tableSlotsFor(len(indexed), pageCount)
		heapBytes := heapBytesFor(cfg.SmallChangeBytes, tableSlots, pageCount, rawPayload)

		plan, ok, err := attempt(indexed, pageCount, heapBytes, tableSlots, cfg)
		if err != nil {
			return nil, err
		}
		if ok {
			return render(plan)
		}
		lastErr = fmt.Errorf("pageCount=%d heapBytes=%d tableSlots=%d did not satisfy budgets", pageCount, heapBytes, tableSlots)
		pageCount = growPageCount(pageCount)
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigurationInfeasible, lastErr)
	}
	return nil, ErrConfigurationInfeasible
}

type indexedEntry struct {
	key, value         []byte
	pageWord, slotWord uint64
}

func (e indexedEntry) size() int { return len(e.key) + len(e.value) }

func indexEntries(entries []Entry) ([]indexedEntry, error) {
	seen := make(map[string]struct{}, len(entries))
	out := make([]indexedEntry, len(entries))
	for i, e := range entries {
		k := string(e.Key)
		if _, dup := seen[k]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateKey, k)
		}
		seen[k] = struct{}{}
		pageWord, slotWord := digest.Sum(e.Key)
		out[i] = indexedEntry{key: e.Key, value: e.Value, pageWord: pageWord, slotWord: slotWord}
	}
	return out, nil
}

func totalRawPayload(entries []indexedEntry) uint64 {
	var total uint64
	for _, e := range entries {
		total += uint64(pageformat.InternalEntryLen(len(e.key), len(e.value)))
	}
	return total
}

func nextPow2(n int) uint32 {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

func initialPageCountGuess(n int, rawPayload uint64, cfg Config) uint64 {
	if n == 0 {
		return 1
	}
	tableSpace := float64(pageformat.SlotSize) * float64(n) / loadFactor
	heapSpace := float64(rawPayload) * heapWiggle
	total := tableSpace + heapSpace
	reducedPageSize := float64(cfg.SmallChangeBytes) - float64(pageformat.HeaderSize)
	if reducedPageSize < 1 {
		reducedPageSize = 1
	}
	p := uint64(total/reducedPageSize) + 1
	if p < 1 {
		p = 1
	}
	return p
}

func growPageCount(p uint64) uint64 {
	grown := p + p/2 + 1
	if grown <= p {
		grown = p + 1
	}
	return grown
}

func tableSlotsFor(n int, pageCount uint64) uint32 {
	if n == 0 {
		return 1
	}
	entriesPerPage := (uint64(n) + pageCount - 1) / pageCount
	if entriesPerPage < 1 {
		entriesPerPage = 1
	}
	want := int(float64(entriesPerPage)/loadFactor) + 1
	return nextPow2(want)
}

// heapBytesFor sizes a page's heap to roughly cover that page's share of
// the raw payload (with wiggle room for uneven hash distribution and the
// header reservation on page 0), capped above by whatever SmallChangeBytes
// leaves once the table footprint is subtracted. Tying the heap size to
// actual payload -- rather than always filling out to SmallChangeBytes --
// keeps the emitted total from growing in proportion to pageCount: raw
// payload is fixed, so spreading it over more pages shrinks each page's
// target heap size in proportion, and the total heap stays near the
// payload plus wiggle room and the per-page header allowance.
func heapBytesFor(smallChangeBytes uint32, tableSlots uint32, pageCount uint64, rawPayload uint64) uint32 {
	tableBytes := uint64(tableSlots) * pageformat.SlotSize

	var budget uint64
	if uint64(smallChangeBytes) > tableBytes {
		budget = uint64(smallChangeBytes) - tableBytes
	}

	if pageCount < 1 {
		pageCount = 1
	}
	avgPayload := (rawPayload + pageCount - 1) / pageCount
	target := uint64(float64(avgPayload)*heapWiggle) + uint64(pageformat.HeaderSize)

	h := target
	if budget > 0 && h > budget {
		h = budget
	}
	if h < pageformat.HeaderSize {
		h = pageformat.HeaderSize
	}
	if h > math.MaxUint32 {
		h = math.MaxUint32
	}
	return uint32(h)
}
