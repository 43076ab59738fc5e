// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package build

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"pagekv/internal/bitset"
	"pagekv/internal/digest"
	"pagekv/internal/pageformat"
)

// placedEntry is one key assigned a final heap location within its page,
// or a tail location if it spilled external.
type placedEntry struct {
	entry      indexedEntry
	heapOffset uint32
	external   bool
	tailOffset uint64
	tailLen    uint64
}

// pagePlan is the fully-resolved content of a single page: which entries
// live inline in its heap, which spilled to the tail, and the table slot
// each was assigned.
type pagePlan struct {
	inline   []placedEntry
	external []placedEntry
	slots    []uint32 // parallel to append(inline, external...), in that order
}

// plan is a complete, accepted build: a geometry plus every page's
// resolved content and the tail bytes that follow the last page.
type plan struct {
	header     pageformat.Header
	pages      []pagePlan
	tailBytes  []byte
	emitted    uint64
	rawPayload uint64
	external   int
	total      int
}

// attempt tries a single (pageCount, heapBytes, tableSlots) geometry. It
// returns ok=false (no error) when the geometry is structurally sound but
// fails to satisfy the configured waste/external budgets, signaling the
// caller to retry with a larger page count. It returns an error only for
// conditions that indicate a bug rather than an infeasible configuration.
func attempt(entries []indexedEntry, pageCount uint64, heapBytes, tableSlots uint32, cfg Config) (*plan, bool, error) {
	pages := make([]pagePlan, pageCount)
	byPage := make([][]indexedEntry, pageCount)
	for _, e := range entries {
		idx := digest.PageIndex(e.pageWord, pageCount)
		byPage[idx] = append(byPage[idx], e)
	}

	var tailCursor uint64
	var externalCount int
	for i := uint64(0); i < pageCount; i++ {
		reserved := uint32(0)
		if i == 0 {
			reserved = pageformat.HeaderSize
		}
		capacity := int(heapBytes) - int(reserved)
		if capacity < 0 {
			capacity = 0
		}

		inline, external, ok := packPage(byPage[i], capacity)
		if !ok {
			return nil, false, nil
		}

		pp := pagePlan{}
		offset := reserved
		for _, e := range inline {
			pp.inline = append(pp.inline, placedEntry{entry: e, heapOffset: offset})
			offset += uint32(pageformat.InternalEntryLen(len(e.key), len(e.value)))
		}
		for _, e := range external {
			recLen := uint64(pageformat.InternalEntryLen(len(e.key), len(e.value)))
			pp.external = append(pp.external, placedEntry{
				entry:      e,
				heapOffset: offset,
				external:   true,
				tailOffset: tailCursor,
				tailLen:    recLen,
			})
			offset += pageformat.ExternalStubLen
			tailCursor += recLen
		}
		externalCount += len(external)

		slots, ok := fillTable(pp, tableSlots)
		if !ok {
			// Sizing chose a tableSlots too small for this page's key
			// count; grow pageCount and try again rather than treating
			// this as a hard bug.
			return nil, false, nil
		}
		pp.slots = slots
		pages[i] = pp
	}

	tailBytes := make([]byte, tailCursor)
	for i := range pages {
		for _, e := range pages[i].external {
			rec := pageformat.AppendInternalEntry(nil, e.entry.key, e.entry.value)
			copy(tailBytes[e.tailOffset:e.tailOffset+uint64(len(rec))], rec)
		}
	}

	header := pageformat.Header{PageCount: pageCount, HeapBytes: heapBytes, TableSlots: tableSlots}
	emitted := pageCount*header.PageSize() + tailCursor
	rawPayload := totalRawPayload(entries)

	p := &plan{
		header:     header,
		pages:      pages,
		tailBytes:  tailBytes,
		emitted:    emitted,
		rawPayload: rawPayload,
		external:   externalCount,
		total:      len(entries),
	}
	if !p.satisfiesBudgets(cfg) {
		return nil, false, nil
	}
	return p, true, nil
}

func (p *plan) satisfiesBudgets(cfg Config) bool {
	if p.rawPayload > 0 {
		waste := float64(p.emitted)/float64(p.rawPayload) - 1
		if waste > cfg.MaxWasteRatio {
			return false
		}
	}
	if p.total > 0 {
		externalRatio := float64(p.external) / float64(p.total)
		if externalRatio > cfg.MaxExternalRatio {
			return false
		}
	}
	return true
}

// packPage splits entries (already sorted smallest-first) into inline and
// external sets for a page with the given heap capacity. Entries are
// packed inline greedily until the next one would overflow; the remainder
// is external. Because external entries still need room in the heap for
// their fixed-size stub, the largest inline entries are then bumped to
// external, smallest-last, until the stubs fit too.
func packPage(entries []indexedEntry, capacity int) (inline, external []indexedEntry, ok bool) {
	used := 0
	split := len(entries)
	for i, e := range entries {
		sz := pageformat.InternalEntryLen(len(e.key), len(e.value))
		if used+sz > capacity {
			split = i
			break
		}
		used += sz
	}
	inline = append([]indexedEntry(nil), entries[:split]...)
	external = append([]indexedEntry(nil), entries[split:]...)

	total := used + len(external)*pageformat.ExternalStubLen
	for total > capacity && len(inline) > 0 {
		last := inline[len(inline)-1]
		inline = inline[:len(inline)-1]
		external = append(external, last)
		total -= pageformat.InternalEntryLen(len(last.key), len(last.value))
		total += pageformat.ExternalStubLen
	}
	if total > capacity {
		return nil, nil, false
	}
	return inline, external, true
}

// fillTable assigns each entry in pp (inline then external) a table slot
// via open addressing, walking its probe sequence until an empty slot is
// found. It fails if tableSlots cannot hold every key.
func fillTable(pp pagePlan, tableSlots uint32) ([]uint32, bool) {
	all := make([]placedEntry, 0, len(pp.inline)+len(pp.external))
	all = append(all, pp.inline...)
	all = append(all, pp.external...)
	if uint32(len(all)) > tableSlots {
		return nil, false
	}

	occupied := bitset.New(int64(tableSlots))
	slots := make([]uint32, len(all))
	for idx, e := range all {
		probe := digest.Probes(e.entry.slotWord, tableSlots)
		placedAt := uint32(0)
		found := false
		for i := uint32(0); i < tableSlots; i++ {
			s := probe(i)
			if !occupied.IsSet(int64(s)) {
				occupied.Set(int64(s))
				placedAt = s
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
		slots[idx] = placedAt
	}
	return slots, true
}

// render serializes an accepted plan into the final byte stream. Each
// page's bytes are independent of every other page's once the plan is
// fixed, so pages render concurrently; the header, page bytes, and tail
// are only concatenated at the end, keeping output deterministic
// regardless of goroutine scheduling.
func render(p *plan) ([]byte, error) {
	pageSize := p.header.PageSize()
	pageBufs := make([][]byte, len(p.pages))

	var g errgroup.Group
	for i := range p.pages {
		i := i
		g.Go(func() error {
			buf := make([]byte, pageSize)
			if i == 0 {
				copy(buf[:pageformat.HeaderSize], p.header.MarshalBinary())
			}
			pp := p.pages[i]
			for _, e := range pp.inline {
				rec := pageformat.AppendInternalEntry(nil, e.entry.key, e.entry.value)
				copy(buf[e.heapOffset:uint64(e.heapOffset)+uint64(len(rec))], rec)
			}
			for _, e := range pp.external {
				stub := pageformat.AppendExternalStub(nil, p.header.TailOffset()+e.tailOffset, e.tailLen)
				copy(buf[e.heapOffset:uint64(e.heapOffset)+uint64(len(stub))], stub)
			}

			table := buf[p.header.HeapBytes:]
			pageformat.FillSentinels(table)
			all := append(append([]placedEntry(nil), pp.inline...), pp.external...)
			for idx, slot := range pp.slots {
				pageformat.PutSlot(table, slot, all[idx].heapOffset)
			}
			pageBufs[i] = buf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build: rendering pages: %w", err)
	}

	out := make([]byte, 0, p.emitted)
	for _, b := range pageBufs {
		out = append(out, b...)
	}
	out = append(out, p.tailBytes...)
	return out, nil
}
