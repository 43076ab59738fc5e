// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pagekv

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"pagekv/internal/digest"
	"pagekv/internal/pageformat"
	"pagekv/internal/rangesource"
)

// Table is a read-only handle onto a finished page file. Unlike the
// teacher's mmap-only Table, a pagekv Table is backed by any
// rangesource.Source -- a local mmap or a remote HTTP server -- so Get
// can fail with an I/O error in addition to returning "not found".
type Table struct {
	src rangesource.Source

	headerOnce sync.Once
	header     pageformat.Header
	headerErr  error
}

// Open mmaps path and opens it as a Table.
func Open(path string) (*Table, error) {
	src, err := rangesource.OpenLocal(path)
	if err != nil {
		return nil, fmt.Errorf("rangesource.OpenLocal(%s): %w", path, err)
	}
	return newTable(src), nil
}

// OpenURL opens a Table backed by a remote HTTP server that honors Range
// requests.
func OpenURL(ctx context.Context, url string) (*Table, error) {
	src, err := rangesource.OpenHTTP(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("rangesource.OpenHTTP(%s): %w", url, err)
	}
	return newTable(src), nil
}

// OpenSource wraps an already-open rangesource.Source as a Table. The
// Table takes ownership and will Close it.
func OpenSource(src rangesource.Source) *Table {
	return newTable(src)
}

func newTable(src rangesource.Source) *Table {
	return &Table{src: src}
}

// Close releases the underlying source (unmapping a local file or
// closing idle HTTP connections).
func (t *Table) Close() error {
	return t.src.Close()
}

func (t *Table) loadHeader(ctx context.Context) (pageformat.Header, error) {
	t.headerOnce.Do(func() {
		buf, err := t.src.ReadAt(ctx, 0, pageformat.HeaderSize)
		if err != nil {
			t.headerErr = fmt.Errorf("reading header: %w", err)
			return
		}
		h, err := pageformat.UnmarshalHeader(buf)
		if err != nil {
			t.headerErr = err
			return
		}
		t.header = h
	})
	return t.header, t.headerErr
}

// Get looks up key, resolving an external stub with a second ranged read
// if necessary. It reports ok=false if key is not present; err is only
// set for I/O or corruption failures.
func (t *Table) Get(ctx context.Context, key []byte) (value []byte, ok bool, err error) {
	h, err := t.loadHeader(ctx)
	if err != nil {
		return nil, false, err
	}

	pageWord, slotWord := digest.Sum(key)
	pageIdx := digest.PageIndex(pageWord, h.PageCount)
	pageOff := h.PageOffset(pageIdx)

	page, err := t.src.ReadAt(ctx, int64(pageOff), int64(h.PageSize()))
	if err != nil {
		return nil, false, fmt.Errorf("reading page %d: %w", pageIdx, err)
	}
	heap := page[:h.HeapBytes]
	table := page[h.HeapBytes:]

	reservedBytes := uint32(0)
	if pageIdx == 0 {
		reservedBytes = pageformat.HeaderSize
	}

	probe := digest.Probes(slotWord, h.TableSlots)
	for i := uint32(0); i < h.TableSlots; i++ {
		slot, err := pageformat.ReadSlot(table, probe(i))
		if err != nil {
			return nil, false, fmt.Errorf("reading slot on page %d: %w", pageIdx, err)
		}
		if slot == pageformat.Sentinel {
			return nil, false, nil
		}
		if err := pageformat.ValidateSlotValue(slot, h.HeapBytes, reservedBytes); err != nil {
			return nil, false, fmt.Errorf("page %d: %w", pageIdx, err)
		}
		entry, _, err := pageformat.DecodeEntry(heap[slot:])
		if err != nil {
			return nil, false, fmt.Errorf("decoding entry on page %d: %w", pageIdx, err)
		}

		if entry.External {
			rec, err := t.src.ReadAt(ctx, int64(entry.FileOffset), int64(entry.Length))
			if err != nil {
				return nil, false, fmt.Errorf("reading external record: %w", err)
			}
			resolved, _, err := pageformat.DecodeEntry(rec)
			if err != nil {
				return nil, false, fmt.Errorf("decoding external record: %w", err)
			}
			if bytes.Equal(resolved.Key, key) {
				return resolved.Value, true, nil
			}
			continue
		}

		if bytes.Equal(entry.Key, key) {
			return entry.Value, true, nil
		}
	}
	return nil, false, nil
}

// GetString is a convenience wrapper around Get for string keys.
func (t *Table) GetString(ctx context.Context, key string) ([]byte, bool, error) {
	return t.Get(ctx, []byte(key))
}
