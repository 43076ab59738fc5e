// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package pageformat is the pure encode/decode layer for the on-disk page
// file: the 24-byte header, page directory math, heap entries (internal
// and external), and table slots. It never touches I/O; Builder and Table
// are the only callers that see a file or byte source.
package pageformat

import (
	"encoding/binary"
	"errors"
	"fmt"

	"pagekv/internal/varint"
)

const (
	// Magic identifies a page file; Version pins the layout this package
	// implements. Both are fixed constants of the format -- changing
	// either changes what files this package can read.
	Magic   uint32 = 0xB17F17E0
	Version uint32 = 1

	// HeaderSize is the fixed size, in bytes, of the file header at
	// offset 0.
	HeaderSize = 24

	// Sentinel marks an empty table slot. Because the table occupies the
	// final 4*TableSlots bytes of a page, no valid heap offset can equal
	// it.
	Sentinel uint32 = 0xFFFFFFFF

	// SlotSize is the width, in bytes, of one table slot.
	SlotSize = 4
)

var (
	// ErrMalformedHeader is returned when a header's magic or length
	// fails to validate.
	ErrMalformedHeader = errors.New("pageformat: malformed header")
	// ErrMalformedHeapEntry is returned when a heap entry's varints or
	// lengths are inconsistent with the bytes available.
	ErrMalformedHeapEntry = errors.New("pageformat: malformed heap entry")
	// ErrSlotOutOfRange is returned when a table slot points into the
	// table region itself, or past the heap.
	ErrSlotOutOfRange = errors.New("pageformat: slot out of range")
)

// Header is the fixed 24-byte record at file offset 0.
type Header struct {
	PageCount  uint64
	HeapBytes  uint32
	TableSlots uint32
}

// PageSize is the combined heap+table footprint of a single page.
func (h Header) PageSize() uint64 {
	return uint64(h.HeapBytes) + SlotSize*uint64(h.TableSlots)
}

// PageOffset returns the absolute file offset of page i.
func (h Header) PageOffset(i uint64) uint64 {
	return i * h.PageSize()
}

// TailOffset returns the absolute file offset where the external-record
// tail area begins, immediately after the last page.
func (h Header) TailOffset() uint64 {
	return h.PageCount * h.PageSize()
}

// MarshalBinary encodes h into the canonical 24-byte header layout:
// magic(4) | version/flags(4) | page count(8, LE) | heap bytes(4, LE) |
// table slots(4, LE).
func (h Header) MarshalBinary() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:8], Version)
	binary.LittleEndian.PutUint64(buf[8:16], h.PageCount)
	binary.LittleEndian.PutUint32(buf[16:20], h.HeapBytes)
	binary.LittleEndian.PutUint32(buf[20:24], h.TableSlots)
	return buf
}

// UnmarshalHeader decodes and validates a 24-byte header.
func UnmarshalHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes, want %d", ErrMalformedHeader, len(buf), HeaderSize)
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != Magic {
		return Header{}, fmt.Errorf("%w: bad magic %#x", ErrMalformedHeader, magic)
	}
	version := binary.LittleEndian.Uint32(buf[4:8])
	if version != Version {
		return Header{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedHeader, version)
	}
	return Header{
		PageCount:  binary.LittleEndian.Uint64(buf[8:16]),
		HeapBytes:  binary.LittleEndian.Uint32(buf[16:20]),
		TableSlots: binary.LittleEndian.Uint32(buf[20:24]),
	}, nil
}

// AppendInternalEntry appends an internal heap entry (varint key_len+1,
// varint value_len, key bytes, value bytes) to buf and returns the
// extended slice.
func AppendInternalEntry(buf []byte, key, value []byte) []byte {
	buf = varint.Append(buf, uint64(len(key))+1)
	buf = varint.Append(buf, uint64(len(value)))
	buf = append(buf, key...)
	buf = append(buf, value...)
	return buf
}

// InternalEntryLen returns the number of bytes AppendInternalEntry would
// write for a key/value pair of the given lengths, without allocating.
func InternalEntryLen(keyLen, valueLen int) int {
	return varint.Len(uint64(keyLen)+1) + varint.Len(uint64(valueLen)) + keyLen + valueLen
}

// ExternalStubLen is the fixed size of an external heap stub: varint(0) +
// 8-byte offset + 8-byte length.
const ExternalStubLen = 1 + 8 + 8

// AppendExternalStub appends an external heap stub (varint 0, 8-byte LE
// file offset, 8-byte LE length) pointing at an internal-form record
// living elsewhere in the file.
func AppendExternalStub(buf []byte, fileOffset, length uint64) []byte {
	buf = varint.Append(buf, 0)
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], fileOffset)
	buf = append(buf, tmp[:]...)
	binary.LittleEndian.PutUint64(tmp[:], length)
	buf = append(buf, tmp[:]...)
	return buf
}

// Entry is a decoded heap entry. External entries carry FileOffset/Length
// instead of inline Value; resolving them to a value requires a second
// read from the caller.
type Entry struct {
	External   bool
	Key        []byte
	Value      []byte
	FileOffset uint64
	Length     uint64
}

// DecodeEntry decodes one heap entry starting at the beginning of buf,
// returning the entry and the number of bytes it occupied. buf must
// contain at least the full entry; callers that only have a bounded page
// slice should pass buf[off:] and rely on the length check below.
func DecodeEntry(buf []byte) (Entry, int, error) {
	first, n1, err := varint.Read(buf)
	if err != nil {
		return Entry{}, 0, fmt.Errorf("%w: leading varint: %v", ErrMalformedHeapEntry, err)
	}
	if first == 0 {
		if len(buf) < n1+16 {
			return Entry{}, 0, fmt.Errorf("%w: truncated external stub", ErrMalformedHeapEntry)
		}
		fileOffset := binary.LittleEndian.Uint64(buf[n1 : n1+8])
		length := binary.LittleEndian.Uint64(buf[n1+8 : n1+16])
		return Entry{External: true, FileOffset: fileOffset, Length: length}, n1 + 16, nil
	}

	keyLen := int(first - 1)
	valueLen64, n2, err := varint.Read(buf[n1:])
	if err != nil {
		return Entry{}, 0, fmt.Errorf("%w: value-length varint: %v", ErrMalformedHeapEntry, err)
	}
	valueLen := int(valueLen64)
	headerLen := n1 + n2
	total := headerLen + keyLen + valueLen
	if len(buf) < total {
		return Entry{}, 0, fmt.Errorf("%w: truncated internal entry (have %d, want %d)", ErrMalformedHeapEntry, len(buf), total)
	}
	key := buf[headerLen : headerLen+keyLen]
	value := buf[headerLen+keyLen : total]
	return Entry{Key: key, Value: value}, total, nil
}

// ReadSlot reads the slot-th table entry out of a page's table region.
func ReadSlot(table []byte, slot uint32) (uint32, error) {
	off := uint64(slot) * SlotSize
	if off+SlotSize > uint64(len(table)) {
		return 0, fmt.Errorf("%w: slot %d past table bounds", ErrSlotOutOfRange, slot)
	}
	return binary.LittleEndian.Uint32(table[off : off+SlotSize]), nil
}

// PutSlot writes value into the slot-th table entry.
func PutSlot(table []byte, slot uint32, value uint32) {
	off := uint64(slot) * SlotSize
	binary.LittleEndian.PutUint32(table[off:off+SlotSize], value)
}

// FillSentinels initializes every slot in table to the empty sentinel.
func FillSentinels(table []byte) {
	for i := 0; i+SlotSize <= len(table); i += SlotSize {
		binary.LittleEndian.PutUint32(table[i:i+SlotSize], Sentinel)
	}
}

// ValidateSlotValue reports whether a non-sentinel slot value s is a
// well-formed heap offset for a page with the given heap size, reserving
// the first reservedBytes of page 0's heap (the header).
func ValidateSlotValue(s uint32, heapBytes uint32, reservedBytes uint32) error {
	if s < reservedBytes || uint64(s) >= uint64(heapBytes) {
		return fmt.Errorf("%w: slot value %d not in [%d, %d)", ErrSlotOutOfRange, s, reservedBytes, heapBytes)
	}
	return nil
}
