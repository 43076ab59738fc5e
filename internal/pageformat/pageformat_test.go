// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pageformat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{PageCount: 7, HeapBytes: 4096, TableSlots: 1024}
	buf := h.MarshalBinary()
	require.Len(t, buf, HeaderSize)

	got, err := UnmarshalHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestHeaderBadMagic(t *testing.T) {
	h := Header{PageCount: 1, HeapBytes: 16, TableSlots: 4}
	buf := h.MarshalBinary()
	buf[0] ^= 0xFF
	_, err := UnmarshalHeader(buf)
	require.ErrorIs(t, err, ErrMalformedHeader)
}

func TestHeaderTruncated(t *testing.T) {
	_, err := UnmarshalHeader(make([]byte, HeaderSize-1))
	require.ErrorIs(t, err, ErrMalformedHeader)
}

func TestInternalEntryRoundTrip(t *testing.T) {
	key := []byte("hello")
	value := []byte("world")
	buf := AppendInternalEntry(nil, key, value)
	require.Len(t, buf, InternalEntryLen(len(key), len(value)))

	entry, n, err := DecodeEntry(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.False(t, entry.External)
	require.Equal(t, key, entry.Key)
	require.Equal(t, value, entry.Value)
}

func TestInternalEntryEmptyKeyAndValue(t *testing.T) {
	buf := AppendInternalEntry(nil, nil, nil)
	entry, n, err := DecodeEntry(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Empty(t, entry.Key)
	require.Empty(t, entry.Value)
}

func TestExternalStubRoundTrip(t *testing.T) {
	buf := AppendExternalStub(nil, 123456, 789)
	require.Len(t, buf, ExternalStubLen)

	entry, n, err := DecodeEntry(buf)
	require.NoError(t, err)
	require.Equal(t, ExternalStubLen, n)
	require.True(t, entry.External)
	require.EqualValues(t, 123456, entry.FileOffset)
	require.EqualValues(t, 789, entry.Length)
}

func TestDecodeEntryTruncated(t *testing.T) {
	buf := AppendInternalEntry(nil, []byte("key"), []byte("value"))
	for n := 0; n < len(buf); n++ {
		_, _, err := DecodeEntry(buf[:n])
		require.Error(t, err)
	}
}

func TestSlotReadWriteAndSentinel(t *testing.T) {
	table := make([]byte, 4*SlotSize)
	FillSentinels(table)
	for i := uint32(0); i < 4; i++ {
		v, err := ReadSlot(table, i)
		require.NoError(t, err)
		require.Equal(t, Sentinel, v)
	}

	PutSlot(table, 2, 42)
	v, err := ReadSlot(table, 2)
	require.NoError(t, err)
	require.EqualValues(t, 42, v)
}

func TestReadSlotOutOfRange(t *testing.T) {
	table := make([]byte, 2*SlotSize)
	_, err := ReadSlot(table, 5)
	require.ErrorIs(t, err, ErrSlotOutOfRange)
}

func TestValidateSlotValue(t *testing.T) {
	require.NoError(t, ValidateSlotValue(100, 4096, 0))
	require.Error(t, ValidateSlotValue(4096, 4096, 0))
	require.Error(t, ValidateSlotValue(10, 4096, 24))
	require.NoError(t, ValidateSlotValue(24, 4096, 24))
}

func TestPageOffsets(t *testing.T) {
	h := Header{PageCount: 3, HeapBytes: 100, TableSlots: 8}
	require.EqualValues(t, 132, h.PageSize())
	require.EqualValues(t, 0, h.PageOffset(0))
	require.EqualValues(t, 132, h.PageOffset(1))
	require.EqualValues(t, 396, h.TailOffset())
}
