// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package varint

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, value uint64) {
	t.Helper()
	buf := Append(nil, value)
	require.Equal(t, Len(value), len(buf))
	require.LessOrEqual(t, len(buf), MaxLen)

	got, n, err := Read(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, value, got)
}

func TestRoundTripSmallValues(t *testing.T) {
	for i := uint64(0); i < 100000; i += 7 {
		roundTrip(t, i)
	}
}

func TestRoundTripBoundaries(t *testing.T) {
	for _, v := range []uint64{
		0, 1, c0 - 1, c0, c0 + 1,
		c1 - 1, c1, c1 + 1,
		c2 - 1, c2, c2 + 1,
		1 << 20, 1 << 32, 1<<32 - 1, 1 << 40, 1 << 56,
		^uint64(0), ^uint64(0) - 1,
	} {
		roundTrip(t, v)
	}
}

func TestReadTruncated(t *testing.T) {
	full := Append(nil, 1<<40)
	for n := 0; n < len(full); n++ {
		_, _, err := Read(full[:n])
		require.Error(t, err)
	}
}

func TestReadEmpty(t *testing.T) {
	_, _, err := Read(nil)
	require.Error(t, err)
}

func TestEncodingIsPrefixFree(t *testing.T) {
	a := Append(nil, 5)
	b := Append(nil, 540851)
	buf := append(append([]byte{}, a...), b...)
	v1, n1, err := Read(buf)
	require.NoError(t, err)
	require.Equal(t, uint64(5), v1)
	v2, n2, err := Read(buf[n1:])
	require.NoError(t, err)
	require.Equal(t, uint64(540851), v2)
	require.Equal(t, len(buf), n1+n2)
}
