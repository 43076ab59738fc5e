// Copyright 2021 The bit Authors and Caleb Spare. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package bitset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetClearIsSet(t *testing.T) {
	b := New(200)
	for i := int64(0); i < 200; i++ {
		require.False(t, b.IsSet(i))
	}

	b.Set(0)
	b.Set(63)
	b.Set(64)
	b.Set(199)
	require.True(t, b.IsSet(0))
	require.True(t, b.IsSet(63))
	require.True(t, b.IsSet(64))
	require.True(t, b.IsSet(199))
	require.False(t, b.IsSet(1))

	b.Clear(64)
	require.False(t, b.IsSet(64))
	require.True(t, b.IsSet(63))
}

func TestOutOfRangePanics(t *testing.T) {
	b := New(8)
	require.Panics(t, func() { b.Set(8) })
	require.Panics(t, func() { b.Set(-1) })
}
