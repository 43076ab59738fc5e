// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package rangesource

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"
)

// Local serves ranges out of an mmap'd local file. It is the fast path:
// once mapped, reads are just memory accesses and the kernel's page
// cache does the rest.
type Local struct {
	f        *os.File
	data     []byte
	isClosed atomic.Bool
}

// OpenLocal mmaps path read-only and advises the kernel that access will
// be random, matching the probe-sequence access pattern of a lookup.
func OpenLocal(path string) (*Local, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("os.Open(%s): %w", path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("f.Stat: %w", err)
	}
	size := stat.Size()
	if size == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("rangesource.OpenLocal(%s): empty file", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("unix.Mmap: %w", err)
	}
	if err := unix.Madvise(data, syscall.MADV_RANDOM); err != nil {
		_ = unix.Munmap(data)
		_ = f.Close()
		return nil, fmt.Errorf("madvise: %w", err)
	}

	return &Local{f: f, data: data}, nil
}

func (l *Local) Size() int64 {
	return int64(len(l.data))
}

func (l *Local) ReadAt(_ context.Context, offset, length int64) ([]byte, error) {
	if l.isClosed.Load() {
		return nil, fmt.Errorf("rangesource: read from closed Local source")
	}
	if offset < 0 || length < 0 || offset+length > int64(len(l.data)) {
		return nil, fmt.Errorf("%w: offset %d length %d beyond file of size %d", ErrShortRead, offset, length, len(l.data))
	}
	// copy out of the mapping so callers can hold onto the result after
	// Close unmaps the underlying pages.
	out := make([]byte, length)
	copy(out, l.data[offset:offset+length])
	return out, nil
}

func (l *Local) Close() error {
	if !l.isClosed.CompareAndSwap(false, true) {
		return nil
	}
	err := unix.Munmap(l.data)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	return err
}
