// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package rangesource abstracts "read length bytes starting at offset"
// over a local mmap'd file or a remote HTTP server that honors Range
// requests. Table never opens a file or dials a socket itself -- it only
// ever calls ReadAt against a Source.
package rangesource

import (
	"context"
	"errors"
)

// ErrShortRead is returned when a source could not produce the requested
// number of bytes, for example a range that runs past the end of the
// source, or an HTTP range response whose body has the wrong length.
var ErrShortRead = errors.New("rangesource: short read")

// Source is anything that can serve a byte range of an immutable blob.
// Implementations must be safe for concurrent use.
type Source interface {
	// ReadAt returns exactly length bytes starting at offset, or an error.
	ReadAt(ctx context.Context, offset, length int64) ([]byte, error)
	// Size returns the total size of the underlying blob.
	Size() int64
	// Close releases any resources (mmap, file descriptor, connection
	// pool) held by the source.
	Close() error
}
